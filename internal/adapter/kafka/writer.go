package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ochanalytics/slow-onset-monitor/internal/config"
	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

// Writer publishes country summaries to a Kafka topic.
// It implements pipeline.SummaryPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured summary topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSummaryTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSummary emits one message per country, keyed by ISO3 so consumers can
// compact per country, in a single WriteMessages call: the whole table lands
// or none of it does.
func (w *Writer) PublishSummary(ctx context.Context, summary []domain.CountrySummary) error {
	if len(summary) == 0 {
		return nil
	}
	publishedAt := time.Now().UTC().Format(time.RFC3339)
	msgs := make([]kafkago.Message, len(summary))
	for i := range summary {
		msg, err := serializeSummary(summary[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Info("summary messages published", "countries", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeSummary marshals one country row into a Kafka message.
func serializeSummary(s domain.CountrySummary, publishedAt string) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary for %s: %w", s.ISO3, err)
	}
	return kafkago.Message{
		Key:   []byte(s.ISO3),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "max_alert_level", Value: []byte(s.MaxAlertLevel.String())},
			{Key: "published_at", Value: []byte(publishedAt)},
		},
	}, nil
}
