//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/ochanalytics/slow-onset-monitor/internal/adapter/kafka"
	"github.com/ochanalytics/slow-onset-monitor/internal/config"
	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

const testSummaryTopic = "test-country-risk-summaries"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("monitor-integration"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	controllerConn, err := kafkago.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestPublishSummaryRoundTrip verifies the writer against real Kafka: the full
// summary table lands as one message per country with the expected keys,
// headers, and payloads.
func TestPublishSummaryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSummaryTopic)

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaSummaryTopic: testSummaryTopic,
	}

	hsDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	prop3 := 0.3
	summary := []domain.CountrySummary{
		{
			Country:         "Kenya",
			ISO3:            "KEN",
			MaxAlertLevel:   domain.AlertHigh,
			HotspotLevel:    domain.AlertMedium,
			IpcLevel:        domain.AlertHigh,
			IpcType:         domain.IpcCurrent,
			IpcDetail:       "emergency",
			HotspotDate:     &hsDate,
			Proportion3Plus: &prop3,
		},
		{
			Country:       "Uganda",
			ISO3:          "UGA",
			MaxAlertLevel: domain.AlertLow,
			HotspotLevel:  domain.AlertLow,
			HotspotDate:   &hsDate,
		},
	}

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.PublishSummary(ctx, summary))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSummaryTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	byISO3 := make(map[string]kafkago.Message, len(summary))
	for len(byISO3) < len(summary) {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from summary topic")
		byISO3[string(msg.Key)] = msg
	}

	kenya := byISO3["KEN"]
	headers := make(map[string]string, len(kenya.Headers))
	for _, h := range kenya.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "high", headers["max_alert_level"])
	_, err := time.Parse(time.RFC3339, headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")

	var row domain.CountrySummary
	require.NoError(t, json.Unmarshal(kenya.Value, &row))
	assert.Equal(t, "Kenya", row.Country)
	assert.Equal(t, domain.AlertHigh, row.MaxAlertLevel)
	assert.Equal(t, domain.IpcCurrent, row.IpcType)
	require.NotNil(t, row.Proportion3Plus)
	assert.Equal(t, 0.3, *row.Proportion3Plus)

	uganda := byISO3["UGA"]
	var ugandaRow domain.CountrySummary
	require.NoError(t, json.Unmarshal(uganda.Value, &ugandaRow))
	assert.Equal(t, domain.AlertNone, ugandaRow.IpcLevel)
	assert.Nil(t, ugandaRow.Proportion3Plus)
}
