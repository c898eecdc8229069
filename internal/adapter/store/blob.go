package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

// BlobStore keeps snapshots in an S3-compatible object store, mirroring the
// LocalStore layout: the latest summary at <key> plus a dated copy at
// <YYYYMMDD>/<key>.
type BlobStore struct {
	client *minio.Client
	bucket string
	key    string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewBlobStore constructs the object-store backend.
func NewBlobStore(endpoint, accessKey, secretKey, bucket, region, key string, logger *slog.Logger) (*BlobStore, error) {
	useSSL := strings.HasPrefix(strings.ToLower(endpoint), "https")
	client, err := minio.New(sanitizeEndpoint(endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init blob client: %w", err)
	}
	return &BlobStore{
		client: client,
		bucket: bucket,
		key:    key,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}, nil
}

// SetClock swaps the time source used for dated copies.
func (s *BlobStore) SetClock(c clockwork.Clock) {
	s.clock = c
}

// LoadSummary reads the latest snapshot object. A missing key means no
// snapshot has been stored yet.
func (s *BlobStore) LoadSummary(ctx context.Context) ([]domain.CountrySummary, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot object: %w", err)
	}
	summary, err := DecodeSummary(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return summary, true, nil
}

// StoreSummary uploads the latest snapshot and its dated copy.
func (s *BlobStore) StoreSummary(ctx context.Context, summary []domain.CountrySummary) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	data, err := encodeSummaryBytes(summary)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dated := s.clock.Now().UTC().Format("20060102") + "/" + s.key
	for _, key := range []string{s.key, dated} {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:      "text/csv",
			DisableMultipart: true,
		})
		if err != nil {
			return fmt.Errorf("put snapshot %s: %w", key, err)
		}
	}
	s.logger.Debug("snapshot stored", "bucket", s.bucket, "key", s.key, "countries", len(summary))
	return nil
}

func (s *BlobStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// sanitizeEndpoint strips schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
