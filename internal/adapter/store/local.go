package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

// LocalStore keeps snapshots on the filesystem: the latest summary at
// <dir>/<key> plus an immutable dated copy at <dir>/<YYYYMMDD>/<key> for the
// publication history.
type LocalStore struct {
	dir    string
	key    string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewLocalStore creates a filesystem snapshot store rooted at dir.
func NewLocalStore(dir, key string, logger *slog.Logger) *LocalStore {
	return &LocalStore{dir: dir, key: key, clock: clockwork.NewRealClock(), logger: logger}
}

// SetClock swaps the time source used for dated copies.
func (s *LocalStore) SetClock(c clockwork.Clock) {
	s.clock = c
}

// LoadSummary reads the latest snapshot. A missing file means no snapshot has
// been stored yet, not an error.
func (s *LocalStore) LoadSummary(_ context.Context) ([]domain.CountrySummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, s.key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}
	summary, err := DecodeSummary(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return summary, true, nil
}

// StoreSummary writes the latest snapshot and its dated copy.
func (s *LocalStore) StoreSummary(_ context.Context, summary []domain.CountrySummary) error {
	data, err := encodeSummaryBytes(summary)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dated := filepath.Join(s.dir, s.clock.Now().UTC().Format("20060102"))
	if err := os.MkdirAll(dated, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	latest := filepath.Join(s.dir, s.key)
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dated, s.key), data, 0o644); err != nil {
		return fmt.Errorf("write dated snapshot: %w", err)
	}
	s.logger.Debug("snapshot stored", "path", latest, "countries", len(summary))
	return nil
}

// WriteExposureFile writes the exposure table to the given path, creating
// parent directories as needed.
func WriteExposureFile(path string, result domain.ExposureResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create exposure dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create exposure file: %w", err)
	}
	defer file.Close()
	if err := EncodeExposure(file, result); err != nil {
		return err
	}
	return file.Close()
}

// ExposureFileWriter adapts WriteExposureFile to the pipeline interface.
type ExposureFileWriter struct {
	Path string
}

func (w ExposureFileWriter) WriteExposure(_ context.Context, result domain.ExposureResult) error {
	return WriteExposureFile(w.Path, result)
}
