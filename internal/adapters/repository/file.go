package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/model"
)

const driverFile = "file"

// FileStore keeps the records as one JSON array on disk. The file is
// rewritten atomically after every append.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records []model.MetricEvent
	closed  bool

	opts options
}

// OpenFileStore loads path, creating it on first write when missing.
func OpenFileStore(ctx context.Context, path string, opts ...Option) (*FileStore, error) {
	o := applyOptions(opts)
	s := &FileStore{path: path, opts: o}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %w", ErrStore, path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", ErrStore, path, err)
		}
	}
	if over := len(s.records) - o.maxRecords; over > 0 {
		s.records = append([]model.MetricEvent(nil), s.records[over:]...)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrStore, dir, err)
		}
	}

	metrics.UpdateStoreRecords(len(s.records))
	o.logger.Info(ctx, "file store opened", logger.String("path", path), logger.Int("records", len(s.records)))
	return s, nil
}

// Store implements Store.Store. A failed write leaves the previous state
// both on disk and in memory.
func (s *FileStore) Store(ctx context.Context, rec model.MetricEvent) error { //nolint:gocritic // hugeParam: record stored by value
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := make([]model.MetricEvent, len(s.records), len(s.records)+1)
	copy(next, s.records)
	next, evicted := appendCapped(next, rec.Clone(), s.opts.maxRecords)

	if err := s.persist(next); err != nil {
		metrics.RecordStoreError(driverFile, "store")
		s.opts.logger.Error(ctx, "file store write failed", logger.String("path", s.path), logger.Error(err))
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	s.records = next

	metrics.RecordStoreLatency(driverFile, "store", float64(time.Since(start).Microseconds())/1000)
	metrics.UpdateStoreRecords(len(next))
	metrics.RecordStoreEvictions(evicted)
	return nil
}

// GetFiltered implements Store.GetFiltered.
func (s *FileStore) GetFiltered(_ context.Context, f Filter) ([]model.MetricEvent, error) {
	if err := f.Validate(s.opts.location); err != nil {
		return nil, err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := f.apply(s.records, s.opts.location)
	metrics.RecordStoreLatency(driverFile, "get_filtered", float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

// Count implements Store.Count.
func (s *FileStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// Close marks the store closed. Everything is already on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}

func (s *FileStore) persist(records []model.MetricEvent) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return atomicWriteFile(s.path, data, 0o600)
}

// atomicWriteFile writes data to a temp file in the same directory and
// renames it over path, so readers never see a partial file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pulse-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	ok = true
	return nil
}
