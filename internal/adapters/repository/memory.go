package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/model"
)

const driverMemory = "memory"

// MemoryStore is an in-process FIFO-capped Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.MetricEvent
	closed  bool

	opts options
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := applyOptions(opts)
	return &MemoryStore{
		records: make([]model.MetricEvent, 0, min(o.maxRecords, 1024)),
		opts:    o,
	}
}

// Store implements Store.Store.
func (s *MemoryStore) Store(ctx context.Context, rec model.MetricEvent) error { //nolint:gocritic // hugeParam: record stored by value
	start := time.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	var evicted int
	s.records, evicted = appendCapped(s.records, rec.Clone(), s.opts.maxRecords)
	n := len(s.records)
	s.mu.Unlock()

	metrics.RecordStoreLatency(driverMemory, "store", float64(time.Since(start).Microseconds())/1000)
	metrics.UpdateStoreRecords(n)
	metrics.RecordStoreEvictions(evicted)
	if evicted > 0 {
		s.opts.logger.Debug(ctx, "evicted oldest records", logger.Int("evicted", evicted), logger.Int("retained", n))
	}
	return nil
}

// GetFiltered implements Store.GetFiltered.
func (s *MemoryStore) GetFiltered(_ context.Context, f Filter) ([]model.MetricEvent, error) {
	if err := f.Validate(s.opts.location); err != nil {
		return nil, err
	}
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := f.apply(s.records, s.opts.location)
	metrics.RecordStoreLatency(driverMemory, "get_filtered", float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close releases the records. Later writes fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}

// appendCapped appends rec and drops the oldest entries beyond limit.
func appendCapped(records []model.MetricEvent, rec model.MetricEvent, limit int) ([]model.MetricEvent, int) { //nolint:gocritic // hugeParam
	records = append(records, rec)
	over := len(records) - limit
	if over <= 0 {
		return records, 0
	}
	for i := 0; i < over; i++ {
		records[i] = model.MetricEvent{}
	}
	return records[over:], over
}
