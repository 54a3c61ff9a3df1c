// Package repository stores received metric records and serves filtered
// reads over them.
package repository

import (
	"context"

	"github.com/okian/pulse/pkg/model"
)

// Default store configuration constants.
const (
	DefaultMaxRecords = 10000
	DefaultLimit      = 100
)

// Store is an append-only, capped record log.
type Store interface {
	// Store appends one record, evicting the oldest records past the cap.
	Store(ctx context.Context, rec model.MetricEvent) error

	// GetFiltered returns the newest Limit records in insertion order that
	// match f.
	GetFiltered(ctx context.Context, f Filter) ([]model.MetricEvent, error)

	// Count returns the number of retained records.
	Count(ctx context.Context) (int, error)

	Close() error
}
