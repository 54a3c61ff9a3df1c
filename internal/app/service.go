// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/pkg/aggregate"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/model"
)

// ErrNotStarted is returned by reads and writes before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies of the metrics pipeline.
type Service struct {
	mu sync.RWMutex

	store repository.Store

	// Configuration
	driver          string
	maxRecords      int
	filePath        string
	redisAddr       string
	redisPassword   string
	redisDB         int
	redisKey        string
	connectAttempts uint
	location        *time.Location
	defaultLimit    int

	// State
	started   bool
	startedAt time.Time
	ingested  int64

	clock  clock.Clock
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects a ready store; the driver settings are then ignored.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDriver selects the store driver opened on Start.
func WithDriver(driver string) Option {
	return func(s *Service) {
		if driver != "" {
			s.driver = driver
		}
	}
}

// WithMaxRecords sets the retention cap of the store.
func WithMaxRecords(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// WithFilePath sets the JSON file of the file driver.
func WithFilePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.filePath = path
		}
	}
}

// WithRedis configures the redis driver.
func WithRedis(addr, password string, db int, key string, attempts uint) Option {
	return func(s *Service) {
		s.redisAddr = addr
		s.redisPassword = password
		s.redisDB = db
		s.redisKey = key
		s.connectAttempts = attempts
	}
}

// WithLocation sets the zone in which date filters are resolved.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithDefaultLimit sets the query limit used when none is given.
func WithDefaultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithClock sets the clock that stamps received records.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// OptionsFromConfig maps process configuration onto service options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return []Option{
		WithDriver(cfg.StoreDriver),
		WithMaxRecords(cfg.StoreMaxRecords),
		WithFilePath(cfg.StoreFilePath),
		WithRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey, cfg.RedisConnectAttempts),
		WithLocation(loc),
		WithDefaultLimit(cfg.DefaultLimit),
	}, nil
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		driver:       config.DriverMemory,
		maxRecords:   repository.DefaultMaxRecords,
		location:     time.Local,
		defaultLimit: repository.DefaultLimit,
		clock:        clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop().Named("service")
	}
	return s
}

// Start opens the store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
	}

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "metrics service started",
		logger.String("driver", s.driver),
		logger.Int("maxRecords", s.maxRecords),
		logger.String("location", s.location.String()),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithMaxRecords(s.maxRecords),
		repository.WithLocation(s.location),
		repository.WithLogger(s.logger.Named("store")),
	}
	switch s.driver {
	case config.DriverMemory:
		return repository.NewMemoryStore(opts...), nil
	case config.DriverFile:
		return repository.OpenFileStore(ctx, s.filePath, opts...)
	case config.DriverRedis:
		client := repository.NewRedisClient(s.redisAddr, s.redisPassword, s.redisDB)
		opts = append(opts,
			repository.WithRedisKey(s.redisKey),
			repository.WithConnectRetry(s.connectAttempts, 0),
		)
		store, err := repository.NewRedisStore(ctx, client, opts...)
		if err != nil {
			err = multierr.Append(err, client.Close())
		}
		return store, err
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, s.driver)
	}
}

// Stop closes the store.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(context.Background(), "stopping metrics service...")

	var errs error
	if s.store != nil {
		errs = multierr.Append(errs, s.store.Close())
		s.store = nil
	}
	s.started = false
	s.logger.Info(context.Background(), "metrics service stopped")
	return errs
}

func (s *Service) currentStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Location returns the zone used for date filters.
func (s *Service) Location() *time.Location {
	return s.location
}

// Ingest stamps rec with the receipt time and appends it. The stored record
// is returned.
func (s *Service) Ingest(ctx context.Context, rec model.MetricEvent) (model.MetricEvent, error) { //nolint:gocritic // hugeParam: record passed by value
	store, err := s.currentStore()
	if err != nil {
		return model.MetricEvent{}, err
	}

	rec.Timestamp = s.clock.Now().UnixMilli()
	if err := store.Store(ctx, rec); err != nil {
		metrics.RecordIngestRejected("store")
		s.logger.Error(ctx, "store record failed",
			logger.String("sessionId", rec.SessionID),
			logger.Error(err),
		)
		return model.MetricEvent{}, err
	}

	s.mu.Lock()
	s.ingested++
	s.mu.Unlock()

	metrics.RecordIngestAccepted(rec.AppName)
	metrics.RecordErrorsReported(len(rec.Errors))
	for _, v := range model.Vitals {
		if value, ok := rec.Vital(v); ok {
			metrics.ObserveVital(string(v), rec.AppName, value)
		}
	}
	s.logger.Debug(ctx, "record stored",
		logger.String("sessionId", rec.SessionID),
		logger.String("appName", rec.AppName),
		logger.Int64("timestamp", rec.Timestamp),
	)
	return rec, nil
}

// Query returns the records matching f. A zero limit uses the default limit.
func (s *Service) Query(ctx context.Context, f repository.Filter) ([]model.MetricEvent, error) {
	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}
	if f.Limit == 0 {
		f.Limit = s.defaultLimit
	}
	records, err := store.GetFiltered(ctx, f)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuery()
	return records, nil
}

// Summary aggregates the records matching f. With latestOnly set, only the
// last row of every session is aggregated.
func (s *Service) Summary(ctx context.Context, f repository.Filter, latestOnly bool) (aggregate.Report, error) {
	records, err := s.Query(ctx, f)
	if err != nil {
		return aggregate.Report{}, err
	}
	if latestOnly {
		records = aggregate.LatestPerSession(records)
	}
	return aggregate.NewReport(aggregate.Aggregate(records)), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"driver":     s.driver,
		"maxRecords": s.maxRecords,
		"ingested":   s.ingested,
	}

	if s.started {
		stats["uptimeSeconds"] = int64(s.clock.Since(s.startedAt).Seconds())
		if n, err := s.store.Count(context.Background()); err == nil {
			stats["records"] = n
			metrics.UpdateStoreRecords(n)
		} else {
			stats["storeError"] = err.Error()
		}
	}
	return stats
}
