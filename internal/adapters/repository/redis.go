package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/redis/go-redis/v9"

	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/model"
)

const (
	driverRedis = "redis"

	// DefaultRedisKey is the list holding the records.
	DefaultRedisKey = "pulse:metrics"
)

// RedisStore keeps the records in one Redis list. Appends and trims run in a
// MULTI/EXEC transaction so concurrent servers share one FIFO cap.
type RedisStore struct {
	client redis.UniversalClient
	opts   options
}

// NewRedisStore wraps client and pings it until it answers or the connect
// attempts are spent. The store owns client from then on.
func NewRedisStore(ctx context.Context, client redis.UniversalClient, opts ...Option) (*RedisStore, error) {
	o := applyOptions(opts)
	s := &RedisStore{client: client, opts: o}

	err := retry.Do(
		func() error { return client.Ping(ctx).Err() },
		retry.Context(ctx),
		retry.Attempts(o.connectAttempts),
		retry.Delay(o.connectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Warn(ctx, "redis not reachable, retrying", logger.Int("attempt", int(n)+1), logger.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: ping redis: %w", ErrStore, err)
	}

	if n, err := s.Count(ctx); err == nil {
		metrics.UpdateStoreRecords(n)
	}
	o.logger.Info(ctx, "redis store ready", logger.String("key", o.redisKey))
	return s, nil
}

// NewRedisClient builds a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		DisableIdentity: true,
	})
}

// Store implements Store.Store.
func (s *RedisStore) Store(ctx context.Context, rec model.MetricEvent) error { //nolint:gocritic // hugeParam: record stored by value
	start := time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %w", ErrStore, err)
	}

	var push *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		push = p.RPush(ctx, s.opts.redisKey, data)
		p.LTrim(ctx, s.opts.redisKey, int64(-s.opts.maxRecords), -1)
		return nil
	})
	if err != nil {
		metrics.RecordStoreError(driverRedis, "store")
		return fmt.Errorf("%w: append: %w", ErrStore, err)
	}

	length := int(push.Val())
	evicted := max(length-s.opts.maxRecords, 0)
	metrics.RecordStoreLatency(driverRedis, "store", float64(time.Since(start).Microseconds())/1000)
	metrics.UpdateStoreRecords(min(length, s.opts.maxRecords))
	metrics.RecordStoreEvictions(evicted)
	return nil
}

// GetFiltered implements Store.GetFiltered.
func (s *RedisStore) GetFiltered(ctx context.Context, f Filter) ([]model.MetricEvent, error) {
	if err := f.Validate(s.opts.location); err != nil {
		return nil, err
	}
	start := time.Now()
	raw, err := s.client.LRange(ctx, s.opts.redisKey, 0, -1).Result()
	if err != nil {
		metrics.RecordStoreError(driverRedis, "get_filtered")
		return nil, fmt.Errorf("%w: read: %w", ErrStore, err)
	}

	records := make([]model.MetricEvent, 0, len(raw))
	for _, item := range raw {
		var rec model.MetricEvent
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.opts.logger.Warn(ctx, "skipping undecodable record", logger.Error(err))
			continue
		}
		records = append(records, rec)
	}

	out := f.apply(records, s.opts.location)
	metrics.RecordStoreLatency(driverRedis, "get_filtered", float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

// Count implements Store.Count.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.opts.redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrStore, err)
	}
	return int(n), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
