// Package collector buffers the performance metrics of one client session
// and hands their delivery to a debounced scheduler.
package collector

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/okian/pulse/pkg/delivery"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/model"
)

// Dispatcher delivers one snapshot of the session.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.MetricEvent) error
}

// endpointSetter is implemented by dispatchers that follow APIEndpoint updates.
type endpointSetter interface {
	SetEndpoint(endpoint string)
}

// Metric is a single Web Vitals report.
type Metric struct {
	Name  string
	Value float64
}

// Collector owns the accumulated MetricEvent of one session.
type Collector struct {
	mu          sync.Mutex
	cfg         Config
	event       model.MetricEvent
	unsubscribe []func()
	destroyed   bool

	platform   Platform
	dispatcher Dispatcher
	scheduler  *delivery.Scheduler
	clock      clock.Clock
	logger     logger.Logger
}

// New creates a collector for a fresh session.
func New(opts ...Option) *Collector {
	s := settings{
		cfg:    DefaultConfig(),
		clock:  clock.New(),
		logger: logger.GetOrNop().Named("collector"),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.platform == nil {
		s.platform = Headless{}
	}
	if s.dispatcher == nil {
		d := delivery.NewHTTPDispatcher("", nil)
		d.SetEndpoint(s.cfg.APIEndpoint)
		if !isAbsoluteURL(d.URL()) {
			s.logger.Warn(context.Background(), "no dispatcher and relative api endpoint; deliveries will fail",
				logger.String("apiEndpoint", s.cfg.APIEndpoint))
		}
		s.dispatcher = d
	}
	if es, ok := s.dispatcher.(endpointSetter); ok {
		es.SetEndpoint(s.cfg.APIEndpoint)
	}

	c := &Collector{
		cfg:        s.cfg,
		platform:   s.platform,
		dispatcher: s.dispatcher,
		clock:      s.clock,
		logger:     s.logger,
	}

	page := s.platform.Page()
	id := NewSessionID(s.platform.Now())
	c.event = model.MetricEvent{
		ID:            id,
		Timestamp:     s.platform.Now().UnixMilli(),
		URL:           page.URL,
		UserAgent:     page.UserAgent,
		SessionID:     id,
		UserID:        s.cfg.UserID,
		AppName:       s.cfg.AppName,
		CustomMetrics: make(map[string]float64),
		Errors:        []model.ErrorRecord{},
	}

	c.scheduler = delivery.NewScheduler(c.flush,
		delivery.WithClock(s.clock),
		delivery.WithDebounce(s.cfg.DebounceTime),
		delivery.WithMaxRetries(s.cfg.MaxRetries),
		delivery.WithLogger(s.logger),
	)

	if s.cfg.EnableErrorTracking && s.platform.Interactive() {
		c.unsubscribe = c.subscribe()
	}
	return c
}

func isAbsoluteURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// NewSessionID returns "{unixMillis}-{random}".
func NewSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + random
}

func (c *Collector) subscribe() []func() {
	offErr := c.platform.OnError(func(e UncaughtError) {
		c.TrackError(model.ErrorRecord{Message: e.Message, Stack: e.Stack})
	})
	offRej := c.platform.OnUnhandledRejection(func(reason any) {
		c.TrackError(model.ErrorRecord{Message: rejectionMessage(reason)})
	})
	return []func(){offErr, offRej}
}

// SessionID returns the id of the session.
func (c *Collector) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event.SessionID
}

// Config returns a copy of the live configuration.
func (c *Collector) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// TrackError appends an error to the session. Zero timestamp, URL and app
// name are taken from the session.
func (c *Collector) TrackError(rec model.ErrorRecord) {
	c.mu.Lock()
	if rec.Timestamp == 0 {
		rec.Timestamp = c.platform.Now().UnixMilli()
	}
	if rec.URL == "" {
		rec.URL = c.event.URL
	}
	if rec.AppName == "" {
		rec.AppName = c.event.AppName
	}
	c.event.Errors = append(c.event.Errors, rec)
	c.mu.Unlock()

	c.logger.Debug(context.Background(), "error tracked", logger.String("message", rec.Message))
}

// HandleWebVitals records a vital and schedules delivery. Unknown names are
// ignored.
func (c *Collector) HandleWebVitals(m Metric) {
	name, ok := model.ParseVitalName(m.Name)
	if !ok {
		c.logger.Debug(context.Background(), "unknown vital ignored", logger.String("name", m.Name))
		return
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.event.SetVital(name, m.Value)
	c.mu.Unlock()

	c.scheduler.Schedule()
}

// TrackCustomMetric sets name to value, replacing any earlier value.
func (c *Collector) TrackCustomMetric(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.EnableCustomMetrics {
		return
	}
	c.event.CustomMetrics[name] = value
}

// IncrementCounter adds delta to the custom metric name.
func (c *Collector) IncrementCounter(name string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.EnableCustomMetrics {
		return
	}
	c.event.CustomMetrics[name] += delta
}

// StartTimer returns a stop function recording the elapsed milliseconds as
// the custom metric name. Only the first call of the stop function records.
func (c *Collector) StartTimer(name string) func() {
	start := c.clock.Now()
	var once sync.Once
	return func() {
		once.Do(func() {
			elapsed := c.clock.Since(start)
			c.TrackCustomMetric(name, float64(elapsed)/float64(time.Millisecond))
		})
	}
}

// UpdateConfig merges opts into the live configuration. UserID and AppName
// take effect on the in-progress event immediately; toggling error tracking
// subscribes to or leaves the platform error hooks.
func (c *Collector) UpdateConfig(opts ...Option) {
	c.mu.Lock()
	s := settings{cfg: c.cfg}
	for _, opt := range opts {
		opt(&s)
	}
	c.cfg = s.cfg
	c.event.UserID = s.cfg.UserID
	c.event.AppName = s.cfg.AppName
	cfg := c.cfg
	track := cfg.EnableErrorTracking && c.platform.Interactive() && !c.destroyed
	var off []func()
	if !track && len(c.unsubscribe) > 0 {
		off, c.unsubscribe = c.unsubscribe, nil
	}
	subscribe := track && len(c.unsubscribe) == 0
	c.mu.Unlock()

	for _, fn := range off {
		if err := safeCall(fn); err != nil {
			c.logger.Warn(context.Background(), "unsubscribe failed", logger.Error(err))
		}
	}
	if subscribe {
		c.addSubscriptions(c.subscribe())
	}

	c.scheduler.Configure(
		delivery.WithDebounce(cfg.DebounceTime),
		delivery.WithMaxRetries(cfg.MaxRetries),
	)
	if es, ok := c.dispatcher.(endpointSetter); ok {
		es.SetEndpoint(cfg.APIEndpoint)
	}
}

// addSubscriptions keeps subs unless, in the meantime, the collector was
// destroyed, subscribed again or stopped tracking; then they are released.
func (c *Collector) addSubscriptions(subs []func()) {
	c.mu.Lock()
	if c.destroyed || len(c.unsubscribe) > 0 || !c.cfg.EnableErrorTracking {
		c.mu.Unlock()
		for _, fn := range subs {
			_ = safeCall(fn)
		}
		return
	}
	c.unsubscribe = subs
	c.mu.Unlock()
}

// GetMetrics returns a deep copy of the current event.
func (c *Collector) GetMetrics() model.MetricEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event.Clone()
}

// Flush sends the current snapshot now, bypassing the debounce.
func (c *Collector) Flush(ctx context.Context) error {
	return c.scheduler.FlushNow(ctx)
}

// Recover records a panic as an error of the session and swallows it.
// It must be deferred directly:
//
//	defer c.Recover()
func (c *Collector) Recover() {
	r := recover()
	if r == nil {
		return
	}
	var msg string
	switch v := r.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprint(v)
	}
	c.TrackError(model.ErrorRecord{Message: msg, Stack: string(debug.Stack())})
	c.logger.Error(context.Background(), "panic recovered", logger.String("message", msg))
}

// Destroy unsubscribes from the platform, cancels pending timers and makes
// one final send without retry. Later calls are no-ops.
func (c *Collector) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	var errs error
	for _, off := range unsubscribe {
		errs = multierr.Append(errs, safeCall(off))
	}
	errs = multierr.Append(errs, c.scheduler.Close(ctx))
	return errs
}

func (c *Collector) flush(ctx context.Context) error {
	c.mu.Lock()
	c.event.Timestamp = c.platform.Now().UnixMilli()
	if nav, ok := c.platform.NavigationTiming(); ok {
		c.event.DOMContentLoaded = nav.DOMContentLoaded()
		c.event.LoadComplete = nav.LoadComplete()
	}
	snapshot := c.event.Clone()
	c.mu.Unlock()

	return c.dispatcher.Dispatch(ctx, snapshot)
}

// safeCall runs fn and turns a panic into an error.
func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unsubscribe panicked: %v", r)
		}
	}()
	fn()
	return nil
}
