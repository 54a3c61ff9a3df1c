package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pulse/pkg/collector"
	"github.com/okian/pulse/pkg/delivery"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/model"
)

// Run executes a complete simulation and returns its statistics. A
// verification mismatch is returned as an error alongside the stats.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	cfg := config.withDefaults()
	if cfg.RunID == "" {
		cfg.RunID = newRunID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.GetOrNop().Named("simulate")
	stats := &Stats{RunID: cfg.RunID, SessionsPlanned: cfg.Sessions, StartTime: time.Now()}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	api := newAPIClient(httpClient, cfg.BaseURL, cfg.APIEndpoint)

	log.Info(ctx, "starting simulation",
		logger.String("runId", cfg.RunID),
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("apps", cfg.Apps),
		logger.Int("workers", cfg.Workers),
	)

	// Step 1: Check service health
	if err := api.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Plan sessions
	plans, totals := generatePlans(&cfg)

	// Step 3: Drive collectors concurrently
	runSessions(ctx, &cfg, httpClient, plans, stats, log)

	// Step 4: Verify what the server reports
	verr := verify(ctx, api, totals, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if verr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verr)
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// runSessions runs every plan through its own collector. A failed final
// delivery counts against the session, not the run.
func runSessions(ctx context.Context, cfg *Config, client *http.Client, plans []sessionPlan, stats *Stats, log logger.Logger) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i := range plans {
		p := &plans[i]
		g.Go(func() error {
			err := runSession(gctx, cfg, client, p, log)
			mu.Lock()
			defer mu.Unlock()
			stats.ErrorsTracked += len(p.Errors)
			if err != nil {
				stats.SessionsFailed++
				log.Warn(gctx, "session delivery failed",
					logger.String("appName", p.AppName),
					logger.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func runSession(ctx context.Context, cfg *Config, client *http.Client, p *sessionPlan, log logger.Logger) error {
	c := collector.New(
		collector.WithAPIEndpoint(cfg.APIEndpoint),
		collector.WithAppName(p.AppName),
		collector.WithUserID(p.UserID),
		collector.WithDebounceTime(cfg.Debounce),
		collector.WithMaxRetries(cfg.MaxRetries),
		collector.WithPlatform(collector.Headless{PageInfo: collector.Page{
			URL:       "https://sim.invalid/" + p.AppName,
			UserAgent: "pulse-simulate/1.0",
		}}),
		collector.WithDispatcher(delivery.NewHTTPDispatcher(cfg.BaseURL, client)),
		collector.WithLogger(log.Named("collector")),
	)

	stop := c.StartTimer("sessionMs")
	for _, v := range model.Vitals {
		if value, ok := p.Vitals[v]; ok {
			c.HandleWebVitals(collector.Metric{Name: string(v), Value: value})
		}
	}
	for _, msg := range p.Errors {
		c.TrackError(model.ErrorRecord{Message: msg})
	}
	for name, value := range p.Custom {
		c.TrackCustomMetric(name, value)
	}
	c.IncrementCounter("pageViews", 1)
	stop()

	return c.Destroy(ctx)
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var sessionsPerSecond float64
	if stats.Duration > 0 {
		sessionsPerSecond = float64(stats.SessionsPlanned) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.String("runId", stats.RunID),
		logger.Int("sessionsPlanned", stats.SessionsPlanned),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("sessionsReported", stats.SessionsReported),
		logger.Int("rowsStored", stats.RowsStored),
		logger.Int("errorsTracked", stats.ErrorsTracked),
		logger.Duration("duration", stats.Duration),
		logger.Float64("sessionsPerSecond", sessionsPerSecond),
	)
}
