package simulate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// verify compares the server's view of every app with the plan. Every
// mismatch is reported, not only the first.
func verify(ctx context.Context, api *apiClient, totals map[string]appTotals, stats *Stats) error {
	apps := make([]string, 0, len(totals))
	for app := range totals {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, app := range apps {
		want := totals[app]
		g.Go(func() error {
			rows, sessions, err := verifyApp(gctx, api, app, want)
			mu.Lock()
			defer mu.Unlock()
			stats.RowsStored += rows
			stats.SessionsReported += sessions
			errs = multierr.Append(errs, err)
			return nil
		})
	}
	_ = g.Wait()

	if stats.SessionsFailed > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%d sessions failed to deliver", stats.SessionsFailed))
	}
	return errs
}

// verifyApp checks one app. Every delivery stores a full snapshot, so rows
// may exceed sessions while the latest-per-session view must match exactly.
func verifyApp(ctx context.Context, api *apiClient, app string, want appTotals) (rows, sessions int, errs error) {
	records, err := api.list(ctx, app)
	if err != nil {
		return 0, 0, err
	}
	rows = len(records)
	for i := range records {
		if records[i].AppName != app {
			errs = multierr.Append(errs, fmt.Errorf("%s: list returned a row of %q", app, records[i].AppName))
			break
		}
	}
	if rows < want.Sessions {
		errs = multierr.Append(errs, fmt.Errorf("%s: %d rows stored, want at least %d", app, rows, want.Sessions))
	}

	all, err := api.summary(ctx, app, "")
	if err != nil {
		return rows, 0, multierr.Append(errs, err)
	}
	if all.TotalRecords != rows {
		errs = multierr.Append(errs, fmt.Errorf("%s: summary counts %d rows, list %d", app, all.TotalRecords, rows))
	}

	latest, err := api.summary(ctx, app, "latest")
	if err != nil {
		return rows, 0, multierr.Append(errs, err)
	}
	sessions = latest.TotalSessions
	if sessions != want.Sessions {
		errs = multierr.Append(errs, fmt.Errorf("%s: %d sessions reported, want %d", app, sessions, want.Sessions))
	}
	if latest.TotalErrors != want.Errors {
		errs = multierr.Append(errs, fmt.Errorf("%s: %d errors reported, want %d", app, latest.TotalErrors, want.Errors))
	}
	if latest.DuplicateRows != 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s: latest view still has %d duplicate rows", app, latest.DuplicateRows))
	}
	return rows, sessions, errs
}
