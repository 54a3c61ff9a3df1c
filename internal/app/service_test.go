package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	service "github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/pkg/aggregate"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/model"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func ptr(v float64) *float64 { return &v }

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			So(stats["driver"], ShouldEqual, config.DriverMemory)
			So(stats["maxRecords"], ShouldEqual, repository.DefaultMaxRecords)
			So(svc.Location(), ShouldEqual, time.Local)
		})
	})

	Convey("Given options from configuration", t, func() {
		cfg := config.New()
		cfg.TimeZone = "UTC"
		cfg.StoreMaxRecords = 50

		opts, err := service.OptionsFromConfig(cfg)
		So(err, ShouldBeNil)
		svc := service.New(opts...)

		So(svc.Location(), ShouldEqual, time.UTC)
		So(svc.GetStats()["maxRecords"], ShouldEqual, 50)

		Convey("An unknown zone is a config error", func() {
			cfg.TimeZone = "Mars/Olympus"
			_, err := service.OptionsFromConfig(cfg)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was not started", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Reads and writes fail", func() {
			_, err := svc.Ingest(ctx, model.MetricEvent{SessionID: "s"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Query(ctx, repository.Filter{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Summary(ctx, repository.Filter{}, false)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("Stop is a no-op", func() {
			So(svc.Stop(), ShouldBeNil)
		})
	})

	Convey("Given an unknown driver", t, func() {
		svc := service.New(service.WithDriver("sqlite"))

		Convey("Start fails with a config error", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldBeFalse)
		})
	})

	Convey("Given a started service", t, func() {
		svc := service.New()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Starting twice is harmless", func() {
			So(svc.Start(ctx), ShouldBeNil)
		})

		Convey("Stats report the store", func() {
			_, err := svc.Ingest(ctx, model.MetricEvent{SessionID: "s", Timestamp: 1})
			So(err, ShouldBeNil)

			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["records"], ShouldEqual, 1)
			So(stats["ingested"], ShouldEqual, int64(1))
			So(stats, ShouldContainKey, "uptimeSeconds")
		})

		Convey("Stop closes the store and later writes fail", func() {
			So(svc.Stop(), ShouldBeNil)
			_, err := svc.Ingest(ctx, model.MetricEvent{SessionID: "s"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Ingest(t *testing.T) {
	Convey("Given a service on a mock clock", t, func() {
		mock := clock.NewMock()
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		mock.Set(now)
		svc := service.New(service.WithClock(mock), service.WithLocation(time.UTC))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("The client timestamp is replaced with the receipt time", func() {
			stored, err := svc.Ingest(ctx, model.MetricEvent{SessionID: "s1", Timestamp: 42, AppName: "shop"})
			So(err, ShouldBeNil)
			So(stored.Timestamp, ShouldEqual, now.UnixMilli())

			got, err := svc.Query(ctx, repository.Filter{})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].Timestamp, ShouldEqual, now.UnixMilli())
		})

		Convey("Records land in the day they were received", func() {
			_, err := svc.Ingest(ctx, model.MetricEvent{SessionID: "a"})
			So(err, ShouldBeNil)
			mock.Add(24 * time.Hour)
			_, err = svc.Ingest(ctx, model.MetricEvent{SessionID: "b"})
			So(err, ShouldBeNil)

			day := now.Add(24 * time.Hour)
			got, err := svc.Query(ctx, repository.Filter{StartDate: &day, EndDate: &day})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].SessionID, ShouldEqual, "b")
		})
	})
}

func TestService_Query(t *testing.T) {
	Convey("Given a service with a default limit of 3", t, func() {
		svc := service.New(service.WithDefaultLimit(3))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		for _, id := range []string{"a", "b", "c", "d", "e"} {
			_, err := svc.Ingest(ctx, model.MetricEvent{SessionID: id})
			So(err, ShouldBeNil)
		}

		Convey("A zero limit uses the default", func() {
			got, err := svc.Query(ctx, repository.Filter{})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 3)
			So(got[2].SessionID, ShouldEqual, "e")
		})

		Convey("An explicit limit wins", func() {
			got, err := svc.Query(ctx, repository.Filter{Limit: 5})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 5)
		})

		Convey("An invalid filter is reported", func() {
			_, err := svc.Query(ctx, repository.Filter{Limit: -1})
			So(errors.Is(err, repository.ErrInvalidFilter), ShouldBeTrue)
		})
	})
}

func TestService_Summary(t *testing.T) {
	Convey("Given repeated snapshots of one session", t, func() {
		svc := service.New()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		rows := []model.MetricEvent{
			{SessionID: "a", AppName: "shop", LCP: ptr(1000)},
			{SessionID: "a", AppName: "shop", LCP: ptr(3000), CLS: ptr(0.3)},
			{SessionID: "b", AppName: "blog", Errors: []model.ErrorRecord{{Message: "x"}, {Message: "y"}}},
		}
		for _, rec := range rows {
			_, err := svc.Ingest(ctx, rec)
			So(err, ShouldBeNil)
		}

		Convey("Every row counts by default", func() {
			r, err := svc.Summary(ctx, repository.Filter{}, false)
			So(err, ShouldBeNil)
			So(r.AvgLCP, ShouldEqual, 2000)
			So(r.AvgCLS, ShouldEqual, 0.3)
			So(r.TotalErrors, ShouldEqual, 2)
			So(r.TotalSessions, ShouldEqual, 2)
			So(r.DuplicateRows, ShouldEqual, 1)
			So(r.Grades[model.VitalLCP], ShouldEqual, aggregate.GradeGood)
			So(r.Grades[model.VitalCLS], ShouldEqual, aggregate.GradePoor)
			So(r.Grades, ShouldNotContainKey, model.VitalFID)
		})

		Convey("latestOnly keeps the last snapshot", func() {
			r, err := svc.Summary(ctx, repository.Filter{}, true)
			So(err, ShouldBeNil)
			So(r.AvgLCP, ShouldEqual, 3000)
			So(r.TotalRecords, ShouldEqual, 2)
			So(r.Grades[model.VitalLCP], ShouldEqual, aggregate.GradeNeedsImprovement)
		})

		Convey("The app filter applies", func() {
			r, err := svc.Summary(ctx, repository.Filter{AppName: "blog"}, false)
			So(err, ShouldBeNil)
			So(r.TotalRecords, ShouldEqual, 1)
			So(r.AvgLCP, ShouldEqual, 0)
			So(r.AppBreakdown, ShouldResemble, map[string]int{"blog": 1})
		})
	})
}
