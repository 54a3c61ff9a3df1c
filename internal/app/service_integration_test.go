package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	service "github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/pkg/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceDrivers(t *testing.T) {
	drivers := map[string]func() []service.Option{
		config.DriverMemory: func() []service.Option {
			return []service.Option{service.WithDriver(config.DriverMemory)}
		},
		config.DriverFile: func() []service.Option {
			return []service.Option{
				service.WithDriver(config.DriverFile),
				service.WithFilePath(filepath.Join(t.TempDir(), "metrics.json")),
			}
		},
		config.DriverRedis: func() []service.Option {
			mr := miniredis.RunT(t)
			return []service.Option{
				service.WithDriver(config.DriverRedis),
				service.WithRedis(mr.Addr(), "", 0, "test:metrics", 1),
			}
		},
	}

	for name, optsFn := range drivers {
		Convey(fmt.Sprintf("Given a service on the %s driver capped at 5", name), t, func() {
			opts := append(optsFn(), service.WithMaxRecords(5))
			svc := service.New(opts...)
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			for i := 0; i < 7; i++ {
				_, err := svc.Ingest(ctx, model.MetricEvent{
					SessionID: fmt.Sprintf("s%d", i),
					AppName:   "shop",
					LCP:       ptr(float64(1000 * (i + 1))),
				})
				So(err, ShouldBeNil)
			}

			Convey("Only the newest records are kept", func() {
				got, err := svc.Query(ctx, repository.Filter{})
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 5)
				So(got[0].SessionID, ShouldEqual, "s2")
				So(got[4].SessionID, ShouldEqual, "s6")
				So(svc.GetStats()["records"], ShouldEqual, 5)
			})

			Convey("The summary covers the retained records", func() {
				r, err := svc.Summary(ctx, repository.Filter{}, false)
				So(err, ShouldBeNil)
				So(r.TotalRecords, ShouldEqual, 5)
				So(r.AvgLCP, ShouldEqual, 5000)
			})
		})
	}
}

func TestServiceFilePersistence(t *testing.T) {
	Convey("Given a file-backed service", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "metrics.json")
		ctx := context.Background()

		first := service.New(service.WithDriver(config.DriverFile), service.WithFilePath(path))
		So(first.Start(ctx), ShouldBeNil)
		_, err := first.Ingest(ctx, model.MetricEvent{SessionID: "kept"})
		So(err, ShouldBeNil)
		So(first.Stop(), ShouldBeNil)

		Convey("A restarted service sees earlier records", func() {
			second := service.New(service.WithDriver(config.DriverFile), service.WithFilePath(path))
			So(second.Start(ctx), ShouldBeNil)
			defer second.Stop()

			got, err := second.Query(ctx, repository.Filter{})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].SessionID, ShouldEqual, "kept")
		})
	})
}

func TestServiceRedisUnavailable(t *testing.T) {
	Convey("Given a redis driver pointing at a stopped server", t, func() {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		svc := service.New(
			service.WithDriver(config.DriverRedis),
			service.WithRedis(addr, "", 0, "", 1),
		)

		Convey("Start fails with a store error", func() {
			err := svc.Start(context.Background())
			So(err, ShouldNotBeNil)
			So(errors.Is(err, repository.ErrStore), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldBeFalse)
		})
	})
}
