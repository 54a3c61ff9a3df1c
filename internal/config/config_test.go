package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/pulse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 1<<20)
			convey.So(cfg.StoreMaxRecords, convey.ShouldEqual, 10_000)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the default location is local time", func() {
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc, convey.ShouldEqual, time.Local)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configurations", t, func() {
		cases := map[string]func(*config.Config){
			"relative endpoint":  func(c *config.Config) { c.APIEndpoint = "api/metrics" },
			"zero body cap":      func(c *config.Config) { c.MaxBodyBytes = 0 },
			"zero limit":         func(c *config.Config) { c.DefaultLimit = 0 },
			"zero retention":     func(c *config.Config) { c.StoreMaxRecords = 0 },
			"unknown log format": func(c *config.Config) { c.LogFormat = "xml" },
			"file without path": func(c *config.Config) {
				c.StoreDriver = config.DriverFile
				c.StoreFilePath = ""
			},
			"redis without addr": func(c *config.Config) {
				c.StoreDriver = config.DriverRedis
				c.RedisAddr = ""
			},
			"unknown zone": func(c *config.Config) { c.TimeZone = "Mars/Olympus" },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			if err == nil {
				t.Errorf("%s: expected validation error", name)
			}
		}
	})

	convey.Convey("Given a named time zone", t, func() {
		cfg := config.New()
		cfg.TimeZone = "UTC"
		loc, err := cfg.Location()
		convey.So(err, convey.ShouldBeNil)
		convey.So(loc, convey.ShouldEqual, time.UTC)
	})
}
