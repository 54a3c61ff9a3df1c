package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	app "github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewMux(t *testing.T) {
	convey.Convey("Given a mux built from default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := app.New()
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()
		mux := newMux(ctx, cfg, svc)

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		convey.Convey("Then every surface is routed", func() {
			for _, path := range []string{"/", "/healthz", "/stats", "/dashboard", "/api-docs", "/openapi.yaml", cfg.APIEndpoint, cfg.APIEndpoint + "/summary"} {
				convey.So(get(path).Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("And unknown paths fall through to the site", func() {
			convey.So(get("/nope").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a running server", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		base := "http://" + ln.Addr().String()

		cfg := config.New()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, ln, logger.Nop()) }()

		stopped := false
		shutdown := func() error {
			cancel()
			select {
			case err := <-done:
				stopped = true
				return err
			case <-time.After(5 * time.Second):
				return context.DeadlineExceeded
			}
		}
		defer func() {
			if !stopped {
				_ = shutdown()
			}
		}()

		client := &http.Client{Timeout: 2 * time.Second}

		convey.Convey("A posted record can be read back", func() {
			resp, err := client.Post(base+cfg.APIEndpoint, "application/json",
				strings.NewReader(`{"sessionId":"s1","timestamp":1,"appName":"shop","lcp":900}`))
			convey.So(err, convey.ShouldBeNil)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			resp, err = client.Get(base + cfg.APIEndpoint + "?appName=shop")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			var got []map[string]any
			convey.So(json.NewDecoder(resp.Body).Decode(&got), convey.ShouldBeNil)
			convey.So(got, convey.ShouldHaveLength, 1)
			convey.So(got[0]["sessionId"], convey.ShouldEqual, "s1")
		})

		convey.Convey("Cancelling the context shuts down cleanly", func() {
			convey.So(shutdown(), convey.ShouldBeNil)
			_, err := client.Get(base + "/healthz")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRunInvalidConfig(t *testing.T) {
	convey.Convey("Given an unknown time zone", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		defer ln.Close()

		cfg := config.New()
		cfg.TimeZone = "Nowhere/Special"

		convey.Convey("Then run fails before serving", func() {
			convey.So(run(context.Background(), cfg, ln, logger.Nop()), convey.ShouldNotBeNil)
		})
	})
}
