package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/arcade/internal/adapters/mq/queue"
	"github.com/okian/arcade/internal/config"
	"github.com/okian/arcade/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainFunction(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	log := logger.Get()

	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("ARCADE_ADDR", ":8080")
			t.Setenv("ARCADE_QUEUE_SIZE", "1000")
			t.Setenv("ARCADE_WORKER_COUNT", "4")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the application is built with an in-memory queue", func() {
			ctx := context.Background()
			cfg := config.New(ctx)
			cfg.DatabasePath = filepath.Join(t.TempDir(), "arcade.db")
			cfg.WorkerCount = 2

			app, err := newApplication(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer app.close(ctx, log)

			_, inMemory := app.queue.(*queue.InMemoryQueue)
			convey.So(inMemory, convey.ShouldBeTrue)

			convey.Convey("Then the API and the docs are served", func() {
				for _, path := range []string{"/healthz", "/readyz", "/stats", "/api-docs", "/openapi.yaml", "/cdn/version"} {
					w := httptest.NewRecorder()
					app.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("And the snapshot state carries the published version", func() {
				convey.So(app.state.Version(), convey.ShouldEqual, 1)
				convey.So(app.state.Enabled(), convey.ShouldBeTrue)
			})

			convey.Convey("And submissions are accepted", func() {
				w := httptest.NewRecorder()
				body := `{"sessionId":"s1","activityType":"Login","startTime":"2026-01-01T00:00:00Z"}`
				app.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analytics", strings.NewReader(body)))
				convey.So(w.Code, convey.ShouldEqual, http.StatusAccepted)
			})
		})

		convey.Convey("When a queue path is configured", func() {
			ctx := context.Background()
			cfg := config.New(ctx)
			dir := t.TempDir()
			cfg.DatabasePath = filepath.Join(dir, "arcade.db")
			cfg.QueuePath = filepath.Join(dir, "queue")
			cfg.WorkerCount = 1

			app, err := newApplication(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer app.close(ctx, log)

			convey.Convey("Then the durable badger queue is used", func() {
				_, durable := app.queue.(*queue.BadgerQueue)
				convey.So(durable, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When logging is configured", func() {
			cfg := config.New(context.Background())

			convey.Convey("Then an unknown level is reported and info is kept", func() {
				cfg.LogLevel = "loud"
				convey.So(configureLogging(cfg), convey.ShouldNotBeNil)
			})

			convey.Convey("And a valid level is applied", func() {
				cfg.LogLevel = "debug"
				convey.So(configureLogging(cfg), convey.ShouldBeNil)
				_ = logger.SetLevelString("info")
			})
		})
	})
}
