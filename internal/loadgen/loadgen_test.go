package loadgen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/arcade/internal/adapters/http/api"
	"github.com/okian/arcade/internal/adapters/mq/queue"
	"github.com/okian/arcade/internal/adapters/repository"
	service "github.com/okian/arcade/internal/app"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/snapshot"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, filepath.Join(t.TempDir(), "arcade.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	q := queue.NewInMemoryQueue(queue.WithCapacity(10_000))
	svc := service.New(db, q, service.WithWorkerCount(4))
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	srv := httptest.NewServer(api.NewServer(svc, api.WithSubmitRateLimit(0, 0)).Handler(nil))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(context.Background())
		_ = q.Close()
		_ = db.Close()
	})
	return srv
}

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:  baseURL,
		Sessions: 40,
		Games:    4,
		Workers:  4,
		Timeout:  5 * time.Second,
		Settle:   500 * time.Millisecond,
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running service with an empty catalog", t, func() {
		srv := newServer(t)
		ctx := context.Background()

		Convey("When the load run reads the catalog from the API", func() {
			stats, err := Run(ctx, testConfig(srv.URL))

			Convey("Then every session is accounted for and retention held", func() {
				So(err, ShouldBeNil)
				So(stats.CatalogSource, ShouldEqual, snapshot.SourceOrigin)
				So(stats.GamesSeeded, ShouldEqual, 4)
				So(stats.Submitted, ShouldEqual, 40)
				So(stats.Finalized+stats.FinalizePruned, ShouldEqual, 40)
				So(stats.VerifiedKept+stats.VerifiedPruned, ShouldEqual, 40)
				So(stats.Mismatches, ShouldEqual, 0)
				So(stats.Reorders, ShouldEqual, reorderRounds)
			})

			Convey("And a second run reuses the seeded games", func() {
				again, err := Run(ctx, testConfig(srv.URL))
				So(err, ShouldBeNil)
				So(again.GamesSeeded, ShouldEqual, 0)
			})
		})

		Convey("When a snapshot edge serves the catalog", func() {
			var hits atomic.Int64
			edge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"games":[]}`))
			}))
			defer edge.Close()

			cfg := testConfig(srv.URL)
			cfg.SnapshotBaseURL = edge.URL
			cfg.OutputFile = filepath.Join(t.TempDir(), "sessions.json")
			stats, err := Run(ctx, cfg)

			Convey("Then the catalog comes from the edge", func() {
				So(err, ShouldBeNil)
				So(stats.CatalogSource, ShouldEqual, snapshot.SourceSnapshot)
				So(hits.Load(), ShouldBeGreaterThanOrEqualTo, 1)
				_, statErr := os.Stat(cfg.OutputFile)
				So(statErr, ShouldBeNil)
			})
		})
	})

	Convey("Given no service", t, func() {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Timeout = 200 * time.Millisecond

		Convey("The run fails at the health check", func() {
			_, err := Run(context.Background(), cfg)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

func TestVerifyPositions(t *testing.T) {
	Convey("Given a catalog listing", t, func() {
		var body string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))
		defer srv.Close()
		client := newHTTPClient(srv.URL, time.Second)
		stats := &Stats{}

		Convey("Distinct positions pass", func() {
			body = `{"success":true,"data":{"items":[{"id":"a","position":1,"isActive":true},{"id":"b","position":2,"isActive":true},{"id":"c","isActive":true}]}}`
			So(verifyPositions(context.Background(), client, stats), ShouldBeNil)
			So(stats.Mismatches, ShouldEqual, 0)
		})

		Convey("A shared position is a mismatch", func() {
			body = `{"success":true,"data":{"items":[{"id":"a","position":1,"isActive":true},{"id":"b","position":1,"isActive":true}]}}`
			So(verifyPositions(context.Background(), client, stats), ShouldBeNil)
			So(stats.Mismatches, ShouldEqual, 1)
		})
	})
}

func TestSessionGeneration(t *testing.T) {
	pos := 1
	games := []Game{{ID: "g1", Position: &pos, IsActive: true}}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given generated sessions", t, func() {
		stats := &Stats{}
		sessions := generateSessions(context.Background(), 200, games, now, stats)
		So(stats.SessionsGenerated, ShouldEqual, 200)

		Convey("Then they are second-aligned, in the past and attributed", func() {
			for _, s := range sessions {
				So(s.StartTime.Nanosecond(), ShouldEqual, 0)
				So(s.Duration%time.Second, ShouldEqual, 0)
				So(s.EndTime().After(now), ShouldBeFalse)
				So(s.SessionID, ShouldStartWith, "lg-")
				if s.ActivityType == "Game Play" {
					So(s.GameID, ShouldEqual, "g1")
				} else {
					So(s.GameID, ShouldBeEmpty)
					So(s.ExpectPruned, ShouldBeFalse)
				}
			}
		})
	})

	Convey("Expected retention follows the 30s rule", t, func() {
		cases := []struct {
			name   string
			s      Session
			pruned bool
		}{
			{"short game", Session{GameID: "g1", ActivityType: "Game Play", Duration: 10 * time.Second}, true},
			{"exactly 30s", Session{GameID: "g1", ActivityType: "Game Play", Duration: 30 * time.Second}, false},
			{"long game", Session{GameID: "g1", ActivityType: "Game Play", Duration: 45 * time.Second}, false},
			{"short login", Session{ActivityType: "Login", Duration: 5 * time.Second}, false},
			{"game play without game", Session{ActivityType: "Game Play", Duration: 5 * time.Second}, false},
		}
		for _, tc := range cases {
			tc.s.StartTime = now
			Convey(tc.name, func() {
				So(expectPruned(tc.s), ShouldEqual, tc.pruned)
			})
		}
	})
}
