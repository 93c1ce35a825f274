package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a dedicated registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithRefreshInterval(time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			m.eventsAccepted.Inc()

			Convey("Then families are registered under the namespace with const labels", func() {
				So(m.refreshInterval, ShouldEqual, time.Second)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_events_accepted_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering the same families twice on one registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording cache activity", func() {
			before := testutil.ToFloat64(globalManager.cacheHits.WithLabelValues("games"))
			RecordCacheHit("games")
			RecordCacheInvalidation("games", 3)

			Convey("Then the namespace series move", func() {
				So(testutil.ToFloat64(globalManager.cacheHits.WithLabelValues("games")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.cacheInvalidations.WithLabelValues("games")), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})

		Convey("When recording snapshot reads", func() {
			before := testutil.ToFloat64(globalManager.snapshotFetches.WithLabelValues("origin"))
			RecordSnapshotFetch("origin", 12)
			UpdateSnapshotVersion(7)

			Convey("Then the source counter and version gauge update", func() {
				So(testutil.ToFloat64(globalManager.snapshotFetches.WithLabelValues("origin")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.snapshotVersion), ShouldEqual, 7)
			})
		})

		Convey("When recording queue and ingestion activity", func() {
			before := testutil.ToFloat64(globalManager.eventsPruned)
			RecordEventPruned()
			UpdateQueueDepth(42)

			Convey("Then counters and gauges reflect it", func() {
				So(testutil.ToFloat64(globalManager.eventsPruned), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.queueDepth), ShouldEqual, 42)
			})
		})

		Convey("When recording an HTTP request", func() {
			RecordHTTPRequest("/analytics", "POST", "202", 3.5)

			Convey("Then it is exposed on the registry", func() {
				n, err := testutil.GatherAndCount(GetRegistry(), "arcade_http_requests_total")
				So(err, ShouldBeNil)
				So(n, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When sampling runtime metrics", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				RunSystemSampler(ctx)
				close(done)
			}()
			cancel()
			<-done

			Convey("Then goroutines are reported", func() {
				So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldBeGreaterThan, 0)
			})
		})
	})
}
