// Package metrics exposes Prometheus instrumentation for the control loop
// and the announcement pipeline.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tarmac-rally/codriver/internal/log"
)

// Collector holds every metric the process exports. A nil *Collector is a
// valid no-op so instrumentation can be disabled wholesale.
type Collector struct {
	registry *prometheus.Registry

	tickDuration   prometheus.Histogram
	notesGenerated prometheus.Counter
	callsAnnounced prometheus.Counter
	callsMissed    prometheus.Counter
	offRoad        prometheus.Gauge
	pathLength     prometheus.Gauge

	lastAnnounced uint64
	lastMissed    uint64
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codriver",
			Name:      "tick_duration_seconds",
			Help:      "Full projection-to-scheduling pass duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		notesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "codriver",
			Name:      "pacenotes_generated_total",
			Help:      "Pacenotes produced across all ticks.",
		}),
		callsAnnounced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "codriver",
			Name:      "calls_announced_total",
			Help:      "Callouts pushed to the speech sink.",
		}),
		callsMissed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "codriver",
			Name:      "calls_missed_total",
			Help:      "Pending callouts dropped after their window passed.",
		}),
		offRoad: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codriver",
			Name:      "off_road",
			Help:      "1 while the position does not snap to any road.",
		}),
		pathLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codriver",
			Name:      "projected_path_meters",
			Help:      "Length of the most recent projected path.",
		}),
	}
}

// ObserveTick records one control-loop pass.
func (c *Collector) ObserveTick(d time.Duration, notes int, offRoad bool, pathLen float64) {
	if c == nil {
		return
	}
	c.tickDuration.Observe(d.Seconds())
	c.notesGenerated.Add(float64(notes))
	if offRoad {
		c.offRoad.Set(1)
	} else {
		c.offRoad.Set(0)
	}
	c.pathLength.Set(pathLen)
}

// SetCallCounts syncs the announce/miss counters to the scheduler's totals.
func (c *Collector) SetCallCounts(announced, missed uint64) {
	if c == nil {
		return
	}
	// Counters only move forward; feed them deltas.
	c.addTo(c.callsAnnounced, &c.lastAnnounced, announced)
	c.addTo(c.callsMissed, &c.lastMissed, missed)
}

func (c *Collector) addTo(ctr prometheus.Counter, last *uint64, now uint64) {
	if now > *last {
		ctr.Add(float64(now - *last))
		*last = now
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics endpoint until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info("metrics: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
