package pipeline

import (
	"log/slog"

	"betterlife-pipeline/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker counts what a run fetched, retried, dropped and wrote.
// Each tracker owns its registry so runs never share counters.
type Tracker struct {
	registry *prometheus.Registry

	recordsFetched prometheus.Counter
	pagesFetched   prometheus.Counter
	fetchRetries   prometheus.Counter
	pagesDropped   prometheus.Counter
	cacheHits      prometheus.Counter
	pagesWritten   *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
}

// NewTracker creates a tracker with all counters registered
func NewTracker() *Tracker {
	t := &Tracker{
		registry: prometheus.NewRegistry(),
		recordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "records_fetched_total",
			Help:      "Normalized records returned by the upstream API.",
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "fetch_pages_total",
			Help:      "Fetch pages requested.",
		}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "fetch_retries_total",
			Help:      "Fetch requests repeated after a non-2xx response.",
		}),
		pagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "fetch_pages_dropped_total",
			Help:      "Fetch pages treated as empty after the retry also failed.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "fetch_cache_hits_total",
			Help:      "Fetch pages served from the response cache.",
		}),
		pagesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "pages_written_total",
			Help:      "Output page files written.",
		}, []string{"format"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "records_written_total",
			Help:      "Records written to output page files.",
		}, []string{"format"}),
	}

	t.registry.MustRegister(
		t.recordsFetched,
		t.pagesFetched,
		t.fetchRetries,
		t.pagesDropped,
		t.cacheHits,
		t.pagesWritten,
		t.recordsWritten,
	)
	return t
}

// PageFetched counts one fetched page and the records it carried.
func (t *Tracker) PageFetched(records int) {
	t.pagesFetched.Inc()
	t.recordsFetched.Add(float64(records))
}

// Retried counts a second attempt at a page.
func (t *Tracker) Retried() { t.fetchRetries.Inc() }

// Dropped counts a page given up on after its retry failed.
func (t *Tracker) Dropped() { t.pagesDropped.Inc() }

// CacheHit counts a page served from the response cache.
func (t *Tracker) CacheHit() { t.cacheHits.Inc() }

// PageWritten counts one output file of format and its records.
func (t *Tracker) PageWritten(format model.Format, records int) {
	t.pagesWritten.WithLabelValues(string(format)).Inc()
	t.recordsWritten.WithLabelValues(string(format)).Add(float64(records))
}

// Registry exposes the tracker's metrics, e.g. for a push gateway.
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// LogSummary writes one log line per non-zero metric series.
func (t *Tracker) LogSummary(runID string) {
	families, err := t.registry.Gather()
	if err != nil {
		slog.Warn("failed to gather run metrics", "run_id", runID, "err", err)
		return
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			value := m.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			attrs := []any{"run_id", runID, "metric", family.GetName(), "value", value}
			for _, label := range m.GetLabel() {
				attrs = append(attrs, label.GetName(), label.GetValue())
			}
			slog.Info("run metric", attrs...)
		}
	}
}
