package web

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	requests       *prometheus.CounterVec
	viewCache      *prometheus.CounterVec
	reloadErrors   prometheus.Counter
	reloadDuration prometheus.Histogram
	events         prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "calgrid",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		viewCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "calgrid",
				Subsystem: "web",
				Name:      "view_cache_lookups_total",
				Help:      "Stateless view cache lookups by result.",
			},
			[]string{"result"},
		),
		reloadErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "calgrid",
				Subsystem: "events",
				Name:      "reload_errors_total",
				Help:      "Event source reloads that failed.",
			},
		),
		reloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "calgrid",
				Subsystem: "events",
				Name:      "reload_duration_seconds",
				Help:      "Time spent reloading the event source.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		events: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "calgrid",
				Subsystem: "events",
				Name:      "loaded",
				Help:      "Events currently held by the calendar engine.",
			},
		),
	}

	collectors := []prometheus.Collector{m.requests, m.viewCache, m.reloadErrors, m.reloadDuration, m.events}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("web: register metrics: %w", err)
		}
	}
	return m, nil
}

// instrument counts responses of h under the given route label.
func (m *metrics) instrument(route string, h http.Handler) http.Handler {
	counter := m.requests.MustCurryWith(prometheus.Labels{"route": route})
	return promhttp.InstrumentHandlerCounter(counter, h)
}
