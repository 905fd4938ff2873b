// Package metrics exposes Prometheus instrumentation for backend queries and
// the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rubiojr/logsearch/pkg/query"
)

const namespace = "logsearch"

// Metrics holds the collectors of one server instance.
type Metrics struct {
	registry *prometheus.Registry

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	requests      *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "queries_total",
				Help:      "Total number of index queries",
			},
			[]string{"collection", "result"}, // result: ok, error
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "query_duration_seconds",
				Help:      "Duration of index queries in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collection"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"route", "code"},
		),
	}
	m.registry.MustRegister(m.queries, m.queryDuration, m.requests)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterGauge adds a gauge whose value is read from fn at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps a query client, counting and timing every query.
func (m *Metrics) Instrument(next query.Client) query.Client {
	return query.ClientFunc(func(ctx context.Context, q *query.Query) (*query.Result, error) {
		start := time.Now()
		res, err := next.Query(ctx, q)
		m.queryDuration.WithLabelValues(q.Collection).Observe(time.Since(start).Seconds())

		result := "ok"
		if err != nil {
			result = "error"
		}
		m.queries.WithLabelValues(q.Collection, result).Inc()
		return res, err
	})
}

// ObserveRequest counts one API request.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
