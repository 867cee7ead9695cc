package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inventory-engine/internal/core"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	MovementsTotal      *prometheus.CounterVec
	MovedUnitsTotal     *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	SweepRunsTotal      *prometheus.CounterVec
	SweepExpiredTotal   prometheus.Counter
	SweepDuration       prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		MovementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_movements_total",
				Help: "Committed stock movements by type",
			},
			[]string{"type"},
		),
		MovedUnitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_moved_units_total",
				Help: "Units carried by committed stock movements, by type",
			},
			[]string{"type"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_engine_errors_total",
				Help: "Errors returned to callers by error code",
			},
			[]string{"code"},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_sweep_runs_total",
				Help: "Reservation expiry sweeps by outcome",
			},
			[]string{"outcome"},
		),
		SweepExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_sweep_expired_total",
			Help: "Reservations expired by the sweep",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reservation_sweep_duration_seconds",
			Help:    "Duration of reservation expiry sweeps",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.MovementsTotal, m.MovedUnitsTotal, m.ErrorsTotal,
		m.SweepRunsTotal, m.SweepExpiredTotal, m.SweepDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// MovementsCommitted implements core.MovementNotifier.
func (m *Metrics) MovementsCommitted(_ context.Context, movements []core.Movement) {
	for _, mv := range movements {
		m.MovementsTotal.WithLabelValues(string(mv.Type)).Inc()
		m.MovedUnitsTotal.WithLabelValues(string(mv.Type)).Add(float64(mv.Quantity))
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "undefined"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveError(code string) {
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveSweep(res core.SweepResult, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Failed > 0:
		outcome = "partial"
	}
	m.SweepRunsTotal.WithLabelValues(outcome).Inc()
	m.SweepExpiredTotal.Add(float64(res.Expired))
	m.SweepDuration.Observe(res.Elapsed.Seconds())
}
