// Package metrics provides the Prometheus collectors for recordbase.
package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recordbase"

// Collector holds every metric the server records.
type Collector struct {
	reg prometheus.Registerer

	// HTTP
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	AuthFailures     *prometheus.CounterVec

	// Domain
	ObjectWrites     *prometheus.CounterVec
	WriteRejections  *prometheus.CounterVec
	Reverts          *prometheus.CounterVec
	ShareSubmissions *prometheus.CounterVec
	SharePurged      prometheus.Counter

	// Config
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New registers the collectors with reg, or with the default registry when
// reg is nil. Tests pass a fresh prometheus.NewRegistry.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		reg: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		RequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credentials by reason.",
		}, []string{"reason"}),

		ObjectWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_writes_total",
			Help:      "Committed data object writes by operation.",
		}, []string{"op"}),
		WriteRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_rejections_total",
			Help:      "Writes refused by validation, uniqueness, workflow or configuration checks.",
		}, []string{"kind"}),
		Reverts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reverts_total",
			Help:      "Revert requests by result.",
		}, []string{"result"}),
		ShareSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_submissions_total",
			Help:      "Share link submissions by result.",
		}, []string{"result"}),
		SharePurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_links_purged_total",
			Help:      "Expired share links removed.",
		}),

		ConfigReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Successful configuration reloads.",
		}),
		ConfigReloadErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reload_errors_total",
			Help:      "Failed configuration reloads.",
		}),
		ConfigLastReload: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_last_reload_timestamp_seconds",
			Help:      "Unix time of the last successful configuration reload.",
		}),
	}
}

// WatchDB exports connection pool statistics for db.
func (c *Collector) WatchDB(db *sql.DB, name string) error {
	return c.reg.Register(collectors.NewDBStatsCollector(db, name))
}
