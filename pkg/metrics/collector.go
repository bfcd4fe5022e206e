package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

const namespace = "sessionkit"

// Collector counts session lifecycle signals.
type Collector struct {
	created       prometheus.Counter
	evicted       prometheus.Counter
	revoked       *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
	purgeRuns     *prometheus.CounterVec
	purgeDuration prometheus.Histogram
}

var _ session.Observer = (*Collector)(nil)

// NewCollector creates the counters and registers them with reg.
// It panics if any of them is already registered, like prometheus.MustRegister.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted to keep a user under the session cap.",
		}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked, by reason.",
		}, []string{"reason"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_anomalies_total",
			Help:      "Anomalous validations, by the action taken.",
		}, []string{"action"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit writes abandoned, by event type.",
		}, []string{"event_type"}),
		purgeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_purge_runs_total",
			Help:      "Audit purge runs, by result.",
		}, []string{"result"}),
		purgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_purge_duration_seconds",
			Help:      "Duration of audit purge runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.created,
			c.evicted,
			c.revoked,
			c.anomalies,
			c.auditFailures,
			c.purgeRuns,
			c.purgeDuration,
		)
	}
	return c
}

func (c *Collector) SessionCreated(string) { c.created.Inc() }

func (c *Collector) SessionEvicted(string) { c.evicted.Inc() }

func (c *Collector) SessionRevoked(_, reason string) {
	c.revoked.WithLabelValues(reason).Inc()
}

func (c *Collector) AnomalyDetected(_, action string) {
	c.anomalies.WithLabelValues(action).Inc()
}

func (c *Collector) AuditFailed(_, eventType string, _ error) {
	c.auditFailures.WithLabelValues(eventType).Inc()
}

// ObservePurge records one purge run.
func (c *Collector) ObservePurge(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.purgeRuns.WithLabelValues(result).Inc()
	c.purgeDuration.Observe(d.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
