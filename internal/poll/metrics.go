package poll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"jobtrack-engine/internal/emailpoll"
)

const (
	metricsNamespace = "jobtrack"
	metricsSubsystem = "email_poll"
)

// Metrics holds the poll runner's Prometheus collectors.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	EmailsTotal     *prometheus.CounterVec
	DetectedTotal   prometheus.Counter
	StatusUpdates   prometheus.Counter
	RateLimited     prometheus.Counter
	AccountDuration prometheus.Histogram
}

// NewMetrics registers the collectors on reg, or the default registerer when
// reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "runs_total",
			Help:      "Poll runs by outcome (ok, error, busy, backoff).",
		}, []string{"outcome"}),
		EmailsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "emails_total",
			Help:      "Messages seen by upsert outcome.",
		}, []string{"outcome"}),
		DetectedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "status_detected_total",
			Help:      "Messages whose text matched a status phrase.",
		}),
		StatusUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "job_status_updates_total",
			Help:      "Job status updates applied from email.",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rate_limited_total",
			Help:      "Account runs that hit a provider 429.",
		}),
		AccountDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "account_duration_seconds",
			Help:      "Wall time of one account's poll.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (m *Metrics) observe(res emailpoll.Result) {
	if m == nil {
		return
	}
	m.EmailsTotal.WithLabelValues(string(emailpoll.Inserted)).Add(float64(res.Inserted))
	m.EmailsTotal.WithLabelValues(string(emailpoll.Updated)).Add(float64(res.Updated))
	m.EmailsTotal.WithLabelValues(string(emailpoll.Skipped)).Add(float64(res.Skipped))
	m.DetectedTotal.Add(float64(res.DetectedCount))
}

func (m *Metrics) run(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}
