// Package metrics exposes Prometheus collectors for the bot and serves them
// over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mergebot"

// Outcome labels for composites.
const (
	OutcomeOK              = "ok"
	OutcomeDecodeFailed    = "decode_failed"
	OutcomeCompositeFailed = "composite_failed"
)

// Collectors groups the bot's metrics.
type Collectors struct {
	Updates         *prometheus.CounterVec
	Composites      *prometheus.CounterVec
	ComposeDuration prometheus.Histogram
	Sends           *prometheus.CounterVec
	Jobs            *prometheus.CounterVec
}

// New registers the collectors on reg. sessions, when non-nil, backs the
// active sessions gauge.
func New(reg prometheus.Registerer, sessions func() int) *Collectors {
	c := &Collectors{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound conversation events by kind.",
		}, []string{"kind"}),
		Composites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "composites_total",
			Help:      "Decode and composite attempts by outcome.",
		}, []string{"outcome"}),
		ComposeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compose_duration_seconds",
			Help:      "Time spent compositing and encoding one image.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Outbound Telegram messages by kind and status.",
		}, []string{"kind", "status"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_jobs_total",
			Help:      "Outbound dispatcher jobs by action and final status.",
		}, []string{"action", "status"}),
	}
	reg.MustRegister(c.Updates, c.Composites, c.ComposeDuration, c.Sends, c.Jobs)
	if sessions != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Chats with a merge in progress.",
		}, func() float64 { return float64(sessions()) }))
	}
	return c
}

// ObserveUpdate counts an inbound event.
func (c *Collectors) ObserveUpdate(kind string) {
	if c == nil {
		return
	}
	c.Updates.WithLabelValues(kind).Inc()
}

// ObserveSend counts an outbound message attempt.
func (c *Collectors) ObserveSend(kind string, err error) {
	if c == nil {
		return
	}
	c.Sends.WithLabelValues(kind, status(err)).Inc()
}

// ObserveJob counts a dispatcher job once retries are exhausted or it succeeds.
func (c *Collectors) ObserveJob(action string, err error) {
	if c == nil {
		return
	}
	c.Jobs.WithLabelValues(action, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}
