// Package metrics exposes workflow activity as Prometheus collectors fed by
// lifecycle hooks.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/hooks"
	"github.com/soyeahso/leadreach/internal/logging"
	"github.com/soyeahso/leadreach/internal/store"
)

const namespace = "leadreach"

// Metrics owns a private registry with the workflow collectors.
type Metrics struct {
	reg *prometheus.Registry
	log *logging.Logger

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsFailed    prometheus.Counter
	runDuration   prometheus.Histogram
	steps         *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	reviews       prometheus.Counter
	emailsSent    prometheus.Counter
}

// New registers the workflow collectors plus the Go and process collectors.
func New(log *logging.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: log.Sub("metrics"),
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Synchronous workflow runs started, by trigger.",
		}, []string{"trigger"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Runs that reached the end node, by whether an email was sent.",
		}, []string{"sent"}),
		runsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Runs aborted by an error.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of runs that reached the end node.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_committed_total",
			Help:      "Checkpointed steps, by node.",
		}, []string{"node"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations, by tool and outcome.",
		}, []string{"tool", "ok"}),
		reviews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_requested_total",
			Help:      "Review requests submitted to the review service.",
		}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Approved emails handed to the mailer.",
		}),
	}
	m.reg.MustRegister(
		m.runsStarted, m.runsCompleted, m.runsFailed, m.runDuration,
		m.steps, m.toolCalls, m.reviews, m.emailsSent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Attach subscribes the collectors to every lifecycle event.
func (m *Metrics) Attach(hm *hooks.Manager) {
	hm.OnAll("metrics", m.observe)
}

// WatchStore adds a gauge of stored conversations per status, read from the
// checkpointer at scrape time.
func (m *Metrics) WatchStore(cp store.Checkpointer) {
	m.reg.MustRegister(&conversationCollector{store: cp, log: m.log})
}

func (m *Metrics) observe(_ context.Context, p hooks.Payload) error {
	switch p.Event {
	case hooks.EventRunStarted:
		m.runsStarted.WithLabelValues(str(p.Data["trigger"])).Inc()
	case hooks.EventRunCompleted:
		sent, _ := p.Data["sent"].(bool)
		m.runsCompleted.WithLabelValues(strconv.FormatBool(sent)).Inc()
		if d, ok := p.Data["duration"].(float64); ok {
			m.runDuration.Observe(d)
		}
	case hooks.EventRunFailed:
		m.runsFailed.Inc()
	case hooks.EventStepCommitted:
		m.steps.WithLabelValues(str(p.Data["node"])).Inc()
	case hooks.EventToolExecuted:
		ok, _ := p.Data["ok"].(bool)
		m.toolCalls.WithLabelValues(str(p.Data["tool"]), strconv.FormatBool(ok)).Inc()
	case hooks.EventReviewRequested:
		m.reviews.Inc()
	case hooks.EventEmailSent:
		m.emailsSent.Inc()
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

var conversationsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "conversations"),
	"Stored conversations, by status.",
	[]string{"status"}, nil,
)

type conversationCollector struct {
	store store.Checkpointer
	log   *logging.Logger
}

func (c *conversationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- conversationsDesc
}

func (c *conversationCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[domain.Status]int{
		domain.StatusRunning:   0,
		domain.StatusSuspended: 0,
		domain.StatusTerminal:  0,
	}
	all, err := c.store.List(context.Background(), store.ListOptions{})
	if err != nil {
		c.log.Warn().Err(err).Msg("listing conversations for metrics")
		return
	}
	for _, s := range all {
		counts[s.Status]++
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(conversationsDesc, prometheus.GaugeValue, float64(n), string(status))
	}
}
