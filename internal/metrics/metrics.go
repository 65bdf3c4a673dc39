// Package metrics exports transaction lifecycle events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vvka-141/txorch/internal/retry"
	"github.com/vvka-141/txorch/pkg/txorch"
)

const namespace = "txorch"

// Collector is a txorch.Listener that records phase outcomes, phase latency
// and retry decisions.
type Collector struct {
	phases    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	decisions *prometheus.CounterVec
	failures  *prometheus.CounterVec
	executes  *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		phases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tx",
				Name:      "phase_total",
				Help:      "Counter of finished transaction phases.",
			}, []string{"phase", "kind", "result"}),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tx",
				Name:      "phase_duration_seconds",
				Help:      "Bucketed histogram of transaction phase latency.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			}, []string{"phase", "kind"}),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "decision_total",
				Help:      "Counter of retry decisions.",
			}, []string{"decision", "kind"}),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "failure_total",
				Help:      "Counter of classified failures seen by policies.",
			}, []string{"code"}),
		executes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "manager",
				Name:      "execute_total",
				Help:      "Counter of finished execution loops.",
			}, []string{"result"}),
	}

	for _, col := range []prometheus.Collector{c.phases, c.latency, c.decisions, c.failures, c.executes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnEvent records ev.
func (c *Collector) OnEvent(ev txorch.Event) {
	switch ev.Type {
	case txorch.EventBeginEnd:
		c.observePhase("begin", ev)
	case txorch.EventCommitEnd:
		c.observePhase("commit", ev)
	case txorch.EventRollbackEnd:
		c.observePhase("rollback", ev)
	case txorch.EventCloseEnd:
		c.observePhase("close", ev)
	case txorch.EventWorkEnd:
		c.observePhase("work", ev)
	case txorch.EventRetry:
		c.observeDecision(ev.Decision)
	case txorch.EventExecuteEnd:
		c.executes.WithLabelValues(resultLabel(ev.Err)).Inc()
	}
}

func (c *Collector) observePhase(phase string, ev txorch.Event) {
	kind := ev.Option.Kind().String()
	c.phases.WithLabelValues(phase, kind, resultLabel(ev.Err)).Inc()
	c.latency.WithLabelValues(phase, kind).Observe(ev.Elapsed.Seconds())
}

func (c *Collector) observeDecision(d txorch.Decision) {
	switch d := d.(type) {
	case txorch.Execute:
		c.decisions.WithLabelValues("execute", d.Option.Kind().String()).Inc()
	case txorch.RetryOver:
		c.decisions.WithLabelValues("retry_over", "").Inc()
	case txorch.NotRetryable:
		c.decisions.WithLabelValues("not_retryable", "").Inc()
	}
}

// Observer returns a policy observer counting failure codes. Use with retry.Observe.
func (c *Collector) Observer() retry.ObserverFunc {
	return func(attempt int, failure *txorch.ServerError, _ txorch.Decision) {
		if attempt > 0 && failure != nil {
			c.failures.WithLabelValues(string(failure.Code)).Inc()
		}
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

var _ txorch.Listener = (*Collector)(nil)
