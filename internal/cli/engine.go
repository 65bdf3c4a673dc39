package cli

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vvka-141/txorch/internal/config"
	"github.com/vvka-141/txorch/internal/manager"
	"github.com/vvka-141/txorch/internal/metrics"
	"github.com/vvka-141/txorch/internal/retry"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// engine is a manager wired from a project config, with its metrics.
type engine struct {
	manager  *manager.Manager
	registry *prometheus.Registry
}

func newEngine(cfg *config.ProjectConfig, transport txorch.Transport, logger txorch.Logger, listeners ...txorch.Listener) (*engine, error) {
	policy, err := cfg.BuildPolicy()
	if err != nil {
		return nil, err
	}
	timeouts, err := cfg.BuildTimeouts()
	if err != nil {
		return nil, err
	}
	commitKind, err := cfg.BuildCommitKind()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", txorch.ErrInvalidConfig, err)
	}
	backoff, err := cfg.BuildBackoff()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, err
	}

	opts := []manager.Option{
		manager.WithPolicy(retry.Observe(policy, collector.Observer())),
		manager.WithTimeouts(timeouts),
		manager.WithCommitKind(commitKind),
		manager.WithLogger(logger),
		manager.WithListener(collector),
	}
	for _, l := range listeners {
		opts = append(opts, manager.WithListener(l))
	}
	if backoff != nil {
		opts = append(opts, manager.WithBackoff(backoff))
	}

	m, err := manager.New(transport, opts...)
	if err != nil {
		return nil, err
	}
	return &engine{manager: m, registry: registry}, nil
}

// writeMetrics writes the engine metrics in the Prometheus text format to path.
func (e *engine) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, e.registry)
}

// progress prints retry decisions and tracks the last attempt.
type progress struct {
	out         io.Writer
	lastAttempt int
}

func (p *progress) OnEvent(ev txorch.Event) {
	switch ev.Type {
	case txorch.EventRetry:
		fmt.Fprintf(p.out, "attempt %d failed: %v\n  -> %s\n", ev.Attempt-1, ev.Err, ev.Decision)
	case txorch.EventExecuteEnd:
		p.lastAttempt = ev.Attempt
	}
}
