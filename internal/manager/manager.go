// Package manager runs units of work inside transactions and retries them
// under a txorch.Policy.
package manager

import (
	"fmt"

	"github.com/vvka-141/txorch/internal/logging"
	"github.com/vvka-141/txorch/internal/retry"
	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// Manager opens a fresh transaction per attempt and drives it to commit or rollback.
// A Manager is immutable after New and safe for concurrent use.
type Manager struct {
	transport  txorch.Transport
	policy     txorch.Policy
	timeouts   tx.Timeouts
	commitKind txorch.CommitKind
	logger     txorch.Logger
	listener   txorch.Listener
	backoff    txorch.BackoffStrategy
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy sets the policy used when Execute is called without one.
func WithPolicy(p txorch.Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithTimeouts overrides the phase timeouts of every transaction the manager opens.
// Zero fields keep the defaults.
func WithTimeouts(t tx.Timeouts) Option {
	return func(m *Manager) {
		m.timeouts = m.timeouts.Merge(t)
	}
}

// WithCommitKind sets the durability requested at commit.
func WithCommitKind(k txorch.CommitKind) Option {
	return func(m *Manager) {
		m.commitKind = k
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l txorch.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithListener adds a lifecycle listener. May be given more than once.
func WithListener(l txorch.Listener) Option {
	return func(m *Manager) {
		if ls, ok := m.listener.(txorch.Listeners); ok {
			m.listener = append(ls, l)
			return
		}
		m.listener = txorch.Listeners{l}
	}
}

// WithBackoff makes the manager wait strategy.NextDelay(n) before retry n.
// Only the delays are used; the policy alone decides how many attempts run.
func WithBackoff(b txorch.BackoffStrategy) Option {
	return func(m *Manager) {
		m.backoff = b
	}
}

// New creates a Manager over transport.
func New(transport txorch.Transport, opts ...Option) (*Manager, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", txorch.ErrInvalidConfig)
	}

	m := &Manager{
		transport:  transport,
		timeouts:   tx.DefaultTimeouts(),
		commitKind: txorch.CommitDefault,
		logger:     logging.NewNullLogger(),
		listener:   txorch.Listeners(nil),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.policy == nil {
		p, err := retry.NewSamePolicy(txorch.OCC(), retry.WithMaxAttempts(txorch.DefaultMaxAttempts))
		if err != nil {
			return nil, err
		}
		m.policy = p
	}
	if m.logger == nil {
		m.logger = logging.NewNullLogger()
	}
	return m, nil
}

// Policy returns the default policy.
func (m *Manager) Policy() txorch.Policy { return m.policy }

// Timeouts returns the phase timeouts applied to every transaction.
func (m *Manager) Timeouts() tx.Timeouts { return m.timeouts }

// CommitKind returns the durability requested at commit.
func (m *Manager) CommitKind() txorch.CommitKind { return m.commitKind }
