package tx

import (
	"time"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// Timeouts bounds how long each phase waits for the server.
// A zero or negative value means the phase waits only on the caller's context.
type Timeouts struct {
	Begin    time.Duration
	Commit   time.Duration
	Rollback time.Duration
	Close    time.Duration
}

// DefaultTimeouts returns the library defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Begin:    txorch.DefaultBeginTimeout,
		Commit:   txorch.DefaultCommitTimeout,
		Rollback: txorch.DefaultRollbackTimeout,
		Close:    txorch.DefaultCloseTimeout,
	}
}

// Merge returns t with every non-zero field of override applied.
func (t Timeouts) Merge(override Timeouts) Timeouts {
	if override.Begin != 0 {
		t.Begin = override.Begin
	}
	if override.Commit != 0 {
		t.Commit = override.Commit
	}
	if override.Rollback != 0 {
		t.Rollback = override.Rollback
	}
	if override.Close != 0 {
		t.Close = override.Close
	}
	return t
}
