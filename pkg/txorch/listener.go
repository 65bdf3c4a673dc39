package txorch

import "time"

// EventType identifies a lifecycle point reported to a Listener.
type EventType string

const (
	EventBeginStart    EventType = "begin.start"
	EventBeginEnd      EventType = "begin.end"
	EventCommitStart   EventType = "commit.start"
	EventCommitEnd     EventType = "commit.end"
	EventRollbackStart EventType = "rollback.start"
	EventRollbackEnd   EventType = "rollback.end"
	EventCloseStart    EventType = "close.start"
	EventCloseEnd      EventType = "close.end"
	EventWorkStart     EventType = "work.start"
	EventWorkEnd       EventType = "work.end"
	EventExecuteStart  EventType = "execute.start"
	EventExecuteEnd    EventType = "execute.end"
	EventRetry         EventType = "retry"
)

// Event describes one lifecycle point. Fields that do not apply are zero.
type Event struct {
	Type     EventType
	TxSeq    int64 // Local sequence id of the transaction, 0 for manager events
	Attempt  int
	Option   TransactionOption
	Err      error         // Set on *.end events that failed
	Elapsed  time.Duration // Set on *.end events
	Decision Decision      // Set on retry events
}

// Listener observes transaction lifecycle events. Listeners are for observability
// only; they cannot influence control flow.
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ev Event)

// OnEvent calls f(ev).
func (f ListenerFunc) OnEvent(ev Event) {
	f(ev)
}

// Listeners fans an event out to every listener in order.
type Listeners []Listener

// OnEvent forwards ev to every non-nil listener.
func (ls Listeners) OnEvent(ev Event) {
	for _, l := range ls {
		if l != nil {
			l.OnEvent(ev)
		}
	}
}
