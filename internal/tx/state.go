package tx

// State is the lifecycle state of a Transaction.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateCommitted
	StateRolledBack
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
