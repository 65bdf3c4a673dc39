package txorch

import (
	"fmt"
	"slices"
	"strings"
)

// TransactionKind is the concurrency-control mode requested from the server.
type TransactionKind int

const (
	KindUnspecified TransactionKind = iota // Server default
	KindOCC                                // Optimistic (short) transaction
	KindLTX                                // Long-batch read-write transaction
	KindRTX                                // Long-batch read-only transaction
)

// String returns a human-readable string representation of the TransactionKind.
func (k TransactionKind) String() string {
	switch k {
	case KindUnspecified:
		return "UNSPECIFIED"
	case KindOCC:
		return "OCC"
	case KindLTX:
		return "LTX"
	case KindRTX:
		return "RTX"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// IsValid returns true if the TransactionKind is a valid, defined value.
func (k TransactionKind) IsValid() bool {
	return k >= KindUnspecified && k <= KindRTX
}

// IsPessimistic reports whether the kind reserves its working set up front.
func (k TransactionKind) IsPessimistic() bool {
	return k == KindLTX || k == KindRTX
}

// ParseTransactionKind parses the names accepted in txorch.yaml and on the command line.
func ParseTransactionKind(s string) (TransactionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unspecified", "default":
		return KindUnspecified, nil
	case "occ", "short":
		return KindOCC, nil
	case "ltx", "long":
		return KindLTX, nil
	case "rtx", "readonly", "read-only":
		return KindRTX, nil
	default:
		return KindUnspecified, fmt.Errorf("unknown transaction kind %q: %w", s, ErrInvalidConfig)
	}
}

// TransactionOption describes the transaction to request from the server.
// It is an immutable value: accessors return copies and builders return new values.
type TransactionOption struct {
	kind          TransactionKind
	writePreserve []string
	label         string
}

// OCC returns an optimistic transaction option.
func OCC() TransactionOption {
	return TransactionOption{kind: KindOCC}
}

// LTX returns a long-batch read-write option that preserves the given tables for writing.
// Table order is kept; duplicates are dropped.
func LTX(tables ...string) TransactionOption {
	preserve := make([]string, 0, len(tables))
	for _, t := range tables {
		if !slices.Contains(preserve, t) {
			preserve = append(preserve, t)
		}
	}
	return TransactionOption{kind: KindLTX, writePreserve: preserve}
}

// RTX returns a long-batch read-only transaction option.
func RTX() TransactionOption {
	return TransactionOption{kind: KindRTX}
}

// Unspecified returns an option that leaves the mode to the server.
func Unspecified() TransactionOption {
	return TransactionOption{}
}

// WithLabel returns a copy of the option carrying a diagnostic label.
func (o TransactionOption) WithLabel(label string) TransactionOption {
	o.writePreserve = slices.Clone(o.writePreserve)
	o.label = label
	return o
}

// Kind returns the concurrency-control mode.
func (o TransactionOption) Kind() TransactionKind {
	return o.kind
}

// WritePreserve returns the tables an LTX intends to write, in declaration order.
func (o TransactionOption) WritePreserve() []string {
	return slices.Clone(o.writePreserve)
}

// Label returns the diagnostic label, or "" if none was set.
func (o TransactionOption) Label() string {
	return o.label
}

// Equal reports whether two options request the same transaction.
func (o TransactionOption) Equal(other TransactionOption) bool {
	return o.kind == other.kind &&
		o.label == other.label &&
		slices.Equal(o.writePreserve, other.writePreserve)
}

// String renders the option for logs and error messages, e.g. "LTX{wp=[orders,stock]}".
func (o TransactionOption) String() string {
	var b strings.Builder
	b.WriteString(o.kind.String())
	var attrs []string
	if len(o.writePreserve) > 0 {
		attrs = append(attrs, "wp=["+strings.Join(o.writePreserve, ",")+"]")
	}
	if o.label != "" {
		attrs = append(attrs, fmt.Sprintf("label=%q", o.label))
	}
	if len(attrs) > 0 {
		b.WriteString("{" + strings.Join(attrs, " ") + "}")
	}
	return b.String()
}

// CommitKind is the durability level a commit waits for.
type CommitKind int

const (
	CommitDefault    CommitKind = iota // Server default
	CommitAccepted                     // Commit request accepted
	CommitAvailable                    // Visible to other transactions
	CommitStored                       // Persisted locally
	CommitPropagated                   // Propagated to replicas
)

// String returns a human-readable string representation of the CommitKind.
func (c CommitKind) String() string {
	switch c {
	case CommitDefault:
		return "DEFAULT"
	case CommitAccepted:
		return "ACCEPTED"
	case CommitAvailable:
		return "AVAILABLE"
	case CommitStored:
		return "STORED"
	case CommitPropagated:
		return "PROPAGATED"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// ParseCommitKind parses a commit kind name as used in txorch.yaml.
func ParseCommitKind(s string) (CommitKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return CommitDefault, nil
	case "accepted":
		return CommitAccepted, nil
	case "available":
		return CommitAvailable, nil
	case "stored":
		return CommitStored, nil
	case "propagated":
		return CommitPropagated, nil
	default:
		return CommitDefault, fmt.Errorf("unknown commit kind %q: %w", s, ErrInvalidConfig)
	}
}
