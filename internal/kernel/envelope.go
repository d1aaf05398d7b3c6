package kernel

import "github.com/noema/noema/internal/state"

// Status is the outcome a stage reports back to the composer.
type Status string

const (
	StatusOK   Status = "OK"
	StatusSkip Status = "SKIP"
	StatusFail Status = "FAIL"
)

// Envelope is the standard return shape every stage produces:
// {status, <namespaced-keys>, diag}. Updates holds every top-level key
// except status/diag — exactly what the composer deep-merges into state.
type Envelope struct {
	Status  Status
	Updates state.Tree
	Diag    state.Tree
}

// OK builds a successful envelope carrying the given namespaced updates.
func OK(updates state.Tree) Envelope {
	return Envelope{Status: StatusOK, Updates: updates}
}

// Skip builds a SKIP envelope with a diagnostic reason, the contract's
// way of declining to run on missing or malformed input without raising.
func Skip(reason string) Envelope {
	return Envelope{Status: StatusSkip, Diag: state.Tree{"reason": reason}}
}

// SkipWith builds a SKIP envelope with a reason plus extra diagnostic
// fields (e.g. counts).
func SkipWith(reason string, extra state.Tree) Envelope {
	d := state.Tree{"reason": reason}
	for k, v := range extra {
		d[k] = v
	}
	return Envelope{Status: StatusSkip, Diag: d}
}

// StageFn is the one-argument, one-return-value signature every stage
// must implement: a pure function of state to an update envelope.
type StageFn func(s state.Tree) Envelope
