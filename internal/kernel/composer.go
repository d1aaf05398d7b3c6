// Package kernel implements the kernel-step composer: a pure,
// deterministic, order-driven composition engine that invokes a registry
// of named pure stages against a shared state, deep-merging each stage's
// output back into the state. Grounded in
// original_source/n3_core/kernel/b0f1_noema_kernel_step.py.
package kernel

import (
	"fmt"

	"github.com/noema/noema/internal/state"
)

// RulesVersion is stamped into every Report, mirroring
// b0f1_noema_kernel_step.py's RULES_VERSION = "1.0" constant.
const RulesVersion = "1.0"

// StepError records a single stage's failure, either a hard exception
// (recovered panic) or a non-OK/non-SKIP status treated as synthetic FAIL.
type StepError struct {
	Step  string
	Error string
}

// Report is the per-run audit trail: which stages ran, which were
// skipped (registry miss or SKIP status), and which failed, per
// spec.md §4.1's {ran, skipped, errors, rules_version} contract.
type Report struct {
	Ran          []string
	Skipped      []SkippedStep
	Errors       []StepError
	Status       Status
	RulesVersion string
}

// SkippedStep names a stage that did not merge anything, with its reason
// when one is available (registry miss vs an explicit SKIP envelope).
type SkippedStep struct {
	Step   string
	Reason string
}

// Run walks order, looks each name up in registry, invokes the stage with
// a defensive deep copy of the current state, classifies the result, and
// deep-merges OK updates into state. It never short-circuits: a stage
// that panics or returns FAIL does not stop subsequent stages from
// running and merging (spec.md §4.1 failure isolation).
func Run(s state.Tree, registry Registry, order []string) (state.Tree, Report) {
	working := s
	if working == nil {
		working = state.Tree{}
	}
	report := Report{Status: StatusOK, RulesVersion: RulesVersion}

	for _, name := range order {
		fn, ok := registry.Lookup(name)
		if !ok {
			report.Skipped = append(report.Skipped, SkippedStep{Step: name, Reason: "not_registered"})
			continue
		}

		env, err := invoke(fn, working)
		if err != nil {
			report.Errors = append(report.Errors, StepError{Step: name, Error: err.Error()})
			report.Status = StatusFail
			continue
		}

		switch env.Status {
		case StatusOK:
			if env.Updates != nil {
				working = state.DeepMerge(working, env.Updates)
			}
			report.Ran = append(report.Ran, name)
		case StatusSkip:
			reason := ""
			if env.Diag != nil {
				reason = env.Diag.GetString("reason")
			}
			report.Skipped = append(report.Skipped, SkippedStep{Step: name, Reason: reason})
		default:
			report.Errors = append(report.Errors, StepError{Step: name, Error: fmt.Sprintf("unrecognized status %q", env.Status)})
			report.Status = StatusFail
		}
	}

	return working, report
}

// invoke calls fn with a defensive copy of state, recovering any panic
// into a StepError so the composer never aborts (spec.md §4.1, §7b).
func invoke(fn StageFn, s state.Tree) (env Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	cp, ok := state.DeepCopy(s).(state.Tree)
	if !ok {
		cp = state.Tree{}
	}
	env = fn(cp)
	return env, nil
}
