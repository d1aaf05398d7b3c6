package b11runtime

import (
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// Scheduler selects one action in {execute, answer, confirm, sleep,
// noop} given gates and the current state. Grounded in spec.md §4.5 and
// b11f3_runtime_scheduler.py's _decide_action(gates, has_exec,
// has_answer): the decision keys off whether an action is pending at
// all (a queued executor request, or a dialog move to deliver), never
// off the specific value of dialog.final.move.
func Scheduler(s state.Tree) kernel.Envelope {
	gates := s.Get("runtime").Get("gates")
	if len(gates) == 0 {
		return kernel.Skip("no_gates")
	}
	final := s.Get("dialog").Get("final")
	move := final.GetString("move")
	requests := s.Get("executor").GetSlice("requests")

	hasExec := len(requests) > 0
	hasAnswer := move != ""

	if gates.GetBool("require_confirm") && (hasExec || hasAnswer) {
		return kernel.OK(state.Tree{"runtime": state.Tree{"schedule": state.Tree{"action": "confirm", "delay_ms": 0}}})
	}

	if hasExec && !gates.GetBool("allow_execute") {
		return kernel.OK(state.Tree{"runtime": state.Tree{"schedule": state.Tree{"action": "sleep", "delay_ms": gates.GetFloat64("throttle_ms")}}})
	}
	if hasAnswer && !hasExec && !gates.GetBool("allow_answer") {
		return kernel.OK(state.Tree{"runtime": state.Tree{"schedule": state.Tree{"action": "sleep", "delay_ms": gates.GetFloat64("throttle_ms")}}})
	}

	if hasExec {
		maxInflight := int(gates.Get("limits").GetInt64("max_inflight"))
		if maxInflight <= 0 {
			maxInflight = 4
		}
		batch := requests
		if len(batch) > maxInflight {
			batch = batch[:maxInflight]
		}
		return kernel.OK(state.Tree{
			"runtime": state.Tree{"schedule": state.Tree{
				"action":   "execute",
				"delay_ms": gates.GetFloat64("throttle_ms"),
				"routes":   state.Tree{"requests": batch},
			}},
		})
	}

	if hasAnswer {
		return kernel.OK(state.Tree{
			"runtime": state.Tree{"schedule": state.Tree{
				"action":   "answer",
				"delay_ms": 0,
				"routes":   state.Tree{"text": final.GetString("text")},
			}},
		})
	}

	return kernel.OK(state.Tree{"runtime": state.Tree{"schedule": state.Tree{"action": "noop", "delay_ms": 0}}})
}
