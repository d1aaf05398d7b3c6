package b13drivers

import "github.com/noema/noema/internal/state"
import "github.com/noema/noema/internal/kernel"

// ReplyNormalizer flattens driver responses (state.driver.replies,
// attached by the I/O tick after dispatch) into the consistent
// sub-trees the rest of the state expects: executor.raw (consumed by
// b7execution.ResultNormalizer), transport.outbound, storage.apply_result
// and storage.index_result, timers.sleep. Grounded in spec.md §4.9.
func ReplyNormalizer(s state.Tree) kernel.Envelope {
	replies := s.Get("driver").GetSlice("replies")
	if len(replies) == 0 {
		return kernel.Skip("no_replies")
	}

	out := state.Tree{}
	var execRaw []any

	for _, raw := range replies {
		r, ok := asTree(raw)
		if !ok {
			continue
		}
		switch r.GetString("type") {
		case "transport":
			out["transport"] = state.Tree{
				"outbound": state.Tree{
					"ok":      r.GetBool("ok"),
					"channel": r.GetString("channel"),
					"count":   len(r.GetSlice("messages")),
				},
			}
		case "skills":
			for _, c := range r.GetSlice("calls") {
				if ct, ok := asTree(c); ok {
					execRaw = append(execRaw, ct)
				}
			}
		case "storage":
			out["storage"] = state.Tree{
				"apply_result": state.Tree{"ok": r.Get("apply").GetBool("ok"), "count": len(r.Get("apply").GetSlice("ops"))},
				"index_result": state.Tree{"ok": r.Get("index").GetBool("ok"), "count": len(r.Get("index").GetSlice("queue"))},
			}
		case "timer":
			out["timers"] = state.Tree{"sleep": state.Tree{"ok": r.GetBool("ok"), "sleep_ms": r.GetFloat64("sleep_ms")}}
		}
	}

	if len(execRaw) > 0 {
		out["executor"] = state.Tree{"raw": execRaw}
	}
	if len(out) == 0 {
		return kernel.Skip("nothing_normalized")
	}
	return kernel.OK(out)
}
