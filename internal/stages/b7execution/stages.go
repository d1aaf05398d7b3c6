// Package b7execution implements the B7 execution block: turning an
// approved execute move into skill requests, normalizing driver-returned
// results, and presenting the chosen result back to dialog.
package b7execution

import (
	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// SkillDispatcher appends an executor request for the current plan, but
// only when the safety-filtered move is "execute" (spec.md §4.2: "execution
// dispatch runs only when the safety-filtered move is execute").
func SkillDispatcher(s state.Tree) kernel.Envelope {
	final := s.Get("dialog").Get("final")
	if final.GetString("move") != "execute" {
		return kernel.Skip("move_not_execute")
	}
	plan := s.Get("planner").Get("plan")
	skill := plan.GetString("skill")
	if skill == "" {
		return kernel.Skip("no_plan")
	}
	slots := plan.Get("slots")
	reqID := idhash.SHA1Hex(state.Tree{"skill": skill, "params": slots, "plan": plan.GetString("id")})
	req := state.Tree{"req_id": reqID, "skill_id": skill, "params": slots, "plan_id": plan.GetString("id")}

	existing := s.Get("executor").GetSlice("requests")
	existing = append(existing, req)
	return kernel.OK(state.Tree{"executor": state.Tree{"requests": existing}})
}

// ResultNormalizer flattens raw driver responses (attached to
// executor.raw by the I/O tick after skills.execute dispatch) into
// executor.results with a per-item ok/kind/text/data/usage/latency/score
// shape plus an aggregate summary.
func ResultNormalizer(s state.Tree) kernel.Envelope {
	raw := s.Get("executor").GetSlice("raw")
	if len(raw) == 0 {
		return kernel.Skip("no_raw_results")
	}
	items := make([]any, 0, len(raw))
	okCount := 0
	for _, r := range raw {
		rt, ok := asTree(r)
		if !ok {
			continue
		}
		ok2 := rt.GetBool("ok")
		if ok2 {
			okCount++
		}
		items = append(items, state.Tree{
			"req_id":     rt.GetString("req_id"),
			"ok":         ok2,
			"kind":       orDefault(rt.GetString("kind"), "json"),
			"text":       rt.GetString("text"),
			"data":       rt.Get("data"),
			"usage":      rt.Get("usage"),
			"latency_ms": rt.GetInt64("latency_ms"),
			"score":      rt.GetFloat64("score"),
		})
	}
	aggregate := state.Tree{"count": len(items), "ok_count": okCount}
	return kernel.OK(state.Tree{"executor": state.Tree{"results": state.Tree{"items": items, "aggregate": aggregate}}})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ResultPresenter picks the best (first-ok, highest-score) result and
// exposes it as executor.results.best for the dialog/presentation path
// and the downstream transport frame builder.
func ResultPresenter(s state.Tree) kernel.Envelope {
	items := s.Get("executor").Get("results").GetSlice("items")
	if len(items) == 0 {
		return kernel.Skip("no_results")
	}
	var best state.Tree
	bestScore := -1.0
	for _, it := range items {
		t, ok := asTree(it)
		if !ok || !t.GetBool("ok") {
			continue
		}
		if sc := t.GetFloat64("score"); sc >= bestScore {
			best, bestScore = t, sc
		}
	}
	if best == nil {
		return kernel.SkipWith("no_ok_result", state.Tree{"count": len(items)})
	}
	return kernel.OK(state.Tree{"executor": state.Tree{"results": state.Tree{"best": best}}})
}

func asTree(v any) (state.Tree, bool) {
	switch t := v.(type) {
	case state.Tree:
		return t, true
	case map[string]any:
		return state.Tree(t), true
	default:
		return nil, false
	}
}
