// Package b10adaptation implements the B10 adaptation block: planning a
// policy delta from SLO/telemetry signals, filtering it into an apply
// plan, and staging a new policy version with a rollback point. Grounded
// in original_source/n3_core/block_10_adaptation/{b10f1_policy_delta_planner,
// b10f3_policy_apply_stager}.py.
package b10adaptation

import (
	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// WeightMin/WeightMax bound adaptation.policy.weights.
const (
	WeightMin = 0.0
	WeightMax = 1.5
	ConfMin   = 0.05
	ConfMax   = 0.99
)

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PolicyDeltaPlanner reads the SLO score/alerts and proposes config
// changes ("tighten"/"loosen") with a confidence in [0,1] per change,
// the same shape the SLO-breach end-to-end scenario (spec.md §8.3)
// expects.
func PolicyDeltaPlanner(s state.Tree) kernel.Envelope {
	slo := s.Get("observability").Get("slo")
	score := slo.GetFloat64("score")
	alerts := slo.GetSlice("alerts")
	if len(alerts) == 0 {
		return kernel.Skip("no_alerts")
	}

	changes := make([]any, 0, len(alerts))
	for _, a := range alerts {
		at, ok := asTree(a)
		if !ok {
			continue
		}
		knob := at.GetString("knob")
		if knob == "" {
			continue
		}
		confidence := clip(1.0-score, 0, 1)
		changes = append(changes, state.Tree{
			"path":       knob,
			"action":     "tighten",
			"confidence": confidence,
			"reason":     at.GetString("check"),
		})
	}
	if len(changes) == 0 {
		return kernel.Skip("no_actionable_alerts")
	}
	return kernel.OK(state.Tree{"policy": state.Tree{"delta": state.Tree{"changes": changes, "slo_score": score}}})
}

// PolicyApplyPlanner filters the proposed delta into an apply plan:
// drops changes below a minimum confidence, and attaches the current
// config as the base to merge against.
func PolicyApplyPlanner(s state.Tree) kernel.Envelope {
	changes := s.Get("policy").Get("delta").GetSlice("changes")
	if len(changes) == 0 {
		return kernel.Skip("no_delta")
	}
	const minConfidence = 0.15
	kept := make([]any, 0, len(changes))
	for _, c := range changes {
		ct, ok := asTree(c)
		if !ok {
			continue
		}
		if ct.GetFloat64("confidence") >= minConfidence {
			kept = append(kept, ct)
		}
	}
	if len(kept) == 0 {
		return kernel.SkipWith("all_below_confidence", state.Tree{"considered": len(changes)})
	}
	currentConfig := s.Get("policy").Get("config")
	return kernel.OK(state.Tree{
		"policy": state.Tree{"apply_plan": state.Tree{"ops": kept, "base_config": currentConfig}},
	})
}

// PolicyApplyStager versions the apply plan: `ver_id =
// sha1({parent, ops, proposed_cfg})`, and stages it for activation with
// a rollback pointer to the previous current version. Grounded in
// b10f3_policy_apply_stager.py ("staged version written via 3 storage
// puts: versions/<id>, configs/<id>, pointers/current, plus a
// rollback_point").
func PolicyApplyStager(s state.Tree) kernel.Envelope {
	plan := s.Get("policy").Get("apply_plan")
	ops := plan.GetSlice("ops")
	if len(ops) == 0 {
		return kernel.Skip("no_apply_plan")
	}
	base := plan.Get("base_config")
	proposed := applyOpsToConfig(base, ops)

	parentID := s.Get("policy").Get("current_version").GetString("id")
	verID := idhash.SHA1Hex(state.Tree{"parent": parentID, "ops": ops, "proposed_cfg": proposed})

	rollbackPoint := state.Tree{"version_id": parentID, "config": base}

	storageOps := []any{
		state.Tree{"op": "put", "key": "versions/" + verID, "value": state.Tree{"id": verID, "parent_id": parentID, "ops": ops}},
		state.Tree{"op": "put", "key": "configs/" + verID, "value": proposed},
		state.Tree{"op": "put", "key": "pointers/current", "value": verID},
	}

	return kernel.OK(state.Tree{
		"policy": state.Tree{
			"staged": state.Tree{
				"version":        state.Tree{"id": verID, "parent_id": parentID},
				"config":         proposed,
				"rollback_point": rollbackPoint,
			},
		},
		"storage": state.Tree{"policy_ops": storageOps},
	})
}

func applyOpsToConfig(base state.Tree, ops []any) state.Tree {
	out := state.Tree{}
	for k, v := range base {
		out[k] = v
	}
	for _, raw := range ops {
		ot, ok := asTree(raw)
		if !ok {
			continue
		}
		path := ot.GetString("path")
		if path == "" {
			continue
		}
		out[path] = ot.GetString("action")
	}
	return out
}

// ClipWeight and ClipConfidence apply the adaptation bounds named in
// spec.md §3: weights clipped to [0, 1.5]; confidence clipped to
// [0.05, 0.99].
func ClipWeight(v float64) float64     { return clip(v, WeightMin, WeightMax) }
func ClipConfidence(v float64) float64 { return clip(v, ConfMin, ConfMax) }

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
