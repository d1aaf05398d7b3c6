// Package b5planning implements the B5 planning block: intent routing,
// slot collection, and plan building. Grounded in
// original_source/n3_core/block_5_planning/b5f3_plan_builder.py, whose
// _mc_config() computes the plan's own must-confirm guardrails from
// runtime.config.guardrails.must_confirm and world_model.uncertainty —
// the single must-confirm decision point spec.md §9's open question
// calls for, consulted downstream by b6dialog.SafetyFilter rather than
// re-derived there.
package b5planning

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// KnownSkills maps a coarse intent label to the skill id that serves it;
// a production deployment loads this from configuration.
var KnownSkills = map[string]string{
	"search": "search",
	"echo":   "echo",
	"ingest": "ingest",
	"reward": "reward",
}

// IntentRouter maps the world model's predicted best label plus a crude
// keyword match to an intent + candidate skill.
func IntentRouter(s state.Tree) kernel.Envelope {
	wm := s.Get("world_model")
	best := wm.Get("expected_reply").GetString("best")
	if best == "" {
		return kernel.Skip("no_prediction")
	}
	text := strings.ToLower(s.Get("perception").Get("packz").GetString("text"))
	if text == "" {
		return kernel.Skip("no_packz_text")
	}

	skill := ""
	for word, sk := range KnownSkills {
		if strings.Contains(text, word) || fuzzyContains(text, word) {
			skill = sk
			break
		}
	}
	intent := state.Tree{"label": best, "skill": skill}
	if skill == "" {
		return kernel.OK(state.Tree{"planner": state.Tree{"intent": intent}})
	}
	return kernel.OK(state.Tree{"planner": state.Tree{"intent": intent}})
}

func fuzzyContains(text, word string) bool {
	for _, tok := range strings.Fields(text) {
		if levenshtein.ComputeDistance(tok, word) <= 1 && len(word) > 3 {
			return true
		}
	}
	return false
}

// SlotCollector gathers any structured parameters the current PackZ
// signals provide for the routed skill (placeholder heuristic:
// carries the whole normalized text as a `msg`/`query` slot).
func SlotCollector(s state.Tree) kernel.Envelope {
	intent := s.Get("planner").Get("intent")
	skill := intent.GetString("skill")
	if skill == "" {
		return kernel.Skip("no_skill_routed")
	}
	text := s.Get("perception").Get("packz").GetString("text")
	slots := state.Tree{}
	switch skill {
	case "echo":
		slots["msg"] = text
	case "search":
		slots["query"] = text
	case "ingest":
		slots["text"] = text
	default:
		slots["text"] = text
	}
	return kernel.OK(state.Tree{"planner": state.Tree{"slots": slots}})
}

// defaultMustConfirmThreshold mirrors _mc_config()'s u_threshold=0.8
// default when runtime.config.guardrails.must_confirm is unset.
const defaultMustConfirmThreshold = 0.8

// PlanBuilder assembles a plan (skill + filled slots + steps) with a
// deterministic id hashing (skill, filled-slots, steps), plus the plan's
// guardrails (must_confirm, uncertainty, recommendation) per
// b5f3_plan_builder.py's _mc_config()/must_confirm logic.
func PlanBuilder(s state.Tree) kernel.Envelope {
	planner := s.Get("planner")
	intent := planner.Get("intent")
	skill := intent.GetString("skill")
	if skill == "" {
		return kernel.Skip("no_skill_routed")
	}
	slots := planner.Get("slots")
	steps := []any{
		state.Tree{"op": "call_skill", "skill": skill},
	}
	planID := idhash.SHA1Hex(state.Tree{"skill": skill, "slots": slots, "steps": steps})
	plan := state.Tree{
		"id":         planID,
		"skill":      skill,
		"slots":      slots,
		"steps":      steps,
		"guardrails": planGuardrails(s),
	}
	return kernel.OK(state.Tree{"planner": state.Tree{"plan": plan}})
}

// planGuardrails computes {must_confirm, uncertainty, recommendation}
// from the last-activated runtime config and the current world-model
// uncertainty, following _mc_config()'s u_threshold/rec_requires_confirm
// reading plus its force-disable-confirm and base_confirm rules.
func planGuardrails(s state.Tree) state.Tree {
	mc := s.Get("runtime").Get("config").Get("guardrails").Get("must_confirm")
	uThreshold := defaultMustConfirmThreshold
	if _, ok := mc["u_threshold"]; ok {
		uThreshold = mc.GetFloat64("u_threshold")
	}
	recRequiresConfirm := mc.GetBool("rec_requires_confirm")

	uncertainty := s.Get("world_model").Get("uncertainty")
	uScore := uncertainty.GetFloat64("score")
	recommendation := uncertainty.GetString("recommendation")

	forceDisableConfirm := uThreshold >= 0.9 && !recRequiresConfirm
	baseConfirm := uScore >= uThreshold ||
		(recRequiresConfirm && (recommendation == "probe_first" || recommendation == "answer_or_probe"))
	mustConfirm := baseConfirm && !forceDisableConfirm

	return state.Tree{
		"must_confirm":   mustConfirm,
		"uncertainty":    uScore,
		"recommendation": recommendation,
	}
}
