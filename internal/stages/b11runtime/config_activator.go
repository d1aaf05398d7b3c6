// Package b11runtime implements the B11 runtime block: config
// activation, gatekeeping, scheduling, and initiative scheduling — the
// decision core of each tick (spec.md §4.5, §4.6).
package b11runtime

import "github.com/noema/noema/internal/state"
import "github.com/noema/noema/internal/kernel"

// ConfigActivator reads the most recently staged policy version and
// produces an activated snapshot plus a structural diff against the
// previous runtime config, with a rollback token.
func ConfigActivator(s state.Tree) kernel.Envelope {
	staged := s.Get("policy").Get("staged")
	stagedConfig := staged.Get("config")
	if len(stagedConfig) == 0 {
		return kernel.Skip("no_staged_version")
	}
	previous := s.Get("runtime").Get("config")

	diff := structuralDiff(previous, stagedConfig)

	return kernel.OK(state.Tree{
		"runtime": state.Tree{
			"config":        stagedConfig,
			"config_diff":   diff,
			"rollback_token": staged.Get("rollback_point"),
		},
	})
}

// structuralDiff computes {added, changed, removed} between two config
// trees. A changed key whose old and new values are both maps gets its
// own nested {added, changed, removed} diff; any other changed key gets
// {from, to}.
func structuralDiff(prev, next state.Tree) state.Tree {
	added := state.Tree{}
	changed := state.Tree{}
	removed := state.Tree{}

	for k, nv := range next {
		pv, existed := prev[k]
		if !existed {
			added[k] = nv
			continue
		}
		if !equalValue(pv, nv) {
			pm, pok := asMap(pv)
			nm, nok := asMap(nv)
			if pok && nok {
				changed[k] = structuralDiff(pm, nm)
			} else {
				changed[k] = state.Tree{"from": pv, "to": nv}
			}
		}
	}
	for k, pv := range prev {
		if _, stillThere := next[k]; !stillThere {
			removed[k] = pv
		}
	}
	return state.Tree{"added": added, "changed": changed, "removed": removed}
}

func equalValue(a, b any) bool {
	am, aok := asMap(a)
	bm, bok := asMap(b)
	if aok && bok {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !equalValue(av, bv) {
				return false
			}
		}
		return true
	}
	return a == b
}

func asMap(v any) (state.Tree, bool) {
	switch t := v.(type) {
	case state.Tree:
		return t, true
	case map[string]any:
		return state.Tree(t), true
	default:
		return nil, false
	}
}
