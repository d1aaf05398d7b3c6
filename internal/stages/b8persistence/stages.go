// Package b8persistence implements the B8 persistence block: committing
// finalized turns/results into the WAL-backed memory store, planning
// storage apply ops from the WAL, and optimizing the apply plan before
// dispatch. Grounded in spec.md §3's `storage`/`memory` subtrees and the
// KV layout consumed by
// original_source/n3_drivers/storage/sqlite_driver.py.
package b8persistence

import (
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// MemoryCommit finalizes the current turn once both dialog.final and
// any execution results exist, appending a committed record to memory.
func MemoryCommit(s state.Tree) kernel.Envelope {
	final := s.Get("dialog").Get("final")
	if final.GetString("move") == "" {
		return kernel.Skip("no_final_turn")
	}
	pack := s.Get("perception").Get("packz")
	committed := state.Tree{
		"packz_id": pack.GetString("id"),
		"move":     final.GetString("move"),
		"text":     final.GetString("text"),
		"blocked":  final.GetBool("blocked"),
	}
	if best := s.Get("executor").Get("results").Get("best"); best.GetString("req_id") != "" {
		committed["result"] = best
	}
	committedLog := s.Get("memory").GetSlice("committed")
	committedLog = append(committedLog, committed)
	return kernel.OK(state.Tree{"memory": state.Tree{"committed": committedLog}})
}

// WALApplyPlanner turns committed memory entries and the WAL into a
// storage apply plan: an ordered list of put and inc ops under a
// namespace (no link ops and no index queue are derived here), per
// spec.md §6's persisted-state layout.
func WALApplyPlanner(s state.Tree) kernel.Envelope {
	committed := s.Get("memory").GetSlice("committed")
	wal := s.Get("memory").GetSlice("wal")
	if len(committed) == 0 && len(wal) == 0 {
		return kernel.Skip("nothing_to_persist")
	}
	threadID := s.Get("session").GetString("thread_id")
	if threadID == "" {
		threadID = "unknown"
	}
	namespace := "store/noema/" + threadID

	var ops []any
	seq := int64(0)
	for _, rec := range wal {
		rt, ok := asTree(rec)
		if !ok {
			continue
		}
		seq++
		ops = append(ops, state.Tree{"op": "put", "key": "turns/" + rt.GetString("id"), "value": rt, "seq": seq})
	}
	for _, c := range committed {
		ct, ok := asTree(c)
		if !ok {
			continue
		}
		seq++
		ops = append(ops, state.Tree{"op": "inc", "key": "counters/turns_committed", "delta": 1, "seq": seq})
		if result := ct.Get("result"); result.GetString("req_id") != "" {
			seq++
			ops = append(ops, state.Tree{"op": "put", "key": "results/" + result.GetString("req_id"), "value": result, "seq": seq})
		}
	}
	if len(ops) == 0 {
		return kernel.Skip("no_ops_derived")
	}
	return kernel.OK(state.Tree{
		"storage": state.Tree{"apply_plan": state.Tree{"namespace": namespace, "ops": ops}},
	})
}

// ApplyOptimizer collapses the apply plan: puts are last-wins by key,
// incs of the same key are summed, links are deduped. Grounded in
// spec.md §3: "optimizer collapses puts last-wins by key, sums incs,
// dedupes links."
func ApplyOptimizer(s state.Tree) kernel.Envelope {
	plan := s.Get("storage").Get("apply_plan")
	ops := plan.GetSlice("ops")
	if len(ops) == 0 {
		return kernel.Skip("no_apply_plan")
	}

	puts := map[string]state.Tree{}
	putOrder := []string{}
	incs := map[string]int64{}
	incOrder := []string{}
	linkSeen := map[string]bool{}
	var links []any

	for _, raw := range ops {
		ot, ok := asTree(raw)
		if !ok {
			continue
		}
		switch ot.GetString("op") {
		case "put":
			key := ot.GetString("key")
			if _, exists := puts[key]; !exists {
				putOrder = append(putOrder, key)
			}
			puts[key] = ot
		case "inc":
			key := ot.GetString("key")
			if _, exists := incs[key]; !exists {
				incOrder = append(incOrder, key)
			}
			incs[key] += ot.GetInt64("delta")
		case "link":
			sig := ot.GetString("from") + "->" + ot.GetString("to") + ":" + ot.GetString("rel")
			if !linkSeen[sig] {
				linkSeen[sig] = true
				links = append(links, ot)
			}
		}
	}

	optimized := make([]any, 0, len(putOrder)+len(incOrder)+len(links))
	for _, k := range putOrder {
		optimized = append(optimized, puts[k])
	}
	for _, k := range incOrder {
		optimized = append(optimized, state.Tree{"op": "inc", "key": k, "delta": incs[k]})
	}
	optimized = append(optimized, links...)

	return kernel.OK(state.Tree{
		"storage": state.Tree{"apply_plan_optimized": state.Tree{"namespace": plan.GetString("namespace"), "ops": optimized}},
	})
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
