// Package b3memory implements the B3 memory block: WAL record writing,
// index-queue staging, retrieval, and a bounded context cache. Grounded
// in the storage/retrieval shape described by spec.md §3's `memory`
// subtree and the WAL/index contract consumed by
// original_source/n3_drivers/storage/sqlite_driver.py.
package b3memory

import (
	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

const ContextCacheLimit = 20

// WALWriter appends a write-ahead-log record for the current PackZ, with
// a signature that is a hash of the canonical record — the unit every
// later persistence stage plans storage ops from.
func WALWriter(s state.Tree) kernel.Envelope {
	pack := s.Get("perception").Get("packz")
	id := pack.GetString("id")
	if id == "" {
		return kernel.Skip("no_packz")
	}
	record := state.Tree{
		"kind":  "turn",
		"id":    id,
		"text":  pack.GetString("text"),
		"lang":  pack.GetString("lang"),
		"at_ms": pack.GetInt64("at_ms"),
	}
	record["sig"] = idhash.SHA1Hex(record)

	wal := s.Get("memory").GetSlice("wal")
	wal = append(wal, record)
	return kernel.OK(state.Tree{"memory": state.Tree{"wal": wal}})
}

// Indexer stages a full-text index entry for the WAL record, matching
// the storage driver's `index:[{type, id, text}]` contract.
func Indexer(s state.Tree) kernel.Envelope {
	wal := s.Get("memory").GetSlice("wal")
	if len(wal) == 0 {
		return kernel.Skip("no_wal_records")
	}
	last, ok := asTree(wal[len(wal)-1])
	if !ok {
		return kernel.Skip("malformed_wal_record")
	}
	entry := state.Tree{
		"type": "packz",
		"id":   last.GetString("id"),
		"text": last.GetString("text"),
	}
	queue := s.Get("memory").GetSlice("index_queue")
	queue = append(queue, entry)
	return kernel.OK(state.Tree{"memory": state.Tree{"index_queue": queue}})
}

// Retriever surfaces the most relevant facts/documents for the current
// PackZ from whatever the storage driver already attached to
// memory.retrieval_candidates (populated by the storage driver on a
// prior tick), keeping candidates whose own score field is positive, in
// their original order (no re-ranking).
func Retriever(s state.Tree) kernel.Envelope {
	candidates := s.Get("memory").GetSlice("retrieval_candidates")
	if len(candidates) == 0 {
		return kernel.Skip("no_candidates")
	}
	best := make([]any, 0, len(candidates))
	for _, c := range candidates {
		ct, ok := asTree(c)
		if !ok {
			continue
		}
		if ct.GetFloat64("score") > 0 {
			best = append(best, ct)
		}
	}
	return kernel.OK(state.Tree{"memory": state.Tree{"retrieved": best}})
}

// ContextCache maintains a bounded list of recently retrieved items
// (written WAL records are not added) so later planning/dialog stages have cheap access to
// recent memory without re-querying storage every tick.
func ContextCache(s state.Tree) kernel.Envelope {
	mem := s.Get("memory")
	cache := mem.GetSlice("context_cache")
	if retrieved := mem.GetSlice("retrieved"); len(retrieved) > 0 {
		cache = append(cache, retrieved...)
	}
	if len(cache) > ContextCacheLimit {
		cache = cache[len(cache)-ContextCacheLimit:]
	}
	if len(cache) == 0 {
		return kernel.Skip("nothing_to_cache")
	}
	return kernel.OK(state.Tree{"memory": state.Tree{"context_cache": cache}})
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
