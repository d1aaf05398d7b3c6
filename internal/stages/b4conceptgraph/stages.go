// Package b4conceptgraph implements the B4 concept-graph block: pattern
// mining, canonical node management, edge scoring, and rule extraction.
// Grounded in
// original_source/n3_core/block_4_concept_graph/b4f2_node_manager.py.
package b4conceptgraph

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// MaxNodesOut caps the node set the node manager emits per tick, sorted
// descending by (score, tf, -ngram_size) and truncated, matching the
// original's MAX_NODES_OUT=600.
const MaxNodesOut = 600

// PatternMiner extracts candidate n-gram patterns (unigrams, bigrams)
// from the current PackZ text only.
func PatternMiner(s state.Tree) kernel.Envelope {
	pack := s.Get("perception").Get("packz")
	text := pack.GetString("text")
	if text == "" {
		return kernel.Skip("no_packz")
	}
	lang := pack.GetString("lang")
	words := tokenizeWords(text)
	patterns := make([]any, 0, len(words)*2)
	for _, w := range words {
		patterns = append(patterns, state.Tree{"key": w, "n": 1, "lang": lang})
	}
	for i := 0; i+1 < len(words); i++ {
		bigram := words[i] + " " + words[i+1]
		patterns = append(patterns, state.Tree{"key": bigram, "n": 2, "lang": lang})
	}
	if len(patterns) == 0 {
		return kernel.Skip("no_patterns")
	}
	return kernel.OK(state.Tree{"concept_graph": state.Tree{"patterns": state.Tree{"list": patterns}}})
}

func tokenizeWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '_')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// canonicalKey normalizes a pattern key the way node ids require:
// casefold, strip punctuation (keeping underscore as a stand-in for
// ZWNJ/hyphen preservation), collapse whitespace.
func canonicalKey(key string) string {
	key = strings.ToLower(key)
	var b strings.Builder
	lastSpace := false
	for _, r := range key {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
		case unicode.IsPunct(r) && r != '_' && r != '-' && r != '\'':
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// nodeID hashes (canonical-key, n-gram-size, lang) per spec.md §3.
func nodeID(canonKey string, n int, lang string) string {
	return idhash.SHA1Hex(state.Tree{"key": canonKey, "n": n, "lang": lang})
}

// NodeManager turns mined patterns into canonical, scored, deduplicated
// nodes, sorted by (score desc, tf desc, n asc) and truncated to
// MaxNodesOut. Grounded in b4f2_node_manager.py.
func NodeManager(s state.Tree) kernel.Envelope {
	patterns := s.Get("concept_graph").Get("patterns").GetSlice("list")
	if len(patterns) == 0 {
		return kernel.Skip("no_patterns")
	}

	type agg struct {
		id, key, lang string
		n             int
		tf            int
	}
	byID := map[string]*agg{}
	for _, p := range patterns {
		pt, ok := asTree(p)
		if !ok {
			continue
		}
		key := pt.GetString("key")
		n := int(pt.GetInt64("n"))
		lang := pt.GetString("lang")
		canon := canonicalKey(key)
		if canon == "" {
			continue
		}
		id := nodeID(canon, n, lang)
		if a, exists := byID[id]; exists {
			a.tf++
		} else {
			byID[id] = &agg{id: id, key: canon, lang: lang, n: n, tf: 1}
		}
	}

	nodes := make([]*agg, 0, len(byID))
	for _, a := range byID {
		nodes = append(nodes, a)
	}
	sort.Slice(nodes, func(i, j int) bool {
		si, sj := nodeScore(nodes[i].tf, nodes[i].n), nodeScore(nodes[j].tf, nodes[j].n)
		if si != sj {
			return si > sj
		}
		if nodes[i].tf != nodes[j].tf {
			return nodes[i].tf > nodes[j].tf
		}
		return nodes[i].n < nodes[j].n
	})
	if len(nodes) > MaxNodesOut {
		nodes = nodes[:MaxNodesOut]
	}

	out := make([]any, len(nodes))
	for i, a := range nodes {
		score := nodeScore(a.tf, a.n)
		out[i] = state.Tree{"id": a.id, "key": a.key, "lang": a.lang, "n": a.n, "tf": a.tf, "score": score}
	}
	return kernel.OK(state.Tree{"concept_graph": state.Tree{"nodes": state.Tree{"nodes": out}}})
}

// nodeScore is a TF-IDF-like score with an n-gram length bonus: longer
// n-grams that still occur get a boost over equally-frequent unigrams.
func nodeScore(tf, n int) float64 {
	base := math.Log1p(float64(tf))
	return base * (1.0 + 0.15*float64(n-1))
}

// EdgeScorer scores co-occurrence edges between nodes that appeared in
// the same PackZ, weighted by both endpoints' node score.
func EdgeScorer(s state.Tree) kernel.Envelope {
	nodes := s.Get("concept_graph").Get("nodes").GetSlice("nodes")
	if len(nodes) < 2 {
		return kernel.Skip("insufficient_nodes")
	}
	type nodeRef struct {
		id    string
		score float64
	}
	refs := make([]nodeRef, 0, len(nodes))
	for _, n := range nodes {
		nt, ok := asTree(n)
		if !ok {
			continue
		}
		refs = append(refs, nodeRef{id: nt.GetString("id"), score: nt.GetFloat64("score")})
	}
	edges := make([]any, 0, len(refs))
	for i := 0; i < len(refs); i++ {
		for j := i + 1; j < len(refs); j++ {
			weight := (refs[i].score + refs[j].score) / 2
			edges = append(edges, state.Tree{"u": refs[i].id, "v": refs[j].id, "weight": weight})
		}
	}
	if len(edges) == 0 {
		return kernel.Skip("no_edges")
	}
	return kernel.OK(state.Tree{"concept_graph": state.Tree{"edges": state.Tree{"edges": edges}}})
}

// RuleExtractor proposes assoc rules from edges with weight >= 1.0 (no
// synonym or subsumes rules are produced), and stamps a new content-hash version id chaining the previous
// version, keeping concept_graph.version.parent_id monotonic.
func RuleExtractor(s state.Tree) kernel.Envelope {
	cg := s.Get("concept_graph")
	edges := cg.Get("edges").GetSlice("edges")
	if len(edges) == 0 {
		return kernel.Skip("no_edges")
	}
	nodes := cg.Get("nodes").GetSlice("nodes")

	rules := make([]any, 0, len(edges))
	nodeIDs := make([]any, 0, len(nodes))
	for _, n := range nodes {
		if nt, ok := asTree(n); ok {
			nodeIDs = append(nodeIDs, nt.GetString("id"))
		}
	}
	edgePairs := make([]any, 0, len(edges))
	for _, e := range edges {
		et, ok := asTree(e)
		if !ok {
			continue
		}
		u, v, w := et.GetString("u"), et.GetString("v"), et.GetFloat64("weight")
		edgePairs = append(edgePairs, state.Tree{"u": u, "v": v})
		if w >= 1.0 {
			rules = append(rules, state.Tree{"type": "assoc", "u": u, "v": v, "weight": w})
		}
	}
	if len(rules) == 0 {
		return kernel.SkipWith("no_rules_above_threshold", state.Tree{"edges_considered": len(edges)})
	}

	parentID := cg.Get("version").GetString("id")
	versionID := idhash.SHA1Hex(state.Tree{
		"parent": parentID,
		"rules":  rules,
		"nodes":  nodeIDs,
		"edges":  edgePairs,
	})

	existingRules := cg.Get("rules").GetSlice("rules")
	allRules := append(append([]any{}, existingRules...), rules...)

	return kernel.OK(state.Tree{
		"concept_graph": state.Tree{
			"rules":   state.Tree{"rules": allRules, "new_count": len(rules)},
			"version": state.Tree{"id": versionID, "parent_id": parentID},
		},
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
