// Package b2worldmodel implements the B2 world-model block: context
// window construction, next-move prediction, prediction-error scoring,
// and uncertainty scoring. Grounded in
// original_source/n3_core/block_2_world_model/b2f2_predictor.py.
package b2worldmodel

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// Labels is the fixed set of next-system-move classes the predictor
// scores a distribution over.
var Labels = []string{
	"direct_answer", "execute_action", "ask_clarification", "acknowledge_only",
	"small_talk", "closing", "refuse_or_safecheck", "other",
}

// BasePriors are the predictor's prior weight per label before any
// heuristic adjustment, before normalization.
var BasePriors = map[string]float64{
	"direct_answer":       0.28,
	"execute_action":      0.18,
	"ask_clarification":   0.14,
	"acknowledge_only":    0.10,
	"small_talk":          0.10,
	"closing":             0.06,
	"refuse_or_safecheck": 0.06,
	"other":               0.08,
}

const TraceLimit = 12
const EmbeddingDim = 64

// ContextBuilder assembles the world-model context window from the
// latest PackZ plus the recent dialog trace — the minimal input the
// predictor needs.
func ContextBuilder(s state.Tree) kernel.Envelope {
	pack := s.Get("perception").Get("packz")
	text := pack.GetString("text")
	if text == "" {
		return kernel.Skip("no_packz")
	}
	history := s.Get("world_model").GetSlice("history")
	ctx := state.Tree{
		"text":    text,
		"lang":    pack.GetString("lang"),
		"signals": pack.Get("signals"),
		"history": history,
	}
	return kernel.OK(state.Tree{"world_model": state.Tree{"context": ctx}})
}

// trigramEmbedding hashes character trigrams of text into a fixed
// EmbeddingDim-length vector and L2-normalizes it, the same lightweight
// embedding scheme the original predictor uses in place of a learned
// model.
func trigramEmbedding(text string) []float64 {
	vec := make([]float64, EmbeddingDim)
	runes := []rune(strings.ToLower(text))
	if len(runes) < 3 {
		return vec
	}
	for i := 0; i+3 <= len(runes); i++ {
		tri := string(runes[i : i+3])
		h := fnv1a(tri)
		vec[int(h%uint32(EmbeddingDim))] += 1.0
	}
	norm := math.Sqrt(floats.Dot(vec, vec))
	if norm > 0 {
		floats.Scale(1.0/norm, vec)
	}
	return vec
}

func fnv1a(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := math.Sqrt(floats.Dot(a, a))
	nb := math.Sqrt(floats.Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Predictor produces expected_reply, a probability distribution over
// Labels, by combining BasePriors, heuristic signal adjustments,
// trigram-embedding similarity to stored prototypes, and a
// transition-matrix score from the previous move (the last context
// history entry); no other history-based adjustment is applied. Grounded
// in b2f2_predictor.py.
func Predictor(s state.Tree) kernel.Envelope {
	wm := s.Get("world_model")
	ctx := wm.Get("context")
	text := ctx.GetString("text")
	if text == "" {
		return kernel.Skip("no_context")
	}
	signals := ctx.Get("signals")

	scores := make(map[string]float64, len(Labels))
	for _, l := range Labels {
		scores[l] = BasePriors[l]
	}

	if signals.GetBool("has_question") {
		scores["ask_clarification"] += 0.05
		scores["direct_answer"] += 0.10
	}
	if signals.GetBool("looks_like_thanks") {
		scores["closing"] += 0.25
		scores["acknowledge_only"] += 0.10
	}
	if tc := signals.GetInt64("token_count"); tc > 40 {
		scores["execute_action"] += 0.08
	}

	embedding := trigramEmbedding(text)
	protos := prototypes(wm)
	rationale := []any{}
	for label, proto := range protos {
		sim := cosine(embedding, proto)
		if sim > 0 {
			scores[label] += sim * 0.2
			if len(rationale) < TraceLimit {
				rationale = append(rationale, state.Tree{"label": label, "similarity": sim})
			}
		}
	}

	history := ctx.GetSlice("history")
	if len(history) > 0 {
		if last, ok := history[len(history)-1].(string); ok {
			if bonus, ok := transitionBonus(last); ok {
				for label, b := range bonus {
					scores[label] += b
				}
			}
		}
	}

	total := 0.0
	for _, v := range scores {
		if v < 0 {
			v = 0
		}
		total += v
	}
	dist := make(state.Tree, len(scores))
	if total <= 0 {
		for _, l := range Labels {
			dist[l] = 1.0 / float64(len(Labels))
		}
	} else {
		for l, v := range scores {
			if v < 0 {
				v = 0
			}
			dist[l] = v / total
		}
	}

	best, bestScore := "other", -1.0
	for l, v := range dist {
		fv, _ := v.(float64)
		if fv > bestScore {
			best, bestScore = l, fv
		}
	}

	if len(rationale) > TraceLimit {
		rationale = rationale[:TraceLimit]
	}

	return kernel.OK(state.Tree{
		"world_model": state.Tree{
			"expected_reply": state.Tree{"dist": dist, "best": best, "best_score": bestScore},
			"rationale":      rationale,
		},
	})
}

// prototypes returns named embedding prototypes stored in the world
// model state; absent a stored table, returns none and the predictor
// falls back to priors plus heuristics only.
func prototypes(wm state.Tree) map[string][]float64 {
	raw := wm.Get("prototypes")
	out := map[string][]float64{}
	for label, v := range raw {
		slice, ok := v.([]any)
		if !ok {
			continue
		}
		vec := make([]float64, len(slice))
		for i, e := range slice {
			switch n := e.(type) {
			case float64:
				vec[i] = n
			case int:
				vec[i] = float64(n)
			}
		}
		out[label] = vec
	}
	return out
}

// transitionBonus gives a small additive bonus to labels that commonly
// follow lastMove, a coarse Markov-style transition score.
func transitionBonus(lastMove string) (map[string]float64, bool) {
	table := map[string]map[string]float64{
		"ask":     {"direct_answer": 0.08, "ask_clarification": 0.04},
		"confirm": {"execute_action": 0.1, "refuse_or_safecheck": 0.03},
		"answer":  {"closing": 0.05, "small_talk": 0.03},
	}
	bonus, ok := table[lastMove]
	return bonus, ok
}

// ErrorScorer compares the previous tick's predicted best label against
// the move that was actually realized, producing a 0/1 prediction-error
// signal plus a bounded error trace.
func ErrorScorer(s state.Tree) kernel.Envelope {
	wm := s.Get("world_model")
	predicted := wm.Get("expected_reply").GetString("best")
	if predicted == "" {
		return kernel.Skip("no_prediction")
	}
	actual := s.Get("dialog").Get("final").GetString("move")
	errVal := 0.0
	if actual != "" && !moveMatchesLabel(actual, predicted) {
		errVal = 1.0
	}
	trace := wm.GetSlice("error_trace")
	trace = append(trace, errVal)
	if len(trace) > TraceLimit {
		trace = trace[len(trace)-TraceLimit:]
	}
	return kernel.OK(state.Tree{
		"world_model": state.Tree{"error": state.Tree{"value": errVal}, "error_trace": trace},
	})
}

func moveMatchesLabel(move, label string) bool {
	mapping := map[string]string{
		"answer":  "direct_answer",
		"execute": "execute_action",
		"ask":     "ask_clarification",
		"ack":     "acknowledge_only",
		"refuse":  "refuse_or_safecheck",
	}
	return mapping[move] == label
}

// UncertaintyScorer turns the recent error trace and prediction spread
// into a single uncertainty score in [0,1]: high when errors are
// frequent or the predicted distribution is flat.
func UncertaintyScorer(s state.Tree) kernel.Envelope {
	wm := s.Get("world_model")
	trace := wm.GetSlice("error_trace")
	if len(trace) == 0 {
		return kernel.Skip("no_error_trace")
	}
	sum := 0.0
	for _, v := range trace {
		if f, ok := v.(float64); ok {
			sum += f
		}
	}
	errRate := sum / float64(len(trace))

	dist := wm.Get("expected_reply").Get("dist")
	entropy := 0.0
	for _, v := range dist {
		p, _ := v.(float64)
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	maxEntropy := math.Log2(float64(len(Labels)))
	spread := 0.0
	if maxEntropy > 0 {
		spread = entropy / maxEntropy
	}

	score := 0.6*errRate + 0.4*spread
	if score > 1 {
		score = 1
	}
	return kernel.OK(state.Tree{
		"world_model": state.Tree{"uncertainty": state.Tree{"score": score, "error_rate": errRate, "spread": spread}},
	})
}
