package b2worldmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

func TestContextBuilderSkipsWithoutPackZ(t *testing.T) {
	env := ContextBuilder(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestPredictorDistributionSumsToOne(t *testing.T) {
	s := state.Tree{"world_model": state.Tree{"context": state.Tree{
		"text": "hello, can you help me with something?",
		"signals": state.Tree{"has_question": true, "token_count": int64(10)},
	}}}
	env := Predictor(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	dist := env.Updates.Get("world_model").Get("expected_reply").Get("dist")
	sum := 0.0
	for _, v := range dist {
		sum += v.(float64)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.NotEmpty(t, env.Updates.Get("world_model").Get("expected_reply").GetString("best"))
}

func TestErrorScorerFlagsMismatch(t *testing.T) {
	s := state.Tree{
		"world_model": state.Tree{"expected_reply": state.Tree{"best": "direct_answer"}},
		"dialog":      state.Tree{"final": state.Tree{"move": "ask"}},
	}
	env := ErrorScorer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	assert.Equal(t, 1.0, env.Updates.Get("world_model").Get("error").GetFloat64("value"))
}

func TestErrorScorerTraceIsBounded(t *testing.T) {
	trace := make([]any, TraceLimit)
	for i := range trace {
		trace[i] = 0.0
	}
	s := state.Tree{
		"world_model": state.Tree{"expected_reply": state.Tree{"best": "direct_answer"}, "error_trace": trace},
		"dialog":      state.Tree{"final": state.Tree{"move": "answer"}},
	}
	env := ErrorScorer(s)
	newTrace := env.Updates.Get("world_model").GetSlice("error_trace")
	assert.Len(t, newTrace, TraceLimit)
}

func TestUncertaintyScorerHighOnFrequentErrors(t *testing.T) {
	trace := []any{1.0, 1.0, 1.0, 1.0}
	s := state.Tree{"world_model": state.Tree{
		"error_trace":    trace,
		"expected_reply": state.Tree{"dist": state.Tree{"a": 1.0}},
	}}
	env := UncertaintyScorer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	assert.Greater(t, env.Updates.Get("world_model").Get("uncertainty").GetFloat64("score"), 0.5)
}
