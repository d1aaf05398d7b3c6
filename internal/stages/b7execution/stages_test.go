package b7execution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/stages/b7execution"
	"github.com/noema/noema/internal/state"
)

func TestSkillDispatcherSkipsWhenMoveIsNotExecute(t *testing.T) {
	s := state.Tree{"dialog": state.Tree{"final": state.Tree{"move": "confirm"}}}
	env := b7execution.SkillDispatcher(s)
	assert.Equal(t, kernel.StatusSkip, env.Status)
	assert.Equal(t, "move_not_execute", env.Diag.GetString("reason"))
}

func TestSkillDispatcherAppendsRequestOnExecute(t *testing.T) {
	s := state.Tree{
		"dialog":  state.Tree{"final": state.Tree{"move": "execute"}},
		"planner": state.Tree{"plan": state.Tree{"id": "p1", "skill": "search", "slots": state.Tree{"query": "x"}}},
	}
	env := b7execution.SkillDispatcher(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	reqs := env.Updates.Get("executor").GetSlice("requests")
	require.Len(t, reqs, 1)
	req := reqs[0].(state.Tree)
	assert.Equal(t, "search", req.GetString("skill_id"))
	assert.Equal(t, "p1", req.GetString("plan_id"))
}

func TestResultNormalizerFlattensRawAndCountsOK(t *testing.T) {
	s := state.Tree{"executor": state.Tree{"raw": []any{
		state.Tree{"req_id": "r1", "ok": true, "score": 0.9},
		state.Tree{"req_id": "r2", "ok": false, "score": 0.1},
	}}}
	env := b7execution.ResultNormalizer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	results := env.Updates.Get("executor").Get("results")
	aggregate := results.Get("aggregate")
	assert.Equal(t, float64(2), aggregate.GetFloat64("count"))
	assert.Equal(t, float64(1), aggregate.GetFloat64("ok_count"))
}

func TestResultNormalizerSkipsWithoutRaw(t *testing.T) {
	env := b7execution.ResultNormalizer(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestResultPresenterPicksHighestScoringOKResult(t *testing.T) {
	s := state.Tree{"executor": state.Tree{"results": state.Tree{"items": []any{
		state.Tree{"req_id": "a", "ok": true, "score": 0.4},
		state.Tree{"req_id": "b", "ok": true, "score": 0.9},
		state.Tree{"req_id": "c", "ok": false, "score": 1.0},
	}}}}
	env := b7execution.ResultPresenter(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	best := env.Updates.Get("executor").Get("results").Get("best")
	assert.Equal(t, "b", best.GetString("req_id"))
}

func TestResultPresenterSkipsWhenNoItemSucceeded(t *testing.T) {
	s := state.Tree{"executor": state.Tree{"results": state.Tree{"items": []any{
		state.Tree{"req_id": "a", "ok": false, "score": 0.9},
	}}}}
	env := b7execution.ResultPresenter(s)
	assert.Equal(t, kernel.StatusSkip, env.Status)
	assert.Equal(t, "no_ok_result", env.Diag.GetString("reason"))
}
