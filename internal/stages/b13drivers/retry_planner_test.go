package b13drivers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

func TestDriverRetryPlannerSkipsWithNoJobs(t *testing.T) {
	env := DriverRetryPlanner(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestDriverRetryPlannerRetriesFailedSkillWithinBudget(t *testing.T) {
	s := state.Tree{
		"driver": state.Tree{
			"jobs": []any{state.Tree{"job_id": "j1", "type": "skills", "idempotency_key": "k1", "content": state.Tree{}}},
		},
		"executor": state.Tree{"raw": []any{state.Tree{"ok": false, "req_id": "r1"}}},
	}
	env := DriverRetryPlanner(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	jobs := env.Updates.Get("driver").Get("retry").GetSlice("jobs")
	require.Len(t, jobs, 1)
	rj := jobs[0].(state.Tree)
	assert.Equal(t, int64(1), rj.GetInt64("attempts_next"))
	assert.Greater(t, rj.GetFloat64("backoff_ms"), 0.0)
}

func TestDriverRetryPlannerStopsAtMaxAttempts(t *testing.T) {
	s := state.Tree{
		"driver": state.Tree{
			"jobs":    []any{state.Tree{"job_id": "j1", "type": "skills"}},
			"history": state.Tree{"attempts": state.Tree{"j1": int64(3)}},
		},
		"executor": state.Tree{"raw": []any{state.Tree{"ok": false}}},
	}
	env := DriverRetryPlanner(s)
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestDriverRetryPlannerIgnoresTimerJobsDisabledPolicy(t *testing.T) {
	s := state.Tree{
		"driver": state.Tree{"jobs": []any{state.Tree{"job_id": "t1", "type": "timer"}}},
	}
	env := DriverRetryPlanner(s)
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestBackoffCapsAtMaxBackoffMs(t *testing.T) {
	v := backoff(RetryPolicy{BaseMs: 100000, Factor: 2, JitterMs: 0}, 5, "salt")
	assert.Equal(t, maxBackoffMs, v)
}
