package skills_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/drivers/skills"
	"github.com/noema/noema/internal/state"
)

func TestExecuteSkillsRunsKnownSkillSuccessfully(t *testing.T) {
	r := skills.NewRunner(nil)
	reply := r.ExecuteSkills(state.Tree{
		"calls": []any{state.Tree{"req_id": "r1", "skill_id": "echo", "params": state.Tree{"msg": "hi"}}},
	})
	assert.True(t, reply.GetBool("ok"))
	calls := reply.GetSlice("calls")
	require.Len(t, calls, 1)
	res := calls[0].(state.Tree)
	assert.True(t, res.GetBool("ok"))
	assert.Equal(t, "r1", res.GetString("req_id"))
}

func TestExecuteSkillsReportsUnknownSkillAsFailure(t *testing.T) {
	r := skills.NewRunner(nil)
	reply := r.ExecuteSkills(state.Tree{
		"calls": []any{state.Tree{"req_id": "r1", "skill_id": "nope"}},
	})
	assert.False(t, reply.GetBool("ok"))
	res := reply.GetSlice("calls")[0].(state.Tree)
	assert.Equal(t, "unknown_skill", res.GetString("text"))
}

func TestExecuteSkillsHandlesMalformedCallWithoutDeadlock(t *testing.T) {
	r := skills.NewRunner(nil)
	done := make(chan state.Tree, 1)
	go func() {
		done <- r.ExecuteSkills(state.Tree{"calls": []any{"not-a-tree"}})
	}()
	select {
	case reply := <-done:
		assert.False(t, reply.GetBool("ok"))
		calls := reply.GetSlice("calls")
		require.Len(t, calls, 1)
		assert.Equal(t, "malformed_call", calls[0].(state.Tree).GetString("text"))
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteSkills deadlocked on a malformed call")
	}
}

func TestExecuteSkillsAggregatesAllOKAcrossMultipleCalls(t *testing.T) {
	r := skills.NewRunner(nil)
	reply := r.ExecuteSkills(state.Tree{
		"calls": []any{
			state.Tree{"req_id": "r1", "skill_id": "echo"},
			state.Tree{"req_id": "r2", "skill_id": "search", "params": state.Tree{"query": "x"}},
		},
	})
	assert.True(t, reply.GetBool("ok"))
	assert.Len(t, reply.GetSlice("calls"), 2)
}
