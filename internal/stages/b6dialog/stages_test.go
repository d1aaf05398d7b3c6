package b6dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

func TestTurnRealizerPrefersPlanOverRetrieval(t *testing.T) {
	s := state.Tree{
		"planner": state.Tree{"plan": state.Tree{"id": "plan-1"}},
		"memory":  state.Tree{"retrieved": []any{state.Tree{"text": "hello"}}},
	}
	env := TurnRealizer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	turn := env.Updates.Get("dialog").Get("turn")
	assert.Equal(t, "execute", turn.GetString("move"))
	assert.Equal(t, "plan-1", turn.GetString("plan_id"))
}

func TestTurnRealizerSkipsWhenNothingToSay(t *testing.T) {
	env := TurnRealizer(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestSurfaceNLGTruncatesLongText(t *testing.T) {
	long := make([]byte, MaxOutLen+500)
	for i := range long {
		long[i] = 'a'
	}
	s := state.Tree{
		"dialog": state.Tree{"turn": state.Tree{"move": "answer"}},
		"memory": state.Tree{"retrieved": []any{state.Tree{"text": string(long)}}},
	}
	env := SurfaceNLG(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	text := env.Updates.Get("dialog").Get("surface").GetString("text")
	assert.Len(t, text, MaxOutLen)
}

func TestSafetyFilterRedactsEmailAndRequiresNoConfirm(t *testing.T) {
	s := state.Tree{
		"dialog": state.Tree{"surface": state.Tree{"move": "answer", "text": "reach me at a@b.com please"}},
	}
	env := SafetyFilter(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	final := env.Updates.Get("dialog").Get("final")
	assert.Equal(t, "answer", final.GetString("move"))
	assert.Contains(t, final.GetString("text"), "[REDACTED_EMAIL]")
	assert.False(t, final.GetBool("blocked"))
}

func TestSafetyFilterBlocksOnDetectedSecret(t *testing.T) {
	s := state.Tree{
		"dialog": state.Tree{"surface": state.Tree{"move": "answer", "text": "key is sk-abcdefghijklmnopqrstuvwx"}},
	}
	env := SafetyFilter(s)
	final := env.Updates.Get("dialog").Get("final")
	assert.Equal(t, "confirm", final.GetString("move"))
	assert.True(t, final.GetBool("blocked"))
	assert.Equal(t, "secret_detected", final.GetString("reason"))
}

func TestSafetyFilterConfirmsOnPlanGuardrailsMustConfirm(t *testing.T) {
	s := state.Tree{
		"dialog":  state.Tree{"surface": state.Tree{"move": "answer", "text": "plain text"}},
		"planner": state.Tree{"plan": state.Tree{"guardrails": state.Tree{"must_confirm": true}}},
	}
	env := SafetyFilter(s)
	final := env.Updates.Get("dialog").Get("final")
	assert.Equal(t, "confirm", final.GetString("move"))
	assert.Equal(t, "must_confirm", final.GetString("reason"))
}

func TestSafetyFilterIgnoresStaleGatekeeperConfirmFromPriorTick(t *testing.T) {
	s := state.Tree{
		"dialog":  state.Tree{"surface": state.Tree{"move": "answer", "text": "plain text"}},
		"runtime": state.Tree{"gates": state.Tree{"require_confirm": true}},
	}
	env := SafetyFilter(s)
	final := env.Updates.Get("dialog").Get("final")
	assert.Equal(t, "answer", final.GetString("move"), "runtime.gates is last tick's gate, not this tick's plan guardrails")
}

func TestLooksLikeCreditCardLuhn(t *testing.T) {
	assert.True(t, looksLikeCreditCard("4111 1111 1111 1111"))
	assert.False(t, looksLikeCreditCard("4111 1111 1111 1112"))
}
