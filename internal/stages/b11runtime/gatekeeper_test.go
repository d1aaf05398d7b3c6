package b11runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

func TestGatekeeperSkipsWithoutActivatedConfig(t *testing.T) {
	env := Gatekeeper(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestGatekeeperDefaultsWhenGuardrailsAbsent(t *testing.T) {
	s := state.Tree{"runtime": state.Tree{"config": state.Tree{"executor": state.Tree{}}}}
	env := Gatekeeper(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	gates := env.Updates.Get("runtime").Get("gates")
	assert.True(t, gates.GetBool("allow_execute"))
	assert.False(t, gates.GetBool("require_confirm"))
	assert.Equal(t, int64(8000), gates.Get("limits").GetInt64("timeout_ms"))
}

func TestGatekeeperRequiresConfirmAboveUncertaintyThreshold(t *testing.T) {
	s := state.Tree{
		"runtime":     state.Tree{"config": state.Tree{"guardrails": state.Tree{}}},
		"world_model": state.Tree{"uncertainty": state.Tree{"score": 0.9}},
	}
	env := Gatekeeper(s)
	assert.True(t, env.Updates.Get("runtime").Get("gates").GetBool("require_confirm"))
}

func TestGatekeeperBlocksExecuteBelowSLOFloor(t *testing.T) {
	s := state.Tree{
		"runtime": state.Tree{"config": state.Tree{"guardrails": state.Tree{
			"block_execute_when": state.Tree{"slo_below": 0.5},
		}}},
		"observability": state.Tree{"slo": state.Tree{"score": 0.2}},
	}
	env := Gatekeeper(s)
	assert.False(t, env.Updates.Get("runtime").Get("gates").GetBool("allow_execute"))
}

func TestGatekeeperThrottlesOnLatencyOverage(t *testing.T) {
	s := state.Tree{
		"runtime": state.Tree{"config": state.Tree{"guardrails": state.Tree{}}},
		"observability": state.Tree{"telemetry": state.Tree{"metrics": state.Tree{
			"exec_avg_latency_ms": 2000.0,
		}}},
	}
	env := Gatekeeper(s)
	throttle := env.Updates.Get("runtime").Get("gates").GetFloat64("throttle_ms")
	assert.Greater(t, throttle, 0.0)
}

func TestGatekeeperFeatureFlagBooleanPassthrough(t *testing.T) {
	s := state.Tree{
		"runtime": state.Tree{"config": state.Tree{"guardrails": state.Tree{
			"features": state.Tree{"new_nlg": true},
		}}},
	}
	env := Gatekeeper(s)
	features := env.Updates.Get("runtime").Get("gates").Get("features")
	assert.Equal(t, true, features["new_nlg"])
}

func TestGatekeeperFeatureFlagRolloutIsDeterministic(t *testing.T) {
	s := state.Tree{
		"session": state.Tree{"thread_id": "thread-xyz"},
		"runtime": state.Tree{"config": state.Tree{"guardrails": state.Tree{
			"features": state.Tree{"beta": state.Tree{"rollout": int64(100), "salt": "beta"}},
		}}},
	}
	env1 := Gatekeeper(s)
	env2 := Gatekeeper(s)
	f1 := env1.Updates.Get("runtime").Get("gates").Get("features")["beta"]
	f2 := env2.Updates.Get("runtime").Get("gates").Get("features")["beta"]
	assert.Equal(t, f1, f2)
	assert.Equal(t, true, f1) // rollout 100 always buckets in
}
