package b9observability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/stages/b9observability"
	"github.com/noema/noema/internal/state"
)

func TestTelemetryAggregatorSkipsWithNoExecutionCount(t *testing.T) {
	env := b9observability.TelemetryAggregator(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestTelemetryAggregatorComputesRatesAndFlagsHighUncertainty(t *testing.T) {
	s := state.Tree{
		"executor": state.Tree{"results": state.Tree{
			"aggregate": state.Tree{"count": 2, "ok_count": 1},
			"items": []any{
				state.Tree{"latency_ms": 100},
				state.Tree{"latency_ms": 300},
			},
		}},
		"world_model": state.Tree{"uncertainty": state.Tree{"score": 0.9}},
	}
	env := b9observability.TelemetryAggregator(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	tel := env.Updates.Get("observability").Get("telemetry")
	metrics := tel.Get("metrics")
	assert.Equal(t, 0.5, metrics.GetFloat64("exec_success_rate"))
	assert.Equal(t, float64(200), metrics.GetFloat64("exec_avg_latency_ms"))
	summary := tel.Get("summary")
	assert.True(t, summary.GetBool("needs_introspection"))
}

func TestTraceBuilderSkipsWithoutPackz(t *testing.T) {
	env := b9observability.TraceBuilder(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestTraceBuilderAppendsSpan(t *testing.T) {
	s := state.Tree{
		"perception": state.Tree{"packz": state.Tree{"id": "p1"}},
		"dialog":     state.Tree{"final": state.Tree{"move": "execute"}},
	}
	env := b9observability.TraceBuilder(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	spans := env.Updates.Get("observability").GetSlice("spans")
	require.Len(t, spans, 1)
	assert.Equal(t, "p1", spans[0].(state.Tree).GetString("packz_id"))
}

func TestSLOEvaluatorSkipsWithoutMetrics(t *testing.T) {
	env := b9observability.SLOEvaluator(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestSLOEvaluatorScoresPerfectMetricsAsOne(t *testing.T) {
	s := state.Tree{"observability": state.Tree{"telemetry": state.Tree{"metrics": state.Tree{
		"exec_avg_latency_ms": 100.0,
		"exec_total_cost":     0.0,
		"exec_success_rate":   1.0,
	}}}}
	env := b9observability.SLOEvaluator(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	slo := env.Updates.Get("observability").Get("slo")
	assert.Equal(t, 1.0, slo.GetFloat64("score"))
	assert.Empty(t, slo.GetSlice("alerts"))
}

func TestSLOEvaluatorEmitsAlertOnLatencyBreach(t *testing.T) {
	s := state.Tree{"observability": state.Tree{"telemetry": state.Tree{"metrics": state.Tree{
		"exec_avg_latency_ms": 4500.0,
		"exec_total_cost":     0.0,
		"exec_success_rate":   1.0,
	}}}}
	env := b9observability.SLOEvaluator(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	slo := env.Updates.Get("observability").Get("slo")
	alerts := slo.GetSlice("alerts")
	require.Len(t, alerts, 1)
	alert := alerts[0].(state.Tree)
	assert.Equal(t, "latency", alert.GetString("check"))
	assert.Equal(t, "executor.timeout_ms", alert.GetString("knob"))
}
