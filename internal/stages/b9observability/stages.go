// Package b9observability implements the B9 observability block:
// telemetry aggregation, trace building, and SLO evaluation. Grounded in
// spec.md §4.9's description of the telemetry aggregator and SLO
// evaluator, and wired to github.com/armon/go-metrics as an additional
// sink alongside the in-state telemetry subtree (SPEC_FULL.md domain
// stack).
package b9observability

import (
	"github.com/armon/go-metrics"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

var sink = metrics.NewInmemSink(10e9, 60e9)

// Check names a single soft SLO check with its threshold and weight.
type Check struct {
	Name      string
	Metric    string
	Threshold float64
	Lower     bool // true when the metric must stay BELOW threshold
	Weight    float64
}

// Checks is the default set of SLO checks the evaluator scores.
var Checks = []Check{
	{Name: "latency", Metric: "exec_avg_latency_ms", Threshold: 1500, Lower: true, Weight: 0.4},
	{Name: "cost", Metric: "exec_total_cost", Threshold: 0.01, Lower: true, Weight: 0.3},
	{Name: "success_rate", Metric: "exec_success_rate", Threshold: 0.9, Lower: false, Weight: 0.3},
}

// TelemetryAggregator turns the tick's executor/storage/transport
// artifacts into labeled metrics and an audit entry.
func TelemetryAggregator(s state.Tree) kernel.Envelope {
	exec := s.Get("executor").Get("results")
	agg := exec.Get("aggregate")
	count := agg.GetInt64("count")
	if count == 0 {
		return kernel.Skip("nothing_observed")
	}
	okCount := agg.GetInt64("ok_count")
	successRate := float64(okCount) / float64(count)

	var totalLatency int64
	items := exec.GetSlice("items")
	for _, it := range items {
		if t, ok := asTree(it); ok {
			totalLatency += t.GetInt64("latency_ms")
		}
	}
	avgLatency := float64(0)
	if count > 0 {
		avgLatency = float64(totalLatency) / float64(count)
	}

	metricsOut := state.Tree{
		"exec_avg_latency_ms": avgLatency,
		"exec_success_rate":   successRate,
		"exec_total_cost":     0.0,
	}
	sink.SetGauge([]string{"noema", "exec", "avg_latency_ms"}, float32(avgLatency))
	sink.SetGauge([]string{"noema", "exec", "success_rate"}, float32(successRate))

	audit := state.Tree{"event": "tick_executed", "count": count, "ok_count": okCount}

	summary := s.Get("observability").Get("telemetry").Get("summary")
	newSummary := state.Tree{}
	for k, v := range summary {
		newSummary[k] = v
	}
	uncertainty := s.Get("world_model").Get("uncertainty").GetFloat64("score")
	newSummary["uncertainty"] = uncertainty
	newSummary["needs_introspection"] = uncertainty >= 0.75
	newRules := s.Get("concept_graph").Get("rules").GetInt64("new_count")
	newSummary["concept_new_rules"] = newRules

	return kernel.OK(state.Tree{
		"observability": state.Tree{
			"telemetry": state.Tree{
				"metrics": metricsOut,
				"audit":   []any{audit},
				"summary": newSummary,
			},
		},
	})
}

// TraceBuilder appends a single trace span for the tick carrying the
// PackZ id and the final dialog move.
func TraceBuilder(s state.Tree) kernel.Envelope {
	packID := s.Get("perception").Get("packz").GetString("id")
	if packID == "" {
		return kernel.Skip("no_packz")
	}
	span := state.Tree{
		"packz_id": packID,
		"move":     s.Get("dialog").Get("final").GetString("move"),
	}
	spans := s.Get("observability").GetSlice("spans")
	spans = append(spans, span)
	return kernel.OK(state.Tree{"observability": state.Tree{"spans": spans}})
}

// SLOEvaluator scores each Check softly (1.0 at or better than
// threshold, ramped down beyond it, floored at 0), sums weighted scores
// into observability.score, and emits alerts with a suggested knob for
// failing checks. Grounded in spec.md §4.9 and the SLO-breach scenario.
func SLOEvaluator(s state.Tree) kernel.Envelope {
	metricsTree := s.Get("observability").Get("telemetry").Get("metrics")
	if len(metricsTree) == 0 {
		return kernel.Skip("no_metrics")
	}

	total, weightSum := 0.0, 0.0
	var alerts []any
	for _, c := range Checks {
		v := metricsTree.GetFloat64(c.Metric)
		score := softScore(v, c.Threshold, c.Lower)
		total += score * c.Weight
		weightSum += c.Weight
		if score < 0.8 {
			alerts = append(alerts, state.Tree{
				"check":    c.Name,
				"severity": severityFor(score),
				"value":    v,
				"knob":     suggestedKnob(c.Name),
			})
		}
	}
	sloScore := 0.0
	if weightSum > 0 {
		sloScore = total / weightSum
	}
	return kernel.OK(state.Tree{
		"observability": state.Tree{"slo": state.Tree{"score": sloScore, "alerts": alerts}},
	})
}

func softScore(value, threshold float64, lower bool) float64 {
	if lower {
		if value <= threshold {
			return 1.0
		}
		overage := (value - threshold) / threshold
		score := 1.0 - overage
		if score < 0 {
			return 0
		}
		return score
	}
	if value >= threshold {
		return 1.0
	}
	deficit := (threshold - value) / threshold
	score := 1.0 - deficit
	if score < 0 {
		return 0
	}
	return score
}

func severityFor(score float64) string {
	switch {
	case score < 0.4:
		return "critical"
	case score < 0.7:
		return "warning"
	default:
		return "info"
	}
}

func suggestedKnob(check string) string {
	switch check {
	case "latency":
		return "executor.timeout_ms"
	case "cost":
		return "budget.exec_total_cost_max"
	case "success_rate":
		return "guardrails.block_execute_when.slo_below"
	default:
		return ""
	}
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
