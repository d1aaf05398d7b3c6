package b11runtime

import (
	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// Gatekeeper defaults, grounded in
// original_source/n3_core/block_11_runtime/b11f2_runtime_gatekeeper.py.
const (
	DefaultMustConfirmUThreshold = 0.4
	DefaultBlockExecuteWhenSLOBelow = 0.0 // 0 == disabled
	DefaultLatencySoftLimitMs    = 1500.0
	DefaultLatencyThrottleCapMs  = 1200.0
	DefaultIndexQueueSoftMax     = 1000.0
	DefaultIndexThrottleCapMs    = 600.0
	DefaultTotalThrottleCapMs    = 1500.0
)

// Gatekeeper reads the activated config's guardrails, the current SLO
// score, uncertainty, and recent execution telemetry, and produces a
// gates object: {allow_execute, allow_answer, require_confirm,
// throttle_ms, limits, features}. Grounded in b11f2_runtime_gatekeeper.py.
func Gatekeeper(s state.Tree) kernel.Envelope {
	config := s.Get("runtime").Get("config")
	guardrails := config.Get("guardrails")
	if len(config) == 0 {
		return kernel.Skip("no_activated_config")
	}

	uThreshold := floatOr(guardrails.Get("must_confirm"), "u_threshold", DefaultMustConfirmUThreshold)
	sloBelow := floatOr(guardrails.Get("block_execute_when"), "slo_below", DefaultBlockExecuteWhenSLOBelow)
	latencySoftLimit := floatOr(guardrails, "latency_soft_limit_ms", DefaultLatencySoftLimitMs)
	indexQueueSoftMax := floatOr(guardrails, "index_queue_soft_max", DefaultIndexQueueSoftMax)

	uncertainty := s.Get("world_model").Get("uncertainty").GetFloat64("score")
	sloScore := s.Get("observability").Get("slo").GetFloat64("score")
	avgLatency := s.Get("observability").Get("telemetry").Get("metrics").GetFloat64("exec_avg_latency_ms")
	queueDepth := float64(len(s.Get("memory").GetSlice("index_queue")))

	requireConfirm := uncertainty >= uThreshold
	allowExecute := true
	if sloBelow > 0 && sloScore < sloBelow {
		allowExecute = false
	}

	throttle := 0.0
	if avgLatency > latencySoftLimit {
		overage := avgLatency - latencySoftLimit
		t := overage * 0.5
		if t > DefaultLatencyThrottleCapMs {
			t = DefaultLatencyThrottleCapMs
		}
		throttle += t
	}
	if queueDepth > indexQueueSoftMax {
		overage := queueDepth - indexQueueSoftMax
		t := overage * 0.1
		if t > DefaultIndexThrottleCapMs {
			t = DefaultIndexThrottleCapMs
		}
		throttle += t
	}
	if throttle > DefaultTotalThrottleCapMs {
		throttle = DefaultTotalThrottleCapMs
	}

	features := evalFeatureFlags(guardrails.Get("features"), s, sloScore, uncertainty)

	gates := state.Tree{
		"allow_execute":   allowExecute,
		"allow_answer":    true,
		"require_confirm": requireConfirm,
		"throttle_ms":     throttle,
		"limits": state.Tree{
			"timeout_ms":   intOrKey(config.Get("executor"), "timeout_ms", 8000),
			"max_inflight": intOrKey(config.Get("executor"), "max_inflight", 4),
		},
		"features": features,
	}

	return kernel.OK(state.Tree{"runtime": state.Tree{"gates": gates}})
}

// evalFeatureFlags resolves every entry of a features config map, which
// may be a plain bool or an object
// {rollout:0-100, salt, when:{slo_score_min, uncertainty_max}}, with
// deterministic bucketing via sha1(thread_id|salt) % 100 < rollout.
func evalFeatureFlags(raw state.Tree, s state.Tree, sloScore, uncertainty float64) state.Tree {
	out := state.Tree{}
	threadID := s.Get("session").GetString("thread_id")
	for name, v := range raw {
		switch fv := v.(type) {
		case bool:
			out[name] = fv
		default:
			cfg, ok := asMap(v)
			if !ok {
				continue
			}
			when := cfg.Get("when")
			if min := when.GetFloat64("slo_score_min"); min > 0 && sloScore < min {
				out[name] = false
				continue
			}
			if max := when.GetFloat64("uncertainty_max"); max > 0 && uncertainty > max {
				out[name] = false
				continue
			}
			rollout := int(cfg.GetInt64("rollout"))
			salt := cfg.GetString("salt")
			if salt == "" {
				salt = name
			}
			bucket := idhash.BucketPercent(threadID, salt)
			out[name] = bucket < rollout
		}
	}
	return out
}

func floatOr(t state.Tree, key string, def float64) float64 {
	if t == nil {
		return def
	}
	if _, ok := t[key]; !ok {
		return def
	}
	return t.GetFloat64(key)
}

func intOrKey(t state.Tree, key string, def int) int {
	if t == nil {
		return def
	}
	if _, ok := t[key]; !ok {
		return def
	}
	return int(t.GetInt64(key))
}
