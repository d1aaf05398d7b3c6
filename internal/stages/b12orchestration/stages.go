// Package b12orchestration implements the B12 orchestration block: the
// orchestrator tick (abstract actions), the action enveloper (driver
// plan), and the job builder (concrete jobs with ids/deadlines).
// Grounded in
// original_source/n3_core/block_12_orchestration/b12f3_driver_job_builder.py.
package b12orchestration

import (
	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// Bounds cap the blast radius at each orchestration stage.
var Bounds = struct {
	MaxEmits   int
	MaxReqs    int
	MaxApplyOps int
	MaxIndex   int
}{MaxEmits: 8, MaxReqs: 8, MaxApplyOps: 200, MaxIndex: 200}

// baseTimeoutMs gives each job type a default dispatch timeout before
// padding is added for the deadline.
var baseTimeoutMs = map[string]int64{
	"transport": 2000,
	"skills":    8000,
	"storage":   3000,
	"timer":     100,
}

const deadlinePaddingMs = 250

// OrchestratorTick maps the scheduler's decision into a list of abstract
// actions: delay, emit, execute, persist, noop.
func OrchestratorTick(s state.Tree) kernel.Envelope {
	schedule := s.Get("runtime").Get("schedule")
	action := schedule.GetString("action")
	if action == "" {
		return kernel.Skip("no_schedule")
	}

	var actions []any
	switch action {
	case "sleep":
		actions = append(actions, state.Tree{"type": "delay", "delay_ms": schedule.GetFloat64("delay_ms")})
	case "confirm", "answer":
		text := schedule.Get("routes").GetString("text")
		if text == "" {
			text = s.Get("dialog").Get("final").GetString("text")
		}
		actions = append(actions, state.Tree{"type": "emit", "text": text})
	case "execute":
		actions = append(actions, state.Tree{"type": "execute", "requests": schedule.Get("routes").GetSlice("requests")})
	case "noop":
		actions = append(actions, state.Tree{"type": "noop"})
	}

	if ops := s.Get("storage").Get("apply_plan_optimized").GetSlice("ops"); len(ops) > 0 {
		actions = append(actions, state.Tree{"type": "persist", "ops": ops})
	}

	return kernel.OK(state.Tree{"orchestration": state.Tree{"actions": actions}})
}

// ActionEnveloper maps actions into a driver-plan with up to four
// optional subsections: transport, skills, storage, timers.
func ActionEnveloper(s state.Tree) kernel.Envelope {
	actions := s.Get("orchestration").GetSlice("actions")
	if len(actions) == 0 {
		return kernel.Skip("no_actions")
	}
	plan := state.Tree{}
	channel := s.Get("session").GetString("channel")
	if channel == "" {
		channel = "chat"
	}

	for _, raw := range actions {
		a, ok := asTree(raw)
		if !ok {
			continue
		}
		switch a.GetString("type") {
		case "emit":
			msgs := plan.GetSlice("transport_messages")
			if len(msgs) >= Bounds.MaxEmits {
				continue
			}
			msgs = append(msgs, state.Tree{"role": "assistant", "move": "answer", "text": a.GetString("text")})
			plan["transport_messages"] = msgs
			plan["transport_channel"] = channel
		case "execute":
			calls := plan.GetSlice("skill_calls")
			for _, rreq := range a.GetSlice("requests") {
				if len(calls) >= Bounds.MaxReqs {
					break
				}
				calls = append(calls, rreq)
			}
			plan["skill_calls"] = calls
		case "persist":
			ops := plan.GetSlice("storage_ops")
			for _, op := range a.GetSlice("ops") {
				if len(ops) >= Bounds.MaxApplyOps {
					break
				}
				ops = append(ops, op)
			}
			plan["storage_ops"] = ops
		case "delay":
			plan["timer_sleep_ms"] = a.GetFloat64("delay_ms")
		}
	}

	out := state.Tree{}
	if msgs := plan.GetSlice("transport_messages"); len(msgs) > 0 {
		out["transport"] = state.Tree{"channel": plan["transport_channel"], "messages": msgs}
	}
	if calls := plan.GetSlice("skill_calls"); len(calls) > 0 {
		out["skills"] = state.Tree{"calls": calls, "limits": state.Tree{"timeout_ms": 8000, "max_inflight": 4}}
	}
	if ops := plan.GetSlice("storage_ops"); len(ops) > 0 {
		ns := s.Get("storage").Get("apply_plan_optimized").GetString("namespace")
		index := s.Get("memory").GetSlice("index_queue")
		if len(index) > Bounds.MaxIndex {
			index = index[:Bounds.MaxIndex]
		}
		out["storage"] = state.Tree{"namespace": ns, "apply": ops, "index": index}
	}
	if v, ok := plan["timer_sleep_ms"]; ok {
		out["timers"] = state.Tree{"sleep_ms": v}
	}
	if len(out) == 0 {
		return kernel.Skip("empty_plan")
	}
	return kernel.OK(state.Tree{"orchestration": state.Tree{"driver_plan": out}})
}

// DriverJobBuilder turns the driver plan into concrete jobs: each job
// carries a job_id (hash of content+type), an idempotency_key (also
// content-derived), and a deadline_ms computed from per-type base
// timeouts plus padding. Grounded in b12f3_driver_job_builder.py.
func DriverJobBuilder(s state.Tree) kernel.Envelope {
	plan := s.Get("orchestration").Get("driver_plan")
	if len(plan) == 0 {
		return kernel.Skip("no_driver_plan")
	}
	var jobs []any

	if t := plan.Get("transport"); len(t) > 0 {
		jobs = append(jobs, buildJob("transport", t))
	}
	if sk := plan.Get("skills"); len(sk) > 0 {
		jobs = append(jobs, buildJob("skills", sk))
	}
	if st := plan.Get("storage"); len(st) > 0 {
		jobs = append(jobs, buildJob("storage", st))
	}
	if tm := plan.Get("timers"); len(tm) > 0 {
		jobs = append(jobs, buildJob("timer", tm))
	}
	if len(jobs) == 0 {
		return kernel.Skip("nothing_to_dispatch")
	}
	return kernel.OK(state.Tree{"driver": state.Tree{"jobs": jobs}})
}

func buildJob(jobType string, content state.Tree) state.Tree {
	jobID := idhash.SHA1Hex(state.Tree{"type": jobType, "content": content})
	idempotencyKey := idhash.SHA1Hex(state.Tree{"idem": jobType, "content": content})
	deadline := baseTimeoutMs[jobType] + deadlinePaddingMs
	return state.Tree{
		"job_id":          jobID,
		"type":            jobType,
		"idempotency_key": idempotencyKey,
		"deadline_ms":     deadline,
		"content":         content,
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
