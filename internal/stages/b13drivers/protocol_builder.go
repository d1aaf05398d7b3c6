// Package b13drivers implements the B13 drivers block: the protocol
// builder (jobs -> I/O-neutral frames), the reply normalizer, and the
// retry planner. Grounded in
// original_source/n3_core/block_13_drivers/b13f3_driver_retry_planner.py.
package b13drivers

import "github.com/noema/noema/internal/kernel"
import "github.com/noema/noema/internal/state"

// ProtocolBuilder transforms driver.jobs into the I/O-neutral frames
// runtime.Loop.Tick dispatches, per spec.md §4.8: a transport frame with
// messages and channel; a skills frame with per-call endpoint
// resolution, timeout, idempotency key; a storage frame with namespace,
// apply ops, index queue; a timer frame with a sleep duration.
func ProtocolBuilder(s state.Tree) kernel.Envelope {
	jobs := s.Get("driver").GetSlice("jobs")
	if len(jobs) == 0 {
		return kernel.Skip("no_jobs")
	}
	frames := make([]any, 0, len(jobs))
	for _, raw := range jobs {
		j, ok := asTree(raw)
		if !ok {
			continue
		}
		content := j.Get("content")
		frame := state.Tree{
			"type":            j.GetString("type"),
			"deadline_ms":     j.GetInt64("deadline_ms"),
			"idempotency_key": j.GetString("idempotency_key"),
			"job_id":          j.GetString("job_id"),
		}
		switch j.GetString("type") {
		case "transport":
			frame["channel"] = content.GetString("channel")
			frame["messages"] = content.GetSlice("messages")
		case "skills":
			calls := resolveEndpoints(content.GetSlice("calls"))
			frame["calls"] = calls
			frame["limits"] = content.Get("limits")
		case "storage":
			frame["namespace"] = content.GetString("namespace")
			frame["apply"] = content.GetSlice("apply")
			frame["index"] = content.GetSlice("index")
		case "timer":
			frame["sleep_ms"] = content.GetFloat64("sleep_ms")
		default:
			continue
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return kernel.Skip("no_frames_built")
	}
	return kernel.OK(state.Tree{"driver": state.Tree{"protocol": state.Tree{"frames": frames}}})
}

// defaultEndpoints maps a skill id to its call endpoint, with a fallback
// for unknown skills.
var defaultEndpoints = map[string]string{
	"echo":   "local://echo",
	"search": "local://search",
	"ingest": "local://ingest",
	"reward": "local://reward",
}

const defaultSkillEndpoint = "local://default"

func resolveEndpoints(calls []any) []any {
	out := make([]any, 0, len(calls))
	for _, raw := range calls {
		c, ok := asTree(raw)
		if !ok {
			continue
		}
		endpoint, has := defaultEndpoints[c.GetString("skill_id")]
		if !has {
			endpoint = defaultSkillEndpoint
		}
		out = append(out, state.Tree{
			"req_id":          c.GetString("req_id"),
			"skill_id":        c.GetString("skill_id"),
			"endpoint":        endpoint,
			"params":          c.Get("params"),
			"timeout_ms":      8000,
			"idempotency_key": c.GetString("req_id"),
		})
	}
	return out
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
