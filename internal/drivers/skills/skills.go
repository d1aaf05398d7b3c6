// Package skills implements the skills.execute driver: an in-process
// local runner with per-call timeouts, plus dev skills (echo, search,
// ingest, reward), grounded in
// original_source/n3_drivers/skills/local_runner.py.
package skills

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noema/noema/internal/state"
)

// Handler executes one skill call and returns its result shape (ok,
// kind, text/data, usage, latency).
type Handler func(ctx context.Context, params state.Tree) state.Tree

// Runner is the local in-process skill runner. Each call is run in its
// own goroutine bounded by the frame's timeout_ms, mirroring the
// original's ThreadPoolExecutor-per-call timeout discipline.
type Runner struct {
	Registry map[string]Handler
	Log      *zap.SugaredLogger
}

// NewRunner builds a runner pre-registered with the dev skills: echo,
// search, ingest, reward.
func NewRunner(log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Runner{Registry: map[string]Handler{}, Log: log}
	r.Registry["echo"] = echoSkill
	r.Registry["search"] = searchSkill
	r.Registry["ingest"] = ingestSkill
	r.Registry["reward"] = rewardSkill
	return r
}

// ExecuteSkills implements runtime.Drivers' skills handler: dispatches
// each call concurrently and normalizes results back into the frame's
// {type:"skills", ok, calls:[...]} contract (spec.md §6).
func (r *Runner) ExecuteSkills(frame state.Tree) state.Tree {
	calls := frame.GetSlice("calls")
	results := make([]any, len(calls))
	deadline := time.Duration(frame.GetInt64("deadline_ms")) * time.Millisecond
	if deadline <= 0 {
		deadline = 8 * time.Second
	}

	type outcome struct {
		idx    int
		result state.Tree
	}
	outcomes := make(chan outcome, len(calls))

	for i, raw := range calls {
		c, ok := asTree(raw)
		if !ok {
			outcomes <- outcome{idx: i, result: state.Tree{"ok": false, "kind": "error", "text": "malformed_call"}}
			continue
		}
		go func(i int, c state.Tree) {
			timeout := deadline
			if t := c.GetInt64("timeout_ms"); t > 0 {
				timeout = time.Duration(t) * time.Millisecond
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			start := time.Now()

			handler, known := r.Registry[c.GetString("skill_id")]
			var result state.Tree
			if !known {
				result = state.Tree{"ok": false, "req_id": c.GetString("req_id"), "kind": "error", "text": "unknown_skill"}
			} else {
				done := make(chan state.Tree, 1)
				go func() { done <- handler(ctx, c.Get("params")) }()
				select {
				case result = <-done:
				case <-ctx.Done():
					result = state.Tree{"ok": false, "req_id": c.GetString("req_id"), "kind": "error", "text": "timeout"}
				}
			}
			result["req_id"] = c.GetString("req_id")
			result["latency_ms"] = time.Since(start).Milliseconds()
			outcomes <- outcome{idx: i, result: result}
		}(i, c)
	}

	for range calls {
		o := <-outcomes
		results[o.idx] = o.result
	}

	allOK := true
	for _, raw := range results {
		if r, ok := asTree(raw); ok && !r.GetBool("ok") {
			allOK = false
		}
	}
	return state.Tree{"type": "skills", "ok": allOK, "calls": results}
}

func echoSkill(ctx context.Context, params state.Tree) state.Tree {
	return state.Tree{"ok": true, "kind": "json", "data": state.Tree{"echo": params}, "score": 1.0}
}

func searchSkill(ctx context.Context, params state.Tree) state.Tree {
	query := params.GetString("query")
	return state.Tree{"ok": true, "kind": "json", "data": state.Tree{"query": query, "hits": []any{}}, "score": 0.5}
}

func ingestSkill(ctx context.Context, params state.Tree) state.Tree {
	return state.Tree{"ok": true, "kind": "json", "data": state.Tree{"ingested": true}, "score": 1.0}
}

func rewardSkill(ctx context.Context, params state.Tree) state.Tree {
	return state.Tree{"ok": true, "kind": "json", "data": state.Tree{"reward": params.GetFloat64("value")}, "score": 1.0}
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
