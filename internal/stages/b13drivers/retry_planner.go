package b13drivers

import (
	"math"

	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// RetryPolicy is a per-subsystem retry configuration.
type RetryPolicy struct {
	MaxAttempts int
	BaseMs      float64
	Factor      float64
	JitterMs    float64
}

// Policies are the default per-subsystem retry policies, grounded in
// original_source/n3_core/block_13_drivers/b13f3_driver_retry_planner.py.
var Policies = map[string]RetryPolicy{
	"skills":    {MaxAttempts: 3, BaseMs: 400, Factor: 1.7, JitterMs: 120},
	"transport": {MaxAttempts: 2, BaseMs: 200, Factor: 1.5, JitterMs: 80},
	"storage":   {MaxAttempts: 2, BaseMs: 300, Factor: 1.6, JitterMs: 100},
	"timer":     {MaxAttempts: 0, BaseMs: 0, Factor: 1, JitterMs: 0},
}

const maxBackoffMs = 120000.0

// backoff computes base*(factor**attemptsDone) + (hash(salt)%jitter),
// capped at maxBackoffMs.
func backoff(policy RetryPolicy, attemptsDone int, salt string) float64 {
	if policy.JitterMs <= 0 {
		v := policy.BaseMs * math.Pow(policy.Factor, float64(attemptsDone))
		if v > maxBackoffMs {
			return maxBackoffMs
		}
		return v
	}
	jitter := float64(idhash.BucketPercent(salt, "jitter")) / 100.0 * policy.JitterMs
	v := policy.BaseMs*math.Pow(policy.Factor, float64(attemptsDone)) + jitter
	if v > maxBackoffMs {
		return maxBackoffMs
	}
	return v
}

// DriverRetryPlanner inspects each subsystem's normalized reply, finds
// failed units, looks up the policy, computes exponential backoff with
// jitter seeded from the job id, and emits new retry jobs only for
// subsystems within budget, incrementing attempts in
// driver.history.attempts. Ported from b13f3_driver_retry_planner.py.
func DriverRetryPlanner(s state.Tree) kernel.Envelope {
	jobs := s.Get("driver").GetSlice("jobs")
	if len(jobs) == 0 {
		return kernel.Skip("no_jobs")
	}
	attempts := state.Tree{}
	for k, v := range s.Get("driver").Get("history").Get("attempts") {
		attempts[k] = v
	}

	var retryJobs []any

	for _, raw := range jobs {
		j, ok := asTree(raw)
		if !ok {
			continue
		}
		jobType := j.GetString("type")
		policy, known := Policies[jobType]
		if !known || policy.MaxAttempts == 0 {
			continue
		}
		jobID := j.GetString("job_id")
		attemptsDone := int(attempts.GetInt64(jobID))

		failedContent, hasFailure := failedUnitsFor(s, jobType, j)
		if !hasFailure {
			continue
		}
		if attemptsDone >= policy.MaxAttempts {
			continue
		}

		bo := backoff(policy, attemptsDone, jobID)
		retryJob := state.Tree{
			"job_id":          jobID,
			"type":            jobType,
			"idempotency_key": j.GetString("idempotency_key"),
			"backoff_ms":      bo,
			"attempts_next":   attemptsDone + 1,
			"content":         failedContent,
		}
		retryJobs = append(retryJobs, retryJob)
		attempts[jobID] = attemptsDone + 1
	}

	if len(retryJobs) == 0 {
		return kernel.Skip("nothing_to_retry")
	}
	return kernel.OK(state.Tree{
		"driver": state.Tree{
			"retry":   state.Tree{"jobs": retryJobs},
			"history": state.Tree{"attempts": attempts},
		},
	})
}

// failedUnitsFor inspects the normalized reply sub-trees for jobType and
// returns the content a retry job carries, plus whether any failure was
// found at all: for skills, the failing call replies from executor.raw
// (each with its req_id; the original call's skill_id and params are not
// copied); for transport, the job's whole content; for storage, the
// namespace plus whichever of the index and apply lists failed.
func failedUnitsFor(s state.Tree, jobType string, job state.Tree) (state.Tree, bool) {
	content := job.Get("content")
	switch jobType {
	case "skills":
		var failed []any
		for _, raw := range s.Get("executor").GetSlice("raw") {
			c, ok := asTree(raw)
			if ok && !c.GetBool("ok") {
				failed = append(failed, c)
			}
		}
		if len(failed) == 0 {
			return nil, false
		}
		return state.Tree{"calls": failed}, true
	case "transport":
		if s.Get("transport").Get("outbound").GetBool("ok") {
			return nil, false
		}
		return content, true
	case "storage":
		idxOK := s.Get("storage").Get("index_result").GetBool("ok")
		applyOK := s.Get("storage").Get("apply_result").GetBool("ok")
		if idxOK && applyOK {
			return nil, false
		}
		failedContent := state.Tree{"namespace": content.GetString("namespace")}
		if !idxOK {
			failedContent["index"] = content.GetSlice("index")
		}
		if !applyOK {
			failedContent["apply"] = content.GetSlice("apply")
		}
		return failedContent, true
	default:
		return nil, false
	}
}
