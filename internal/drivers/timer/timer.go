// Package timer implements the timer.sleep driver. Per spec.md §5, the
// tick itself does not cancel driver calls — this driver simply honors
// the requested sleep duration (capped at the frame's deadline) and
// reports back, letting the retry planner handle anything that runs out
// of budget on the next tick.
package timer

import (
	"time"

	"github.com/noema/noema/internal/state"
)

// Driver implements runtime.Drivers' timer handler.
type Driver struct{}

// NewDriver constructs a timer driver.
func NewDriver() *Driver { return &Driver{} }

// SleepTimer blocks for sleep_ms, capped by deadline_ms, and reports
// {type:"timer", ok, sleep_ms}.
func (d *Driver) SleepTimer(frame state.Tree) state.Tree {
	sleepMs := frame.GetFloat64("sleep_ms")
	deadlineMs := float64(frame.GetInt64("deadline_ms"))
	if deadlineMs > 0 && sleepMs > deadlineMs {
		sleepMs = deadlineMs
	}
	if sleepMs > 0 {
		time.Sleep(time.Duration(sleepMs) * time.Millisecond)
	}
	return state.Tree{"type": "timer", "ok": true, "sleep_ms": sleepMs}
}
