// Package runtime implements the I/O tick loop that bridges the pure
// kernel composer to external effects in two phases per tick, grounded
// in original_source/n3_runtime/loop/io_tick.py.
package runtime

import (
	"go.uber.org/zap"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// Drivers exposes the four side-effecting handlers the tick dispatches
// protocol frames to, per spec.md §4.3.
type Drivers interface {
	EmitTransport(frame state.Tree) state.Tree
	ExecuteSkills(frame state.Tree) state.Tree
	ApplyIndexStorage(frame state.Tree) state.Tree
	SleepTimer(frame state.Tree) state.Tree
}

// Clock supplies the wall-clock time stamped into state.clock.now_ms at
// the start of every tick.
type Clock interface {
	NowMs() int64
}

// Loop runs the two-phase I/O tick: composer (full order) -> dispatch
// frames to drivers -> composer (short order) over driver replies.
type Loop struct {
	Registry kernel.Registry
	Drivers  Drivers
	Clock    Clock
	Log      *zap.SugaredLogger
}

// NewLoop constructs a Loop with a no-op logger when log is nil.
func NewLoop(registry kernel.Registry, drivers Drivers, clock Clock, log *zap.SugaredLogger) *Loop {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Loop{Registry: registry, Drivers: drivers, Clock: clock, Log: log}
}

// Tick runs one full I/O tick over s and returns the resulting state.
// Steps, per spec.md §4.3:
//  1. stamp clock.now_ms
//  2. run the composer with DefaultOrder
//  3. inspect driver.protocol.frames; if empty, return
//  4. dispatch each frame to its matching driver, collect replies
//  5. run the composer again with ShortOrder over the replies
func (l *Loop) Tick(s state.Tree) (state.Tree, kernel.Report, kernel.Report) {
	if s == nil {
		s = state.Tree{}
	}
	s = state.DeepMerge(s, state.Tree{"clock": state.Tree{"now_ms": l.Clock.NowMs()}})

	s, report1 := kernel.Run(s, l.Registry, kernel.DefaultOrder())

	frames := s.Get("driver").Get("protocol").GetSlice("frames")
	if len(frames) == 0 {
		l.Log.Debugw("tick produced no frames", "ran", len(report1.Ran))
		return s, report1, kernel.Report{}
	}

	replies := make([]any, 0, len(frames))
	for _, raw := range frames {
		f, ok := asTree(raw)
		if !ok {
			continue
		}
		reply := l.dispatch(f)
		replies = append(replies, reply)
	}
	s = state.DeepMerge(s, state.Tree{"driver": state.Tree{"replies": replies}})

	s, report2 := kernel.Run(s, l.Registry, kernel.ShortOrder())
	return s, report1, report2
}

func (l *Loop) dispatch(frame state.Tree) state.Tree {
	switch frame.GetString("type") {
	case "transport":
		return l.Drivers.EmitTransport(frame)
	case "skills":
		return l.Drivers.ExecuteSkills(frame)
	case "storage":
		return l.Drivers.ApplyIndexStorage(frame)
	case "timer":
		return l.Drivers.SleepTimer(frame)
	default:
		l.Log.Warnw("unknown frame type", "type", frame.GetString("type"))
		return state.Tree{"type": frame.GetString("type"), "ok": false}
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
