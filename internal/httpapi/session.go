// Package httpapi exposes the HTTP and WebSocket facade described as an
// external collaborator in spec.md §6, generalized from
// _examples/o9nn-echo.go/core/webserver/server.go's APIHandlers pattern
// (function-pointer handlers over a ServerConfig) into session-tick
// endpoints, a policy-change endpoint, a document-ingest endpoint, and a
// skill-batch endpoint, plus the SPEC_FULL.md supplemented fact-store,
// concept-graph introspection, and policy-rollback endpoints.
package httpapi

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noema/noema/internal/config"
	"github.com/noema/noema/internal/drivers/skills"
	"github.com/noema/noema/internal/drivers/storage"
	"github.com/noema/noema/internal/drivers/timer"
	"github.com/noema/noema/internal/drivers/transport"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/runtime"
	"github.com/noema/noema/internal/snapshot"
	"github.com/noema/noema/internal/stages"
	"github.com/noema/noema/internal/state"
)

// wallClock stamps real wall-clock milliseconds into ticks.
type wallClock struct{}

func (wallClock) NowMs() int64 { return time.Now().UnixMilli() }

// tickDrivers adapts the concrete transport/skills/storage/timer drivers
// to runtime.Drivers.
type tickDrivers struct {
	transport *transport.Driver
	skills    *skills.Runner
	storage   *storage.Driver
	timer     *timer.Driver
}

func (d tickDrivers) EmitTransport(frame state.Tree) state.Tree    { return d.transport.EmitTransport(frame) }
func (d tickDrivers) ExecuteSkills(frame state.Tree) state.Tree    { return d.skills.ExecuteSkills(frame) }
func (d tickDrivers) ApplyIndexStorage(frame state.Tree) state.Tree { return d.storage.ApplyIndexStorage(frame) }
func (d tickDrivers) SleepTimer(frame state.Tree) state.Tree       { return d.timer.SleepTimer(frame) }

// SessionStore holds each thread's state tree in memory between ticks,
// with an on-disk snapshot fallback so a restart resumes mid-conversation
// instead of starting fresh (adapted from the teacher's StateManager, see
// internal/snapshot).
type SessionStore struct {
	mu         sync.Mutex
	sessions   map[string]state.Tree
	snap       *snapshot.Manager
	guardrails config.GuardrailsConfig
}

func NewSessionStore(snap *snapshot.Manager) *SessionStore {
	return NewSessionStoreWithGuardrails(snap, config.Default().Guardrails)
}

// NewSessionStoreWithGuardrails is NewSessionStore with an explicit
// guardrails default, bootstrapped into runtime.config on a session's
// first tick so b11runtime.Gatekeeper and b5planning.PlanBuilder never
// have to skip for want of an activated config (spec.md §8 Scenario 1).
func NewSessionStoreWithGuardrails(snap *snapshot.Manager, guardrails config.GuardrailsConfig) *SessionStore {
	return &SessionStore{sessions: map[string]state.Tree{}, snap: snap, guardrails: guardrails}
}

func (s *SessionStore) Get(threadID string) state.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[threadID]; ok {
		return st
	}
	if s.snap != nil {
		if st, err := s.snap.Load(threadID); err == nil && st != nil {
			s.sessions[threadID] = st
			return st
		}
	}
	fresh := state.Tree{
		"session": state.Tree{"thread_id": threadID, "channel": "chat"},
		"runtime": state.Tree{"config": s.guardrails.ToRuntimeConfig()},
	}
	s.sessions[threadID] = fresh
	return fresh
}

func (s *SessionStore) Set(threadID string, st state.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[threadID] = st
	if s.snap != nil {
		_ = s.snap.Save(threadID, st)
	}
}

// Server bundles everything the HTTP facade needs to run ticks.
type Server struct {
	Sessions *SessionStore
	Loop     *runtime.Loop
	Outbox   *transport.Outbox
	Storage  *storage.Driver
	Log      *zap.SugaredLogger
}

// NewServer wires a default registry, drivers, and session store into a
// ready-to-serve Server with sessions kept purely in-memory; use
// NewServerWithSnapshots to enable on-disk session checkpointing.
func NewServer(storageDriver *storage.Driver, log *zap.SugaredLogger) *Server {
	return NewServerWithSnapshots(storageDriver, log, "")
}

// NewServerWithSnapshots is NewServer with an explicit snapshot
// directory; errors opening it are logged and snapshotting is disabled
// rather than failing server construction. Fresh sessions bootstrap
// runtime.config from config.Default().Guardrails; use
// NewServerWithConfig to bootstrap from a loaded config instead.
func NewServerWithSnapshots(storageDriver *storage.Driver, log *zap.SugaredLogger, snapshotDir string) *Server {
	return NewServerWithConfig(storageDriver, log, snapshotDir, config.Default().Guardrails)
}

// NewServerWithConfig is NewServerWithSnapshots with an explicit
// guardrails default for session bootstrap, letting callers that loaded
// config.Load(path) pass its Guardrails section through instead of
// falling back to config.Default().
func NewServerWithConfig(storageDriver *storage.Driver, log *zap.SugaredLogger, snapshotDir string, guardrails config.GuardrailsConfig) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var snap *snapshot.Manager
	if snapshotDir != "" {
		m, err := snapshot.NewManager(snapshotDir)
		if err != nil {
			log.Warnw("snapshot disabled", "err", err)
		} else {
			snap = m
		}
	}
	outbox := transport.NewOutbox(nil, log)
	d := tickDrivers{
		transport: transport.NewDriver(outbox),
		skills:    skills.NewRunner(log),
		storage:   storageDriver,
		timer:     timer.NewDriver(),
	}
	loop := runtime.NewLoop(stages.NewDefaultRegistry(), d, wallClock{}, log)
	return &Server{Sessions: NewSessionStoreWithGuardrails(snap, guardrails), Loop: loop, Outbox: outbox, Storage: storageDriver, Log: log}
}

// RunTick applies an input event to the named session and runs one tick,
// returning the resulting state and both composer reports.
func (s *Server) RunTick(threadID string, event state.Tree) (state.Tree, kernel.Report, kernel.Report) {
	st := s.Sessions.Get(threadID)
	events := st.Get("perception").GetSlice("events")
	events = append(events, event)
	st = state.DeepMerge(st, state.Tree{"perception": state.Tree{"events": events}})

	next, r1, r2 := s.Loop.Tick(st)
	s.Sessions.Set(threadID, next)
	return next, r1, r2
}
