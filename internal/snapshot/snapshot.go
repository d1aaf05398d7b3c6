// Package snapshot persists a session's state.Tree to disk between
// process restarts: atomic tempfile-then-rename writes, timestamped
// backups, and restore-from-backup, adapted from the teacher's
// StateManager at _examples/o9nn-echo.go/core/persistence/state_manager.go
// (originally a hand-rolled EchoSelfState checkpoint) generalized from a
// fixed consciousness-state struct into the runtime's generic state.Tree.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/noema/noema/internal/state"
)

// Manager atomically checkpoints one thread's state.Tree under a
// directory, one file per thread id.
type Manager struct {
	mu  sync.Mutex
	dir string
}

// NewManager builds a Manager rooted at dir, creating it if absent.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) pathFor(threadID string) string {
	return filepath.Join(m.dir, threadID+".json")
}

// Save writes st for threadID via a tempfile-then-rename, so a crash
// mid-write never leaves a truncated snapshot on disk.
func (m *Manager) Save(threadID string, st state.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	path := m.pathFor(threadID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads a previously-saved snapshot, returning (nil, nil) if none
// exists yet — the caller falls back to a fresh session.
func (m *Manager) Load(threadID string) (state.Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.pathFor(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var st state.Tree
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return st, nil
}

// Backup copies a thread's current snapshot to a timestamped sibling
// file, for operators who want a point-in-time copy before a risky
// policy rollout.
func (m *Manager) Backup(threadID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.pathFor(threadID)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read snapshot for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s.backup_%s", path, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupPath, nil
}

// RestoreFromBackup validates and installs backupPath as threadID's
// current snapshot.
func (m *Manager) RestoreFromBackup(threadID, backupPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	var st state.Tree
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("backup file is corrupted: %w", err)
	}
	return os.WriteFile(m.pathFor(threadID), data, 0o644)
}
