// Package config loads the runtime's ambient configuration, generalizing
// the teacher's ServerConfig/DefaultServerConfig pattern
// (_examples/o9nn-echo.go/core/webserver/server.go) from HTTP-only
// settings into the full runtime's settings: HTTP/WS server, storage
// path and snapshot directory, and default guardrails.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noema/noema/internal/state"
)

// Runtime is the top-level configuration for a noemad process.
type Runtime struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Storage    StorageConfig    `yaml:"storage"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
}

// HTTPConfig configures the gin HTTP facade.
type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	EnableCORS      bool          `yaml:"enable_cors"`
	RateLimit       float64       `yaml:"rate_limit_rps"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig configures the SQLite storage driver and session snapshot
// directory.
type StorageConfig struct {
	Path        string `yaml:"path"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

// GuardrailsConfig seeds runtime.config.guardrails defaults for a fresh
// session, matching the defaults named in spec.md §4.5. ToRuntimeConfig
// is the only path that actually seeds a session (internal/httpapi's
// SessionStore, on first Get of a thread), so b11runtime.Gatekeeper has
// a config.guardrails tree to read from tick one instead of skipping
// until an operator calls POST /v1/sessions/{id}/policy.
type GuardrailsConfig struct {
	MustConfirmUThreshold float64 `yaml:"must_confirm_u_threshold"`
	BlockExecuteSLOBelow  float64 `yaml:"block_execute_slo_below"`
	LatencySoftLimitMs    float64 `yaml:"latency_soft_limit_ms"`
	IndexQueueSoftMax     float64 `yaml:"index_queue_soft_max"`
}

// ToRuntimeConfig renders the guardrails defaults into the
// runtime.config shape b11runtime.Gatekeeper and b5planning.PlanBuilder
// read (config.guardrails.must_confirm.u_threshold,
// config.guardrails.block_execute_when.slo_below, and the two flat soft
// limits).
func (g GuardrailsConfig) ToRuntimeConfig() state.Tree {
	return state.Tree{
		"guardrails": state.Tree{
			"must_confirm":        state.Tree{"u_threshold": g.MustConfirmUThreshold},
			"block_execute_when":  state.Tree{"slo_below": g.BlockExecuteSLOBelow},
			"latency_soft_limit_ms": g.LatencySoftLimitMs,
			"index_queue_soft_max":  g.IndexQueueSoftMax,
		},
	}
}

// Default returns the out-of-the-box configuration, mirroring the
// teacher's DefaultServerConfig() constructor pattern.
func Default() Runtime {
	return Runtime{
		HTTP: HTTPConfig{
			Host: "0.0.0.0", Port: 8080, EnableCORS: true, RateLimit: 20,
			ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{Path: "noema.db", SnapshotDir: "noema-snapshots"},
		Guardrails: GuardrailsConfig{
			MustConfirmUThreshold: 0.4,
			BlockExecuteSLOBelow:  0,
			LatencySoftLimitMs:    1500,
			IndexQueueSoftMax:     1000,
		},
	}
}

// Load reads Default(), overlays an optional YAML file at path (if it
// exists), then overlays environment variables, matching the teacher's
// manual os.Getenv override style in
// _examples/o9nn-echo.go/core/persistence/state_manager.go.
func Load(path string) (Runtime, error) {
	cfg := Default()
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	if v := os.Getenv("NOEMA_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("NOEMA_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	return cfg, nil
}
