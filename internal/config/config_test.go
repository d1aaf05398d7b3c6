package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/config"
)

func TestDefaultHasSaneGuardrails(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 0.4, cfg.Guardrails.MustConfirmUThreshold)
	assert.Equal(t, "noema-snapshots", cfg.Storage.SnapshotDir)
}

func TestLoadWithEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 9090\nstorage:\n  path: custom.db\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "custom.db", cfg.Storage.Path)
}

func TestLoadOverlaysEnvironmentOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 9090\n"), 0o644))
	t.Setenv("NOEMA_HTTP_PORT", "7070")
	t.Setenv("NOEMA_STORAGE_PATH", "env.db")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "env.db", cfg.Storage.Path)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path/noema.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestGuardrailsConfigToRuntimeConfigMatchesGatekeeperShape(t *testing.T) {
	tree := config.Default().Guardrails.ToRuntimeConfig()
	guardrails := tree.Get("guardrails")
	assert.Equal(t, 0.4, guardrails.Get("must_confirm").GetFloat64("u_threshold"))
	assert.Equal(t, 0.0, guardrails.Get("block_execute_when").GetFloat64("slo_below"))
	assert.Equal(t, 1500.0, guardrails.GetFloat64("latency_soft_limit_ms"))
	assert.Equal(t, 1000.0, guardrails.GetFloat64("index_queue_soft_max"))
}
