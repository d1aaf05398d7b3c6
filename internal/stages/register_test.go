package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noema/noema/internal/kernel"
)

func TestNewDefaultRegistryCoversEveryDefaultOrderStage(t *testing.T) {
	r := NewDefaultRegistry()
	for _, name := range kernel.DefaultOrder() {
		_, ok := r.Lookup(name)
		assert.True(t, ok, "missing registration for %s", name)
	}
}

func TestNewDefaultRegistryCoversEveryShortOrderStage(t *testing.T) {
	r := NewDefaultRegistry()
	for _, name := range kernel.ShortOrder() {
		_, ok := r.Lookup(name)
		assert.True(t, ok, "missing registration for %s", name)
	}
}

func TestNewDefaultRegistryRegistersGatekeeperAlias(t *testing.T) {
	r := NewDefaultRegistry()
	canonical, ok := r.Lookup("b11f2_runtime_gatekeeper")
	assert.True(t, ok)
	alias, ok := r.Lookup("b11f2_gatekeeper")
	assert.True(t, ok)
	assert.NotNil(t, canonical)
	assert.NotNil(t, alias)
}
