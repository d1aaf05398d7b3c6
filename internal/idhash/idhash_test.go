package idhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHA1HexIsDeterministicAcrossKeyOrder(t *testing.T) {
	a := SHA1Hex(map[string]any{"b": 1, "a": 2})
	b := SHA1Hex(map[string]any{"a": 2, "b": 1})
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestSHA1HexDiffersOnContent(t *testing.T) {
	a := SHA1Hex(map[string]any{"a": 1})
	b := SHA1Hex(map[string]any{"a": 2})
	assert.NotEqual(t, a, b)
}

func TestBucketPercentIsStableAndInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		p := BucketPercent("thread-1", "salt-a")
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 100)
		assert.Equal(t, p, BucketPercent("thread-1", "salt-a"))
	}
}

func TestBucketPercentVariesWithSalt(t *testing.T) {
	distinct := map[int]bool{}
	for i := 0; i < 20; i++ {
		distinct[BucketPercent("thread-1", string(rune('a'+i)))] = true
	}
	assert.Greater(t, len(distinct), 1)
}
