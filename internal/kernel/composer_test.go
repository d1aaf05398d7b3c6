package kernel_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

func addA(s state.Tree) kernel.Envelope {
	return kernel.OK(state.Tree{"a": state.Tree{"x": 1}})
}

func addB(s state.Tree) kernel.Envelope {
	return kernel.OK(state.Tree{"b": state.Tree{"y": 2}})
}

func mutateInput(s state.Tree) kernel.Envelope {
	// A hostile stage that mutates its argument. Because the composer
	// hands it a defensive copy, this must never be observable outside
	// this stage's own envelope.
	s["a"] = state.Tree{"x": 999}
	return kernel.OK(nil)
}

func boom(s state.Tree) kernel.Envelope {
	panic("stage exploded")
}

func skippy(s state.Tree) kernel.Envelope {
	return kernel.Skip("missing_input")
}

func TestComposerDeterminism(t *testing.T) {
	reg := kernel.NewRegistry()
	reg.Register(addA, "addA")
	reg.Register(addB, "addB")
	order := []string{"addA", "addB"}

	s1, r1 := kernel.Run(state.Tree{}, reg, order)
	s2, r2 := kernel.Run(state.Tree{}, reg, order)

	if diff := cmp.Diff(s1, s2); diff != "" {
		t.Fatalf("two runs over identical input diverged (-first +second):\n%s", diff)
	}
	assert.Equal(t, r1.Ran, r2.Ran)
}

func TestComposerDeepMergeUnionAndOverlap(t *testing.T) {
	reg := kernel.NewRegistry()
	reg.Register(addA, "addA")
	reg.Register(addB, "addB")
	overlap := func(s state.Tree) kernel.Envelope {
		return kernel.OK(state.Tree{"a": state.Tree{"z": 3}})
	}
	reg.Register(overlap, "overlap")

	out, _ := kernel.Run(state.Tree{}, reg, []string{"addA", "addB", "overlap"})

	a := out.Get("a")
	require.Equal(t, float64(1), toFloat(a["x"]))
	require.Equal(t, float64(3), toFloat(a["z"]))
	b := out.Get("b")
	require.Equal(t, float64(2), toFloat(b["y"]))
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case float64:
		return t
	default:
		return -1
	}
}

func TestComposerPurityDefensiveCopy(t *testing.T) {
	reg := kernel.NewRegistry()
	reg.Register(addA, "addA")
	reg.Register(mutateInput, "mutateInput")

	out, _ := kernel.Run(state.Tree{}, reg, []string{"addA", "mutateInput"})

	a := out.Get("a")
	assert.Equal(t, float64(1), toFloat(a["x"]), "mutateInput must not affect sibling stage output")
}

func TestComposerFailureIsolation(t *testing.T) {
	reg := kernel.NewRegistry()
	reg.Register(addA, "addA")
	reg.Register(boom, "boom")
	reg.Register(addB, "addB")

	out, report := kernel.Run(state.Tree{}, reg, []string{"addA", "boom", "addB"})

	assert.Equal(t, kernel.StatusFail, report.Status)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "boom", report.Errors[0].Step)
	assert.NotNil(t, out.Get("a"))
	assert.NotNil(t, out.Get("b"))
}

func TestComposerSkipRecordsReason(t *testing.T) {
	reg := kernel.NewRegistry()
	reg.Register(skippy, "skippy")

	_, report := kernel.Run(state.Tree{}, reg, []string{"skippy", "unregistered_stage"})

	require.Len(t, report.Skipped, 2)
	assert.Equal(t, "missing_input", report.Skipped[0].Reason)
	assert.Equal(t, "not_registered", report.Skipped[1].Reason)
}
