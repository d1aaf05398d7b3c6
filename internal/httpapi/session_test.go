package httpapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/drivers/storage"
	"github.com/noema/noema/internal/httpapi"
	"github.com/noema/noema/internal/state"
)

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	store, err := storage.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return httpapi.NewServer(store, nil)
}

func TestRunTickProducesSurfaceTextForGreeting(t *testing.T) {
	srv := newTestServer(t)

	next, report1, _ := srv.RunTick("thread-1", state.Tree{
		"id": "ev1", "type": "message_commit", "modality": "text",
		"text": "hello there", "at_ms": 1, "author": "user",
	})

	assert.NotEmpty(t, report1.Ran)
	assert.NotEmpty(t, next.Get("perception").Get("packz").GetString("id"))
}

func TestRunTickPersistsSessionAcrossCalls(t *testing.T) {
	srv := newTestServer(t)

	srv.RunTick("thread-2", state.Tree{
		"id": "ev1", "type": "message_commit", "modality": "text",
		"text": "first message", "at_ms": 1, "author": "user",
	})
	next, _, _ := srv.RunTick("thread-2", state.Tree{
		"id": "ev2", "type": "message_commit", "modality": "text",
		"text": "second message", "at_ms": 2, "author": "user",
	})

	events := next.Get("perception").GetSlice("events")
	assert.Len(t, events, 2, "both events must accumulate on the same session")
}

func TestSessionStoreGetCreatesFreshSessionOnFirstAccess(t *testing.T) {
	store := httpapi.NewSessionStore(nil)
	st := store.Get("new-thread")
	assert.Equal(t, "new-thread", st.Get("session").GetString("thread_id"))
}

func TestSessionStoreGetBootstrapsRuntimeConfigGuardrailsOnFreshSession(t *testing.T) {
	store := httpapi.NewSessionStore(nil)
	st := store.Get("new-thread")
	guardrails := st.Get("runtime").Get("config").Get("guardrails")
	assert.NotEmpty(t, guardrails, "a fresh session must have an activated config so Gatekeeper/PlanBuilder never skip for want of one")
	assert.Equal(t, 0.4, guardrails.Get("must_confirm").GetFloat64("u_threshold"))
}

func TestSessionStoreSetThenGetReturnsUpdatedState(t *testing.T) {
	store := httpapi.NewSessionStore(nil)
	store.Set("t1", state.Tree{"dialog": state.Tree{"final": state.Tree{"text": "hi"}}})

	st := store.Get("t1")
	assert.Equal(t, "hi", st.Get("dialog").Get("final").GetString("text"))
}
