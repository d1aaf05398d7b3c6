package b1perception_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/stages/b1perception"
	"github.com/noema/noema/internal/state"
)

func TestCollectorSkipsWithoutEvents(t *testing.T) {
	env := b1perception.Collector(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestCollectorSkipsOnEmptyText(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"events": []any{
		state.Tree{"type": "message_commit", "text": "   ", "at_ms": 10, "author": "u1"},
	}}}
	env := b1perception.Collector(s)
	assert.Equal(t, kernel.StatusSkip, env.Status)
	assert.Equal(t, "empty_text", env.Diag.GetString("reason"))
}

func TestCollectorPicksLastMessageCommit(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"events": []any{
		state.Tree{"type": "message_commit", "text": "first", "at_ms": 1, "author": "u1"},
		state.Tree{"type": "typing", "text": "ignored"},
		state.Tree{"type": "message_commit", "text": "second", "at_ms": 2, "author": "u2"},
	}}}
	env := b1perception.Collector(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	commit := env.Updates.Get("perception").Get("commit")
	assert.Equal(t, "second", commit.GetString("text"))
	assert.Equal(t, "u2", commit.GetString("author"))
}

func TestNormalizerCollapsesWhitespace(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"commit": state.Tree{"text": "  hello   world  \n"}}}
	env := b1perception.Normalizer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	assert.Equal(t, "hello world", env.Updates.Get("perception").Get("normalized").GetString("text"))
}

func TestScriptTaggerDetectsPersianOverEnglish(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"normalized": state.Tree{"text": "سلام hello"}}}
	env := b1perception.ScriptTagger(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	assert.Equal(t, "fa", env.Updates.Get("perception").Get("script").GetString("lang"))
}

func TestScriptTaggerFallsBackToUndetermined(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"normalized": state.Tree{"text": "12345 !!"}}}
	env := b1perception.ScriptTagger(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	assert.Equal(t, "und", env.Updates.Get("perception").Get("script").GetString("lang"))
}

func TestTokenizerBoundsTokenCount(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"normalized": state.Tree{"text": "a b c"}}}
	env := b1perception.Tokenizer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	toks := env.Updates.Get("perception").Get("tokens")
	assert.Equal(t, float64(3), toks.GetFloat64("count"))
}

func TestSentenceSplitterSplitsOnTerminalPunctuation(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"normalized": state.Tree{"text": "Hi there. How are you? Great!"}}}
	env := b1perception.SentenceSplitter(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	sentences := env.Updates.Get("perception").Get("sentences")
	assert.Equal(t, float64(3), sentences.GetFloat64("count"))
}

func TestSignalExtractorDetectsQuestionAndThanks(t *testing.T) {
	s := state.Tree{"perception": state.Tree{
		"normalized": state.Tree{"text": "thanks, is this right?"},
		"tokens":     state.Tree{"count": 4},
	}}
	env := b1perception.SignalExtractor(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	signals := env.Updates.Get("perception").Get("signals")
	assert.True(t, signals.GetBool("has_question"))
	assert.True(t, signals.GetBool("looks_like_thanks"))
}

func TestNoveltyScorerFlagsRepeatedHash(t *testing.T) {
	text := "repeat me"
	s := state.Tree{"perception": state.Tree{"normalized": state.Tree{"text": text}}}
	env := b1perception.NoveltyScorer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	firstNovelty := env.Updates.Get("perception").Get("novelty")
	assert.False(t, firstNovelty.GetBool("seen"))

	// Recompute with the same text already present in recent_hashes.
	repeated := state.Tree{"perception": state.Tree{
		"normalized":    state.Tree{"text": text},
		"recent_hashes": []any{idhash.SHA1OfString(text)},
	}}
	repeatNovelty := b1perception.NoveltyScorer(repeated).Updates.Get("perception").Get("novelty")
	assert.True(t, repeatNovelty.GetBool("seen"))
}

func TestPackZAssemblesStableIdAndDirection(t *testing.T) {
	s := state.Tree{"perception": state.Tree{
		"commit":     state.Tree{"at_ms": 500},
		"normalized": state.Tree{"text": "hello world"},
		"script":     state.Tree{"lang": "en"},
		"spans":      state.Tree{"list": []any{state.Tree{"start": 0, "end": 5, "kind": "sentence"}}},
		"signals":    state.Tree{"has_question": false},
		"tokens":     state.Tree{"count": 2},
		"sentences":  state.Tree{"count": 1},
	}}
	env1 := b1perception.PackZ(s)
	env2 := b1perception.PackZ(s)
	require.Equal(t, kernel.StatusOK, env1.Status)

	pack1 := env1.Updates.Get("perception").Get("packz")
	pack2 := env2.Updates.Get("perception").Get("packz")
	assert.Equal(t, pack1.GetString("id"), pack2.GetString("id"), "packz id must be a deterministic content hash")
	assert.Equal(t, "ltr", pack1.GetString("direction"))
}

func TestPackZSkipsWithoutNormalizedText(t *testing.T) {
	env := b1perception.PackZ(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}
