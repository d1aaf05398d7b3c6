// Package b1perception implements the B1 perception block: ten pure
// stages that turn a raw inbound event into PackZ, the canonical
// packaged view of a single input. Grounded in
// original_source/n3_core/block_1_perception/{b1f1_collector,b1f10_packz}.py.
package b1perception

import (
	"strings"
	"unicode"

	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// Limits mirror the original's PACK_LIMITS: bounds that keep PackZ and
// its upstream spans from growing unbounded across a long session.
var Limits = struct {
	MaxSpans     int
	MaxTextLen   int
	MaxTokens    int
	MaxSentences int
}{MaxSpans: 64, MaxTextLen: 4000, MaxTokens: 512, MaxSentences: 64}

// Collector validates the inbound event and extracts the last
// message_commit, the minimal unit every later perception stage needs.
// Grounded in b1f1_collector.py.
func Collector(s state.Tree) kernel.Envelope {
	events := s.Get("perception").GetSlice("events")
	if len(events) == 0 {
		return kernel.Skip("no_events")
	}
	var commit state.Tree
	for i := len(events) - 1; i >= 0; i-- {
		ev, ok := asTree(events[i])
		if !ok {
			continue
		}
		if ev.GetString("type") == "message_commit" {
			commit = ev
			break
		}
	}
	if commit == nil {
		return kernel.Skip("no_message_commit")
	}
	text := commit.GetString("text")
	if strings.TrimSpace(text) == "" {
		return kernel.SkipWith("empty_text", state.Tree{"commit_at": commit.GetInt64("at_ms")})
	}
	return kernel.OK(state.Tree{
		"perception": state.Tree{
			"commit": state.Tree{
				"text":   text,
				"at_ms":  commit.GetInt64("at_ms"),
				"author": commit.GetString("author"),
			},
		},
	})
}

// Normalizer trims and collapses whitespace (no Unicode normalization
// form is applied), truncates to Limits.MaxTextLen, and records the
// normalized text under perception.normalized so downstream hashing is
// stable regardless of incidental whitespace.
func Normalizer(s state.Tree) kernel.Envelope {
	commit := s.Get("perception").Get("commit")
	text := commit.GetString("text")
	if text == "" {
		return kernel.Skip("no_commit_text")
	}
	norm := strings.Join(strings.Fields(text), " ")
	if len(norm) > Limits.MaxTextLen {
		norm = norm[:Limits.MaxTextLen]
	}
	return kernel.OK(state.Tree{
		"perception": state.Tree{"normalized": state.Tree{"text": norm}},
	})
}

// ScriptTagger heuristically tags the script of the normalized text as
// "fa" (any Arabic-range rune present), "en" (otherwise, any ASCII
// letter present), or "und" otherwise — the `lang` value PackZ carries
// and the concept graph keys its nodes by.
func ScriptTagger(s state.Tree) kernel.Envelope {
	text := s.Get("perception").Get("normalized").GetString("text")
	if text == "" {
		return kernel.Skip("no_normalized_text")
	}
	return kernel.OK(state.Tree{
		"perception": state.Tree{"script": state.Tree{"lang": detectLang(text)}},
	})
}

func detectLang(text string) string {
	hasArabic, hasASCIILetter := false, false
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			hasArabic = true
		}
		if unicode.IsLetter(r) && r < 128 {
			hasASCIILetter = true
		}
	}
	switch {
	case hasArabic:
		return "fa"
	case hasASCIILetter:
		return "en"
	default:
		return "und"
	}
}

// Tokenizer splits normalized text on whitespace/punctuation boundaries,
// bounded by Limits.MaxTokens.
func Tokenizer(s state.Tree) kernel.Envelope {
	text := s.Get("perception").Get("normalized").GetString("text")
	if text == "" {
		return kernel.Skip("no_normalized_text")
	}
	toks := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '_')
	})
	if len(toks) > Limits.MaxTokens {
		toks = toks[:Limits.MaxTokens]
	}
	out := make([]any, len(toks))
	for i, t := range toks {
		out[i] = t
	}
	return kernel.OK(state.Tree{
		"perception": state.Tree{"tokens": state.Tree{"list": out, "count": len(out)}},
	})
}

// SentenceSplitter splits normalized text into sentences on terminal
// punctuation, bounded by Limits.MaxSentences.
func SentenceSplitter(s state.Tree) kernel.Envelope {
	text := s.Get("perception").Get("normalized").GetString("text")
	if text == "" {
		return kernel.Skip("no_normalized_text")
	}
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '؟'
	})
	sentences := make([]any, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			sentences = append(sentences, r)
		}
		if len(sentences) >= Limits.MaxSentences {
			break
		}
	}
	return kernel.OK(state.Tree{
		"perception": state.Tree{"sentences": state.Tree{"list": sentences, "count": len(sentences)}},
	})
}

// Span is one packed token/character-offset range inside PackZ.
type Span struct {
	Start int
	End   int
	Kind  string
}

// SpanExtractor computes character-offset spans for each sentence,
// truncated to Limits.MaxSpans — PackZ's span list.
func SpanExtractor(s state.Tree) kernel.Envelope {
	text := s.Get("perception").Get("normalized").GetString("text")
	sentences := s.Get("perception").Get("sentences").GetSlice("list")
	if text == "" || len(sentences) == 0 {
		return kernel.Skip("no_sentences")
	}
	spans := make([]any, 0, len(sentences))
	cursor := 0
	for _, raw := range sentences {
		sent, _ := raw.(string)
		idx := strings.Index(text[cursor:], sent)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		end := start + len(sent)
		spans = append(spans, state.Tree{"start": start, "end": end, "kind": "sentence"})
		cursor = end
		if len(spans) >= Limits.MaxSpans {
			break
		}
	}
	return kernel.OK(state.Tree{
		"perception": state.Tree{"spans": state.Tree{"list": spans, "truncated": len(sentences) > len(spans)}},
	})
}

// SignalExtractor derives coarse signals (question mark present,
// exclamation present, length bucket, token count) used by the
// world-model predictor's heuristic adjustments.
func SignalExtractor(s state.Tree) kernel.Envelope {
	perc := s.Get("perception")
	text := perc.Get("normalized").GetString("text")
	if text == "" {
		return kernel.Skip("no_normalized_text")
	}
	tokenCount := int(perc.Get("tokens").GetInt64("count"))
	signals := state.Tree{
		"has_question":     strings.ContainsAny(text, "?؟"),
		"has_exclamation":  strings.Contains(text, "!"),
		"token_count":      tokenCount,
		"char_len":         len(text),
		"looks_like_thanks": containsAny(strings.ToLower(text), "thanks", "thank you", "مرسی"),
	}
	return kernel.OK(state.Tree{"perception": state.Tree{"signals": signals}})
}

func containsAny(text string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// NoveltyScorer compares the SHA1 of the current normalized text against
// the hashes listed in perception.recent_hashes to produce a crude
// novelty score: 0.1 when the hash is listed (seen), 0.9 otherwise.
func NoveltyScorer(s state.Tree) kernel.Envelope {
	text := s.Get("perception").Get("normalized").GetString("text")
	if text == "" {
		return kernel.Skip("no_normalized_text")
	}
	hash := idhash.SHA1OfString(text)
	history := s.Get("perception").GetSlice("recent_hashes")
	for _, h := range history {
		if hs, _ := h.(string); hs == hash {
			return kernel.OK(state.Tree{"perception": state.Tree{"novelty": state.Tree{"score": 0.1, "seen": true}}})
		}
	}
	return kernel.OK(state.Tree{"perception": state.Tree{"novelty": state.Tree{"score": 0.9, "seen": false}}})
}

// TypingTracer records a lightweight trace entry of this perception
// pass, bounded the same way world-model traces are (TraceLimit).
const TraceLimit = 12

func TypingTracer(s state.Tree) kernel.Envelope {
	commit := s.Get("perception").Get("commit")
	if commit.GetString("text") == "" {
		return kernel.Skip("no_commit")
	}
	trace := s.Get("perception").GetSlice("trace")
	entry := state.Tree{"at_ms": commit.GetInt64("at_ms"), "author": commit.GetString("author")}
	trace = append(trace, entry)
	if len(trace) > TraceLimit {
		trace = trace[len(trace)-TraceLimit:]
	}
	return kernel.OK(state.Tree{"perception": state.Tree{"trace": trace}})
}

// PackZ assembles the canonical packaged view of the current input: a
// stable id hashing (text, commit time), plus spans, signals, and counts.
// Grounded in b1f10_packz.py.
func PackZ(s state.Tree) kernel.Envelope {
	perc := s.Get("perception")
	commit := perc.Get("commit")
	text := perc.Get("normalized").GetString("text")
	if text == "" {
		return kernel.Skip("no_normalized_text")
	}
	atMs := commit.GetInt64("at_ms")
	id := idhash.SHA1Hex(state.Tree{"text": text, "at_ms": atMs})

	spans := perc.Get("spans").GetSlice("list")
	if len(spans) > Limits.MaxSpans {
		spans = spans[:Limits.MaxSpans]
	}

	pack := state.Tree{
		"id":        id,
		"text":      text,
		"lang":      perc.Get("script").GetString("lang"),
		"spans":     spans,
		"signals":   perc.Get("signals"),
		"counts": state.Tree{
			"tokens":    perc.Get("tokens").GetInt64("count"),
			"sentences": perc.Get("sentences").GetInt64("count"),
			"spans":     len(spans),
		},
		"direction": majorityDirection(text),
		"at_ms":     atMs,
	}
	return kernel.OK(state.Tree{"perception": state.Tree{"packz": pack}})
}

// majorityDirection returns "rtl" when Arabic-range runes outnumber
// Latin letters in text, else "ltr" — PackZ's majority-direction field.
func majorityDirection(text string) string {
	rtl, ltr := 0, 0
	for _, r := range text {
		switch {
		case r >= 0x0600 && r <= 0x06FF:
			rtl++
		case unicode.IsLetter(r) && r < 128:
			ltr++
		}
	}
	if rtl > ltr {
		return "rtl"
	}
	return "ltr"
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
