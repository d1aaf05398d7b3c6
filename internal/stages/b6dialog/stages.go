// Package b6dialog implements the B6 dialog block: turn realization,
// surface NLG, and the safety filter. The safety filter is grounded in
// original_source/n3_core/block_6_dialog/b6f3_safety_filter.py.
package b6dialog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// MaxOutLen bounds the length of a realized/filtered outbound message.
const MaxOutLen = 1200

// TurnRealizer converts the plan (or a pure answer from retrieval) into
// a dialog turn: a move plus an ops list describing what to say.
func TurnRealizer(s state.Tree) kernel.Envelope {
	plan := s.Get("planner").Get("plan")
	if plan.GetString("id") != "" {
		return kernel.OK(state.Tree{
			"dialog": state.Tree{"turn": state.Tree{"move": "execute", "plan_id": plan.GetString("id")}},
		})
	}
	retrieved := s.Get("memory").GetSlice("retrieved")
	if len(retrieved) > 0 {
		return kernel.OK(state.Tree{
			"dialog": state.Tree{"turn": state.Tree{"move": "answer", "source": "retrieval"}},
		})
	}
	intent := s.Get("planner").Get("intent")
	if intent.GetString("label") == "ask_clarification" {
		return kernel.OK(state.Tree{"dialog": state.Tree{"turn": state.Tree{"move": "ask"}}})
	}
	return kernel.Skip("nothing_to_realize")
}

// SurfaceNLG renders the turn into display text.
func SurfaceNLG(s state.Tree) kernel.Envelope {
	turn := s.Get("dialog").Get("turn")
	move := turn.GetString("move")
	if move == "" {
		return kernel.Skip("no_turn")
	}
	var text string
	switch move {
	case "execute":
		text = "در حال انجام درخواست شما هستم."
	case "ask":
		text = "می‌تونی جزئیات بیشتری بدی؟"
	case "answer":
		if best := s.Get("memory").GetSlice("retrieved"); len(best) > 0 {
			if bt, ok := best[0].(state.Tree); ok {
				text = bt.GetString("text")
			} else if bt, ok := best[0].(map[string]any); ok {
				text, _ = bt["text"].(string)
			}
		}
		if text == "" {
			text = "باشه."
		}
	default:
		text = "باشه."
	}
	if len(text) > MaxOutLen {
		text = text[:MaxOutLen]
	}
	return kernel.OK(state.Tree{"dialog": state.Tree{"surface": state.Tree{"move": move, "text": text}}})
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlRe   = regexp.MustCompile(`\bhttps?://[^\s]+`)
	phoneRe = regexp.MustCompile(`\+?\d[\d ()\-]{7,}\d`)
	ccRe    = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)

	// Secret patterns are compiled with regexp2; none of them uses
	// lookahead.
	openAIKeyRe = regexp2.MustCompile(`sk-[A-Za-z0-9]{16,}`, 0)
	githubPATRe = regexp2.MustCompile(`ghp_[A-Za-z0-9]{36}`, 0)
	googleKeyRe = regexp2.MustCompile(`AIza[A-Za-z0-9_\-]{30,}`, 0)
	slackTokRe  = regexp2.MustCompile(`xox[abpr]-[A-Za-z0-9\-]{10,}`, 0)
)

// redact finds and masks emails, URLs, phone numbers, API keys, and
// Luhn-valid credit card numbers. Returns the redacted text and the set
// of reasons triggered.
func redact(text string) (string, map[string]bool) {
	reasons := map[string]bool{}

	if m := findRegexp2(openAIKeyRe, text); m != "" {
		text = strings.ReplaceAll(text, m, "[REDACTED_SECRET]")
		reasons["secret_detected"] = true
	}
	if m := findRegexp2(githubPATRe, text); m != "" {
		text = strings.ReplaceAll(text, m, "[REDACTED_SECRET]")
		reasons["secret_detected"] = true
	}
	if m := findRegexp2(googleKeyRe, text); m != "" {
		text = strings.ReplaceAll(text, m, "[REDACTED_SECRET]")
		reasons["secret_detected"] = true
	}
	if m := findRegexp2(slackTokRe, text); m != "" {
		text = strings.ReplaceAll(text, m, "[REDACTED_SECRET]")
		reasons["secret_detected"] = true
	}

	text = ccRe.ReplaceAllStringFunc(text, func(m string) string {
		if looksLikeCreditCard(m) {
			reasons["cc_detected"] = true
			return "[REDACTED_CC]"
		}
		return m
	})

	text = emailRe.ReplaceAllString(text, "[REDACTED_EMAIL]")
	text = urlRe.ReplaceAllString(text, "[REDACTED_URL]")
	text = phoneRe.ReplaceAllStringFunc(text, func(m string) string {
		if digitCount(m) >= 9 {
			return "[REDACTED_PHONE]"
		}
		return m
	})

	return text, reasons
}

func findRegexp2(re *regexp2.Regexp, text string) string {
	m, err := re.FindStringMatch(text)
	if err != nil || m == nil {
		return ""
	}
	return m.String()
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// looksLikeCreditCard strips separators and applies the Luhn checksum.
func looksLikeCreditCard(m string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, m)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d, err := strconv.Atoi(string(digits[i]))
		if err != nil {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// SafetyFilter redacts sensitive content from the surface text. When a
// secret or credit card is found it converts the outgoing move to
// confirm and marks it blocked; otherwise, when the plan's must_confirm
// is set and the move is answer or execute, it converts the move to
// confirm without setting blocked. Grounded in b6f3_safety_filter.py.
func SafetyFilter(s state.Tree) kernel.Envelope {
	surface := s.Get("dialog").Get("surface")
	move := surface.GetString("move")
	text := surface.GetString("text")
	if move == "" {
		return kernel.Skip("no_surface")
	}

	redacted, reasons := redact(text)
	// planner.plan.guardrails.must_confirm is B5's decision, computed
	// earlier in this same tick (internal/stages/b5planning.PlanBuilder);
	// runtime.gates.require_confirm (B11) only reflects the previous
	// tick's gate, since Gatekeeper runs after dialog in DefaultOrder.
	mustConfirm := s.Get("planner").Get("plan").Get("guardrails").GetBool("must_confirm")

	blocked := reasons["secret_detected"] || reasons["cc_detected"]

	final := state.Tree{"move": move, "text": redacted}
	if blocked {
		reason := "secret_detected"
		if !reasons["secret_detected"] {
			reason = "cc_detected"
		}
		final["move"] = "confirm"
		final["blocked"] = true
		final["reason"] = reason
		final["text"] = bilingualConfirm(reason, redacted)
	} else if mustConfirm && (move == "answer" || move == "execute") {
		// Uncertainty-driven confirmation never sets blocked: that flag is
		// reserved for content the redaction engine actually had to act
		// on, per b6f3_safety_filter.py's _redact() return contract.
		final["move"] = "confirm"
		final["reason"] = "must_confirm"
		final["text"] = bilingualConfirm("must_confirm", redacted)
	}

	return kernel.OK(state.Tree{"dialog": state.Tree{"final": final}})
}

func bilingualConfirm(reason, redactedText string) string {
	switch reason {
	case "secret_detected":
		return redactedText + " — اطلاعات حساس شناسایی و حذف شد؛ لطفاً تأیید کن. (Sensitive content detected and redacted; please confirm.)"
	case "cc_detected":
		return redactedText + " — شماره کارت شناسایی شد؛ لطفاً تأیید کن. (Card number detected; please confirm.)"
	default:
		return redactedText + " — قبل از ادامه، لطفاً تأیید کن. (Please confirm before continuing.)"
	}
}
