package b11runtime

import (
	"fmt"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
)

// Default cooldowns, grounded in
// original_source/n3_core/block_11_runtime/b11f4_initiative_scheduler.py.
const (
	DefaultIntrospectionCooldownMs = 15000
	DefaultReflectionCooldownMs    = 20000
)

// InitiativeScheduler picks due initiative items and turns them into
// dialog.final (say) or executor.requests (run_skill). Pure; expects
// time via state.clock.now_ms. Also autonomously enqueues introspection
// prompts when sustained uncertainty is high and reflection prompts when
// new concept rules appear. Ported from b11f4_initiative_scheduler.py.
func InitiativeScheduler(s state.Tree) kernel.Envelope {
	init := s.Get("initiative")
	queue := cloneQueue(init.GetSlice("queue"))
	cooldowns := state.Tree{}
	for k, v := range init.Get("cooldowns") {
		cooldowns[k] = v
	}

	now := s.Get("clock").GetInt64("now_ms")
	if now <= 0 {
		return kernel.Skip("no_clock")
	}

	summary := s.Get("observability").Get("telemetry").Get("summary")

	if shouldScheduleIntrospection(summary, now, cooldowns) {
		cooldownMs := summary.GetInt64("introspection_cooldown_ms")
		if cooldownMs == 0 {
			cooldownMs = DefaultIntrospectionCooldownMs
		}
		queue = append(queue, state.Tree{
			"type": "say", "when_ms": now, "once": true, "cooldown_ms": cooldownMs,
			"payload": state.Tree{"text": introspectionMessage(summary)},
		})
		cooldowns["introspection_ms"] = now
	}

	if shouldScheduleReflection(summary, now, cooldowns) {
		if text := reflectionMessage(s); text != "" {
			cooldownMs := summary.GetInt64("reflection_cooldown_ms")
			if cooldownMs == 0 {
				cooldownMs = DefaultReflectionCooldownMs
			}
			queue = append(queue, state.Tree{
				"type": "say", "when_ms": now, "once": true, "cooldown_ms": cooldownMs,
				"payload": state.Tree{"text": text, "move": "reflection"},
			})
			cooldowns["reflection_ms"] = now
		}
	}

	taken := 0
	newQueue := make([]any, 0, len(queue))
	dialogExisting := s.Get("dialog").Get("final")
	dialogBusy := len(dialogExisting) > 0
	dialogOut := state.Tree{}
	if dialogBusy {
		dialogOut = dialogExisting
	}

	existingReqs := append([]any{}, s.Get("executor").GetSlice("requests")...)
	var newRequests []any

	for _, raw := range queue {
		it, ok := asMap(raw)
		if !ok {
			continue
		}
		whenMs := it.GetInt64("when_ms")
		typ := it.GetString("type")
		once := true
		if v, exists := it["once"]; exists {
			if b, ok := v.(bool); ok {
				once = b
			}
		}
		cooldown := it.GetInt64("cooldown_ms")
		payload := it.Get("payload")

		due := whenMs > 0 && whenMs <= now
		if !due {
			newQueue = append(newQueue, it)
			continue
		}

		if typ == "say" && !dialogBusy {
			text := payload.GetString("text")
			if text != "" {
				move := payload.GetString("move")
				if move == "" {
					move = "answer"
				}
				dialogOut = state.Tree{"move": move, "text": text, "origin": "initiative"}
				dialogBusy = true
				taken++
				if !once && cooldown > 0 {
					it["when_ms"] = now + cooldown
					newQueue = append(newQueue, it)
				}
				continue
			}
		} else if typ == "run_skill" {
			if req := payload.Get("req"); len(req) > 0 {
				newRequests = append(newRequests, req)
				taken++
				if !once && cooldown > 0 {
					it["when_ms"] = now + cooldown
					newQueue = append(newQueue, it)
				}
				continue
			}
		}

		newQueue = append(newQueue, it)
	}

	out := state.Tree{
		"initiative": state.Tree{
			"queue":     newQueue,
			"stats":     state.Tree{"taken": taken, "remain": len(newQueue)},
			"cooldowns": cooldowns,
		},
	}
	if len(dialogOut) > 0 {
		out["dialog"] = state.Tree{"final": dialogOut, "meta": state.Tree{"clears_previous": true}}
	}
	if len(newRequests) > 0 {
		out["executor"] = state.Tree{"requests": append(existingReqs, newRequests...)}
	} else if len(existingReqs) > 0 {
		out["executor"] = state.Tree{"requests": existingReqs}
	}
	return kernel.OK(out)
}

func cloneQueue(queue []any) []any {
	out := make([]any, 0, len(queue))
	for _, it := range queue {
		if m, ok := asMap(it); ok {
			cp := state.Tree{}
			for k, v := range m {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}
	return out
}

func shouldScheduleIntrospection(summary state.Tree, now int64, cooldowns state.Tree) bool {
	needs, _ := summary["needs_introspection"].(bool)
	if !needs {
		return false
	}
	last := cooldowns.GetInt64("introspection_ms")
	cooldown := summary.GetInt64("introspection_cooldown_ms")
	if cooldown == 0 {
		cooldown = DefaultIntrospectionCooldownMs
	}
	return (now - last) >= cooldown
}

func introspectionMessage(summary state.Tree) string {
	u := summary.GetFloat64("uncertainty")
	if u >= 0.75 {
		return "من مطمئن نیستم؛ لطفاً جزئیات بیشتری بده."
	}
	return "برای ادامه نیاز به اطلاعات بیشتری دارم."
}

func shouldScheduleReflection(summary state.Tree, now int64, cooldowns state.Tree) bool {
	newRules := summary.GetInt64("concept_new_rules")
	if newRules <= 0 {
		return false
	}
	last := cooldowns.GetInt64("reflection_ms")
	cooldown := summary.GetInt64("reflection_cooldown_ms")
	if cooldown == 0 {
		cooldown = DefaultReflectionCooldownMs
	}
	return (now - last) >= cooldown
}

func reflectionMessage(s state.Tree) string {
	rules := s.Get("concept_graph").Get("rules").GetSlice("rules")
	if len(rules) == 0 {
		return ""
	}
	rule, ok := asMap(rules[len(rules)-1])
	if !ok {
		return ""
	}
	nodes := conceptContext(s)
	label := func(id string) string {
		if l, ok := nodes[id]; ok {
			return l
		}
		return id
	}
	switch rule.GetString("type") {
	case "assoc":
		return fmt.Sprintf("I noticed a new association between %s and %s. Should I keep it?", label(rule.GetString("u")), label(rule.GetString("v")))
	case "synonym":
		return fmt.Sprintf("I think %s and %s might be synonyms. Does that feel right?", label(rule.GetString("a")), label(rule.GetString("b")))
	case "subsumes":
		return fmt.Sprintf("It looks like %s may include %s. Should we store that link?", label(rule.GetString("parent")), label(rule.GetString("child")))
	default:
		return ""
	}
}

func conceptContext(s state.Tree) map[string]string {
	out := map[string]string{}
	nodes := s.Get("concept_graph").Get("nodes").GetSlice("nodes")
	for _, raw := range nodes {
		n, ok := asMap(raw)
		if !ok {
			continue
		}
		id := n.GetString("id")
		if id == "" {
			continue
		}
		key := n.GetString("key")
		if key == "" {
			key = id
		}
		out[id] = key
	}
	return out
}
