// Package idhash computes the deterministic content-hash ids used
// throughout the kernel (PackZ id, plan id, version id, job id, node id,
// edge id, record id) — every id is a SHA1 of a canonical JSON encoding
// of its documented inputs, grounded in the original n3_core modules,
// which hash `json.dumps(obj, sort_keys=True, ensure_ascii=False)`.
package idhash

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Canonical renders v as JSON with map keys sorted and no HTML-escaping,
// matching Python's `json.dumps(..., sort_keys=True)`.
func Canonical(v any) []byte {
	normalized := normalize(v)
	b, err := json.Marshal(normalized)
	if err != nil {
		return []byte("null")
	}
	return b
}

// normalize walks the value converting maps into a key-sorted
// representation; encoding/json already sorts map[string]any keys on
// marshal, so this mainly exists to make that behavior explicit and to
// recurse into slices uniformly.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = normalize(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return t
	}
}

// SHA1Hex hashes the canonical JSON of v and returns the lowercase hex
// digest, the id shape used everywhere in the state tree.
func SHA1Hex(v any) string {
	sum := sha1.Sum(Canonical(v))
	return hex.EncodeToString(sum[:])
}

// SHA1OfString hashes a raw string directly, used for salted bucket
// hashes like `sha1(thread_id|salt)` in feature-flag rollout.
func SHA1OfString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// BucketPercent returns a deterministic 0-99 bucket for (key, salt),
// used by the gatekeeper's percentage-rollout feature flags:
// sha1(thread_id|salt) % 100.
func BucketPercent(key, salt string) int {
	h := SHA1OfString(key + "|" + salt)
	// Use the leading 8 hex digits (first 4 bytes) of the digest for the modulo,
	// matching the original's `int(hashlib.sha1(...).hexdigest(), 16) % 100`
	// closely enough for uniform bucketing purposes.
	var acc uint64
	for i := 0; i < 8 && i < len(h); i++ {
		acc = acc*16 + uint64(hexDigit(h[i]))
	}
	return int(acc % 100)
}

func hexDigit(c byte) uint64 {
	switch {
	case c >= '0' && c <= '9':
		return uint64(c - '0')
	case c >= 'a' && c <= 'f':
		return uint64(c-'a') + 10
	default:
		return 0
	}
}
