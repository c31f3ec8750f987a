// Package pii implements deep detection and redaction of personally
// identifiable information in structured payloads.
//
// One detection primitive backs two independent controls:
//
//   - a best-effort runtime redaction middleware applied to inbound write
//     requests (advisory, never blocks), and
//   - an authoritative storage guardrail evaluated inside every store that
//     persists raw payloads (blocking).
//
// Keeping the walk in one place means a key learned from a production
// incident is added once and takes effect at both evaluation points.
package pii

import (
	"fmt"
	"sort"
	"strings"
)

// Marker replaces PII values during redaction. A key whose value already
// equals the marker carries no live PII and passes the storage guardrail.
const Marker = "[REDACTED]"

// keySet is the closed set of field names treated as PII, lowercased.
// Matching is on the key, not the value, so it works structurally on
// payloads whose schema we have never seen.
var keySet = map[string]struct{}{
	"email":                  {},
	"email_address":          {},
	"customer_email":         {},
	"phone":                  {},
	"phone_number":           {},
	"customer_phone":         {},
	"ssn":                    {},
	"social_security_number": {},
	"national_id":            {},
	"passport":               {},
	"credit_card":            {},
	"ip":                     {},
	"ip_address":             {},
	"first_name":             {},
	"last_name":              {},
	"full_name":              {},
	"address":                {},
	"street_address":         {},
	"billing_address":        {},
	"shipping_address":       {},
}

// IsPIIKey reports whether key is in the closed PII key set.
func IsPIIKey(key string) bool {
	_, ok := keySet[strings.ToLower(key)]
	return ok
}

// Match describes one PII key occurrence inside a document.
type Match struct {
	// Key is the matched field name as it appears in the document.
	Key string
	// Path is the dotted location of the key, e.g.
	// "data.object.billing_details.email" or "items[2].customer_phone".
	Path string
	// Redacted is true when the value is already the redaction Marker.
	Redacted bool
}

// Scan recursively walks a decoded JSON document (maps, slices, scalars at
// any depth) and returns every PII key occurrence. A shallow top-level check
// is deliberately not offered: upstream platforms routinely nest PII several
// levels deep.
func Scan(doc any) []Match {
	var matches []Match
	walk(doc, "", func(m Match) { matches = append(matches, m) })
	return matches
}

// FirstUnredacted returns the first match whose value is not yet redacted,
// or false when the document carries no live PII.
func FirstUnredacted(doc any) (Match, bool) {
	for _, m := range Scan(doc) {
		if !m.Redacted {
			return m, true
		}
	}
	return Match{}, false
}

// Redact returns a copy of doc with every PII key's value replaced by the
// Marker, together with the paths that were redacted. The input document is
// not modified.
func Redact(doc any) (any, []string) {
	var paths []string
	out := redact(doc, "", &paths)
	return out, paths
}

func walk(doc any, path string, emit func(Match)) {
	switch v := doc.(type) {
	case map[string]any:
		// Deterministic order so "first matching key" is stable across runs.
		for _, key := range sortedKeys(v) {
			value := v[key]
			keyPath := joinPath(path, key)
			if IsPIIKey(key) {
				s, isString := value.(string)
				emit(Match{Key: key, Path: keyPath, Redacted: isString && s == Marker})
			}
			walk(value, keyPath, emit)
		}
	case []any:
		for i, item := range v {
			walk(item, fmt.Sprintf("%s[%d]", path, i), emit)
		}
	}
}

func redact(doc any, path string, paths *[]string) any {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for _, key := range sortedKeys(v) {
			value := v[key]
			keyPath := joinPath(path, key)
			if IsPIIKey(key) {
				out[key] = Marker
				*paths = append(*paths, keyPath)
				continue
			}
			out[key] = redact(value, keyPath, paths)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redact(item, fmt.Sprintf("%s[%d]", path, i), paths)
		}
		return out
	default:
		return doc
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
