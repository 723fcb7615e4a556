// Package redact masks secret-bearing fields in structured payloads before
// persistence. Redaction is fail-open: losing an event is worse than
// occasionally leaking a non-obvious secret, so any internal failure returns
// the original value unchanged rather than dropping the write.
package redact

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Placeholders substituted for matched values. They are type-tagged so
// downstream consumers can still distinguish the coarse type of the value
// that was present.
const (
	PlaceholderString = "[REDACTED]"
	PlaceholderNumber = "[REDACTED:number]"
	PlaceholderBool   = "[REDACTED:bool]"
)

// DefaultMaxDepth bounds recursion into nested payloads. Sub-values below
// the cap are returned as-is, a documented under-redaction edge case.
const DefaultMaxDepth = 10

// DefaultPatterns covers common secret-bearing key names. Keys merely
// containing auth, token, secret, or password anywhere also match.
var DefaultPatterns = []string{
	`(?i)^authorization$`,
	`(?i)^api[_\- ]?key$`,
	`(?i)^cookie$`,
	`(?i)^bearer$`,
	`(?i)auth`,
	`(?i)token`,
	`(?i)secret`,
	`(?i)password`,
}

// scanTerms drive the cheap heuristic scan in ContainsPotentialSecrets.
var scanTerms = []string{"authorization", "api_key", "apikey", "cookie", "bearer", "auth", "token", "secret", "password"}

// Redactor masks values whose keys match any of a fixed set of compiled
// patterns. Construct once at startup; safe for concurrent use.
type Redactor struct {
	patterns []*regexp.Regexp
	maxDepth int
}

// New compiles the given key patterns. An empty pattern list falls back to
// DefaultPatterns; maxDepth <= 0 falls back to DefaultMaxDepth. Patterns
// that fail to compile are reported so misconfiguration is caught at
// startup, not silently at redaction time.
func New(patterns []string, maxDepth int) (*Redactor, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}

	return &Redactor{patterns: compiled, maxDepth: maxDepth}, nil
}

// MustDefault returns a redactor with the default patterns and depth cap.
func MustDefault() *Redactor {
	r, err := New(nil, 0)
	if err != nil {
		panic(err)
	}
	return r
}

// Redact walks a JSON-like value and replaces secret-matching field values
// with type-tagged placeholders. Keys are never removed; shape is preserved.
// Pure and total: never panics, and on any internal failure the original
// value is returned unchanged.
func (r *Redactor) Redact(value any) (result any) {
	defer func() {
		if recover() != nil {
			result = value
		}
	}()
	return r.walk(value, 0)
}

// RedactJSON is a convenience wrapper operating on serialized payloads.
// Unparseable input is returned unchanged.
func (r *Redactor) RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return raw
	}
	redacted := r.Redact(value)
	out, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return out
}

func (r *Redactor) walk(value any, depth int) any {
	if depth > r.maxDepth {
		// Too deep: return the sub-value as-is rather than erroring.
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			if r.matches(key) {
				out[key] = placeholder(child)
			} else {
				out[key] = r.walk(child, depth+1)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = r.walk(child, depth+1)
		}
		return out
	default:
		return value
	}
}

func (r *Redactor) matches(key string) bool {
	for _, re := range r.patterns {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// placeholder picks a type-tagged replacement for a matched value.
func placeholder(value any) any {
	switch value.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return PlaceholderNumber
	case bool:
		return PlaceholderBool
	default:
		return PlaceholderString
	}
}

// ContainsPotentialSecrets performs a cheap case-insensitive substring scan
// over the serialized form of a value. Monitoring and alerting only; it
// never gates writes.
func ContainsPotentialSecrets(value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	serialized := strings.ToLower(string(data))
	for _, term := range scanTerms {
		if strings.Contains(serialized, term) {
			return true
		}
	}
	return false
}
