// Package registry resolves operation identifiers against a static alias
// table assembled at startup. Historical callers logged under a number of
// operation names; the registry maps every known alias to its single
// canonical identifier so the read path only ever deals in canonical ids.
package registry

import (
	"fmt"
	"sort"
)

// Built-in canonical operation identifiers. The set is extended through
// configuration, not code, so new operations do not require a release.
var defaultCanonical = []string{
	"log_event",
	"retrieve_logs",
	"retrieve_logs_compat",
	"session_init",
	"trust_check_in",
	"wisdom_synthesis",
	"media_extract",
	"somatic_session",
}

// Built-in alias table: alias -> canonical. Accumulated from renames across
// the life of the system; entries are never removed, only added.
var defaultAliases = map[string]string{
	"autoLog":          "log_event",
	"auto-log":         "log_event",
	"writeLog":         "log_event",
	"getLogs":          "retrieve_logs",
	"readLogs":         "retrieve_logs",
	"logs":             "retrieve_logs_compat",
	"sessionInit":      "session_init",
	"session-init":     "session_init",
	"trustCheckIn":     "trust_check_in",
	"trust-checkin":    "trust_check_in",
	"wisdomSynthesis":  "wisdom_synthesis",
	"synthesizeWisdom": "wisdom_synthesis",
	"extractMedia":     "media_extract",
	"somaticSession":   "somatic_session",
}

// Registry maps operation identifiers to their canonical form. Read-only
// after construction, so lookups need no locking.
type Registry struct {
	canonical map[string]struct{}
	aliases   map[string]string
}

// New builds a registry from the built-in tables merged with extra canonical
// ids and aliases from configuration. Construction fails when a string is
// simultaneously a canonical id and an alias for a different operation, or
// when an alias targets an unknown canonical id.
func New(extraCanonical []string, extraAliases map[string]string) (*Registry, error) {
	canonical := make(map[string]struct{}, len(defaultCanonical)+len(extraCanonical))
	for _, id := range defaultCanonical {
		canonical[id] = struct{}{}
	}
	for _, id := range extraCanonical {
		canonical[id] = struct{}{}
	}

	aliases := make(map[string]string, len(defaultAliases)+len(extraAliases))
	for alias, target := range defaultAliases {
		aliases[alias] = target
	}
	for alias, target := range extraAliases {
		aliases[alias] = target
	}

	for alias, target := range aliases {
		if _, ok := canonical[target]; !ok {
			return nil, fmt.Errorf("registry: alias %q targets unknown canonical id %q", alias, target)
		}
		if _, ok := canonical[alias]; ok && alias != target {
			return nil, fmt.Errorf("registry: %q is both a canonical id and an alias for %q", alias, target)
		}
	}

	return &Registry{canonical: canonical, aliases: aliases}, nil
}

// ToCanonical resolves an operation identifier to its canonical form.
// Canonical ids and unknown ids pass through unchanged; the caller decides
// whether an unresolved identifier is an error.
func (r *Registry) ToCanonical(opID string) string {
	if _, ok := r.canonical[opID]; ok {
		return opID
	}
	if target, ok := r.aliases[opID]; ok {
		return target
	}
	return opID
}

// IsCanonical reports whether opID is a known canonical identifier.
func (r *Registry) IsCanonical(opID string) bool {
	_, ok := r.canonical[opID]
	return ok
}

// AllCanonical returns the sorted set of canonical identifiers.
func (r *Registry) AllCanonical() []string {
	ids := make([]string, 0, len(r.canonical))
	for id := range r.canonical {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllAliases returns a copy of the alias table for auditing tooling.
func (r *Registry) AllAliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for alias, target := range r.aliases {
		out[alias] = target
	}
	return out
}
