// Package store defines the common contract implemented once per persistence
// backend. The fan-out writer and retrieval aggregator depend only on the
// Adapter interface, so backends can be swapped for in-memory fakes in tests
// and left unbound in degraded deployments.
package store

import (
	"context"

	"github.com/quilross/aquil-symbolic-engine-sub003/record"
)

// Store identifiers used across configuration, outcomes, and the stores
// field of persisted records.
const (
	NameKV         = "kv"
	NameRelational = "relational"
	NameBlob       = "blob"
	NameVector     = "vector"
)

// WriteOutcome reports the result of a single adapter write. Failure is data,
// not an error value: nothing is thrown across the fan-out boundary.
//
// Skipped marks a write the adapter declined because the record does not
// concern it (no embedding-bearing field for the vector store, detail below
// the overflow threshold for the blob store). Skips count as neither success
// nor failure.
type WriteOutcome struct {
	OK          bool   `json:"ok"`
	Store       string `json:"store"`
	Skipped     bool   `json:"skipped,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`

	// ArtifactKey is set by the blob adapter: the object key under which
	// overflow detail was stored.
	ArtifactKey string `json:"artifact_key,omitempty"`
}

// Failure builds a failed outcome for a store with the given detail.
func Failure(storeName, detail string) WriteOutcome {
	return WriteOutcome{OK: false, Store: storeName, ErrorDetail: detail}
}

// Success builds a successful outcome for a store.
func Success(storeName string) WriteOutcome {
	return WriteOutcome{OK: true, Store: storeName}
}

// Skip builds a skipped outcome for a store.
func Skip(storeName, reason string) WriteOutcome {
	return WriteOutcome{OK: false, Store: storeName, Skipped: true, ErrorDetail: reason}
}

// Query filters a read across the configured adapters.
type Query struct {
	// Kind filters by record kind; empty matches all.
	Kind string
	// Tag filters to records carrying the tag; empty matches all.
	Tag string
	// SessionID filters to one conversational session; empty matches all.
	SessionID string
	// Limit caps the result count; zero means the adapter default.
	Limit int
	// Text, when set, requests similarity ranking from adapters that
	// support it (the vector adapter); others ignore it.
	Text string
}

// ReadResult is a partial result from one adapter. Partial indicates the
// adapter could not produce its full matching set (e.g. a page limit or a
// degraded backend) without failing the read outright.
type ReadResult struct {
	Records []record.LogRecord
	Partial bool
}

// Adapter is the common contract implemented per backend. An adapter that is
// not configured for the current deployment reports Available() == false up
// front, which the callers distinguish from a transient per-call failure.
type Adapter interface {
	// Name returns the store identifier ("kv", "relational", ...).
	Name() string

	// Available reports whether the backend is bound and reachable enough
	// to attempt calls. Unavailability is configuration absence, not error.
	Available() bool

	// Write persists one record, translating it to the backend's native
	// shape. The outcome carries failure detail instead of an error.
	Write(ctx context.Context, rec record.LogRecord) WriteOutcome

	// Read returns the records matching the query. An error here is
	// isolated by the aggregator: it surfaces in summary counts, never as
	// an aborted read.
	Read(ctx context.Context, q Query) (ReadResult, error)
}

// Matches reports whether a record satisfies the query filters. Shared by
// adapters whose backends do not filter natively.
func Matches(rec record.LogRecord, q Query) bool {
	if q.Kind != "" && rec.Kind != q.Kind {
		return false
	}
	if q.SessionID != "" && rec.SessionID != q.SessionID {
		return false
	}
	if q.Tag != "" {
		found := false
		for _, t := range rec.Tags {
			if t == q.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
