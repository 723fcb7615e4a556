package aggregate

import (
	"sync"
	"sync/atomic"

	"github.com/quilross/aquil-symbolic-engine-sub003/pkg/timestamp"
)

// Meta describes the retrieval history of the pipeline: how many aggregated
// reads have run and when the last one happened. It rides along on every
// read result so callers can tell a fresh view from a stale one.
type Meta struct {
	RetrievalCount int64  `json:"retrieval_count"`
	LastRetrieved  string `json:"last_retrieved,omitempty"`
	LastSessionID  string `json:"last_session_id,omitempty"`
}

// MetaTracker records retrieval activity. Safe for concurrent use.
type MetaTracker struct {
	count atomic.Int64

	mu            sync.Mutex
	lastRetrieved string
	lastSessionID string
}

// NewMetaTracker creates an empty tracker.
func NewMetaTracker() *MetaTracker {
	return &MetaTracker{}
}

// Record notes one retrieval and returns the updated meta snapshot.
func (t *MetaTracker) Record(p Params) Meta {
	n := t.count.Add(1)
	now := timestamp.Now()

	t.mu.Lock()
	t.lastRetrieved = now
	if p.SessionID != "" {
		t.lastSessionID = p.SessionID
	}
	last := t.lastRetrieved
	session := t.lastSessionID
	t.mu.Unlock()

	return Meta{RetrievalCount: n, LastRetrieved: last, LastSessionID: session}
}

// Snapshot returns the current meta without recording a retrieval.
func (t *MetaTracker) Snapshot() Meta {
	t.mu.Lock()
	last := t.lastRetrieved
	session := t.lastSessionID
	t.mu.Unlock()

	return Meta{RetrievalCount: t.count.Load(), LastRetrieved: last, LastSessionID: session}
}
