package store

import (
	"context"
	"sort"
	"sync"

	"github.com/quilross/aquil-symbolic-engine-sub003/record"
)

// Memory is an in-memory Adapter. It backs unit tests and serves as the
// substitution point required by the fan-out and aggregation layers; it can
// also be bound in compatibility deployments that have no real backends.
type Memory struct {
	name string

	mu      sync.RWMutex
	records map[string]record.LogRecord

	// Failure injection for tests
	available  bool
	failWrites bool
	failReads  bool
	block      chan struct{}
}

// NewMemory creates an available in-memory adapter with the given store name.
func NewMemory(name string) *Memory {
	return &Memory{
		name:      name,
		records:   make(map[string]record.LogRecord),
		available: true,
	}
}

// Name implements Adapter.
func (m *Memory) Name() string { return m.name }

// Available implements Adapter.
func (m *Memory) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// SetAvailable toggles configured-but-unavailable simulation.
func (m *Memory) SetAvailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = v
}

// FailWrites makes every Write report a failed outcome.
func (m *Memory) FailWrites(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = v
}

// FailReads makes every Read return an error.
func (m *Memory) FailReads(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = v
}

// BlockUntil makes calls hang until ch closes, for timeout tests.
func (m *Memory) BlockUntil(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = ch
}

// Write implements Adapter.
func (m *Memory) Write(ctx context.Context, rec record.LogRecord) WriteOutcome {
	m.mu.RLock()
	block := m.block
	fail := m.failWrites
	m.mu.RUnlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Failure(m.name, ctx.Err().Error())
		}
	}
	if fail {
		return Failure(m.name, "simulated write failure")
	}

	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()

	return Success(m.name)
}

// Read implements Adapter.
func (m *Memory) Read(ctx context.Context, q Query) (ReadResult, error) {
	m.mu.RLock()
	block := m.block
	fail := m.failReads
	m.mu.RUnlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ReadResult{}, ctx.Err()
		}
	}
	if fail {
		return ReadResult{}, context.DeadlineExceeded
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]record.LogRecord, 0, len(m.records))
	for _, rec := range m.records {
		if Matches(rec, q) {
			matches = append(matches, rec)
		}
	}

	// Most-recent-first by timestamp string (RFC 3339 sorts lexically)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Timestamp > matches[j].Timestamp
	})

	partial := false
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
		partial = true
	}

	return ReadResult{Records: matches, Partial: partial}, nil
}

// Put seeds a record directly, bypassing Write. Test helper.
func (m *Memory) Put(rec record.LogRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
