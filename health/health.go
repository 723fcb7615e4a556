// Package health reports service liveness and per-store availability. The
// service itself is always alive (the pipeline degrades rather than dies),
// so the report distinguishes "ok" from "degraded" instead of up from down.
package health

import (
	"time"

	"github.com/quilross/aquil-symbolic-engine-sub003/pkg/timestamp"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// Store availability values in a health report.
const (
	StoreAvailable = "available"
	StoreMissing   = "missing"
)

// Overall status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Status is one health snapshot.
type Status struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Stores    map[string]string `json:"stores"`
}

// Monitor produces health snapshots over the configured store adapters.
type Monitor struct {
	adapters []store.Adapter
	version  string
	started  time.Time
}

// New creates a monitor. Version may be empty.
func New(adapters []store.Adapter, version string) *Monitor {
	return &Monitor{
		adapters: adapters,
		version:  version,
		started:  time.Now(),
	}
}

// Check returns the current snapshot. Degraded means at least one configured
// store is unavailable; with no stores configured the service is still ok,
// just persisting nothing.
func (m *Monitor) Check() Status {
	s := Status{
		Status:    StatusOK,
		Version:   m.version,
		Timestamp: timestamp.Now(),
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		Stores:    make(map[string]string, len(m.adapters)),
	}

	for _, a := range m.adapters {
		if a.Available() {
			s.Stores[a.Name()] = StoreAvailable
		} else {
			s.Stores[a.Name()] = StoreMissing
			s.Status = StatusDegraded
		}
	}

	return s
}
