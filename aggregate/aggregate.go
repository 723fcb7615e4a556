// Package aggregate implements the retrieval side of the pipeline: it fans a
// query out to every configured store adapter, merges the per-store results
// into one deduplicated view, and classifies how completely each record and
// the read as a whole could be reconstructed. Like the write path, reads are
// fail-open: a store that errors degrades the result, it never aborts it.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quilross/aquil-symbolic-engine-sub003/metric"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// Retrieval status values, per record and for the read as a whole.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// DefaultTimeout bounds each adapter read.
const DefaultTimeout = 5 * time.Second

// DefaultLimit caps the merged result when the caller does not supply one.
const DefaultLimit = 100

// Params filters one aggregated read.
type Params struct {
	Kind      string
	Tag       string
	SessionID string
	Limit     int

	// Sources names the stores to consult; empty means all configured
	// adapters. Stores outside the subset are not dispatched to and do not
	// appear in StoreStatus.
	Sources []string

	// Text requests similarity ranking from stores that support it.
	Text string

	// Rehydrate pulls offloaded detail back from the blob store for
	// records whose inline detail was replaced by a preview stub.
	Rehydrate bool
}

// MergedRecord is one record as reconstructed across the stores.
type MergedRecord struct {
	record.LogRecord

	// RetrievalStatus reports how completely this record was recovered:
	// complete (every store that should hold it answered with it),
	// partial (some expected copies missing), failed (only slim index
	// entries found, no full-content copy anywhere).
	RetrievalStatus string `json:"retrieval_status"`

	// FoundIn lists the stores that returned this record on this read.
	FoundIn []string `json:"found_in"`
}

// Summary counts merged records by retrieval status.
type Summary struct {
	Successful int `json:"successful"`
	Partial    int `json:"partial"`
	Failed     int `json:"failed"`
}

// Result is one aggregated read. RetrievalStatus reflects the stores, not
// the records: complete when every configured store answered, partial when
// some did, failed when none did.
type Result struct {
	RetrievalStatus string            `json:"retrieval_status"`
	Records         []MergedRecord    `json:"records"`
	Summary         Summary           `json:"summary"`
	StoreStatus     map[string]string `json:"store_status"`
	Meta            Meta              `json:"meta"`
}

// BlobFetcher rehydrates offloaded detail by artifact key.
type BlobFetcher interface {
	Fetch(ctx context.Context, artifactKey string) ([]byte, error)
}

// Aggregator reads across the configured adapters.
type Aggregator struct {
	adapters []store.Adapter
	fetcher  BlobFetcher
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metric.Metrics
	meta     *MetaTracker
}

// Option configures the Aggregator.
type Option func(*Aggregator)

// WithTimeout sets the per-adapter read timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics wires the pipeline metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithBlobFetcher enables detail rehydration for offloaded records.
func WithBlobFetcher(f BlobFetcher) Option {
	return func(a *Aggregator) { a.fetcher = f }
}

// New creates an aggregator over the configured adapters.
func New(adapters []store.Adapter, meta *MetaTracker, opts ...Option) *Aggregator {
	a := &Aggregator{
		adapters: adapters,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		meta:     meta,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type storeRead struct {
	name    string
	records []record.LogRecord
	err     error
	skipped bool
}

// Read runs one aggregated retrieval. It never returns an error: store
// failures surface in StoreStatus and in per-record retrieval status.
func (a *Aggregator) Read(ctx context.Context, p Params) Result {
	start := time.Now()
	if a.metrics != nil {
		a.metrics.ReadsTotal.Inc()
		defer func() {
			a.metrics.ReadDuration.Observe(time.Since(start).Seconds())
		}()
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := store.Query{
		Kind:      p.Kind,
		Tag:       p.Tag,
		SessionID: p.SessionID,
		Limit:     limit,
		Text:      p.Text,
	}

	adapters := a.selectAdapters(p.Sources)

	reads := make([]storeRead, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range adapters {
		g.Go(func() error {
			reads[i] = a.readOne(gctx, adapter, q)
			return nil
		})
	}
	_ = g.Wait() // goroutines report through reads, never through errors

	res := a.merge(reads, p, limit)

	if p.Rehydrate && a.fetcher != nil {
		a.rehydrate(ctx, res.Records)
	}

	if a.meta != nil {
		res.Meta = a.meta.Record(p)
	}
	if a.metrics != nil {
		a.metrics.RetrievalStatus.WithLabelValues(res.RetrievalStatus).Inc()
	}

	return res
}

// selectAdapters narrows the configured adapters to the requested source
// subset. Empty means consult everything; unknown names select nothing.
func (a *Aggregator) selectAdapters(sources []string) []store.Adapter {
	if len(sources) == 0 {
		return a.adapters
	}
	want := make(map[string]bool, len(sources))
	for _, s := range sources {
		want[s] = true
	}
	selected := make([]store.Adapter, 0, len(a.adapters))
	for _, adapter := range a.adapters {
		if want[adapter.Name()] {
			selected = append(selected, adapter)
		}
	}
	return selected
}

func (a *Aggregator) readOne(ctx context.Context, adapter store.Adapter, q store.Query) (r storeRead) {
	r.name = adapter.Name()

	if !adapter.Available() {
		r.skipped = true
		return r
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("store adapter panicked during read",
				"store", r.name, "panic", rec)
			r.err = fmt.Errorf("panic: %v", rec)
			r.records = nil
		}
	}()

	result, err := adapter.Read(callCtx, q)
	if err != nil {
		a.logger.Warn("store read failed", "store", r.name, "error", err)
		r.err = err
		return r
	}
	r.records = result.Records
	return r
}

// merge folds the per-store results into one view keyed by record id. The
// relational copy wins when present (it is the richest and the filter
// pushdown lives there); kv is the next best; the blob and vector entries
// are slim and only fill gaps. Store lists are unioned.
func (a *Aggregator) merge(reads []storeRead, p Params, limit int) Result {
	res := Result{
		StoreStatus: make(map[string]string, len(reads)),
	}

	answered := 0
	attempted := 0
	var answeredStores []string
	for _, r := range reads {
		switch {
		case r.skipped:
			res.StoreStatus[r.name] = "unavailable"
		case r.err != nil:
			attempted++
			res.StoreStatus[r.name] = "error: " + r.err.Error()
		default:
			attempted++
			answered++
			answeredStores = append(answeredStores, r.name)
			res.StoreStatus[r.name] = "ok"
		}
	}

	switch {
	case attempted == 0 || answered == attempted:
		res.RetrievalStatus = StatusComplete
	case answered == 0:
		res.RetrievalStatus = StatusFailed
	default:
		res.RetrievalStatus = StatusPartial
	}

	merged := make(map[string]*MergedRecord)
	order := []string{}
	for _, r := range reads {
		for _, rec := range r.records {
			if rec.ID == "" {
				continue
			}
			m, ok := merged[rec.ID]
			if !ok {
				m = &MergedRecord{LogRecord: rec}
				merged[rec.ID] = m
				order = append(order, rec.ID)
			} else if precedence(r.name) > precedence(bestSource(m.FoundIn)) {
				stores := m.LogRecord.Stores
				m.LogRecord = rec
				for _, s := range stores {
					m.AppendStore(s)
				}
			}
			for _, s := range rec.Stores {
				m.AppendStore(s)
			}
			m.FoundIn = appendUnique(m.FoundIn, r.name)
		}
	}

	records := make([]MergedRecord, 0, len(order))
	for _, id := range order {
		m := merged[id]
		m.RetrievalStatus = recordStatus(m, answeredStores)
		records = append(records, *m)
	}

	// Similarity queries keep the vector adapter's cosine ranking: records
	// it ranked come first in its order, the rest follow most-recent-first.
	// Without a text query every store answers most-recent-first already.
	if p.Text != "" {
		rank := vectorRank(reads)
		sort.SliceStable(records, func(i, j int) bool {
			ri, iRanked := rank[records[i].ID]
			rj, jRanked := rank[records[j].ID]
			switch {
			case iRanked && jRanked:
				return ri < rj
			case iRanked != jRanked:
				return iRanked
			default:
				return records[i].Timestamp > records[j].Timestamp
			}
		})
	} else {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Timestamp > records[j].Timestamp
		})
	}
	if len(records) > limit {
		records = records[:limit]
	}

	for _, r := range records {
		switch r.RetrievalStatus {
		case StatusComplete:
			res.Summary.Successful++
		case StatusPartial:
			res.Summary.Partial++
		default:
			res.Summary.Failed++
		}
	}

	res.Records = records
	return res
}

// vectorRank maps record id to its position in the vector store's answer,
// which is similarity-ordered for text queries.
func vectorRank(reads []storeRead) map[string]int {
	rank := make(map[string]int)
	for _, r := range reads {
		if r.name != store.NameVector || r.err != nil {
			continue
		}
		for i, rec := range r.records {
			rank[rec.ID] = i
		}
		break
	}
	return rank
}

// recordStatus classifies one merged record. A record is complete when every
// answering full-content store returned it (plus the blob store when its
// artifact key says it should hold overflow detail); failed when no
// full-content copy surfaced at all; partial in between.
func recordStatus(m *MergedRecord, answeredStores []string) string {
	expected := []string{}
	for _, s := range answeredStores {
		switch s {
		case store.NameKV, store.NameRelational:
			expected = append(expected, s)
		case store.NameBlob:
			if m.ArtifactKey != "" {
				expected = append(expected, s)
			}
		}
	}

	hasFull := false
	for _, s := range m.FoundIn {
		if s == store.NameKV || s == store.NameRelational {
			hasFull = true
			break
		}
	}
	if !hasFull {
		return StatusFailed
	}

	for _, e := range expected {
		if !contains(m.FoundIn, e) {
			return StatusPartial
		}
	}
	return StatusComplete
}

// rehydrate swaps preview stubs back for the full offloaded detail.
func (a *Aggregator) rehydrate(ctx context.Context, records []MergedRecord) {
	for i := range records {
		key := records[i].ArtifactKey
		if key == "" {
			continue
		}
		data, err := a.fetcher.Fetch(ctx, key)
		if err != nil {
			a.logger.Warn("artifact rehydration failed",
				"record_id", records[i].ID, "artifact_key", key, "error", err)
			continue
		}
		records[i].Detail = json.RawMessage(data)
	}
}

// precedence orders stores by how authoritative their copy of a record is.
func precedence(name string) int {
	switch name {
	case store.NameRelational:
		return 3
	case store.NameKV:
		return 2
	case store.NameBlob:
		return 1
	default:
		return 0
	}
}

func bestSource(foundIn []string) string {
	best := ""
	for _, s := range foundIn {
		if precedence(s) > precedence(best) {
			best = s
		}
	}
	return best
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
