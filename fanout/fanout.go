// Package fanout orchestrates a single logical write across the configured
// store adapters. The core guarantee is fail-open: the caller never blocks
// or errors because a secondary store is down. All per-store failure
// information is captured as outcome values, never thrown.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quilross/aquil-symbolic-engine-sub003/metric"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// DefaultTimeout bounds each adapter call.
const DefaultTimeout = 5 * time.Second

// DefaultInlineThreshold is the serialized detail size above which detail is
// offloaded to the blob store.
const DefaultInlineThreshold = 8 * 1024

// previewBytes is how much of an offloaded detail stays inline.
const previewBytes = 256

// Result reports one logical write. Success is true when at least one
// adapter stored the record, when no adapters are configured at all (a
// degraded deployment has nowhere to persist, which is non-fatal for the
// caller and visible through MissingStores and monitoring), or when every
// dispatched adapter declined the record as not its concern and none
// failed — a skip is not a malfunction.
type Result struct {
	Success       bool                 `json:"success"`
	Stores        []string             `json:"stores"`
	MissingStores []string             `json:"missingStores"`
	Outcomes      []store.WriteOutcome `json:"outcomes,omitempty"`

	// Record is the final form of the written record: stores appended,
	// artifact key stamped when detail was offloaded.
	Record record.LogRecord `json:"-"`
}

// Writer dispatches writes to every configured adapter concurrently.
type Writer struct {
	adapters        []store.Adapter
	timeout         time.Duration
	inlineThreshold int
	logger          *slog.Logger
	metrics         *metric.Metrics
}

// Option configures the Writer.
type Option func(*Writer)

// WithTimeout sets the per-adapter call timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Writer) { w.timeout = d }
}

// WithInlineThreshold sets the detail size above which the blob store takes
// the payload. Zero disables offloading.
func WithInlineThreshold(n int) Option {
	return func(w *Writer) { w.inlineThreshold = n }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics wires the pipeline metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// New creates a writer over the configured adapters. An empty adapter list
// is a valid degraded deployment.
func New(adapters []store.Adapter, opts ...Option) *Writer {
	w := &Writer{
		adapters:        adapters,
		timeout:         DefaultTimeout,
		inlineThreshold: DefaultInlineThreshold,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteRecord dispatches one record to every configured adapter. The blob
// adapter is special-cased: it is invoked first, and only when the detail
// exceeds the inline threshold, so the resulting artifact key is on the
// record before the remaining stores persist it. All other adapters run
// concurrently, each bounded by the per-adapter timeout; a panic or timeout
// counts as a failure for that store only.
func (w *Writer) WriteRecord(ctx context.Context, rec record.LogRecord) Result {
	start := time.Now()

	res := Result{
		Stores:        []string{},
		MissingStores: []string{},
	}

	var dispatch []store.Adapter
	var blobAdapter store.Adapter
	for _, a := range w.adapters {
		if !a.Available() {
			res.MissingStores = append(res.MissingStores, a.Name())
			w.observeAvailability(a.Name(), false)
			continue
		}
		w.observeAvailability(a.Name(), true)
		if a.Name() == store.NameBlob {
			blobAdapter = a
			continue
		}
		dispatch = append(dispatch, a)
	}

	// Blob offload pre-pass
	if blobAdapter != nil {
		out := w.offload(ctx, blobAdapter, &rec)
		res.Outcomes = append(res.Outcomes, out)
		w.observeOutcome(out)
		if out.OK {
			rec.AppendStore(out.Store)
			res.Stores = append(res.Stores, out.Store)
		}
	}

	// Concurrent dispatch to the remaining available adapters. Outcomes
	// land in adapter order so results are deterministic.
	outcomes := make([]store.WriteOutcome, len(dispatch))
	var wg sync.WaitGroup
	for i, a := range dispatch {
		wg.Add(1)
		go func(i int, a store.Adapter) {
			defer wg.Done()
			outcomes[i] = w.safeWrite(ctx, a, rec)
		}(i, a)
	}
	wg.Wait()

	for _, out := range outcomes {
		res.Outcomes = append(res.Outcomes, out)
		w.observeOutcome(out)
		if out.OK {
			rec.AppendStore(out.Store)
			res.Stores = append(res.Stores, out.Store)
		}
	}

	skips, failures := 0, 0
	for _, out := range res.Outcomes {
		switch {
		case out.Skipped:
			skips++
		case !out.OK:
			failures++
		}
	}
	res.Success = len(res.Stores) > 0 ||
		len(w.adapters) == 0 ||
		(skips > 0 && failures == 0 && len(res.MissingStores) == 0)
	res.Record = rec

	if w.metrics != nil {
		w.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	}
	if !res.Success {
		w.logger.Warn("record rejected by every configured store",
			"record_id", rec.ID, "missing_stores", res.MissingStores)
	}

	return res
}

// offload writes the full detail to the blob store when it exceeds the
// inline threshold, stamping the artifact key and truncating the inline
// detail to a preview. Below the threshold the blob store is skipped.
func (w *Writer) offload(ctx context.Context, blobAdapter store.Adapter, rec *record.LogRecord) store.WriteOutcome {
	if w.inlineThreshold <= 0 || len(rec.Detail) <= w.inlineThreshold {
		return store.Skip(store.NameBlob, "detail within inline threshold")
	}

	out := w.safeWrite(ctx, blobAdapter, *rec)
	if !out.OK {
		return out
	}

	rec.ArtifactKey = out.ArtifactKey
	rec.Detail = previewDetail(rec.Detail, out.ArtifactKey)
	return out
}

// safeWrite runs one adapter write bounded by the per-adapter timeout, with
// panics converted into failed outcomes. A write that outlives its timeout
// is abandoned (the goroutine drains in the background) so slow stores
// cannot block the others.
func (w *Writer) safeWrite(ctx context.Context, a store.Adapter, rec record.LogRecord) store.WriteOutcome {
	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan store.WriteOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("store adapter panicked during write",
					"store", a.Name(), "panic", r)
				done <- store.Failure(a.Name(), fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- a.Write(callCtx, rec)
	}()

	select {
	case out := <-done:
		return out
	case <-callCtx.Done():
		return store.Failure(a.Name(), "timeout after "+w.timeout.String())
	}
}

func (w *Writer) observeOutcome(out store.WriteOutcome) {
	if w.metrics == nil {
		return
	}
	switch {
	case out.Skipped:
		w.metrics.StoreOutcomes.WithLabelValues(out.Store, "skip").Inc()
	case out.OK:
		w.metrics.StoreOutcomes.WithLabelValues(out.Store, "success").Inc()
	default:
		w.metrics.StoreOutcomes.WithLabelValues(out.Store, "failure").Inc()
	}
}

func (w *Writer) observeAvailability(name string, available bool) {
	if w.metrics == nil {
		return
	}
	v := 0.0
	if available {
		v = 1.0
	}
	w.metrics.StoreAvailable.WithLabelValues(name).Set(v)
}

// previewDetail replaces an offloaded detail with a small inline stub
// carrying the artifact key and the head of the original payload.
func previewDetail(detail json.RawMessage, artifactKey string) json.RawMessage {
	head := string(detail)
	if len(head) > previewBytes {
		head = head[:previewBytes]
	}
	stub, err := json.Marshal(map[string]any{
		"artifact_key": artifactKey,
		"truncated":    true,
		"preview":      head,
	})
	if err != nil {
		return json.RawMessage(`{"truncated":true}`)
	}
	return stub
}
