// Package vector implements the vector store adapter: a semantic index over
// log records. Records carrying an embedding-bearing field (detail text or
// index hints) are embedded and stored in a JetStream KV bucket; reads can
// rank by cosine similarity against an embedded query.
package vector

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/quilross/aquil-symbolic-engine-sub003/natsclient"
	"github.com/quilross/aquil-symbolic-engine-sub003/pkg/retry"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// DefaultBucket is the KV bucket holding the embedding index.
const DefaultBucket = "AQUIL_VECTORS"

// DefaultReadLimit caps a read when the query does not supply one.
const DefaultReadLimit = 50

// Entry is the stored shape: the embedding plus enough record metadata to
// filter and merge without consulting the richer stores.
type Entry struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"vector"`
	SourceText string    `json:"source_text"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Timestamp  string    `json:"timestamp"`
	Kind       string    `json:"kind,omitempty"`
	Level      string    `json:"level,omitempty"`
	Source     string    `json:"source,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
}

// Adapter is the vector store adapter.
type Adapter struct {
	client   *natsclient.Client
	kv       *natsclient.KVStore
	embedder Embedder
	logger   *slog.Logger
}

// New binds the adapter to its embedding index bucket. A nil client, an
// unconnected client, or a nil embedder yields an unavailable adapter.
func New(ctx context.Context, client *natsclient.Client, bucket string, embedder Embedder, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	a := &Adapter{client: client, embedder: embedder, logger: logger}

	if client == nil || !client.Connected() || embedder == nil {
		return a
	}

	b, err := client.EnsureKeyValue(ctx, bucket)
	if err != nil {
		logger.Warn("vector index bucket unavailable", "bucket", bucket, "error", err)
		return a
	}
	a.kv = natsclient.NewKVStore(b)
	return a
}

// Name implements store.Adapter.
func (a *Adapter) Name() string { return store.NameVector }

// Available implements store.Adapter.
func (a *Adapter) Available() bool {
	return a.kv != nil && a.embedder != nil && a.client.Connected()
}

// Write implements store.Adapter. Records without an embedding-bearing
// field are skipped, not failed.
func (a *Adapter) Write(ctx context.Context, rec record.LogRecord) store.WriteOutcome {
	if !a.Available() {
		return store.Failure(store.NameVector, "adapter unavailable")
	}

	text := EmbeddableText(rec)
	if text == "" {
		return store.Skip(store.NameVector, "record has no embedding-bearing field")
	}

	vec, err := a.embed(ctx, text)
	if err != nil {
		return store.Failure(store.NameVector, "generate embedding: "+err.Error())
	}

	entry := Entry{
		ID:         rec.ID,
		Vector:     vec,
		SourceText: text,
		Model:      a.embedder.Model(),
		Dimensions: a.embedder.Dimensions(),
		Timestamp:  rec.Timestamp,
		Kind:       rec.Kind,
		Level:      rec.Level,
		Source:     rec.Source,
		SessionID:  rec.SessionID,
		Tags:       rec.Tags,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return store.Failure(store.NameVector, "marshal entry: "+err.Error())
	}

	if err := a.kv.Put(ctx, entryKey(rec.ID), data); err != nil {
		return store.Failure(store.NameVector, err.Error())
	}

	return store.Success(store.NameVector)
}

// Read implements store.Adapter. With a text query, entries are ranked by
// cosine similarity against the embedded query; otherwise most-recent-first
// like the other stores. Returned records are the slim indexed shape, which
// the aggregator merges under the relational version when one exists.
func (a *Adapter) Read(ctx context.Context, q store.Query) (store.ReadResult, error) {
	if !a.Available() {
		return store.ReadResult{}, natsclient.ErrNotConnected
	}

	entries, err := a.loadEntries(ctx, q)
	if err != nil {
		return store.ReadResult{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	if q.Text != "" {
		queryVec, err := a.embed(ctx, q.Text)
		if err != nil {
			return store.ReadResult{}, err
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return CosineSimilarity(entries[i].Vector, queryVec) >
				CosineSimilarity(entries[j].Vector, queryVec)
		})
	} else {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Timestamp > entries[j].Timestamp
		})
	}

	partial := false
	if len(entries) > limit {
		entries = entries[:limit]
		partial = true
	}

	records := make([]record.LogRecord, len(entries))
	for i, e := range entries {
		records[i] = e.toRecord()
	}

	return store.ReadResult{Records: records, Partial: partial}, nil
}

// embed generates one embedding, retrying transient provider failures.
func (a *Adapter) embed(ctx context.Context, text string) ([]float32, error) {
	cfg := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	var vec []float32
	err := retry.Do(ctx, cfg, func() error {
		vectors, err := a.embedder.Generate(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			// A provider answering success with no vector is a contract
			// violation, not a transient condition.
			return retry.NonRetryable(stderrors.New("embedder returned no vector"))
		}
		vec = vectors[0]
		return nil
	})
	return vec, err
}

func (a *Adapter) loadEntries(ctx context.Context, q store.Query) ([]Entry, error) {
	keys, err := a.kv.Keys(ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, key := range keys {
		data, err := a.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			a.logger.Warn("skipping undecodable vector entry", "key", key, "error", err)
			continue
		}
		if store.Matches(e.toRecord(), q) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (e Entry) toRecord() record.LogRecord {
	return record.LogRecord{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Kind:      e.Kind,
		Level:     e.Level,
		Source:    e.Source,
		SessionID: e.SessionID,
		Tags:      e.Tags,
	}
}

// EmbeddableText extracts the embedding-bearing text of a record: the
// detail's "text" field when present, plus the idx1/idx2 index hints.
// Empty means the record carries nothing worth indexing.
func EmbeddableText(rec record.LogRecord) string {
	var parts []string

	if len(rec.Detail) > 0 {
		var detail map[string]any
		if err := json.Unmarshal(rec.Detail, &detail); err == nil {
			if text, ok := detail["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
	}
	if rec.Idx1 != "" {
		parts = append(parts, rec.Idx1)
	}
	if rec.Idx2 != "" {
		parts = append(parts, rec.Idx2)
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}

func entryKey(id string) string {
	return "vec." + id
}
