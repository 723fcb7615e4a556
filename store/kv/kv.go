// Package kv implements the key-value store adapter over a NATS JetStream
// KV bucket. The whole canonical record is serialized under a key derived
// from its id.
package kv

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/quilross/aquil-symbolic-engine-sub003/natsclient"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// DefaultBucket is the KV bucket holding log records.
const DefaultBucket = "AQUIL_LOGS"

// DefaultReadLimit caps a read when the query does not supply one.
const DefaultReadLimit = 100

// Adapter is the key-value store adapter.
type Adapter struct {
	client *natsclient.Client
	kv     *natsclient.KVStore
	logger *slog.Logger
}

// New binds the adapter to a KV bucket via the shared NATS client. A nil or
// unconnected client yields an unavailable adapter, which is reported up
// front rather than failing per call.
func New(ctx context.Context, client *natsclient.Client, bucket string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	a := &Adapter{client: client, logger: logger}

	if client == nil || !client.Connected() {
		return a
	}

	b, err := client.EnsureKeyValue(ctx, bucket)
	if err != nil {
		logger.Warn("KV bucket unavailable", "bucket", bucket, "error", err)
		return a
	}
	a.kv = natsclient.NewKVStore(b)
	return a
}

// Name implements store.Adapter.
func (a *Adapter) Name() string { return store.NameKV }

// Available implements store.Adapter.
func (a *Adapter) Available() bool {
	return a.kv != nil && a.client.Connected()
}

// Write implements store.Adapter.
func (a *Adapter) Write(ctx context.Context, rec record.LogRecord) store.WriteOutcome {
	if !a.Available() {
		return store.Failure(store.NameKV, "adapter unavailable")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return store.Failure(store.NameKV, "marshal record: "+err.Error())
	}

	if err := a.kv.Put(ctx, recordKey(rec.ID), data); err != nil {
		return store.Failure(store.NameKV, err.Error())
	}

	return store.Success(store.NameKV)
}

// Read implements store.Adapter. JetStream KV has no secondary indexes, so
// the adapter lists keys and filters client-side; reads that hit the limit
// are flagged partial.
func (a *Adapter) Read(ctx context.Context, q store.Query) (store.ReadResult, error) {
	if !a.Available() {
		return store.ReadResult{}, natsclient.ErrNotConnected
	}

	keys, err := a.kv.Keys(ctx)
	if err != nil {
		return store.ReadResult{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var matches []record.LogRecord
	for _, key := range keys {
		data, err := a.kv.Get(ctx, key)
		if err != nil {
			// Key deleted between list and get; not an aggregate failure.
			continue
		}
		var rec record.LogRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			a.logger.Warn("skipping undecodable record", "key", key, "error", err)
			continue
		}
		if store.Matches(rec, q) {
			matches = append(matches, rec)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Timestamp > matches[j].Timestamp
	})

	partial := false
	if len(matches) > limit {
		matches = matches[:limit]
		partial = true
	}

	return store.ReadResult{Records: matches, Partial: partial}, nil
}

// recordKey derives the bucket key for a record id. JetStream KV keys allow
// the uuid alphabet directly.
func recordKey(id string) string {
	return "log." + id
}
