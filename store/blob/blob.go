// Package blob implements the blob store adapter over a NATS JetStream
// ObjectStore bucket. It holds overflow detail payloads for records whose
// serialized detail exceeds the inline-storage threshold; the owning record
// keeps an artifact key pointing at the stored object.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/quilross/aquil-symbolic-engine-sub003/natsclient"
	"github.com/quilross/aquil-symbolic-engine-sub003/pkg/timestamp"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// DefaultBucket is the ObjectStore bucket holding overflow detail.
const DefaultBucket = "AQUIL_ARTIFACTS"

// DefaultReadLimit caps a read when the query does not supply one.
const DefaultReadLimit = 100

// Adapter is the blob store adapter.
type Adapter struct {
	client *natsclient.Client
	bucket jetstream.ObjectStore
	logger *slog.Logger
}

// New binds the adapter to an ObjectStore bucket via the shared NATS client.
// A nil or unconnected client yields an unavailable adapter.
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

	b, err := client.EnsureObjectStore(ctx, bucket)
	if err != nil {
		logger.Warn("ObjectStore bucket unavailable", "bucket", bucket, "error", err)
		return a
	}
	a.bucket = b
	return a
}

// Name implements store.Adapter.
func (a *Adapter) Name() string { return store.NameBlob }

// Available implements store.Adapter.
func (a *Adapter) Available() bool {
	return a.bucket != nil && a.client.Connected()
}

// Write implements store.Adapter. The fan-out writer only routes records
// here when their detail exceeds the inline threshold; a record with no
// detail is skipped, not failed. The outcome carries the artifact key so the
// writer can stamp it onto the record before the remaining stores see it.
func (a *Adapter) Write(ctx context.Context, rec record.LogRecord) store.WriteOutcome {
	if !a.Available() {
		return store.Failure(store.NameBlob, "adapter unavailable")
	}
	if len(rec.Detail) == 0 {
		return store.Skip(store.NameBlob, "record has no detail to offload")
	}

	key := artifactKey(rec)
	if _, err := a.bucket.PutBytes(ctx, key, rec.Detail); err != nil {
		return store.Failure(store.NameBlob, err.Error())
	}

	out := store.Success(store.NameBlob)
	out.ArtifactKey = key
	return out
}

// Read implements store.Adapter. The object store has no record metadata
// beyond the key, so it contributes slim records (id + artifact key) that
// the aggregator merges by id. Kind/tag/session filters cannot be applied
// here; when any is set the result is flagged partial.
func (a *Adapter) Read(ctx context.Context, q store.Query) (store.ReadResult, error) {
	if !a.Available() {
		return store.ReadResult{}, natsclient.ErrNotConnected
	}

	infos, err := a.bucket.List(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "no objects found") {
			return store.ReadResult{}, nil
		}
		return store.ReadResult{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var records []record.LogRecord
	for _, info := range infos {
		id := idFromKey(info.Name)
		if id == "" {
			continue
		}
		records = append(records, record.LogRecord{
			ID:          id,
			Timestamp:   timestamp.Format(info.ModTime),
			ArtifactKey: info.Name,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})

	partial := q.Kind != "" || q.Tag != "" || q.SessionID != ""
	if len(records) > limit {
		records = records[:limit]
		partial = true
	}

	return store.ReadResult{Records: records, Partial: partial}, nil
}

// Fetch retrieves the stored detail for an artifact key. The aggregator uses
// it to rehydrate overflow detail on read.
func (a *Adapter) Fetch(ctx context.Context, key string) ([]byte, error) {
	if !a.Available() {
		return nil, natsclient.ErrNotConnected
	}
	data, err := a.bucket.GetBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("blob fetch %s: %w", key, err)
	}
	return data, nil
}

// artifactKey derives a time-bucketed object key: "<yyyy>/<mm>/<dd>/<id>".
// The record id is the final path segment so reads can merge by id.
func artifactKey(rec record.LogRecord) string {
	ts, err := timestamp.Parse(rec.Timestamp)
	if err != nil {
		return "unknown/" + rec.ID
	}
	return fmt.Sprintf("%04d/%02d/%02d/%s", ts.Year(), ts.Month(), ts.Day(), rec.ID)
}

// idFromKey extracts the record id from an object key.
func idFromKey(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}
