package natsclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/quilross/aquil-symbolic-engine-sub003/pkg/retry"
)

// Well-known KV errors
var (
	ErrKVKeyNotFound = errors.New("kv: key not found")
)

// KVOptions configures KV operation behavior.
type KVOptions struct {
	Timeout    time.Duration // Per-operation timeout
	MaxRetries int           // Retry attempts for transient put failures
	RetryDelay time.Duration // Initial delay between retries
}

// DefaultKVOptions returns sensible defaults for the logging workload.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: 25 * time.Millisecond,
	}
}

// KVStore provides high-level operations over a JetStream KV bucket.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
}

// NewKVStore wraps a KV bucket with the given options.
func NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value by key.
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if isKVNotFound(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

// Put creates or updates a key (last writer wins), retrying transient
// failures with backoff.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	cfg := retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	return retry.Do(ctx, cfg, func() error {
		_, err := kv.bucket.Put(ctx, key, value)
		return err
	})
}

// Delete removes a key.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	err := kv.bucket.Delete(ctx, key)
	if err != nil && isKVNotFound(err) {
		return ErrKVKeyNotFound
	}
	return err
}

// Keys lists all keys in the bucket. An empty bucket yields an empty list,
// not an error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	lister, err := kv.bucket.ListKeys(ctx)
	if err != nil {
		if isKVNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// isKVNotFound checks for the not-found condition across the jetstream
// error variants and raw server codes.
func isKVNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrNoKeysFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}
