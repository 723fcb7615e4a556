package fanout

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// scriptedAdapter covers behaviors the shared in-memory fake does not model:
// artifact keys, panics, and call observation.
type scriptedAdapter struct {
	name      string
	available bool
	panics    bool
	outcome   store.WriteOutcome
	calls     int
	lastRec   record.LogRecord
}

func (s *scriptedAdapter) Name() string    { return s.name }
func (s *scriptedAdapter) Available() bool { return s.available }

func (s *scriptedAdapter) Write(_ context.Context, rec record.LogRecord) store.WriteOutcome {
	s.calls++
	s.lastRec = rec
	if s.panics {
		panic("scripted panic")
	}
	return s.outcome
}

func (s *scriptedAdapter) Read(context.Context, store.Query) (store.ReadResult, error) {
	return store.ReadResult{}, nil
}

func testRecord(detail string) record.LogRecord {
	return record.LogRecord{
		ID:          "rec-1",
		Timestamp:   "2026-03-14T09:00:00Z",
		OperationID: "log_event",
		Kind:        record.KindActionSuccess,
		Detail:      json.RawMessage(detail),
	}
}

func TestWriteRecord_AllStoresSucceed(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	rel := store.NewMemory(store.NameRelational)
	w := New([]store.Adapter{kv, rel})

	res := w.WriteRecord(context.Background(), testRecord(`{"text":"hi"}`))

	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV, store.NameRelational}, res.Stores)
	assert.Empty(t, res.MissingStores)
	assert.ElementsMatch(t, []string{store.NameKV, store.NameRelational}, res.Record.Stores)
}

func TestWriteRecord_OneStoreDownIsStillSuccess(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	rel := store.NewMemory(store.NameRelational)
	rel.FailWrites(true)
	w := New([]store.Adapter{kv, rel})

	res := w.WriteRecord(context.Background(), testRecord(`{}`))

	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV}, res.Stores)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "simulated write failure", res.Outcomes[1].ErrorDetail)
}

func TestWriteRecord_AllStoresFail(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	kv.FailWrites(true)
	rel := store.NewMemory(store.NameRelational)
	rel.FailWrites(true)
	w := New([]store.Adapter{kv, rel})

	res := w.WriteRecord(context.Background(), testRecord(`{}`))

	assert.False(t, res.Success)
	assert.Empty(t, res.Stores)
}

func TestWriteRecord_ZeroAdaptersConfigured(t *testing.T) {
	w := New(nil)

	res := w.WriteRecord(context.Background(), testRecord(`{}`))

	assert.True(t, res.Success, "nothing configured means nothing to fail")
	assert.Empty(t, res.Stores)
	assert.Empty(t, res.MissingStores)
}

func TestWriteRecord_UnavailableAdapterIsMissingNotFailed(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	rel := store.NewMemory(store.NameRelational)
	rel.SetAvailable(false)
	w := New([]store.Adapter{kv, rel})

	res := w.WriteRecord(context.Background(), testRecord(`{}`))

	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV}, res.Stores)
	assert.Equal(t, []string{store.NameRelational}, res.MissingStores)
	require.Len(t, res.Outcomes, 1, "unavailable adapters are not dispatched")
}

func TestWriteRecord_PanicBecomesFailedOutcome(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	bad := &scriptedAdapter{name: store.NameRelational, available: true, panics: true}
	w := New([]store.Adapter{kv, bad})

	res := w.WriteRecord(context.Background(), testRecord(`{}`))

	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV}, res.Stores)
	require.Len(t, res.Outcomes, 2)
	assert.False(t, res.Outcomes[1].OK)
	assert.Contains(t, res.Outcomes[1].ErrorDetail, "panic")
}

func TestWriteRecord_SlowAdapterTimesOutAlone(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	slow := store.NewMemory(store.NameRelational)
	block := make(chan struct{})
	slow.BlockUntil(block)
	defer close(block)

	w := New([]store.Adapter{kv, slow}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	res := w.WriteRecord(context.Background(), testRecord(`{}`))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV}, res.Stores)
	require.Len(t, res.Outcomes, 2)
	assert.Contains(t, res.Outcomes[1].ErrorDetail, "timeout")
}

func TestWriteRecord_SkipOnlyIsSuccess(t *testing.T) {
	skip := &scriptedAdapter{
		name:      store.NameVector,
		available: true,
		outcome:   store.Skip(store.NameVector, "record has no embedding-bearing field"),
	}
	w := New([]store.Adapter{skip})

	res := w.WriteRecord(context.Background(), testRecord(`{"count":1}`))

	assert.True(t, res.Success, "declining a record is not a malfunction")
	assert.Empty(t, res.Stores)
	require.Len(t, res.Outcomes, 1)
	assert.True(t, res.Outcomes[0].Skipped)
}

func TestWriteRecord_BlobOnlySubThresholdIsSuccess(t *testing.T) {
	blob := &scriptedAdapter{name: store.NameBlob, available: true}
	w := New([]store.Adapter{blob}, WithInlineThreshold(1024))

	res := w.WriteRecord(context.Background(), testRecord(`{"text":"small"}`))

	assert.True(t, res.Success)
	assert.Empty(t, res.Stores)
	assert.Empty(t, res.MissingStores)
	require.Len(t, res.Outcomes, 1)
	assert.True(t, res.Outcomes[0].Skipped)
}

func TestWriteRecord_SkipPlusFailureIsNotSuccess(t *testing.T) {
	skip := &scriptedAdapter{
		name:      store.NameVector,
		available: true,
		outcome:   store.Skip(store.NameVector, "record has no embedding-bearing field"),
	}
	kv := store.NewMemory(store.NameKV)
	kv.FailWrites(true)
	w := New([]store.Adapter{skip, kv})

	res := w.WriteRecord(context.Background(), testRecord(`{"count":1}`))

	assert.False(t, res.Success, "a real failure alongside a skip is still a failure")
	assert.Empty(t, res.Stores)
}

func TestWriteRecord_SkipPlusMissingStoreIsNotSuccess(t *testing.T) {
	skip := &scriptedAdapter{
		name:      store.NameVector,
		available: true,
		outcome:   store.Skip(store.NameVector, "record has no embedding-bearing field"),
	}
	rel := store.NewMemory(store.NameRelational)
	rel.SetAvailable(false)
	w := New([]store.Adapter{skip, rel})

	res := w.WriteRecord(context.Background(), testRecord(`{"count":1}`))

	assert.False(t, res.Success, "the record was persisted nowhere while a store was down")
	assert.Equal(t, []string{store.NameRelational}, res.MissingStores)
}

func TestWriteRecord_BlobOffloadAboveThreshold(t *testing.T) {
	big := `{"text":"` + strings.Repeat("x", 200) + `"}`
	blob := &scriptedAdapter{
		name:      store.NameBlob,
		available: true,
		outcome: store.WriteOutcome{
			OK:          true,
			Store:       store.NameBlob,
			ArtifactKey: "2026/03/14/rec-1",
		},
	}
	kv := store.NewMemory(store.NameKV)
	w := New([]store.Adapter{blob, kv}, WithInlineThreshold(100))

	res := w.WriteRecord(context.Background(), testRecord(big))

	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameBlob, store.NameKV}, res.Stores)
	assert.Equal(t, "2026/03/14/rec-1", res.Record.ArtifactKey)

	// Blob saw the full detail
	assert.Equal(t, big, string(blob.lastRec.Detail))

	// The other stores saw the preview stub
	var stub map[string]any
	require.NoError(t, json.Unmarshal(res.Record.Detail, &stub))
	assert.Equal(t, "2026/03/14/rec-1", stub["artifact_key"])
	assert.Equal(t, true, stub["truncated"])
	assert.LessOrEqual(t, len(res.Record.Detail), 100+previewBytes)
}

func TestWriteRecord_BlobSkippedBelowThreshold(t *testing.T) {
	blob := &scriptedAdapter{name: store.NameBlob, available: true}
	kv := store.NewMemory(store.NameKV)
	w := New([]store.Adapter{blob, kv}, WithInlineThreshold(1024))

	res := w.WriteRecord(context.Background(), testRecord(`{"text":"small"}`))

	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV}, res.Stores)
	assert.Zero(t, blob.calls, "blob is only invoked for overflow detail")
	assert.Empty(t, res.Record.ArtifactKey)

	require.Len(t, res.Outcomes, 2)
	assert.True(t, res.Outcomes[0].Skipped)
	assert.Equal(t, store.NameBlob, res.Outcomes[0].Store)
}

func TestWriteRecord_BlobFailureKeepsDetailInline(t *testing.T) {
	big := `{"text":"` + strings.Repeat("y", 200) + `"}`
	blob := &scriptedAdapter{
		name:      store.NameBlob,
		available: true,
		outcome:   store.Failure(store.NameBlob, "object store unreachable"),
	}
	kv := store.NewMemory(store.NameKV)
	w := New([]store.Adapter{blob, kv}, WithInlineThreshold(100))

	res := w.WriteRecord(context.Background(), testRecord(big))

	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV}, res.Stores)
	assert.Empty(t, res.Record.ArtifactKey)
	assert.Equal(t, big, string(res.Record.Detail), "failed offload must not lose the payload")
}
