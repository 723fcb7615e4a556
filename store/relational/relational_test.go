package relational

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

func openTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "logs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func testRecord(session string) record.LogRecord {
	return record.LogRecord{
		ID:          uuid.NewString(),
		Timestamp:   "2026-03-14T09:26:53Z",
		OperationID: "log_event",
		Kind:        record.KindInsight,
		Level:       record.LevelInfo,
		Source:      "mirror",
		SessionID:   session,
		Tags:        []string{"trust"},
		Detail:      json.RawMessage(`{"text":"hello"}`),
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	rec := testRecord("s1")
	out := a.Write(ctx, rec)
	require.True(t, out.OK, "write failed: %s", out.ErrorDetail)
	assert.Equal(t, store.NameRelational, out.Store)

	res, err := a.Read(ctx, store.Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	got := res.Records[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Timestamp, got.Timestamp)
	assert.Equal(t, rec.OperationID, got.OperationID)
	assert.Equal(t, rec.Source, got.Source)
	assert.Equal(t, []string{"trust"}, got.Tags)
	assert.JSONEq(t, `{"text":"hello"}`, string(got.Detail))
}

func TestWriteReplacesExistingID(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	rec := testRecord("s1")
	require.True(t, a.Write(ctx, rec).OK)

	rec.Level = record.LevelHighlight
	require.True(t, a.Write(ctx, rec).OK)

	res, err := a.Read(ctx, store.Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, record.LevelHighlight, res.Records[0].Level)
}

func TestReadFilters(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	r1 := testRecord("s1")
	r2 := testRecord("s2")
	r2.Kind = record.KindActionError
	r2.Tags = []string{"failure"}
	require.True(t, a.Write(ctx, r1).OK)
	require.True(t, a.Write(ctx, r2).OK)

	res, err := a.Read(ctx, store.Query{Kind: record.KindActionError})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, r2.ID, res.Records[0].ID)

	res, err = a.Read(ctx, store.Query{Tag: "trust"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, r1.ID, res.Records[0].ID)

	res, err = a.Read(ctx, store.Query{SessionID: "missing"})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestReadOrderingAndLimit(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := testRecord("s1")
		rec.Timestamp = fmt.Sprintf("2026-03-14T09:00:0%dZ", i)
		require.True(t, a.Write(ctx, rec).OK)
	}

	res, err := a.Read(ctx, store.Query{Limit: 3})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.True(t, res.Partial)
	assert.Equal(t, "2026-03-14T09:00:04Z", res.Records[0].Timestamp)
}

func TestUnavailableAdapter(t *testing.T) {
	a := Unavailable()

	assert.False(t, a.Available())

	out := a.Write(context.Background(), testRecord("s1"))
	assert.False(t, out.OK)
	assert.Contains(t, out.ErrorDetail, "unavailable")

	_, err := a.Read(context.Background(), store.Query{})
	assert.Error(t, err)
}

func TestNullDetail(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	rec := testRecord("s1")
	rec.Detail = nil
	require.True(t, a.Write(ctx, rec).OK)

	res, err := a.Read(ctx, store.Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Records[0].Detail)
}
