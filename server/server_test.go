package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilross/aquil-symbolic-engine-sub003/aggregate"
	"github.com/quilross/aquil-symbolic-engine-sub003/fanout"
	"github.com/quilross/aquil-symbolic-engine-sub003/health"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/redact"
	"github.com/quilross/aquil-symbolic-engine-sub003/registry"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
	"github.com/quilross/aquil-symbolic-engine-sub003/validate"
)

type testEnv struct {
	server *Server
	kv     *store.Memory
	rel    *store.Memory
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	reg, err := registry.New(nil, nil)
	require.NoError(t, err)

	kv := store.NewMemory(store.NameKV)
	rel := store.NewMemory(store.NameRelational)
	adapters := []store.Adapter{kv, rel}

	pipeline := NewPipeline(
		reg,
		redact.MustDefault(),
		validate.New(validate.DefaultConfig()),
		fanout.New(adapters),
		aggregate.New(adapters, aggregate.NewMetaTracker()),
	)

	return &testEnv{
		server: New(pipeline, health.New(adapters, "test"), opts...),
		kv:     kv,
		rel:    rel,
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	e.server.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeWrite(t *testing.T, rr *httptest.ResponseRecorder) WriteResult {
	t.Helper()
	var res WriteResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func TestWriteLog_Success(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/log",
		`{"type":"action-success","payload":{"text":"did the thing"},"who":"agent","session_id":"s1"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	res := decodeWrite(t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV, store.NameRelational}, res.Stores)
	assert.Empty(t, res.MissingStores)
	assert.NotEmpty(t, res.RecordID)
	assert.Equal(t, 1, env.kv.Len())
	assert.Equal(t, 1, env.rel.Len())
}

func TestWriteLog_RedactsBeforePersisting(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/log",
		`{"type":"action-success","payload":{"password":"hunter2","note":"keep"}}`)
	require.True(t, decodeWrite(t, rr).Success)

	rr = env.do(t, http.MethodGet, "/api/logs/canonical", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.NotContains(t, body, "hunter2")
	assert.Contains(t, body, redact.PlaceholderString)
	assert.Contains(t, body, "keep")
}

func TestWriteLog_ValidationRejection(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/log", `{"type":"not-a-kind"}`)

	require.Equal(t, http.StatusOK, rr.Code, "rejection is result data, not a transport error")
	res := decodeWrite(t, rr)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "kind")
	assert.Zero(t, env.kv.Len())
}

func TestWriteLog_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/log", `{"type":`)

	require.Equal(t, http.StatusOK, rr.Code)
	res := decodeWrite(t, rr)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "malformed")
}

func TestWriteLog_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/log", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestWriteLog_RateLimited(t *testing.T) {
	env := newTestEnv(t, WithWriteRateLimit(1, 1))

	first := decodeWrite(t, env.do(t, http.MethodPost, "/api/log", `{"type":"action-success"}`))
	assert.True(t, first.Success)

	second := decodeWrite(t, env.do(t, http.MethodPost, "/api/log", `{"type":"action-success"}`))
	assert.False(t, second.Success)
	assert.Equal(t, "rate limited", second.Reason)
}

func TestWriteLog_OperationCanonicalized(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/log",
		`{"type":"action-success","operation":"autoLog"}`)
	require.True(t, decodeWrite(t, rr).Success)

	rr = env.do(t, http.MethodGet, "/api/logs/canonical", "")
	var out struct {
		Records []aggregate.MergedRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Records, 1)
	assert.Equal(t, "log_event", out.Records[0].OperationID)
	assert.Equal(t, "autoLog", out.Records[0].OriginalOperationID)
}

func TestWriteLog_FailOpenWhenOneStoreDown(t *testing.T) {
	env := newTestEnv(t)
	env.rel.SetAvailable(false)

	rr := env.do(t, http.MethodPost, "/api/log", `{"type":"action-success"}`)

	res := decodeWrite(t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, []string{store.NameKV}, res.Stores)
	assert.Equal(t, []string{store.NameRelational}, res.MissingStores)
}

func TestLogsLegacy_FieldMapping(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/log",
		`{"type":"session-event","payload":{"text":"hello"},"who":"agent","session_id":"s1","tags":["trust"]}`)

	rr := env.do(t, http.MethodGet, "/api/logs?session_id=s1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Logs []record.LegacyRecord `json:"logs"`
		Meta aggregate.Meta        `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Logs, 1)
	assert.Equal(t, "session-event", out.Logs[0].Type)
	assert.Equal(t, "agent", out.Logs[0].Who)
	assert.NotEmpty(t, out.Logs[0].TS)
	assert.JSONEq(t, `{"text":"hello"}`, string(out.Logs[0].Payload))
	assert.Equal(t, int64(1), out.Meta.RetrievalCount)
}

func TestLogsLegacy_FilterByType(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/log", `{"type":"insight"}`)
	env.do(t, http.MethodPost, "/api/log", `{"type":"session-event"}`)

	rr := env.do(t, http.MethodGet, "/api/logs?type=insight", "")
	var out struct {
		Logs []record.LegacyRecord `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Logs, 1)
	assert.Equal(t, "insight", out.Logs[0].Type)
}

func TestLogsCanonical_Shape(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/log", `{"type":"action-success"}`)

	rr := env.do(t, http.MethodGet, "/api/logs/canonical", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Records []aggregate.MergedRecord            `json:"records"`
		Results map[string][]aggregate.MergedRecord `json:"results"`
		Summary struct {
			RetrievalStatus string            `json:"retrieval_status"`
			StoreStatus     map[string]string `json:"store_status"`
		} `json:"retrieval_summary"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Records, 1)
	assert.Equal(t, aggregate.StatusComplete, out.Records[0].RetrievalStatus)
	assert.Len(t, out.Results[store.NameKV], 1)
	assert.Len(t, out.Results[store.NameRelational], 1)
	assert.Equal(t, aggregate.StatusComplete, out.Summary.RetrievalStatus)
	assert.Equal(t, "ok", out.Summary.StoreStatus[store.NameKV])
}

func TestLogsCanonical_SourceSelectsStoreSubset(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/log", `{"type":"action-success"}`)

	rr := env.do(t, http.MethodGet, "/api/logs/canonical?source=kv", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Records []aggregate.MergedRecord `json:"records"`
		Summary struct {
			StoreStatus map[string]string `json:"store_status"`
		} `json:"retrieval_summary"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Records, 1, "source names the stores to consult, not a record filter")
	assert.Equal(t, []string{store.NameKV}, out.Records[0].FoundIn)
	assert.Contains(t, out.Summary.StoreStatus, store.NameKV)
	assert.NotContains(t, out.Summary.StoreStatus, store.NameRelational)
}

func TestLogsLegacy_SourceAllIsDefault(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/log", `{"type":"action-success"}`)

	rr := env.do(t, http.MethodGet, "/api/logs?source=all", "")
	var out struct {
		Logs []record.LegacyRecord `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Len(t, out.Logs, 1)
}

func TestLogsLegacy_WhoFiltersByWriter(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/log", `{"type":"action-success","who":"agent"}`)
	env.do(t, http.MethodPost, "/api/log", `{"type":"action-success","who":"scheduler"}`)

	rr := env.do(t, http.MethodGet, "/api/logs?who=agent", "")
	var out struct {
		Logs []record.LegacyRecord `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Logs, 1)
	assert.Equal(t, "agent", out.Logs[0].Who)
}

func TestOperations_Audit(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/operations", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Canonical []string          `json:"canonical"`
		Aliases   map[string]string `json:"aliases"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Contains(t, out.Canonical, "log_event")
	assert.Equal(t, "log_event", out.Aliases["autoLog"])
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var status health.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, health.StatusOK, status.Status)

	env.rel.SetAvailable(false)
	rr = env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code, "degradation never turns into a non-200")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, health.StatusDegraded, status.Status)
}
