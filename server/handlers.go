package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/quilross/aquil-symbolic-engine-sub003/aggregate"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
)

// handleWriteLog is POST /api/log. The response is always 200 with the
// fail-open result shape; only a wrong method breaks that contract.
func (s *Server) handleWriteLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		writeJSON(w, WriteResult{
			Success:       false,
			Stores:        []string{},
			MissingStores: []string{},
			Reason:        "rate limited",
		})
		return
	}

	var req record.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, WriteResult{
			Success:       false,
			Stores:        []string{},
			MissingStores: []string{},
			Reason:        "malformed request body: " + err.Error(),
		})
		return
	}

	writeJSON(w, s.pipeline.Write(r.Context(), req))
}

// handleLogsLegacy is GET /api/logs: the flat event view for callers that
// have not migrated to the canonical schema.
func (s *Server) handleLogsLegacy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := readParams(r)
	res := s.pipeline.Read(r.Context(), params)

	logs := make([]record.LegacyRecord, 0, len(res.Records))
	for _, rec := range filterWho(res.Records, r.URL.Query().Get("who")) {
		logs = append(logs, rec.ToLegacy())
	}

	writeJSON(w, map[string]any{
		"logs": logs,
		"meta": res.Meta,
	})
}

// handleLogsCanonical is GET /api/logs/canonical: the merged view with
// per-record retrieval status, plus the per-store breakdown.
func (s *Server) handleLogsCanonical(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := readParams(r)
	params.Text = r.URL.Query().Get("q")
	params.Rehydrate = r.URL.Query().Get("rehydrate") == "true"

	res := s.pipeline.Read(r.Context(), params)
	records := filterWho(res.Records, r.URL.Query().Get("who"))

	byStore := make(map[string][]aggregate.MergedRecord)
	for _, rec := range records {
		for _, name := range rec.FoundIn {
			byStore[name] = append(byStore[name], rec)
		}
	}

	writeJSON(w, map[string]any{
		"records": records,
		"results": byStore,
		"retrieval_summary": map[string]any{
			"retrieval_status": res.RetrievalStatus,
			"summary":          res.Summary,
			"store_status":     res.StoreStatus,
			"meta":             res.Meta,
		},
	})
}

// handleOperations is GET /api/operations: the registry audit view.
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reg := s.pipeline.Registry()
	writeJSON(w, map[string]any{
		"canonical": reg.AllCanonical(),
		"aliases":   reg.AllAliases(),
	})
}

// handleHealthz is GET /healthz. Always 200: the body distinguishes ok from
// degraded.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Check())
}

func readParams(r *http.Request) aggregate.Params {
	q := r.URL.Query()
	p := aggregate.Params{
		Kind:      q.Get("type"),
		Tag:       q.Get("tag"),
		SessionID: q.Get("session_id"),
		Sources:   readSources(q.Get("source")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	return p
}

// readSources parses the source parameter: a comma-separated list of store
// names selecting which adapters the read consults. Empty or "all" consults
// every configured store.
func readSources(raw string) []string {
	if raw == "" || raw == "all" {
		return nil
	}
	var sources []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" && s != "all" {
			sources = append(sources, s)
		}
	}
	return sources
}

// filterWho narrows merged records to one writer (the record's source field).
func filterWho(records []aggregate.MergedRecord, who string) []aggregate.MergedRecord {
	if who == "" {
		return records
	}
	out := make([]aggregate.MergedRecord, 0, len(records))
	for _, rec := range records {
		if rec.Source == who {
			out = append(out, rec)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
