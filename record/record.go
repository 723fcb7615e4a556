// Package record defines the canonical log record persisted by the pipeline,
// the external write-request shape, and the legacy flat view kept for callers
// that have not migrated to the canonical schema.
package record

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/quilross/aquil-symbolic-engine-sub003/pkg/timestamp"
)

// Severity levels for log records.
const (
	LevelInfo      = "info"
	LevelWarning   = "warning"
	LevelError     = "error"
	LevelHighlight = "highlight"
)

// Event kinds used by the agent call sites. The validator enumeration is
// configuration-driven; these constants cover the built-in call sites.
const (
	KindActionSuccess = "action-success"
	KindActionError   = "action-error"
	KindSessionEvent  = "session-event"
	KindSystemEvent   = "system-event"
	KindInsight       = "insight"
)

// LogRecord is the canonical persisted unit.
//
// Invariants: ID is assigned exactly once (by the caller or by the pipeline
// when absent) and is immutable afterwards; Stores is only ever appended to,
// never rewritten; Detail is already redacted and size-bounded by the time a
// record reaches a store adapter.
type LogRecord struct {
	ID                  string          `json:"id"`
	Timestamp           string          `json:"timestamp"`
	OperationID         string          `json:"operation_id"`
	OriginalOperationID string          `json:"original_operation_id,omitempty"`
	Kind                string          `json:"kind"`
	Level               string          `json:"level"`
	Source              string          `json:"source,omitempty"`
	SessionID           string          `json:"session_id,omitempty"`
	Tags                []string        `json:"tags,omitempty"`
	Stores              []string        `json:"stores,omitempty"`
	TraceID             string          `json:"trace_id,omitempty"`
	Detail              json.RawMessage `json:"detail,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	ErrorCode           string          `json:"error_code,omitempty"`
	ArtifactKey         string          `json:"artifact_key,omitempty"`

	// Idx1/Idx2 are free-form index hints supplied by the caller; the vector
	// adapter folds them into the embedded text.
	Idx1 string `json:"idx1,omitempty"`
	Idx2 string `json:"idx2,omitempty"`
}

// WriteRequest is the record-shaped payload accepted by the write endpoint.
// Payload arrives pre-redaction; Type maps to Kind and Who maps to Source.
// Operation is the caller-supplied operation identifier, canonicalized by the
// pipeline before the record is assembled.
type WriteRequest struct {
	Type      string   `json:"type"`
	Operation string   `json:"operation,omitempty"`
	Payload   any      `json:"payload,omitempty"`
	Who       string   `json:"who,omitempty"`
	Level     string   `json:"level,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Idx1      string   `json:"idx1,omitempty"`
	Idx2      string   `json:"idx2,omitempty"`
	TraceID   string   `json:"trace_id,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
}

// NewFromRequest builds a canonical record from a write request. The redacted
// detail is supplied separately since redaction happens before record
// assembly. ID and timestamp are assigned here when the caller did not
// provide them; a trace id is never fabricated.
func NewFromRequest(req WriteRequest, redactedDetail json.RawMessage) LogRecord {
	rec := LogRecord{
		ID:        uuid.NewString(),
		Timestamp: timestamp.Now(),
		Kind:      req.Type,
		Level:     req.Level,
		Source:    req.Who,
		SessionID: req.SessionID,
		Tags:      req.Tags,
		TraceID:   req.TraceID,
		Detail:    redactedDetail,
		ErrorCode: req.ErrorCode,
		Idx1:      req.Idx1,
		Idx2:      req.Idx2,
	}
	if rec.Level == "" {
		rec.Level = LevelInfo
	}
	return rec
}

// AppendStore records that a store accepted this record. Append-only: a store
// name already present is not duplicated and existing entries are never
// removed.
func (r *LogRecord) AppendStore(name string) {
	for _, s := range r.Stores {
		if s == name {
			return
		}
	}
	r.Stores = append(r.Stores, name)
}

// Stored reports whether at least one store accepted this record.
func (r *LogRecord) Stored() bool {
	return len(r.Stores) > 0
}

// EncodeTags serializes the tag list as a JSON string for backends with a
// flat column schema. An empty tag list encodes as "[]".
func EncodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeTags parses a string-encoded tag list. Unparseable input yields an
// empty list rather than an error; the read path is fail-open.
func DecodeTags(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		return nil
	}
	return tags
}

// LegacyRecord is the flat event shape consumed by callers that have not
// migrated to the canonical schema.
type LegacyRecord struct {
	ID        string          `json:"id"`
	TS        string          `json:"ts"`
	Type      string          `json:"type"`
	Who       string          `json:"who,omitempty"`
	Level     string          `json:"level,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ToLegacy synthesizes the legacy flat shape from a canonical record via the
// fixed field mapping: ts:=timestamp, type:=kind, who:=source, payload:=detail.
func (r LogRecord) ToLegacy() LegacyRecord {
	return LegacyRecord{
		ID:        r.ID,
		TS:        r.Timestamp,
		Type:      r.Kind,
		Who:       r.Source,
		Level:     r.Level,
		SessionID: r.SessionID,
		Tags:      r.Tags,
		Payload:   r.Detail,
	}
}
