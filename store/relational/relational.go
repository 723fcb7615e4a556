// Package relational implements the relational store adapter over SQLite.
// It is the canonical-schema store: the retrieval aggregator prefers its
// version of a record when the same id is found in several stores.
package relational

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

//go:embed schema.sql
var schemaSQL string

// DefaultReadLimit caps a read when the query does not supply one.
const DefaultReadLimit = 100

// Adapter is the relational store adapter. A zero Adapter (nil db) reports
// itself unavailable.
type Adapter struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and applies the
// schema. Pragmas follow the usual write-heavy SQLite setup.
func Open(path string, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Adapter{db: db, logger: logger}, nil
}

// Unavailable returns an adapter representing an unbound relational store.
func Unavailable() *Adapter {
	return &Adapter{logger: slog.Default()}
}

// Name implements store.Adapter.
func (a *Adapter) Name() string { return store.NameRelational }

// Available implements store.Adapter.
func (a *Adapter) Available() bool { return a.db != nil }

// Close releases the database handle.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Write implements store.Adapter, mapping the record onto the fixed column
// set. Rewrites of an existing id replace the row: the id is immutable and
// the latest version wins.
func (a *Adapter) Write(ctx context.Context, rec record.LogRecord) store.WriteOutcome {
	if !a.Available() {
		return store.Failure(store.NameRelational, "adapter unavailable")
	}

	storesJSON, err := json.Marshal(rec.Stores)
	if err != nil {
		storesJSON = []byte("[]")
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO log_records (
			id, ts, operation_id, original_operation_id, kind, level,
			source, session_id, tags, stores, trace_id, detail,
			error_message, error_code, artifact_key, idx1, idx2
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.OperationID, rec.OriginalOperationID,
		rec.Kind, rec.Level, rec.Source, rec.SessionID,
		record.EncodeTags(rec.Tags), string(storesJSON), rec.TraceID,
		nullableDetail(rec.Detail), rec.ErrorMessage, rec.ErrorCode,
		rec.ArtifactKey, rec.Idx1, rec.Idx2,
	)
	if err != nil {
		return store.Failure(store.NameRelational, err.Error())
	}

	return store.Success(store.NameRelational)
}

// Read implements store.Adapter. Filters push down to SQL where the column
// set allows; the tag filter matches against the string-encoded tag list.
func (a *Adapter) Read(ctx context.Context, q store.Query) (store.ReadResult, error) {
	if !a.Available() {
		return store.ReadResult{}, fmt.Errorf("relational adapter unavailable")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var clauses []string
	var args []any
	if q.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, q.Kind)
	}
	if q.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Tag != "" {
		// Tags are a JSON-encoded string column; match the quoted element.
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, `%"`+q.Tag+`"%`)
	}

	query := `SELECT id, ts, operation_id, original_operation_id, kind, level,
		source, session_id, tags, stores, trace_id, detail,
		error_message, error_code, artifact_key, idx1, idx2
		FROM log_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	// Fetch one extra row to detect truncation.
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.ReadResult{}, err
	}
	defer rows.Close()

	var records []record.LogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			a.logger.Warn("skipping unscannable row", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return store.ReadResult{}, err
	}

	partial := false
	if len(records) > limit {
		records = records[:limit]
		partial = true
	}

	return store.ReadResult{Records: records, Partial: partial}, nil
}

func scanRecord(rows *sql.Rows) (record.LogRecord, error) {
	var rec record.LogRecord
	var tags, stores string
	var detail sql.NullString

	err := rows.Scan(
		&rec.ID, &rec.Timestamp, &rec.OperationID, &rec.OriginalOperationID,
		&rec.Kind, &rec.Level, &rec.Source, &rec.SessionID,
		&tags, &stores, &rec.TraceID, &detail,
		&rec.ErrorMessage, &rec.ErrorCode, &rec.ArtifactKey,
		&rec.Idx1, &rec.Idx2,
	)
	if err != nil {
		return record.LogRecord{}, err
	}

	rec.Tags = record.DecodeTags(tags)
	rec.Stores = record.DecodeTags(stores)
	if detail.Valid && detail.String != "" {
		rec.Detail = json.RawMessage(detail.String)
	}
	return rec, nil
}

func nullableDetail(detail json.RawMessage) any {
	if len(detail) == 0 {
		return nil
	}
	return string(detail)
}
