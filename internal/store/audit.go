// Package store persists committed change records to SQLite so a
// session's edit history survives restarts and can be inspected after
// the fact.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"sheetnerd/internal/document"
)

// AuditStore is a durable document.Sink backed by SQLite.
type AuditStore struct {
	db    *sql.DB
	log   *zap.Logger
	docID string
}

const schema = `
CREATE TABLE IF NOT EXISTS change_log (
	doc_id    TEXT    NOT NULL,
	seq       INTEGER NOT NULL,
	version   INTEGER NOT NULL,
	op        TEXT    NOT NULL,
	sheet     TEXT    NOT NULL,
	target    TEXT,
	before    TEXT,
	after     TEXT,
	summary   TEXT,
	timestamp TEXT    NOT NULL,
	PRIMARY KEY (doc_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_change_log_version ON change_log(doc_id, version);
`

// Open creates or opens the audit database at path and binds the store
// to one document ID.
func Open(path, docID string, log *zap.Logger) (*AuditStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// sqlite handles one writer; a larger pool just trades errors for
	// lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditStore{db: db, log: log, docID: docID}, nil
}

// Record implements document.Sink.
func (s *AuditStore) Record(rec document.ChangeRecord) error {
	before, err := marshalPayload(rec.Before)
	if err != nil {
		return err
	}
	after, err := marshalPayload(rec.After)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO change_log
			(doc_id, seq, version, op, sheet, target, before, after, summary, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.docID, rec.Seq, rec.Version, rec.Op, rec.Sheet, rec.Target,
		before, after, rec.Summary, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert change record: %w", err)
	}
	return nil
}

// ChangesSince returns stored records for the bound document with
// seq > afterSeq, oldest first.
func (s *AuditStore) ChangesSince(afterSeq uint64) ([]document.ChangeRecord, error) {
	rows, err := s.db.Query(`
		SELECT seq, version, op, sheet, target, before, after, summary, timestamp
		FROM change_log
		WHERE doc_id = ? AND seq > ?
		ORDER BY seq`,
		s.docID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query change log: %w", err)
	}
	defer rows.Close()

	var out []document.ChangeRecord
	for rows.Next() {
		var (
			rec           document.ChangeRecord
			target        sql.NullString
			before, after sql.NullString
			summary       sql.NullString
			ts            string
		)
		if err := rows.Scan(&rec.Seq, &rec.Version, &rec.Op, &rec.Sheet,
			&target, &before, &after, &summary, &ts); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		rec.Target = target.String
		rec.Summary = summary.String
		rec.Before = unmarshalPayload(before)
		rec.After = unmarshalPayload(after)
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = parsed
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored records for the bound document.
func (s *AuditStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM change_log WHERE doc_id = ?`, s.docID,
	).Scan(&n)
	return n, err
}

// Close releases the database handle.
func (s *AuditStore) Close() error { return s.db.Close() }

func marshalPayload(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal payload: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalPayload(s sql.NullString) any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}
