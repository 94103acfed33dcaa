package document

import (
	"time"
)

// Operation kinds recorded in the change log.
const (
	OpWriteCell    = "write_cell"
	OpWriteRange   = "write_range"
	OpWriteFormula = "write_formula"
	OpInsertRows   = "insert_rows"
	OpDeleteRows   = "delete_rows"
	OpInsertCols   = "insert_cols"
	OpDeleteCols   = "delete_cols"
	OpSetStyle     = "set_style"
	OpMergeCells   = "merge_cells"
	OpUnmergeCells = "unmerge_cells"
	OpSetDimension = "set_dimension"
	OpCreateSheet  = "create_sheet"
	OpDeleteSheet  = "delete_sheet"
	OpRenameSheet  = "rename_sheet"
	OpLoad         = "load"
	OpSave         = "save"
	OpTxCommit     = "tx_commit"
	OpTxRollback   = "tx_rollback"
)

// ChangeRecord is one entry of the append-only change log. Seq is
// assigned by the log and strictly increases; Version is the document
// version after the recorded mutation committed.
type ChangeRecord struct {
	Seq       uint64    `json:"seq"`
	Version   uint64    `json:"version"`
	Op        string    `json:"op"`
	Sheet     string    `json:"sheet"`
	Target    string    `json:"target,omitempty"`
	Before    any       `json:"before,omitempty"`
	After     any       `json:"after,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives committed change records, e.g. for durable audit
// storage. Sink errors are reported to the caller's logger and never
// fail the originating operation.
type Sink interface {
	Record(rec ChangeRecord) error
}

// ChangeLog is the in-memory append-only history of committed
// mutations. Records are never modified or removed once appended.
type ChangeLog struct {
	records []ChangeRecord
	nextSeq uint64

	// payloadLimit caps how many cells a before/after region payload may
	// carry; larger regions degrade to a summary-only record.
	payloadLimit int
}

// NewChangeLog creates a log whose region payloads are capped at
// payloadLimit cells (0 means no payloads at all).
func NewChangeLog(payloadLimit int) *ChangeLog {
	return &ChangeLog{nextSeq: 1, payloadLimit: payloadLimit}
}

// append assigns the next sequence number, stamps the record and stores
// it. Returns the stored record.
func (l *ChangeLog) append(rec ChangeRecord) ChangeRecord {
	rec.Seq = l.nextSeq
	l.nextSeq++
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	l.records = append(l.records, rec)
	return rec
}

// Since returns all records with Seq > afterSeq, oldest first. The
// returned slice shares backing storage with the log; callers must not
// mutate it.
func (l *ChangeLog) Since(afterSeq uint64) []ChangeRecord {
	// Seq is dense starting at 1, so the offset is direct.
	if afterSeq >= uint64(len(l.records)) {
		return nil
	}
	return l.records[afterSeq:]
}

// Len returns the number of recorded changes.
func (l *ChangeLog) Len() int { return len(l.records) }

// regionPayload captures the values of a region for a change record,
// or degrades to nil when the region exceeds the payload cap.
func (l *ChangeLog) regionPayload(s *Sheet, r Range) any {
	if l.payloadLimit <= 0 || r.Cells() > l.payloadLimit {
		return nil
	}
	rows := make([][]any, 0, r.End.Row-r.Start.Row+1)
	for row := r.Start.Row; row <= r.End.Row; row++ {
		vals := make([]any, 0, r.End.Col-r.Start.Col+1)
		for col := r.Start.Col; col <= r.End.Col; col++ {
			vals = append(vals, s.at(Ref{Row: row, Col: col}).Value)
		}
		rows = append(rows, vals)
	}
	return rows
}
