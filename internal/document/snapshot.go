package document

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is the read representation: a column-oriented projection of
// the active sheet's values. It is rebuilt from the write model on the
// first read after a mutation and shared by reference afterwards, so
// callers must treat it as immutable.
type Snapshot struct {
	// Sheet is the active sheet name at build time.
	Sheet string

	// Version is the document version the snapshot was built from.
	Version uint64

	// Headers holds the first-row display strings, one per column.
	// Empty header cells get positional names ("Column C").
	Headers []string

	// Columns holds the data values (rows 2..n) per column, in header
	// order. Formula cells contribute their cached values.
	Columns [][]any

	// Rows and Cols are the grid dimensions including the header row.
	Rows int
	Cols int
}

// buildSnapshot projects the sheet into columns. Header detection is
// positional: row 1 is always the header row, matching how the rest of
// the toolset addresses data ("the sales column" means its header).
func buildSnapshot(s *Sheet, version uint64) *Snapshot {
	snap := &Snapshot{
		Sheet:   s.Name,
		Version: version,
		Rows:    s.Rows(),
		Cols:    s.Cols(),
	}
	if snap.Cols == 0 {
		return snap
	}
	snap.Headers = make([]string, snap.Cols)
	snap.Columns = make([][]any, snap.Cols)
	for c := 0; c < snap.Cols; c++ {
		header := ""
		if snap.Rows > 0 {
			header = DisplayString(s.Cells[0][c].Value)
		}
		if strings.TrimSpace(header) == "" {
			header = "Column " + ColumnLetter(c+1)
		}
		snap.Headers[c] = header
		col := make([]any, 0, maxInt(snap.Rows-1, 0))
		for r := 1; r < snap.Rows; r++ {
			col = append(col, s.Cells[r][c].Value)
		}
		snap.Columns[c] = col
	}
	return snap
}

// Column returns the data values under the named header. Matching is
// case-insensitive; column letters ("B") are accepted as a fallback.
func (s *Snapshot) Column(name string) ([]any, bool) {
	for i, h := range s.Headers {
		if strings.EqualFold(h, name) {
			return s.Columns[i], true
		}
	}
	if idx, err := ColumnIndex(name); err == nil && idx >= 1 && idx <= len(s.Columns) {
		return s.Columns[idx-1], true
	}
	return nil, false
}

// Row reassembles one data row (1-based, excluding the header) from the
// column projection.
func (s *Snapshot) Row(n int) ([]any, bool) {
	if n < 1 || n > s.Rows-1 {
		return nil, false
	}
	row := make([]any, len(s.Columns))
	for i, col := range s.Columns {
		if n-1 < len(col) {
			row[i] = col[n-1]
		}
	}
	return row, true
}

// DisplayString renders a cell value the way it would appear in the
// grid. Floats drop a trailing ".000000"; nil renders empty.
func DisplayString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", x)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
