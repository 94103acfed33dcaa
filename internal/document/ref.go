package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Ref is a 1-based (row, column) cell address.
type Ref struct {
	Row int
	Col int
}

// String renders the reference in A1 notation.
func (r Ref) String() string {
	return ColumnLetter(r.Col) + strconv.Itoa(r.Row)
}

// Range is an inclusive rectangular region. A single cell is a range
// whose corners coincide.
type Range struct {
	Start Ref
	End   Ref
}

// String renders "A1" for single cells and "A1:C10" otherwise.
func (r Range) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}

// Contains reports whether the range covers ref.
func (r Range) Contains(ref Ref) bool {
	return ref.Row >= r.Start.Row && ref.Row <= r.End.Row &&
		ref.Col >= r.Start.Col && ref.Col <= r.End.Col
}

// Cells returns the number of cells the range covers.
func (r Range) Cells() int {
	return (r.End.Row - r.Start.Row + 1) * (r.End.Col - r.Start.Col + 1)
}

var cellRefPattern = regexp.MustCompile(`^\$?([A-Za-z]{1,3})\$?([1-9][0-9]*)$`)

// ParseRef parses an A1-style cell reference. Absolute markers ($A$1)
// are accepted and ignored.
func ParseRef(s string) (Ref, error) {
	m := cellRefPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	col, err := ColumnIndex(m[1])
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	row, err := strconv.Atoi(m[2])
	if err != nil || row < 1 {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	return Ref{Row: row, Col: col}, nil
}

// ParseRange parses "A1:C10" or a single "A1". The corners are
// normalized so Start is the top-left cell.
func ParseRange(s string) (Range, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	start, err := ParseRef(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	end := start
	if len(parts) == 2 {
		end, err = ParseRef(parts[1])
		if err != nil {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
	}
	if end.Row < start.Row {
		start.Row, end.Row = end.Row, start.Row
	}
	if end.Col < start.Col {
		start.Col, end.Col = end.Col, start.Col
	}
	return Range{Start: start, End: end}, nil
}

// ColumnLetter converts a 1-based column index to its letter form
// (1 = A, 27 = AA).
func ColumnLetter(col int) string {
	if col < 1 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// ColumnIndex converts column letters to a 1-based index (A = 1).
func ColumnIndex(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty column", ErrInvalidReference)
	}
	col := 0
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("%w: column %q", ErrInvalidReference, s)
		}
		col = col*26 + int(c-'A') + 1
	}
	return col, nil
}

// formulaRefPattern matches cell references inside formula text. The
// leading group keeps the match anchored after a non-identifier rune so
// function names (SUM, LOG10) survive rewriting.
var formulaRefPattern = regexp.MustCompile(`(^|[^A-Za-z0-9_$])(\$?)([A-Za-z]{1,3})(\$?)([1-9][0-9]*)\b`)

// shiftFormulaRows rewrites row numbers in formula text after a row
// insertion (count > 0 rows added before row `at`) or deletion
// (rows [at, at+(-count)-1] removed, count < 0). References into a
// deleted region become the #REF! dangling marker instead of silently
// pointing at shifted data.
func shiftFormulaRows(formula string, at, count int) string {
	return formulaRefPattern.ReplaceAllStringFunc(formula, func(m string) string {
		sub := formulaRefPattern.FindStringSubmatch(m)
		row, err := strconv.Atoi(sub[5])
		if err != nil {
			return m
		}
		switch {
		case count > 0: // insert
			if row >= at {
				row += count
			}
		default: // delete
			removed := -count
			switch {
			case row >= at && row < at+removed:
				return sub[1] + "#REF!"
			case row >= at+removed:
				row -= removed
			}
		}
		return sub[1] + sub[2] + sub[3] + sub[4] + strconv.Itoa(row)
	})
}

// shiftFormulaCols is the column analogue of shiftFormulaRows.
func shiftFormulaCols(formula string, at, count int) string {
	return formulaRefPattern.ReplaceAllStringFunc(formula, func(m string) string {
		sub := formulaRefPattern.FindStringSubmatch(m)
		col, err := ColumnIndex(sub[3])
		if err != nil {
			return m
		}
		switch {
		case count > 0:
			if col >= at {
				col += count
			}
		default:
			removed := -count
			switch {
			case col >= at && col < at+removed:
				return sub[1] + "#REF!"
			case col >= at+removed:
				col -= removed
			}
		}
		return sub[1] + sub[2] + ColumnLetter(col) + sub[4] + sub[5]
	})
}
