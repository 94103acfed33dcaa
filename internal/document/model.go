package document

// The write model. Full fidelity: values, formula text, styles, merged
// regions, dimension overrides. The read snapshot in snapshot.go is
// always derivable from this and never persisted on its own.

// Cell holds one grid position of the write model.
type Cell struct {
	// Value is nil, string, float64, bool or time.Time. For formula
	// cells it carries the cached display value from the last load;
	// formulas are never evaluated here.
	Value any

	// Formula is the formula text without the leading "=", or empty.
	// Stored verbatim; re-addressed (not rewritten) on row/col edits.
	Formula string

	// Style is nil for unstyled cells.
	Style *Style
}

// Style bundles per-cell presentation attributes.
type Style struct {
	Font         *Font      `json:"font,omitempty"`
	Fill         *Fill      `json:"fill,omitempty"`
	Alignment    *Alignment `json:"alignment,omitempty"`
	Border       *Border    `json:"border,omitempty"`
	NumberFormat string     `json:"number_format,omitempty"`
}

// Font attributes. Zero values mean "unset".
type Font struct {
	Name      string  `json:"name,omitempty"`
	Size      float64 `json:"size,omitempty"`
	Bold      bool    `json:"bold,omitempty"`
	Italic    bool    `json:"italic,omitempty"`
	Underline string  `json:"underline,omitempty"`
	Color     string  `json:"color,omitempty"` // RGB hex, e.g. "FF0000"
}

// Fill is a solid or patterned background.
type Fill struct {
	Color   string `json:"color,omitempty"`
	Pattern string `json:"pattern,omitempty"` // "solid" unless specified
}

// Alignment attributes.
type Alignment struct {
	Horizontal string `json:"horizontal,omitempty"`
	Vertical   string `json:"vertical,omitempty"`
	WrapText   bool   `json:"wrap_text,omitempty"`
}

// Border applies one line style to the selected edges.
type Border struct {
	Style  string `json:"style,omitempty"` // thin, medium, thick, double, dotted, dashed
	Color  string `json:"color,omitempty"`
	Left   bool   `json:"left,omitempty"`
	Right  bool   `json:"right,omitempty"`
	Top    bool   `json:"top,omitempty"`
	Bottom bool   `json:"bottom,omitempty"`
}

// merge merges non-zero attributes of other into a copy of s, so
// repeated style operations compose instead of clobbering each other.
func (s *Style) merge(other *Style) *Style {
	out := Style{}
	if s != nil {
		out = *s
	}
	if other.Font != nil {
		out.Font = other.Font
	}
	if other.Fill != nil {
		out.Fill = other.Fill
	}
	if other.Alignment != nil {
		out.Alignment = other.Alignment
	}
	if other.Border != nil {
		out.Border = other.Border
	}
	if other.NumberFormat != "" {
		out.NumberFormat = other.NumberFormat
	}
	return &out
}

// Sheet is one worksheet: a dense grid plus region/dimension metadata.
type Sheet struct {
	Name string

	// Cells is row-major and 0-indexed; Ref addressing is 1-based.
	Cells [][]Cell

	// Merges are merged regions in grid coordinates.
	Merges []Range

	// ColWidths and RowHeights hold explicit dimension overrides keyed
	// by 1-based index.
	ColWidths  map[int]float64
	RowHeights map[int]float64
}

func newSheet(name string) *Sheet {
	return &Sheet{
		Name:       name,
		ColWidths:  make(map[int]float64),
		RowHeights: make(map[int]float64),
	}
}

// Rows returns the current grid height.
func (s *Sheet) Rows() int { return len(s.Cells) }

// Cols returns the current grid width.
func (s *Sheet) Cols() int {
	if len(s.Cells) == 0 {
		return 0
	}
	return len(s.Cells[0])
}

// ensure grows the grid so ref is addressable. Spreadsheets grow on
// out-of-bounds writes; they never reject them.
func (s *Sheet) ensure(ref Ref) {
	cols := s.Cols()
	if ref.Col > cols {
		cols = ref.Col
	}
	for len(s.Cells) < ref.Row {
		s.Cells = append(s.Cells, make([]Cell, cols))
	}
	if cols > s.Cols() {
		for i := range s.Cells {
			row := make([]Cell, cols)
			copy(row, s.Cells[i])
			s.Cells[i] = row
		}
	}
}

// cell returns a pointer to the cell at ref, growing the grid as needed.
func (s *Sheet) cell(ref Ref) *Cell {
	s.ensure(ref)
	return &s.Cells[ref.Row-1][ref.Col-1]
}

// at returns the cell value at ref without growing the grid.
func (s *Sheet) at(ref Ref) Cell {
	if ref.Row > s.Rows() || ref.Col > s.Cols() {
		return Cell{}
	}
	return s.Cells[ref.Row-1][ref.Col-1]
}

// insertRows inserts count blank rows before row `at` (1-based) and
// re-addresses formulas, merges and row-height overrides past the pivot.
func (s *Sheet) insertRows(at, count int) {
	if at < 1 {
		at = 1
	}
	if at <= s.Rows() {
		blank := make([][]Cell, count)
		for i := range blank {
			blank[i] = make([]Cell, s.Cols())
		}
		s.Cells = append(s.Cells[:at-1], append(blank, s.Cells[at-1:]...)...)
	}
	s.reAddressRows(at, count)
}

// deleteRows removes rows [start, end] (1-based, inclusive).
func (s *Sheet) deleteRows(start, end int) {
	if start < 1 {
		start = 1
	}
	if end > s.Rows() {
		end = s.Rows()
	}
	if start > end {
		return
	}
	count := end - start + 1
	s.Cells = append(s.Cells[:start-1], s.Cells[end:]...)
	s.reAddressRows(start, -count)
}

// reAddressRows shifts formula references, merged regions and row-height
// overrides after a structural row edit at `at` (+count insert,
// -count delete).
func (s *Sheet) reAddressRows(at, count int) {
	for i := range s.Cells {
		for j := range s.Cells[i] {
			if f := s.Cells[i][j].Formula; f != "" {
				s.Cells[i][j].Formula = shiftFormulaRows(f, at, count)
			}
		}
	}

	merges := s.Merges[:0]
	for _, m := range s.Merges {
		if shifted, ok := shiftRangeRows(m, at, count); ok {
			merges = append(merges, shifted)
		}
	}
	s.Merges = merges

	s.RowHeights = shiftDimOverrides(s.RowHeights, at, count)
}

// insertCols inserts count blank columns before column `at`.
func (s *Sheet) insertCols(at, count int) {
	if at < 1 {
		at = 1
	}
	if at <= s.Cols() {
		for i := range s.Cells {
			blank := make([]Cell, count)
			s.Cells[i] = append(s.Cells[i][:at-1], append(blank, s.Cells[i][at-1:]...)...)
		}
	}
	s.reAddressCols(at, count)
}

// deleteCols removes columns [start, end] (1-based, inclusive).
func (s *Sheet) deleteCols(start, end int) {
	if start < 1 {
		start = 1
	}
	if end > s.Cols() {
		end = s.Cols()
	}
	if start > end {
		return
	}
	count := end - start + 1
	for i := range s.Cells {
		s.Cells[i] = append(s.Cells[i][:start-1], s.Cells[i][end:]...)
	}
	s.reAddressCols(start, -count)
}

func (s *Sheet) reAddressCols(at, count int) {
	for i := range s.Cells {
		for j := range s.Cells[i] {
			if f := s.Cells[i][j].Formula; f != "" {
				s.Cells[i][j].Formula = shiftFormulaCols(f, at, count)
			}
		}
	}

	merges := s.Merges[:0]
	for _, m := range s.Merges {
		if shifted, ok := shiftRangeCols(m, at, count); ok {
			merges = append(merges, shifted)
		}
	}
	s.Merges = merges

	s.ColWidths = shiftDimOverrides(s.ColWidths, at, count)
}

// shiftRangeRows moves a region after a row edit. A region partially
// overlapping a deleted span shrinks; one fully inside it disappears
// (ok=false).
func shiftRangeRows(r Range, at, count int) (Range, bool) {
	if count > 0 {
		if r.Start.Row >= at {
			r.Start.Row += count
		}
		if r.End.Row >= at {
			r.End.Row += count
		}
		return r, true
	}
	removed := -count
	switch {
	case r.Start.Row >= at+removed:
		r.Start.Row -= removed
	case r.Start.Row >= at:
		r.Start.Row = at
	}
	switch {
	case r.End.Row >= at+removed:
		r.End.Row -= removed
	case r.End.Row >= at:
		r.End.Row = at - 1
	}
	if r.End.Row < r.Start.Row {
		return Range{}, false
	}
	return r, true
}

func shiftRangeCols(r Range, at, count int) (Range, bool) {
	if count > 0 {
		if r.Start.Col >= at {
			r.Start.Col += count
		}
		if r.End.Col >= at {
			r.End.Col += count
		}
		return r, true
	}
	removed := -count
	switch {
	case r.Start.Col >= at+removed:
		r.Start.Col -= removed
	case r.Start.Col >= at:
		r.Start.Col = at
	}
	switch {
	case r.End.Col >= at+removed:
		r.End.Col -= removed
	case r.End.Col >= at:
		r.End.Col = at - 1
	}
	if r.End.Col < r.Start.Col {
		return Range{}, false
	}
	return r, true
}

// shiftDimOverrides re-keys a dimension override map after a structural
// edit. Overrides inside a deleted span are dropped.
func shiftDimOverrides(m map[int]float64, at, count int) map[int]float64 {
	out := make(map[int]float64, len(m))
	for idx, v := range m {
		switch {
		case count > 0:
			if idx >= at {
				idx += count
			}
		default:
			removed := -count
			if idx >= at && idx < at+removed {
				continue
			}
			if idx >= at+removed {
				idx -= removed
			}
		}
		out[idx] = v
	}
	return out
}

// clone deep-copies the sheet. Used for transaction rollback snapshots.
func (s *Sheet) clone() *Sheet {
	out := newSheet(s.Name)
	out.Cells = make([][]Cell, len(s.Cells))
	for i, row := range s.Cells {
		out.Cells[i] = make([]Cell, len(row))
		for j, c := range row {
			cc := c
			if c.Style != nil {
				style := *c.Style
				if c.Style.Font != nil {
					f := *c.Style.Font
					style.Font = &f
				}
				if c.Style.Fill != nil {
					f := *c.Style.Fill
					style.Fill = &f
				}
				if c.Style.Alignment != nil {
					a := *c.Style.Alignment
					style.Alignment = &a
				}
				if c.Style.Border != nil {
					b := *c.Style.Border
					style.Border = &b
				}
				cc.Style = &style
			}
			out.Cells[i][j] = cc
		}
	}
	out.Merges = append([]Range(nil), s.Merges...)
	for k, v := range s.ColWidths {
		out.ColWidths[k] = v
	}
	for k, v := range s.RowHeights {
		out.RowHeights[k] = v
	}
	return out
}

// Workbook is the ordered collection of sheets.
type Workbook struct {
	sheets []*Sheet
}

// NewWorkbook creates a workbook with one blank sheet.
func NewWorkbook() *Workbook {
	return &Workbook{sheets: []*Sheet{newSheet("Sheet1")}}
}

// Sheet returns the named sheet, or nil.
func (w *Workbook) Sheet(name string) *Sheet {
	for _, s := range w.sheets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// SheetNames returns sheet names in order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.sheets))
	for i, s := range w.sheets {
		names[i] = s.Name
	}
	return names
}

func (w *Workbook) addSheet(s *Sheet) { w.sheets = append(w.sheets, s) }

func (w *Workbook) removeSheet(name string) bool {
	for i, s := range w.sheets {
		if s.Name == name {
			w.sheets = append(w.sheets[:i], w.sheets[i+1:]...)
			return true
		}
	}
	return false
}

// clone deep-copies the workbook for transaction rollback.
func (w *Workbook) clone() *Workbook {
	out := &Workbook{sheets: make([]*Sheet, len(w.sheets))}
	for i, s := range w.sheets {
		out.sheets[i] = s.clone()
	}
	return out
}
