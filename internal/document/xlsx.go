package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSX codec built on excelize. Both directions carry values, formula
// text, merged regions, cell styles and dimension overrides.

// excelize reports these for columns and rows that were never sized
// explicitly; matching dimensions are not recorded as overrides.
const (
	defaultColWidth  = 9.140625
	defaultRowHeight = 15.0
)

func loadXLSX(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		sheet := newSheet(name)
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		cols := 0
		for _, row := range rows {
			if len(row) > cols {
				cols = len(row)
			}
		}
		styles := make(map[int]*Style)
		for i, row := range rows {
			for j, raw := range row {
				ref := Ref{Row: i + 1, Col: j + 1}
				style := cellStyle(f, name, ref.String(), styles)
				if raw == "" && style == nil {
					continue
				}
				cell := sheet.cell(ref)
				cell.Style = style
				if raw == "" {
					continue
				}
				cell.Value = parseCellValue(raw)
				formula, err := f.GetCellFormula(name, ref.String())
				if err == nil && formula != "" {
					cell.Formula = formula
				}
			}
		}
		if cols > 0 && sheet.Rows() > 0 {
			sheet.ensure(Ref{Row: sheet.Rows(), Col: cols})
		}

		merges, err := f.GetMergeCells(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q merges: %w", name, err)
		}
		for _, m := range merges {
			r, err := ParseRange(m.GetStartAxis() + ":" + m.GetEndAxis())
			if err != nil {
				continue
			}
			sheet.Merges = append(sheet.Merges, r)
		}

		for col := 1; col <= sheet.Cols(); col++ {
			letter := ColumnLetter(col)
			if w, err := f.GetColWidth(name, letter); err == nil && math.Abs(w-defaultColWidth) > 1e-6 {
				sheet.ColWidths[col] = w
			}
		}
		for row := 1; row <= sheet.Rows(); row++ {
			if h, err := f.GetRowHeight(name, row); err == nil && math.Abs(h-defaultRowHeight) > 1e-6 {
				sheet.RowHeights[row] = h
			}
		}
		wb.addSheet(sheet)
	}
	if len(wb.sheets) == 0 {
		wb.addSheet(newSheet("Sheet1"))
	}
	return wb, nil
}

// cellStyle reads a cell's style back into the write model, caching the
// conversion per excelize style ID. Unstyled cells return nil.
func cellStyle(f *excelize.File, sheet, axis string, cache map[int]*Style) *Style {
	id, err := f.GetCellStyle(sheet, axis)
	if err != nil || id == 0 {
		return nil
	}
	if st, ok := cache[id]; ok {
		return st
	}
	raw, err := f.GetStyle(id)
	var st *Style
	if err == nil {
		st = fromExcelizeStyle(raw)
	}
	cache[id] = st
	return st
}

// parseCellValue maps excelize's string rendering back to a typed
// value. Numbers come back as float64, TRUE/FALSE as bool, everything
// else stays a string.
func parseCellValue(raw string) any {
	switch raw {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

func saveXLSX(wb *Workbook, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	styles := newStyleCache(f)
	for i, sheet := range wb.sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				return err
			}
		} else {
			if _, err := f.NewSheet(sheet.Name); err != nil {
				return err
			}
		}
		if err := writeSheet(f, styles, sheet); err != nil {
			return fmt.Errorf("sheet %q: %w", sheet.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, styles *styleCache, sheet *Sheet) error {
	for i, row := range sheet.Cells {
		for j, cell := range row {
			if cell.Value == nil && cell.Formula == "" && cell.Style == nil {
				continue
			}
			axis := Ref{Row: i + 1, Col: j + 1}.String()
			if cell.Formula != "" {
				if err := f.SetCellFormula(sheet.Name, axis, cell.Formula); err != nil {
					return err
				}
			} else if cell.Value != nil {
				if err := f.SetCellValue(sheet.Name, axis, cell.Value); err != nil {
					return err
				}
			}
			if cell.Style != nil {
				id, err := styles.id(cell.Style)
				if err != nil {
					return err
				}
				if err := f.SetCellStyle(sheet.Name, axis, axis, id); err != nil {
					return err
				}
			}
		}
	}
	for _, m := range sheet.Merges {
		if err := f.MergeCell(sheet.Name, m.Start.String(), m.End.String()); err != nil {
			return err
		}
	}
	for col, width := range sheet.ColWidths {
		letter := ColumnLetter(col)
		if err := f.SetColWidth(sheet.Name, letter, letter, width); err != nil {
			return err
		}
	}
	for row, height := range sheet.RowHeights {
		if err := f.SetRowHeight(sheet.Name, row, height); err != nil {
			return err
		}
	}
	return nil
}

// styleCache deduplicates excelize style IDs. Workbooks style whole
// ranges with the same attributes, and excelize allocates a new ID per
// NewStyle call, so caching keeps the file small.
type styleCache struct {
	f   *excelize.File
	ids map[string]int
}

func newStyleCache(f *excelize.File) *styleCache {
	return &styleCache{f: f, ids: make(map[string]int)}
}

func (sc *styleCache) id(s *Style) (int, error) {
	key := styleKey(s)
	if id, ok := sc.ids[key]; ok {
		return id, nil
	}
	id, err := sc.f.NewStyle(toExcelizeStyle(s))
	if err != nil {
		return 0, err
	}
	sc.ids[key] = id
	return id, nil
}

func styleKey(s *Style) string {
	var b strings.Builder
	if f := s.Font; f != nil {
		fmt.Fprintf(&b, "f:%s|%g|%t|%t|%s|%s;", f.Name, f.Size, f.Bold, f.Italic, f.Underline, f.Color)
	}
	if f := s.Fill; f != nil {
		fmt.Fprintf(&b, "g:%s|%s;", f.Color, f.Pattern)
	}
	if a := s.Alignment; a != nil {
		fmt.Fprintf(&b, "a:%s|%s|%t;", a.Horizontal, a.Vertical, a.WrapText)
	}
	if bd := s.Border; bd != nil {
		fmt.Fprintf(&b, "b:%s|%s|%t%t%t%t;", bd.Style, bd.Color, bd.Left, bd.Right, bd.Top, bd.Bottom)
	}
	if s.NumberFormat != "" {
		fmt.Fprintf(&b, "n:%s;", s.NumberFormat)
	}
	return b.String()
}

func toExcelizeStyle(s *Style) *excelize.Style {
	out := &excelize.Style{}
	if f := s.Font; f != nil {
		out.Font = &excelize.Font{
			Family:    f.Name,
			Size:      f.Size,
			Bold:      f.Bold,
			Italic:    f.Italic,
			Underline: f.Underline,
			Color:     f.Color,
		}
	}
	if f := s.Fill; f != nil {
		out.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{f.Color},
		}
	}
	if a := s.Alignment; a != nil {
		out.Alignment = &excelize.Alignment{
			Horizontal: a.Horizontal,
			Vertical:   a.Vertical,
			WrapText:   a.WrapText,
		}
	}
	if bd := s.Border; bd != nil {
		style := borderStyleID(bd.Style)
		add := func(edge string, on bool) {
			if on {
				out.Border = append(out.Border, excelize.Border{
					Type: edge, Style: style, Color: bd.Color,
				})
			}
		}
		add("left", bd.Left)
		add("right", bd.Right)
		add("top", bd.Top)
		add("bottom", bd.Bottom)
	}
	if s.NumberFormat != "" {
		nf := s.NumberFormat
		out.CustomNumFmt = &nf
	}
	return out
}

// fromExcelizeStyle is the load-side inverse of toExcelizeStyle. A
// style carrying none of the attributes the write model tracks comes
// back as nil.
func fromExcelizeStyle(in *excelize.Style) *Style {
	if in == nil {
		return nil
	}
	out := &Style{}
	if f := in.Font; f != nil {
		out.Font = &Font{
			Name:      f.Family,
			Size:      f.Size,
			Bold:      f.Bold,
			Italic:    f.Italic,
			Underline: f.Underline,
			Color:     rgbHex(f.Color),
		}
	}
	if in.Fill.Type == "pattern" && in.Fill.Pattern > 0 && len(in.Fill.Color) > 0 {
		out.Fill = &Fill{Color: rgbHex(in.Fill.Color[0]), Pattern: "solid"}
	}
	if a := in.Alignment; a != nil {
		out.Alignment = &Alignment{
			Horizontal: a.Horizontal,
			Vertical:   a.Vertical,
			WrapText:   a.WrapText,
		}
	}
	if len(in.Border) > 0 {
		bd := &Border{
			Style: borderStyleName(in.Border[0].Style),
			Color: rgbHex(in.Border[0].Color),
		}
		for _, b := range in.Border {
			switch b.Type {
			case "left":
				bd.Left = true
			case "right":
				bd.Right = true
			case "top":
				bd.Top = true
			case "bottom":
				bd.Bottom = true
			}
		}
		if bd.Left || bd.Right || bd.Top || bd.Bottom {
			out.Border = bd
		}
	}
	if in.CustomNumFmt != nil {
		out.NumberFormat = *in.CustomNumFmt
	}
	if out.Font == nil && out.Fill == nil && out.Alignment == nil &&
		out.Border == nil && out.NumberFormat == "" {
		return nil
	}
	return out
}

// borderStyleID maps a border style name to excelize's numeric code.
func borderStyleID(name string) int {
	switch name {
	case "medium":
		return 2
	case "dashed":
		return 3
	case "dotted":
		return 4
	case "thick":
		return 5
	case "double":
		return 6
	default: // thin
		return 1
	}
}

// rgbHex normalizes excelize color strings ("#RRGGBB" or 8-digit ARGB)
// to the 6-digit hex the write model stores.
func rgbHex(c string) string {
	c = strings.TrimPrefix(c, "#")
	if len(c) == 8 {
		c = c[2:]
	}
	return c
}

func borderStyleName(id int) string {
	switch id {
	case 2:
		return "medium"
	case 3:
		return "dashed"
	case 4:
		return "dotted"
	case 5:
		return "thick"
	case 6:
		return "double"
	default:
		return "thin"
	}
}
