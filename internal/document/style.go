package document

import (
	"fmt"
)

// Styling operations. Each applies to a cell or range on the active
// sheet, merges with any existing style attributes, and commits as one
// versioned mutation.

// applyStyle merges patch into every cell of rng and commits.
func (c *Controller) applyStyle(rng string, patch *Style, summary string) error {
	r, err := ParseRange(rng)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	sheet := c.wb.Sheet(c.active)
	for row := r.Start.Row; row <= r.End.Row; row++ {
		for col := r.Start.Col; col <= r.End.Col; col++ {
			cell := sheet.cell(Ref{Row: row, Col: col})
			cell.Style = cell.Style.merge(patch)
		}
	}
	c.commit(ChangeRecord{
		Op: OpSetStyle, Sheet: c.active, Target: r.String(), Summary: summary,
	})
	return nil
}

// SetFont applies font attributes to a range.
func (c *Controller) SetFont(rng string, font Font) error {
	return c.applyStyle(rng, &Style{Font: &font}, "font")
}

// SetFill applies a background fill to a range. An empty pattern means
// solid.
func (c *Controller) SetFill(rng string, fill Fill) error {
	if fill.Pattern == "" {
		fill.Pattern = "solid"
	}
	return c.applyStyle(rng, &Style{Fill: &fill}, "fill")
}

// SetAlignment applies alignment attributes to a range.
func (c *Controller) SetAlignment(rng string, align Alignment) error {
	return c.applyStyle(rng, &Style{Alignment: &align}, "alignment")
}

// SetBorder applies a border to a range.
func (c *Controller) SetBorder(rng string, border Border) error {
	if border.Style == "" {
		border.Style = "thin"
	}
	return c.applyStyle(rng, &Style{Border: &border}, "border")
}

// SetNumberFormat applies a number format code to a range.
func (c *Controller) SetNumberFormat(rng, format string) error {
	return c.applyStyle(rng, &Style{NumberFormat: format}, "number format")
}

// SetCellStyle applies a full style patch to a range in one mutation.
func (c *Controller) SetCellStyle(rng string, style Style) error {
	return c.applyStyle(rng, &style, "style")
}

// MergeCells merges the given region. Overlapping existing merges are
// replaced.
func (c *Controller) MergeCells(rng string) error {
	r, err := ParseRange(rng)
	if err != nil {
		return err
	}
	if r.Start == r.End {
		return fmt.Errorf("%w: cannot merge a single cell %q", ErrInvalidReference, rng)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	sheet := c.wb.Sheet(c.active)
	sheet.ensure(r.End)

	kept := sheet.Merges[:0]
	for _, m := range sheet.Merges {
		if !overlaps(m, r) {
			kept = append(kept, m)
		}
	}
	sheet.Merges = append(kept, r)
	c.commit(ChangeRecord{Op: OpMergeCells, Sheet: c.active, Target: r.String()})
	return nil
}

// UnmergeCells removes any merged region overlapping rng.
func (c *Controller) UnmergeCells(rng string) error {
	r, err := ParseRange(rng)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	sheet := c.wb.Sheet(c.active)
	kept := sheet.Merges[:0]
	removed := 0
	for _, m := range sheet.Merges {
		if overlaps(m, r) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	sheet.Merges = kept
	if removed == 0 {
		return nil
	}
	c.commit(ChangeRecord{
		Op: OpUnmergeCells, Sheet: c.active, Target: r.String(),
		Summary: fmt.Sprintf("removed %d merge(s)", removed),
	})
	return nil
}

// SetColumnWidth sets an explicit width for a column given by letter.
func (c *Controller) SetColumnWidth(col string, width float64) error {
	idx, err := ColumnIndex(col)
	if err != nil {
		return err
	}
	if width <= 0 {
		return fmt.Errorf("%w: width %v", ErrInvalidReference, width)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	c.wb.Sheet(c.active).ColWidths[idx] = width
	c.commit(ChangeRecord{
		Op: OpSetDimension, Sheet: c.active,
		Target: ColumnLetter(idx), After: width, Summary: "column width",
	})
	return nil
}

// SetRowHeight sets an explicit height for a 1-based row.
func (c *Controller) SetRowHeight(row int, height float64) error {
	if row < 1 || height <= 0 {
		return fmt.Errorf("%w: row %d height %v", ErrInvalidReference, row, height)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	c.wb.Sheet(c.active).RowHeights[row] = height
	c.commit(ChangeRecord{
		Op: OpSetDimension, Sheet: c.active,
		Target: fmt.Sprintf("row %d", row), After: height, Summary: "row height",
	})
	return nil
}

// AutoFitColumn sizes a column to its longest display string, with a
// small padding factor and an upper bound so a single long cell does
// not blow out the layout.
func (c *Controller) AutoFitColumn(col string) error {
	idx, err := ColumnIndex(col)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	sheet := c.wb.Sheet(c.active)
	longest := 0
	for _, row := range sheet.Cells {
		if idx-1 < len(row) {
			if n := len([]rune(DisplayString(row[idx-1].Value))); n > longest {
				longest = n
			}
		}
	}
	width := float64(longest) + 2
	if width < 8 {
		width = 8
	}
	if width > 80 {
		width = 80
	}
	sheet.ColWidths[idx] = width
	c.commit(ChangeRecord{
		Op: OpSetDimension, Sheet: c.active,
		Target: ColumnLetter(idx), After: width, Summary: "auto fit",
	})
	return nil
}

func overlaps(a, b Range) bool {
	return a.Start.Row <= b.End.Row && b.Start.Row <= a.End.Row &&
		a.Start.Col <= b.End.Col && b.Start.Col <= a.End.Col
}
