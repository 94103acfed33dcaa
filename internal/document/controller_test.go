package document

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c := NewController(nil)
	require.NoError(t, c.New())
	return c
}

func seedSales(t *testing.T, c *Controller) {
	t.Helper()
	require.NoError(t, c.WriteRange("A1", [][]any{
		{"region", "sales"},
		{"north", 100.0},
		{"south", 250.0},
		{"east", 175.0},
	}))
}

func TestControllerLifecycle(t *testing.T) {
	c := NewController(nil)

	t.Run("operations before load fail", func(t *testing.T) {
		_, err := c.ReadCell("A1")
		assert.ErrorIs(t, err, ErrNotLoaded)
		assert.ErrorIs(t, c.WriteCell("A1", 1), ErrNotLoaded)
		_, err = c.Snapshot()
		assert.ErrorIs(t, err, ErrNotLoaded)
	})

	t.Run("new workbook starts at version zero", func(t *testing.T) {
		require.NoError(t, c.New())
		assert.Equal(t, uint64(0), c.Version())
		assert.Equal(t, "Sheet1", c.ActiveSheet())
	})

	t.Run("first mutation lands at version one", func(t *testing.T) {
		require.NoError(t, c.WriteCell("A1", 100.0))
		assert.Equal(t, uint64(1), c.Version())
	})

	t.Run("unsupported extension rejected", func(t *testing.T) {
		assert.ErrorIs(t, c.Load("data.parquet"), ErrUnsupportedFormat)
	})
}

func TestVersionBumpsOncePerMutation(t *testing.T) {
	c := newTestController(t)
	base := c.Version()

	require.NoError(t, c.WriteCell("A1", "x"))
	assert.Equal(t, base+1, c.Version())

	// A multi-cell range write is still one mutation.
	require.NoError(t, c.WriteRange("B1", [][]any{{1.0, 2.0}, {3.0, 4.0}}))
	assert.Equal(t, base+2, c.Version())

	// Reads never move the version.
	_, err := c.ReadCell("A1")
	require.NoError(t, err)
	_, err = c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, base+2, c.Version())
}

func TestSnapshotLazyResync(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)

	first, err := c.Snapshot()
	require.NoError(t, err)

	t.Run("clean reads share one snapshot", func(t *testing.T) {
		again, err := c.Snapshot()
		require.NoError(t, err)
		assert.Same(t, first, again)
	})

	t.Run("mutation invalidates, next read rebuilds once", func(t *testing.T) {
		require.NoError(t, c.WriteCell("B2", 999.0))

		rebuilt, err := c.Snapshot()
		require.NoError(t, err)
		assert.NotSame(t, first, rebuilt)
		assert.Equal(t, c.Version(), rebuilt.Version)

		col, ok := rebuilt.Column("sales")
		require.True(t, ok)
		assert.Equal(t, 999.0, col[0])

		again, err := c.Snapshot()
		require.NoError(t, err)
		assert.Same(t, rebuilt, again)
	})

	t.Run("headers fall back to positional names", func(t *testing.T) {
		require.NoError(t, c.WriteCell("C1", ""))
		require.NoError(t, c.WriteCell("C2", 1.0))
		snap, err := c.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, "Column C", snap.Headers[2])
	})
}

func TestReadWriteCells(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.WriteCell("B2", 42.0))
	v, err := c.ReadCell("B2")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	t.Run("unwritten cell reads nil", func(t *testing.T) {
		v, err := c.ReadCell("ZZ999")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("formula write clears cached value", func(t *testing.T) {
		require.NoError(t, c.WriteFormula("C1", "=SUM(A1:B2)"))
		f, err := c.ReadFormula("C1")
		require.NoError(t, err)
		assert.Equal(t, "SUM(A1:B2)", f)
		v, err := c.ReadCell("C1")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("value write clears formula", func(t *testing.T) {
		require.NoError(t, c.WriteCell("C1", 7.0))
		f, err := c.ReadFormula("C1")
		require.NoError(t, err)
		assert.Empty(t, f)
	})

	t.Run("invalid reference names the offender", func(t *testing.T) {
		err := c.WriteCell("!!", 1)
		require.ErrorIs(t, err, ErrInvalidReference)
		assert.Contains(t, err.Error(), "!!")
	})
}

func TestReadRange(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)

	got, err := c.ReadRange("A2:B3")
	require.NoError(t, err)
	want := [][]any{{"north", 100.0}, {"south", 250.0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("range mismatch (-want +got):\n%s", diff)
	}
}

func TestTransactionCommit(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)
	base := c.Version()
	preSnap, err := c.Snapshot()
	require.NoError(t, err)

	require.NoError(t, c.Begin())
	assert.ErrorIs(t, c.Begin(), ErrTransactionOpen)

	require.NoError(t, c.WriteCell("B2", 1.0))
	require.NoError(t, c.WriteCell("B3", 2.0))
	require.NoError(t, c.WriteCell("B4", 3.0))

	t.Run("open transaction holds version and snapshot", func(t *testing.T) {
		assert.Equal(t, base, c.Version())
		snap, err := c.Snapshot()
		require.NoError(t, err)
		assert.Same(t, preSnap, snap)
	})

	t.Run("commit publishes everything at version plus one", func(t *testing.T) {
		require.NoError(t, c.Commit())
		assert.Equal(t, base+1, c.Version())

		snap, err := c.Snapshot()
		require.NoError(t, err)
		col, ok := snap.Column("sales")
		require.True(t, ok)
		assert.Equal(t, []any{1.0, 2.0, 3.0}, col)
	})

	t.Run("empty commit leaves the version alone", func(t *testing.T) {
		v := c.Version()
		snap, err := c.Snapshot()
		require.NoError(t, err)

		require.NoError(t, c.Begin())
		require.NoError(t, c.Commit())
		assert.Equal(t, v, c.Version())

		again, err := c.Snapshot()
		require.NoError(t, err)
		assert.Same(t, snap, again)
	})

	assert.ErrorIs(t, c.Commit(), ErrNoTransaction)
}

func TestTransactionReadIsolation(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)
	require.NoError(t, c.WriteFormula("C2", "=B2/100"))

	require.NoError(t, c.Begin())
	require.NoError(t, c.WriteCell("B2", 9999.0))
	require.NoError(t, c.WriteFormula("C2", "=B2*7"))

	t.Run("point reads serve the pre-transaction state", func(t *testing.T) {
		v, err := c.ReadCell("B2")
		require.NoError(t, err)
		assert.Equal(t, 100.0, v)

		f, err := c.ReadFormula("C2")
		require.NoError(t, err)
		assert.Equal(t, "B2/100", f)

		got, err := c.ReadRange("B2:B3")
		require.NoError(t, err)
		assert.Equal(t, [][]any{{100.0}, {250.0}}, got)

		formulas, err := c.ListFormulas()
		require.NoError(t, err)
		assert.Equal(t, []FormulaEntry{{Ref: "C2", Formula: "B2/100"}}, formulas)
	})

	t.Run("cold snapshot rebuild uses the pre-transaction copy", func(t *testing.T) {
		snap, err := c.Snapshot()
		require.NoError(t, err)
		col, ok := snap.Column("sales")
		require.True(t, ok)
		assert.Equal(t, 100.0, col[0])
	})

	t.Run("commit makes the buffered writes readable", func(t *testing.T) {
		require.NoError(t, c.Commit())
		v, err := c.ReadCell("B2")
		require.NoError(t, err)
		assert.Equal(t, 9999.0, v)

		f, err := c.ReadFormula("C2")
		require.NoError(t, err)
		assert.Equal(t, "B2*7", f)
	})
}

func TestTransactionRollback(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)
	require.NoError(t, c.WriteFormula("C2", "=B2*2"))
	base := c.Version()

	before, err := c.ReadRange("A1:C4")
	require.NoError(t, err)

	require.NoError(t, c.Begin())
	require.NoError(t, c.WriteCell("B2", 9999.0))
	require.NoError(t, c.DeleteRows(3, 3))
	require.NoError(t, c.WriteFormula("C2", "=B2*100"))
	require.NoError(t, c.Rollback())

	t.Run("write model restored exactly", func(t *testing.T) {
		after, err := c.ReadRange("A1:C4")
		require.NoError(t, err)
		if diff := cmp.Diff(before, after); diff != "" {
			t.Fatalf("rollback not exact (-before +after):\n%s", diff)
		}
		f, err := c.ReadFormula("C2")
		require.NoError(t, err)
		assert.Equal(t, "B2*2", f)
	})

	t.Run("version unchanged", func(t *testing.T) {
		assert.Equal(t, base, c.Version())
	})

	assert.ErrorIs(t, c.Rollback(), ErrNoTransaction)
}

func TestChangeLogOrdering(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.WriteCell("A1", 1.0))
	require.NoError(t, c.WriteCell("A2", 2.0))
	require.NoError(t, c.WriteCell("A3", 3.0))

	recs := c.ChangesSince(0)
	require.NotEmpty(t, recs)
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Seq, recs[i-1].Seq, "seq must strictly increase")
	}

	t.Run("since filters by sequence", func(t *testing.T) {
		tail := c.ChangesSince(recs[len(recs)-2].Seq)
		require.Len(t, tail, 1)
		assert.Equal(t, recs[len(recs)-1].Seq, tail[0].Seq)
	})

	t.Run("records carry before and after", func(t *testing.T) {
		require.NoError(t, c.WriteCell("A1", 10.0))
		all := c.ChangesSince(0)
		last := all[len(all)-1]
		assert.Equal(t, OpWriteCell, last.Op)
		assert.Equal(t, "A1", last.Target)
		assert.Equal(t, 1.0, last.Before)
		assert.Equal(t, 10.0, last.After)
	})
}

func TestInsertDeleteRows(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)
	require.NoError(t, c.WriteFormula("B5", "=SUM(B2:B4)"))

	t.Run("insert re-addresses formulas below", func(t *testing.T) {
		require.NoError(t, c.InsertRows(2, 1))
		f, err := c.ReadFormula("B6")
		require.NoError(t, err)
		assert.Equal(t, "SUM(B3:B5)", f)

		v, err := c.ReadCell("A2")
		require.NoError(t, err)
		assert.Nil(t, v, "inserted row is blank")
		v, err = c.ReadCell("A3")
		require.NoError(t, err)
		assert.Equal(t, "north", v)
	})

	t.Run("delete collapses references into #REF!", func(t *testing.T) {
		require.NoError(t, c.DeleteRows(3, 5))
		f, err := c.ReadFormula("B3")
		require.NoError(t, err)
		assert.Equal(t, "SUM(#REF!:#REF!)", f)
	})
}

func TestInsertDeleteCols(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)
	require.NoError(t, c.WriteFormula("C2", "=B2*2"))

	require.NoError(t, c.InsertCols(2, 1))
	f, err := c.ReadFormula("D2")
	require.NoError(t, err)
	assert.Equal(t, "C2*2", f)

	v, err := c.ReadCell("C2")
	require.NoError(t, err)
	assert.Equal(t, 100.0, v, "sales column shifted right")

	require.NoError(t, c.DeleteCols(3, 3))
	f, err = c.ReadFormula("C2")
	require.NoError(t, err)
	assert.Equal(t, "#REF!*2", f)
}

func TestSheetOperations(t *testing.T) {
	c := newTestController(t)
	base := c.Version()

	t.Run("create activates and bumps version", func(t *testing.T) {
		require.NoError(t, c.CreateSheet("Summary"))
		assert.Equal(t, "Summary", c.ActiveSheet())
		assert.Equal(t, base+1, c.Version())
		assert.ErrorIs(t, c.CreateSheet("Summary"), ErrSheetExists)
	})

	t.Run("switch does not bump version", func(t *testing.T) {
		v := c.Version()
		require.NoError(t, c.SwitchSheet("Sheet1"))
		assert.Equal(t, v, c.Version())
		assert.ErrorIs(t, c.SwitchSheet("nope"), ErrSheetNotFound)
	})

	t.Run("sheets isolate data", func(t *testing.T) {
		require.NoError(t, c.WriteCell("A1", "on sheet1"))
		require.NoError(t, c.SwitchSheet("Summary"))
		v, err := c.ReadCell("A1")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("rename preserves contents", func(t *testing.T) {
		require.NoError(t, c.RenameSheet("Sheet1", "Data"))
		require.NoError(t, c.SwitchSheet("Data"))
		v, err := c.ReadCell("A1")
		require.NoError(t, err)
		assert.Equal(t, "on sheet1", v)
	})

	t.Run("cannot delete the last sheet", func(t *testing.T) {
		require.NoError(t, c.DeleteSheet("Summary"))
		assert.ErrorIs(t, c.DeleteSheet("Data"), ErrLastSheet)
	})
}

func TestListFormulasAndStructure(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)
	require.NoError(t, c.WriteFormula("B5", "=SUM(B2:B4)"))
	require.NoError(t, c.WriteFormula("C2", "=B2/100"))

	formulas, err := c.ListFormulas()
	require.NoError(t, err)
	assert.Equal(t, []FormulaEntry{
		{Ref: "C2", Formula: "B2/100"},
		{Ref: "B5", Formula: "SUM(B2:B4)"},
	}, formulas)

	st, err := c.Structure()
	require.NoError(t, err)
	require.Len(t, st.Sheets, 1)
	assert.Equal(t, 5, st.Sheets[0].Rows)
	assert.Equal(t, 3, st.Sheets[0].Cols)
	assert.True(t, st.Sheets[0].Active)
	assert.Equal(t, c.Version(), st.Version)
}

func TestPreview(t *testing.T) {
	c := NewController(nil, WithPreviewRows(3))
	require.NoError(t, c.New())
	seedSales(t, c)

	rows, err := c.Preview()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"region", "sales"}, rows[0])
	assert.Equal(t, []string{"north", "100"}, rows[1])
}

func TestStyleOperations(t *testing.T) {
	c := newTestController(t)
	seedSales(t, c)
	base := c.Version()

	require.NoError(t, c.SetFont("A1:B1", Font{Bold: true}))
	require.NoError(t, c.SetFill("A1:B1", Fill{Color: "FFFF00"}))
	assert.Equal(t, base+2, c.Version())

	t.Run("style attributes compose", func(t *testing.T) {
		cell := c.wb.Sheet(c.active).at(Ref{1, 1})
		require.NotNil(t, cell.Style)
		assert.True(t, cell.Style.Font.Bold)
		assert.Equal(t, "FFFF00", cell.Style.Fill.Color)
	})

	t.Run("merge then structural edit keeps region consistent", func(t *testing.T) {
		require.NoError(t, c.MergeCells("A1:B1"))
		require.NoError(t, c.InsertRows(1, 1))
		sheet := c.wb.Sheet(c.active)
		require.Len(t, sheet.Merges, 1)
		assert.Equal(t, Range{Ref{2, 1}, Ref{2, 2}}, sheet.Merges[0])
	})

	t.Run("single cell merge rejected", func(t *testing.T) {
		assert.ErrorIs(t, c.MergeCells("A1"), ErrInvalidReference)
	})
}

func TestXLSXRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")

	src := newTestController(t)
	seedSales(t, src)
	require.NoError(t, src.WriteFormula("B5", "=SUM(B2:B4)"))
	require.NoError(t, src.SetFont("A1:B1", Font{Bold: true}))
	require.NoError(t, src.SetFill("B2", Fill{Color: "FFFF00"}))
	require.NoError(t, src.MergeCells("A1:B1"))
	require.NoError(t, src.SetColumnWidth("A", 18))
	require.NoError(t, src.SetRowHeight(1, 24))
	require.NoError(t, src.Save(path))

	dst := NewController(nil)
	require.NoError(t, dst.Load(path))

	v, err := dst.ReadCell("A2")
	require.NoError(t, err)
	assert.Equal(t, "north", v)

	v, err = dst.ReadCell("B3")
	require.NoError(t, err)
	assert.Equal(t, 250.0, v)

	f, err := dst.ReadFormula("B5")
	require.NoError(t, err)
	assert.Equal(t, "SUM(B2:B4)", f)

	sheet := dst.wb.Sheet(dst.active)
	require.Len(t, sheet.Merges, 1)
	assert.Equal(t, "A1:B1", sheet.Merges[0].String())
	assert.Equal(t, path, dst.SourcePath())

	t.Run("styles survive the round trip", func(t *testing.T) {
		header := sheet.at(Ref{Row: 1, Col: 1})
		require.NotNil(t, header.Style)
		require.NotNil(t, header.Style.Font)
		assert.True(t, header.Style.Font.Bold)

		filled := sheet.at(Ref{Row: 2, Col: 2})
		require.NotNil(t, filled.Style)
		require.NotNil(t, filled.Style.Fill)
		assert.Equal(t, "FFFF00", filled.Style.Fill.Color)

		plain := sheet.at(Ref{Row: 3, Col: 1})
		assert.Nil(t, plain.Style)
	})

	t.Run("dimension overrides survive the round trip", func(t *testing.T) {
		assert.InDelta(t, 18.0, sheet.ColWidths[1], 0.01)
		assert.InDelta(t, 24.0, sheet.RowHeights[1], 0.1)
		assert.NotContains(t, sheet.ColWidths, 2)
	})
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	src := newTestController(t)
	seedSales(t, src)
	require.NoError(t, src.ExportCSV(path))

	dst := NewController(nil)
	require.NoError(t, dst.Load(path))

	got, err := dst.ReadRange("A1:B4")
	require.NoError(t, err)
	want := [][]any{
		{"region", "sales"},
		{"north", 100.0},
		{"south", 250.0},
		{"east", 175.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("csv round trip (-want +got):\n%s", diff)
	}
}

type recordingSink struct {
	recs []ChangeRecord
	fail bool
}

func (s *recordingSink) Record(rec ChangeRecord) error {
	if s.fail {
		return assert.AnError
	}
	s.recs = append(s.recs, rec)
	return nil
}

func TestChangeSink(t *testing.T) {
	t.Run("committed records reach the sink", func(t *testing.T) {
		sink := &recordingSink{}
		c := NewController(nil, WithSink(sink))
		require.NoError(t, c.New())
		require.NoError(t, c.WriteCell("A1", 1.0))
		require.Len(t, sink.recs, 2) // load + write
		assert.Equal(t, OpWriteCell, sink.recs[1].Op)
	})

	t.Run("sink failure never fails the operation", func(t *testing.T) {
		c := NewController(nil, WithSink(&recordingSink{fail: true}))
		require.NoError(t, c.New())
		require.NoError(t, c.WriteCell("A1", 1.0))
	})
}
