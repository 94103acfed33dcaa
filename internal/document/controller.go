package document

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller owns one open workbook and mediates every read and write
// against it. It keeps two representations in sync lazily: the write
// model (full fidelity, always current) and a column-oriented read
// snapshot that is rebuilt on the first read after a mutation.
//
// Every committed mutation bumps the version counter exactly once;
// loading starts the counter over at zero. Readers during an open
// transaction keep seeing the pre-transaction state; the version only
// moves on commit.
type Controller struct {
	id  string
	log *zap.Logger

	mu         sync.RWMutex
	wb         *Workbook
	active     string
	sourcePath string

	version  uint64
	dirty    bool
	snapshot *Snapshot

	changes *ChangeLog
	sink    Sink

	tx *transaction

	previewRows int
}

// Option configures a Controller.
type Option func(*Controller)

// WithSink attaches a durable sink for committed change records.
func WithSink(s Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// SetSink attaches or replaces the change sink. Useful when the sink
// needs the controller's ID before it can be opened.
func (c *Controller) SetSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

// WithPreviewRows overrides the default preview window of 10 rows.
func WithPreviewRows(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.previewRows = n
		}
	}
}

// WithChangeLogPayloadLimit caps region payloads in change records.
func WithChangeLogPayloadLimit(cells int) Option {
	return func(c *Controller) { c.changes = NewChangeLog(cells) }
}

// NewController creates a controller with no workbook loaded.
func NewController(log *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		id:          uuid.NewString(),
		log:         log,
		changes:     NewChangeLog(64),
		previewRows: 10,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("doc_id", c.id))
	return c
}

// ID returns the controller's stable document identifier.
func (c *Controller) ID() string { return c.id }

// Version returns the current document version. It changes exactly
// once per committed mutation and never decreases.
func (c *Controller) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Loaded reports whether a workbook is open.
func (c *Controller) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wb != nil
}

// SourcePath returns the file the workbook was loaded from, or "".
func (c *Controller) SourcePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sourcePath
}

// ActiveSheet returns the name of the active sheet.
func (c *Controller) ActiveSheet() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// New creates a fresh in-memory workbook with one blank sheet,
// replacing any currently open one.
func (c *Controller) New() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return ErrTransactionOpen
	}
	c.wb = NewWorkbook()
	c.active = c.wb.sheets[0].Name
	c.sourcePath = ""
	c.resetAfterLoad(ChangeRecord{Op: OpLoad, Sheet: c.active, Summary: "new workbook"})
	c.log.Info("workbook created")
	return nil
}

// Load opens a workbook from path, replacing any currently open one.
// Supported formats are .xlsx, .xlsm and .csv. On failure the current
// state is left untouched.
func (c *Controller) Load(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return ErrTransactionOpen
	}

	var (
		wb  *Workbook
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		wb, err = loadXLSX(path)
	case ".csv":
		wb, err = loadCSV(path)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrIOFailure, path, err)
	}

	c.wb = wb
	c.active = wb.sheets[0].Name
	c.sourcePath = path
	c.resetAfterLoad(ChangeRecord{Op: OpLoad, Sheet: c.active, Target: path,
		Summary: fmt.Sprintf("loaded %d sheet(s)", len(wb.sheets))})
	c.log.Info("workbook loaded",
		zap.String("path", path),
		zap.Int("sheets", len(wb.sheets)))
	return nil
}

// resetAfterLoad puts the counters into their post-load state: version
// zero, nothing dirty, no snapshot yet. The load itself is recorded but
// is not a mutation; the first write after it lands at version one.
// Callers must hold c.mu.
func (c *Controller) resetAfterLoad(rec ChangeRecord) {
	c.version = 0
	c.dirty = false
	c.snapshot = nil
	rec.Version = c.version
	c.emit(c.changes.append(rec))
}

// Reload re-reads the workbook from its source path, discarding
// in-memory changes. Used after an external modification is detected.
func (c *Controller) Reload() error {
	c.mu.RLock()
	path := c.sourcePath
	c.mu.RUnlock()
	if path == "" {
		return ErrNoSourcePath
	}
	return c.Load(path)
}

// ---- reads ----

// Snapshot returns the read representation of the active sheet,
// rebuilding it first if a mutation has happened since the last read.
// The rebuild happens at most once per dirty period.
func (c *Controller) Snapshot() (*Snapshot, error) {
	c.mu.RLock()
	if c.wb == nil {
		c.mu.RUnlock()
		return nil, ErrNotLoaded
	}
	if !c.dirty && c.snapshot != nil {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return nil, ErrNotLoaded
	}
	if c.dirty || c.snapshot == nil {
		c.snapshot = buildSnapshot(c.readSource(), c.version)
		c.dirty = false
		c.log.Debug("snapshot rebuilt",
			zap.Uint64("version", c.version),
			zap.Int("rows", c.snapshot.Rows),
			zap.Int("cols", c.snapshot.Cols))
	}
	return c.snapshot, nil
}

// readSource picks the sheet reads are served from. During an open
// transaction the pre-transaction copy is used so readers never observe
// uncommitted writes. Callers must hold c.mu.
func (c *Controller) readSource() *Sheet {
	if c.tx != nil {
		if s := c.tx.savedWb.Sheet(c.active); s != nil {
			return s
		}
	}
	return c.wb.Sheet(c.active)
}

// ReadCell returns the value at ref on the active sheet. Formula cells
// return their cached value. During an open transaction the
// pre-transaction value is returned.
func (c *Controller) ReadCell(ref string) (any, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wb == nil {
		return nil, ErrNotLoaded
	}
	return c.readSource().at(r).Value, nil
}

// ReadFormula returns the formula text at ref, without the leading "=",
// or "" for value cells.
func (c *Controller) ReadFormula(ref string) (string, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wb == nil {
		return "", ErrNotLoaded
	}
	return c.readSource().at(r).Formula, nil
}

// ReadRange returns the values of a rectangular region, row-major.
func (c *Controller) ReadRange(rng string) ([][]any, error) {
	r, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wb == nil {
		return nil, ErrNotLoaded
	}
	sheet := c.readSource()
	out := make([][]any, 0, r.End.Row-r.Start.Row+1)
	for row := r.Start.Row; row <= r.End.Row; row++ {
		vals := make([]any, 0, r.End.Col-r.Start.Col+1)
		for col := r.Start.Col; col <= r.End.Col; col++ {
			vals = append(vals, sheet.at(Ref{Row: row, Col: col}).Value)
		}
		out = append(out, vals)
	}
	return out, nil
}

// FormulaEntry pairs a cell address with its formula text.
type FormulaEntry struct {
	Ref     string `json:"ref"`
	Formula string `json:"formula"`
}

// ListFormulas returns every formula cell on the active sheet in
// row-major order.
func (c *Controller) ListFormulas() ([]FormulaEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wb == nil {
		return nil, ErrNotLoaded
	}
	sheet := c.readSource()
	var out []FormulaEntry
	for i, row := range sheet.Cells {
		for j, cell := range row {
			if cell.Formula != "" {
				out = append(out, FormulaEntry{
					Ref:     Ref{Row: i + 1, Col: j + 1}.String(),
					Formula: cell.Formula,
				})
			}
		}
	}
	return out, nil
}

// SheetInfo describes one sheet for Structure.
type SheetInfo struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	Active bool   `json:"active"`
}

// Structure describes the open workbook.
type Structure struct {
	Source  string      `json:"source,omitempty"`
	Version uint64      `json:"version"`
	Sheets  []SheetInfo `json:"sheets"`
}

// Structure returns workbook shape metadata.
func (c *Controller) Structure() (Structure, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wb == nil {
		return Structure{}, ErrNotLoaded
	}
	st := Structure{Source: c.sourcePath, Version: c.version}
	for _, s := range c.wb.sheets {
		st.Sheets = append(st.Sheets, SheetInfo{
			Name:   s.Name,
			Rows:   s.Rows(),
			Cols:   s.Cols(),
			Active: s.Name == c.active,
		})
	}
	return st, nil
}

// Preview renders the first rows of the active sheet as display
// strings, header row included. The window size comes from
// WithPreviewRows.
func (c *Controller) Preview() ([][]string, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	rows := snap.Rows
	if rows > c.previewRows {
		rows = c.previewRows
	}
	out := make([][]string, 0, rows)
	if rows > 0 {
		out = append(out, append([]string(nil), snap.Headers...))
	}
	for n := 1; n < rows; n++ {
		vals, _ := snap.Row(n)
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = DisplayString(v)
		}
		out = append(out, row)
	}
	return out, nil
}

// ChangesSince returns committed change records with Seq > afterSeq.
func (c *Controller) ChangesSince(afterSeq uint64) []ChangeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ChangeRecord(nil), c.changes.Since(afterSeq)...)
}

// ---- writes ----

// WriteCell sets a literal value at ref, clearing any formula there.
func (c *Controller) WriteCell(ref string, value any) error {
	r, err := ParseRef(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	sheet := c.wb.Sheet(c.active)
	before := sheet.at(r).Value
	cell := sheet.cell(r)
	cell.Value = value
	cell.Formula = ""
	c.commit(ChangeRecord{
		Op: OpWriteCell, Sheet: c.active, Target: r.String(),
		Before: before, After: value,
	})
	return nil
}

// WriteRange writes a block of values anchored at the top-left corner
// of rng, row-major. The grid grows as needed. All-or-nothing: the
// reference is validated before any cell is touched.
func (c *Controller) WriteRange(rng string, values [][]any) error {
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

	rows := len(values)
	cols := 0
	for _, row := range values {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if rows == 0 || cols == 0 {
		return nil
	}
	extent := Range{
		Start: r.Start,
		End:   Ref{Row: r.Start.Row + rows - 1, Col: r.Start.Col + cols - 1},
	}
	before := c.changes.regionPayload(sheet, extent)

	for i, row := range values {
		for j, v := range row {
			cell := sheet.cell(Ref{Row: r.Start.Row + i, Col: r.Start.Col + j})
			cell.Value = v
			cell.Formula = ""
		}
	}
	c.commit(ChangeRecord{
		Op: OpWriteRange, Sheet: c.active, Target: extent.String(),
		Before: before, After: c.changes.regionPayload(sheet, extent),
		Summary: fmt.Sprintf("%d cell(s)", extent.Cells()),
	})
	return nil
}

// WriteFormula sets formula text at ref. A leading "=" is stripped; the
// cached value is cleared until the next load re-evaluates it.
func (c *Controller) WriteFormula(ref, formula string) error {
	r, err := ParseRef(ref)
	if err != nil {
		return err
	}
	formula = strings.TrimPrefix(strings.TrimSpace(formula), "=")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	sheet := c.wb.Sheet(c.active)
	before := sheet.at(r).Formula
	cell := sheet.cell(r)
	cell.Formula = formula
	cell.Value = nil
	c.commit(ChangeRecord{
		Op: OpWriteFormula, Sheet: c.active, Target: r.String(),
		Before: before, After: formula,
	})
	return nil
}

// InsertRows inserts count blank rows before row `at`. Formulas, merged
// regions and row heights on the active sheet are re-addressed.
func (c *Controller) InsertRows(at, count int) error {
	if at < 1 || count < 1 {
		return fmt.Errorf("%w: insert rows at=%d count=%d", ErrInvalidReference, at, count)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	c.wb.Sheet(c.active).insertRows(at, count)
	c.commit(ChangeRecord{
		Op: OpInsertRows, Sheet: c.active,
		Target:  fmt.Sprintf("%d", at),
		Summary: fmt.Sprintf("inserted %d row(s) before row %d", count, at),
	})
	return nil
}

// DeleteRows removes rows start..end inclusive. Formulas referencing a
// deleted row degrade to #REF!.
func (c *Controller) DeleteRows(start, end int) error {
	if start < 1 || end < start {
		return fmt.Errorf("%w: delete rows %d..%d", ErrInvalidReference, start, end)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	c.wb.Sheet(c.active).deleteRows(start, end)
	c.commit(ChangeRecord{
		Op: OpDeleteRows, Sheet: c.active,
		Target:  fmt.Sprintf("%d:%d", start, end),
		Summary: fmt.Sprintf("deleted rows %d..%d", start, end),
	})
	return nil
}

// InsertCols inserts count blank columns before column `at` (1-based).
func (c *Controller) InsertCols(at, count int) error {
	if at < 1 || count < 1 {
		return fmt.Errorf("%w: insert cols at=%d count=%d", ErrInvalidReference, at, count)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	c.wb.Sheet(c.active).insertCols(at, count)
	c.commit(ChangeRecord{
		Op: OpInsertCols, Sheet: c.active,
		Target:  ColumnLetter(at),
		Summary: fmt.Sprintf("inserted %d column(s) before %s", count, ColumnLetter(at)),
	})
	return nil
}

// DeleteCols removes columns start..end inclusive.
func (c *Controller) DeleteCols(start, end int) error {
	if start < 1 || end < start {
		return fmt.Errorf("%w: delete cols %d..%d", ErrInvalidReference, start, end)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	c.wb.Sheet(c.active).deleteCols(start, end)
	c.commit(ChangeRecord{
		Op: OpDeleteCols, Sheet: c.active,
		Target:  ColumnLetter(start) + ":" + ColumnLetter(end),
		Summary: fmt.Sprintf("deleted columns %s..%s", ColumnLetter(start), ColumnLetter(end)),
	})
	return nil
}

// ---- persistence ----

// Save writes the workbook to path, picking the codec by extension.
// Saving forces a snapshot resync but never bumps the version.
func (c *Controller) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	if c.tx != nil {
		return ErrTransactionOpen
	}

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		err = saveXLSX(c.wb, path)
	case ".csv":
		err = saveCSV(c.wb.Sheet(c.active), path)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrIOFailure, path, err)
	}

	c.snapshot = buildSnapshot(c.readSource(), c.version)
	c.dirty = false
	c.emit(c.changes.append(ChangeRecord{
		Op: OpSave, Sheet: c.active, Target: path, Version: c.version,
	}))
	c.log.Info("workbook saved", zap.String("path", path))
	return nil
}

// SaveToOriginal writes the workbook back to the file it was loaded
// from.
func (c *Controller) SaveToOriginal() error {
	c.mu.RLock()
	path := c.sourcePath
	c.mu.RUnlock()
	if path == "" {
		return ErrNoSourcePath
	}
	return c.Save(path)
}

// ExportCSV writes the active sheet's values to path as CSV.
func (c *Controller) ExportCSV(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	if err := saveCSV(c.wb.Sheet(c.active), path); err != nil {
		return fmt.Errorf("%w: export %s: %v", ErrIOFailure, path, err)
	}
	return nil
}

// ---- internals ----

// commit finalizes one mutation. Callers must hold c.mu. Inside an open
// transaction the record is buffered and version/dirty are untouched;
// otherwise the version advances exactly once, the snapshot is marked
// stale, and the record lands in the change log and sink.
func (c *Controller) commit(rec ChangeRecord) {
	if c.tx != nil {
		c.tx.pending = append(c.tx.pending, rec)
		return
	}
	c.version++
	c.dirty = true
	rec.Version = c.version
	c.emit(c.changes.append(rec))
}

// emit forwards a stored record to the sink. Sink failures are logged,
// never propagated: audit storage must not block document work.
func (c *Controller) emit(rec ChangeRecord) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Record(rec); err != nil {
		c.log.Warn("change sink rejected record",
			zap.Uint64("seq", rec.Seq),
			zap.String("op", rec.Op),
			zap.Error(err))
	}
}
