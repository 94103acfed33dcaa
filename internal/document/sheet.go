package document

import (
	"fmt"

	"go.uber.org/zap"
)

// Sheet management. Create, delete and rename are versioned mutations;
// switching the active sheet only invalidates the snapshot.

// SwitchSheet makes the named sheet active. The snapshot is rebuilt on
// the next read but the version does not move: no data changed.
func (c *Controller) SwitchSheet(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	if c.wb.Sheet(name) == nil {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	if c.active == name {
		return nil
	}
	c.active = name
	c.dirty = true
	c.log.Debug("active sheet switched", zap.String("sheet", name))
	return nil
}

// CreateSheet adds an empty sheet and makes it active.
func (c *Controller) CreateSheet(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	if name == "" {
		return fmt.Errorf("%w: empty sheet name", ErrInvalidReference)
	}
	if c.wb.Sheet(name) != nil {
		return fmt.Errorf("%w: %q", ErrSheetExists, name)
	}
	c.wb.addSheet(newSheet(name))
	c.active = name
	c.commit(ChangeRecord{Op: OpCreateSheet, Sheet: name})
	return nil
}

// DeleteSheet removes the named sheet. The last sheet of a workbook
// cannot be deleted. If the active sheet goes away, the first remaining
// sheet becomes active.
func (c *Controller) DeleteSheet(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	if c.wb.Sheet(name) == nil {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	if len(c.wb.sheets) == 1 {
		return ErrLastSheet
	}
	c.wb.removeSheet(name)
	if c.active == name {
		c.active = c.wb.sheets[0].Name
	}
	c.commit(ChangeRecord{Op: OpDeleteSheet, Sheet: name})
	return nil
}

// RenameSheet changes a sheet's name in place, preserving its position
// and contents.
func (c *Controller) RenameSheet(oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	sheet := c.wb.Sheet(oldName)
	if sheet == nil {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, oldName)
	}
	if newName == "" {
		return fmt.Errorf("%w: empty sheet name", ErrInvalidReference)
	}
	if c.wb.Sheet(newName) != nil {
		return fmt.Errorf("%w: %q", ErrSheetExists, newName)
	}
	sheet.Name = newName
	if c.active == oldName {
		c.active = newName
	}
	c.commit(ChangeRecord{
		Op: OpRenameSheet, Sheet: newName,
		Before: oldName, After: newName,
	})
	return nil
}

// SheetNames returns the workbook's sheet names in order.
func (c *Controller) SheetNames() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wb == nil {
		return nil, ErrNotLoaded
	}
	return c.wb.SheetNames(), nil
}
