package document

import (
	"fmt"

	"go.uber.org/zap"
)

// transaction buffers mutations between Begin and Commit/Rollback.
// savedWb is the pre-transaction workbook copy used both for rollback
// and as the read source while the transaction is open, so concurrent
// readers never observe uncommitted writes.
type transaction struct {
	savedWb     *Workbook
	savedActive string
	pending     []ChangeRecord
}

// Begin opens a transaction. Mutations made until Commit or Rollback
// apply to the write model immediately but stay invisible to snapshot
// readers and do not advance the version. Transactions do not nest.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wb == nil {
		return ErrNotLoaded
	}
	if c.tx != nil {
		return ErrTransactionOpen
	}
	c.tx = &transaction{
		savedWb:     c.wb.clone(),
		savedActive: c.active,
	}
	c.log.Info("transaction opened", zap.Uint64("version", c.version))
	return nil
}

// InTransaction reports whether a transaction is open.
func (c *Controller) InTransaction() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tx != nil
}

// Commit publishes all buffered mutations as a single versioned change.
// The version advances exactly once regardless of how many operations
// the transaction contained.
func (c *Controller) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil

	// An empty transaction changed nothing, so the version stays put.
	if len(tx.pending) == 0 {
		c.emit(c.changes.append(ChangeRecord{
			Op: OpTxCommit, Sheet: c.active, Version: c.version,
			Summary: "committed 0 operation(s)",
		}))
		c.log.Info("transaction committed",
			zap.Int("operations", 0),
			zap.Uint64("version", c.version))
		return nil
	}

	c.version++
	c.dirty = true
	for _, rec := range tx.pending {
		rec.Version = c.version
		c.emit(c.changes.append(rec))
	}
	c.emit(c.changes.append(ChangeRecord{
		Op: OpTxCommit, Sheet: c.active, Version: c.version,
		Summary: fmt.Sprintf("committed %d operation(s)", len(tx.pending)),
	}))
	c.log.Info("transaction committed",
		zap.Int("operations", len(tx.pending)),
		zap.Uint64("version", c.version))
	return nil
}

// Rollback discards all buffered mutations and restores the write
// model to its pre-transaction state. Version and snapshot are
// untouched: as far as readers are concerned, nothing happened.
func (c *Controller) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil

	c.wb = tx.savedWb
	c.active = tx.savedActive
	c.emit(c.changes.append(ChangeRecord{
		Op: OpTxRollback, Sheet: c.active, Version: c.version,
		Summary: fmt.Sprintf("discarded %d operation(s)", len(tx.pending)),
	}))
	c.log.Info("transaction rolled back",
		zap.Int("operations", len(tx.pending)),
		zap.Uint64("version", c.version))
	return nil
}
