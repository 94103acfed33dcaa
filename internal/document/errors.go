package document

import "errors"

// Operation-time errors. All are recoverable: the controller never
// partially applies a failed operation, so callers may retry or pick a
// different tool.
var (
	// ErrNotLoaded is returned when no workbook has been loaded yet.
	ErrNotLoaded = errors.New("no workbook loaded")

	// ErrInvalidReference is returned for malformed cell or range
	// references. The wrapping message always names the offending text.
	ErrInvalidReference = errors.New("invalid cell reference")

	// ErrIOFailure is returned when loading or saving fails. State
	// (dirty, version) is left unchanged so the caller can retry.
	ErrIOFailure = errors.New("i/o failure")

	// ErrUnsupportedFormat is returned for file extensions the
	// controller cannot read or write.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrTransactionOpen is returned by Begin when a transaction is
	// already open. Transactions do not nest.
	ErrTransactionOpen = errors.New("transaction already open")

	// ErrNoTransaction is returned by Commit/Rollback without Begin.
	ErrNoTransaction = errors.New("no open transaction")

	// ErrSheetNotFound is returned when addressing an unknown sheet.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrSheetExists is returned when creating a duplicate sheet name.
	ErrSheetExists = errors.New("sheet already exists")

	// ErrLastSheet is returned when deleting the only remaining sheet.
	ErrLastSheet = errors.New("cannot delete the last sheet")

	// ErrNoSourcePath is returned by SaveToOriginal for workbooks that
	// were created in memory rather than loaded from a file.
	ErrNoSourcePath = errors.New("workbook has no source path")
)
