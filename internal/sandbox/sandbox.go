// Package sandbox interprets user-supplied Go snippets against a copy
// of sheet data. Interpretation avoids compiling untrusted code and
// keeps the blast radius small: only whitelisted stdlib packages are
// importable, output is capped, and every run carries a deadline.
package sandbox

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrForbiddenImport is returned before execution when the snippet
	// imports a package outside the whitelist.
	ErrForbiddenImport = errors.New("forbidden import")

	// ErrNoEntrypoint is returned when the snippet does not define
	// func Run(data [][]any) (any, error).
	ErrNoEntrypoint = errors.New("entrypoint Run not found or has wrong signature")

	// ErrTimeout is returned when the run exceeds its budget. The
	// interpreter goroutine is abandoned; its result is discarded.
	ErrTimeout = errors.New("execution timed out")

	// ErrOutputTruncated is returned when the snippet prints more than
	// the output budget allows.
	ErrOutputTruncated = errors.New("output budget exceeded")

	// ErrMemoryExceeded is returned when heap growth during the run
	// passes the memory budget. The run is abandoned like a timeout.
	ErrMemoryExceeded = errors.New("memory budget exceeded")

	// ErrRuntimeFault is returned when the snippet panics or fails to
	// evaluate.
	ErrRuntimeFault = errors.New("runtime fault")
)

// Budget bounds one execution. The memory ceiling tracks process-wide
// heap growth while the snippet runs; the interpreter has no per-run
// accounting, so it is an approximation, not an allocator limit.
type Budget struct {
	Timeout        time.Duration
	MaxOutputBytes int
	MaxMemoryBytes int64
}

// DefaultBudget matches the configuration defaults.
func DefaultBudget() Budget {
	return Budget{
		Timeout:        5 * time.Second,
		MaxOutputBytes: 1 << 20,
		MaxMemoryBytes: 256 << 20,
	}
}

// Request is one snippet run. Data is a value copy of the region the
// snippet may read; the document itself is never reachable from inside
// the interpreter.
type Request struct {
	Code   string
	Data   [][]any
	Budget Budget
}

// Response carries the snippet's return value and captured stdout.
type Response struct {
	Result any
	Stdout string
}

// Executor runs snippets. The zero implementation is NewYaegiExecutor.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}
