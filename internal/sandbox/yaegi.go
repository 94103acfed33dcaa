package sandbox

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// YaegiExecutor interprets snippets with yaegi instead of compiling
// them. No filesystem, network, exec or unsafe access: those packages
// are simply not on the whitelist, so their imports are rejected before
// the interpreter ever sees the code.
type YaegiExecutor struct {
	log     *zap.Logger
	budget  Budget
	allowed map[string]bool
}

// ExecutorOption configures a YaegiExecutor.
type ExecutorOption func(*YaegiExecutor)

// WithBudget sets the executor's default budget, applied to every
// request that does not carry its own. Zero fields keep the package
// defaults.
func WithBudget(b Budget) ExecutorOption {
	return func(e *YaegiExecutor) {
		if b.Timeout > 0 {
			e.budget.Timeout = b.Timeout
		}
		if b.MaxOutputBytes > 0 {
			e.budget.MaxOutputBytes = b.MaxOutputBytes
		}
		if b.MaxMemoryBytes > 0 {
			e.budget.MaxMemoryBytes = b.MaxMemoryBytes
		}
	}
}

// NewYaegiExecutor creates an executor with the default import
// whitelist.
func NewYaegiExecutor(log *zap.Logger, opts ...ExecutorOption) *YaegiExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &YaegiExecutor{
		log:    log,
		budget: DefaultBudget(),
		allowed: map[string]bool{
			"errors":          true,
			"fmt":             true,
			"math":            true,
			"regexp":          true,
			"sort":            true,
			"strconv":         true,
			"strings":         true,
			"time":            true,
			"unicode":         true,
			"unicode/utf8":    true,
			"encoding/json":   true,
			"encoding/base64": true,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one snippet. The snippet must define
//
//	func Run(data [][]any) (any, error)
//
// which receives a value copy of the request data.
func (e *YaegiExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	if err := e.validateImports(req.Code); err != nil {
		return Response{}, err
	}
	budget := req.Budget
	if budget.Timeout <= 0 {
		budget.Timeout = e.budget.Timeout
	}
	if budget.MaxOutputBytes <= 0 {
		budget.MaxOutputBytes = e.budget.MaxOutputBytes
	}
	if budget.MaxMemoryBytes <= 0 {
		budget.MaxMemoryBytes = e.budget.MaxMemoryBytes
	}

	stdout := &limitWriter{limit: budget.MaxOutputBytes}
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stdout})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Response{}, fmt.Errorf("%w: load stdlib: %v", ErrRuntimeFault, err)
	}

	if _, err := i.Eval(wrapCode(req.Code)); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrRuntimeFault, err)
	}
	entry, err := i.Eval("main.Run")
	if err != nil {
		return Response{}, ErrNoEntrypoint
	}
	run, ok := entry.Interface().(func([][]any) (any, error))
	if !ok {
		return Response{}, ErrNoEntrypoint
	}

	ctx, cancel := context.WithTimeout(ctx, budget.Timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", ErrRuntimeFault, r)}
			}
		}()
		result, err := run(req.Data)
		done <- outcome{result: result, err: err}
	}()

	var baseline runtime.MemStats
	if budget.MaxMemoryBytes > 0 {
		runtime.ReadMemStats(&baseline)
	}
	heapCheck := time.NewTicker(25 * time.Millisecond)
	defer heapCheck.Stop()

	for {
		select {
		case out := <-done:
			if out.err != nil {
				return Response{Stdout: stdout.String()}, out.err
			}
			if stdout.truncated() {
				return Response{Result: out.result, Stdout: stdout.String()}, ErrOutputTruncated
			}
			return Response{Result: out.result, Stdout: stdout.String()}, nil
		case <-heapCheck.C:
			if budget.MaxMemoryBytes <= 0 {
				continue
			}
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			grown := int64(ms.HeapAlloc) - int64(baseline.HeapAlloc)
			if grown > budget.MaxMemoryBytes {
				// Same abandonment as a timeout: the goroutine cannot
				// be killed, its eventual result is dropped.
				e.log.Warn("sandbox execution abandoned",
					zap.Int64("heap_growth", grown),
					zap.Int64("budget", budget.MaxMemoryBytes))
				return Response{}, fmt.Errorf("%w: heap grew %d bytes", ErrMemoryExceeded, grown)
			}
		case <-ctx.Done():
			// The interpreter goroutine cannot be killed; it is abandoned
			// and its eventual result dropped on the floor.
			e.log.Warn("sandbox execution abandoned",
				zap.Duration("timeout", budget.Timeout))
			return Response{}, fmt.Errorf("%w after %s", ErrTimeout, budget.Timeout)
		}
	}
}

// validateImports rejects any import outside the whitelist before the
// code reaches the interpreter.
func (e *YaegiExecutor) validateImports(code string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if pkg := importPath(trimmed); pkg != "" {
				imports = append(imports, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			if pkg := importPath(strings.TrimPrefix(trimmed, "import ")); pkg != "" {
				imports = append(imports, pkg)
			}
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !e.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("%w: %s", ErrForbiddenImport, strings.Join(forbidden, ", "))
	}
	return nil
}

// importPath extracts the quoted path from an import line, handling
// aliased imports ("j \"encoding/json\"").
func importPath(line string) string {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return ""
	}
	rest := line[start+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// wrapCode adds the package clause when the snippet omits it.
func wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}

// limitWriter captures output up to a byte limit and records overflow
// instead of failing the write, so snippets keep running and callers
// decide what to do with the truncation.
type limitWriter struct {
	mu    sync.Mutex
	buf   strings.Builder
	limit int
	over  bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	remain := w.limit - w.buf.Len()
	if remain <= 0 {
		w.over = true
		return len(p), nil
	}
	if len(p) > remain {
		w.buf.Write(p[:remain])
		w.over = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *limitWriter) truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.over
}
