// Package dispatch maps tool names to implementations over the
// document controller. The tool table is closed at construction and
// cross-checked against the skill registry so a skill can never
// advertise a tool that does not exist.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"sheetnerd/internal/cache"
	"sheetnerd/internal/document"
	"sheetnerd/internal/sandbox"
	"sheetnerd/internal/skill"
)

// Dispatcher validates and executes tool invocations.
type Dispatcher struct {
	log     *zap.Logger
	ctrl    *document.Controller
	results *cache.Cache
	exec    sandbox.Executor

	tools map[string]*Tool
}

// NewDispatcher builds the tool table over ctrl and verifies that every
// tool the registry's skills advertise actually exists.
func NewDispatcher(log *zap.Logger, ctrl *document.Controller, results *cache.Cache,
	exec sandbox.Executor, reg *skill.Registry) (*Dispatcher, error) {

	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		log:     log,
		ctrl:    ctrl,
		results: results,
		exec:    exec,
		tools:   make(map[string]*Tool),
	}
	for _, t := range d.builtinTools() {
		if _, dup := d.tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		d.tools[t.Name] = t
	}

	if reg != nil {
		for _, name := range reg.AllTools() {
			if _, ok := d.tools[name]; !ok {
				return nil, fmt.Errorf("skill registry advertises unknown tool %q", name)
			}
		}
	}
	return d, nil
}

// Tools returns the registered tool names, sorted.
func (d *Dispatcher) Tools() []string {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named tool's metadata.
func (d *Dispatcher) Lookup(name string) (*Tool, bool) {
	t, ok := d.tools[name]
	return t, ok
}

// Invoke runs one tool. Read tools are served from the result cache
// when the document version has not moved since the result was
// computed; write tools always execute.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := d.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	for _, req := range tool.Required {
		if _, present := args[req]; !present {
			return nil, fmt.Errorf("%w: %s (tool %s)", ErrMissingArgument, req, name)
		}
	}

	// Reads during an open transaction are served from the
	// pre-transaction state; caching them is skipped outright so a slot
	// keyed on the unmoved version can never hold transactional data.
	cacheable := tool.Kind == KindRead && !tool.NoCache && d.results != nil &&
		d.ctrl != nil && !d.ctrl.InTransaction()
	var key cache.Key
	if cacheable {
		version := d.ctrl.Version()
		key = cache.Key{
			DocID:       d.ctrl.ID(),
			Op:          name,
			Fingerprint: fingerprintArgs(d.ctrl.ActiveSheet(), args),
			Version:     version,
		}
		if v, hit := d.results.Get(key, version); hit {
			d.log.Debug("tool cache hit",
				zap.String("tool", name), zap.Uint64("version", version))
			return v, nil
		}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	if err != nil {
		d.log.Warn("tool failed",
			zap.String("tool", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	d.log.Debug("tool executed",
		zap.String("tool", name),
		zap.Duration("elapsed", time.Since(start)))

	// Only cache if the document did not move and no transaction opened
	// while we computed; a concurrent write would otherwise poison the
	// new version's slot.
	if cacheable && d.ctrl.Version() == key.Version && !d.ctrl.InTransaction() {
		d.results.Put(key, result)
	}
	return result, nil
}

// fingerprintArgs hashes the arguments plus the active sheet. Read
// results depend on which sheet is active, and switching sheets does
// not bump the version, so the sheet has to be part of the key.
func fingerprintArgs(sheet string, args map[string]any) uint64 {
	keyed := make(map[string]any, len(args)+1)
	for k, v := range args {
		keyed[k] = v
	}
	keyed["__sheet"] = sheet
	return cache.Fingerprint(keyed)
}
