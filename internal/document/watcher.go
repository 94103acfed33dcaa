package document

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the workbook's source file for external writes and
// raises a flag the caller can poll before deciding to Reload. It never
// reloads on its own: an agent mid-conversation should not have the
// document swapped out from under it.
type Watcher struct {
	log     *zap.Logger
	fsw     *fsnotify.Watcher
	path    string
	changed atomic.Bool
	done    chan struct{}
}

// NewWatcher starts watching path. Call Close to release the watch.
func NewWatcher(log *zap.Logger, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{
		log:  log.With(zap.String("path", path)),
		fsw:  fsw,
		path: path,
		done: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				if w.changed.CompareAndSwap(false, true) {
					w.log.Info("source file changed externally")
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// SourceChanged reports whether the file was written externally since
// the last Reset.
func (w *Watcher) SourceChanged() bool { return w.changed.Load() }

// Reset clears the changed flag, typically right after a Reload.
func (w *Watcher) Reset() { w.changed.Store(false) }

// Wait blocks until an external change is seen or ctx is done. It
// reports whether a change occurred.
func (w *Watcher) Wait(ctx context.Context) bool {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if w.changed.Load() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-w.done:
			return w.changed.Load()
		case <-tick.C:
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
