// Package watch notifies subscribers when files on disk change. Nodes that
// cache data read from files use it to invalidate their entries when the file
// is edited outside the graph.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jonwraymond/nodecache/observe"
)

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("watch: watcher closed")

// Func is called with the cleaned path of a file that changed.
type Func func(path string)

// Watcher multiplexes one fsnotify watcher across file subscriptions. It
// watches parent directories so that editors that replace files by rename are
// still seen.
//
// Contract:
//   - Concurrency: safe for concurrent use. Callbacks run on the Run goroutine
//     and must not block.
//   - Lifecycle: events are only delivered while Run is running.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger observe.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]Func
	dirs   map[string]int
	next   uint64
	closed bool
}

// New creates a Watcher. A nil logger discards.
func New(logger observe.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Watcher{
		fs:     fw,
		logger: logger,
		subs:   make(map[string]map[uint64]Func),
		dirs:   make(map[string]int),
	}, nil
}

// Watch subscribes fn to changes of path. The returned cancel func removes the
// subscription and is safe to call more than once.
func (w *Watcher) Watch(path string, fn Func) (cancel func(), err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return nil, fmt.Errorf("watch: add %s: %w", dir, err)
		}
		w.logger.Debug(context.Background(), "watching dir", observe.Field{Key: "dir", Value: dir})
	}
	w.dirs[dir]++

	id := w.next
	w.next++
	if w.subs[abs] == nil {
		w.subs[abs] = make(map[uint64]Func)
	}
	w.subs[abs][id] = fn

	var once sync.Once
	return func() { once.Do(func() { w.unwatch(abs, dir, id) }) }, nil
}

func (w *Watcher) unwatch(abs, dir string, id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.subs[abs], id)
	if len(w.subs[abs]) == 0 {
		delete(w.subs, abs)
	}
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return
	}
	delete(w.dirs, dir)
	if w.closed {
		return
	}
	if err := w.fs.Remove(dir); err != nil {
		w.logger.Warn(context.Background(), "failed to unwatch dir",
			observe.Field{Key: "dir", Value: dir},
			observe.Field{Key: "error", Value: err},
		)
	}
}

// Subscriptions returns the number of active subscriptions.
func (w *Watcher) Subscriptions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, s := range w.subs {
		n += len(s)
	}
	return n
}

// Run delivers events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.dispatch(ctx, ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "fsnotify error", observe.Field{Key: "error", Value: err})
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	fns := make([]Func, 0, len(w.subs[path]))
	for _, fn := range w.subs[path] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	w.logger.Debug(ctx, "file changed",
		observe.Field{Key: "file", Value: path},
		observe.Field{Key: "op", Value: ev.Op.String()},
	)
	for _, fn := range fns {
		fn(path)
	}
}

// Close stops the watcher. Run returns once Close completes.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.fs.Close()
}
