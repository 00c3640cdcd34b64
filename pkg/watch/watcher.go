// Package watch re-runs a scenario whenever its file changes.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/epiflow/epiflow/pkg/logging"
)

// Handler is called with the changed file. Its context is canceled when a
// newer change arrives or the watcher stops.
type Handler func(ctx context.Context, path string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before the handler runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) { w.logger = logging.OrDiscard(l) }
}

// WithErrorHandler is called with handler and watch errors.
func WithErrorHandler(fn func(path string, err error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// Watcher monitors files for changes and triggers the handler.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.Mutex
	debounce time.Duration
	logger   *log.Logger
	onChange Handler
	onError  func(path string, err error)

	// cancel stops the handler currently running, if any.
	cancel context.CancelFunc
}

type fileState struct {
	lastModified time.Time
	size         int64
}

// NewWatcher creates a new file watcher.
func NewWatcher(onChange Handler, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: 500 * time.Millisecond,
		logger:   logging.Discard(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch starts watching a file for changes.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}
	w.mu.Unlock()

	// Editors often replace files on save, so watch the directory.
	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	w.logger.Info("watching", "path", absPath)
	return nil
}

// Run starts the watch loop. Blocks until ctx is canceled. Handler calls
// never overlap: a change arriving mid-run cancels that run and the
// handler is called again once it returns.
func (w *Watcher) Run(ctx context.Context) error {
	changes := make(chan string, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.execute(ctx, changes)
	}()
	defer wg.Wait()

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			_, watched := w.files[absPath]
			w.mu.Unlock()
			if !watched {
				continue
			}

			if t, ok := timers[absPath]; ok {
				t.Stop()
			}
			timers[absPath] = time.AfterFunc(w.debounce, func() {
				w.enqueue(absPath, changes)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.fail("", err)
		}
	}
}

// enqueue schedules a handler call if the file really changed.
func (w *Watcher) enqueue(path string, changes chan<- string) {
	stat, err := os.Stat(path)
	if err != nil {
		w.fail(path, err)
		return
	}

	w.mu.Lock()
	state := w.files[path]
	if stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size {
		w.mu.Unlock()
		return
	}
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	w.logger.Info("change detected", "path", path)
	select {
	case changes <- path:
	default:
	}
}

func (w *Watcher) execute(ctx context.Context, changes <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-changes:
			runCtx, cancel := context.WithCancel(ctx)
			w.mu.Lock()
			w.cancel = cancel
			w.mu.Unlock()

			err := w.onChange(runCtx, path)

			w.mu.Lock()
			w.cancel = nil
			w.mu.Unlock()
			cancel()

			if err != nil {
				w.fail(path, err)
			}
		}
	}
}

func (w *Watcher) fail(path string, err error) {
	w.logger.Error("watch", "path", path, "err", err)
	if w.onError != nil {
		w.onError(path, err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
