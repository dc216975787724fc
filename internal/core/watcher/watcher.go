package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"repoctx/internal/shared/observability"
	"repoctx/internal/shared/util"

	"github.com/fsnotify/fsnotify"
)

// Change is one settled file change. Path is absolute, Rel is slash-separated
// and relative to the watched root.
type Change struct {
	Path    string
	Rel     string
	Removed bool
}

type Options struct {
	Filter *util.PathFilter
	// Supported reports whether a file path has an extractor.
	Supported func(path string) bool
	Debounce  time.Duration
	// RatePerSecond and Burst bound re-extractions across all files. A
	// non-positive rate disables the global limit.
	RatePerSecond float64
	Burst         int
}

type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	filter     *util.PathFilter
	supported  func(string) bool
	debounce   time.Duration
	limiter    *util.Limiter
	perPath    *util.LimiterRegistry
	onChange   func(context.Context, []Change)
	callbackMu sync.Mutex

	ctx       context.Context
	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer
}

func NewWatcher(opts Options, onChange func(context.Context, []Change)) (*Watcher, error) {
	if onChange == nil || opts.Filter == nil {
		return nil, os.ErrInvalid
	}
	if opts.Supported == nil {
		opts.Supported = func(string) bool { return true }
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// One re-extraction per file per debounce window.
	perPathRate := 1 / opts.Debounce.Seconds()
	return &Watcher{
		fsWatcher: fsw,
		filter:    opts.Filter,
		supported: opts.Supported,
		debounce:  opts.Debounce,
		limiter:   util.NewLimiter(opts.RatePerSecond, opts.Burst),
		perPath:   util.NewLimiterRegistry(perPathRate, 1, time.Minute),
		onChange:  onChange,
		ctx:       context.Background(),
		pending:   make(map[string]time.Time),
	}, nil
}

// Watch registers the filter root recursively and processes events in the
// background until ctx is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) error {
	w.pendingMu.Lock()
	w.ctx = ctx
	w.pendingMu.Unlock()

	if err := w.watchRecursive(w.filter.Root()); err != nil {
		return err
	}
	go w.perPath.Run(ctx)
	go w.run(ctx)
	slog.Info("watching for changes", "root", w.filter.Root(), "debounce", w.debounce)
	return nil
}

// Run is Watch followed by blocking until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Watch(ctx); err != nil {
		w.Close()
		return err
	}
	<-ctx.Done()
	return w.Close()
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	observability.WatcherEventsTotal.Inc()

	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if w.filter.ExcludedAbs(event.Name, true) {
				return
			}
			if err := w.watchRecursive(event.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
				return
			}
			w.enqueueExistingFiles(event.Name)
			return
		}
	}

	if !w.accepts(event.Name) {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.scheduleChange(event.Name)
	}
}

func (w *Watcher) accepts(path string) bool {
	return w.supported(path) && !w.filter.ExcludedAbs(path, false)
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.filter.Root() && w.filter.ExcludedAbs(path, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.accepts(path) {
			w.scheduleChange(path)
		}
		return nil
	})
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()
	w.resetTimerLocked()
}

func (w *Watcher) resetTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	ctx := w.ctx
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	if len(paths) == 0 || ctx.Err() != nil {
		return
	}
	sort.Strings(paths)

	var ready []Change
	var deferred []string
	for _, path := range paths {
		if !w.perPath.Get(path).Allow(1) || !w.limiter.Allow(1) {
			deferred = append(deferred, path)
			continue
		}
		rel, err := w.filter.Rel(path)
		if err != nil {
			continue
		}
		_, statErr := os.Stat(path)
		ready = append(ready, Change{Path: path, Rel: rel, Removed: os.IsNotExist(statErr)})
	}

	if len(deferred) > 0 {
		observability.WatcherThrottledTotal.Add(float64(len(deferred)))
		slog.Debug("re-extraction throttled", "files", len(deferred))
		w.pendingMu.Lock()
		now := time.Now()
		for _, path := range deferred {
			if _, ok := w.pending[path]; !ok {
				w.pending[path] = now
			}
		}
		w.resetTimerLocked()
		w.pendingMu.Unlock()
	}

	if len(ready) > 0 {
		w.callbackMu.Lock()
		defer w.callbackMu.Unlock()
		w.onChange(ctx, ready)
	}
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}
