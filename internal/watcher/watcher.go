// Package watcher turns fsnotify events on the vault into graph sync events.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/debounce"
	"github.com/starford/notegraph/internal/graphsync"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/storage"
)

const (
	// DefaultMoveWindow is how long a rename waits for its matching create.
	DefaultMoveWindow = 100 * time.Millisecond
	reconcileDelay    = 200 * time.Millisecond
)

// Sink receives the events the watcher produces.
type Sink interface {
	Apply(ctx context.Context, ev models.Event) (*models.Node, error)
	Reconcile(ctx context.Context) (graphsync.Stats, error)
}

// Watcher follows a vault directory tree.
type Watcher struct {
	root       string
	ext        string
	sink       Sink
	debouncer  *debounce.Debouncer
	moveWindow time.Duration
	logger     *slog.Logger

	// pending holds the coalesced event per path, dispatched once the path
	// has been quiet for the debounce threshold.
	pending map[string]models.Event
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithExtension sets the document file extension.
func WithExtension(ext string) Option {
	return func(w *Watcher) { w.ext = ext }
}

// WithDebouncer replaces the default per-path debouncer.
func WithDebouncer(d *debounce.Debouncer) Option {
	return func(w *Watcher) { w.debouncer = d }
}

// WithMoveWindow sets how long a rename waits for its matching create.
func WithMoveWindow(d time.Duration) Option {
	return func(w *Watcher) { w.moveWindow = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a Watcher for root that feeds sink.
func New(root string, sink Sink, opts ...Option) *Watcher {
	w := &Watcher{
		root:       filepath.Clean(root),
		ext:        storage.DefaultExtension,
		sink:       sink,
		moveWindow: DefaultMoveWindow,
		logger:     slog.Default(),
		pending:    make(map[string]models.Event),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debouncer == nil {
		w.debouncer = debounce.New(debounce.DefaultThreshold, debounce.DefaultEvictAfter)
	}
	return w
}

// rename is a Rename event waiting for the Create that completes a move.
type rename struct {
	path string
	at   time.Time
}

// Run processes file system events until ctx is cancelled.
//
// Create, write and remove events are held per path and dispatched once the
// path has been quiet for the debounce threshold, so a burst reaches the
// sink as one event carrying the time of its last change.
//
// New directories are added to the watch list as they appear. A Rename
// followed by a Create within the move window becomes a single move; an
// unpaired Rename is treated as a delete and followed by a reconciliation
// pass that picks up files moved in from outside the watched tree.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	settle := time.NewTicker(w.debouncer.Threshold())
	defer settle.Stop()
	evict := time.NewTicker(time.Second)
	defer evict.Stop()

	var (
		renamed     *rename
		moveTimer   *time.Timer
		moveCh      <-chan time.Time
		reconTimer  *time.Timer
		reconcileCh <-chan time.Time
	)

	scheduleReconcile := func() {
		if reconTimer == nil {
			reconTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconTimer.C
		} else {
			reconTimer.Reset(reconcileDelay)
		}
	}
	flushRename := func() {
		if renamed == nil {
			return
		}
		w.dispatch(ctx, models.Event{Kind: models.EventDeleted, Path: renamed.path, Time: renamed.at})
		renamed = nil
		scheduleReconcile()
	}

	for {
		select {
		case <-ctx.Done():
			if moveTimer != nil {
				moveTimer.Stop()
			}
			if reconTimer != nil {
				reconTimer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case now := <-settle.C:
			for _, p := range w.debouncer.Settled(now) {
				ev, ok := w.pending[p]
				if !ok {
					continue
				}
				delete(w.pending, p)
				w.logger.Debug("watcher: dispatching settled event", slog.String("path", p), slog.String("op", string(ev.Kind)))
				w.dispatch(ctx, ev)
			}

		case now := <-evict.C:
			if n := w.debouncer.Evict(now); n > 0 {
				w.logger.Debug("watcher: evicted debounce entries", slog.Int("count", n))
			}

		case <-moveCh:
			flushRename()

		case <-reconcileCh:
			if _, err := w.sink.Reconcile(ctx); err != nil {
				w.logger.Error("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			now := time.Now()
			absPath := filepath.Clean(ev.Name)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, absPath); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						w.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					w.createDir(absPath, now)
					continue
				}
			}

			if !w.isDocument(absPath) {
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				if renamed != nil && now.Sub(renamed.at) <= w.moveWindow {
					src := renamed.path
					renamed = nil
					moveTimer.Stop()
					w.dispatch(ctx, models.Event{Kind: models.EventMoved, Path: src, DestPath: absPath, Time: now})
					continue
				}
				flushRename()
				w.submit(models.Event{Kind: models.EventCreated, Path: absPath, Time: now})

			case ev.Op&fsnotify.Write != 0:
				w.submit(models.Event{Kind: models.EventModified, Path: absPath, Time: now})

			case ev.Op&fsnotify.Remove != 0:
				w.submit(models.Event{Kind: models.EventDeleted, Path: absPath, Time: now})

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old path only; the new
				// path arrives as a Create if it stays inside the vault.
				flushRename()
				delete(w.pending, absPath)
				w.debouncer.Forget(absPath)
				renamed = &rename{path: absPath, at: now}
				if moveTimer == nil {
					moveTimer = time.NewTimer(w.moveWindow)
					moveCh = moveTimer.C
				} else {
					moveTimer.Reset(w.moveWindow)
				}
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// submit records ev for its path. It reaches the sink from the settle tick
// once the path has gone quiet.
func (w *Watcher) submit(ev models.Event) {
	if !w.debouncer.Admit(ev.Path, ev.Time) {
		w.logger.Debug("watcher: event debounced", slog.String("path", ev.Path), slog.String("op", string(ev.Kind)))
	}
	prev, ok := w.pending[ev.Path]
	if !ok {
		w.pending[ev.Path] = ev
		return
	}
	merged, keep := coalesce(prev, ev)
	if !keep {
		delete(w.pending, ev.Path)
		return
	}
	w.pending[ev.Path] = merged
}

// coalesce folds next into the event already waiting for the same path.
// keep is false when the two cancel out.
func coalesce(prev, next models.Event) (merged models.Event, keep bool) {
	switch {
	case prev.Kind == models.EventCreated && next.Kind == models.EventModified:
		prev.Time = next.Time
		return prev, true
	case prev.Kind == models.EventCreated && next.Kind == models.EventDeleted:
		return models.Event{}, false
	case prev.Kind == models.EventDeleted && next.Kind == models.EventCreated:
		next.Kind = models.EventModified
		return next, true
	default:
		return next, true
	}
}

func (w *Watcher) dispatch(ctx context.Context, ev models.Event) {
	if _, err := w.sink.Apply(ctx, ev); err != nil {
		level := slog.LevelError
		if errors.Is(err, apperr.ErrParse) {
			level = slog.LevelWarn
		}
		w.logger.Log(ctx, level, "watcher: apply failed",
			slog.String("path", ev.Path),
			slog.String("op", string(ev.Kind)),
			slog.String("error", err.Error()))
	}
}

// createDir emits a create for every document already inside a new directory.
func (w *Watcher) createDir(dir string, now time.Time) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.isDocument(p) {
			return nil
		}
		w.submit(models.Event{Kind: models.EventCreated, Path: p, Time: now})
		return nil
	})
}

func (w *Watcher) isDocument(p string) bool {
	if !strings.HasSuffix(p, w.ext) {
		return false
	}
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
