package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const defaultDebounce = 2 * time.Second

// FsWatcher abstracts fsnotify.Watcher for testing.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// WatchOpts configures Watch.
type WatchOpts struct {
	Debounce time.Duration // quiet period before a batch is uploaded (0 → 2s)
	// OnBatch receives every batch report. Optional.
	OnBatch func(*Report, error)
	// NewWatcher overrides the fsnotify watcher. Optional.
	NewWatcher func() (FsWatcher, error)
}

// Watch keeps uploading files that are created or written under the sync
// root until ctx is canceled. Removals and renames are not propagated.
// Uploads stay sequential: only the flush loop calls SyncPaths. Returns
// nil on cancellation and an error when a batch hits an auth failure.
func (e *Engine) Watch(ctx context.Context, opts WatchOpts) error {
	if e.cfg.DryRun {
		return errors.New("sync: watch mode cannot be combined with dry-run")
	}

	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}

	newWatcher := opts.NewWatcher
	if newWatcher == nil {
		newWatcher = newFsnotifyWatcher
	}

	watcher, err := newWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := e.watchTree(watcher, e.cfg.LocalDir); err != nil {
		return err
	}

	e.logger.Info("watching for changes",
		slog.String("local_dir", e.cfg.LocalDir),
		slog.Duration("debounce", opts.Debounce),
	)

	pending := newPendingSet()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.pumpEvents(gctx, watcher, pending)
	})

	g.Go(func() error {
		return e.flushLoop(gctx, pending, opts)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		e.logger.Info("watch stopped")
		return nil
	}

	return err
}

// pumpEvents turns filesystem events into pending root-relative paths.
func (e *Engine) pumpEvents(ctx context.Context, watcher FsWatcher, pending *pendingSet) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			e.handleEvent(watcher, ev, pending)

		case werr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			e.logger.Warn("filesystem watcher error", slog.String("error", werr.Error()))
		}
	}
}

func (e *Engine) handleEvent(watcher FsWatcher, ev fsnotify.Event, pending *pendingSet) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	rel, err := e.walker.rel(ev.Name)
	if err != nil || rel == "" {
		return
	}

	info, err := e.cfg.Fs.Stat(ev.Name)
	if err != nil {
		// Gone again before we looked.
		return
	}

	if e.walker.Ignored(rel, info.IsDir()) {
		return
	}

	if !info.IsDir() {
		pending.add(rel)
		return
	}

	// Files may land in a new directory before its watch exists, so
	// enqueue whatever is already there.
	if err := e.watchTree(watcher, ev.Name); err != nil {
		e.logger.Warn("cannot watch new directory", slog.String("path", rel), slog.String("error", err.Error()))
	}

	files, err := e.filesUnder(rel)
	if err != nil {
		e.logger.Warn("cannot list new directory", slog.String("path", rel), slog.String("error", err.Error()))
	}

	pending.add(files...)
}

// flushLoop uploads pending paths once no event has arrived for the
// debounce window.
func (e *Engine) flushLoop(ctx context.Context, pending *pendingSet, opts WatchOpts) error {
	timer := time.NewTimer(opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-pending.notify:
			timer.Reset(opts.Debounce)

		case <-timer.C:
			batch := pending.drain()
			if len(batch) == 0 {
				continue
			}

			e.logger.Info("uploading changed files", slog.Int("paths", len(batch)))

			report, err := e.SyncPaths(ctx, batch)
			if opts.OnBatch != nil {
				opts.OnBatch(report, err)
			}

			if err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

// watchTree adds a watch on dir and every non-ignored directory below it.
func (e *Engine) watchTree(watcher FsWatcher, dir string) error {
	return afero.Walk(e.cfg.Fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			e.logger.Warn("cannot read directory for watching", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}

		if !info.IsDir() {
			return nil
		}

		if rel, relErr := e.walker.rel(p); relErr == nil && rel != "" && e.walker.Ignored(rel, true) {
			return filepath.SkipDir
		}

		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}

		return nil
	})
}

// pendingSet is the de-duplicated set of paths awaiting upload. notify is
// signaled, without blocking, whenever a path is added.
type pendingSet struct {
	mu     stdsync.Mutex
	paths  map[string]struct{}
	notify chan struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{paths: make(map[string]struct{}), notify: make(chan struct{}, 1)}
}

func (p *pendingSet) add(rels ...string) {
	if len(rels) == 0 {
		return
	}

	p.mu.Lock()
	for _, rel := range rels {
		p.paths[rel] = struct{}{}
	}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// drain returns the pending paths sorted and empties the set.
func (p *pendingSet) drain() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.paths))
	for rel := range p.paths {
		out = append(out, rel)
	}

	clear(p.paths)
	slices.Sort(out)

	return out
}
