// Package watch keeps a sync running against a task file: filesystem events
// are debounced into engine runs, with at most one run queued behind the one
// in flight.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	// DefaultDebounce is how long a change burst must be quiet before a run
	// starts. Editors and task tools tend to write in flurries.
	DefaultDebounce = 400 * time.Millisecond

	// failureBackoffCap bounds the delay between retries of a persistently
	// failing run.
	failureBackoffCap = 30 * time.Second

	failureBackoffBase = time.Second
)

// Runner executes one engine run. A non-nil error counts as a failed run and
// grows the retry backoff; the watcher itself keeps going.
type Runner func(ctx context.Context) error

// Watcher drives repeated runs from task-file changes.
type Watcher struct {
	path     string
	debounce time.Duration
	run      Runner
	log      *zap.Logger
}

// New builds a watcher for the task file at path. debounce <= 0 uses the
// default.
func New(path string, debounce time.Duration, run Runner, log *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, run: run, log: log}
}

// Watch blocks until ctx is cancelled. One run fires immediately so the
// board reflects the file as it was at startup; afterwards runs follow file
// changes. Events arriving during a run coalesce into at most one queued
// follow-up.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the parent directory too: atomic writes replace the file by
	// rename, which only the directory watch observes.
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	_ = fsw.Add(w.path) // may not exist yet; the dir watch catches creation

	// Buffer of one: a trigger during a run queues exactly one follow-up.
	pending := make(chan struct{}, 1)
	queue := func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}
	deb := NewDebouncer(w.debounce, queue)
	defer deb.Cancel()

	go func() {
		base := filepath.Base(w.path)
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
					w.log.Debug("task file change", zap.String("event", event.Op.String()))
					if event.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
						_ = fsw.Add(w.path)
					}
					deb.Trigger()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.log.Warn("watcher error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	queue()

	backoff := failureBackoffBase
	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped")
			return nil
		case <-pending:
		}

		w.log.Info("sync run starting")
		if err := w.run(ctx); err != nil {
			if ctx.Err() != nil {
				w.log.Info("watch stopped")
				return nil
			}
			w.log.Error("sync run failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > failureBackoffCap {
				backoff = failureBackoffCap
			}
			queue()
			continue
		}
		backoff = failureBackoffBase
		w.log.Info("sync run finished")
	}
}
