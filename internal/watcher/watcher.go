// Package watcher registers recursive filesystem watches on the configured
// roots and runs a debounced cold scan through fsscan whenever activity
// settles, publishing the resulting delta onto the event bus.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gaspardpetit/findx/internal/bus"
	findxerrors "github.com/gaspardpetit/findx/internal/errors"
	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/fsscan"
	"github.com/gaspardpetit/findx/internal/mirrorpath"
)

// tickInterval is how often the debounce timer is checked. It must be
// smaller than any realistic debounce window.
const tickInterval = 50 * time.Millisecond

// DefaultDebounceWindow matches the 300ms quiescence window the scan/watch
// contract specifies.
const DefaultDebounceWindow = 300 * time.Millisecond

// Watcher owns an fsnotify handle plus a fsscan.Scanner and runs the
// scan-on-quiescence loop: any notification bumps a "last event" clock;
// once the clock has been idle past the debounce window, a cold scan runs
// and its delta (if non-empty) is published.
type Watcher struct {
	scanner  *fsscan.Scanner
	cfg      fsscan.Config
	bus      *bus.EventBus
	debounce time.Duration

	fsw       *fsnotify.Watcher
	lastEvent atomic.Int64 // unix nano of most recent fs notification, 0 = none pending
	stopCh    chan struct{}
}

// New creates a Watcher. Call Run to start watching; it blocks until ctx
// is cancelled or Stop is called.
func New(cfg fsscan.Config, b *bus.EventBus, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, findxerrors.NewIoError("watcher: creating fsnotify watcher", err)
	}
	return &Watcher{
		scanner:  fsscan.New(cfg),
		cfg:      cfg,
		bus:      b,
		debounce: debounce,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Run publishes SyncStarted, performs the initial cold scan, registers
// recursive watches on every root, then services fsnotify events and the
// debounce timer until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.bus.Publish(ctx, events.TopicSourceFS, events.SyncStarted{}); err != nil {
		return err
	}
	if err := w.runScan(ctx); err != nil {
		return err
	}

	for _, root := range w.cfg.Roots {
		if _, err := os.Stat(root); err != nil {
			return findxerrors.NewConfigError("watcher: root does not exist: "+root, err)
		}
		if err := w.addRecursive(root); err != nil {
			return findxerrors.NewIoError("watcher: registering watch on "+root, err)
		}
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher: fsnotify error", slog.String("error", err.Error()))
		case <-ticker.C:
			if w.quiescent() {
				if err := w.runScan(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// Stop releases the fsnotify handle. Safe to call multiple times.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	return w.fsw.Close()
}

func (w *Watcher) handleFsnotifyEvent(ev fsnotify.Event) {
	w.lastEvent.Store(time.Now().UnixNano())

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if addErr := w.addRecursive(ev.Name); addErr != nil {
				slog.Warn("watcher: failed to add new directory",
					slog.String("path", ev.Name), slog.String("error", addErr.Error()))
			}
		}
	}
}

// quiescent reports whether the debounce window has elapsed since the last
// fs notification, clearing the pending marker if so. Returns false when
// no notification is pending.
func (w *Watcher) quiescent() bool {
	last := w.lastEvent.Load()
	if last == 0 {
		return false
	}
	if time.Since(time.Unix(0, last)) < w.debounce {
		return false
	}
	w.lastEvent.Store(0)
	return true
}

func (w *Watcher) runScan(ctx context.Context) error {
	delta, ok, err := w.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return w.bus.Publish(ctx, events.TopicSourceFS, delta)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if mirrorpath.IsUnderMirrorRoot(path, w.cfg.MirrorRoot) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
