package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/conclave/internal/debounce"
	"github.com/haasonsaas/conclave/internal/store"
)

// tickSchedule drives the periodic check-in evaluation in watch mode.
const tickSchedule = "@every 5s"

// fsEvent is one settled file change delivered to the main loop.
type fsEvent struct {
	path string
	tick bool
}

// Watch runs the persistent event loop until the context is cancelled:
// fs events on sessions/ and tasks/ (after the stability window), plus a
// periodic tick for the planner check-in timer.
func (o *Orchestrator) Watch(ctx context.Context) error {
	// Catch up on whatever happened while the daemon was down.
	if err := o.Reconcile(); err != nil {
		return err
	}
	o.scanDecisions(ctx)
	o.Sweep(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range []string{o.cfg.SessionsDir(), o.cfg.TasksDir()} {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	events := make(chan fsEvent, 64)
	settled := debounce.New(o.cfg.Debounce(), func(path string) {
		select {
		case events <- fsEvent{path: path}:
		case <-ctx.Done():
		}
	})
	defer settled.Stop()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(tickSchedule, func() {
		select {
		case events <- fsEvent{tick: true}:
		default: // a tick is already queued
		}
	}); err != nil {
		return fmt.Errorf("schedule check-in tick: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	o.log.Info("watching",
		"sessions", o.cfg.SessionsDir(), "tasks", o.cfg.TasksDir(), "debounce", o.cfg.Debounce())

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantOp(ev.Op) || ignoredPath(ev.Name) {
				continue
			}
			settled.Hit(filepath.Clean(ev.Name))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.log.Warn("watcher error", "error", err)

		case ev := <-events:
			switch {
			case ev.tick:
				if _, err := o.EvaluateCheckin(); err != nil {
					o.log.Warn("check-in evaluation failed", "error", err)
				}
				// A failed completion leaves the session file untouched, so
				// no fs event retries it; the tick does.
				o.Sweep(ctx)
			case ev.path == filepath.Clean(o.cfg.ApprovalsPath()):
				o.scanDecisions(ctx)
			case store.SessionIDFromPath(ev.path) != "":
				sessionID := store.SessionIDFromPath(ev.path)
				wg.Add(1)
				go func() {
					defer wg.Done()
					o.advanceSession(ctx, sessionID)
				}()
			}
		}
	}
}

// relevantOp filters the fs operations worth reacting to.
func relevantOp(op fsnotify.Op) bool {
	return op.Has(fsnotify.Create) || op.Has(fsnotify.Write) || op.Has(fsnotify.Rename)
}

// ignoredPath filters editor droppings and our own temp files.
func ignoredPath(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".tmp-") || strings.HasPrefix(base, ".#") ||
		strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}
