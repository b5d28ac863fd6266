package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/dunamismax/webopt/internal/id"
	"github.com/dunamismax/webopt/internal/pipeline"
	"github.com/dunamismax/webopt/internal/walker"
)

var errWatchIntoInput = errors.New("output folder must differ from the watched input folder")

// Watch processes candidate files created or rewritten in p.InputDir until ctx
// is cancelled. Events for one file are coalesced until it has been quiet for
// the debounce window. Results go to the Reporter, ledger and metrics under a
// fresh run id. When p.Since is set, files modified since then that are
// already present are processed too.
func (r *Runner) Watch(ctx context.Context, p Params) error {
	if target, err := pipeline.ParseTarget(p.Output); err == nil && !target.IsObjectStore() && sameDir(target.Dir, p.InputDir) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidParameter, errWatchIntoInput)
	}

	processor, err := r.prepare(ctx, p)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.InputDir); err != nil {
		return fmt.Errorf("%w: watch %s: %v", domain.ErrIO, p.InputDir, err)
	}

	runID := id.New()
	r.logger.Info("watching for new images", zap.String("run_id", runID), zap.String("input_dir", p.InputDir))

	d := newDebouncer(r.debounce)
	defer d.stop()

	// Files written before the watcher was registered produce no event.
	if !p.Since.IsZero() {
		for candidate, err := range walker.Candidates(p.InputDir) {
			if err != nil {
				return fmt.Errorf("%w: enumerate %s: %v", domain.ErrIO, p.InputDir, err)
			}
			info, err := os.Stat(candidate.Path)
			if err != nil || info.ModTime().Before(p.Since) {
				continue
			}
			d.trigger(candidate.Path, func() {
				r.processOne(ctx, processor, runID, candidate)
			})
		}
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("watch stopped", zap.String("run_id", runID))
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !walker.IsCandidate(name) {
				continue
			}
			candidate := walker.Candidate{Name: name, Path: event.Name}
			d.trigger(event.Name, func() {
				r.processOne(ctx, processor, runID, candidate)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// debouncer runs the latest fn for a key once no trigger for that key has
// arrived for delay.
type debouncer struct {
	delay  time.Duration
	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	d.timers[key] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// stop cancels pending work and waits for running callbacks.
func (d *debouncer) stop() {
	d.mu.Lock()
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// sameDir reports whether two paths name the same directory.
func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return absA == absB
}
