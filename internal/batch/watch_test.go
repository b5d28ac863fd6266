package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/webopt/internal/domain"
)

func TestWatchProcessesNewFiles(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()

	reporter := &recordingReporter{}
	runner := NewRunner(Options{Reporter: reporter, Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Watch(ctx, params(input, output)) }()

	// Give the watcher time to register before the file appears.
	time.Sleep(100 * time.Millisecond)
	writeJPEG(t, filepath.Join(input, "arrived.jpg"), 300, 100)

	require.Eventually(t, func() bool { return reporter.count() >= 1 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	reporter.mu.Lock()
	first := reporter.results[0]
	reporter.mu.Unlock()
	assert.True(t, first.OK(), first.Error)
	assert.Equal(t, "arrived.jpg", first.Name)
	assert.Equal(t, 100, first.Width)

	cfg := decodeConfig(t, filepath.Join(output, "arrived.jpg"))
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 33, cfg.Height)
}

func TestWatchCatchesUpOnFilesWrittenBeforeRegistration(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()

	stale := filepath.Join(input, "stale.jpg")
	writeJPEG(t, stale, 60, 60)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	writeJPEG(t, filepath.Join(input, "late.jpg"), 300, 100)

	reporter := &recordingReporter{}
	runner := NewRunner(Options{Reporter: reporter, Debounce: 20 * time.Millisecond})

	p := params(input, output)
	p.Since = time.Now().Add(-time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Watch(ctx, p) }()

	require.Eventually(t, func() bool { return reporter.count() >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	require.Len(t, reporter.results, 1)
	assert.Equal(t, "late.jpg", reporter.results[0].Name)
	assert.True(t, reporter.results[0].OK(), reporter.results[0].Error)
	assert.NoFileExists(t, filepath.Join(output, "stale.jpg"))
}

func TestWatchRejectsOutputInsideWatchedFolder(t *testing.T) {
	dir := t.TempDir()
	err := NewRunner(Options{}).Watch(context.Background(), params(dir, dir))
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestWatchRejectsInvalidParams(t *testing.T) {
	p := params(t.TempDir(), t.TempDir())
	p.Transform.Quality = 0
	err := NewRunner(Options{}).Watch(context.Background(), p)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	var calls atomic.Int32

	for range 5 {
		d.trigger("a.jpg", func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	d.trigger("b.jpg", func() { calls.Add(1) })

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 10*time.Millisecond)
	d.stop()
	assert.Equal(t, int32(2), calls.Load())
}

func TestDebouncerStopDropsPending(t *testing.T) {
	d := newDebouncer(time.Hour)
	var calls atomic.Int32
	d.trigger("a.jpg", func() { calls.Add(1) })
	d.stop()
	assert.Zero(t, calls.Load())
}
