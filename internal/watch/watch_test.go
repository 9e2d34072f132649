package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_WatchesExistingRoot(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, []string{".go"}, nil)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NoError(t, w.Stop())
}

func TestNew_MissingRootErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	w, err := New(dir, []string{".go"}, nil)
	require.Error(t, err)
	require.Nil(t, w)
}

type capturedBatch struct {
	mu    sync.Mutex
	paths [][]string
}

func (c *capturedBatch) record(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, paths)
}

func (c *capturedBatch) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func (c *capturedBatch) last() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.paths) == 0 {
		return nil
	}
	return c.paths[len(c.paths)-1]
}

func TestWatcher_SingleFileChangeFiresReindexAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	var cap capturedBatch
	w, err := New(dir, []string{".go"}, func(_ context.Context, paths []string) error {
		cap.record(paths)
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	target := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main"), 0o644))

	require.Eventually(t, func() bool { return cap.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, cap.last(), target)
}

func TestWatcher_BurstOfChangesCoalescesIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	var cap capturedBatch
	w, err := New(dir, []string{".go"}, func(_ context.Context, paths []string) error {
		cap.record(paths)
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(100 * time.Millisecond)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")
	require.NoError(t, os.WriteFile(a, []byte("package main"), 0o644))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(b, []byte("package main"), 0o644))

	require.Eventually(t, func() bool { return cap.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond) // let any stray second batch land before asserting count
	require.Equal(t, 1, cap.count())
	require.ElementsMatch(t, []string{a, b}, cap.last())
}

func TestWatcher_IgnoresNonMatchingExtensions(t *testing.T) {
	dir := t.TempDir()
	var cap capturedBatch
	w, err := New(dir, []string{".go"}, func(_ context.Context, paths []string) error {
		cap.record(paths)
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(30 * time.Millisecond)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 0, cap.count())
}

func TestWatcher_PauseAccumulatesAndResumeFlushes(t *testing.T) {
	dir := t.TempDir()
	var cap capturedBatch
	w, err := New(dir, []string{".go"}, func(_ context.Context, paths []string) error {
		cap.record(paths)
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(30 * time.Millisecond)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Pause()
	target := filepath.Join(dir, "paused.go")
	require.NoError(t, os.WriteFile(target, []byte("package main"), 0o644))
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 0, cap.count(), "reindex must not fire while paused")

	w.Resume()
	require.Eventually(t, func() bool { return cap.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, cap.last(), target)
}

func TestWatcher_StopDrainsPendingDebounceBatch(t *testing.T) {
	dir := t.TempDir()
	var cap capturedBatch
	w, err := New(dir, []string{".go"}, func(_ context.Context, paths []string) error {
		cap.record(paths)
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(5 * time.Second) // long enough that Stop must race the timer, not win via it firing naturally
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	target := filepath.Join(dir, "draining.go")
	require.NoError(t, os.WriteFile(target, []byte("package main"), 0o644))
	time.Sleep(50 * time.Millisecond) // let the fsnotify event land in accumulated

	require.NoError(t, w.Stop())
	require.Equal(t, 1, cap.count())
	require.Contains(t, cap.last(), target)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, []string{".go"}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcher_NewDirectoryIsWatchedRecursively(t *testing.T) {
	dir := t.TempDir()
	var cap capturedBatch
	w, err := New(dir, []string{".go"}, func(_ context.Context, paths []string) error {
		cap.record(paths)
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(30 * time.Millisecond)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(50 * time.Millisecond) // let the Create event register the new directory

	target := filepath.Join(sub, "sub.go")
	require.NoError(t, os.WriteFile(target, []byte("package pkg"), 0o644))

	require.Eventually(t, func() bool { return cap.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, cap.last(), target)
}
