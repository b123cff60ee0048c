package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWatchRunsOnStartAndOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	w := New(path, 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// The startup run fires without any file event.
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 1 })

	if err := os.WriteFile(path, []byte(`{"changed": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on cancellation")
	}
}

func TestWatchSurvivesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	w := New(path, 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 1 })

	// Replace the file by rename, the way the task tool writes it.
	tmp := filepath.Join(dir, "tasks.json.tmp")
	if err := os.WriteFile(tmp, []byte(`{"v": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 2 })

	// The watch is still live after the replace.
	if err := os.WriteFile(path, []byte(`{"v": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
}

func TestWatchRetriesFailedRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	w := New(path, 10*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	// The failed startup run is retried after the backoff without any new
	// file event.
	waitFor(t, 5*time.Second, func() bool { return runs.Load() >= 2 })
}
