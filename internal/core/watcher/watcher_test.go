package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"repoctx/internal/shared/util"
)

func newTestWatcher(t *testing.T, root string, excludes []string, changes chan []Change) *Watcher {
	t.Helper()
	filter, err := util.NewPathFilter(root, excludes, false)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(Options{
		Filter:    filter,
		Supported: func(p string) bool { return strings.HasSuffix(p, ".py") || strings.HasSuffix(p, ".go") },
		Debounce:  50 * time.Millisecond,
	}, func(_ context.Context, batch []Change) {
		changes <- batch
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Close()
	})
	if err := w.Watch(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func waitForChange(t *testing.T, changes chan []Change, match func(Change) bool) Change {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case batch := <-changes:
			for _, c := range batch {
				if match(c) {
					return c
				}
			}
		case <-timeout:
			t.Fatal("timed out waiting for change")
			return Change{}
		}
	}
}

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	filter, err := util.NewPathFilter(t.TempDir(), nil, false)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(Options{Filter: filter}, nil)
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestNewWatcher_RejectsNilFilter(t *testing.T) {
	_, err := NewWatcher(Options{}, func(context.Context, []Change) {})
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	changes := make(chan []Change, 16)
	newTestWatcher(t, root, []string{"**/skip/**"}, changes)

	testFile := filepath.Join(root, "app.py")
	if err := os.WriteFile(testFile, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := waitForChange(t, changes, func(c Change) bool { return c.Path == testFile })
	if c.Rel != "app.py" || c.Removed {
		t.Fatalf("unexpected change %+v", c)
	}

	// Unsupported files never reach the callback.
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case batch := <-changes:
		for _, c := range batch {
			if c.Rel == "notes.txt" {
				t.Error("unsupported file triggered change")
			}
		}
	case <-time.After(300 * time.Millisecond):
	}

	// New directories are watched recursively once created.
	subdir := filepath.Join(root, "pkg", "inner")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(subdir, "nested.go")
	if err := os.WriteFile(nested, []byte("package inner\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c = waitForChange(t, changes, func(c Change) bool { return c.Path == nested })
	if c.Rel != "pkg/inner/nested.go" {
		t.Fatalf("expected slash-relative path, got %q", c.Rel)
	}
}

func TestWatcher_ExcludedDirectoryIgnored(t *testing.T) {
	root := t.TempDir()
	skip := filepath.Join(root, "skip")
	if err := os.MkdirAll(skip, 0o755); err != nil {
		t.Fatal(err)
	}
	changes := make(chan []Change, 16)
	newTestWatcher(t, root, []string{"**/skip/**"}, changes)

	if err := os.WriteFile(filepath.Join(skip, "gen.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	kept := filepath.Join(root, "kept.py")
	if err := os.WriteFile(kept, []byte("y = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case batch := <-changes:
			for _, c := range batch {
				if strings.HasPrefix(c.Rel, "skip/") {
					t.Fatalf("excluded file triggered change: %s", c.Rel)
				}
				if c.Path == kept {
					return
				}
			}
		case <-timeout:
			t.Fatal("timed out waiting for kept.py")
		}
	}
}

func TestWatcher_RemoveReportsRemoved(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "gone.py")
	if err := os.WriteFile(target, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changes := make(chan []Change, 16)
	newTestWatcher(t, root, nil, changes)

	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}
	c := waitForChange(t, changes, func(c Change) bool { return c.Path == target })
	if !c.Removed {
		t.Fatalf("expected removal, got %+v", c)
	}
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	root := t.TempDir()
	changes := make(chan []Change, 16)
	newTestWatcher(t, root, nil, changes)

	oldPath := filepath.Join(root, "old.go")
	newPath := filepath.Join(root, "new.go")
	if err := os.WriteFile(oldPath, []byte("package main"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	waitForChange(t, changes, func(c Change) bool { return c.Path == newPath && !c.Removed })
}

func TestWatcher_ThrottledChangesAreRequeued(t *testing.T) {
	root := t.TempDir()
	filter, err := util.NewPathFilter(root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	changes := make(chan []Change, 16)
	w, err := NewWatcher(Options{
		Filter:        filter,
		Debounce:      20 * time.Millisecond,
		RatePerSecond: 20,
		Burst:         1,
	}, func(_ context.Context, batch []Change) {
		changes <- batch
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for _, name := range []string{"a.py", "b.py", "c.py"} {
		p := filepath.Join(root, name)
		if err := os.WriteFile(p, []byte("x = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		w.scheduleChange(p)
	}

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case batch := <-changes:
			if len(batch) != 1 {
				t.Fatalf("expected burst of one per flush, got %d", len(batch))
			}
			seen[batch[0].Rel] = true
		case <-timeout:
			t.Fatalf("throttled changes not delivered, got %v", seen)
		}
	}
}
