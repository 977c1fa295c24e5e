package rebuild

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := NewWatcher(testLogger(), []string{root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		w.Close()
		<-done
	})
	// Let the initial watches attach before the test mutates the tree.
	time.Sleep(100 * time.Millisecond)
	return w
}

func awaitEvent(t *testing.T, w *Watcher, timeout time.Duration, pred func(Event) bool) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-w.Events():
			if pred(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("expected event never arrived")
			return Event{}
		}
	}
}

func TestWatcher_ForwardsPythonWrites(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w := startWatcher(t, root)

	path := filepath.Join(root, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	ev := awaitEvent(t, w, 3*time.Second, func(ev Event) bool { return ev.Path == path })
	assert.False(t, ev.Deleted)
	assert.False(t, ev.Dir)
}

func TestWatcher_IgnoresIrrelevantPaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "__pycache__"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "__pycache__", "junk.py"), []byte("j"), 0o644))
	marker := filepath.Join(root, "marker.py")
	require.NoError(t, os.WriteFile(marker, []byte("m = 1\n"), 0o644))

	ev := awaitEvent(t, w, 3*time.Second, func(Event) bool { return true })
	assert.Equal(t, marker, ev.Path, "filtered paths never reach the channel")
}

func TestWatcher_ReportsDeletes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w := startWatcher(t, root)

	path := filepath.Join(root, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
	awaitEvent(t, w, 3*time.Second, func(ev Event) bool { return ev.Path == path })

	require.NoError(t, os.Remove(path))
	ev := awaitEvent(t, w, 3*time.Second, func(ev Event) bool { return ev.Path == path && ev.Deleted })
	assert.False(t, ev.Dir)
}

func TestWatcher_CoversNewDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w := startWatcher(t, root)

	pkg := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(pkg, 0o755))
	path := filepath.Join(pkg, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	awaitEvent(t, w, 3*time.Second, func(ev Event) bool { return ev.Path == path && !ev.Deleted })

	require.NoError(t, os.RemoveAll(pkg))
	ev := awaitEvent(t, w, 3*time.Second, func(ev Event) bool { return ev.Path == pkg && ev.Deleted })
	assert.True(t, ev.Dir, "directory removals are reported as such")
}
