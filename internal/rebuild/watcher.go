package rebuild

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/pyxis-go/internal/modules"
)

// Event is one filesystem change forwarded to the session.
type Event struct {
	// Path is absolute. For Dir events it names a removed directory
	// whose files all went with it.
	Path    string
	Deleted bool
	Dir     bool
}

// Watcher monitors the workspace roots for Python source changes. It
// runs on its own goroutine and never touches the graph; events are
// forwarded on a channel to the owning goroutine. Paths skipped by
// module discovery (gitignore plus the default patterns) are skipped
// here too, so the watcher and the index agree on what exists.
type Watcher struct {
	log      *slog.Logger
	fs       *fsnotify.Watcher
	events   chan Event
	roots    []string
	matchers map[string]gitignore.Matcher
	dirs     map[string]struct{}
}

// NewWatcher prepares a watcher for the given roots. Run starts it.
func NewWatcher(log *slog.Logger, roots []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		log:      log,
		fs:       fsw,
		events:   make(chan Event, 256),
		matchers: make(map[string]gitignore.Matcher),
		dirs:     make(map[string]struct{}),
	}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("resolving root %q: %w", root, err)
		}
		matcher, err := modules.IgnoreMatcher(abs)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.roots = append(w.roots, abs)
		w.matchers[abs] = matcher
	}
	return w, nil
}

// Events delivers file changes in observation order.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches the roots until the context is cancelled or the
// underlying watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addTree(ctx, root, root, false); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// Close stops the underlying watcher, unblocking Run.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// rootFor returns the workspace root containing path, with its ignore
// matcher.
func (w *Watcher) rootFor(path string) (string, gitignore.Matcher) {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root, w.matchers[root]
		}
	}
	return "", nil
}

// addTree registers watches for dir and everything below it. With
// announce set, Python files found are forwarded as change events, so
// a directory moved into the workspace is picked up whole even though
// its files never produce their own events.
func (w *Watcher) addTree(ctx context.Context, root, dir string, announce bool) error {
	matcher := w.matchers[root]
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if modules.SkipDir(d.Name(), path, root, matcher) {
				return filepath.SkipDir
			}
			if err := w.fs.Add(path); err != nil {
				return fmt.Errorf("adding watch for %s: %w", path, err)
			}
			w.dirs[path] = struct{}{}
			return nil
		}
		if announce && w.relevant(root, path, matcher) {
			w.forward(ctx, Event{Path: path})
		}
		return nil
	})
}

func (w *Watcher) relevant(root, path string, matcher gitignore.Matcher) bool {
	if !strings.HasSuffix(path, ".py") {
		return false
	}
	return !modules.IgnoredFile(root, path, matcher)
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	root, matcher := w.rootFor(ev.Name)
	if root == "" {
		return
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if _, isDir := w.dirs[ev.Name]; isDir {
			delete(w.dirs, ev.Name)
			w.forward(ctx, Event{Path: ev.Name, Deleted: true, Dir: true})
			return
		}
		if w.relevant(root, ev.Name, matcher) {
			w.forward(ctx, Event{Path: ev.Name, Deleted: true})
		}
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		// Gone already; the pending remove event covers it.
		return
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 && !modules.SkipDir(info.Name(), ev.Name, root, matcher) {
			if err := w.addTree(ctx, root, ev.Name, true); err != nil {
				w.log.Error("watching new directory", "path", ev.Name, "error", err)
			}
		}
		return
	}
	if w.relevant(root, ev.Name, matcher) {
		w.forward(ctx, Event{Path: ev.Name})
	}
}

func (w *Watcher) forward(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
