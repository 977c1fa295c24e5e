package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Benny93/pyxis-go/internal/config"
	"github.com/Benny93/pyxis-go/internal/modules"
	"github.com/Benny93/pyxis-go/internal/rebuild"
	"github.com/Benny93/pyxis-go/internal/source"
)

// Watch follows filesystem events until ctx ends, applying changes
// through the session goroutine and rebuilding once the debounce
// window closes. It returns ErrRestart when the pending change volume
// crosses the restart threshold or the module topology changed; the
// caller tears the session down and starts fresh instead of
// reconciling the backlog.
func (s *Session) Watch(ctx context.Context) error {
	var cfg config.Config
	if err := s.Do(ctx, func(st *State) { cfg = st.Config }); err != nil {
		return err
	}

	w, err := rebuild.NewWatcher(s.log, cfg.Roots)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	deb := rebuild.NewDebouncer(s.log, cfg.RefreshDelay())
	defer deb.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ran := make(chan error, 1)
	go func() { ran <- w.Run(wctx) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-ran:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watching workspace: %w", err)
			}
			return nil
		case ev := <-w.Events():
			if err := s.apply(ctx, ev, deb); err != nil {
				return err
			}
		case sig := <-deb.Signals():
			switch sig {
			case rebuild.SignalFlush:
				if err := s.flush(ctx); err != nil {
					return err
				}
			case rebuild.SignalRestart:
				return ErrRestart
			}
		}
	}
}

// apply routes one watcher event into the orchestrator and arms the
// debounce window.
func (s *Session) apply(ctx context.Context, ev rebuild.Event, deb *rebuild.Debouncer) error {
	if filepath.Base(ev.Path) == modules.ManifestName {
		// The module set or its dependencies changed; incremental
		// invalidation cannot follow that.
		deb.RequestRestart()
		return nil
	}
	var dirty bool
	var threshold, pending int
	err := s.Do(ctx, func(st *State) {
		threshold = st.Config.RestartThreshold
		switch {
		case ev.Deleted && ev.Dir:
			prefix := ev.Path + string(filepath.Separator)
			for _, path := range st.Sources.Paths() {
				if strings.HasPrefix(path, prefix) {
					st.Orch.Deleted(path)
					st.Sources.Remove(path)
					dirty = true
				}
			}
		case ev.Deleted:
			if st.Sources.Get(ev.Path) == nil && st.Graph.FileByPath(ev.Path) == nil {
				return
			}
			st.Orch.Deleted(ev.Path)
			st.Sources.Remove(ev.Path)
			dirty = true
		default:
			if !st.Sources.Update(ctx, ev.Path, nil, source.VersionOnDisk, false) {
				return
			}
			ensureAttached(st, ev.Path)
			st.Orch.Changed(ev.Path)
			dirty = true
		}
		pending = st.Orch.Len()
	})
	if err != nil || !dirty {
		return err
	}
	if threshold > 0 && pending > threshold {
		deb.RequestRestart()
		return nil
	}
	deb.Notify(time.Now())
	return nil
}

// flush drains the rebuild queue. A cancelled drain keeps the queue
// for the next window.
func (s *Session) flush(ctx context.Context) error {
	var derr error
	if err := s.Do(ctx, func(st *State) {
		derr = st.Orch.Drain(ctx)
	}); err != nil {
		return err
	}
	if derr != nil && !errors.Is(derr, context.Canceled) {
		return fmt.Errorf("rebuilding changed files: %w", derr)
	}
	return nil
}

// ensureAttached creates the file symbol for a newly seen path under
// the module whose directory contains it. Files outside every module
// stay graph-less but remain queryable as plain documents.
func ensureAttached(st *State, path string) {
	if st.Graph.FileByPath(path) != nil {
		return
	}
	for name, id := range st.Modules.Packages {
		mod := st.Graph.Get(id)
		if mod == nil || len(mod.Paths) == 0 {
			continue
		}
		if strings.HasPrefix(path, mod.Paths[0]+string(filepath.Separator)) {
			if _, err := attachFile(st, mod, path); err != nil {
				st.Build.Log.Warn("attaching new file", "module", name, "path", path, "error", err)
			}
			return
		}
	}
}
