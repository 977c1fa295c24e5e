// Package session ties the workspace together: the source store, the
// symbol graph, the module index, the cache backend and the rebuild
// orchestrator, all owned by one goroutine. Every reader and writer
// marshals through that goroutine via Do or the typed query helpers;
// background watcher and debounce workers only ever talk to it over
// channels. This keeps the graph free of locks without giving up
// concurrent callers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Benny93/pyxis-go/internal/build"
	"github.com/Benny93/pyxis-go/internal/cache"
	"github.com/Benny93/pyxis-go/internal/config"
	"github.com/Benny93/pyxis-go/internal/modules"
	"github.com/Benny93/pyxis-go/internal/rebuild"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// ErrRestart signals that the pending change volume crossed the
// restart threshold and incremental rebuilding was abandoned. The
// caller tears the session down and builds a fresh one instead of
// reconciling an unbounded invalidation chain.
var ErrRestart = errors.New("session restart requested")

// Options configures a session beyond its config file.
type Options struct {
	// ToolVersion tags cache metadata. Caches written by a different
	// version are discarded and rebuilt.
	ToolVersion string
}

// Stats counts what initialization did.
type Stats struct {
	// Restored and Built count modules by how they entered the graph.
	Restored int
	Built    int
}

// ModuleIndex is the session's view of the discovered modules.
type ModuleIndex struct {
	// Decls maps module name to its parsed manifest declaration.
	Decls map[string]*modules.Declaration

	// Order is the computed load order partition.
	Order modules.SortResult

	// Packages maps module name to its package symbol.
	Packages map[string]symbols.SymbolID
}

// State is the workspace state owned by the session goroutine. Code
// run through Do may use it freely for the duration of the call and
// must not retain it.
type State struct {
	Config  config.Config
	Sources *source.Store
	Graph   *symbols.Graph
	Build   *build.Context
	Orch    *rebuild.Orchestrator
	Cache   cache.Backend
	Modules *ModuleIndex
	Stats   Stats
}

// Session is the single-writer owner of a workspace.
type Session struct {
	log  *slog.Logger
	root string
	opts Options

	cmds chan func(*State)
	done chan struct{}

	closeOnce sync.Once
	closeErr  error

	st *State
}

// New opens a session for the workspace rooted at root. The returned
// session holds an empty graph until Initialize runs.
func New(log *slog.Logger, root string, opts Options) (*Session, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.ToolVersion == "" {
		opts.ToolVersion = "dev"
	}

	store := source.NewStore(log, cfg.Encoding())
	graph := symbols.NewGraph()
	bctx := &build.Context{Log: log, Sources: store, Graph: graph}

	backend := openBackend(log, cfg.CachePath())

	s := &Session{
		log:  log,
		root: root,
		opts: opts,
		cmds: make(chan func(*State)),
		done: make(chan struct{}),
		st: &State{
			Config:  cfg,
			Sources: store,
			Graph:   graph,
			Build:   bctx,
			Orch:    rebuild.NewOrchestrator(log, bctx),
			Cache:   backend,
			Modules: &ModuleIndex{
				Decls:    make(map[string]*modules.Declaration),
				Packages: make(map[string]symbols.SymbolID),
			},
		},
	}
	go s.run()
	return s, nil
}

// openBackend opens the badger cache, falling back to an in-memory
// backend when the directory cannot be used. A broken cache is a cache
// miss, never a failure.
func openBackend(log *slog.Logger, path string) cache.Backend {
	backend := cache.NewBadgerBackend()
	if err := backend.Initialize(path, false); err != nil {
		log.Warn("cache unavailable, using in-memory backend", "path", path, "error", err)
		mem := cache.NewMemoryBackend()
		_ = mem.Initialize(path, false)
		return mem
	}
	return backend
}

// Root returns the absolute workspace root.
func (s *Session) Root() string {
	return s.root
}

func (s *Session) run() {
	defer close(s.done)
	for fn := range s.cmds {
		if fn == nil {
			return
		}
		fn(s.st)
	}
}

// Do runs fn on the session goroutine and waits for it to return. The
// context only bounds the wait for a slot in the command queue; once
// fn is queued it runs to completion, so long-running fns must check
// the context themselves.
func (s *Session) Do(ctx context.Context, fn func(*State)) error {
	ran := make(chan struct{})
	wrapped := func(st *State) {
		defer close(ran)
		fn(st)
	}
	select {
	case s.cmds <- wrapped:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// Initialize discovers the workspace modules and brings the graph up:
// restore from cache where fresh, build from source where not, then
// validate everything and refresh the cache.
func (s *Session) Initialize(ctx context.Context) error {
	var err error
	if derr := s.Do(ctx, func(st *State) {
		err = initialize(ctx, s.log, st, s.root, s.opts.ToolVersion)
	}); derr != nil {
		return derr
	}
	return err
}

// Close stops the session goroutine and releases the cache and source
// store. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		select {
		case s.cmds <- nil:
			<-s.done
		case <-s.done:
		}
		if err := s.st.Cache.Close(); err != nil {
			s.closeErr = fmt.Errorf("closing cache: %w", err)
		}
		s.st.Sources.Close()
	})
	return s.closeErr
}

// Clean removes the on-disk cache of the workspace rooted at root.
func Clean(root string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", err
	}
	path := cfg.CachePath()
	if err := os.RemoveAll(path); err != nil {
		return "", fmt.Errorf("removing cache: %w", err)
	}
	return path, nil
}
