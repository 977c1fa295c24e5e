package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Benny93/pyxis-go/internal/build"
	"github.com/Benny93/pyxis-go/internal/cache"
	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/modules"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// initialize runs the startup sequence: discover modules, compute the
// load order, restore modules whose cache blob is still fresh, build
// the rest from source, then validate every file and refresh the
// cache.
func initialize(ctx context.Context, log *slog.Logger, st *State, root, toolVersion string) error {
	start := time.Now()

	dirs, err := modules.Discover(st.Config.Roots)
	if err != nil {
		return fmt.Errorf("discovering modules: %w", err)
	}

	parser := source.NewParser()
	idx := &ModuleIndex{
		Decls:    make(map[string]*modules.Declaration, len(dirs)),
		Packages: make(map[string]symbols.SymbolID, len(dirs)),
	}
	decls := make([]*modules.Declaration, 0, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := modules.LoadDeclaration(ctx, parser, dir)
		if d == nil {
			continue
		}
		idx.Decls[d.Name] = d
		decls = append(decls, d)
	}
	idx.Order = modules.SortByLoadOrder(modules.DependsByName(decls))
	for _, cycle := range idx.Order.Cycles {
		log.Warn("module dependency cycle", "modules", strings.Join(cycle, " -> "))
	}
	for _, name := range idx.Order.Missing {
		log.Warn("module dependency missing", "module", name)
	}
	st.Modules = idx
	st.Stats = Stats{}

	meta, err := st.Cache.LoadMeta()
	if err != nil {
		log.Warn("cache meta unreadable", "error", err)
		meta = nil
	}
	useCache := meta.Valid(toolVersion, root)

	// Structure pass: every module of the load order enters the graph
	// before anything builds, so cross-module imports resolve no matter
	// which file builds first.
	restorer := cache.NewRestorer(st.Graph)
	stale := make(map[string]bool)
	for _, name := range idx.Order.Sorted {
		d := idx.Decls[name]
		if d == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if useCache {
			if mod := restoreModule(log, st, restorer, root, name, meta); mod != nil {
				idx.Packages[name] = mod.ID
				st.Stats.Restored++
				continue
			}
		}
		mod, err := attachModule(st, d)
		if err != nil {
			return err
		}
		idx.Packages[name] = mod.ID
		stale[name] = true
		st.Stats.Built++
	}

	// Content pass: track every source and create the declaration
	// symbols of rebuilt modules. Only then can restored cross-module
	// links re-resolve, since they point at live symbols by name.
	for _, name := range idx.Order.Sorted {
		if id, ok := idx.Packages[name]; ok {
			if err := buildModule(ctx, st, id, diag.StageArch, true); err != nil {
				return err
			}
		}
	}
	if st.Stats.Restored > 0 {
		restorer.ResolveLinks()
	}

	// Validation pass in load order. Restored files keep their
	// structural stages done; validation always recomputes against
	// live content, and arch-eval of rebuilt files runs on the way.
	for _, name := range idx.Order.Sorted {
		if id, ok := idx.Packages[name]; ok {
			if err := buildModule(ctx, st, id, diag.StageValidation, false); err != nil {
				return err
			}
		}
	}

	saveCache(log, st, root, toolVersion, stale)

	log.Info("workspace ready",
		"modules", len(idx.Order.Sorted),
		"invalid", len(idx.Order.Invalid),
		"restored", st.Stats.Restored,
		"built", st.Stats.Built,
		"files", st.Sources.Count(),
		"diagnostics", countDiagnostics(st),
		"elapsed", time.Since(start))
	return nil
}

// restoreModule loads one module blob and replays it into the graph.
// Any problem yields nil and the module is rebuilt from source.
func restoreModule(log *slog.Logger, st *State, restorer *cache.Restorer, root, name string, meta *cache.Meta) *symbols.Symbol {
	rec, err := st.Cache.LoadModule(cache.ModuleKey(root, name))
	if err != nil {
		log.Warn("module cache unreadable", "module", name, "error", err)
		return nil
	}
	if rec == nil || !moduleFresh(meta, rec) {
		return nil
	}
	mod, err := restorer.RestoreModule(st.Graph.Root().ID, rec)
	if err != nil {
		log.Warn("module cache restore failed", "module", name, "error", err)
		dropPackage(st.Graph, name)
		return nil
	}
	return mod
}

// dropPackage removes a partially restored module package.
func dropPackage(g *symbols.Graph, name string) {
	for _, cand := range g.ContentSymbols(g.Root(), name, -1) {
		if cand.Kind == symbols.KindPackage {
			g.RemoveSubtree(cand.ID)
		}
	}
}

// recordFile pairs one cached file path with its recorded content
// hash. A zero hash means the record predates a build of that file.
type recordFile struct {
	path string
	hash uint64
}

// recordFiles collects every source file a module blob claims to
// mirror, the package __init__ files included.
func recordFiles(rec *cache.ModuleRecord) []recordFile {
	var files []recordFile
	if p := initPath(rec.Paths); p != "" {
		files = append(files, recordFile{path: p})
	}
	var walk func(recs []cache.SymbolRecord)
	walk = func(recs []cache.SymbolRecord) {
		for i := range recs {
			r := &recs[i]
			switch r.Kind {
			case "file":
				if len(r.Paths) > 0 {
					files = append(files, recordFile{path: r.Paths[0], hash: r.Hash})
				}
			case "package":
				if p := initPath(r.Paths); p != "" {
					files = append(files, recordFile{path: p, hash: r.Hash})
				}
			}
			walk(r.Children)
		}
	}
	walk(rec.Symbols)
	return files
}

// moduleFresh reports whether a cached module still matches the
// workspace: every recorded file passes the stat fingerprint or, when
// that moved, the content hash; and the directory grew no new files.
func moduleFresh(meta *cache.Meta, rec *cache.ModuleRecord) bool {
	files := recordFiles(rec)
	known := make(map[string]struct{}, len(files))
	for _, f := range files {
		known[f.path] = struct{}{}
		info, err := os.Stat(f.path)
		if err != nil {
			return false
		}
		if fm, ok := meta.Files[f.path]; ok &&
			fm.MtimeNS == info.ModTime().UnixNano() && fm.Size == info.Size() {
			continue
		}
		if f.hash == 0 {
			return false
		}
		content, err := os.ReadFile(f.path)
		if err != nil || xxhash.Sum64(content) != f.hash {
			return false
		}
	}
	disk, err := modules.PythonFiles(rec.Dir)
	if err != nil {
		return false
	}
	for _, p := range disk {
		if _, ok := known[p]; !ok {
			return false
		}
	}
	return true
}

// attachModule creates the package and file symbols of one module from
// its directory listing.
func attachModule(st *State, d *modules.Declaration) (*symbols.Symbol, error) {
	mod := st.Graph.NewSymbol(symbols.KindPackage, d.Name)
	mod.Paths = packagePaths(d.Dir)
	if err := st.Graph.AddSymbol(st.Graph.Root().ID, mod.ID, 0); err != nil {
		return nil, fmt.Errorf("attaching module %s: %w", d.Name, err)
	}
	files, err := modules.PythonFiles(d.Dir)
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		if _, err := attachFile(st, mod, path); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// attachFile attaches the symbol for one .py file under the module
// package, creating intermediate subpackages on the way. A directory's
// __init__.py is carried by its package symbol, not a file symbol of
// its own.
func attachFile(st *State, mod *symbols.Symbol, path string) (*symbols.Symbol, error) {
	if existing := st.Graph.FileByPath(path); existing != nil {
		return existing, nil
	}
	rel, err := filepath.Rel(mod.Paths[0], path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("attaching %s: outside module %s", path, mod.Name)
	}
	parent := mod
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		parent, err = subPackage(st, parent, dir)
		if err != nil {
			return nil, err
		}
	}
	base := parts[len(parts)-1]
	if base == "__init__.py" {
		st.Graph.AddPath(parent, path)
		return parent, nil
	}
	sym := st.Graph.NewSymbol(symbols.KindFile, strings.TrimSuffix(base, ".py"))
	sym.Paths = []string{path}
	if err := st.Graph.AddSymbol(parent.ID, sym.ID, 0); err != nil {
		return nil, fmt.Errorf("attaching %s: %w", path, err)
	}
	return sym, nil
}

// subPackage returns the named subpackage of parent, creating it on
// first use.
func subPackage(st *State, parent *symbols.Symbol, name string) (*symbols.Symbol, error) {
	for _, cand := range st.Graph.ContentSymbols(parent, name, -1) {
		if cand.Kind == symbols.KindPackage {
			return cand, nil
		}
	}
	dir := filepath.Join(parent.Paths[0], name)
	sym := st.Graph.NewSymbol(symbols.KindPackage, name)
	sym.Paths = packagePaths(dir)
	if err := st.Graph.AddSymbol(parent.ID, sym.ID, 0); err != nil {
		return nil, fmt.Errorf("attaching package %s: %w", dir, err)
	}
	return sym, nil
}

// packagePaths returns the symbol paths for a package directory: the
// directory itself plus its __init__.py when present.
func packagePaths(dir string) []string {
	paths := []string{dir}
	init := filepath.Join(dir, "__init__.py")
	if _, err := os.Stat(init); err == nil {
		paths = append(paths, init)
	}
	return paths
}

// buildModule brings every file of the module subtree to the requested
// stage. With track set, file contents enter the source store first.
func buildModule(ctx context.Context, st *State, id symbols.SymbolID, stage diag.Stage, track bool) error {
	var ids []symbols.SymbolID
	st.Graph.Walk(id, func(sym *symbols.Symbol) bool {
		if sym.File != nil {
			ids = append(ids, sym.ID)
		}
		return true
	})
	for _, fid := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		sym := st.Graph.Get(fid)
		if sym == nil {
			continue
		}
		if track {
			if path := contentPath(sym); path != "" {
				st.Sources.Update(ctx, path, nil, source.VersionOnDisk, false)
			}
		}
		if err := build.BuildNow(ctx, st.Build, fid, stage); err != nil {
			return err
		}
	}
	return nil
}

// saveCache refreshes the blobs of the rebuilt modules and rewrites
// the meta fingerprints. Write failures leave a stale cache behind for
// the next startup to detect; they are never fatal.
func saveCache(log *slog.Logger, st *State, root, toolVersion string, refresh map[string]bool) {
	for name := range refresh {
		mod := st.Graph.Get(st.Modules.Packages[name])
		if mod == nil {
			continue
		}
		var depends []string
		if d := st.Modules.Decls[name]; d != nil {
			depends = d.Depends
		}
		rec := cache.SnapshotModule(st.Graph, mod, depends)
		if err := st.Cache.SaveModule(cache.ModuleKey(root, name), rec); err != nil {
			log.Warn("module cache write failed", "module", name, "error", err)
			return
		}
	}
	files := make(map[string]cache.FileMetadata, st.Sources.Count())
	for _, path := range st.Sources.Paths() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files[path] = cache.FileMetadata{MtimeNS: info.ModTime().UnixNano(), Size: info.Size()}
	}
	meta := &cache.Meta{Version: cache.CacheVersion, ToolVersion: toolVersion, Root: root, Files: files}
	if err := st.Cache.SaveMeta(meta); err != nil {
		log.Warn("cache meta write failed", "error", err)
	}
}

// contentPath returns the path of the symbol's own source text: the
// file itself or the package __init__.py.
func contentPath(sym *symbols.Symbol) string {
	if sym.Kind == symbols.KindPackage {
		return initPath(sym.Paths)
	}
	return sym.Path()
}

func initPath(paths []string) string {
	for _, p := range paths {
		if strings.HasSuffix(p, "__init__.py") {
			return p
		}
	}
	return ""
}
