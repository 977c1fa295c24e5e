package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Benny93/pyxis-go/internal/build"
	"github.com/Benny93/pyxis-go/internal/config"
	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/search"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// Location is one place in the workspace. Start and End are byte
// offsets; Range carries the same span in the configured position
// encoding.
type Location struct {
	Name  string       `json:"name,omitempty"`
	Kind  string       `json:"kind,omitempty"`
	Path  string       `json:"path"`
	Start int          `json:"start"`
	End   int          `json:"end"`
	Range source.Range `json:"range"`
}

// HoverInfo describes the symbol under a position.
type HoverInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Qualified string `json:"qualified,omitempty"`
	Doc       string `json:"doc,omitempty"`
}

// Finding is one visible diagnostic with its position resolved.
type Finding struct {
	Code     string       `json:"code"`
	Severity string       `json:"severity"`
	Message  string       `json:"message"`
	Start    int          `json:"start"`
	End      int          `json:"end"`
	Range    source.Range `json:"range"`
}

// FileDiagnostics groups the visible diagnostics of one file.
type FileDiagnostics struct {
	Path  string    `json:"path"`
	Items []Finding `json:"items"`
}

// ModuleInfo is one row of the module load-order report.
type ModuleInfo struct {
	Name        string   `json:"name"`
	Dir         string   `json:"dir"`
	Depends     []string `json:"depends,omitempty"`
	Valid       bool     `json:"valid"`
	AutoInstall bool     `json:"auto_install,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Status summarizes the session.
type Status struct {
	Root            string `json:"root"`
	Modules         int    `json:"modules"`
	InvalidModules  int    `json:"invalid_modules"`
	Files           int    `json:"files"`
	Symbols         int    `json:"symbols"`
	Models          int    `json:"models"`
	Diagnostics     int    `json:"diagnostics"`
	PendingRebuilds int    `json:"pending_rebuilds"`
	Restored        int    `json:"restored_from_cache"`
	Built           int    `json:"built_from_source"`
}

// OffsetAt converts a zero-based line/character position into a byte
// offset using the configured position encoding.
func (s *Session) OffsetAt(ctx context.Context, path string, pos source.Position) (int, error) {
	off := -1
	err := s.Do(ctx, func(st *State) {
		if doc := trackedDoc(ctx, st, path); doc != nil {
			off = doc.PositionToOffset(pos, st.Config.Encoding())
		}
	})
	if err := queryErr(ctx, err); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("unreadable file: %s", path)
	}
	return off, nil
}

// PositionAt converts a byte offset back into a position.
func (s *Session) PositionAt(ctx context.Context, path string, offset int) (source.Position, error) {
	var pos source.Position
	found := false
	err := s.Do(ctx, func(st *State) {
		if doc := trackedDoc(ctx, st, path); doc != nil {
			pos = doc.OffsetToPosition(offset, st.Config.Encoding())
			found = true
		}
	})
	if err := queryErr(ctx, err); err != nil {
		return source.Position{}, err
	}
	if !found {
		return source.Position{}, fmt.Errorf("unreadable file: %s", path)
	}
	return pos, nil
}

// Definition resolves the symbol under the byte offset and returns the
// declaration locations. An unresolvable position yields an empty
// result, not an error.
func (s *Session) Definition(ctx context.Context, path string, offset int) ([]Location, error) {
	var out []Location
	err := s.Do(ctx, func(st *State) {
		doc := trackedDoc(ctx, st, path)
		if doc == nil {
			return
		}
		for _, sym := range build.ResolveAt(ctx, st.Build, doc, offset) {
			out = append(out, location(st, sym))
		}
	})
	return out, queryErr(ctx, err)
}

// ResolveAt evaluates the expression under the byte offset, returning
// the evaluation candidates of every reachable branch.
func (s *Session) ResolveAt(ctx context.Context, path string, offset int) ([]symbols.Evaluation, error) {
	var out []symbols.Evaluation
	err := s.Do(ctx, func(st *State) {
		doc := trackedDoc(ctx, st, path)
		if doc == nil {
			return
		}
		out = build.EvaluateAt(ctx, st.Build, doc, offset)
	})
	return out, queryErr(ctx, err)
}

// References finds every use of the symbol under the byte offset
// across the workspace.
func (s *Session) References(ctx context.Context, path string, offset int) ([]Location, error) {
	var out []Location
	err := s.Do(ctx, func(st *State) {
		doc := trackedDoc(ctx, st, path)
		if doc == nil {
			return
		}
		for _, ref := range build.ReferencesAt(ctx, st.Build, doc, offset) {
			out = append(out, Location{
				Path:  ref.Path,
				Start: ref.Span.Start,
				End:   ref.Span.End,
				Range: spanRange(st, ref.Path, ref.Span),
			})
		}
	})
	return out, queryErr(ctx, err)
}

// WorkspaceSymbols matches query against every class and function name
// in the workspace, the declared model names included, and returns the
// ranked results. Cancellation is checked once per file-level node and
// surfaces as an error rather than a partial list.
func (s *Session) WorkspaceSymbols(ctx context.Context, query string, limit int) ([]search.Result, error) {
	var out []search.Result
	err := s.Do(ctx, func(st *State) {
		var cands []search.Result
		file := ""
		st.Graph.Walk(st.Graph.Root().ID, func(sym *symbols.Symbol) bool {
			switch sym.Kind {
			case symbols.KindFile, symbols.KindPackage:
				if ctx.Err() != nil {
					return false
				}
				file = contentPath(sym)
			case symbols.KindClass, symbols.KindFunction:
				if file == "" || sym.Range == (symbols.Span{}) {
					return true
				}
				cands = append(cands, search.Result{
					Name:  sym.Name,
					Kind:  sym.Kind.String(),
					Path:  file,
					Start: sym.Range.Start,
					End:   sym.Range.End,
				})
				if sym.Class != nil && sym.Class.Model != nil && sym.Class.Model.Name != "" {
					cands = append(cands, search.Result{
						Name:  `"` + sym.Class.Model.Name + `"`,
						Kind:  "model",
						Path:  file,
						Start: sym.Range.Start,
						End:   sym.Range.End,
					})
				}
			}
			return true
		})
		if ctx.Err() != nil {
			return
		}
		out = search.Rank(query, cands, limit)
	})
	return out, queryErr(ctx, err)
}

// Hover returns name, kind and docstring of the symbol under the byte
// offset, or nil when nothing resolves there.
func (s *Session) Hover(ctx context.Context, path string, offset int) (*HoverInfo, error) {
	var out *HoverInfo
	err := s.Do(ctx, func(st *State) {
		doc := trackedDoc(ctx, st, path)
		if doc == nil {
			return
		}
		syms := build.ResolveAt(ctx, st.Build, doc, offset)
		if len(syms) == 0 {
			return
		}
		sym := syms[len(syms)-1]
		out = &HoverInfo{
			Name:      sym.Name,
			Kind:      sym.Kind.String(),
			Qualified: st.Graph.FullName(sym.ID),
			Doc:       sym.Doc(),
		}
	})
	return out, queryErr(ctx, err)
}

// Diagnostics returns the visible diagnostics of one file, or of every
// tracked file when path is empty. Files whose validation went stale
// are rebuilt inline first.
func (s *Session) Diagnostics(ctx context.Context, path string) ([]FileDiagnostics, error) {
	var out []FileDiagnostics
	err := s.Do(ctx, func(st *State) {
		filters := filterSet(st.Config)
		paths := st.Sources.Paths()
		if path != "" {
			doc := trackedDoc(ctx, st, path)
			if doc == nil {
				return
			}
			paths = []string{doc.Path}
		}
		for _, p := range paths {
			if ctx.Err() != nil {
				return
			}
			if file := st.Graph.FileByPath(p); file != nil {
				if err := build.BuildNow(ctx, st.Build, file.ID, diag.StageValidation); err != nil {
					return
				}
			}
			items := visibleDiagnostics(st, filters, p)
			if len(items) == 0 {
				continue
			}
			fd := FileDiagnostics{Path: p}
			for _, d := range items {
				fd.Items = append(fd.Items, Finding{
					Code:     d.Code,
					Severity: d.Severity.String(),
					Message:  d.Message,
					Start:    d.Start,
					End:      d.End,
					Range:    spanRange(st, p, symbols.Span{Start: d.Start, End: d.End}),
				})
			}
			out = append(out, fd)
		}
	})
	return out, queryErr(ctx, err)
}

// Modules reports the computed load order followed by the excluded
// modules.
func (s *Session) Modules(ctx context.Context) ([]ModuleInfo, error) {
	var out []ModuleInfo
	err := s.Do(ctx, func(st *State) {
		for _, name := range st.Modules.Order.Sorted {
			out = append(out, moduleInfo(st, name, true))
		}
		for _, name := range st.Modules.Order.Invalid {
			out = append(out, moduleInfo(st, name, false))
		}
	})
	return out, queryErr(ctx, err)
}

// Status summarizes the session state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var out Status
	err := s.Do(ctx, func(st *State) {
		out = Status{
			Root:            s.root,
			Modules:         len(st.Modules.Order.Sorted),
			InvalidModules:  len(st.Modules.Order.Invalid),
			Files:           st.Sources.Count(),
			Symbols:         st.Graph.Count(),
			Models:          len(st.Graph.ModelNames()),
			Diagnostics:     countDiagnostics(st),
			PendingRebuilds: st.Orch.Len(),
			Restored:        st.Stats.Restored,
			Built:           st.Stats.Built,
		}
	})
	return out, queryErr(ctx, err)
}

func moduleInfo(st *State, name string, valid bool) ModuleInfo {
	info := ModuleInfo{Name: name, Valid: valid}
	if d := st.Modules.Decls[name]; d != nil {
		info.Dir = d.Dir
		info.Depends = d.Depends
		info.AutoInstall = d.AutoInstall
		info.Description = d.Description
		info.Valid = valid && d.Valid
	}
	return info
}

// trackedDoc returns the document for path, reading it from disk on
// first touch. Unreadable paths yield nil.
func trackedDoc(ctx context.Context, st *State, path string) *source.Document {
	if doc := st.Sources.Get(path); doc != nil {
		return doc
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	if doc := st.Sources.Get(abs); doc != nil {
		return doc
	}
	st.Sources.Update(ctx, abs, nil, source.VersionOnDisk, false)
	return st.Sources.Get(abs)
}

// location maps a symbol to its declaration location.
func location(st *State, sym *symbols.Symbol) Location {
	loc := Location{
		Name:  sym.Name,
		Kind:  sym.Kind.String(),
		Start: sym.Range.Start,
		End:   sym.Range.End,
	}
	if file := st.Graph.ContainingFile(sym.ID); file != nil {
		loc.Path = contentPath(file)
		loc.Range = spanRange(st, loc.Path, sym.Range)
	}
	return loc
}

// spanRange converts a byte span into line/character form using the
// configured encoding. Untracked paths yield the zero range.
func spanRange(st *State, path string, span symbols.Span) source.Range {
	doc := st.Sources.Get(path)
	if doc == nil {
		return source.Range{}
	}
	enc := st.Config.Encoding()
	return source.Range{
		Start: doc.OffsetToPosition(span.Start, enc),
		End:   doc.OffsetToPosition(span.End, enc),
	}
}

// queryErr keeps Do errors and otherwise surfaces a cancelled context,
// so a cancelled scan never masquerades as an empty result.
func queryErr(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	return ctx.Err()
}

// filterSet compiles the configured diagnostic filters. The config was
// validated at load time, so a compile failure means no filtering.
func filterSet(cfg config.Config) *diag.FilterSet {
	fs, err := cfg.FilterSet()
	if err != nil {
		return nil
	}
	return fs
}

// visibleDiagnostics returns the diagnostics of one file with suppress
// comments and configured filters applied.
func visibleDiagnostics(st *State, filters *diag.FilterSet, path string) []diag.Diagnostic {
	doc := st.Sources.Get(path)
	if doc == nil {
		return nil
	}
	rel := relPath(st.Config, path)
	var out []diag.Diagnostic
	for _, d := range doc.Diagnostics() {
		if doc.Suppressed(d) || filters.Hidden(rel, d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// countDiagnostics counts the visible diagnostics across all tracked
// files.
func countDiagnostics(st *State) int {
	filters := filterSet(st.Config)
	n := 0
	for _, path := range st.Sources.Paths() {
		n += len(visibleDiagnostics(st, filters, path))
	}
	return n
}

// relPath rewrites path relative to the workspace root containing it,
// in slash form, for filter matching. Paths outside every root stay
// absolute.
func relPath(cfg config.Config, path string) string {
	for _, root := range cfg.Roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
