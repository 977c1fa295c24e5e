package build

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// resolver resolves names and dotted paths against the graph. When
// from is set, every resolution that lands in another file records a
// dependency edge for rebuild invalidation; interactive queries leave
// it nil.
type resolver struct {
	ctx  context.Context
	b    *Context
	from *symbols.Symbol
}

// ResolveAt resolves the dotted path under the byte offset of a
// tracked document, returning the target symbols. The dotted path is
// cut at the cursor: on `foo.bar.baz` with the cursor on `bar`, only
// `foo.bar` resolves. Unresolved positions yield an empty result.
func ResolveAt(ctx context.Context, b *Context, doc *source.Document, offset int) []*symbols.Symbol {
	file := b.Graph.FileByPath(doc.Path)
	if file == nil || doc.Tree == nil {
		return nil
	}
	if err := BuildNow(ctx, b, file.ID, diag.StageArchEval); err != nil {
		return nil
	}

	node := nodeAt(doc.Tree.RootNode(), offset)
	if node == nil || node.Type() != "identifier" {
		return nil
	}
	expr := dottedRoot(node)
	parts := sliceDotted(expr.Content(doc.Content), offset-int(expr.StartByte()))
	if len(parts) == 0 {
		return nil
	}

	scope := b.Graph.ScopeAt(file, offset, inParameterDefault(node))
	r := &resolver{ctx: ctx, b: b}
	return r.path(scope, parts, offset)
}

// nodeAt descends to the innermost named node covering the offset. A
// cursor sitting immediately after a node still selects it.
func nodeAt(root *sitter.Node, offset int) *sitter.Node {
	node := root
	for {
		var next *sitter.Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if int(child.StartByte()) <= offset && offset < int(child.EndByte()) {
				next = child
				break
			}
		}
		if next == nil {
			for i := 0; i < int(node.NamedChildCount()); i++ {
				child := node.NamedChild(i)
				if int(child.StartByte()) <= offset && offset <= int(child.EndByte()) {
					next = child
					break
				}
			}
		}
		if next == nil {
			return node
		}
		node = next
	}
}

// dottedRoot climbs from an identifier to the outermost attribute or
// dotted-name expression containing it.
func dottedRoot(node *sitter.Node) *sitter.Node {
	for {
		parent := node.Parent()
		if parent == nil {
			return node
		}
		switch parent.Type() {
		case "attribute", "dotted_name":
			node = parent
		default:
			return node
		}
	}
}

// sliceDotted trims a dotted expression to the prefix the cursor is
// on: everything up to the first dot at or after the cursor offset
// (relative to the expression start).
func sliceDotted(text string, rel int) []string {
	if rel < 0 {
		rel = 0
	}
	if rel > len(text) {
		rel = len(text)
	}
	cut := len(text)
	for i := rel; i < len(text); i++ {
		if text[i] == '.' {
			cut = i
			break
		}
	}
	var parts []string
	for _, part := range strings.Split(text[:cut], ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil
		}
		parts = append(parts, part)
	}
	return parts
}

// inParameterDefault reports whether the node sits inside a parameter
// list, where default expressions evaluate in the enclosing scope.
func inParameterDefault(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "parameters":
			return true
		case "block":
			return false
		}
	}
	return false
}

// path resolves a dotted path. The first segment resolves through the
// scope chain at the use-site offset; each further segment is a member
// lookup on the previous results. Ambiguity keeps all candidates.
func (r *resolver) path(scope *symbols.Symbol, parts []string, offset int) []*symbols.Symbol {
	if len(parts) == 0 || r.ctx.Err() != nil {
		return nil
	}
	cands := r.scopeLookup(scope, parts[0], offset)

	// An import variable resolved at its own declaration would point
	// at itself; follow the import one level further instead.
	var firsts []*symbols.Symbol
	for _, cand := range cands {
		if cand.Variable != nil && cand.Variable.IsImport && cand.Range.Contains(offset) {
			firsts = append(firsts, r.followVariable(cand)...)
			continue
		}
		firsts = append(firsts, cand)
	}

	cur := firsts
	for _, part := range parts[1:] {
		var next []*symbols.Symbol
		visited := newVisited()
		for _, cand := range cur {
			next = append(next, r.member(cand, part, visited)...)
		}
		cur = dedupe(next)
	}
	for _, sym := range cur {
		r.note(sym)
	}
	return cur
}

// scopeLookup resolves a bare name from a scope outward: the innermost
// scope filtered by the use-site position, enclosing scopes
// unfiltered, finally the workspace package index.
func (r *resolver) scopeLookup(scope *symbols.Symbol, name string, offset int) []*symbols.Symbol {
	chain := r.b.Graph.ScopeChain(scope)
	for i, sc := range chain {
		// Only the innermost scope sees declarations positionally;
		// enclosing scopes are fully loaded by the time a nested body
		// runs.
		pos := -1
		if i == 0 {
			pos = offset
		}
		if cands := r.b.Graph.ContentSymbols(sc, name, pos); len(cands) > 0 {
			return cands
		}
	}
	return r.b.Graph.ContentSymbols(r.b.Graph.Root(), name, -1)
}

// member resolves one attribute segment on a candidate symbol.
func (r *resolver) member(sym *symbols.Symbol, name string, visited map[symbols.SymbolID]struct{}) []*symbols.Symbol {
	if sym == nil || r.ctx.Err() != nil {
		return nil
	}
	if _, seen := visited[sym.ID]; seen {
		return nil
	}
	visited[sym.ID] = struct{}{}

	switch sym.Kind {
	case symbols.KindPackage, symbols.KindFile:
		if err := BuildNow(r.ctx, r.b, sym.ID, diag.StageArchEval); err != nil {
			return nil
		}
		r.note(sym)
		return r.b.Graph.ContentSymbols(sym, name, -1)
	case symbols.KindClass:
		r.note(sym)
		if cands := r.b.Graph.ContentSymbols(sym, name, -1); len(cands) > 0 {
			return cands
		}
		var out []*symbols.Symbol
		for _, baseID := range sym.Class.Bases {
			out = append(out, r.member(r.b.Graph.Get(baseID), name, visited)...)
		}
		return out
	case symbols.KindVariable:
		var out []*symbols.Symbol
		for _, target := range r.followVariable(sym) {
			out = append(out, r.member(target, name, visited)...)
		}
		return out
	}
	return nil
}

// followVariable chases a variable's evaluations to their target
// symbols. Literal evaluations contribute nothing.
func (r *resolver) followVariable(v *symbols.Symbol) []*symbols.Symbol {
	if v.Variable == nil {
		return nil
	}
	var out []*symbols.Symbol
	for _, eval := range v.Variable.Evals {
		switch eval.Kind {
		case symbols.EvalSymbol, symbols.EvalInstance:
			if target := r.b.Graph.Get(eval.Target); target != nil {
				r.note(target)
				out = append(out, target)
			}
		}
	}
	return out
}

func (r *resolver) note(sym *symbols.Symbol) {
	if r.from == nil || sym == nil {
		return
	}
	file := r.b.Graph.ContainingFile(sym.ID)
	if file == nil || file.ID == r.from.ID {
		return
	}
	if path := file.Path(); path != "" {
		r.b.Graph.AddFileDependency(r.from, path)
	}
}

func newVisited() map[symbols.SymbolID]struct{} {
	return make(map[symbols.SymbolID]struct{})
}

func dedupe(syms []*symbols.Symbol) []*symbols.Symbol {
	if len(syms) < 2 {
		return syms
	}
	seen := make(map[symbols.SymbolID]struct{}, len(syms))
	out := syms[:0]
	for _, sym := range syms {
		if _, dup := seen[sym.ID]; dup {
			continue
		}
		seen[sym.ID] = struct{}{}
		out = append(out, sym)
	}
	return out
}
