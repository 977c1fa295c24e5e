package build

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// Reference is one confirmed use of a symbol.
type Reference struct {
	Path string       `json:"path"`
	Span symbols.Span `json:"span"`
}

// ReferencesAt finds every use of the symbol under the byte offset,
// scanning all tracked documents. Candidate occurrences are found by
// matching identifier text and confirmed by re-resolving each one at
// its own position; only occurrences that reach the same symbol are
// kept, so shadowed names in unrelated scopes never leak in. Import
// aliases are followed on both sides: a use of `from lib import X`
// counts as a use of lib's X.
func ReferencesAt(ctx context.Context, b *Context, doc *source.Document, offset int) []Reference {
	targets := ResolveAt(ctx, b, doc, offset)
	if len(targets) == 0 {
		return nil
	}
	target := targets[len(targets)-1]
	if followed := importTarget(b, target); followed != nil {
		target = followed
	}

	var refs []Reference
	for _, path := range b.Sources.Paths() {
		if ctx.Err() != nil {
			return nil
		}
		other := b.Sources.Get(path)
		if other == nil || other.Tree == nil {
			continue
		}
		for _, span := range identifierSpans(other.Tree.RootNode(), other.Content, target.Name) {
			for _, cand := range ResolveAt(ctx, b, other, span.Start) {
				if sameTarget(b, cand, target) {
					refs = append(refs, Reference{Path: path, Span: span})
					break
				}
			}
		}
	}
	return refs
}

// sameTarget reports whether a resolved occurrence designates target,
// either directly or through an import alias.
func sameTarget(b *Context, cand, target *symbols.Symbol) bool {
	if cand.ID == target.ID {
		return true
	}
	if followed := importTarget(b, cand); followed != nil {
		return followed.ID == target.ID
	}
	return false
}

// importTarget follows an import variable to the symbol it binds.
// Non-import symbols and unresolved imports yield nil.
func importTarget(b *Context, sym *symbols.Symbol) *symbols.Symbol {
	if sym.Variable == nil || !sym.Variable.IsImport {
		return nil
	}
	for i := len(sym.Variable.Evals) - 1; i >= 0; i-- {
		eval := sym.Variable.Evals[i]
		switch eval.Kind {
		case symbols.EvalSymbol, symbols.EvalInstance:
			if target := b.Graph.Get(eval.Target); target != nil {
				return target
			}
		}
	}
	return nil
}

// identifierSpans collects the spans of identifier nodes whose text
// equals name, in document order.
func identifierSpans(root *sitter.Node, content []byte, name string) []symbols.Span {
	var spans []symbols.Span
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "identifier" {
			if n.Content(content) == name {
				spans = append(spans, symbols.Span{Start: int(n.StartByte()), End: int(n.EndByte())})
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return spans
}
