package build

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// buildArchEval resolves the structural references of one file: import
// targets, base classes and module- and class-level assignment values.
// Function bodies are left to the validation pass. Cross-file
// resolutions feed the dependency index used for rebuild invalidation.
func buildArchEval(ctx context.Context, b *Context, sym *symbols.Symbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := b.contentDocument(sym)
	if doc == nil || doc.Tree == nil {
		return nil
	}

	w := &evalWalker{
		b:       b,
		r:       &resolver{ctx: ctx, b: b, from: sym},
		doc:     doc,
		content: doc.Content,
		file:    sym,
	}
	w.statements(doc.Tree.RootNode(), sym)
	doc.SetDiagnostics(diag.StageArchEval, w.diags)
	return ctx.Err()
}

// evalWalker revisits the statement tree built by the arch pass,
// matching nodes to their symbols by declaration range.
type evalWalker struct {
	b       *Context
	r       *resolver
	doc     *source.Document
	content []byte
	file    *symbols.Symbol
	diags   []diag.Diagnostic
}

func (w *evalWalker) statements(block *sitter.Node, scope *symbols.Symbol) {
	if block == nil {
		return
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		w.statement(block.NamedChild(i), scope)
	}
}

func (w *evalWalker) statement(node *sitter.Node, scope *symbols.Symbol) {
	switch node.Type() {
	case "expression_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); child.Type() == "assignment" {
				w.assignment(child, scope)
			}
		}
	case "class_definition":
		w.classDefinition(node, scope)
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil && def.Type() == "class_definition" {
			w.classDefinition(def, scope)
		}
	case "import_statement":
		w.importStatement(node, scope)
	case "import_from_statement":
		w.importFromStatement(node, scope)
	case "if_statement":
		w.statements(node.ChildByFieldName("consequence"), scope)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "elif_clause":
				w.statements(child.ChildByFieldName("consequence"), scope)
			case "else_clause":
				w.statements(child.ChildByFieldName("body"), scope)
			}
		}
	case "for_statement", "while_statement", "with_statement":
		w.statements(node.ChildByFieldName("body"), scope)
	case "try_statement":
		w.statements(node.ChildByFieldName("body"), scope)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "except_clause":
				for j := 0; j < int(child.NamedChildCount()); j++ {
					if body := child.NamedChild(j); body.Type() == "block" {
						w.statements(body, scope)
					}
				}
			case "else_clause":
				w.statements(child.ChildByFieldName("body"), scope)
			case "finally_clause":
				for j := 0; j < int(child.NamedChildCount()); j++ {
					if body := child.NamedChild(j); body.Type() == "block" {
						w.statements(body, scope)
					}
				}
			}
		}
	}
}

// eval evaluates one expression with a fresh cycle guard.
func (w *evalWalker) eval(node *sitter.Node, scope *symbols.Symbol) []symbols.Evaluation {
	e := newEvaluator(w.r, w.file, w.content)
	return e.expression(node, scope)
}

// symbolAt finds the declaration symbol the arch pass created for the
// given name range.
func (w *evalWalker) symbolAt(scope *symbols.Symbol, name string, rng symbols.Span) *symbols.Symbol {
	for _, cand := range w.b.Graph.ContentSymbols(scope, name, -1) {
		if cand.Range == rng {
			return cand
		}
	}
	return nil
}

func (w *evalWalker) assignment(node *sitter.Node, scope *symbols.Symbol) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" {
		return
	}
	v := w.symbolAt(scope, left.Content(w.content), span(left))
	if v == nil || v.Variable == nil {
		return
	}
	v.Variable.Evals = w.eval(right, scope)
}

func (w *evalWalker) classDefinition(node *sitter.Node, scope *symbols.Symbol) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	cls := w.symbolAt(scope, nameNode.Content(w.content), span(nameNode))
	if cls == nil || cls.Class == nil {
		return
	}

	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		w.resolveBases(supers, cls, scope)
	}
	w.checkInherit(cls, node)
	w.statements(node.ChildByFieldName("body"), cls)
}

func (w *evalWalker) resolveBases(supers *sitter.Node, cls, scope *symbols.Symbol) {
	cls.Class.Bases = cls.Class.Bases[:0]
	for i := 0; i < int(supers.NamedChildCount()); i++ {
		base := supers.NamedChild(i)
		var parts []string
		switch base.Type() {
		case "identifier", "attribute", "dotted_name":
			parts = strings.Split(base.Content(w.content), ".")
		default:
			continue
		}

		targets := w.r.path(scope, parts, int(base.StartByte()))
		resolved := false
		for _, target := range targets {
			if target.Kind == symbols.KindClass {
				cls.Class.Bases = append(cls.Class.Bases, target.ID)
				resolved = true
			}
		}
		if resolved {
			continue
		}
		// Only report when the head of the chain resolved to something
		// in the workspace; unknown externals stay silent.
		if len(parts) > 1 && len(w.r.scopeLookup(scope, parts[0], int(base.StartByte()))) > 0 {
			w.diags = append(w.diags, diag.Diagnostic{
				Code:     diag.CodeBaseClassNotFound,
				Severity: diag.SeverityWarning,
				Message:  "base class " + base.Content(w.content) + " not found",
				Start:    int(base.StartByte()),
				End:      int(base.EndByte()),
			})
		}
	}
}

// checkInherit warns when a class extends a model name nothing in the
// workspace declares.
func (w *evalWalker) checkInherit(cls *symbols.Symbol, node *sitter.Node) {
	if cls.Class.Model == nil {
		return
	}
	for _, name := range cls.Class.Model.Inherit {
		if name == cls.Class.Model.Name {
			continue
		}
		declared := false
		for _, impl := range w.b.Graph.ModelClasses(name) {
			if impl.Class != nil && impl.Class.Model != nil && impl.Class.Model.Name == name {
				declared = true
				break
			}
		}
		if !declared {
			w.diags = append(w.diags, diag.Diagnostic{
				Code:     diag.CodeUnknownModel,
				Severity: diag.SeverityWarning,
				Message:  "unknown model " + name,
				Start:    cls.Range.Start,
				End:      cls.Range.End,
			})
		}
	}
}

func (w *evalWalker) importStatement(node *sitter.Node, scope *symbols.Symbol) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			// import a.b binds "a" to the top-level package.
			if first := child.NamedChild(0); first != nil && first.Type() == "identifier" {
				w.bindImport(scope, first, w.modulePath(child.Content(w.content)[:first.EndByte()-child.StartByte()]), child, w.workspaceImport(child))
			}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			w.bindImport(scope, alias, w.modulePath(name.Content(w.content)), name, w.workspaceImport(name))
		}
	}
}

func (w *evalWalker) importFromStatement(node *sitter.Node, scope *symbols.Symbol) {
	moduleName := node.ChildByFieldName("module_name")
	if moduleName == nil {
		return
	}
	modules := w.modulePath(moduleName.Content(w.content))
	// A member miss is reportable when the module itself resolved, or
	// when the module names something the workspace should contain.
	known := len(modules) > 0 || w.workspaceImport(moduleName)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == moduleName.StartByte() && child.EndByte() == moduleName.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			if last := child.NamedChild(int(child.NamedChildCount()) - 1); last != nil && last.Type() == "identifier" {
				w.bindImport(scope, last, w.importedMember(modules, last.Content(w.content)), child, known)
			}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			w.bindImport(scope, alias, w.importedMember(modules, name.Content(w.content)), name, known)
		}
	}
}

// importedMember resolves one imported name inside the resolved source
// modules: a submodule or a symbol from the module's own content.
func (w *evalWalker) importedMember(modules []*symbols.Symbol, name string) []*symbols.Symbol {
	var out []*symbols.Symbol
	visited := newVisited()
	for _, mod := range modules {
		out = append(out, w.r.member(mod, name, visited)...)
	}
	return dedupe(out)
}

// modulePath resolves a module reference such as "sale.models",
// ".order" or "..". Leading dots climb from the containing package.
func (w *evalWalker) modulePath(text string) []*symbols.Symbol {
	level := 0
	for level < len(text) && text[level] == '.' {
		level++
	}
	rest := text[level:]

	var cur []*symbols.Symbol
	if level == 0 {
		parts := strings.Split(rest, ".")
		cands := w.b.Graph.ContentSymbols(w.b.Graph.Root(), parts[0], -1)
		for _, cand := range cands {
			w.r.note(cand)
		}
		cur = cands
		rest = strings.Join(parts[1:], ".")
	} else {
		anchor := w.b.Graph.Get(w.file.ID)
		// One dot is the containing package; each further dot climbs.
		if anchor != nil && anchor.Kind == symbols.KindFile {
			anchor = w.b.Graph.Get(anchor.Parent)
		}
		for i := 1; i < level && anchor != nil; i++ {
			anchor = w.b.Graph.Get(anchor.Parent)
		}
		if anchor == nil || (anchor.Kind != symbols.KindPackage && anchor.Kind != symbols.KindFile) {
			return nil
		}
		cur = []*symbols.Symbol{anchor}
	}

	if rest == "" {
		return cur
	}
	for _, part := range strings.Split(rest, ".") {
		var next []*symbols.Symbol
		visited := newVisited()
		for _, cand := range cur {
			next = append(next, w.r.member(cand, part, visited)...)
		}
		cur = dedupe(next)
	}
	return cur
}

// bindImport stores the resolved targets on the import variable and
// reports imports that should resolve inside the workspace but do not.
func (w *evalWalker) bindImport(scope *symbols.Symbol, ident *sitter.Node, targets []*symbols.Symbol, source *sitter.Node, known bool) {
	v := w.symbolAt(scope, ident.Content(w.content), span(ident))
	if v == nil || v.Variable == nil {
		return
	}

	evals := make([]symbols.Evaluation, 0, len(targets))
	for _, target := range targets {
		w.r.note(target)
		evals = append(evals, symbols.SymbolEval(target.ID))
	}
	v.Variable.Evals = evals

	if len(targets) == 0 && known {
		w.diags = append(w.diags, diag.Diagnostic{
			Code:     diag.CodeUnresolvedImport,
			Severity: diag.SeverityWarning,
			Message:  "unresolved import " + strings.TrimSpace(source.Content(w.content)),
			Start:    int(source.StartByte()),
			End:      int(source.EndByte()),
		})
	}
}

// workspaceImport reports whether an unresolved import names something
// the workspace should contain: a relative import, or an absolute one
// whose first segment is a known top-level module. Imports of external
// packages are resolution misses, not diagnostics.
func (w *evalWalker) workspaceImport(node *sitter.Node) bool {
	text := node.Content(w.content)
	if strings.HasPrefix(text, ".") {
		return true
	}
	first := text
	if i := strings.IndexByte(text, '.'); i >= 0 {
		first = text[:i]
	}
	return len(w.b.Graph.ContentSymbols(w.b.Graph.Root(), first, -1)) > 0
}
