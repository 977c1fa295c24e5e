package build

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// buildArch creates the content symbols of one file or package from
// its parse tree. Prior content symbols are evicted first so the pass
// is idempotent under the same content.
func buildArch(ctx context.Context, b *Context, sym *symbols.Symbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clearContent(b, sym)
	b.Graph.DropFileDependencies(sym)
	sym.File.FlushEvalCache()

	doc := b.contentDocument(sym)
	if doc == nil || doc.Tree == nil {
		return nil
	}
	sym.File.Hash = doc.Hash

	w := &archWalker{b: b, content: doc.Content, models: make(map[symbols.SymbolID]*symbols.ModelData)}
	counter := 1
	w.statements(doc.Tree.RootNode(), sym, 0, &counter)
	return nil
}

// archWalker walks statement trees creating symbols. Sections within a
// scope separate alternative declaration branches: statements on the
// main path share section 0 and every conditional arm (if/elif/else,
// except clauses) claims a fresh section from the scope's counter.
type archWalker struct {
	b       *Context
	content []byte

	// models accumulates declarative-model attributes per class while
	// its body is being walked.
	models map[symbols.SymbolID]*symbols.ModelData
}

func (w *archWalker) statements(block *sitter.Node, scope *symbols.Symbol, section int, counter *int) {
	if block == nil {
		return
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		w.statement(block.NamedChild(i), scope, section, counter, i == 0)
	}
}

func (w *archWalker) statement(node *sitter.Node, scope *symbols.Symbol, section int, counter *int, first bool) {
	switch node.Type() {
	case "expression_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "assignment":
				w.assignment(child, scope, section)
			case "string":
				if first && i == 0 {
					w.docstring(scope, child)
				}
			}
		}
	case "class_definition":
		w.classDefinition(node, nil, scope, section)
	case "function_definition":
		w.functionDefinition(node, nil, scope, section)
	case "decorated_definition":
		w.decoratedDefinition(node, scope, section)
	case "import_statement":
		w.importStatement(node, scope, section)
	case "import_from_statement", "future_import_statement":
		w.importFromStatement(node, scope, section)
	case "if_statement":
		w.ifStatement(node, scope, counter)
	case "for_statement":
		w.bindTargets(node.ChildByFieldName("left"), scope, section)
		w.statements(node.ChildByFieldName("body"), scope, section, counter)
		w.elseClause(node, scope, section, counter)
	case "while_statement":
		w.statements(node.ChildByFieldName("body"), scope, section, counter)
		w.elseClause(node, scope, section, counter)
	case "with_statement":
		w.withStatement(node, scope, section, counter)
	case "try_statement":
		w.tryStatement(node, scope, section, counter)
	}
}

func (w *archWalker) elseClause(node *sitter.Node, scope *symbols.Symbol, section int, counter *int) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "else_clause" {
			w.statements(child.ChildByFieldName("body"), scope, section, counter)
		}
	}
}

func (w *archWalker) ifStatement(node *sitter.Node, scope *symbols.Symbol, counter *int) {
	sec := *counter
	*counter++
	w.statements(node.ChildByFieldName("consequence"), scope, sec, counter)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "elif_clause":
			sec = *counter
			*counter++
			w.statements(child.ChildByFieldName("consequence"), scope, sec, counter)
		case "else_clause":
			sec = *counter
			*counter++
			w.statements(child.ChildByFieldName("body"), scope, sec, counter)
		}
	}
}

func (w *archWalker) tryStatement(node *sitter.Node, scope *symbols.Symbol, section int, counter *int) {
	w.statements(node.ChildByFieldName("body"), scope, section, counter)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "except_clause":
			sec := *counter
			*counter++
			w.exceptClause(child, scope, sec, counter)
		case "else_clause":
			w.statements(child.ChildByFieldName("body"), scope, section, counter)
		case "finally_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if body := child.NamedChild(j); body.Type() == "block" {
					w.statements(body, scope, section, counter)
				}
			}
		}
	}
}

func (w *archWalker) exceptClause(node *sitter.Node, scope *symbols.Symbol, section int, counter *int) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "block":
			w.statements(child, scope, section, counter)
		case "as_pattern":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				w.bindTargets(alias.NamedChild(0), scope, section)
			}
		}
	}
}

func (w *archWalker) withStatement(node *sitter.Node, scope *symbols.Symbol, section int, counter *int) {
	if clause := firstNamedOfType(node, "with_clause"); clause != nil {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			item := clause.NamedChild(i)
			if item.Type() != "with_item" {
				continue
			}
			value := item.ChildByFieldName("value")
			if value == nil || value.Type() != "as_pattern" {
				continue
			}
			if alias := value.ChildByFieldName("alias"); alias != nil {
				w.bindTargets(alias.NamedChild(0), scope, section)
			}
		}
	}
	w.statements(node.ChildByFieldName("body"), scope, section, counter)
}

func (w *archWalker) assignment(node *sitter.Node, scope *symbols.Symbol, section int) {
	left := node.ChildByFieldName("left")
	if left == nil {
		return
	}
	if scope.Class != nil && left.Type() == "identifier" {
		w.modelAttribute(scope, left.Content(w.content), node.ChildByFieldName("right"))
	}
	w.bindTargets(left, scope, section)
}

// bindTargets creates variable symbols for the identifiers of an
// assignment or loop target. Attribute and subscript targets declare
// nothing in the lexical scope and are skipped.
func (w *archWalker) bindTargets(target *sitter.Node, scope *symbols.Symbol, section int) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		w.newVariable(target, scope, section)
	case "pattern_list", "tuple_pattern", "tuple", "list_pattern", "list":
		for i := 0; i < int(target.NamedChildCount()); i++ {
			w.bindTargets(target.NamedChild(i), scope, section)
		}
	}
}

func (w *archWalker) newVariable(ident *sitter.Node, scope *symbols.Symbol, section int) *symbols.Symbol {
	v := w.b.Graph.NewSymbol(symbols.KindVariable, ident.Content(w.content))
	v.Range = span(ident)
	if err := w.b.Graph.AddSymbol(scope.ID, v.ID, section); err != nil {
		return nil
	}
	return v
}

func (w *archWalker) docstring(scope *symbols.Symbol, str *sitter.Node) {
	doc := strings.TrimSpace(source.Unquote(str.Content(w.content)))
	switch {
	case scope.Class != nil:
		scope.Class.Doc = doc
	case scope.Function != nil:
		scope.Function.Doc = doc
	}
}

func (w *archWalker) decoratedDefinition(node *sitter.Node, scope *symbols.Symbol, section int) {
	var decorators []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "decorator" {
			decorators = append(decorators, child)
		}
	}
	def := node.ChildByFieldName("definition")
	if def == nil {
		return
	}
	switch def.Type() {
	case "class_definition":
		w.classDefinition(def, decorators, scope, section)
	case "function_definition":
		w.functionDefinition(def, decorators, scope, section)
	}
}

func (w *archWalker) classDefinition(node *sitter.Node, _ []*sitter.Node, scope *symbols.Symbol, section int) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	cls := w.b.Graph.NewSymbol(symbols.KindClass, nameNode.Content(w.content))
	cls.Range = span(nameNode)
	cls.Body = span(node)
	if err := w.b.Graph.AddSymbol(scope.ID, cls.ID, section); err != nil {
		return
	}

	counter := 1
	w.statements(node.ChildByFieldName("body"), cls, 0, &counter)

	if m := w.models[cls.ID]; m != nil && len(m.Names()) > 0 {
		cls.Class.Model = m
		w.b.Graph.RegisterModel(cls.ID)
	}
	delete(w.models, cls.ID)
}

func (w *archWalker) functionDefinition(node *sitter.Node, decorators []*sitter.Node, scope *symbols.Symbol, section int) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	fn := w.b.Graph.NewSymbol(symbols.KindFunction, nameNode.Content(w.content))
	fn.Range = span(nameNode)
	fn.Body = span(node)
	if err := w.b.Graph.AddSymbol(scope.ID, fn.ID, section); err != nil {
		return
	}

	for _, dec := range decorators {
		w.applyDecorator(dec, scope, fn)
	}
	w.parameters(node.ChildByFieldName("parameters"), fn)

	counter := 1
	w.statements(node.ChildByFieldName("body"), fn, 0, &counter)
}

// applyDecorator reads the builtin method decorators and, on model
// classes, records compute dependencies declared via *.depends(...).
func (w *archWalker) applyDecorator(dec *sitter.Node, scope, fn *symbols.Symbol) {
	expr := dec.NamedChild(0)
	if expr == nil {
		return
	}
	switch decoratorName(expr, w.content) {
	case "staticmethod":
		fn.Function.IsStatic = true
	case "classmethod":
		fn.Function.IsClassMethod = true
	case "property":
		fn.Function.IsProperty = true
	case "depends":
		if scope.Class == nil || expr.Type() != "call" {
			return
		}
		var deps []string
		if args := expr.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				if arg := args.NamedChild(i); arg.Type() == "string" {
					deps = append(deps, source.Unquote(arg.Content(w.content)))
				}
			}
		}
		if len(deps) > 0 {
			m := w.modelFor(scope.ID)
			if m.FieldDependencies == nil {
				m.FieldDependencies = make(map[string][]string)
			}
			m.FieldDependencies[fn.Name] = deps
		}
	}
}

// decoratorName returns the final name segment of a decorator
// expression: "property" for @property, "depends" for @api.depends(...).
func decoratorName(expr *sitter.Node, content []byte) string {
	switch expr.Type() {
	case "identifier":
		return expr.Content(content)
	case "attribute":
		if attr := expr.ChildByFieldName("attribute"); attr != nil {
			return attr.Content(content)
		}
	case "call":
		if fn := expr.ChildByFieldName("function"); fn != nil {
			return decoratorName(fn, content)
		}
	}
	return ""
}

func (w *archWalker) parameters(params *sitter.Node, fn *symbols.Symbol) {
	if params == nil {
		return
	}
	kind := symbols.ArgNormal
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			w.addArg(fn, p, kind, false)
		case "typed_parameter":
			if ident := firstNamedOfType(p, "identifier"); ident != nil {
				w.addArg(fn, ident, kind, false)
			}
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				w.addArg(fn, name, kind, true)
			}
		case "list_splat_pattern":
			if ident := firstNamedOfType(p, "identifier"); ident != nil {
				w.addArg(fn, ident, symbols.ArgVariadic, false)
			}
			kind = symbols.ArgKeywordOnly
		case "dictionary_splat_pattern":
			if ident := firstNamedOfType(p, "identifier"); ident != nil {
				w.addArg(fn, ident, symbols.ArgKeywordVariadic, false)
			}
		case "keyword_separator":
			kind = symbols.ArgKeywordOnly
		case "positional_separator":
			for j := range fn.Function.Args {
				if fn.Function.Args[j].Kind == symbols.ArgNormal {
					fn.Function.Args[j].Kind = symbols.ArgPositionalOnly
				}
			}
		}
	}
}

func (w *archWalker) addArg(fn *symbols.Symbol, ident *sitter.Node, kind symbols.ArgKind, hasDefault bool) {
	v := w.newVariable(ident, fn, 0)
	if v == nil {
		return
	}
	v.Variable.IsParameter = true
	fn.Function.Args = append(fn.Function.Args, symbols.Arg{
		Name:       v.Name,
		Symbol:     v.ID,
		Kind:       kind,
		HasDefault: hasDefault,
	})
}

func (w *archWalker) importStatement(node *sitter.Node, scope *symbols.Symbol, section int) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			// import a.b binds the name "a".
			if first := child.NamedChild(0); first != nil && first.Type() == "identifier" {
				w.newImport(first, first.Content(w.content), scope, section)
			}
		case "aliased_import":
			w.aliasedImport(child, scope, section)
		}
	}
}

func (w *archWalker) importFromStatement(node *sitter.Node, scope *symbols.Symbol, section int) {
	moduleName := node.ChildByFieldName("module_name")
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if moduleName != nil && child.StartByte() == moduleName.StartByte() && child.EndByte() == moduleName.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			// from x import y binds "y".
			if last := child.NamedChild(int(child.NamedChildCount()) - 1); last != nil && last.Type() == "identifier" {
				w.newImport(last, last.Content(w.content), scope, section)
			}
		case "aliased_import":
			w.aliasedImport(child, scope, section)
		}
	}
}

func (w *archWalker) aliasedImport(node *sitter.Node, scope *symbols.Symbol, section int) {
	alias := node.ChildByFieldName("alias")
	if alias == nil {
		return
	}
	w.newImport(alias, alias.Content(w.content), scope, section)
}

func (w *archWalker) newImport(ident *sitter.Node, name string, scope *symbols.Symbol, section int) {
	v := w.b.Graph.NewSymbol(symbols.KindVariable, name)
	v.Range = span(ident)
	if err := w.b.Graph.AddSymbol(scope.ID, v.ID, section); err != nil {
		return
	}
	v.Variable.IsImport = true
}

func (w *archWalker) modelFor(classID symbols.SymbolID) *symbols.ModelData {
	m := w.models[classID]
	if m == nil {
		m = &symbols.ModelData{}
		w.models[classID] = m
	}
	return m
}

// modelAttribute records the declarative metadata attributes of a
// class body assignment. Non-literal values are ignored.
func (w *archWalker) modelAttribute(cls *symbols.Symbol, name string, rhs *sitter.Node) {
	if rhs == nil || !strings.HasPrefix(name, "_") {
		return
	}
	switch name {
	case "_name":
		if rhs.Type() == "string" {
			w.modelFor(cls.ID).Name = source.Unquote(rhs.Content(w.content))
		}
	case "_inherit":
		m := w.modelFor(cls.ID)
		switch rhs.Type() {
		case "string":
			m.Inherit = append(m.Inherit, source.Unquote(rhs.Content(w.content)))
		case "list", "tuple":
			for i := 0; i < int(rhs.NamedChildCount()); i++ {
				if item := rhs.NamedChild(i); item.Type() == "string" {
					m.Inherit = append(m.Inherit, source.Unquote(item.Content(w.content)))
				}
			}
		}
	case "_table":
		if rhs.Type() == "string" {
			w.modelFor(cls.ID).Table = source.Unquote(rhs.Content(w.content))
		}
	case "_order":
		if rhs.Type() == "string" {
			w.modelFor(cls.ID).Order = source.Unquote(rhs.Content(w.content))
		}
	case "_description":
		if rhs.Type() == "string" {
			w.modelFor(cls.ID).Description = source.Unquote(rhs.Content(w.content))
		}
	case "_abstract":
		w.modelFor(cls.ID).Abstract = rhs.Type() == "true"
	case "_transient":
		w.modelFor(cls.ID).Transient = rhs.Type() == "true"
	}
}

func span(node *sitter.Node) symbols.Span {
	return symbols.Span{Start: int(node.StartByte()), End: int(node.EndByte())}
}

func firstNamedOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == typ {
			return child
		}
	}
	return nil
}
