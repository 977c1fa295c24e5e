package build

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// buildValidation checks the function bodies of one file, the part the
// arch-eval pass leaves untouched. Every bare name loaded in a body
// must resolve through the scope chain or the builtin namespace;
// attribute chains, calls and reference strings are evaluated so that
// cross-file uses inside bodies land in the dependency index, but their
// misses stay silent: candidate sets are unions and a miss on one
// candidate proves nothing.
func buildValidation(ctx context.Context, b *Context, sym *symbols.Symbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := b.contentDocument(sym)
	if doc == nil || doc.Tree == nil {
		return nil
	}

	v := &validator{
		b:       b,
		r:       &resolver{ctx: ctx, b: b, from: sym},
		content: doc.Content,
		file:    sym,
		assumed: make(map[string]struct{}),
	}
	root := doc.Tree.RootNode()
	v.wildcard = wildcardImport(root)
	v.defs(root, sym)
	doc.SetDiagnostics(diag.StageValidation, v.diags)
	return ctx.Err()
}

// validator walks function bodies. assumed collects names bound by
// constructs the arch pass does not model (walrus targets, global and
// nonlocal declarations); wildcard disables undefined-name reporting
// when a star import makes the namespace undecidable.
type validator struct {
	b        *Context
	r        *resolver
	content  []byte
	file     *symbols.Symbol
	assumed  map[string]struct{}
	wildcard bool
	diags    []diag.Diagnostic
}

// defs descends through module- and class-level statements looking for
// the function definitions to validate. Expressions at those levels
// were already covered by the arch-eval pass.
func (v *validator) defs(node *sitter.Node, scope *symbols.Symbol) {
	if node == nil || v.r.ctx.Err() != nil {
		return
	}
	switch node.Type() {
	case "function_definition":
		v.functionDefinition(node, scope)
		return
	case "class_definition":
		if cls := v.symbolAt(scope, node); cls != nil {
			v.defs(node.ChildByFieldName("body"), cls)
		}
		return
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			v.defs(def, scope)
		}
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		v.defs(node.NamedChild(i), scope)
	}
}

// symbolAt finds the declaration symbol the arch pass created for a
// class or function definition node.
func (v *validator) symbolAt(scope *symbols.Symbol, def *sitter.Node) *symbols.Symbol {
	name := def.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	for _, cand := range v.b.Graph.ContentSymbols(scope, name.Content(v.content), -1) {
		if cand.Range == span(name) {
			return cand
		}
	}
	return nil
}

func (v *validator) functionDefinition(node *sitter.Node, scope *symbols.Symbol) {
	fn := v.symbolAt(scope, node)
	if fn == nil {
		return
	}
	// Parameter defaults evaluate in the enclosing scope.
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "default_parameter", "typed_default_parameter":
				v.expr(p.ChildByFieldName("value"), scope)
			}
		}
	}
	v.body(node.ChildByFieldName("body"), fn)
}

func (v *validator) body(block *sitter.Node, scope *symbols.Symbol) {
	if block == nil {
		return
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		v.statement(block.NamedChild(i), scope)
	}
}

func (v *validator) statement(node *sitter.Node, scope *symbols.Symbol) {
	if v.r.ctx.Err() != nil {
		return
	}
	switch node.Type() {
	case "expression_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "assignment":
				v.target(child.ChildByFieldName("left"), scope)
				v.expr(child.ChildByFieldName("right"), scope)
			case "augmented_assignment":
				v.expr(child.ChildByFieldName("left"), scope)
				v.expr(child.ChildByFieldName("right"), scope)
			case "string":
				// docstring
			default:
				v.expr(child, scope)
			}
		}
	case "return_statement", "delete_statement", "raise_statement", "assert_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			v.expr(node.NamedChild(i), scope)
		}
	case "if_statement":
		v.expr(node.ChildByFieldName("condition"), scope)
		v.body(node.ChildByFieldName("consequence"), scope)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "elif_clause":
				v.expr(child.ChildByFieldName("condition"), scope)
				v.body(child.ChildByFieldName("consequence"), scope)
			case "else_clause":
				v.body(child.ChildByFieldName("body"), scope)
			}
		}
	case "while_statement":
		v.expr(node.ChildByFieldName("condition"), scope)
		v.body(node.ChildByFieldName("body"), scope)
		v.elseClause(node, scope)
	case "for_statement":
		v.target(node.ChildByFieldName("left"), scope)
		v.expr(node.ChildByFieldName("right"), scope)
		v.body(node.ChildByFieldName("body"), scope)
		v.elseClause(node, scope)
	case "with_statement":
		if clause := firstNamedOfType(node, "with_clause"); clause != nil {
			for i := 0; i < int(clause.NamedChildCount()); i++ {
				item := clause.NamedChild(i)
				if item.Type() != "with_item" {
					continue
				}
				value := item.ChildByFieldName("value")
				if value != nil && value.Type() == "as_pattern" {
					v.expr(value.NamedChild(0), scope)
					continue
				}
				v.expr(value, scope)
			}
		}
		v.body(node.ChildByFieldName("body"), scope)
	case "try_statement":
		v.body(node.ChildByFieldName("body"), scope)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "except_clause":
				v.exceptClause(child, scope)
			case "else_clause":
				v.body(child.ChildByFieldName("body"), scope)
			case "finally_clause":
				for j := 0; j < int(child.NamedChildCount()); j++ {
					if body := child.NamedChild(j); body.Type() == "block" {
						v.body(body, scope)
					}
				}
			}
		}
	case "function_definition":
		v.functionDefinition(node, scope)
	case "class_definition":
		v.defs(node, scope)
	case "decorated_definition":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); child.Type() == "decorator" {
				v.expr(child.NamedChild(0), scope)
			}
		}
		if def := node.ChildByFieldName("definition"); def != nil {
			v.statement(def, scope)
		}
	case "global_statement", "nonlocal_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if ident := node.NamedChild(i); ident.Type() == "identifier" {
				v.assumed[ident.Content(v.content)] = struct{}{}
			}
		}
	}
}

func (v *validator) elseClause(node *sitter.Node, scope *symbols.Symbol) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "else_clause" {
			v.body(child.ChildByFieldName("body"), scope)
		}
	}
}

func (v *validator) exceptClause(node *sitter.Node, scope *symbols.Symbol) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "block":
			v.body(child, scope)
		case "as_pattern":
			// The alias was bound by the arch pass; only the exception
			// type is a load.
			v.expr(child.NamedChild(0), scope)
		default:
			if child.Type() != "comment" {
				v.expr(child, scope)
			}
		}
	}
}

// target checks the non-binding sides of an assignment target:
// `a.b = x` and `a[i] = x` load `a` (and `i`) even though they declare
// nothing.
func (v *validator) target(node *sitter.Node, scope *symbols.Symbol) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier":
		// binding occurrence
	case "attribute":
		v.expr(node.ChildByFieldName("object"), scope)
	case "subscript":
		v.expr(node.ChildByFieldName("value"), scope)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if value := node.ChildByFieldName("value"); value != nil && child.StartByte() == value.StartByte() {
				continue
			}
			v.expr(child, scope)
		}
	case "pattern_list", "tuple_pattern", "tuple", "list_pattern", "list":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			v.target(node.NamedChild(i), scope)
		}
	}
}

// expr validates one expression in load context.
func (v *validator) expr(node *sitter.Node, scope *symbols.Symbol) {
	if node == nil || v.r.ctx.Err() != nil {
		return
	}
	switch node.Type() {
	case "identifier":
		v.checkName(node, scope)
	case "attribute":
		v.expr(node.ChildByFieldName("object"), scope)
		v.eval(node, scope)
	case "call":
		v.expr(node.ChildByFieldName("function"), scope)
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				arg := args.NamedChild(i)
				if arg.Type() == "keyword_argument" {
					v.expr(arg.ChildByFieldName("value"), scope)
					continue
				}
				v.expr(arg, scope)
			}
		}
		v.eval(node, scope)
	case "string":
		v.eval(node, scope)
	case "named_expression":
		if name := node.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			v.assumed[name.Content(v.content)] = struct{}{}
		}
		v.expr(node.ChildByFieldName("value"), scope)
	case "keyword_argument":
		v.expr(node.ChildByFieldName("value"), scope)
	case "lambda", "list_comprehension", "set_comprehension",
		"dictionary_comprehension", "generator_expression":
		// Their bindings live in scopes the graph does not model.
	case "integer", "float", "true", "false", "none", "ellipsis", "comment":
	default:
		for i := 0; i < int(node.NamedChildCount()); i++ {
			v.expr(node.NamedChild(i), scope)
		}
	}
}

// eval runs the expression evaluator for its side effects: warming the
// file's evaluation cache and recording cross-file dependencies.
func (v *validator) eval(node *sitter.Node, scope *symbols.Symbol) {
	e := newEvaluator(v.r, v.file, v.content)
	e.expression(node, scope)
}

func (v *validator) checkName(ident *sitter.Node, scope *symbols.Symbol) {
	name := ident.Content(v.content)
	if _, ok := v.assumed[name]; ok {
		return
	}
	if _, ok := pythonBuiltins[name]; ok {
		return
	}
	offset := int(ident.StartByte())
	if len(v.r.scopeLookup(scope, name, offset)) > 0 {
		return
	}
	if v.wildcard {
		return
	}
	v.diags = append(v.diags, diag.Diagnostic{
		Code:     diag.CodeUndefinedName,
		Severity: diag.SeverityError,
		Message:  "undefined name " + name,
		Start:    offset,
		End:      int(ident.EndByte()),
	})
}

// wildcardImport reports whether the file has a top-level star import,
// after which bare-name definedness is undecidable.
func wildcardImport(root *sitter.Node) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "import_from_statement" {
			continue
		}
		for j := 0; j < int(stmt.NamedChildCount()); j++ {
			if stmt.NamedChild(j).Type() == "wildcard_import" {
				return true
			}
		}
	}
	return false
}

// pythonBuiltins is the builtin namespace assumed present everywhere.
var pythonBuiltins = make(map[string]struct{})

func init() {
	names := []string{
		"abs", "aiter", "all", "anext", "any", "ascii", "bin", "bool",
		"breakpoint", "bytearray", "bytes", "callable", "chr", "classmethod",
		"compile", "complex", "delattr", "dict", "dir", "divmod", "enumerate",
		"eval", "exec", "filter", "float", "format", "frozenset", "getattr",
		"globals", "hasattr", "hash", "help", "hex", "id", "input", "int",
		"isinstance", "issubclass", "iter", "len", "list", "locals", "map",
		"max", "memoryview", "min", "next", "object", "oct", "open", "ord",
		"pow", "print", "property", "range", "repr", "reversed", "round",
		"set", "setattr", "slice", "sorted", "staticmethod", "str", "sum",
		"super", "tuple", "type", "vars", "zip", "__import__",

		"BaseException", "BaseExceptionGroup", "Exception", "ExceptionGroup",
		"ArithmeticError", "AssertionError", "AttributeError",
		"BlockingIOError", "BrokenPipeError", "BufferError", "BytesWarning",
		"ChildProcessError", "ConnectionAbortedError", "ConnectionError",
		"ConnectionRefusedError", "ConnectionResetError", "DeprecationWarning",
		"EOFError", "EncodingWarning", "EnvironmentError", "FileExistsError",
		"FileNotFoundError", "FloatingPointError", "FutureWarning",
		"GeneratorExit", "IOError", "ImportError", "ImportWarning",
		"IndentationError", "IndexError", "InterruptedError",
		"IsADirectoryError", "KeyError", "KeyboardInterrupt", "LookupError",
		"MemoryError", "ModuleNotFoundError", "NameError",
		"NotADirectoryError", "NotImplementedError", "OSError",
		"OverflowError", "PendingDeprecationWarning", "PermissionError",
		"ProcessLookupError", "RecursionError", "ReferenceError",
		"ResourceWarning", "RuntimeError", "RuntimeWarning",
		"StopAsyncIteration", "StopIteration", "SyntaxError", "SyntaxWarning",
		"SystemError", "SystemExit", "TabError", "TimeoutError", "TypeError",
		"UnboundLocalError", "UnicodeDecodeError", "UnicodeEncodeError",
		"UnicodeError", "UnicodeTranslateError", "UnicodeWarning",
		"UserWarning", "ValueError", "Warning", "ZeroDivisionError",

		"NotImplemented", "Ellipsis", "__debug__", "__name__", "__file__",
		"__doc__", "__package__", "__spec__", "__loader__", "__builtins__",
		"__class__",
	}
	for _, n := range names {
		pythonBuiltins[n] = struct{}{}
	}
}
