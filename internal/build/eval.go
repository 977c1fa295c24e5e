package build

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/source"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

// evaluator computes the candidate evaluations of expressions. Results
// are memoized per file keyed by expression byte span; the memo is
// flushed wholesale whenever the file's content hash changes. The
// visited set breaks evaluation cycles: revisiting a symbol within one
// top-level evaluation yields the empty set.
type evaluator struct {
	r       *resolver
	file    *symbols.Symbol
	content []byte
	visited map[symbols.SymbolID]struct{}
}

func newEvaluator(r *resolver, file *symbols.Symbol, content []byte) *evaluator {
	return &evaluator{r: r, file: file, content: content, visited: make(map[symbols.SymbolID]struct{})}
}

// EvaluateAt evaluates the expression under the byte offset of a
// tracked document, the entry point behind hover.
func EvaluateAt(ctx context.Context, b *Context, doc *source.Document, offset int) []symbols.Evaluation {
	file := b.Graph.FileByPath(doc.Path)
	if file == nil || doc.Tree == nil {
		return nil
	}
	if err := BuildNow(ctx, b, file.ID, diag.StageArchEval); err != nil {
		return nil
	}

	node := nodeAt(doc.Tree.RootNode(), offset)
	for node != nil {
		// A cursor inside a string literal selects the string itself.
		switch node.Type() {
		case "string_start", "string_content", "string_end", "escape_sequence":
			node = node.Parent()
			continue
		}
		break
	}
	if node == nil {
		return nil
	}
	// Hovering the member of an attribute chain evaluates the chain up
	// to and including that member.
	if parent := node.Parent(); parent != nil && parent.Type() == "attribute" {
		if attr := parent.ChildByFieldName("attribute"); attr != nil && attr.StartByte() == node.StartByte() {
			node = parent
		}
	}

	scope := b.Graph.ScopeAt(file, offset, inParameterDefault(node))
	e := newEvaluator(&resolver{ctx: ctx, b: b}, file, doc.Content)
	return e.expression(node, scope)
}

func (e *evaluator) expression(node *sitter.Node, scope *symbols.Symbol) []symbols.Evaluation {
	if node == nil || e.r.ctx.Err() != nil {
		return nil
	}
	key := span(node)
	if evals, ok := e.file.File.CachedEval(key); ok {
		return evals
	}
	evals := e.compute(node, scope)
	e.file.File.StoreEval(key, evals)
	return evals
}

func (e *evaluator) compute(node *sitter.Node, scope *symbols.Symbol) []symbols.Evaluation {
	switch node.Type() {
	case "string":
		return e.stringLiteral(node)
	case "integer":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitInt, node.Content(e.content))}
	case "float":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitFloat, node.Content(e.content))}
	case "true", "false":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitBool, node.Content(e.content))}
	case "none":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitNone, "")}
	case "list", "list_comprehension":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitList, "")}
	case "tuple", "expression_list":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitTuple, "")}
	case "dictionary", "dictionary_comprehension":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitDict, "")}
	case "set", "set_comprehension":
		return []symbols.Evaluation{symbols.LiteralEval(symbols.LitSet, "")}
	case "identifier":
		return e.name(node, scope)
	case "attribute":
		return e.attribute(node, scope)
	case "call":
		return e.call(node, scope)
	case "parenthesized_expression", "await":
		return e.expression(node.NamedChild(0), scope)
	case "boolean_operator":
		// a or b yields one of its operands.
		left := e.expression(node.ChildByFieldName("left"), scope)
		return append(left, e.expression(node.ChildByFieldName("right"), scope)...)
	case "conditional_expression":
		var out []symbols.Evaluation
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if i != 1 { // skip the condition
				out = append(out, e.expression(child, scope)...)
			}
		}
		return out
	}
	return nil
}

func (e *evaluator) name(node *sitter.Node, scope *symbols.Symbol) []symbols.Evaluation {
	cands := e.r.scopeLookup(scope, node.Content(e.content), int(node.StartByte()))
	var out []symbols.Evaluation
	for _, cand := range cands {
		e.r.note(cand)
		out = append(out, e.symbolRefs(cand)...)
	}
	return out
}

// symbolRefs turns a resolved declaration into evaluations: variables
// contribute their own evaluation sets, everything else evaluates to
// the symbol itself.
func (e *evaluator) symbolRefs(sym *symbols.Symbol) []symbols.Evaluation {
	if sym == nil {
		return nil
	}
	if sym.Variable == nil {
		return []symbols.Evaluation{symbols.SymbolEval(sym.ID)}
	}
	if _, seen := e.visited[sym.ID]; seen {
		return nil
	}
	e.visited[sym.ID] = struct{}{}
	return sym.Variable.Evals
}

func (e *evaluator) attribute(node *sitter.Node, scope *symbols.Symbol) []symbols.Evaluation {
	attr := node.ChildByFieldName("attribute")
	if attr == nil {
		return nil
	}
	name := attr.Content(e.content)

	var out []symbols.Evaluation
	for _, baseEval := range e.expression(node.ChildByFieldName("object"), scope) {
		target := e.r.b.Graph.Get(baseEval.Target)
		if target == nil {
			continue
		}
		callerClass := symbols.NoSymbol
		if target.Kind == symbols.KindClass {
			callerClass = target.ID
		}
		for _, member := range e.r.member(target, name, newVisited()) {
			out = append(out, e.memberRefs(member, callerClass)...)
		}
	}
	return out
}

// memberRefs evaluates an accessed member. Property getters read as
// their return evaluations with the accessing class substituted for
// the declaring one.
func (e *evaluator) memberRefs(member *symbols.Symbol, callerClass symbols.SymbolID) []symbols.Evaluation {
	if member.Function != nil && member.Function.IsProperty {
		return e.substituteReturns(member, callerClass)
	}
	return e.symbolRefs(member)
}

func (e *evaluator) call(node *sitter.Node, scope *symbols.Symbol) []symbols.Evaluation {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return nil
	}

	var out []symbols.Evaluation
	if callee.Type() == "attribute" {
		// Resolve the method per candidate base so inherited methods
		// report the calling class, not the declaring one.
		attr := callee.ChildByFieldName("attribute")
		if attr == nil {
			return nil
		}
		name := attr.Content(e.content)
		for _, baseEval := range e.expression(callee.ChildByFieldName("object"), scope) {
			target := e.r.b.Graph.Get(baseEval.Target)
			if target == nil {
				continue
			}
			callerClass := symbols.NoSymbol
			if target.Kind == symbols.KindClass {
				callerClass = target.ID
			}
			for _, member := range e.r.member(target, name, newVisited()) {
				out = append(out, e.callResults(member, callerClass)...)
			}
		}
		return out
	}

	for _, calleeEval := range e.expression(callee, scope) {
		target := e.r.b.Graph.Get(calleeEval.Target)
		if target == nil {
			continue
		}
		out = append(out, e.callResults(target, symbols.NoSymbol)...)
	}
	return out
}

func (e *evaluator) callResults(target *symbols.Symbol, callerClass symbols.SymbolID) []symbols.Evaluation {
	switch target.Kind {
	case symbols.KindClass:
		return []symbols.Evaluation{symbols.InstanceEval(target.ID)}
	case symbols.KindFunction:
		return e.substituteReturns(target, callerClass)
	}
	return nil
}

// substituteReturns reads a function's return evaluations, computing
// them on demand, and rebinds returns of the declaring class to the
// calling class.
func (e *evaluator) substituteReturns(fn *symbols.Symbol, callerClass symbols.SymbolID) []symbols.Evaluation {
	rets := e.functionReturns(fn)
	if callerClass == symbols.NoSymbol {
		return rets
	}
	owner := e.r.b.Graph.Get(fn.Parent)
	if owner == nil || owner.Kind != symbols.KindClass || owner.ID == callerClass {
		return rets
	}
	out := make([]symbols.Evaluation, 0, len(rets))
	for _, ret := range rets {
		if (ret.Kind == symbols.EvalInstance || ret.Kind == symbols.EvalSymbol) && ret.Target == owner.ID {
			ret.Target = callerClass
		}
		out = append(out, ret)
	}
	return out
}

// functionReturns evaluates and caches the return candidates of a
// function by walking its return statements. Nested scopes are not
// descended into; their returns belong to themselves.
func (e *evaluator) functionReturns(fn *symbols.Symbol) []symbols.Evaluation {
	if fn.Function == nil {
		return nil
	}
	if len(fn.Function.Returns) > 0 {
		return fn.Function.Returns
	}
	if _, seen := e.visited[fn.ID]; seen {
		return nil
	}
	e.visited[fn.ID] = struct{}{}

	file := e.r.b.Graph.ContainingFile(fn.ID)
	if file == nil {
		return nil
	}
	if err := BuildNow(e.r.ctx, e.r.b, file.ID, diag.StageArchEval); err != nil {
		return nil
	}
	doc := e.r.b.contentDocument(file)
	if doc == nil || doc.Tree == nil {
		return nil
	}
	def := functionNode(doc.Tree.RootNode(), fn.Body)
	if def == nil {
		return nil
	}

	sub := e
	if file.ID != e.file.ID {
		sub = &evaluator{r: e.r, file: file, content: doc.Content, visited: e.visited}
	}
	var rets []symbols.Evaluation
	collectReturns(def.ChildByFieldName("body"), func(expr *sitter.Node) {
		rets = append(rets, sub.expression(expr, fn)...)
	})
	fn.Function.Returns = rets
	return rets
}

// functionNode finds the function_definition node spanning exactly the
// given body range.
func functionNode(root *sitter.Node, body symbols.Span) *sitter.Node {
	node := root
	for {
		if node.Type() == "function_definition" && span(node) == body {
			return node
		}
		var next *sitter.Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if int(child.StartByte()) <= body.Start && body.End <= int(child.EndByte()) {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		node = next
	}
}

func collectReturns(node *sitter.Node, fn func(expr *sitter.Node)) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition", "class_definition", "lambda":
			continue
		case "return_statement":
			if expr := child.NamedChild(0); expr != nil {
				fn(expr)
			}
		default:
			collectReturns(child, fn)
		}
	}
}

// modelRefPattern matches dotted reference-id strings like
// "sale.order".
var modelRefPattern = regexp.MustCompile(`^[A-Za-z_][\w]*(\.[\w]+)+$`)

// stringLiteral evaluates a string, dispatching to the model index
// when the syntactic context marks it as a symbolic reference: a
// comodel_name/inherit keyword argument, an _inherit assignment, an
// env[...] subscript, or a registered dotted reference id.
func (e *evaluator) stringLiteral(node *sitter.Node) []symbols.Evaluation {
	raw := source.Unquote(node.Content(e.content))
	if e.modelRefContext(node, raw) {
		if classes := e.r.b.Graph.ModelClasses(raw); len(classes) > 0 {
			out := make([]symbols.Evaluation, 0, len(classes))
			for _, cls := range classes {
				e.r.note(cls)
				eval := symbols.SymbolEval(cls.ID)
				eval.Context = map[string]string{"model": raw}
				out = append(out, eval)
			}
			return out
		}
	}
	return []symbols.Evaluation{symbols.LiteralEval(symbols.LitStr, raw)}
}

func (e *evaluator) modelRefContext(node *sitter.Node, raw string) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "keyword_argument":
		if name := parent.ChildByFieldName("name"); name != nil {
			kw := name.Content(e.content)
			return kw == "comodel_name" || kw == "inherit"
		}
	case "subscript":
		if value := parent.ChildByFieldName("value"); value != nil {
			text := value.Content(e.content)
			return text == "env" || strings.HasSuffix(text, ".env")
		}
	case "list", "tuple":
		parent = parent.Parent()
		fallthrough
	case "assignment":
		if parent != nil && parent.Type() == "assignment" {
			if left := parent.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				return left.Content(e.content) == "_inherit"
			}
		}
	}
	return modelRefPattern.MatchString(raw)
}
