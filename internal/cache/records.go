package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Benny93/pyxis-go/internal/symbols"
)

// ModuleRecord is the serialized snapshot of one module's symbol
// subtree. Weak references leave the record as dotted names and are
// re-resolved against the live graph once every module of the
// workspace has been restored.
type ModuleRecord struct {
	// Name is the module name, Dir its directory.
	Name string
	Dir  string

	// Depends lists the declared module dependencies.
	Depends []string

	// Paths are the filesystem paths of the module package symbol.
	Paths []string

	// Symbols are the children of the module package in table order.
	Symbols []SymbolRecord
}

// SymbolRecord mirrors one graph symbol as plain data.
type SymbolRecord struct {
	Kind    string
	Name    string
	Paths   []string
	Section int

	Start     int
	End       int
	BodyStart int
	BodyEnd   int

	Doc string

	// File payload.
	Hash      uint64   `json:",omitempty"`
	DependsOn []string `json:",omitempty"`

	// Class payload.
	Bases []string     `json:",omitempty"`
	Model *ModelRecord `json:",omitempty"`

	// Function payload.
	IsStatic      bool         `json:",omitempty"`
	IsProperty    bool         `json:",omitempty"`
	IsClassMethod bool         `json:",omitempty"`
	Args          []ArgRecord  `json:",omitempty"`
	Returns       []EvalRecord `json:",omitempty"`

	// Variable payload.
	IsParameter bool         `json:",omitempty"`
	IsImport    bool         `json:",omitempty"`
	Evals       []EvalRecord `json:",omitempty"`

	Children []SymbolRecord `json:",omitempty"`
}

// ModelRecord mirrors symbols.ModelData.
type ModelRecord struct {
	Name              string
	Inherit           []string `json:",omitempty"`
	Table             string   `json:",omitempty"`
	Order             string   `json:",omitempty"`
	Description       string   `json:",omitempty"`
	Abstract          bool     `json:",omitempty"`
	Transient         bool     `json:",omitempty"`
	FieldDependencies map[string][]string `json:",omitempty"`
}

// ArgRecord mirrors one function parameter. The parameter's variable
// symbol is re-resolved by name within the restored function scope.
type ArgRecord struct {
	Name       string
	Kind       uint8
	HasDefault bool `json:",omitempty"`
}

// EvalRecord mirrors one evaluation. Target is the dotted full name of
// the referenced symbol; an unresolvable target restores to a dangling
// reference.
type EvalRecord struct {
	Kind    string
	Literal string            `json:",omitempty"`
	Raw     string            `json:",omitempty"`
	Target  string            `json:",omitempty"`
	Context map[string]string `json:",omitempty"`
}

const (
	evalKindLiteral  = "literal"
	evalKindSymbol   = "symbol"
	evalKindInstance = "instance"
)

var literalKinds = map[string]symbols.LiteralKind{
	"None":  symbols.LitNone,
	"bool":  symbols.LitBool,
	"int":   symbols.LitInt,
	"float": symbols.LitFloat,
	"str":   symbols.LitStr,
	"bytes": symbols.LitBytes,
	"list":  symbols.LitList,
	"tuple": symbols.LitTuple,
	"dict":  symbols.LitDict,
	"set":   symbols.LitSet,
}

var symbolKinds = map[string]symbols.Kind{
	"package":  symbols.KindPackage,
	"file":     symbols.KindFile,
	"class":    symbols.KindClass,
	"function": symbols.KindFunction,
	"variable": symbols.KindVariable,
}

// SnapshotModule serializes the subtree rooted at the module package
// symbol. Weak references are written as dotted names so they survive
// the arena IDs changing between sessions.
func SnapshotModule(g *symbols.Graph, mod *symbols.Symbol, depends []string) *ModuleRecord {
	rec := &ModuleRecord{
		Name:    mod.Name,
		Dir:     mod.Path(),
		Depends: append([]string(nil), depends...),
		Paths:   append([]string(nil), mod.Paths...),
	}
	mod.EachChild(func(name string, section int, id symbols.SymbolID) {
		if child := snapshotSymbol(g, g.Get(id), section); child != nil {
			rec.Symbols = append(rec.Symbols, *child)
		}
	})
	return rec
}

func snapshotSymbol(g *symbols.Graph, sym *symbols.Symbol, section int) *SymbolRecord {
	if sym == nil {
		return nil
	}
	rec := &SymbolRecord{
		Kind:      sym.Kind.String(),
		Name:      sym.Name,
		Paths:     append([]string(nil), sym.Paths...),
		Section:   section,
		Start:     sym.Range.Start,
		End:       sym.Range.End,
		BodyStart: sym.Body.Start,
		BodyEnd:   sym.Body.End,
		Doc:       sym.Doc(),
	}
	switch {
	case sym.File != nil:
		rec.Hash = sym.File.Hash
		for dep := range sym.File.DependsOn {
			rec.DependsOn = append(rec.DependsOn, dep)
		}
		sort.Strings(rec.DependsOn)
	case sym.Class != nil:
		for _, base := range sym.Class.Bases {
			if name := g.FullName(base); name != "" {
				rec.Bases = append(rec.Bases, name)
			}
		}
		if m := sym.Class.Model; m != nil {
			rec.Model = &ModelRecord{
				Name:              m.Name,
				Inherit:           append([]string(nil), m.Inherit...),
				Table:             m.Table,
				Order:             m.Order,
				Description:       m.Description,
				Abstract:          m.Abstract,
				Transient:         m.Transient,
				FieldDependencies: m.FieldDependencies,
			}
		}
	case sym.Function != nil:
		fn := sym.Function
		rec.IsStatic = fn.IsStatic
		rec.IsProperty = fn.IsProperty
		rec.IsClassMethod = fn.IsClassMethod
		for _, arg := range fn.Args {
			rec.Args = append(rec.Args, ArgRecord{
				Name:       arg.Name,
				Kind:       uint8(arg.Kind),
				HasDefault: arg.HasDefault,
			})
		}
		for _, eval := range fn.Returns {
			rec.Returns = append(rec.Returns, snapshotEval(g, eval))
		}
	case sym.Variable != nil:
		v := sym.Variable
		rec.IsParameter = v.IsParameter
		rec.IsImport = v.IsImport
		for _, eval := range v.Evals {
			rec.Evals = append(rec.Evals, snapshotEval(g, eval))
		}
	}
	sym.EachChild(func(name string, childSection int, id symbols.SymbolID) {
		if child := snapshotSymbol(g, g.Get(id), childSection); child != nil {
			rec.Children = append(rec.Children, *child)
		}
	})
	return rec
}

func snapshotEval(g *symbols.Graph, eval symbols.Evaluation) EvalRecord {
	rec := EvalRecord{Raw: eval.Raw, Context: eval.Context}
	switch eval.Kind {
	case symbols.EvalLiteral:
		rec.Kind = evalKindLiteral
		rec.Literal = eval.Literal.String()
	case symbols.EvalSymbol:
		rec.Kind = evalKindSymbol
		rec.Target = g.FullName(eval.Target)
	case symbols.EvalInstance:
		rec.Kind = evalKindInstance
		rec.Target = g.FullName(eval.Target)
	}
	return rec
}

// Restorer rebuilds graph subtrees from module records. Restore each
// module first, then call ResolveLinks once to re-wire base classes
// and evaluation targets across module boundaries.
type Restorer struct {
	g     *symbols.Graph
	links []pendingLinks
}

type pendingLinks struct {
	id      symbols.SymbolID
	bases   []string
	returns []EvalRecord
	evals   []EvalRecord
}

// NewRestorer returns a restorer writing into g.
func NewRestorer(g *symbols.Graph) *Restorer {
	return &Restorer{g: g}
}

// RestoreModule rebuilds the module subtree under parent and returns
// the module package symbol. Restored files come back with the
// structural stages marked done and validation pending; validation
// diagnostics are recomputed rather than cached.
func (r *Restorer) RestoreModule(parent symbols.SymbolID, rec *ModuleRecord) (*symbols.Symbol, error) {
	mod := r.g.NewSymbol(symbols.KindPackage, rec.Name)
	mod.Paths = append([]string(nil), rec.Paths...)
	if err := r.g.AddSymbol(parent, mod.ID, 0); err != nil {
		return nil, fmt.Errorf("restoring module %s: %w", rec.Name, err)
	}
	mod.File.ArchStatus = symbols.StatusDone
	mod.File.ArchEvalStatus = symbols.StatusDone
	for i := range rec.Symbols {
		if err := r.restoreSymbol(mod.ID, &rec.Symbols[i]); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

func (r *Restorer) restoreSymbol(parent symbols.SymbolID, rec *SymbolRecord) error {
	kind, ok := symbolKinds[rec.Kind]
	if !ok {
		return fmt.Errorf("restoring symbol %s: unknown kind %q", rec.Name, rec.Kind)
	}
	sym := r.g.NewSymbol(kind, rec.Name)
	sym.Paths = append([]string(nil), rec.Paths...)
	sym.Range = symbols.Span{Start: rec.Start, End: rec.End}
	sym.Body = symbols.Span{Start: rec.BodyStart, End: rec.BodyEnd}
	if err := r.g.AddSymbol(parent, sym.ID, rec.Section); err != nil {
		return fmt.Errorf("restoring symbol %s: %w", rec.Name, err)
	}

	pending := pendingLinks{id: sym.ID}
	switch {
	case sym.File != nil:
		sym.File.Hash = rec.Hash
		sym.File.ArchStatus = symbols.StatusDone
		sym.File.ArchEvalStatus = symbols.StatusDone
		for _, dep := range rec.DependsOn {
			r.g.AddFileDependency(sym, dep)
		}
	case sym.Class != nil:
		sym.Class.Doc = rec.Doc
		pending.bases = rec.Bases
		if m := rec.Model; m != nil {
			sym.Class.Model = &symbols.ModelData{
				Name:              m.Name,
				Inherit:           append([]string(nil), m.Inherit...),
				Table:             m.Table,
				Order:             m.Order,
				Description:       m.Description,
				Abstract:          m.Abstract,
				Transient:         m.Transient,
				FieldDependencies: m.FieldDependencies,
			}
			r.g.RegisterModel(sym.ID)
		}
	case sym.Function != nil:
		sym.Function.Doc = rec.Doc
		sym.Function.IsStatic = rec.IsStatic
		sym.Function.IsProperty = rec.IsProperty
		sym.Function.IsClassMethod = rec.IsClassMethod
		pending.returns = rec.Returns
	case sym.Variable != nil:
		sym.Variable.Doc = rec.Doc
		sym.Variable.IsParameter = rec.IsParameter
		sym.Variable.IsImport = rec.IsImport
		pending.evals = rec.Evals
	}
	if pending.bases != nil || pending.returns != nil || pending.evals != nil {
		r.links = append(r.links, pending)
	}

	for i := range rec.Children {
		if err := r.restoreSymbol(sym.ID, &rec.Children[i]); err != nil {
			return err
		}
	}

	// Parameter symbols exist only after the children were restored.
	if sym.Function != nil {
		for _, arg := range rec.Args {
			sym.Function.Args = append(sym.Function.Args, symbols.Arg{
				Name:       arg.Name,
				Symbol:     r.parameterSymbol(sym, arg.Name),
				Kind:       symbols.ArgKind(arg.Kind),
				HasDefault: arg.HasDefault,
			})
		}
	}
	return nil
}

func (r *Restorer) parameterSymbol(fn *symbols.Symbol, name string) symbols.SymbolID {
	for _, cand := range r.g.ContentSymbols(fn, name, -1) {
		if cand.Variable != nil && cand.Variable.IsParameter {
			return cand.ID
		}
	}
	return symbols.NoSymbol
}

// ResolveLinks re-wires base classes and evaluation targets by dotted
// name. Names that no longer resolve are dropped for bases and left
// dangling for evaluations, matching live eviction behavior.
func (r *Restorer) ResolveLinks() {
	for _, pending := range r.links {
		sym := r.g.Get(pending.id)
		if sym == nil {
			continue
		}
		switch {
		case sym.Class != nil:
			for _, name := range pending.bases {
				if id := r.resolveDotted(name); id != symbols.NoSymbol {
					sym.Class.Bases = append(sym.Class.Bases, id)
				}
			}
		case sym.Function != nil:
			for _, rec := range pending.returns {
				sym.Function.Returns = append(sym.Function.Returns, r.evaluation(rec))
			}
		case sym.Variable != nil:
			for _, rec := range pending.evals {
				sym.Variable.Evals = append(sym.Variable.Evals, r.evaluation(rec))
			}
		}
	}
	r.links = nil
}

func (r *Restorer) evaluation(rec EvalRecord) symbols.Evaluation {
	eval := symbols.Evaluation{Raw: rec.Raw, Context: rec.Context}
	switch rec.Kind {
	case evalKindLiteral:
		eval.Kind = symbols.EvalLiteral
		eval.Literal = literalKinds[rec.Literal]
	case evalKindSymbol:
		eval.Kind = symbols.EvalSymbol
		eval.Target = r.resolveDotted(rec.Target)
	case evalKindInstance:
		eval.Kind = symbols.EvalInstance
		eval.Target = r.resolveDotted(rec.Target)
	}
	return eval
}

func (r *Restorer) resolveDotted(name string) symbols.SymbolID {
	if name == "" {
		return symbols.NoSymbol
	}
	cur := r.g.Root()
	for _, part := range strings.Split(name, ".") {
		cands := r.g.ContentSymbols(cur, part, -1)
		if len(cands) == 0 {
			return symbols.NoSymbol
		}
		cur = cands[0]
	}
	return cur.ID
}
