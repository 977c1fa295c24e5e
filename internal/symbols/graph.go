package symbols

import (
	"fmt"
	"sort"
)

// Graph owns the symbol arena and its secondary indexes: the path
// index over file and package symbols, the model-name index over
// classes, and the reverse file-dependency index driving rebuild
// invalidation.
//
// The graph is confined to the session goroutine and is not safe for
// concurrent use. Background workers never touch it; they talk to the
// session over channels.
type Graph struct {
	symbols map[SymbolID]*Symbol
	nextID  SymbolID
	root    SymbolID

	byPath     map[string]SymbolID
	models     map[string][]SymbolID
	dependents map[string]map[string]struct{}
}

// NewGraph creates a graph holding only the root symbol.
func NewGraph() *Graph {
	g := &Graph{
		symbols:    make(map[SymbolID]*Symbol),
		nextID:     1,
		byPath:     make(map[string]SymbolID),
		models:     make(map[string][]SymbolID),
		dependents: make(map[string]map[string]struct{}),
	}
	root := g.NewSymbol(KindRoot, "")
	g.root = root.ID
	return g
}

// Root returns the root symbol.
func (g *Graph) Root() *Symbol {
	return g.symbols[g.root]
}

// Get resolves an ID through the arena. Evicted or unknown IDs yield
// nil.
func (g *Graph) Get(id SymbolID) *Symbol {
	return g.symbols[id]
}

// Count returns the number of live symbols, the root included.
func (g *Graph) Count() int {
	return len(g.symbols)
}

// NewSymbol allocates a symbol in the arena with the payload matching
// its kind. The symbol is live but unattached until AddSymbol.
func (g *Graph) NewSymbol(kind Kind, name string) *Symbol {
	s := &Symbol{ID: g.nextID, Kind: kind, Name: name}
	g.nextID++
	switch kind {
	case KindFile, KindPackage:
		s.File = &FileData{}
	case KindClass:
		s.Class = &ClassData{}
	case KindFunction:
		s.Function = &FunctionData{}
	case KindVariable:
		s.Variable = &VariableData{}
	}
	g.symbols[s.ID] = s
	return s
}

// AddSymbol attaches child to parent in the given declaration section
// and registers the child's paths.
func (g *Graph) AddSymbol(parentID, childID SymbolID, section int) error {
	parent := g.symbols[parentID]
	if parent == nil {
		return fmt.Errorf("parent symbol %d not found", parentID)
	}
	child := g.symbols[childID]
	if child == nil {
		return fmt.Errorf("child symbol %d not found", childID)
	}
	if child.Parent != NoSymbol {
		violation("symbol attached twice", "name", child.Name, "id", uint64(childID))
		return fmt.Errorf("symbol %d is already attached", childID)
	}
	if parent.children == nil {
		parent.children = make(map[string]map[int][]SymbolID)
	}
	sections := parent.children[child.Name]
	if sections == nil {
		sections = make(map[int][]SymbolID)
		parent.children[child.Name] = sections
	}
	sections[section] = append(sections[section], childID)
	child.Parent = parentID
	for _, p := range child.Paths {
		g.byPath[p] = childID
	}
	return nil
}

// AddPath registers an additional filesystem path on an attached
// symbol, e.g. an __init__.py appearing in a package directory first
// seen without one.
func (g *Graph) AddPath(sym *Symbol, path string) {
	for _, p := range sym.Paths {
		if p == path {
			return
		}
	}
	sym.Paths = append(sym.Paths, path)
	g.byPath[path] = sym.ID
}

// RemoveSubtree detaches the symbol from its parent and evicts it and
// all descendants from the arena and indexes. Weak references held
// elsewhere dangle until their owners rebuild.
func (g *Graph) RemoveSubtree(id SymbolID) {
	sym := g.symbols[id]
	if sym == nil {
		return
	}
	if parent := g.symbols[sym.Parent]; parent != nil {
		parent.removeChild(id, sym.Name)
	}
	g.evict(sym)
}

func (s *Symbol) removeChild(id SymbolID, name string) {
	sections := s.children[name]
	for k, ids := range sections {
		kept := ids[:0]
		for _, cid := range ids {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		if len(kept) == 0 {
			delete(sections, k)
		} else {
			sections[k] = kept
		}
	}
	if len(sections) == 0 {
		delete(s.children, name)
	}
}

func (g *Graph) evict(sym *Symbol) {
	for _, sections := range sym.children {
		for _, ids := range sections {
			for _, id := range ids {
				if child := g.symbols[id]; child != nil {
					g.evict(child)
				}
			}
		}
	}
	sym.children = nil
	for _, p := range sym.Paths {
		if g.byPath[p] == sym.ID {
			delete(g.byPath, p)
		}
	}
	if sym.Class != nil && sym.Class.Model != nil {
		g.unregisterModel(sym.ID, sym.Class.Model)
	}
	if sym.File != nil {
		g.dropDependencies(sym)
	}
	delete(g.symbols, sym.ID)
}

// FileByPath returns the file or package symbol registered for path,
// or nil.
func (g *Graph) FileByPath(path string) *Symbol {
	if id, ok := g.byPath[path]; ok {
		return g.symbols[id]
	}
	return nil
}

// EachChild calls fn for every declaration of the symbol: names
// sorted, sections ascending, declarations in order.
func (s *Symbol) EachChild(fn func(name string, section int, id SymbolID)) {
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sections := s.children[name]
		keys := make([]int, 0, len(sections))
		for k := range sections {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			for _, id := range sections[k] {
				fn(name, k, id)
			}
		}
	}
}

// ChildCount returns the number of declarations across all names and
// sections.
func (s *Symbol) ChildCount() int {
	n := 0
	for _, sections := range s.children {
		for _, ids := range sections {
			n += len(ids)
		}
	}
	return n
}

// ContentSymbols returns the declarations of name visible in scope at
// or before maxPos. Within one section the last declaration at or
// before the position shadows earlier ones; across sections the
// candidates of every branch are returned, in section order. A
// negative maxPos disables the position filter.
func (g *Graph) ContentSymbols(scope *Symbol, name string, maxPos int) []*Symbol {
	if scope == nil {
		return nil
	}
	sections := scope.children[name]
	if len(sections) == 0 {
		return nil
	}
	keys := make([]int, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var out []*Symbol
	for _, k := range keys {
		var last *Symbol
		for _, id := range sections[k] {
			sym := g.symbols[id]
			if sym == nil {
				continue
			}
			if maxPos >= 0 && sym.Range.Start > maxPos {
				continue
			}
			last = sym
		}
		if last != nil {
			out = append(out, last)
		}
	}
	return out
}

// Walk visits the subtree rooted at id in depth-first order. fn
// returning false stops the walk.
func (g *Graph) Walk(id SymbolID, fn func(*Symbol) bool) bool {
	sym := g.symbols[id]
	if sym == nil {
		return true
	}
	if !fn(sym) {
		return false
	}
	cont := true
	sym.EachChild(func(_ string, _ int, cid SymbolID) {
		if cont {
			cont = g.Walk(cid, fn)
		}
	})
	return cont
}

// RegisterModel indexes a class symbol under every model name it
// declares or extends.
func (g *Graph) RegisterModel(id SymbolID) {
	sym := g.symbols[id]
	if sym == nil || sym.Class == nil || sym.Class.Model == nil {
		return
	}
	for _, name := range sym.Class.Model.Names() {
		ids := g.models[name]
		found := false
		for _, e := range ids {
			if e == id {
				found = true
				break
			}
		}
		if !found {
			g.models[name] = append(ids, id)
		}
	}
}

func (g *Graph) unregisterModel(id SymbolID, m *ModelData) {
	for _, name := range m.Names() {
		ids := g.models[name]
		kept := ids[:0]
		for _, e := range ids {
			if e != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(g.models, name)
		} else {
			g.models[name] = kept
		}
	}
}

// ModelClasses returns the live class symbols declaring or extending
// the model name, in registration order.
func (g *Graph) ModelClasses(name string) []*Symbol {
	var out []*Symbol
	for _, id := range g.models[name] {
		if sym := g.symbols[id]; sym != nil {
			out = append(out, sym)
		}
	}
	return out
}

// ModelNames returns every known model name in sorted order.
func (g *Graph) ModelNames() []string {
	names := make([]string, 0, len(g.models))
	for name := range g.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddFileDependency records that the file or package symbol references
// symbols under the canonical path dep.
func (g *Graph) AddFileDependency(sym *Symbol, dep string) {
	if sym == nil || sym.File == nil {
		return
	}
	path := sym.Path()
	if path == "" || path == dep {
		return
	}
	sym.File.AddDependency(dep)
	set := g.dependents[dep]
	if set == nil {
		set = make(map[string]struct{})
		g.dependents[dep] = set
	}
	set[path] = struct{}{}
}

// Dependents returns, sorted, the canonical paths of the files whose
// evaluations depend on path.
func (g *Graph) Dependents(path string) []string {
	set := g.dependents[path]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DropFileDependencies clears the outgoing dependencies of a file
// before its evaluations are rebuilt.
func (g *Graph) DropFileDependencies(sym *Symbol) {
	if sym == nil || sym.File == nil {
		return
	}
	g.dropDependencies(sym)
}

func (g *Graph) dropDependencies(sym *Symbol) {
	path := sym.Path()
	for dep := range sym.File.DependsOn {
		if set := g.dependents[dep]; set != nil {
			delete(set, path)
			if len(set) == 0 {
				delete(g.dependents, dep)
			}
		}
	}
	sym.File.DependsOn = nil
}
