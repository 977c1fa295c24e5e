package symbols

import "strings"

// ScopeAt returns the innermost class or function scope containing the
// byte offset in the given file symbol, or the file itself. With
// inParameters set, a function scope is replaced by its enclosing
// scope; parameter defaults and annotations evaluate there.
func (g *Graph) ScopeAt(file *Symbol, offset int, inParameters bool) *Symbol {
	if file == nil {
		return nil
	}
	scope := file
	for {
		var deeper *Symbol
		scope.EachChild(func(_ string, _ int, id SymbolID) {
			if deeper != nil {
				return
			}
			child := g.symbols[id]
			if child == nil {
				return
			}
			if (child.Kind == KindClass || child.Kind == KindFunction) && child.Body.Contains(offset) {
				deeper = child
			}
		})
		if deeper == nil {
			break
		}
		scope = deeper
	}
	if inParameters && scope.Kind == KindFunction {
		if parent := g.symbols[scope.Parent]; parent != nil {
			return parent
		}
	}
	return scope
}

// ScopeChain returns the lookup chain from the given scope outward to
// the file, skipping class scopes for names referenced inside nested
// functions, matching Python name resolution.
func (g *Graph) ScopeChain(scope *Symbol) []*Symbol {
	var chain []*Symbol
	crossedFunction := false
	for s := scope; s != nil && s.Kind != KindRoot; s = g.symbols[s.Parent] {
		if s.Kind == KindClass && crossedFunction {
			continue
		}
		chain = append(chain, s)
		if s.Kind == KindFunction {
			crossedFunction = true
		}
		if s.Kind == KindFile || s.Kind == KindPackage {
			break
		}
	}
	return chain
}

// FullName returns the dotted path of the symbol from the workspace
// root, e.g. "sale.models.order.SaleOrder".
func (g *Graph) FullName(id SymbolID) string {
	var parts []string
	for sym := g.symbols[id]; sym != nil && sym.Kind != KindRoot; sym = g.symbols[sym.Parent] {
		if sym.Name != "" {
			parts = append(parts, sym.Name)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// ContainingFile walks the parent chain to the file or package symbol
// owning the given symbol.
func (g *Graph) ContainingFile(id SymbolID) *Symbol {
	for sym := g.symbols[id]; sym != nil; sym = g.symbols[sym.Parent] {
		if sym.Kind == KindFile || sym.Kind == KindPackage {
			return sym
		}
		if sym.Kind == KindRoot {
			return nil
		}
	}
	return nil
}
