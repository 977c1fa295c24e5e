// Package modules implements workspace module discovery and the
// framework load-order sort.
//
// A module is a directory carrying a __manifest__.py. The load order
// replicates the framework's module graph: dependencies load first,
// ties break lexicographically, and test_ modules slot in right after
// their last loaded dependency.
package modules

import (
	"sort"
	"strings"
)

const (
	// ManifestName is the file marking a directory as a module.
	ManifestName = "__manifest__.py"

	// BaseModule is the implicit root dependency of every module.
	BaseModule = "base"

	testPrefix = "test_"
)

// SortResult partitions modules into the computed load order and the
// modules excluded from it.
type SortResult struct {
	// Sorted is the load order of the valid modules.
	Sorted []string

	// Invalid lists modules excluded for a missing or invalid
	// dependency or a dependency cycle, sorted by name.
	Invalid []string

	// Missing lists referenced modules that do not exist.
	Missing []string

	// Cycles lists each detected dependency cycle.
	Cycles [][]string
}

// SortByLoadOrder computes the load order for the given modules,
// mapping name to declared dependencies. A module without dependencies
// implicitly depends on "base", except base itself. A module is valid
// when it exists, is not part of a dependency cycle, and all its
// dependencies are valid.
func SortByLoadOrder(modules map[string][]string) SortResult {
	g := &loadGraph{
		deps:       make(map[string][]string, len(modules)),
		valid:      make(map[string]bool),
		depths:     make(map[string]int),
		orderNames: make(map[string]string),
	}
	for name, deps := range modules {
		if name != BaseModule && len(deps) == 0 {
			deps = []string{BaseModule}
		}
		g.deps[name] = deps
	}

	names := make([]string, 0, len(g.deps))
	for name := range g.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var sorted, invalid []string
	for _, name := range names {
		if g.isValid(name, nil) {
			sorted = append(sorted, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		di, ni := g.sortKey(sorted[i])
		dj, nj := g.sortKey(sorted[j])
		if di != dj {
			return di < dj
		}
		return ni < nj
	})
	return SortResult{
		Sorted:  sorted,
		Invalid: invalid,
		Missing: g.missing,
		Cycles:  g.cycles,
	}
}

type loadGraph struct {
	deps       map[string][]string
	valid      map[string]bool
	depths     map[string]int
	orderNames map[string]string
	missing    []string
	cycles     [][]string
}

func (g *loadGraph) isValid(name string, stack []string) bool {
	if v, ok := g.valid[name]; ok {
		return v
	}
	v := g.checkValid(name, stack)
	g.valid[name] = v
	return v
}

func (g *loadGraph) checkValid(name string, stack []string) bool {
	for _, m := range stack {
		if m == name {
			g.cycles = append(g.cycles, cycleFrom(stack))
			return false
		}
	}
	deps, ok := g.deps[name]
	if !ok {
		g.missing = append(g.missing, name)
		return false
	}
	stack = append(stack, name)
	for _, dep := range deps {
		if !g.isValid(dep, stack) {
			return false
		}
	}
	return true
}

func cycleFrom(stack []string) []string {
	top := stack[len(stack)-1]
	cycle := []string{top}
	for i := len(stack) - 2; i >= 0; i-- {
		if stack[i] == top {
			break
		}
		cycle = append(cycle, stack[i])
	}
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}

// depth is the longest dependency chain below the module. A module
// without dependencies has depth zero, and test_ modules take their
// deepest dependency's depth without adding a level.
func (g *loadGraph) depth(name string) int {
	if d, ok := g.depths[name]; ok {
		return d
	}
	d := 0
	if deps := g.deps[name]; len(deps) > 0 {
		maxDepth := 0
		for _, dep := range deps {
			if dd := g.depth(dep); dd > maxDepth {
				maxDepth = dd
			}
		}
		if strings.HasPrefix(name, testPrefix) {
			d = maxDepth
		} else {
			d = maxDepth + 1
		}
	}
	g.depths[name] = d
	return d
}

// orderName is the lexicographic tiebreaker. test_ modules chain the
// order name of their last loaded dependency so they sort directly
// after it.
func (g *loadGraph) orderName(name string) string {
	if n, ok := g.orderNames[name]; ok {
		return n
	}
	n := name
	if strings.HasPrefix(name, testPrefix) {
		if last, ok := g.lastLoadedDep(name); ok {
			n = g.orderName(last) + " " + name
		}
	}
	g.orderNames[name] = n
	return n
}

// lastLoadedDep is the dependency maximal by sort key, the one loading
// last.
func (g *loadGraph) lastLoadedDep(name string) (string, bool) {
	var best string
	found := false
	for _, dep := range g.deps[name] {
		if !found {
			best, found = dep, true
			continue
		}
		bd, bn := g.sortKey(best)
		dd, dn := g.sortKey(dep)
		if dd > bd || (dd == bd && dn >= bn) {
			best = dep
		}
	}
	return best, found
}

func (g *loadGraph) sortKey(name string) (int, string) {
	return g.depth(name), g.orderName(name)
}
