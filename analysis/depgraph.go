// Package analysis implements WEFT's middle-end analysis passes (C3): the
// bundle dependency graph and its toposort, purity/statefulness
// classification, backend-ownership inference, and cache-descriptor
// extraction (including the CacheRead cycle-breaking rewrite).
package analysis

import (
	"sort"

	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/wefterr"
)

// Graph is a bundle dependency graph: Graph[a][b] is set iff some strand of
// a references bundle b.
type Graph map[string]map[string]bool

// BuildDependencyGraph computes two graphs over prog's bundles: all edges
// (every Index reference, including ones lexically inside a cache
// builtin's value expression) and strict edges (every Index reference
// except those lexically inside a cache builtin's value expression — the
// ones the runtime breaks via CacheRead instead).
func BuildDependencyGraph(prog *ir.Program) (all, strict Graph) {
	all = Graph{}
	strict = Graph{}
	for name := range prog.Bundles {
		all[name] = map[string]bool{}
		strict[name] = map[string]bool{}
	}
	for name, b := range prog.Bundles {
		for _, s := range b.Strands {
			collectEdges(s.Expr, false, func(ref ir.RefKey, insideCacheValue bool) {
				if ref.Bundle == "me" || ref.Bundle == name {
					return
				}
				if _, ok := prog.Bundles[ref.Bundle]; !ok {
					return
				}
				all[name][ref.Bundle] = true
				if !insideCacheValue {
					strict[name][ref.Bundle] = true
				}
			})
		}
	}
	return all, strict
}

// collectEdges walks e, calling visit for every Index reference found, with
// insideCacheValue true when the reference is nested inside the first
// argument (the value expression) of a "cache" builtin call.
func collectEdges(e ir.Expr, insideCacheValue bool, visit func(ir.RefKey, bool)) {
	switch n := e.(type) {
	case ir.Index:
		visit(ir.RefKey{Bundle: n.Bundle, Key: n.Key()}, insideCacheValue)
	case ir.Builtin:
		if n.Name == "cache" && len(n.Args) >= 1 {
			collectEdges(n.Args[0], true, visit)
			for _, a := range n.Args[1:] {
				collectEdges(a, insideCacheValue, visit)
			}
			return
		}
		for _, a := range n.Args {
			collectEdges(a, insideCacheValue, visit)
		}
	default:
		for _, c := range e.Children() {
			collectEdges(c, insideCacheValue, visit)
		}
	}
}

// TopoSort orders bundle names so every strict (non-cache) dependency
// precedes its dependent. It returns an AnalysisError if strict contains a
// cycle — any cycle surviving after cache edges are excluded is a
// compile-time error.
func TopoSort(strict Graph) ([]string, error) {
	indegree := map[string]int{}
	for name := range strict {
		indegree[name] = 0
	}
	for _, deps := range strict {
		for dep := range deps {
			indegree[dep]++
		}
	}
	// Kahn's algorithm: edges point dependency -> dependent isn't how
	// strict is stored (strict[a][b] means a depends on b), so a node is
	// ready once all the bundles it depends on have been emitted.
	remaining := map[string]map[string]bool{}
	for name, deps := range strict {
		remaining[name] = map[string]bool{}
		for dep := range deps {
			remaining[name][dep] = true
		}
	}

	var order []string
	for len(order) < len(strict) {
		progressed := false
		var ready []string
		for name, deps := range remaining {
			if len(deps) == 0 {
				ready = append(ready, name)
			}
		}
		sort.Strings(ready)
		for _, name := range ready {
			if _, done := remaining[name]; !done {
				continue
			}
			order = append(order, name)
			delete(remaining, name)
			progressed = true
		}
		for name := range remaining {
			for dep := range remaining[name] {
				if _, stillPending := remaining[dep]; !stillPending {
					delete(remaining[name], dep)
				}
			}
		}
		if !progressed {
			return nil, &wefterr.AnalysisError{Msg: "dependency cycle not broken by a cache builtin"}
		}
	}
	return order, nil
}

// Reaches reports whether to is reachable from from within g (depth-first,
// inclusive of from == to only if a real cycle routes back to it).
func (g Graph) Reaches(from, to string) bool {
	visited := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		for dep := range g[n] {
			if dep == to {
				return true
			}
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}
	return false
}
