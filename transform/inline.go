package transform

import (
	"strconv"

	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/wefterr"
)

// target identifies the strand a spindle call is being inlined into — the
// caller context whose self-reference semantics a cyclic cache must close
// on.
type target struct {
	Bundle string
	Index  int
}

func (t target) key() string { return t.Bundle + "." + strconv.Itoa(t.Index) }

func (t target) expr() ir.Expr {
	idx := t.Index
	return ir.Index{Bundle: t.Bundle, PosIndex: &idx}
}

// InlineProgram eliminates every Call/Extract node in prog's bundles,
// returning a new Program whose strand expressions contain only the
// post-inlining variants: a well-formed program contains no Call/Extract
// after transform. Spindle definitions are left untouched in
// the result; nothing downstream consults them again.
func InlineProgram(prog *ir.Program) (*ir.Program, error) {
	out := &ir.Program{
		Bundles:   make(map[string]*ir.Bundle, len(prog.Bundles)),
		Spindles:  prog.Spindles,
		Order:     prog.Order,
		Resources: prog.Resources,
	}
	for name, b := range prog.Bundles {
		newBundle := &ir.Bundle{Name: b.Name}
		for _, s := range b.Strands {
			t := target{Bundle: name, Index: s.Index}
			resolved, err := resolveCalls(prog, s.Expr, t)
			if err != nil {
				return nil, err
			}
			newBundle.Strands = append(newBundle.Strands, ir.Strand{
				Name: s.Name, Index: s.Index, Expr: resolved,
			})
		}
		out.Bundles[name] = newBundle
	}
	return out, nil
}

// resolveCalls walks e bottom-up, inlining every Call/Extract(Call) node it
// finds against the strand identified by t. An Extract over a Call is
// inlined as one unit, with its own return index, before the walk reaches
// the Call underneath it.
func resolveCalls(prog *ir.Program, e ir.Expr, t target) (ir.Expr, error) {
	if n, ok := e.(ir.Extract); ok {
		call, ok := n.Call.(ir.Call)
		if !ok {
			return nil, &wefterr.AnalysisError{Bundle: t.Bundle, Msg: "extract over a non-call expression"}
		}
		return inlineCall(prog, call, n.Index, t)
	}

	children := e.Children()
	if len(children) > 0 {
		newChildren := make([]ir.Expr, len(children))
		for i, c := range children {
			nc, err := resolveCalls(prog, c, t)
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		e = e.WithChildren(newChildren)
	}

	switch n := e.(type) {
	case ir.Call:
		return inlineCall(prog, n, 0, t)
	default:
		return e, nil
	}
}

// inlineCall performs one spindle-call inlining (substituting params and
// locals into the chosen return expression) with the cyclic-cache target
// rewrite applied first, then
// resolves any Call/Extract nodes left over in the result (args or nested
// spindle calls within the spindle body can themselves reference other
// spindles).
func inlineCall(prog *ir.Program, call ir.Call, returnIndex int, t target) (ir.Expr, error) {
	spindle, err := prog.Spindle(call.Spindle)
	if err != nil {
		return nil, err
	}
	if returnIndex < 0 || returnIndex >= len(spindle.Returns) {
		return nil, &wefterr.AnalysisError{Bundle: t.Bundle, Msg: "unsupported spindle return index for " + call.Spindle}
	}

	rewritten := rewriteCyclicCacheTargets(spindle, returnIndex, t)

	args := make([]ir.Expr, len(call.Args))
	for i, a := range call.Args {
		resolved, err := resolveCalls(prog, a, t)
		if err != nil {
			return nil, err
		}
		args[i] = resolved
	}

	if len(args) != len(rewritten.Params) {
		return nil, &wefterr.AnalysisError{Bundle: t.Bundle, Msg: "argument count mismatch calling " + call.Spindle}
	}

	subs := make(map[string]ir.Expr, len(rewritten.Params)+4)
	for i, p := range rewritten.Params {
		subs[p] = args[i]
	}
	for _, local := range rewritten.Locals {
		for _, s := range local.Strands {
			inlined := Substitute(s.Expr, subs)
			subs[local.Name+"."+strconv.Itoa(s.Index)] = inlined
			subs[local.Name+"."+s.Name] = inlined
		}
	}

	result := Substitute(rewritten.Returns[returnIndex], subs)
	return resolveCalls(prog, result, t)
}

// rewriteCyclicCacheTargets detects a spindle-local cycle through the call
// target and rewrites it pre-substitution. It never mutates spindle; it
// returns a shallow copy with only the flagged Index occurrences replaced.
func rewriteCyclicCacheTargets(spindle *ir.Spindle, returnIndex int, t target) *ir.Spindle {
	graph := localDependencyGraph(spindle)

	directFromReturn := localRefs(spindle.Returns[returnIndex], spindle)
	transitiveFromReturn := transitiveClosure(graph, directFromReturn)

	// flagged holds the set of (local, strandKey) reference pairs that must
	// be rewritten to the caller's target.
	flagged := map[string]bool{}

	for _, local := range spindle.Locals {
		if !transitiveFromReturn[local.Name] {
			continue
		}
		for _, s := range local.Strands {
			ir.Walk(s.Expr, func(n ir.Expr) {
				b, ok := n.(ir.Builtin)
				if !ok || b.Name != "cache" || len(b.Args) < 1 {
					return
				}
				valueExpr := b.Args[0]
				for ref := range localRefs(valueExpr, spindle) {
					// ref here is a bundle name (a local); find its actual
					// RefKeys inside valueExpr to know which strand keys
					// to flag.
					for rk := range ir.FreeVars(valueExpr) {
						if rk.Bundle != ref {
							continue
						}
						refLocalDeps := transitiveClosure(graph, map[string]bool{ref: true})
						if ref == local.Name || refLocalDeps[local.Name] {
							flagged[rk.Bundle+"."+rk.Key] = true
						}
					}
				}
			})
		}
	}

	if len(flagged) == 0 {
		return spindle
	}

	rewriteNode := func(e ir.Expr) ir.Expr {
		idx, ok := e.(ir.Index)
		if !ok {
			return e
		}
		if flagged[idx.Bundle+"."+idx.Key()] {
			return t.expr()
		}
		return e
	}

	out := &ir.Spindle{Name: spindle.Name, Params: spindle.Params}
	for _, local := range spindle.Locals {
		nb := ir.Bundle{Name: local.Name}
		for _, s := range local.Strands {
			nb.Strands = append(nb.Strands, ir.Strand{
				Name: s.Name, Index: s.Index,
				Expr: ir.Transform(s.Expr, rewriteNode),
			})
		}
		out.Locals = append(out.Locals, nb)
	}
	for _, r := range spindle.Returns {
		out.Returns = append(out.Returns, ir.Transform(r, rewriteNode))
	}
	return out
}

// localDependencyGraph maps each local bundle name to the set of other
// local names its strands reference.
func localDependencyGraph(spindle *ir.Spindle) map[string]map[string]bool {
	isLocal := make(map[string]bool, len(spindle.Locals))
	for _, l := range spindle.Locals {
		isLocal[l.Name] = true
	}
	graph := make(map[string]map[string]bool, len(spindle.Locals))
	for _, local := range spindle.Locals {
		deps := map[string]bool{}
		for _, s := range local.Strands {
			for rk := range ir.FreeVars(s.Expr) {
				if rk.Bundle != local.Name && isLocal[rk.Bundle] {
					deps[rk.Bundle] = true
				}
			}
		}
		graph[local.Name] = deps
	}
	return graph
}

// localRefs returns the set of local-bundle names e directly references.
func localRefs(e ir.Expr, spindle *ir.Spindle) map[string]bool {
	isLocal := make(map[string]bool, len(spindle.Locals))
	for _, l := range spindle.Locals {
		isLocal[l.Name] = true
	}
	refs := map[string]bool{}
	for rk := range ir.FreeVars(e) {
		if isLocal[rk.Bundle] {
			refs[rk.Bundle] = true
		}
	}
	return refs
}

// transitiveClosure walks graph from every name in start, including start
// itself in the result.
func transitiveClosure(graph map[string]map[string]bool, start map[string]bool) map[string]bool {
	visited := map[string]bool{}
	stack := make([]string, 0, len(start))
	for name := range start {
		stack = append(stack, name)
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[name] {
			continue
		}
		visited[name] = true
		for dep := range graph[name] {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}
	return visited
}
