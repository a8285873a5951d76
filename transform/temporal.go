package transform

import "github.com/leo-levin/weft/ir"

var statefulBuiltins = map[string]bool{
	"cache": true, "microphone": true, "camera": true, "mouse": true,
}

// RewriteTemporalRemapsToCache implements the two-phase, conservative
// temporal-remap-to-cache rewrite. It must run after spindle inlining (no
// Call/Extract nodes) since it needs to resolve bundle references.
func RewriteTemporalRemapsToCache(prog *ir.Program, coords CoordTable) *ir.Program {
	out := &ir.Program{
		Bundles:   make(map[string]*ir.Bundle, len(prog.Bundles)),
		Spindles:  prog.Spindles,
		Order:     prog.Order,
		Resources: prog.Resources,
	}
	for name, b := range prog.Bundles {
		nb := &ir.Bundle{Name: b.Name}
		for _, s := range b.Strands {
			e := rewritePhase1(prog, s.Expr, name, s, coords)
			e = rewritePhase2(e, name, s, coords)
			nb.Strands = append(nb.Strands, ir.Strand{Name: s.Name, Index: s.Index, Expr: e})
		}
		out.Bundles[name] = nb
	}
	return out
}

// rewritePhase1 converts every non-self-referential temporal remap over a
// stateful base into an explicit cache builtin.
func rewritePhase1(prog *ir.Program, e ir.Expr, bundle string, strand ir.Strand, coords CoordTable) ir.Expr {
	return ir.Transform(e, func(n ir.Expr) ir.Expr {
		remap, ok := n.(ir.Remap)
		if !ok {
			return n
		}
		sub, hasT := meTSub(remap, coords)
		if !hasT {
			return n
		}
		if isSelfReference(remap.Base, bundle, strand) {
			return n // left for phase 2
		}
		if !isStatefulBase(prog, remap.Base) {
			return n // pure temporal remap: stays a coordinate substitution
		}
		offset := temporalOffset(sub)
		return cacheBuiltin(remap.Base, offset)
	})
}

// rewritePhase2 unwraps and wraps any self-referential temporal remap still
// present after phase 1 into a whole-strand cache builtin.
func rewritePhase2(e ir.Expr, bundle string, strand ir.Strand, coords CoordTable) ir.Expr {
	var offset *int
	ir.Walk(e, func(n ir.Expr) {
		if offset != nil {
			return
		}
		remap, ok := n.(ir.Remap)
		if !ok {
			return
		}
		sub, hasT := meTSub(remap, coords)
		if !hasT || !isSelfReference(remap.Base, bundle, strand) {
			return
		}
		o := temporalOffset(sub)
		offset = &o
	})
	if offset == nil {
		return e
	}
	unwrapped := ir.Transform(e, func(n ir.Expr) ir.Expr {
		remap, ok := n.(ir.Remap)
		if !ok {
			return n
		}
		_, hasT := meTSub(remap, coords)
		if !hasT || !isSelfReference(remap.Base, bundle, strand) {
			return n
		}
		return remap.Base
	})
	return cacheBuiltin(unwrapped, *offset)
}

func cacheBuiltin(value ir.Expr, offset int) ir.Builtin {
	return ir.Builtin{
		Name: "cache",
		Args: []ir.Expr{
			value,
			ir.Num{Value: float64(offset + 1)},
			ir.Num{Value: float64(offset)},
			temporalSignal(),
		},
	}
}

// temporalSignal is Index("me", "t"): the current tick coordinate, used as
// the cache's edge signal so it shifts once per distinct tick.
func temporalSignal() ir.Expr {
	t := "t"
	return ir.Index{Bundle: "me", Field: &t}
}

// meTSub reports whether remap substitutes the "t" coordinate and, if so,
// returns the replacement expression bound to it.
func meTSub(remap ir.Remap, coords CoordTable) (ir.Expr, bool) {
	normalized := normalizeSubs(remap.Subs, coords)
	sub, ok := normalized["me.t"]
	return sub, ok
}

// isSelfReference reports whether e free-references the given strand.
func isSelfReference(e ir.Expr, bundle string, strand ir.Strand) bool {
	fv := ir.FreeVars(e)
	return fv.Has(bundle, indexKey(strand.Index)) || fv.Has(bundle, strand.Name)
}

// isStatefulBase reports whether base's resolved builtins intersect the
// stateful set, resolving one level of bundle-indirection: if base is
// itself (or contains) a reference into another bundle's strand, that
// strand's own builtins are consulted, but no further.
func isStatefulBase(prog *ir.Program, base ir.Expr) bool {
	for name := range ir.BuiltinNames(base) {
		if statefulBuiltins[name] {
			return true
		}
	}
	for rk := range ir.FreeVars(base) {
		if rk.Bundle == "me" {
			continue
		}
		b, ok := prog.Bundles[rk.Bundle]
		if !ok {
			continue
		}
		s, ok := b.Resolve(rk.Key)
		if !ok {
			continue
		}
		for name := range ir.BuiltinNames(s.Expr) {
			if statefulBuiltins[name] {
				return true
			}
		}
	}
	return false
}

// temporalOffset extracts N from a "me.t" substitution's replacement
// expression: "me.t - N" → N; "me.t + N" with N<0 → -N; anything else
// defaults to 1; more elaborate symbolic analysis is out of scope.
func temporalOffset(sub ir.Expr) int {
	b, ok := sub.(ir.BinaryOp)
	if !ok {
		return 1
	}
	if !isBareMeT(b.Left) {
		return 1
	}
	num, ok := b.Right.(ir.Num)
	if !ok {
		return 1
	}
	switch b.Op {
	case "-":
		return int(num.Value)
	case "+":
		if num.Value < 0 {
			return int(-num.Value)
		}
	}
	return 1
}

func isBareMeT(e ir.Expr) bool {
	idx, ok := e.(ir.Index)
	if !ok || idx.Bundle != "me" {
		return false
	}
	return idx.Field != nil && *idx.Field == "t"
}

func indexKey(i int) string {
	return (ir.Index{PosIndex: &i}).Key()
}
