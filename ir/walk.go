package ir

// Transform applies fn bottom-up: children are transformed first, then fn
// is applied to the node with its (already-transformed) children attached.
// This is the single primitive every pass in transform/ builds on, per the
// design notes' map_children guidance — passes that only care about one or
// two variants implement fn as a type switch and fall through to returning
// the node unchanged for everything else.
func Transform(e Expr, fn func(Expr) Expr) Expr {
	children := e.Children()
	if len(children) > 0 {
		newChildren := make([]Expr, len(children))
		for i, c := range children {
			newChildren[i] = Transform(c, fn)
		}
		e = e.WithChildren(newChildren)
	}
	return fn(e)
}

// Walk calls visit on e and every descendant, pre-order.
func Walk(e Expr, visit func(Expr)) {
	visit(e)
	for _, c := range e.Children() {
		Walk(c, visit)
	}
}

// RefKey identifies a single strand reference site: the bundle it points
// into and the strand key within it (positional index as a string, or a
// field name — see Index.Key).
type RefKey struct {
	Bundle string
	Key    string
}

// FreeVarSet is the set of strand references an expression contains,
// collected via Index nodes. "me" bundle entries are coordinate
// references; any other bundle name is a cross-bundle dependency.
type FreeVarSet map[RefKey]bool

// FreeVars collects every Index reference inside e, recursively. Used for:
// the Remap-direct behavior (substitutions only touch the direct body, so
// callers apply FreeVars at the right scope rather than this function doing
// anything about depth); self-reference detection for cache descriptors,
// where a cache's value expression's free vars contain the enclosing
// strand's own global key; and local-dependency detection during spindle
// inlining.
func FreeVars(e Expr) FreeVarSet {
	set := FreeVarSet{}
	Walk(e, func(n Expr) {
		if idx, ok := n.(Index); ok {
			set[RefKey{Bundle: idx.Bundle, Key: idx.Key()}] = true
		}
	})
	return set
}

// Has reports whether key is present without the caller needing to know
// FreeVarSet is a map.
func (s FreeVarSet) Has(bundle, key string) bool {
	return s[RefKey{Bundle: bundle, Key: key}]
}

// Union merges other into a fresh set, leaving both inputs untouched.
func (s FreeVarSet) Union(other FreeVarSet) FreeVarSet {
	out := make(FreeVarSet, len(s)+len(other))
	for k := range s {
		out[k] = true
	}
	for k := range other {
		out[k] = true
	}
	return out
}

// BuiltinNames collects the set of builtin names invoked anywhere inside e,
// recursively (including through Remap bases — ownership/purity analysis
// needs the builtins a bundle transitively invokes, not just its own top
// level).
func BuiltinNames(e Expr) map[string]bool {
	names := map[string]bool{}
	Walk(e, func(n Expr) {
		if b, ok := n.(Builtin); ok {
			names[b.Name] = true
		}
	})
	return names
}
