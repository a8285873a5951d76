// Package transform implements the IR-to-IR rewrites of WEFT's middle end
// (C2): parameter substitution, spindle inlining with cycle-aware cache
// target rewiring, coordinate remap application, and the temporal-remap-to-
// cache rewrite. Every pass recurses through ir.Expr's Children/WithChildren
// primitive rather than re-deriving traversal.
package transform

import "github.com/leo-levin/weft/ir"

// Substitute implements parameter substitution together with the
// index-reference substitution spindle inlining needs: subs may map a bare
// parameter name to its replacement Expr (Param-node substitution), and/or
// a full "bundle.key" reference (as produced by Index.Key) to a whole
// replacement Expr (local-strand inlining, Index(local, strandKey) →
// inlined expression).
//
// Index nodes are handled specially: a full "bundle.key" hit replaces the
// entire node; otherwise, if subs holds an entry for the bare bundle name
// and that entry is itself an Index, the bundle reference is rewritten to
// point at that Index's bundle (the case where a bundle name is itself a
// parameter bound to another Index). All other nodes recurse homomorphically.
func Substitute(e ir.Expr, subs map[string]ir.Expr) ir.Expr {
	switch n := e.(type) {
	case ir.Param:
		if repl, ok := subs[n.Name]; ok {
			return repl
		}
		return n
	case ir.Index:
		fullKey := n.Bundle + "." + n.Key()
		if repl, ok := subs[fullKey]; ok {
			return repl
		}
		if repl, ok := subs[n.Bundle]; ok {
			if idxRepl, ok2 := repl.(ir.Index); ok2 {
				n.Bundle = idxRepl.Bundle
			}
		}
		return n
	default:
		children := e.Children()
		if len(children) == 0 {
			return e
		}
		newChildren := make([]ir.Expr, len(children))
		for i, c := range children {
			newChildren[i] = Substitute(c, subs)
		}
		return e.WithChildren(newChildren)
	}
}
