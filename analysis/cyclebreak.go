package analysis

import "github.com/leo-levin/weft/ir"

// RewriteCacheCycles implements the cycle-breaking rule: a reference to
// another bundle's strand, found lexically inside a cache builtin's value
// expression, is replaced with a synthetic CacheRead when that reference is
// part of a genuine cycle — either a strand referencing itself (the common
// feedback-trail pattern) or two bundles whose mutual dependency only
// closes through a cache. descriptors must come from ExtractCacheDescriptors
// run over the same prog so CacheRead.CacheID can point at a real buffer.
func RewriteCacheCycles(prog *ir.Program, all Graph, descriptors []*CacheNodeDescriptor) *ir.Program {
	descByStrand := map[ir.RefKey]*CacheNodeDescriptor{}
	for _, d := range descriptors {
		key := ir.RefKey{Bundle: d.BundleName, Key: indexKeyFor(d.StrandIndex)}
		if _, exists := descByStrand[key]; !exists {
			descByStrand[key] = d
		}
	}
	// also index by strand name so "bundle.name" free-var references resolve
	for name, b := range prog.Bundles {
		for _, s := range b.Strands {
			if d, ok := descByStrand[ir.RefKey{Bundle: name, Key: indexKeyFor(s.Index)}]; ok {
				descByStrand[ir.RefKey{Bundle: name, Key: s.Name}] = d
			}
		}
	}

	out := &ir.Program{
		Bundles:   make(map[string]*ir.Bundle, len(prog.Bundles)),
		Spindles:  prog.Spindles,
		Order:     prog.Order,
		Resources: prog.Resources,
	}
	for name, b := range prog.Bundles {
		nb := &ir.Bundle{Name: name}
		for _, s := range b.Strands {
			rewritten := rewriteCacheRefs(s.Expr, name, prog, all, descByStrand, false)
			nb.Strands = append(nb.Strands, ir.Strand{Name: s.Name, Index: s.Index, Expr: rewritten})
		}
		out.Bundles[name] = nb
	}
	return out
}

func rewriteCacheRefs(e ir.Expr, bundle string, prog *ir.Program, all Graph, descByStrand map[ir.RefKey]*CacheNodeDescriptor, insideCacheValue bool) ir.Expr {
	if b, ok := e.(ir.Builtin); ok && b.Name == "cache" && len(b.Args) == 4 {
		newArgs := make([]ir.Expr, 4)
		newArgs[0] = rewriteCacheRefs(b.Args[0], bundle, prog, all, descByStrand, true)
		for i := 1; i < 4; i++ {
			newArgs[i] = rewriteCacheRefs(b.Args[i], bundle, prog, all, descByStrand, insideCacheValue)
		}
		b.Args = newArgs
		return b
	}

	if idx, ok := e.(ir.Index); ok && insideCacheValue && idx.Bundle != "me" {
		key := ir.RefKey{Bundle: idx.Bundle, Key: idx.Key()}
		if d, found := descByStrand[key]; found {
			if idx.Bundle == bundle || all.Reaches(idx.Bundle, bundle) {
				tap := int(d.TapIndex)
				return ir.CacheRead{CacheID: d.ID, TapIndex: tap}
			}
		}
		return e
	}

	children := e.Children()
	if len(children) == 0 {
		return e
	}
	newChildren := make([]ir.Expr, len(children))
	for i, c := range children {
		newChildren[i] = rewriteCacheRefs(c, bundle, prog, all, descByStrand, insideCacheValue)
	}
	return e.WithChildren(newChildren)
}
