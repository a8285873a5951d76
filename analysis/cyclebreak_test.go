package analysis

import (
	"testing"

	"github.com/leo-levin/weft/ir"
)

func TestRewriteCacheCyclesSelfReference(t *testing.T) {
	// trail.v = cache(trail.v * 0.9, 2, 1, me.t)
	value := ir.BinaryOp{Op: "*", Left: strandRef("trail", "v"), Right: ir.Num{Value: 0.9}}
	trail := &ir.Bundle{Name: "trail", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: cacheCall(value)}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"trail": trail}}

	all, _ := BuildDependencyGraph(prog)
	descriptors := ExtractCacheDescriptors(prog, map[string]Backend{"trail": Visual})
	rewritten := RewriteCacheCycles(prog, all, descriptors)

	strand := rewritten.Bundles["trail"].Strands[0]
	builtin := strand.Expr.(ir.Builtin)
	inner, ok := builtin.Args[0].(ir.BinaryOp)
	if !ok {
		t.Fatalf("expected value expr to remain a BinaryOp, got %#v", builtin.Args[0])
	}
	if _, ok := inner.Left.(ir.CacheRead); !ok {
		t.Errorf("expected self-reference rewritten to CacheRead, got %#v", inner.Left)
	}
}

func TestRewriteCacheCyclesLeavesNonCyclicRefsAlone(t *testing.T) {
	// b.v = cache(a.v, 2, 1, me.t), where a does not depend on b: not a
	// cycle, so a.v should remain a plain Index.
	a := &ir.Bundle{Name: "a", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: ir.Num{Value: 1}}}}
	b := &ir.Bundle{Name: "b", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: cacheCall(strandRef("a", "v"))}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"a": a, "b": b}}

	all, _ := BuildDependencyGraph(prog)
	descriptors := ExtractCacheDescriptors(prog, map[string]Backend{"a": Visual, "b": Visual})
	rewritten := RewriteCacheCycles(prog, all, descriptors)

	builtin := rewritten.Bundles["b"].Strands[0].Expr.(ir.Builtin)
	if _, ok := builtin.Args[0].(ir.Index); !ok {
		t.Errorf("expected non-cyclic reference to remain a plain Index, got %#v", builtin.Args[0])
	}
}
