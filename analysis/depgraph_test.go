package analysis

import (
	"testing"

	"github.com/leo-levin/weft/ir"
)

func strandRef(bundle, field string) ir.Expr {
	f := field
	return ir.Index{Bundle: bundle, Field: &f}
}

func TestBuildDependencyGraphStrictExcludesCacheEdges(t *testing.T) {
	// a.v references b.v directly; b.v references a.v only inside a cache
	// builtin's value expr (the legitimate feedback pattern).
	a := &ir.Bundle{Name: "a", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: strandRef("b", "v")}}}
	b := &ir.Bundle{Name: "b", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: ir.Builtin{
		Name: "cache",
		Args: []ir.Expr{strandRef("a", "v"), ir.Num{Value: 2}, ir.Num{Value: 1}, strandRef("me", "t")},
	}}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"a": a, "b": b}}

	all, strict := BuildDependencyGraph(prog)

	if !all["a"]["b"] || !all["b"]["a"] {
		t.Errorf("expected both edges present in 'all' graph, got %#v", all)
	}
	if !strict["a"]["b"] {
		t.Errorf("expected a->b in strict graph")
	}
	if strict["b"]["a"] {
		t.Errorf("expected b->a to be excluded from strict graph (cache-gated)")
	}
}

func TestTopoSortOrdersStrictDependencies(t *testing.T) {
	strict := Graph{
		"out":  {"mid": true},
		"mid":  {"base": true},
		"base": {},
	}
	order, err := TopoSort(strict)
	if err != nil {
		t.Fatalf("TopoSort failed: %v", err)
	}
	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	if pos["base"] >= pos["mid"] || pos["mid"] >= pos["out"] {
		t.Errorf("expected base before mid before out, got %v", order)
	}
}

func TestTopoSortDetectsNonCacheCycle(t *testing.T) {
	strict := Graph{
		"a": {"b": true},
		"b": {"a": true},
	}
	_, err := TopoSort(strict)
	if err == nil {
		t.Errorf("expected an error for a cycle with no cache boundary")
	}
}
