package transform

import (
	"testing"

	"github.com/leo-levin/weft/ir"
)

func buildTrailProgram() *ir.Program {
	// trail.v = remap(trail.v, {t: t-1}) * 0.95 + me.x   (self-referential
	// feedback, should become phase 2's cache wrap)
	field := "v"
	selfRef := ir.Index{Bundle: "trail", Field: &field}
	remap := ir.Remap{
		Base: selfRef,
		Subs: map[string]ir.Expr{"me.t": ir.BinaryOp{
			Op: "-", Left: ir.Index{Bundle: "me", Field: strp("t")}, Right: ir.Num{Value: 1},
		}},
	}
	expr := ir.BinaryOp{
		Op:   "+",
		Left: ir.BinaryOp{Op: "*", Left: remap, Right: ir.Num{Value: 0.95}},
		Right: ir.Index{Bundle: "me", Field: strp("x")},
	}
	trail := &ir.Bundle{Name: "trail", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: expr}}}
	return &ir.Program{Bundles: map[string]*ir.Bundle{"trail": trail}}
}

func strp(s string) *string { return &s }

func TestTemporalRewriteSelfReferenceProducesCache(t *testing.T) {
	prog := buildTrailProgram()
	out := RewriteTemporalRemapsToCache(prog, VisualCoords)

	strand := out.Bundles["trail"].Strands[0]
	builtin, ok := strand.Expr.(ir.Builtin)
	if !ok || builtin.Name != "cache" {
		t.Fatalf("expected whole strand wrapped in cache builtin, got %#v", strand.Expr)
	}
	if len(builtin.Args) != 4 {
		t.Fatalf("expected 4 cache args, got %d", len(builtin.Args))
	}
	// the remap must be gone from the value expr (unwrapped to its Base)
	ir.Walk(builtin.Args[0], func(n ir.Expr) {
		if _, isRemap := n.(ir.Remap); isRemap {
			t.Errorf("expected no remaining Remap nodes inside cache value expr")
		}
	})
}

func TestTemporalRewriteIsIdempotent(t *testing.T) {
	prog := buildTrailProgram()
	once := RewriteTemporalRemapsToCache(prog, VisualCoords)
	twice := RewriteTemporalRemapsToCache(once, VisualCoords)

	a := once.Bundles["trail"].Strands[0].Expr
	b := twice.Bundles["trail"].Strands[0].Expr
	if !ir.Equal(a, b) {
		t.Errorf("expected a second rewrite pass to be a no-op, got different trees")
	}
}

func TestTemporalRewriteNonSelfReferentialStatefulBase(t *testing.T) {
	// out.v = remap(cache_bundle.v, {t: t-1}) where cache_bundle is
	// stateful but not self-referential: should convert directly to a
	// cache builtin in phase 1.
	camBundle := &ir.Bundle{
		Name: "cam",
		Strands: []ir.Strand{{Name: "v", Index: 0, Expr: ir.Builtin{Name: "camera", Args: nil}}},
	}
	field := "v"
	remap := ir.Remap{
		Base: ir.Index{Bundle: "cam", Field: &field},
		Subs: map[string]ir.Expr{"me.t": ir.BinaryOp{
			Op: "-", Left: ir.Index{Bundle: "me", Field: strp("t")}, Right: ir.Num{Value: 1},
		}},
	}
	out := &ir.Bundle{Name: "out", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: remap}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"cam": camBundle, "out": out}}

	result := RewriteTemporalRemapsToCache(prog, VisualCoords)
	strand := result.Bundles["out"].Strands[0]
	builtin, ok := strand.Expr.(ir.Builtin)
	if !ok || builtin.Name != "cache" {
		t.Fatalf("expected phase 1 to convert to a cache builtin, got %#v", strand.Expr)
	}
}
