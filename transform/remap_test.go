package transform

import (
	"testing"

	"github.com/leo-levin/weft/ir"
)

func meField(name string) ir.Expr {
	f := name
	return ir.Index{Bundle: "me", Field: &f}
}

func TestApplyRemapDirect(t *testing.T) {
	// base = me.x + other.v ; remap me.x -> me.x + 1
	other := "v"
	base := ir.BinaryOp{Op: "+", Left: meField("x"), Right: ir.Index{Bundle: "other", Field: &other}}
	r := ir.Remap{Base: base, Subs: map[string]ir.Expr{
		"me.x": ir.BinaryOp{Op: "+", Left: meField("x"), Right: ir.Num{Value: 1}},
	}}

	out := ApplyRemap(r, VisualCoords)
	bin := out.(ir.BinaryOp)

	// left side should be rewritten (me.x + 1)
	left, ok := bin.Left.(ir.BinaryOp)
	if !ok || left.Op != "+" {
		t.Fatalf("expected left operand rewritten to me.x+1, got %#v", bin.Left)
	}
	// other.v must remain untouched — a Remap on me.x never reaches past an
	// other-bundle reference.
	right, ok := bin.Right.(ir.Index)
	if !ok || right.Bundle != "other" {
		t.Errorf("expected other.v to remain unexpanded, got %#v", bin.Right)
	}
}

func TestApplyRemapPositional(t *testing.T) {
	base := meField("x")
	r := ir.Remap{Base: base, Subs: map[string]ir.Expr{"me.0": ir.Num{Value: 99}}}

	out := ApplyRemap(r, VisualCoords)
	num, ok := out.(ir.Num)
	if !ok || num.Value != 99 {
		t.Errorf("expected positional key me.0 to substitute for me.x, got %#v", out)
	}
}

func TestComposeNestedRemap(t *testing.T) {
	// Remap(Remap(me.x, {me.x: me.x+1}), {me.x: me.x*2}) should apply the
	// outer substitution to the inner's replacement: me.x -> (me.x*2)+1
	inner := ir.Remap{Base: meField("x"), Subs: map[string]ir.Expr{
		"me.x": ir.BinaryOp{Op: "+", Left: meField("x"), Right: ir.Num{Value: 1}},
	}}
	outer := ir.Remap{Base: inner, Subs: map[string]ir.Expr{
		"me.x": ir.BinaryOp{Op: "*", Left: meField("x"), Right: ir.Num{Value: 2}},
	}}

	out := ApplyRemap(outer, VisualCoords)
	add, ok := out.(ir.BinaryOp)
	if !ok || add.Op != "+" {
		t.Fatalf("expected outer composition to produce an addition at the root, got %#v", out)
	}
	mul, ok := add.Left.(ir.BinaryOp)
	if !ok || mul.Op != "*" {
		t.Errorf("expected composed inner substitution (me.x*2), got %#v", add.Left)
	}
}
