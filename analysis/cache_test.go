package analysis

import (
	"testing"

	"github.com/leo-levin/weft/ir"
)

func cacheCall(value ir.Expr) ir.Builtin {
	return ir.Builtin{Name: "cache", Args: []ir.Expr{
		value, ir.Num{Value: 2}, ir.Num{Value: 1}, strandRef("me", "t"),
	}}
}

func TestExtractCacheDescriptorsCSE(t *testing.T) {
	// two bundles with a structurally identical cache call should share one
	// descriptor rather than allocating two.
	value := ir.BinaryOp{Op: "*", Left: strandRef("me", "x"), Right: ir.Num{Value: 0.5}}
	a := &ir.Bundle{Name: "a", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: cacheCall(value)}}}
	b := &ir.Bundle{Name: "b", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: cacheCall(value)}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"a": a, "b": b}}

	ownership := map[string]Backend{"a": Visual, "b": Visual}
	descriptors := ExtractCacheDescriptors(prog, ownership)

	if len(descriptors) != 1 {
		t.Fatalf("expected CSE to collapse identical cache calls into 1 descriptor, got %d", len(descriptors))
	}
}

func TestExtractCacheDescriptorsStorageMode(t *testing.T) {
	spatial := cacheCall(ir.BinaryOp{Op: "+", Left: strandRef("me", "x"), Right: ir.Num{Value: 1}})
	scalar := cacheCall(ir.Num{Value: 42})

	a := &ir.Bundle{Name: "a", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: spatial}}}
	b := &ir.Bundle{Name: "b", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: scalar}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"a": a, "b": b}}

	descriptors := ExtractCacheDescriptors(prog, map[string]Backend{"a": Visual, "b": Visual})

	var gotSpatial, gotScalar bool
	for _, d := range descriptors {
		if d.BundleName == "a" && d.Storage == "pixelAddressed" {
			gotSpatial = true
		}
		if d.BundleName == "b" && d.Storage == "scalar" {
			gotScalar = true
		}
	}
	if !gotSpatial {
		t.Errorf("expected spatial-coordinate cache to be pixelAddressed")
	}
	if !gotScalar {
		t.Errorf("expected coordinate-free cache to be scalar")
	}
}

func TestExtractCacheDescriptorsAudioAlwaysScalar(t *testing.T) {
	spatial := cacheCall(ir.BinaryOp{Op: "+", Left: strandRef("me", "x"), Right: ir.Num{Value: 1}})
	a := &ir.Bundle{Name: "a", Strands: []ir.Strand{{Name: "v", Index: 0, Expr: spatial}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"a": a}}

	descriptors := ExtractCacheDescriptors(prog, map[string]Backend{"a": Audio})
	if len(descriptors) != 1 || descriptors[0].Storage != "scalar" {
		t.Errorf("expected audio-owned caches to always be scalar, got %#v", descriptors)
	}
}
