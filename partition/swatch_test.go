package partition

import (
	"testing"

	"github.com/leo-levin/weft/analysis"
	"github.com/leo-levin/weft/ir"
)

func idx(bundle, field string) ir.Expr {
	f := field
	return ir.Index{Bundle: bundle, Field: &f}
}

// buildCrossDomainProgram mirrors an audio-reactive-visual scenario:
// amp.v = abs(sin(me.t*3)) in the audio domain (pure — no hardware tag),
// display.r = amp.v in the visual domain.
func buildCrossDomainProgram() *ir.Program {
	amp := &ir.Bundle{Name: "amp", Strands: []ir.Strand{
		{Name: "v", Index: 0, Expr: ir.Builtin{Name: "abs", Args: []ir.Expr{
			ir.Builtin{Name: "sin", Args: []ir.Expr{
				ir.BinaryOp{Op: "*", Left: idx("me", "t"), Right: ir.Num{Value: 3}},
			}},
		}}},
	}}
	play := &ir.Bundle{Name: "play", Strands: []ir.Strand{
		{Name: "v", Index: 0, Expr: idx("amp", "v")},
	}}
	display := &ir.Bundle{Name: "display", Strands: []ir.Strand{
		{Name: "r", Index: 0, Expr: idx("amp", "v")},
	}}
	return &ir.Program{Bundles: map[string]*ir.Bundle{
		"amp": amp, "play": play, "display": display,
	}}
}

func TestBuildSwatchesDuplicatesPureBundle(t *testing.T) {
	prog := buildCrossDomainProgram()
	res, err := analysis.Analyze(prog)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	swatches, err := BuildSwatches(prog, res)
	if err != nil {
		t.Fatalf("BuildSwatches failed: %v", err)
	}
	if len(swatches) != 2 {
		t.Fatalf("expected 2 swatches (visual + audio), got %d", len(swatches))
	}

	for _, sw := range swatches {
		if !sw.Bundles["amp"] {
			t.Errorf("expected pure bundle 'amp' duplicated into swatch %s, got %v", sw.ID, sw.Bundles)
		}
	}
}

func TestBuildSwatchesCrossDomainBuffer(t *testing.T) {
	// a strictly hardware-pinned visual bundle read from audio becomes a
	// buffer contract, not a duplicated bundle.
	cam := &ir.Bundle{Name: "cam", Strands: []ir.Strand{
		{Name: "v", Index: 0, Expr: ir.Builtin{Name: "camera", Args: nil}},
	}}
	display := &ir.Bundle{Name: "display", Strands: []ir.Strand{
		{Name: "r", Index: 0, Expr: idx("cam", "v")},
	}}
	play := &ir.Bundle{Name: "play", Strands: []ir.Strand{
		{Name: "v", Index: 0, Expr: idx("cam", "v")},
	}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"cam": cam, "display": display, "play": play}}

	res, err := analysis.Analyze(prog)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	swatches, err := BuildSwatches(prog, res)
	if err != nil {
		t.Fatalf("BuildSwatches failed: %v", err)
	}

	var audioSwatch *Swatch
	for _, sw := range swatches {
		if sw.BackendID == analysis.Audio {
			audioSwatch = sw
		}
	}
	if audioSwatch == nil {
		t.Fatalf("expected an audio swatch")
	}
	if audioSwatch.Bundles["cam"] {
		t.Errorf("expected camera-pinned bundle not duplicated into audio swatch")
	}
	found := false
	for _, in := range audioSwatch.InputBuffers {
		if in.Bundle == "cam" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected audio swatch to record a cross-domain input buffer for 'cam', got %#v", audioSwatch.InputBuffers)
	}
}
