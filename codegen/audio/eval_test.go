package audio

import (
	"testing"

	"github.com/leo-levin/weft/analysis"
	"github.com/leo-levin/weft/cache"
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/partition"
)

func meIdx(field string) ir.Expr {
	f := field
	return ir.Index{Bundle: "me", Field: &f}
}

func TestCompileSineTone(t *testing.T) {
	// a pure tone: play = [sin((me.i/me.sampleRate)*2764.6)*0.3].
	play := &ir.Bundle{Name: "play", Strands: []ir.Strand{
		{Name: "out", Index: 0, Expr: ir.BinaryOp{
			Op: "*",
			Left: ir.Builtin{Name: "sin", Args: []ir.Expr{
				ir.BinaryOp{Op: "*", Left: ir.BinaryOp{
					Op: "/", Left: meIdx("i"), Right: meIdx("sampleRate"),
				}, Right: ir.Num{Value: 2764.6}},
			}},
			Right: ir.Num{Value: 0.3},
		}},
	}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"play": play}}
	sw := &partition.Swatch{ID: "play_swatch", BackendID: analysis.Audio, Bundles: map[string]bool{"play": true}}
	mgr := cache.NewManager(nil, 0, 0)

	unit, err := Compile(prog, sw, nil, mgr)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(unit.Closures) != 1 {
		t.Fatalf("expected one closure, got %d", len(unit.Closures))
	}
	got, err := unit.Closures[0](Sample{Index: 0, Time: 0, SampleRate: 44100})
	if err != nil {
		t.Fatalf("closure error: %v", err)
	}
	if got != 0 {
		t.Errorf("expected sample 0 to be exactly 0, got %v", got)
	}
}

func TestCompileScalarCacheAudioDelay(t *testing.T) {
	// delay.out = cache(mic_placeholder_value, 4, 3, me.i); play = [delay.out]
	cacheExpr := ir.Builtin{Name: "cache", Args: []ir.Expr{
		meIdx("i"), // stand-in "value" expression, distinct per sample
		ir.Num{Value: 4}, ir.Num{Value: 3}, meIdx("i"),
	}}
	delay := &ir.Bundle{Name: "delay", Strands: []ir.Strand{{Name: "out", Index: 0, Expr: cacheExpr}}}
	play := &ir.Bundle{Name: "play", Strands: []ir.Strand{{Name: "out", Index: 0, Expr: ir.Index{Bundle: "delay", Field: strp("out")}}}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"delay": delay, "play": play}}

	descriptors := []*analysis.CacheNodeDescriptor{
		{
			ID: "cache0", BundleName: "delay", StrandIndex: 0,
			Backend: analysis.Audio, Storage: "scalar",
			HistorySize: 4, TapIndex: 3,
			ValueExpr: cacheExpr.Args[0], SignalExpr: cacheExpr.Args[3],
		},
	}
	sw := &partition.Swatch{ID: "play_swatch", BackendID: analysis.Audio, Bundles: map[string]bool{"play": true, "delay": true}}
	mgr := cache.NewManager(toDescriptors(descriptors), 0, 0)

	unit, err := Compile(prog, sw, descriptors, mgr)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	// the cache's value and signal expressions are both me.i here, so each
	// of the 4 ticks below is a distinct-signal shift (mirrors
	// cache.TestScalarCacheAudioDelay's distinct-signal trace).
	var last float64
	for i := 0; i < 4; i++ {
		v, err := unit.Closures[0](Sample{Index: i, Time: float64(i), SampleRate: 44100})
		if err != nil {
			t.Fatalf("closure error at sample %d: %v", i, err)
		}
		last = v
	}
	if last != 0 {
		t.Errorf("expected tap=3 (oldest slot) to read the first tick's value (0) after 4 distinct ticks, got %v", last)
	}
}

func TestCompileUnknownBuiltinErrors(t *testing.T) {
	play := &ir.Bundle{Name: "play", Strands: []ir.Strand{
		{Name: "out", Index: 0, Expr: ir.Builtin{Name: "not_a_real_builtin", Args: []ir.Expr{ir.Num{Value: 1}}}},
	}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"play": play}}
	sw := &partition.Swatch{ID: "play_swatch", BackendID: analysis.Audio, Bundles: map[string]bool{"play": true}}
	mgr := cache.NewManager(nil, 0, 0)

	if _, err := Compile(prog, sw, nil, mgr); err == nil {
		t.Fatal("expected an error for an unknown builtin")
	}
}

func TestCompileSelectTakesBranchByCondition(t *testing.T) {
	play := &ir.Bundle{Name: "play", Strands: []ir.Strand{
		{Name: "out", Index: 0, Expr: ir.Builtin{Name: "select", Args: []ir.Expr{
			ir.BinaryOp{Op: ">", Left: meIdx("i"), Right: ir.Num{Value: 0}},
			ir.Num{Value: 1},
			ir.Num{Value: -1},
		}}},
	}}
	prog := &ir.Program{Bundles: map[string]*ir.Bundle{"play": play}}
	sw := &partition.Swatch{ID: "play_swatch", BackendID: analysis.Audio, Bundles: map[string]bool{"play": true}}
	mgr := cache.NewManager(nil, 0, 0)

	unit, err := Compile(prog, sw, nil, mgr)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	got, err := unit.Closures[0](Sample{Index: 0, Time: 0, SampleRate: 44100})
	if err != nil {
		t.Fatalf("closure error: %v", err)
	}
	if got != -1 {
		t.Errorf("expected select to take the else branch at i=0, got %v", got)
	}
	got, err = unit.Closures[0](Sample{Index: 5, Time: 0, SampleRate: 44100})
	if err != nil {
		t.Fatalf("closure error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected select to take the then branch at i=5, got %v", got)
	}
}

func strp(s string) *string { return &s }

// toDescriptors narrows analysis.CacheNodeDescriptor to cache.Descriptor,
// a type alias, so tests can build the manager the same way codegen does.
func toDescriptors(ds []*analysis.CacheNodeDescriptor) []*cache.Descriptor {
	out := make([]*cache.Descriptor, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}
