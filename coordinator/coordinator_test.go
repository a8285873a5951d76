package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/wefterr"
)

func meIdx(field string) ir.Expr {
	f := field
	return ir.Index{Bundle: "me", Field: &f}
}

// sineProgram builds a one-strand play bundle: sin((i/sampleRate)*2764.6)*0.3.
func sineProgram() *ir.Program {
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
	return &ir.Program{Bundles: map[string]*ir.Bundle{"play": play}}
}

type fakeSink struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSink) Write(samples []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRecompileSwapsUnit(t *testing.T) {
	c := New(Config{Width: 4, Height: 4, SampleRate: 44100}, zaptest.NewLogger(t))
	if c.currentUnit() != nil {
		t.Fatal("expected no unit before Recompile")
	}
	if err := c.Recompile(sineProgram()); err != nil {
		t.Fatalf("Recompile failed: %v", err)
	}
	unit := c.currentUnit()
	if unit == nil {
		t.Fatal("expected a unit after Recompile")
	}
	if len(unit.Audio) != 1 {
		t.Fatalf("expected one audio swatch, got %d", len(unit.Audio))
	}
}

func TestRecompileKeepsPreviousUnitOnFailure(t *testing.T) {
	c := New(Config{Width: 4, Height: 4, SampleRate: 44100}, zaptest.NewLogger(t))
	if err := c.Recompile(sineProgram()); err != nil {
		t.Fatalf("Recompile failed: %v", err)
	}
	good := c.currentUnit()

	bad := &ir.Program{Bundles: map[string]*ir.Bundle{
		"play": {Name: "play", Strands: []ir.Strand{
			{Name: "out", Index: 0, Expr: ir.Builtin{Name: "not_a_real_builtin", Args: []ir.Expr{ir.Num{Value: 1}}}},
		}},
	}}
	if err := c.Recompile(bad); err == nil {
		t.Fatal("expected an error recompiling an invalid program")
	}
	if c.currentUnit() != good {
		t.Fatal("a failed recompile must not replace the running unit")
	}
}

func TestStartRunsAudioLoopAndStopsOnCancel(t *testing.T) {
	c := New(Config{SampleRate: 44100}, zaptest.NewLogger(t))
	if err := c.Recompile(sineProgram()); err != nil {
		t.Fatalf("Recompile failed: %v", err)
	}
	sink := &fakeSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Start(ctx, nil, sink, 0, 64)
	if err != nil {
		t.Fatalf("Start returned an error: %v", err)
	}
	if sink.count() == 0 {
		t.Fatal("expected at least one audio callback before the context expired")
	}
	if c.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %v", c.State())
	}
}

func TestStartRejectsConcurrentStart(t *testing.T) {
	c := New(Config{SampleRate: 44100}, zaptest.NewLogger(t))
	if err := c.Recompile(sineProgram()); err != nil {
		t.Fatalf("Recompile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Start(ctx, nil, &fakeSink{}, 0, 64)
		close(done)
	}()

	// give the first Start a moment to claim StateRunning.
	time.Sleep(5 * time.Millisecond)
	if err := c.Start(ctx, nil, &fakeSink{}, 0, 64); err == nil {
		t.Fatal("expected a concurrent Start to be rejected")
	}

	cancel()
	<-done
}

func TestPersistentClassification(t *testing.T) {
	if persistent(errors.New("plain error")) {
		t.Error("a plain error must not be treated as persistent")
	}
	if !persistent(&wefterr.ResourceError{Hardware: "audio", Msg: "device gone"}) {
		t.Error("a ResourceError must always be treated as persistent")
	}
	if persistent(&wefterr.RuntimeError{Msg: "transient", Persistent: false}) {
		t.Error("a non-persistent RuntimeError must not be treated as persistent")
	}
	if !persistent(&wefterr.RuntimeError{Msg: "fatal", Persistent: true}) {
		t.Error("a persistent RuntimeError must be treated as persistent")
	}
}
