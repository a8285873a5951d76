// Package coordinator implements WEFT's runtime coordinator (C8): the
// lifecycle state machine, goroutine supervision, and per-tick dispatch
// loop that turns a compiled Unit into a running program. It owns the
// compiled unit's Cache Manager for its entire lifetime and swaps in a
// freshly compiled Unit only once a recompile finishes without error: it
// exclusively owns the running unit's cache and cross-domain buffers.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leo-levin/weft/codegen/audio"
	"github.com/leo-levin/weft/codegen/visual"
	"github.com/leo-levin/weft/compile"
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/wefterr"
)

// State is the coordinator's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
	StatePanic
)

var stateNames = map[State]string{
	StateIdle:     "IDLE",
	StateRunning:  "RUNNING",
	StateStopping: "STOPPING",
	StateStopped:  "STOPPED",
	StatePanic:    "PANIC",
}

func (s State) String() string { return stateNames[s] }

// Config holds the host-supplied parameters a compiled unit is built and
// ticked against.
type Config struct {
	Width      int
	Height     int
	SampleRate float64
}

// VisualDispatcher runs one visual swatch's kernel program for a frame,
// given the uniform values the coordinator has bound. The concrete GPU
// submission mechanism is host-owned; this is the seam the host
// implements against.
type VisualDispatcher interface {
	Dispatch(kernel *visual.KernelProgram, uniforms map[string]float64) error
}

// AudioSink receives one callback's worth of interleaved samples: for each
// sample index, one value per channel, in the order of the audio
// CompiledUnit's Channels.
type AudioSink interface {
	Write(samples []float32) error
}

// Coordinator runs a compiled unit: CPU-ticking scalar caches and
// dispatching the GPU kernel once per visual frame, evaluating per-sample
// audio closures and exporting cross-domain values once per callback, and
// recompiling without disturbing an in-flight tick.
type Coordinator struct {
	state  atomic.Int32
	cfg    Config
	logger *zap.Logger

	mu   sync.RWMutex
	unit *compile.Unit

	sampleIndex atomic.Int64
}

// New builds an idle Coordinator. Recompile must be called at least once
// before Start will find anything to tick.
func New(cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{cfg: cfg, logger: logger}
	c.state.Store(int32(StateIdle))
	return c
}

// Recompile runs the full compile pipeline over prog and, only on success,
// swaps it in as the unit future ticks dispatch against. A failed compile
// leaves the previously running unit (if any) untouched.
func (c *Coordinator) Recompile(prog *ir.Program) error {
	unit, err := compile.Program(prog, c.cfg.Width, c.cfg.Height)
	if err != nil {
		c.logger.Error("recompile failed, keeping previous unit", zap.Error(err))
		return err
	}
	c.mu.Lock()
	c.unit = unit
	c.mu.Unlock()
	c.logger.Info("recompiled",
		zap.Int("visual_swatches", len(unit.Visual)),
		zap.Int("audio_swatches", len(unit.Audio)))
	return nil
}

// currentUnit returns the unit in effect for the next tick.
func (c *Coordinator) currentUnit() *compile.Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unit
}

// State reports the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Start runs the visual and audio tick loops under a single errgroup until
// ctx is done, then waits for both to return. A backend that hits a
// persistent error stops on its own while the other keeps running; Start
// returns that error once both loops have returned. A cancelled or expired
// ctx is a clean stop. frameInterval and samplesPerCallback are zero-valued by
// the caller to skip a backend entirely (a GPU-less or silent program).
func (c *Coordinator) Start(ctx context.Context, visualDispatcher VisualDispatcher, audioSink AudioSink, frameInterval time.Duration, samplesPerCallback int) error {
	if !c.transition(StateIdle, StateRunning) {
		return errors.New("coordinator: Start called from state " + c.State().String())
	}
	defer c.setState(StateStopped)

	var g errgroup.Group
	if visualDispatcher != nil && frameInterval > 0 {
		g.Go(func() error { return c.runVisual(ctx, visualDispatcher, frameInterval) })
	}
	if audioSink != nil && samplesPerCallback > 0 {
		g.Go(func() error { return c.runAudio(ctx, audioSink, samplesPerCallback) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.logger.Error("coordinator stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// runVisual ticks every visual swatch once per frameInterval: CPU-tick
// scalar caches first, then dispatch the kernel. A dropped (non-persistent)
// tick error is logged and the loop continues; a persistent ResourceError
// or RuntimeError stops this backend only.
func (c *Coordinator) runVisual(ctx context.Context, dispatcher VisualDispatcher, frameInterval time.Duration) error {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var frameTime float64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			unit := c.currentUnit()
			if unit == nil {
				continue
			}
			frame := visual.Frame{Time: frameTime, Width: float64(c.cfg.Width), Height: float64(c.cfg.Height)}
			frameTime += frameInterval.Seconds()

			for id, sw := range unit.Visual {
				if err := c.tickVisualSwatch(unit, id, sw, frame, dispatcher); err != nil {
					if persistent(err) {
						c.logger.Error("visual backend stopping on persistent error", zap.String("swatch", id), zap.Error(err))
						return err
					}
					c.logger.Warn("dropped visual tick", zap.String("swatch", id), zap.Error(err))
				}
			}
		}
	}
}

func (c *Coordinator) tickVisualSwatch(unit *compile.Unit, id string, sw *compile.VisualSwatch, frame visual.Frame, dispatcher VisualDispatcher) error {
	for _, tick := range sw.ScalarTicks {
		if _, err := tick.Tick(unit.Manager, frame); err != nil {
			return err
		}
	}
	uniforms := map[string]float64{"time": frame.Time, "width": frame.Width, "height": frame.Height}
	return dispatcher.Dispatch(sw.Kernel, uniforms)
}

// runAudio evaluates every audio swatch's closures one sample at a time,
// filling an interleaved per-callback buffer per channel, writing it to
// sink, then exporting cross-domain strand values once per callback at
// the last sample index.
func (c *Coordinator) runAudio(ctx context.Context, sink AudioSink, samplesPerCallback int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		unit := c.currentUnit()
		if unit == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		for id, cu := range unit.Audio {
			if err := c.tickAudioSwatch(unit, cu, sink, samplesPerCallback); err != nil {
				if persistent(err) {
					c.logger.Error("audio backend stopping on persistent error", zap.String("swatch", id), zap.Error(err))
					return err
				}
				c.logger.Warn("dropped audio callback", zap.String("swatch", id), zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) tickAudioSwatch(unit *compile.Unit, cu *audio.CompiledUnit, sink AudioSink, samplesPerCallback int) error {
	buf := make([]float32, samplesPerCallback*len(cu.Closures))
	var last audio.Sample
	for n := 0; n < samplesPerCallback; n++ {
		idx := int(c.sampleIndex.Add(1)) - 1
		s := audio.Sample{Index: idx, Time: float64(idx) / c.cfg.SampleRate, SampleRate: c.cfg.SampleRate}
		last = s
		for ch, closure := range cu.Closures {
			v, err := closure(s)
			if err != nil {
				return err
			}
			buf[n*len(cu.Closures)+ch] = float32(v)
		}
	}
	if err := sink.Write(buf); err != nil {
		return &wefterr.ResourceError{Hardware: "audio", Msg: err.Error()}
	}
	for slot, closure := range cu.Exports {
		v, err := closure(last)
		if err != nil {
			return err
		}
		unit.Manager.WriteCrossDomain(slot, v)
	}
	return nil
}

// persistent reports whether err should stop the affected backend rather
// than just dropping the tick it occurred in.
func persistent(err error) bool {
	var re *wefterr.RuntimeError
	if errors.As(err, &re) {
		return re.Persistent
	}
	var rs *wefterr.ResourceError
	return errors.As(err, &rs)
}
