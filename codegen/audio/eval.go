// Package audio implements WEFT's audio code generator (C6): a closure-
// tree evaluator built directly from IR, one per-sample closure per play
// strand.
package audio

import (
	"math"
	"strconv"

	"github.com/leo-levin/weft/analysis"
	"github.com/leo-levin/weft/cache"
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/partition"
	"github.com/leo-levin/weft/transform"
	"github.com/leo-levin/weft/wefterr"
)

// Sample is the per-tick input a compiled closure runs with.
type Sample struct {
	Index      int
	Time       float64
	SampleRate float64
}

// Closure evaluates one play strand for a given sample.
type Closure func(s Sample) (float64, error)

// CompiledUnit is C6's output: one closure per play strand, in strand
// order, plus the channel names they were compiled from. Exports holds one
// additional closure per "bundle.strand" named in the swatch's
// OutputBuffers — cross-domain values the coordinator samples once per
// callback, at the last sample index, and publishes to the Cache Manager
// after the callback completes.
type CompiledUnit struct {
	Channels []string
	Closures []Closure
	Exports  map[string]Closure
}

// intrinsicIO mirrors the visual backend's placeholder hardware reads; the
// host supplies real microphone samples through its own binding.
var intrinsicIO = map[string]func(Sample) float64{
	"microphone": func(Sample) float64 { return 0 },
	"mouse":      func(Sample) float64 { return 0 },
	"key":        func(Sample) float64 { return 0 },
	"text":       func(Sample) float64 { return 0 },
	"camera":     func(Sample) float64 { return 0 },
}

// numericBuiltins implements the closed builtin set's numeric primitives
// (everything but cache/select/hardware reads, handled separately).
var numericBuiltins = map[string]func([]float64) (float64, error){
	"sin":   func(a []float64) (float64, error) { return math.Sin(a[0]), nil },
	"cos":   func(a []float64) (float64, error) { return math.Cos(a[0]), nil },
	"tan":   func(a []float64) (float64, error) { return math.Tan(a[0]), nil },
	"asin":  func(a []float64) (float64, error) { return math.Asin(a[0]), nil },
	"acos":  func(a []float64) (float64, error) { return math.Acos(a[0]), nil },
	"atan":  func(a []float64) (float64, error) { return math.Atan(a[0]), nil },
	"atan2": func(a []float64) (float64, error) { return math.Atan2(a[0], a[1]), nil },
	"abs":   func(a []float64) (float64, error) { return math.Abs(a[0]), nil },
	"floor": func(a []float64) (float64, error) { return math.Floor(a[0]), nil },
	"ceil":  func(a []float64) (float64, error) { return math.Ceil(a[0]), nil },
	"round": func(a []float64) (float64, error) { return math.Round(a[0]), nil },
	"sqrt":  func(a []float64) (float64, error) { return math.Sqrt(a[0]), nil },
	"pow":   func(a []float64) (float64, error) { return math.Pow(a[0], a[1]), nil },
	"exp":   func(a []float64) (float64, error) { return math.Exp(a[0]), nil },
	"log":   func(a []float64) (float64, error) { return math.Log(a[0]), nil },
	"log2":  func(a []float64) (float64, error) { return math.Log2(a[0]), nil },
	"min":   func(a []float64) (float64, error) { return math.Min(a[0], a[1]), nil },
	"max":   func(a []float64) (float64, error) { return math.Max(a[0], a[1]), nil },
	"clamp": func(a []float64) (float64, error) { return math.Min(math.Max(a[0], a[1]), a[2]), nil },
	"lerp":  lerp,
	"mix":   lerp,
	"step": func(a []float64) (float64, error) {
		if a[1] < a[0] {
			return 0, nil
		}
		return 1, nil
	},
	"smoothstep": func(a []float64) (float64, error) {
		edge0, edge1, x := a[0], a[1], a[2]
		t := math.Min(math.Max((x-edge0)/(edge1-edge0), 0), 1)
		return t * t * (3 - 2*t), nil
	},
	"fract": func(a []float64) (float64, error) { return a[0] - math.Floor(a[0]), nil },
	"mod":   func(a []float64) (float64, error) { return math.Mod(a[0], a[1]), nil },
	"sign":  func(a []float64) (float64, error) { return float64(sign(a[0])), nil },
	// noise has no reference source of randomness in a deterministic
	// per-sample closure tree; a stable hash-based value stands in for it.
	"noise": func(a []float64) (float64, error) { return fractionalNoise(a[0]), nil },
}

func lerp(a []float64) (float64, error) {
	return a[0] + (a[1]-a[0])*a[2], nil
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// fractionalNoise is a cheap deterministic hash of a single float into
// [0,1), good enough for a closed-form per-sample evaluator with no
// access to a GPU-side noise texture.
func fractionalNoise(x float64) float64 {
	s := math.Sin(x*12.9898) * 43758.5453
	return s - math.Floor(s)
}

// Compile builds a CompiledUnit for sw, an audio swatch. mgr provides the
// cache ticking primitive (matched by value/signal structural equality)
// and serves cross-domain reads for bundles the swatch doesn't own.
func Compile(prog *ir.Program, sw *partition.Swatch, descriptors []*analysis.CacheNodeDescriptor, mgr *cache.Manager) (*CompiledUnit, error) {
	play, ok := prog.Bundles["play"]
	if !ok {
		return nil, &wefterr.CompilationError{Backend: "audio", Msg: "no play bundle in program"}
	}
	b := &builder{prog: prog, swatch: sw, descriptors: descriptors, mgr: mgr}

	unit := &CompiledUnit{Exports: map[string]Closure{}}
	for _, s := range play.Strands {
		closure, err := b.build(s.Expr, "", map[ir.RefKey]bool{})
		if err != nil {
			return nil, err
		}
		unit.Channels = append(unit.Channels, s.Name)
		unit.Closures = append(unit.Closures, closure)
	}

	for _, out := range sw.OutputBuffers {
		bu, ok := prog.Bundles[out.Bundle]
		if !ok {
			return nil, &wefterr.CompilationError{Backend: "audio", Bundle: out.Bundle, Msg: "unknown bundle reference"}
		}
		for _, strandName := range out.Strands {
			strand, ok := bu.Resolve(strandName)
			if !ok {
				return nil, &wefterr.CompilationError{Backend: "audio", Bundle: out.Bundle, Msg: "unknown strand " + strandName}
			}
			closure, err := b.build(strand.Expr, "", map[ir.RefKey]bool{})
			if err != nil {
				return nil, err
			}
			unit.Exports[out.Bundle+"."+strandName] = closure
		}
	}
	return unit, nil
}

type builder struct {
	prog        *ir.Program
	swatch      *partition.Swatch
	descriptors []*analysis.CacheNodeDescriptor
	mgr         *cache.Manager
}

// build compiles expr into a Closure. ownCacheValue names the
// (bundle,strandIndex) key of a cache whose value expr is currently being
// built, so a self-reference resolves to the cache's pre-tick value rather
// than recursing into build() again.
func (b *builder) build(expr ir.Expr, ownCacheValue string, visiting map[ir.RefKey]bool) (Closure, error) {
	switch n := expr.(type) {
	case ir.Num:
		v := n.Value
		return func(Sample) (float64, error) { return v, nil }, nil
	case ir.Index:
		return b.buildIndex(n, ownCacheValue, visiting)
	case ir.BinaryOp:
		return b.buildBinary(n, ownCacheValue, visiting)
	case ir.UnaryOp:
		return b.buildUnary(n, ownCacheValue, visiting)
	case ir.Builtin:
		return b.buildBuiltin(n, ownCacheValue, visiting)
	case ir.Remap:
		applied := transform.ApplyRemap(n, transform.AudioCoords)
		return b.build(applied, ownCacheValue, visiting)
	case ir.CacheRead:
		return b.buildCacheReadResult(n)
	default:
		return nil, &wefterr.CompilationError{Backend: "audio", Msg: "unsupported expr kind reached audio codegen"}
	}
}

func (b *builder) buildIndex(idx ir.Index, ownCacheValue string, visiting map[ir.RefKey]bool) (Closure, error) {
	if idx.Bundle == "me" {
		return b.buildCoord(idx)
	}

	strand, err := b.resolveStrand(idx.Bundle, idx.Key())
	canonicalKey := idx.Bundle + "." + idx.Key()
	if err == nil {
		canonicalKey = idx.Bundle + "." + strconv.Itoa(strand.Index)
	}
	if canonicalKey == ownCacheValue {
		desc := b.descriptorForStrand(idx.Bundle, idx.Key())
		if desc == nil {
			return nil, &wefterr.CompilationError{Backend: "audio", Msg: "self-reference without a cache descriptor"}
		}
		return func(Sample) (float64, error) {
			if len(desc.scalarHistory()) == 0 {
				return 0, nil
			}
			return desc.scalarHistory()[0], nil
		}, nil
	}

	if !b.swatch.Bundles[idx.Bundle] {
		// cross-domain export slots are always keyed by the strand's
		// symbolic field name (see Compile's export loop above), so a
		// positional reference must resolve to that name first.
		if err != nil {
			return nil, err
		}
		slot := idx.Bundle + "." + strand.Name
		return func(Sample) (float64, error) { return b.mgr.ReadCrossDomain(slot), nil }, nil
	}

	refKey := ir.RefKey{Bundle: idx.Bundle, Key: idx.Key()}
	if visiting[refKey] {
		return nil, &wefterr.CompilationError{Backend: "audio", Msg: "circular same-swatch reference"}
	}
	if err != nil {
		return nil, err
	}
	nextVisiting := map[ir.RefKey]bool{refKey: true}
	for k := range visiting {
		nextVisiting[k] = true
	}
	return b.build(strand.Expr, ownCacheValue, nextVisiting)
}

func (b *builder) buildCoord(idx ir.Index) (Closure, error) {
	var name string
	if idx.Field != nil {
		name = *idx.Field
	} else if idx.PosIndex != nil {
		n, ok := transform.AudioCoords.NameOf(*idx.PosIndex)
		if !ok {
			return nil, &wefterr.CompilationError{Backend: "audio", Msg: "unresolvable me coordinate"}
		}
		name = n
	}
	switch name {
	case "i":
		return func(s Sample) (float64, error) { return float64(s.Index), nil }, nil
	case "t":
		return func(s Sample) (float64, error) { return s.Time, nil }, nil
	case "sampleRate":
		return func(s Sample) (float64, error) { return s.SampleRate, nil }, nil
	default:
		return nil, &wefterr.CompilationError{Backend: "audio", Msg: "unknown coordinate " + name}
	}
}

func (b *builder) buildBinary(n ir.BinaryOp, ownCacheValue string, visiting map[ir.RefKey]bool) (Closure, error) {
	left, err := b.build(n.Left, ownCacheValue, visiting)
	if err != nil {
		return nil, err
	}
	right, err := b.build(n.Right, ownCacheValue, visiting)
	if err != nil {
		return nil, err
	}
	op := n.Op
	return func(s Sample) (float64, error) {
		l, err := left(s)
		if err != nil {
			return 0, err
		}
		r, err := right(s)
		if err != nil {
			return 0, err
		}
		return applyBinary(op, l, r)
	}, nil
}

func applyBinary(op string, l, r float64) (float64, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		return l / r, nil
	case "%":
		return math.Mod(l, r), nil
	case "<":
		return boolToFloat(l < r), nil
	case "<=":
		return boolToFloat(l <= r), nil
	case ">":
		return boolToFloat(l > r), nil
	case ">=":
		return boolToFloat(l >= r), nil
	case "==":
		return boolToFloat(l == r), nil
	case "!=":
		return boolToFloat(l != r), nil
	case "&&":
		return boolToFloat(l != 0 && r != 0), nil
	case "||":
		return boolToFloat(l != 0 || r != 0), nil
	default:
		return 0, &wefterr.RuntimeError{Msg: "unknown binary operator " + op}
	}
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (b *builder) buildUnary(n ir.UnaryOp, ownCacheValue string, visiting map[ir.RefKey]bool) (Closure, error) {
	operand, err := b.build(n.Operand, ownCacheValue, visiting)
	if err != nil {
		return nil, err
	}
	op := n.Op
	return func(s Sample) (float64, error) {
		v, err := operand(s)
		if err != nil {
			return 0, err
		}
		switch op {
		case "-":
			return -v, nil
		case "!":
			return boolToFloat(v == 0), nil
		default:
			return 0, &wefterr.RuntimeError{Msg: "unknown unary operator " + op}
		}
	}, nil
}

func (b *builder) resolveStrand(bundle, key string) (ir.Strand, error) {
	bu, ok := b.prog.Bundles[bundle]
	if !ok {
		return ir.Strand{}, &wefterr.CompilationError{Backend: "audio", Bundle: bundle, Msg: "unknown bundle reference"}
	}
	s, ok := bu.Resolve(key)
	if !ok {
		return ir.Strand{}, &wefterr.CompilationError{Backend: "audio", Bundle: bundle, Msg: "unknown strand " + key}
	}
	return s, nil
}

func (b *builder) descriptorForStrand(bundle, key string) *scalarDescriptor {
	for _, d := range b.descriptors {
		if s, err := b.resolveStrand(bundle, key); err == nil && d.BundleName == bundle && d.StrandIndex == s.Index {
			return &scalarDescriptor{d, b.mgr}
		}
	}
	return nil
}

// scalarDescriptor pairs a descriptor with the manager so a closure can
// peek its current (pre-tick) scalar history without ticking it again.
type scalarDescriptor struct {
	*analysis.CacheNodeDescriptor
	mgr *cache.Manager
}

func (d *scalarDescriptor) scalarHistory() []float64 {
	return d.mgr.PeekScalarHistory(d.ID)
}

func (b *builder) buildCacheReadResult(n ir.CacheRead) (Closure, error) {
	id := n.CacheID
	return func(Sample) (float64, error) {
		v, ok := b.mgr.LastResult(id)
		if !ok {
			return 0, nil // producing bundle hasn't ticked yet this run
		}
		return v, nil
	}, nil
}

func (b *builder) buildBuiltin(n ir.Builtin, ownCacheValue string, visiting map[ir.RefKey]bool) (Closure, error) {
	if n.Name == "cache" && len(n.Args) == 4 {
		return b.buildCache(n, ownCacheValue, visiting)
	}
	if io, ok := intrinsicIO[n.Name]; ok {
		return func(s Sample) (float64, error) { return io(s), nil }, nil
	}
	args := make([]Closure, len(n.Args))
	for i, a := range n.Args {
		c, err := b.build(a, ownCacheValue, visiting)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	if n.Name == "select" && len(args) == 3 {
		cond, then, els := args[0], args[1], args[2]
		return func(s Sample) (float64, error) {
			c, err := cond(s)
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return then(s)
			}
			return els(s)
		}, nil
	}
	fn, ok := numericBuiltins[n.Name]
	if !ok {
		return nil, &wefterr.CompilationError{Backend: "audio", Msg: "unknown builtin " + n.Name}
	}
	return func(s Sample) (float64, error) {
		vals := make([]float64, len(args))
		for i, a := range args {
			v, err := a(s)
			if err != nil {
				return 0, err
			}
			vals[i] = v
		}
		return fn(vals)
	}, nil
}

func (b *builder) buildCache(n ir.Builtin, _ string, visiting map[ir.RefKey]bool) (Closure, error) {
	value, signal := n.Args[0], n.Args[3]
	var desc *analysis.CacheNodeDescriptor
	for _, d := range b.descriptors {
		if ir.Equal(d.ValueExpr, value) && ir.Equal(d.SignalExpr, signal) {
			desc = d
			break
		}
	}
	if desc == nil {
		return nil, &wefterr.CompilationError{Backend: "audio", Msg: "no cache descriptor matches this cache() call"}
	}

	ownKey := ""
	if desc.HasSelfReference {
		ownKey = desc.BundleName + "." + strconv.Itoa(desc.StrandIndex)
	}
	valueFn, err := b.build(value, ownKey, visiting)
	if err != nil {
		return nil, err
	}
	signalFn, err := b.build(signal, "", visiting)
	if err != nil {
		return nil, err
	}
	id := desc.ID
	tap := int(desc.TapIndex)
	mgr := b.mgr
	return func(s Sample) (float64, error) {
		v, err := valueFn(s)
		if err != nil {
			return 0, err
		}
		sig, err := signalFn(s)
		if err != nil {
			return 0, err
		}
		return mgr.TickScalar(id, tap, v, sig)
	}, nil
}
