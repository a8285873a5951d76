package visual

import (
	"math"

	"github.com/leo-levin/weft/analysis"
	"github.com/leo-levin/weft/cache"
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/partition"
	"github.com/leo-levin/weft/wefterr"
)

// Frame is the per-tick uniform values a scalar-cache closure runs with.
// Scalar caches are CPU-ticked ahead of GPU dispatch; they're
// coordinate-free, so only the bound uniforms matter.
type Frame struct {
	Time, Width, Height float64
}

// scalarClosure evaluates one cache value or signal expression for a frame.
type scalarClosure func(f Frame) (float64, error)

// ScalarCacheTick is one visual scalar cache compiled to plain Go closures,
// ticked by the coordinator once per frame ahead of GPU dispatch.
type ScalarCacheTick struct {
	ID     string
	Tap    int
	value  scalarClosure
	signal scalarClosure
}

// Tick evaluates this cache's value/signal expressions for frame and
// advances mgr's scalar cache for ID.
func (t *ScalarCacheTick) Tick(mgr *cache.Manager, f Frame) (float64, error) {
	v, err := t.value(f)
	if err != nil {
		return 0, err
	}
	s, err := t.signal(f)
	if err != nil {
		return 0, err
	}
	return mgr.TickScalar(t.ID, t.Tap, v, s)
}

// CompileScalarCacheTicks compiles every scalar-storage cache descriptor
// belonging to sw into a ScalarCacheTick. Pixel-addressed caches are ticked
// inline by the generated kernel instead and are skipped here.
func CompileScalarCacheTicks(prog *ir.Program, sw *partition.Swatch, descriptors []*analysis.CacheNodeDescriptor, mgr *cache.Manager) ([]*ScalarCacheTick, error) {
	var out []*ScalarCacheTick
	for _, d := range descriptors {
		if d.Storage != "scalar" || !sw.Bundles[d.BundleName] {
			continue
		}
		b := &scalarBuilder{prog: prog, swatch: sw, descriptors: descriptors, mgr: mgr}
		ownKey := ""
		if d.HasSelfReference {
			ownKey = d.BundleName + "." + itoa(d.StrandIndex)
		}
		valueFn, err := b.build(d.ValueExpr, ownKey, map[ir.RefKey]bool{})
		if err != nil {
			return nil, err
		}
		signalFn, err := b.build(d.SignalExpr, "", map[ir.RefKey]bool{})
		if err != nil {
			return nil, err
		}
		out = append(out, &ScalarCacheTick{ID: d.ID, Tap: int(d.TapIndex), value: valueFn, signal: signalFn})
	}
	return out, nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

// scalarBuilder compiles a spatial-coordinate-free expression tree into
// Frame-evaluated closures, mirroring codegen/audio's builder in shape but
// over visual's bound coordinates (t, w, h) instead of audio's sample clock.
type scalarBuilder struct {
	prog        *ir.Program
	swatch      *partition.Swatch
	descriptors []*analysis.CacheNodeDescriptor
	mgr         *cache.Manager
}

func (b *scalarBuilder) build(expr ir.Expr, ownCacheValue string, visiting map[ir.RefKey]bool) (scalarClosure, error) {
	switch n := expr.(type) {
	case ir.Num:
		v := n.Value
		return func(Frame) (float64, error) { return v, nil }, nil
	case ir.Index:
		return b.buildIndex(n, ownCacheValue, visiting)
	case ir.BinaryOp:
		return b.buildBinary(n, ownCacheValue, visiting)
	case ir.UnaryOp:
		return b.buildUnary(n, ownCacheValue, visiting)
	case ir.Builtin:
		return b.buildBuiltin(n, ownCacheValue, visiting)
	case ir.CacheRead:
		id := n.CacheID
		return func(Frame) (float64, error) {
			v, _ := b.mgr.LastResult(id)
			return v, nil
		}, nil
	default:
		return nil, &wefterr.CompilationError{Backend: "visual", Msg: "unsupported expr kind reached scalar cache evaluator"}
	}
}

func (b *scalarBuilder) buildIndex(idx ir.Index, ownCacheValue string, visiting map[ir.RefKey]bool) (scalarClosure, error) {
	if idx.Bundle == "me" {
		name, ok := resolveCoordName(idx, nil)
		if !ok {
			return nil, &wefterr.CompilationError{Backend: "visual", Msg: "unresolvable me coordinate in scalar cache"}
		}
		switch name {
		case "t":
			return func(f Frame) (float64, error) { return f.Time, nil }, nil
		case "w":
			return func(f Frame) (float64, error) { return f.Width, nil }, nil
		case "h":
			return func(f Frame) (float64, error) { return f.Height, nil }, nil
		default:
			return nil, &wefterr.CompilationError{Backend: "visual", Msg: "scalar cache expression references a spatial coordinate"}
		}
	}

	strand, err := b.resolveStrand(idx.Bundle, idx.Key())
	canonicalKey := idx.Bundle + "." + idx.Key()
	if err == nil {
		canonicalKey = idx.Bundle + "." + itoa(strand.Index)
	}
	if canonicalKey == ownCacheValue {
		desc := b.descriptorForStrand(idx.Bundle, idx.Key())
		if desc == nil {
			return nil, &wefterr.CompilationError{Backend: "visual", Msg: "self-reference without a cache descriptor"}
		}
		id := desc.ID
		return func(Frame) (float64, error) {
			hist := b.mgr.PeekScalarHistory(id)
			if len(hist) == 0 {
				return 0, nil
			}
			return hist[0], nil
		}, nil
	}

	if !b.swatch.Bundles[idx.Bundle] {
		// cross-domain export slots are keyed by the strand's symbolic
		// field name, so a positional reference must resolve to it first.
		if err != nil {
			return nil, err
		}
		slot := idx.Bundle + "." + strand.Name
		return func(Frame) (float64, error) { return b.mgr.ReadCrossDomain(slot), nil }, nil
	}

	refKey := ir.RefKey{Bundle: idx.Bundle, Key: idx.Key()}
	if visiting[refKey] {
		return nil, &wefterr.CompilationError{Backend: "visual", Msg: "circular same-swatch reference in scalar cache"}
	}
	if err != nil {
		return nil, err
	}
	next := map[ir.RefKey]bool{refKey: true}
	for k := range visiting {
		next[k] = true
	}
	return b.build(strand.Expr, ownCacheValue, next)
}

func (b *scalarBuilder) resolveStrand(bundle, key string) (ir.Strand, error) {
	bu, ok := b.prog.Bundles[bundle]
	if !ok {
		return ir.Strand{}, &wefterr.CompilationError{Backend: "visual", Bundle: bundle, Msg: "unknown bundle reference"}
	}
	s, ok := bu.Resolve(key)
	if !ok {
		return ir.Strand{}, &wefterr.CompilationError{Backend: "visual", Bundle: bundle, Msg: "unknown strand " + key}
	}
	return s, nil
}

func (b *scalarBuilder) descriptorForStrand(bundle, key string) *analysis.CacheNodeDescriptor {
	for _, d := range b.descriptors {
		if s, err := b.resolveStrand(bundle, key); err == nil && d.BundleName == bundle && d.StrandIndex == s.Index {
			return d
		}
	}
	return nil
}

func (b *scalarBuilder) buildBinary(n ir.BinaryOp, ownCacheValue string, visiting map[ir.RefKey]bool) (scalarClosure, error) {
	left, err := b.build(n.Left, ownCacheValue, visiting)
	if err != nil {
		return nil, err
	}
	right, err := b.build(n.Right, ownCacheValue, visiting)
	if err != nil {
		return nil, err
	}
	op := n.Op
	return func(f Frame) (float64, error) {
		l, err := left(f)
		if err != nil {
			return 0, err
		}
		r, err := right(f)
		if err != nil {
			return 0, err
		}
		return applyScalarBinary(op, l, r)
	}, nil
}

func applyScalarBinary(op string, l, r float64) (float64, error) {
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

func (b *scalarBuilder) buildUnary(n ir.UnaryOp, ownCacheValue string, visiting map[ir.RefKey]bool) (scalarClosure, error) {
	operand, err := b.build(n.Operand, ownCacheValue, visiting)
	if err != nil {
		return nil, err
	}
	op := n.Op
	return func(f Frame) (float64, error) {
		v, err := operand(f)
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

func (b *scalarBuilder) buildBuiltin(n ir.Builtin, ownCacheValue string, visiting map[ir.RefKey]bool) (scalarClosure, error) {
	if n.Name == "cache" && len(n.Args) == 4 {
		return nil, &wefterr.CompilationError{Backend: "visual", Msg: "nested cache() inside a scalar cache expression is unsupported"}
	}
	if _, ok := scalarIntrinsicIO[n.Name]; ok {
		return func(Frame) (float64, error) { return 0, nil }, nil
	}
	args := make([]scalarClosure, len(n.Args))
	for i, a := range n.Args {
		c, err := b.build(a, ownCacheValue, visiting)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	if n.Name == "select" && len(args) == 3 {
		cond, then, els := args[0], args[1], args[2]
		return func(f Frame) (float64, error) {
			c, err := cond(f)
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return then(f)
			}
			return els(f)
		}, nil
	}
	fn, ok := scalarNumericBuiltins[n.Name]
	if !ok {
		return nil, &wefterr.CompilationError{Backend: "visual", Msg: "unknown builtin " + n.Name}
	}
	return func(f Frame) (float64, error) {
		vals := make([]float64, len(args))
		for i, a := range args {
			v, err := a(f)
			if err != nil {
				return 0, err
			}
			vals[i] = v
		}
		return fn(vals)
	}, nil
}

var scalarIntrinsicIO = map[string]bool{
	"microphone": true, "mouse": true, "key": true, "text": true, "camera": true,
}

var scalarNumericBuiltins = map[string]func([]float64) (float64, error){
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
	"lerp":  scalarLerp,
	"mix":   scalarLerp,
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
	"sign": func(a []float64) (float64, error) {
		switch {
		case a[0] > 0:
			return 1, nil
		case a[0] < 0:
			return -1, nil
		default:
			return 0, nil
		}
	},
	"noise": func(a []float64) (float64, error) {
		s := math.Sin(a[0]*12.9898) * 43758.5453
		return s - math.Floor(s), nil
	},
}

func scalarLerp(a []float64) (float64, error) {
	return a[0] + (a[1]-a[0])*a[2], nil
}
