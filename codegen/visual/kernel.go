// Package visual implements WEFT's visual code generator (C5): emission of
// a backend-neutral pseudo-GLSL compute kernel from a visual swatch's IR,
// shaped like the wgpu/naga bind-group-plus-shader-module split without
// depending on either (the concrete GPU dispatch mechanism stays external,
// owned by the host).
package visual

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leo-levin/weft/analysis"
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/partition"
	"github.com/leo-levin/weft/transform"
	"github.com/leo-levin/weft/wefterr"
)

// maxInlineDepth guards recursive same-swatch strand expansion against a
// malformed or pathologically deep program.
const maxInlineDepth = 512

// heavyNodeThreshold is the node-count proxy for "this bundle's strand was
// expensive enough (originally a spindle call) to materialize into an
// intermediate texture rather than re-inline at every remapped sample
// site" — see DESIGN.md for why a node-count heuristic stands in for
// "contains a spindle call" (spindle calls no longer exist in the IR by
// the time codegen runs; they were eliminated by transform.InlineProgram).
const heavyNodeThreshold = 6

// BufferBinding is one GPU-visible binding a kernel reads or writes:
// a cross-domain input slot, a cache's history/signal buffer, or an
// intermediate texture produced by a prior kernel in the chain.
type BufferBinding struct {
	Name string
	Kind string // "cross_domain", "cache_history", "cache_signal", "intermediate_texture"
}

// IntermediateKernel is one heavy-remap materialization pass: it writes a
// single-channel texture that a later kernel (an intermediate or the
// display kernel) samples.
type IntermediateKernel struct {
	Name string
	Body string
}

// KernelProgram is C5's full emission result for one visual swatch:
// the display kernel's body plus every intermediate it depends on, its
// uniform list, and its buffer bindings.
type KernelProgram struct {
	Name          string
	Uniforms      []string
	Buffers       []BufferBinding
	Intermediates []IntermediateKernel
	Body          string
}

// Emit generates a KernelProgram for sw, a visual swatch from partition.
// prog must be the cycle-broken program (analysis.Result.Program): its
// cross-bundle cache self-references have already been rewritten to
// CacheRead nodes.
func Emit(prog *ir.Program, sw *partition.Swatch, descriptors []*analysis.CacheNodeDescriptor) (*KernelProgram, error) {
	if _, ok := prog.Bundles["display"]; !ok {
		return nil, &wefterr.CompilationError{Backend: "visual", Msg: "no display bundle in program"}
	}
	e := &emitter{
		prog:        prog,
		swatch:      sw,
		descriptors: descriptors,
		emitted:     map[string]bool{},
		visiting:    map[ir.RefKey]bool{},
		intermByKey: map[string]int{},
	}

	display := prog.Bundles["display"]
	var lines []string
	for _, s := range display.Strands {
		expr, err := e.emitExpr(s.Expr, "", 0)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("out.%s = %s;", s.Name, expr))
	}

	body := strings.Join(append(e.preamble, lines...), "\n")

	uniforms := []string{"time", "width", "height"}
	var buffers []BufferBinding
	for _, in := range sw.InputBuffers {
		for _, strand := range in.Strands {
			buffers = append(buffers, BufferBinding{
				Name: crossDomainName(in.Bundle, strand), Kind: "cross_domain",
			})
		}
	}
	for _, d := range descriptors {
		if !e.emitted[d.ID] {
			continue
		}
		buffers = append(buffers, BufferBinding{Name: d.HistoryBufferID, Kind: "cache_history"})
		buffers = append(buffers, BufferBinding{Name: d.SignalBufferID, Kind: "cache_signal"})
	}

	return &KernelProgram{
		Name:          sw.ID,
		Uniforms:      uniforms,
		Buffers:       buffers,
		Intermediates: e.intermediates,
		Body:          body,
	}, nil
}

type emitter struct {
	prog        *ir.Program
	swatch      *partition.Swatch
	descriptors []*analysis.CacheNodeDescriptor
	emitted     map[string]bool // descriptor ids already given a tick preamble
	preamble    []string

	intermediates []IntermediateKernel
	intermByKey   map[string]int // "bundle.strand" -> index into intermediates

	visiting map[ir.RefKey]bool // cycle guard for same-swatch inlining
}

// ownCacheValue, when non-empty, names the (bundle,strandKey) of the cache
// value-expr currently being emitted — so a self-reference inside it reads
// history[slot 0] directly instead of the ticked result.
func (e *emitter) emitExpr(expr ir.Expr, ownCacheValue string, depth int) (string, error) {
	if depth > maxInlineDepth {
		return "", &wefterr.CompilationError{Backend: "visual", Msg: "recursion depth exceeded inlining same-swatch references"}
	}
	switch n := expr.(type) {
	case ir.Num:
		return strconv.FormatFloat(n.Value, 'g', -1, 64), nil
	case ir.Param:
		return n.Name, nil
	case ir.Index:
		return e.emitIndex(n, ownCacheValue, depth)
	case ir.BinaryOp:
		l, err := e.emitExpr(n.Left, ownCacheValue, depth)
		if err != nil {
			return "", err
		}
		r, err := e.emitExpr(n.Right, ownCacheValue, depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", l, n.Op, r), nil
	case ir.UnaryOp:
		operand, err := e.emitExpr(n.Operand, ownCacheValue, depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s%s)", n.Op, operand), nil
	case ir.Builtin:
		return e.emitBuiltin(n, ownCacheValue, depth)
	case ir.Remap:
		return e.emitRemap(n, ownCacheValue, depth)
	case ir.CacheRead:
		return fmt.Sprintf("cache%s_result", stripCachePrefix(n.CacheID)), nil
	default:
		return "", &wefterr.CompilationError{Backend: "visual", Msg: fmt.Sprintf("unsupported expr kind %T reached visual codegen", expr)}
	}
}

func stripCachePrefix(id string) string {
	return strings.TrimPrefix(id, "cache")
}

// emitIndex inlines a same-swatch reference by recursively expanding the
// referenced strand (with a visiting-set cycle guard), resolves a "me"
// reference to its coordinate name, and resolves an out-of-swatch
// reference to its cross-domain buffer slot.
func (e *emitter) emitIndex(idx ir.Index, ownCacheValue string, depth int) (string, error) {
	if idx.Bundle == "me" {
		name, ok := resolveCoordName(idx, transform.VisualCoords)
		if !ok {
			return "", &wefterr.CompilationError{Backend: "visual", Msg: "unresolvable me coordinate"}
		}
		return name, nil
	}

	key := idx.Bundle + "." + idx.Key()
	canonicalKey := key
	if strand, err := e.resolveStrand(idx.Bundle, idx.Key()); err == nil {
		canonicalKey = idx.Bundle + "." + strconv.Itoa(strand.Index)
	}
	if canonicalKey == ownCacheValue {
		// the cache's own strand, referenced from inside its own value
		// expr: read the pre-shift history slot, never the ticked result.
		desc := e.descriptorForStrand(idx.Bundle, idx.Key())
		if desc == nil {
			return "", &wefterr.CompilationError{Backend: "visual", Msg: "self-reference without a cache descriptor: " + key}
		}
		return fmt.Sprintf("%s[pixel*%d+0]", desc.HistoryBufferID, desc.HistorySize), nil
	}

	if !e.swatch.Bundles[idx.Bundle] {
		// a cross-domain buffer is named after the strand's symbolic field
		// name (partition.BufferRef.Strands holds strand.Name values), so a
		// positional reference ("other.0") must resolve to that name too —
		// otherwise this would emit cross_other_0 while the buffer binding
		// list names it cross_other_r.
		strand, err := e.resolveStrand(idx.Bundle, idx.Key())
		if err != nil {
			return "", err
		}
		return crossDomainName(idx.Bundle, strand.Name), nil
	}

	refKey := ir.RefKey{Bundle: idx.Bundle, Key: idx.Key()}
	if e.visiting[refKey] {
		return "", &wefterr.CompilationError{Backend: "visual", Msg: "circular same-swatch reference at " + key}
	}
	strand, err := e.resolveStrand(idx.Bundle, idx.Key())
	if err != nil {
		return "", err
	}
	e.visiting[refKey] = true
	defer delete(e.visiting, refKey)
	return e.emitExpr(strand.Expr, ownCacheValue, depth+1)
}

func (e *emitter) resolveStrand(bundle, key string) (ir.Strand, error) {
	b, ok := e.prog.Bundles[bundle]
	if !ok {
		return ir.Strand{}, &wefterr.CompilationError{Backend: "visual", Bundle: bundle, Msg: "unknown bundle reference"}
	}
	s, ok := b.Resolve(key)
	if !ok {
		return ir.Strand{}, &wefterr.CompilationError{Backend: "visual", Bundle: bundle, Msg: "unknown strand " + key}
	}
	return s, nil
}

func (e *emitter) descriptorForStrand(bundle, key string) *analysis.CacheNodeDescriptor {
	for _, d := range e.descriptors {
		if d.BundleName == bundle && strconv.Itoa(d.StrandIndex) == key {
			return d
		}
		if s, err := e.resolveStrand(bundle, key); err == nil && d.BundleName == bundle && d.StrandIndex == s.Index {
			return d
		}
	}
	return nil
}

// emitBuiltin handles the "cache" builtin's tick-preamble emission
// specially; every other builtin lowers to a plain function call.
func (e *emitter) emitBuiltin(b ir.Builtin, ownCacheValue string, depth int) (string, error) {
	if b.Name == "cache" && len(b.Args) == 4 {
		return e.emitCache(b, depth)
	}
	if io, ok := intrinsicIO[b.Name]; ok {
		return io, nil
	}
	args := make([]string, len(b.Args))
	for i, a := range b.Args {
		s, err := e.emitExpr(a, ownCacheValue, depth)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	if b.Name == "select" && len(args) == 3 {
		return fmt.Sprintf("(%s ? %s : %s)", args[0], args[1], args[2]), nil
	}
	return fmt.Sprintf("%s(%s)", b.Name, strings.Join(args, ", ")), nil
}

// intrinsicIO gives a placeholder read expression for hardware-input
// builtins; the concrete texture/device binding is left to the host.
var intrinsicIO = map[string]string{
	"camera":     "read_camera(pixel)",
	"microphone": "read_microphone()",
	"mouse":      "read_mouse()",
	"key":        "read_key()",
	"text":       "read_text()",
}

func (e *emitter) emitCache(b ir.Builtin, depth int) (string, error) {
	value, histNum, tapNum, signal := b.Args[0], b.Args[1], b.Args[2], b.Args[3]
	desc := e.matchDescriptor(value, signal)
	if desc == nil {
		return "", &wefterr.CompilationError{Backend: "visual", Msg: "no cache descriptor matches this cache() call"}
	}
	if e.emitted[desc.ID] {
		return fmt.Sprintf("cache%s_result", stripCachePrefix(desc.ID)), nil
	}
	e.emitted[desc.ID] = true

	ownKey := ""
	if desc.HasSelfReference {
		ownKey = desc.BundleName + "." + strconv.Itoa(desc.StrandIndex)
	}

	valueSrc, err := e.emitExpr(value, ownKey, depth+1)
	if err != nil {
		return "", err
	}
	signalSrc, err := e.emitExpr(signal, "", depth+1)
	if err != nil {
		return "", err
	}
	_ = histNum
	_ = tapNum

	suffix := stripCachePrefix(desc.ID)
	e.preamble = append(e.preamble, fmt.Sprintf(
		"float cache%s_value = %s;\n"+
			"float cache%s_signal = %s;\n"+
			"if (isnan(%s[pixel]) || %s[pixel] != cache%s_signal) {\n"+
			"  for (int slot = %d; slot > 0; slot--) { %s[pixel*%d+slot] = %s[pixel*%d+slot-1]; }\n"+
			"  %s[pixel*%d+0] = cache%s_value;\n"+
			"  %s[pixel] = cache%s_signal;\n"+
			"}\n"+
			"float cache%s_result = %s[pixel*%d+%d];",
		suffix, valueSrc,
		suffix, signalSrc,
		desc.SignalBufferID, desc.SignalBufferID, suffix,
		int(desc.HistorySize)-1, desc.HistoryBufferID, desc.HistorySize, desc.HistoryBufferID, desc.HistorySize,
		desc.HistoryBufferID, desc.HistorySize, suffix,
		desc.SignalBufferID, suffix,
		suffix, desc.HistoryBufferID, desc.HistorySize, clampTap(desc),
	))
	return fmt.Sprintf("cache%s_result", suffix), nil
}

func clampTap(d *analysis.CacheNodeDescriptor) int {
	tap := int(d.TapIndex)
	if tap > int(d.HistorySize)-1 {
		return int(d.HistorySize) - 1
	}
	return tap
}

func (e *emitter) matchDescriptor(value, signal ir.Expr) *analysis.CacheNodeDescriptor {
	for _, d := range e.descriptors {
		if ir.Equal(d.ValueExpr, value) && ir.Equal(d.SignalExpr, signal) {
			return d
		}
	}
	return nil
}

// emitRemap applies a coordinate substitution inline, unless the remap is
// heavy, in which case it is materialized into (or reused from) an
// intermediate kernel and read back via a texture sample.
func (e *emitter) emitRemap(r ir.Remap, ownCacheValue string, depth int) (string, error) {
	if heavy, base, key := e.heavyRemapTarget(r); heavy {
		idx := e.materializeIntermediate(base, key)
		coordArgs, err := e.emitRemapCoords(r, depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("sample(intermediate_%d, %s)", idx, coordArgs), nil
	}
	applied := transform.ApplyRemap(r, transform.VisualCoords)
	return e.emitExpr(applied, ownCacheValue, depth+1)
}

// heavyRemapTarget reports whether r.Base is a reference into another
// bundle's strand whose resolved expression exceeds heavyNodeThreshold
// nodes — the proxy for "originally a spindle call" (see DESIGN.md).
func (e *emitter) heavyRemapTarget(r ir.Remap) (bool, ir.Expr, string) {
	idx, ok := r.Base.(ir.Index)
	if !ok || idx.Bundle == "me" {
		return false, nil, ""
	}
	strand, err := e.resolveStrand(idx.Bundle, idx.Key())
	if err != nil {
		return false, nil, ""
	}
	if countNodes(strand.Expr) <= heavyNodeThreshold {
		return false, nil, ""
	}
	return true, strand.Expr, idx.Bundle + "." + idx.Key()
}

func (e *emitter) materializeIntermediate(base ir.Expr, key string) int {
	if idx, ok := e.intermByKey[key]; ok {
		return idx
	}
	body, err := e.emitExpr(base, "", 0)
	if err != nil {
		body = "/* materialization error: " + err.Error() + " */"
	}
	idx := len(e.intermediates)
	e.intermediates = append(e.intermediates, IntermediateKernel{
		Name: fmt.Sprintf("intermediate_%d", idx),
		Body: fmt.Sprintf("out = %s;", body),
	})
	e.intermByKey[key] = idx
	return idx
}

func (e *emitter) emitRemapCoords(r ir.Remap, depth int) (string, error) {
	normalized := map[string]ir.Expr{}
	for k, v := range r.Subs {
		normalized[k] = v
	}
	var parts []string
	for _, name := range transform.VisualCoords {
		key := "me." + name
		if repl, ok := normalized[key]; ok {
			s, err := e.emitExpr(repl, "", depth+1)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", "), nil
}

func countNodes(e ir.Expr) int {
	count := 0
	ir.Walk(e, func(ir.Expr) { count++ })
	return count
}

func resolveCoordName(idx ir.Index, coords transform.CoordTable) (string, bool) {
	if idx.Field != nil {
		return *idx.Field, true
	}
	if idx.PosIndex != nil {
		return coords.NameOf(*idx.PosIndex)
	}
	return "", false
}

func crossDomainName(bundle, strand string) string {
	return "cross_" + bundle + "_" + strand
}
