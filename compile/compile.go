// Package compile wires C1 through C6 into a single host-facing pipeline
// entry point. It owns no goroutines and does no I/O; the coordinator
// package builds a running unit out of what this package returns.
package compile

import (
	"github.com/leo-levin/weft/analysis"
	"github.com/leo-levin/weft/cache"
	"github.com/leo-levin/weft/codegen/audio"
	"github.com/leo-levin/weft/codegen/visual"
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/partition"
	"github.com/leo-levin/weft/transform"
)

// Unit is the full compile result for one program: the cycle-broken IR,
// every cache descriptor, the swatch partition, a GPU kernel program per
// visual swatch, an audio closure tree per audio swatch, and a fresh Cache
// Manager sized for width x height sized to back every descriptor. The
// coordinator takes ownership of the Manager and ticks it at runtime;
// compile.Program only allocates it so descriptor IDs and buffer sizing
// are decided in exactly one place.
type Unit struct {
	Program     *ir.Program
	Descriptors []*analysis.CacheNodeDescriptor
	Swatches    []*partition.Swatch
	Visual      map[string]*VisualSwatch
	Audio       map[string]*audio.CompiledUnit
	Manager     *cache.Manager
}

// VisualSwatch pairs a kernel program with the plain-Go closures for its
// scalar-storage caches, which the coordinator CPU-ticks once per frame
// ahead of GPU dispatch.
type VisualSwatch struct {
	Kernel      *visual.KernelProgram
	ScalarTicks []*visual.ScalarCacheTick
}

// Program runs the full pipeline: inline spindle calls, rewrite temporal
// remaps to cache builtins, run analysis (dependency graph, purity,
// ownership, cache-descriptor extraction, cycle breaking), partition into
// swatches, then generate code for each swatch's backend.
//
// Analysis effectively runs twice: once, implicitly, inside the temporal
// rewrite's own stateful-base resolution (phase 1 resolves one level of
// bundle indirection directly off the IR, not off a analysis.Result), and
// once for real after transform, over the final post-inlining, post-rewrite
// IR shape partition and codegen both need.
func Program(prog *ir.Program, width, height int) (*Unit, error) {
	inlined, err := transform.InlineProgram(prog)
	if err != nil {
		return nil, err
	}
	rewritten := transform.RewriteTemporalRemapsToCache(inlined, transform.VisualCoords)

	result, err := analysis.Analyze(rewritten)
	if err != nil {
		return nil, err
	}

	swatches, err := partition.BuildSwatches(result.Program, result)
	if err != nil {
		return nil, err
	}

	mgr := cache.NewManager(result.Descriptors, width, height)

	unit := &Unit{
		Program:     result.Program,
		Descriptors: result.Descriptors,
		Swatches:    swatches,
		Visual:      map[string]*VisualSwatch{},
		Audio:       map[string]*audio.CompiledUnit{},
		Manager:     mgr,
	}

	for _, sw := range swatches {
		switch sw.BackendID {
		case analysis.Visual:
			kp, err := visual.Emit(result.Program, sw, result.Descriptors)
			if err != nil {
				return nil, err
			}
			ticks, err := visual.CompileScalarCacheTicks(result.Program, sw, result.Descriptors, mgr)
			if err != nil {
				return nil, err
			}
			unit.Visual[sw.ID] = &VisualSwatch{Kernel: kp, ScalarTicks: ticks}
		case analysis.Audio:
			cu, err := audio.Compile(result.Program, sw, result.Descriptors, mgr)
			if err != nil {
				return nil, err
			}
			unit.Audio[sw.ID] = cu
		}
	}

	return unit, nil
}
