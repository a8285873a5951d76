package analysis

import "github.com/leo-levin/weft/ir"

// Result bundles every analysis artifact produced over one program, in the
// order the compile pipeline needs them: the dependency graph first (it
// feeds ownership and cycle-breaking), then per-bundle classification and
// backend ownership, then cache descriptors, then the cycle-broken program
// that codegen actually consumes.
type Result struct {
	All         Graph
	Strict      Graph
	Order       []string
	Classes     map[string]Class
	Ownership   map[string]Backend
	Descriptors []*CacheNodeDescriptor
	Program     *ir.Program // prog with cyclic cache references rewritten to CacheRead
}

// Analyze runs the full C3 pass sequence over prog, which must already have
// had spindle inlining and the temporal-remap-to-cache rewrite applied:
// transform runs before analysis's cycle and cache-descriptor passes, since
// those need to see concrete cache builtins rather than temporal remaps.
func Analyze(prog *ir.Program) (*Result, error) {
	all, strict := BuildDependencyGraph(prog)

	order, err := TopoSort(strict)
	if err != nil {
		return nil, err
	}

	classes := make(map[string]Class, len(prog.Bundles))
	for name, b := range prog.Bundles {
		classes[name] = ClassifyBundle(b)
	}

	hardware := HardwareSets(prog, all)
	ownership := make(map[string]Backend, len(prog.Bundles))
	for name, hw := range hardware {
		backend, err := OwnerBackend(hw)
		if err != nil {
			return nil, err
		}
		ownership[name] = backend
	}

	descriptors := ExtractCacheDescriptors(prog, ownership)
	rewritten := RewriteCacheCycles(prog, all, descriptors)

	return &Result{
		All:         all,
		Strict:      strict,
		Order:       order,
		Classes:     classes,
		Ownership:   ownership,
		Descriptors: descriptors,
		Program:     rewritten,
	}, nil
}
