package analysis

import (
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/wefterr"
)

// builtinHardware maps a builtin name to the hardware tag it requires, for
// the builtins whose presence pins a bundle to one backend via hardware-tag
// based ownership inference. Builtins absent from this table
// (arithmetic, select, cache, remap targets, …) impose no hardware
// requirement.
var builtinHardware = map[string]string{
	"camera":     "camera",
	"texture":    "gpu",
	"microphone": "microphone",
	"mouse":      "display",
	"key":        "display",
	"text":       "display",
}

// visualOwned and audioOwned are the hardware sets each backend can
// satisfy. A bundle whose hardware set is a subset of exactly one of these
// is owned by that backend; an empty hardware set means the bundle is pure
// and may be duplicated into either backend that consumes it.
var visualOwned = map[string]bool{"camera": true, "gpu": true, "display": true}
var audioOwned = map[string]bool{"microphone": true, "speaker": true}

// HardwareSets computes, for every bundle, the union of hardware tags
// required by its own strands plus every bundle it transitively depends on
// (via all, which includes cache-gated edges — a cached camera read still
// pins its reader to the visual backend).
func HardwareSets(prog *ir.Program, all Graph) map[string]map[string]bool {
	direct := map[string]map[string]bool{}
	for name, b := range prog.Bundles {
		hw := map[string]bool{}
		for _, s := range b.Strands {
			for builtin := range ir.BuiltinNames(s.Expr) {
				if tag, ok := builtinHardware[builtin]; ok {
					hw[tag] = true
				}
			}
		}
		direct[name] = hw
	}
	result := make(map[string]map[string]bool, len(prog.Bundles))
	for name := range prog.Bundles {
		result[name] = transitiveUnion(name, direct, all)
	}
	return result
}

func transitiveUnion(start string, direct map[string]map[string]bool, graph Graph) map[string]bool {
	visited := map[string]bool{}
	result := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		for tag := range direct[n] {
			result[tag] = true
		}
		for dep := range graph[n] {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}
	return result
}

// Backend names a codegen target.
type Backend string

const (
	Visual Backend = "visual"
	Audio  Backend = "audio"
	Either Backend = "" // pure: no hardware requirement, owner decided by partitioning
)

// OwnerBackend decides which backend a hardware set pins a bundle to. An
// empty set returns Either. A set covered by exactly one backend's owned
// tags returns that backend. Any other combination (tags split across both
// backends) is a malformed program; since HardwareSets follows cache-gated
// edges too, a cache between the two readers does not change this.
func OwnerBackend(hw map[string]bool) (Backend, error) {
	if len(hw) == 0 {
		return Either, nil
	}
	visual := subsetOf(hw, visualOwned)
	audio := subsetOf(hw, audioOwned)
	switch {
	case visual && !audio:
		return Visual, nil
	case audio && !visual:
		return Audio, nil
	default:
		return "", &wefterr.AnalysisError{Msg: "hardware requirements span both backends"}
	}
}

func subsetOf(set, of map[string]bool) bool {
	for tag := range set {
		if !of[tag] {
			return false
		}
	}
	return true
}
