// Package partition implements WEFT's partitioner (C4): grouping bundles
// into per-backend swatches, duplicating pure bundles into every consumer
// backend, and inferring the explicit buffer contracts a cross-domain
// reference becomes.
package partition

import (
	"sort"

	"github.com/leo-levin/weft/analysis"
	"github.com/leo-levin/weft/ir"
	"github.com/leo-levin/weft/wefterr"
)

// BufferRef names a cross-domain dependency: the strands of bundle Bundle,
// produced by the other backend's swatch, that this swatch reads (or, on
// an output list, that some other swatch reads from this one).
type BufferRef struct {
	Bundle  string
	Strands []string
}

// Swatch is one per-backend compilation unit.
type Swatch struct {
	ID             string
	BackendID      analysis.Backend
	Bundles        map[string]bool
	InputBuffers   []BufferRef
	OutputBuffers  []BufferRef
	IsSink         bool
	ExecutionOrder []string
}

// sinkBundle names the two hardcoded sink identities WEFT recognizes.
// Scope/probe outputs are a host-defined extension point and are not
// modeled as compiler-level sinks here.
var sinkBundle = map[string]analysis.Backend{
	"display": analysis.Visual,
	"play":    analysis.Audio,
}

// BuildSwatches partitions prog into one swatch per present sink bundle,
// walking each sink's dependency closure over all (the full dependency
// graph including cache-gated edges — a cache still needs its producer
// computed every tick, just without a same-tick ordering constraint).
// A bundle the walk crosses into a different backend becomes a cross-
// domain buffer contract instead of being pulled into the swatch; a pure
// (Either) bundle reached from more than one sink is duplicated into each.
func BuildSwatches(prog *ir.Program, res *analysis.Result) ([]*Swatch, error) {
	var swatches []*Swatch
	orderIndex := make(map[string]int, len(res.Order))
	for i, name := range res.Order {
		orderIndex[name] = i
	}

	for sinkName, backend := range sinkBundle {
		if _, ok := prog.Bundles[sinkName]; !ok {
			continue
		}
		sw := &Swatch{
			ID:        sinkName + "_swatch",
			BackendID: backend,
			Bundles:   map[string]bool{},
			IsSink:    true,
		}
		crossDomain := map[string]map[string]bool{} // otherBundle -> strand names
		visited := map[string]bool{}
		var walk func(name string)
		walk = func(name string) {
			if visited[name] {
				return
			}
			visited[name] = true
			b, ok := prog.Bundles[name]
			if !ok {
				return
			}
			effective := effectiveBackend(name, backend, res.Ownership)
			if effective != backend {
				strands := make(map[string]bool, len(b.Strands))
				for _, s := range b.Strands {
					strands[s.Name] = true
				}
				if crossDomain[name] == nil {
					crossDomain[name] = map[string]bool{}
				}
				for s := range strands {
					crossDomain[name][s] = true
				}
				return // the other backend's swatch owns name's own dependencies
			}
			sw.Bundles[name] = true
			for dep := range res.All[name] {
				walk(dep)
			}
		}
		walk(sinkName)

		for name := range crossDomain {
			strandSet := crossDomain[name]
			strands := make([]string, 0, len(strandSet))
			for s := range strandSet {
				strands = append(strands, s)
			}
			sort.Strings(strands)
			sw.InputBuffers = append(sw.InputBuffers, BufferRef{Bundle: name, Strands: strands})
		}
		sort.Slice(sw.InputBuffers, func(i, j int) bool { return sw.InputBuffers[i].Bundle < sw.InputBuffers[j].Bundle })

		order := make([]string, 0, len(sw.Bundles))
		for name := range sw.Bundles {
			order = append(order, name)
		}
		sort.Slice(order, func(i, j int) bool { return orderIndex[order[i]] < orderIndex[order[j]] })
		sw.ExecutionOrder = order

		swatches = append(swatches, sw)
	}

	if len(swatches) == 0 {
		return nil, &wefterr.AnalysisError{Msg: "no sink bundle (display or play) found"}
	}

	wireOutputBuffers(swatches)
	return swatches, nil
}

// effectiveBackend resolves a pure (Either) bundle to the walking swatch's
// own backend (it will be duplicated there), and returns a hardware-pinned
// bundle's actual owner otherwise.
func effectiveBackend(name string, walkingBackend analysis.Backend, ownership map[string]analysis.Backend) analysis.Backend {
	if fixed, ok := sinkBundle[name]; ok {
		return fixed // a sink's backend is fixed by identity, never inferred from hardware tags
	}
	if owner, ok := ownership[name]; ok && owner != analysis.Either {
		return owner
	}
	return walkingBackend
}

// wireOutputBuffers mirrors every swatch's InputBuffers onto the producing
// swatch's OutputBuffers, so each side of a cross-domain contract is
// visible from both swatches.
func wireOutputBuffers(swatches []*Swatch) {
	owner := map[string]*Swatch{}
	for _, sw := range swatches {
		for name := range sw.Bundles {
			owner[name] = sw
		}
	}
	for _, sw := range swatches {
		for _, in := range sw.InputBuffers {
			producer, ok := owner[in.Bundle]
			if !ok {
				continue
			}
			producer.OutputBuffers = append(producer.OutputBuffers, in)
		}
	}
	for _, sw := range swatches {
		sort.Slice(sw.OutputBuffers, func(i, j int) bool { return sw.OutputBuffers[i].Bundle < sw.OutputBuffers[j].Bundle })
	}
}

// OrderSwatches topologically orders swatches by inter-swatch buffer
// dependency: a swatch whose InputBuffers reference another
// swatch's bundles must be listed after it. With WEFT's fixed two-sink
// (display, play) shape this is rarely constraining — the coordinator runs
// them on independent schedules — but the ordering is still well defined
// for any future additional sink kind.
func OrderSwatches(swatches []*Swatch) ([]*Swatch, error) {
	owner := map[string]*Swatch{}
	for _, sw := range swatches {
		for name := range sw.Bundles {
			owner[name] = sw
		}
	}
	deps := map[string]map[string]bool{}
	for _, sw := range swatches {
		deps[sw.ID] = map[string]bool{}
		for _, in := range sw.InputBuffers {
			if producer, ok := owner[in.Bundle]; ok && producer.ID != sw.ID {
				deps[sw.ID][producer.ID] = true
			}
		}
	}

	byID := make(map[string]*Swatch, len(swatches))
	for _, sw := range swatches {
		byID[sw.ID] = sw
	}
	var order []string
	remaining := map[string]map[string]bool{}
	for id, d := range deps {
		remaining[id] = map[string]bool{}
		for dep := range d {
			remaining[id][dep] = true
		}
	}
	for len(order) < len(swatches) {
		progressed := false
		var ready []string
		for id, d := range remaining {
			if len(d) == 0 {
				ready = append(ready, id)
			}
		}
		sort.Strings(ready)
		for _, id := range ready {
			if _, ok := remaining[id]; !ok {
				continue
			}
			order = append(order, id)
			delete(remaining, id)
			progressed = true
		}
		for id := range remaining {
			for dep := range remaining[id] {
				if _, pending := remaining[dep]; !pending {
					delete(remaining[id], dep)
				}
			}
		}
		if !progressed {
			return nil, &wefterr.AnalysisError{Msg: "inter-swatch dependency cycle"}
		}
	}

	out := make([]*Swatch, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out, nil
}
