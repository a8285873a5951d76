package analysis

import (
	"fmt"

	"github.com/leo-levin/weft/ir"
)

// CacheNodeDescriptor is the compile-time record of one cache builtin call
// site. ID is stable across repeated
// occurrences of a structurally identical (value, signal) pair within a
// single compile — see ExtractCacheDescriptors's CSE — so codegen and the
// runtime cache manager (C7) can agree on one buffer per logical cache.
type CacheNodeDescriptor struct {
	ID               string
	BundleName       string
	StrandIndex      int
	Backend          Backend
	Storage          string // "scalar" or "pixelAddressed"
	HistorySize      uint32
	TapIndex         uint32
	ValueExpr        ir.Expr
	SignalExpr       ir.Expr
	HasSelfReference bool
	HistoryBufferID  string
	SignalBufferID   string
}

// ExtractCacheDescriptors walks every strand of prog looking for "cache"
// builtin calls, allocating one CacheNodeDescriptor per structurally
// distinct (value, signal) pair (structural equality via ir.Equal, bucketed
// by ir.Hash — the CSE the runtime relies on not to double-allocate history
// buffers for an identical cache expression reached from two call sites).
// ownership supplies each bundle's backend, as decided by OwnerBackend over
// its HardwareSets; a bundle with Either is treated as Visual for
// storage-mode purposes, and no later pass changes that choice when the
// partitioner duplicates a pure bundle into an audio swatch.
func ExtractCacheDescriptors(prog *ir.Program, ownership map[string]Backend) []*CacheNodeDescriptor {
	var descriptors []*CacheNodeDescriptor
	buckets := map[uint64][]*CacheNodeDescriptor{}

	for name, b := range prog.Bundles {
		backend := ownership[name]
		if backend == Either {
			backend = Visual
		}
		for _, s := range b.Strands {
			ir.Walk(s.Expr, func(n ir.Expr) {
				node, ok := n.(ir.Builtin)
				if !ok || node.Name != "cache" || len(node.Args) != 4 {
					return
				}
				value, signal := node.Args[0], node.Args[3]
				key := ir.Hash(value) ^ ir.Hash(signal)<<1

				for _, d := range buckets[key] {
					if ir.Equal(d.ValueExpr, value) && ir.Equal(d.SignalExpr, signal) {
						return // reuse the existing descriptor: CSE hit
					}
				}

				histSize, _ := node.Args[1].(ir.Num)
				tap, _ := node.Args[2].(ir.Num)
				hasSelfRef := ir.FreeVars(value).Has(name, indexKeyFor(s.Index)) ||
					ir.FreeVars(value).Has(name, s.Name)

				storage := "pixelAddressed"
				if backend == Audio || (!usesSpatialCoord(value) && !usesSpatialCoord(signal)) {
					storage = "scalar"
				}

				id := fmt.Sprintf("cache%d", len(descriptors))
				d := &CacheNodeDescriptor{
					ID:               id,
					BundleName:       name,
					StrandIndex:      s.Index,
					Backend:          backend,
					Storage:          storage,
					HistorySize:      uint32(histSize.Value),
					TapIndex:         uint32(tap.Value),
					ValueExpr:        value,
					SignalExpr:       signal,
					HasSelfReference: hasSelfRef,
					HistoryBufferID:  id + "_history",
					SignalBufferID:   id + "_signal",
				}
				descriptors = append(descriptors, d)
				buckets[key] = append(buckets[key], d)
			})
		}
	}
	return descriptors
}

// usesSpatialCoord reports whether e references the visual backend's
// per-pixel coordinates ("me.x"/"me.y", by name or position), the signal
// that forces a cache into pixel-addressed storage rather than scalar.
func usesSpatialCoord(e ir.Expr) bool {
	for rk := range ir.FreeVars(e) {
		if rk.Bundle != "me" {
			continue
		}
		switch rk.Key {
		case "x", "y", "0", "1":
			return true
		}
	}
	return false
}

func indexKeyFor(i int) string {
	return (ir.Index{PosIndex: &i}).Key()
}
