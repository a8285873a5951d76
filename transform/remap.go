package transform

import (
	"strconv"
	"strings"

	"github.com/leo-levin/weft/ir"
)

// CoordTable gives the positional ordering of a backend's coordinate names,
// letting a Remap substitution key be written either by name ("me.x") or
// positionally ("me.0") against a per-domain index table.
type CoordTable []string

// NameOf returns the coordinate name bound to a positional index.
func (ct CoordTable) NameOf(pos int) (string, bool) {
	if pos < 0 || pos >= len(ct) {
		return "", false
	}
	return ct[pos], true
}

// VisualCoords is the visual backend's free+bound coordinate ordering.
var VisualCoords = CoordTable{"x", "y", "t", "w", "h"}

// AudioCoords is the audio backend's free+bound coordinate ordering.
var AudioCoords = CoordTable{"i", "t", "sampleRate"}

// coordName resolves a Remap substitution key ("me.x" or "me.0") to a bare
// coordinate name, using coords to interpret positional keys.
func coordName(key string, coords CoordTable) (string, bool) {
	rest, ok := strings.CutPrefix(key, "me.")
	if !ok {
		return "", false
	}
	if n, err := strconv.Atoi(rest); err == nil {
		return coords.NameOf(n)
	}
	return rest, true
}

// ApplyRemap substitutes only r.Base's own Index("me", ...) occurrences,
// wherever they occur inside Base's expression tree — other-bundle
// references inside Base are never expanded, so the substitution can never
// reach past them.
func ApplyRemap(r ir.Remap, coords CoordTable) ir.Expr {
	if inner, ok := r.Base.(ir.Remap); ok {
		r = composeRemap(r, inner, coords)
	}
	normalized := normalizeSubs(r.Subs, coords)
	return ir.Transform(r.Base, func(e ir.Expr) ir.Expr {
		return substituteCoord(e, normalized, coords)
	})
}

// composeRemap flattens Remap(Remap(base, inner), outerSubs) into a single
// Remap(base, composed): the outer substitutions are applied to each of the
// inner substitutions' replacement expressions (so a replacement that
// itself mentions "me.t" picks up the outer remap's meaning of "me.t"),
// and any outer key the inner doesn't already supply passes through as-is.
func composeRemap(outer ir.Remap, inner ir.Remap, coords CoordTable) ir.Remap {
	outerNorm := normalizeSubs(outer.Subs, coords)
	composed := make(map[string]ir.Expr, len(inner.Subs)+len(outer.Subs))
	for k, v := range inner.Subs {
		name, ok := coordName(k, coords)
		if !ok {
			continue
		}
		composed["me."+name] = ir.Transform(v, func(e ir.Expr) ir.Expr {
			return substituteCoord(e, outerNorm, coords)
		})
	}
	for k, v := range outer.Subs {
		name, ok := coordName(k, coords)
		if !ok {
			continue
		}
		canonicalKey := "me." + name
		if _, exists := composed[canonicalKey]; !exists {
			composed[canonicalKey] = v
		}
	}
	return ir.Remap{Base: inner.Base, Subs: composed}
}

// normalizeSubs rewrites a Subs map's keys to the canonical "me.<name>"
// form so lookups don't need to special-case positional keys.
func normalizeSubs(subs map[string]ir.Expr, coords CoordTable) map[string]ir.Expr {
	out := make(map[string]ir.Expr, len(subs))
	for k, v := range subs {
		if name, ok := coordName(k, coords); ok {
			out["me."+name] = v
		}
	}
	return out
}

// substituteCoord replaces e with its substitution if e is a "me"-bundle
// Index whose coordinate name appears in normalized; otherwise returns e
// unchanged. coords resolves a positional Index("me", 0) to its coordinate
// name so it matches a by-name substitution key.
func substituteCoord(e ir.Expr, normalized map[string]ir.Expr, coords CoordTable) ir.Expr {
	idx, ok := e.(ir.Index)
	if !ok || idx.Bundle != "me" {
		return e
	}
	var name string
	switch {
	case idx.Field != nil:
		name = *idx.Field
	case idx.PosIndex != nil:
		n, ok := coords.NameOf(*idx.PosIndex)
		if !ok {
			return e
		}
		name = n
	default:
		return e
	}
	if repl, ok := normalized["me."+name]; ok {
		return repl
	}
	return e
}
