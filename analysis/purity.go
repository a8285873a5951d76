package analysis

import "github.com/leo-levin/weft/ir"

// Class is a strand's purity classification.
type Class int

const (
	Pure Class = iota
	Stateful
	External
)

func (c Class) String() string {
	switch c {
	case Pure:
		return "pure"
	case Stateful:
		return "stateful"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// externalBuiltins read live hardware input each tick; they can't be
// memoized or duplicated freely across backends the way a pure expression
// can.
var externalBuiltins = map[string]bool{
	"camera": true, "microphone": true, "mouse": true, "key": true, "text": true,
}

// ClassifyStrand assigns a strand's purity class: External if it reads a
// live-input builtin anywhere in its tree, else Stateful if it contains a
// cache builtin or CacheRead, else Pure.
func ClassifyStrand(s ir.Strand) Class {
	stateful := false
	external := false
	ir.Walk(s.Expr, func(e ir.Expr) {
		switch n := e.(type) {
		case ir.Builtin:
			if externalBuiltins[n.Name] {
				external = true
			}
			if n.Name == "cache" {
				stateful = true
			}
		case ir.CacheRead:
			stateful = true
		}
	})
	switch {
	case external:
		return External
	case stateful:
		return Stateful
	default:
		return Pure
	}
}

// ClassifyBundle classifies a bundle by the least-pure of its strands'
// classes (External dominates Stateful dominates Pure): a bundle is only as
// reusable as its least pure strand.
func ClassifyBundle(b *ir.Bundle) Class {
	worst := Pure
	for _, s := range b.Strands {
		if c := ClassifyStrand(s); c > worst {
			worst = c
		}
	}
	return worst
}
