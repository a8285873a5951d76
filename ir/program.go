package ir

import "github.com/leo-levin/weft/wefterr"

// Strand is one output channel of a bundle. Index is a dense 0-based
// ordering within the bundle; Name is the symbolic identifier (e.g. "r",
// "g", "b"). A strand is identified globally by (bundle, index) and,
// equivalently, (bundle, name).
type Strand struct {
	Name  string
	Index int
	Expr  Expr
}

// Bundle is a named computational unit producing one or more strands.
type Bundle struct {
	Name    string
	Strands []Strand
}

// ByName looks up a strand within the bundle by its symbolic name.
func (b *Bundle) ByName(name string) (Strand, bool) {
	for _, s := range b.Strands {
		if s.Name == name {
			return s, true
		}
	}
	return Strand{}, false
}

// ByIndex looks up a strand within the bundle by its positional index.
func (b *Bundle) ByIndex(index int) (Strand, bool) {
	for _, s := range b.Strands {
		if s.Index == index {
			return s, true
		}
	}
	return Strand{}, false
}

// Resolve looks a strand up by the string key produced by Index.Key: either
// a decimal positional index or a symbolic field name.
func (b *Bundle) Resolve(key string) (Strand, bool) {
	if idx, ok := parseNonNegativeInt(key); ok {
		if s, found := b.ByIndex(idx); found {
			return s, true
		}
	}
	return b.ByName(key)
}

func parseNonNegativeInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// Spindle is a reusable parameterized expression template, inlined at call
// sites by the transform stage. Locals are inlined in definition order;
// later locals may reference earlier ones.
type Spindle struct {
	Name    string
	Params  []string
	Locals  []Bundle
	Returns []Expr
}

// LocalByName finds a local bundle by name.
func (s *Spindle) LocalByName(name string) (*Bundle, bool) {
	for i := range s.Locals {
		if s.Locals[i].Name == name {
			return &s.Locals[i], true
		}
	}
	return nil, false
}

// OrderEntry names one bundle (and optionally a strand subset) in a
// program's declared evaluation order.
type OrderEntry struct {
	Bundle  string
	Strands []string
}

// Program is the top-level IR unit: a name-keyed mapping of bundles, a
// name-keyed mapping of spindles, a declared order, and opaque resources.
type Program struct {
	Bundles  map[string]*Bundle
	Spindles map[string]*Spindle
	Order    []OrderEntry
	Resources []interface{}
}

// Bundle looks a bundle up by name, returning a typed AnalysisError if it
// does not exist.
func (p *Program) Bundle(name string) (*Bundle, error) {
	b, ok := p.Bundles[name]
	if !ok {
		return nil, &wefterr.AnalysisError{Bundle: name, Msg: "unknown bundle reference"}
	}
	return b, nil
}

// Spindle looks a spindle up by name.
func (p *Program) Spindle(name string) (*Spindle, error) {
	s, ok := p.Spindles[name]
	if !ok {
		return nil, &wefterr.AnalysisError{Msg: "unknown spindle reference: " + name}
	}
	return s, nil
}
