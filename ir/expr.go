// Package ir implements the WEFT intermediate representation: a recursive
// sum-typed expression tree, plus strands, bundles, spindles, and programs.
//
// Every Expr variant supports Children/WithChildren, the map_children
// primitive called out in the design notes: transformation passes pattern
// match on the variants they care about and otherwise recurse homomorphically
// through these two methods instead of re-deriving traversal per pass.
package ir

import "fmt"

// Expr is the recursive sum type at the center of the IR. Exactly the
// variants below satisfy it; there is no escape hatch for host packages to
// add their own.
type Expr interface {
	fmt.Stringer

	// Children returns the direct child expressions, in a stable order.
	Children() []Expr

	// WithChildren returns a copy of the receiver with its children
	// replaced, in the same order Children returned them. Panics if len
	// mismatches — a programming error in the caller.
	WithChildren(children []Expr) Expr

	isExpr()
}

// Num is a numeric literal.
type Num struct {
	Value float64
}

func (Num) isExpr()                { /* marker */ }
func (n Num) Children() []Expr     { return nil }
func (n Num) WithChildren(c []Expr) Expr {
	mustArity("Num", c, 0)
	return n
}
func (n Num) String() string { return fmt.Sprintf("%g", n.Value) }

// Param is a free variable resolved by the enclosing context: a coordinate
// (e.g. "x", "t") or a spindle parameter.
type Param struct {
	Name string
}

func (Param) isExpr()            { /* marker */ }
func (p Param) Children() []Expr { return nil }
func (p Param) WithChildren(c []Expr) Expr {
	mustArity("Param", c, 0)
	return p
}
func (p Param) String() string { return p.Name }

// Index references another bundle's strand. Bundle == "me" selects the
// ambient coordinate. Exactly one of PosIndex/Field is set: PosIndex for a
// positional reference, Field for a named one. This collapses the
// recursive "index expression" form into the concrete discriminated pair
// the external JSON schema already uses, since strand selection is
// structural, not evaluated.
type Index struct {
	Bundle   string
	PosIndex *int
	Field    *string
}

func (Index) isExpr()            { /* marker */ }
func (x Index) Children() []Expr { return nil }
func (x Index) WithChildren(c []Expr) Expr {
	mustArity("Index", c, 0)
	return x
}
func (x Index) String() string {
	if x.PosIndex != nil {
		return fmt.Sprintf("%s.%d", x.Bundle, *x.PosIndex)
	}
	if x.Field != nil {
		return fmt.Sprintf("%s.%s", x.Bundle, *x.Field)
	}
	return x.Bundle + ".?"
}

// Key returns the strand selector used for strand lookup: the decimal
// position for a positional reference, else the field name ("0", "x", ...).
// A Remap substitution key is "me." followed by this form ("me.x", "me.0").
func (x Index) Key() string {
	if x.PosIndex != nil {
		return fmt.Sprintf("%d", *x.PosIndex)
	}
	if x.Field != nil {
		return *x.Field
	}
	return ""
}

// BinaryOp is a two-operand operator application.
type BinaryOp struct {
	Op          string
	Left, Right Expr
}

func (BinaryOp) isExpr()             { /* marker */ }
func (b BinaryOp) Children() []Expr  { return []Expr{b.Left, b.Right} }
func (b BinaryOp) WithChildren(c []Expr) Expr {
	mustArity("BinaryOp", c, 2)
	b.Left, b.Right = c[0], c[1]
	return b
}
func (b BinaryOp) String() string { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }

// UnaryOp is a one-operand operator application.
type UnaryOp struct {
	Op      string
	Operand Expr
}

func (UnaryOp) isExpr()            { /* marker */ }
func (u UnaryOp) Children() []Expr { return []Expr{u.Operand} }
func (u UnaryOp) WithChildren(c []Expr) Expr {
	mustArity("UnaryOp", c, 1)
	u.Operand = c[0]
	return u
}
func (u UnaryOp) String() string { return fmt.Sprintf("(%s%s)", u.Op, u.Operand) }

// Builtin is a call into the closed builtin set.
type Builtin struct {
	Name string
	Args []Expr
}

func (Builtin) isExpr()            { /* marker */ }
func (b Builtin) Children() []Expr { return b.Args }
func (b Builtin) WithChildren(c []Expr) Expr {
	mustArity("Builtin", c, len(b.Args))
	b.Args = c
	return b
}
func (b Builtin) String() string { return fmt.Sprintf("%s%v", b.Name, b.Args) }

// Call is a pre-inlining spindle-call placeholder, eliminated by the
// transform stage (C2).
type Call struct {
	Spindle string
	Args    []Expr
}

func (Call) isExpr()            { /* marker */ }
func (c Call) Children() []Expr { return c.Args }
func (c Call) WithChildren(ch []Expr) Expr {
	mustArity("Call", ch, len(c.Args))
	c.Args = ch
	return c
}
func (c Call) String() string { return fmt.Sprintf("%s%v", c.Spindle, c.Args) }

// Extract pulls one result out of a (multi-return) spindle Call, eliminated
// alongside Call during inlining.
type Extract struct {
	Call  Expr
	Index int
}

func (Extract) isExpr()            { /* marker */ }
func (e Extract) Children() []Expr { return []Expr{e.Call} }
func (e Extract) WithChildren(c []Expr) Expr {
	mustArity("Extract", c, 1)
	e.Call = c[0]
	return e
}
func (e Extract) String() string { return fmt.Sprintf("%s[%d]", e.Call, e.Index) }

// Remap reindexes a base expression: Subs maps coordinate keys ("me.x",
// "me.t", positional "me.0", ...) to replacement expressions. Substitutions
// affect only Base's direct expression, never an other-bundle reference
// nested inside it.
type Remap struct {
	Base Expr
	Subs map[string]Expr
}

func (Remap) isExpr() { /* marker */ }

// subKeys returns Subs's keys in a stable (sorted) order, used everywhere
// Remap's children need a deterministic flattening.
func (r Remap) subKeys() []string {
	keys := make([]string, 0, len(r.Subs))
	for k := range r.Subs {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func (r Remap) Children() []Expr {
	keys := r.subKeys()
	children := make([]Expr, 0, 1+len(keys))
	children = append(children, r.Base)
	for _, k := range keys {
		children = append(children, r.Subs[k])
	}
	return children
}

func (r Remap) WithChildren(c []Expr) Expr {
	keys := r.subKeys()
	mustArity("Remap", c, 1+len(keys))
	r.Base = c[0]
	newSubs := make(map[string]Expr, len(keys))
	for i, k := range keys {
		newSubs[k] = c[1+i]
	}
	r.Subs = newSubs
	return r
}

func (r Remap) String() string { return fmt.Sprintf("%s(%v)", r.Base, r.Subs) }

// CacheRead is synthetic: inserted only by analysis to break a self-
// reference cycle, never present in source IR.
type CacheRead struct {
	CacheID  string
	TapIndex int
}

func (CacheRead) isExpr()            { /* marker */ }
func (c CacheRead) Children() []Expr { return nil }
func (c CacheRead) WithChildren(ch []Expr) Expr {
	mustArity("CacheRead", ch, 0)
	return c
}
func (c CacheRead) String() string { return fmt.Sprintf("cache_read(%s,%d)", c.CacheID, c.TapIndex) }

func mustArity(variant string, children []Expr, want int) {
	if len(children) != want {
		panic(fmt.Sprintf("ir: %s.WithChildren: want %d children, got %d", variant, want, len(children)))
	}
}

// sortStrings avoids importing "sort" in a dozen tiny call sites; insertion
// sort is fine, Remap substitution maps are never large.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
