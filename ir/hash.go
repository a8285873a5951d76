package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Hash returns a structural, deterministic, side-effect-free hash of e. Used
// by analysis's cache-descriptor CSE to group value/signal expressions that
// denote the same cache. Hash collisions are possible; callers that need
// certainty use Equal as a tiebreaker.
func Hash(e Expr) uint64 {
	var b strings.Builder
	canonicalize(e, &b)
	return xxhash.Sum64String(b.String())
}

// Equal reports whether a and b are structurally identical expressions.
func Equal(a, b Expr) bool {
	var ba, bb strings.Builder
	canonicalize(a, &ba)
	canonicalize(b, &bb)
	return ba.String() == bb.String()
}

// canonicalize writes a tagged, unambiguous textual encoding of e to b. Every
// variant prefixes its tag so two different variants can never collide even
// if their field encodings happen to match.
func canonicalize(e Expr, b *strings.Builder) {
	switch n := e.(type) {
	case Num:
		b.WriteString("N(")
		b.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
		b.WriteByte(')')
	case Param:
		b.WriteString("P(")
		b.WriteString(n.Name)
		b.WriteByte(')')
	case Index:
		b.WriteString("I(")
		b.WriteString(n.Bundle)
		b.WriteByte(',')
		b.WriteString(n.Key())
		b.WriteByte(')')
	case BinaryOp:
		b.WriteString("B(")
		b.WriteString(n.Op)
		b.WriteByte(',')
		canonicalize(n.Left, b)
		b.WriteByte(',')
		canonicalize(n.Right, b)
		b.WriteByte(')')
	case UnaryOp:
		b.WriteString("U(")
		b.WriteString(n.Op)
		b.WriteByte(',')
		canonicalize(n.Operand, b)
		b.WriteByte(')')
	case Builtin:
		b.WriteString("F(")
		b.WriteString(n.Name)
		for _, a := range n.Args {
			b.WriteByte(',')
			canonicalize(a, b)
		}
		b.WriteByte(')')
	case Call:
		b.WriteString("C(")
		b.WriteString(n.Spindle)
		for _, a := range n.Args {
			b.WriteByte(',')
			canonicalize(a, b)
		}
		b.WriteByte(')')
	case Extract:
		b.WriteString("E(")
		canonicalize(n.Call, b)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(n.Index))
		b.WriteByte(')')
	case Remap:
		b.WriteString("R(")
		canonicalize(n.Base, b)
		for _, k := range n.subKeys() {
			b.WriteByte(',')
			b.WriteString(k)
			b.WriteByte('=')
			canonicalize(n.Subs[k], b)
		}
		b.WriteByte(')')
	case CacheRead:
		b.WriteString("X(")
		b.WriteString(n.CacheID)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(n.TapIndex))
		b.WriteByte(')')
	default:
		panic(fmt.Sprintf("ir: canonicalize: unknown Expr variant %T", e))
	}
}
