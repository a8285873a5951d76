// Package wefterr defines the WEFT error taxonomy shared by every stage of
// the compile pipeline and by the coordinator. Each kind is a distinct Go
// type so callers can discriminate with errors.As instead of string
// matching.
package wefterr

import "fmt"

// ParseError reports an invalid IR JSON shape or an unknown expression tag.
type ParseError struct {
	Path string // JSON path where the problem was found, e.g. "bundles.display.strands[2].expr"
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse error: %s", e.Msg)
	}
	return fmt.Sprintf("parse error at %s: %s", e.Path, e.Msg)
}

// AnalysisError reports a non-cache cycle, an unknown bundle/spindle
// reference, or an unsupported spindle return index.
type AnalysisError struct {
	Bundle string
	Msg    string
}

func (e *AnalysisError) Error() string {
	if e.Bundle == "" {
		return fmt.Sprintf("analysis error: %s", e.Msg)
	}
	return fmt.Sprintf("analysis error in bundle %q: %s", e.Bundle, e.Msg)
}

// CompilationError reports an unsupported expression for the current
// backend, an exhausted circular-inlining depth guard, or an unknown
// builtin.
type CompilationError struct {
	Backend string
	Bundle  string
	Strand  string
	Msg     string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation error (%s) in %s.%s: %s", e.Backend, e.Bundle, e.Strand, e.Msg)
}

// ResourceError reports hardware unavailable at runtime (no GPU, no audio
// device).
type ResourceError struct {
	Hardware string
	Msg      string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource error (%s): %s", e.Hardware, e.Msg)
}

// RuntimeError reports a buffer-binding mismatch or an unreachable input
// provider encountered during a tick. Persistent marks whether the
// coordinator should stop the affected backend rather than merely drop the
// tick it occurred in.
type RuntimeError struct {
	Msg        string
	Persistent bool
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Msg)
}
