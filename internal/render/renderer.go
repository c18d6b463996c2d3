// Package render drives diagram rendering as a state machine: validate the
// source, auto-repair it once on a syntax error, render, and post-process
// the resulting SVG. A new source supersedes any attempt still in flight.
package render

import (
	"context"
	"errors"
)

// State is the engine's position in the render lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRepairing  State = "repairing"
	StateRendering  State = "rendering"
	StateRendered   State = "rendered"
	StateFailed     State = "failed"

	// StateFaulted is the isolating boundary around renderer faults. It is
	// distinct from StateFailed: the source of the fault is unknown, so
	// only a generic message and Reset are offered.
	StateFaulted State = "faulted"
)

// faultMessage is shown for renderer faults instead of internal detail.
const faultMessage = "Something went wrong while rendering the diagram."

// ErrNoCandidate is returned by Retry when the last failure produced no
// repaired candidate to try.
var ErrNoCandidate = errors.New("render: no repaired candidate")

// Options configures the rendering library for one attempt. The renderer
// holds process-wide state, so the engine passes these on every call rather
// than configuring once.
type Options struct {
	Theme         string
	SecurityLevel string
}

// Renderer validates and renders diagram text. Parse reports a syntax
// error without producing output; Render produces an SVG document.
type Renderer interface {
	Parse(ctx context.Context, source string, opts Options) error
	Render(ctx context.Context, id, source string, opts Options) (string, error)
}

// ZoomAttacher injects pan and zoom behavior into a rendered SVG document.
// Implementations are loaded on demand; see WithZoom.
type ZoomAttacher interface {
	Attach(svg string) (string, error)
}

// Snapshot is the externally visible engine state. Source always holds the
// text the caller supplied; a failed render never hides it.
type Snapshot struct {
	State  State
	Source string

	// SVG is the post-processed document, set in StateRendered. Repaired
	// reports that it came from an auto-repaired copy of Source.
	SVG      string
	Repaired bool

	// ErrMsg is set in StateFailed and StateFaulted. Candidate holds a
	// repaired text that still failed to parse, offered for manual Retry.
	ErrMsg    string
	Candidate string
}
