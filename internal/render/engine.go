package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gitunderstand/gitunderstand-go/internal/mermaid"
)

// EngineOption configures an engine.
type EngineOption func(*Engine)

// WithOptions sets the renderer options passed on every attempt.
func WithOptions(opts Options) EngineOption {
	return func(e *Engine) {
		e.opts = opts
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLinkResolver routes repository links in rendered diagrams through
// resolve: every GitHub blob/tree link is replaced by resolve's result for
// the repository-relative path. Links it cannot resolve open in a new
// browsing context instead.
func WithLinkResolver(resolve func(repoPath string) string) EngineOption {
	return func(e *Engine) {
		e.resolve = resolve
	}
}

// WithZoom enables pan and zoom on rendered diagrams. The attacher is
// loaded lazily on the first render and a load failure disables the
// capability without failing the render.
func WithZoom(load func() (ZoomAttacher, error)) EngineOption {
	return func(e *Engine) {
		e.zoomLoad = load
	}
}

// Engine runs the render state machine. Each new source text starts a
// fresh attempt; an attempt writes its results back only while it is still
// the newest, so overlapping calls never clobber a newer diagram's state.
type Engine struct {
	renderer Renderer
	opts     Options
	logger   *slog.Logger
	resolve  func(string) string

	zoomLoad func() (ZoomAttacher, error)
	zoomOnce sync.Once
	zoom     ZoomAttacher

	mu      sync.Mutex
	attempt int
	snap    Snapshot
}

// NewEngine creates an engine around renderer. The engine starts idle; no
// rendering happens until SetSource.
func NewEngine(renderer Renderer, opts ...EngineOption) *Engine {
	e := &Engine{
		renderer: renderer,
		logger:   slog.Default(),
		snap:     Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSource starts an attempt for source and blocks until it reaches a
// terminal state or is superseded. Prior state is discarded even when the
// text is identical to the last attempt's. Callers wanting concurrency run
// it on their own goroutine; supersession keeps overlapping calls safe.
func (e *Engine) SetSource(ctx context.Context, source string) {
	e.mu.Lock()
	e.attempt++
	id := e.attempt
	e.snap = Snapshot{State: StateValidating, Source: source}
	e.mu.Unlock()

	e.run(ctx, id, source)
}

// Retry re-enters validation with the repaired candidate stored by the
// last failure. It is the only caller-initiated transition besides
// SetSource and Reset.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	if e.snap.State != StateFailed || e.snap.Candidate == "" {
		e.mu.Unlock()
		return ErrNoCandidate
	}
	candidate := e.snap.Candidate
	e.mu.Unlock()

	e.SetSource(ctx, candidate)
	return nil
}

// Reset returns the engine to idle, abandoning any attempt in flight.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempt++
	e.snap = Snapshot{State: StateIdle}
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// run is one attempt. Every write back goes through transition, which
// drops the write when a newer attempt has started.
func (e *Engine) run(ctx context.Context, id int, source string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("renderer fault",
				slog.Int("attempt", id),
				slog.Any("panic", r))
			e.transition(id, func(s *Snapshot) {
				s.State = StateFaulted
				s.ErrMsg = faultMessage
			})
		}
	}()

	parseErr := e.renderer.Parse(ctx, source, e.opts)
	if parseErr == nil {
		if !e.transition(id, func(s *Snapshot) { s.State = StateRendering }) {
			return
		}
		e.render(ctx, id, source, false)
		return
	}

	if !e.transition(id, func(s *Snapshot) { s.State = StateRepairing }) {
		return
	}

	// Repair gets one shot. If it changed nothing there is nothing left
	// to try; if its output still fails to parse, keep it as a candidate
	// for a manual retry instead of looping.
	repaired := mermaid.Repair(source)
	if repaired == source {
		e.transition(id, func(s *Snapshot) {
			s.State = StateFailed
			s.ErrMsg = parseErr.Error()
		})
		return
	}

	if !e.transition(id, func(s *Snapshot) { s.State = StateValidating }) {
		return
	}
	if err := e.renderer.Parse(ctx, repaired, e.opts); err != nil {
		e.transition(id, func(s *Snapshot) {
			s.State = StateFailed
			s.ErrMsg = parseErr.Error()
			s.Candidate = repaired
		})
		return
	}

	e.logger.Info("rendering auto-repaired diagram", slog.Int("attempt", id))
	if !e.transition(id, func(s *Snapshot) { s.State = StateRendering }) {
		return
	}
	e.render(ctx, id, repaired, true)
}

func (e *Engine) render(ctx context.Context, id int, text string, repaired bool) {
	svg, err := e.renderer.Render(ctx, fmt.Sprintf("diagram-%d", id), text, e.opts)
	if err != nil {
		e.transition(id, func(s *Snapshot) {
			s.State = StateFailed
			s.ErrMsg = err.Error()
		})
		return
	}

	svg = e.postProcess(svg)
	e.transition(id, func(s *Snapshot) {
		s.State = StateRendered
		s.SVG = svg
		s.Repaired = repaired
	})
}

func (e *Engine) postProcess(svg string) string {
	svg = RewriteLinks(svg, e.resolve)

	if e.zoomLoad != nil {
		e.zoomOnce.Do(func() {
			z, err := e.zoomLoad()
			if err != nil {
				e.logger.Warn("pan-zoom unavailable", slog.String("error", err.Error()))
				return
			}
			e.zoom = z
		})
		if e.zoom != nil {
			out, err := e.zoom.Attach(svg)
			if err != nil {
				e.logger.Warn("failed to attach pan-zoom", slog.String("error", err.Error()))
			} else {
				svg = out
			}
		}
	}
	return svg
}

func (e *Engine) transition(id int, mutate func(*Snapshot)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id != e.attempt {
		return false
	}
	mutate(&e.snap)
	return true
}
