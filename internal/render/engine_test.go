package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedRenderer fails, blocks, or panics per source text so tests can
// steer the engine through each path.
type scriptedRenderer struct {
	parseErrs  map[string]error
	renderErrs map[string]error
	svgFor     map[string]string
	gates      map[string]chan struct{}
	started    chan string
	panicOn    string

	mu        sync.Mutex
	renderIDs []string
}

func (f *scriptedRenderer) Parse(ctx context.Context, source string, _ Options) error {
	if f.started != nil {
		f.started <- source
	}
	if gate, ok := f.gates[source]; ok {
		<-gate
	}
	if source == f.panicOn {
		panic("renderer exploded")
	}
	return f.parseErrs[source]
}

func (f *scriptedRenderer) Render(ctx context.Context, id, source string, _ Options) (string, error) {
	f.mu.Lock()
	f.renderIDs = append(f.renderIDs, id)
	f.mu.Unlock()

	if err := f.renderErrs[source]; err != nil {
		return "", err
	}
	if svg, ok := f.svgFor[source]; ok {
		return svg, nil
	}
	return "<svg>" + source + "</svg>", nil
}

func (f *scriptedRenderer) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.renderIDs))
	copy(out, f.renderIDs)
	return out
}

func TestEngineRendersValidSource(t *testing.T) {
	source := "graph TD\n  A --> B"
	e := NewEngine(&scriptedRenderer{}, WithLogger(discardLogger()))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateRendered {
		t.Fatalf("state = %s, want %s (%s)", snap.State, StateRendered, snap.ErrMsg)
	}
	if snap.Source != source {
		t.Errorf("source = %q", snap.Source)
	}
	if !strings.Contains(snap.SVG, source) {
		t.Errorf("svg = %q", snap.SVG)
	}
	if snap.Repaired {
		t.Error("clean render marked repaired")
	}
	if snap.ErrMsg != "" || snap.Candidate != "" {
		t.Errorf("err = %q, candidate = %q", snap.ErrMsg, snap.Candidate)
	}
}

func TestEngineAutoRepair(t *testing.T) {
	source := `A -->| "yes" | B`
	repaired := `A -->|"yes"| B`
	r := &scriptedRenderer{
		parseErrs: map[string]error{source: errors.New("unexpected pipe")},
	}
	e := NewEngine(r, WithLogger(discardLogger()))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateRendered {
		t.Fatalf("state = %s, want %s (%s)", snap.State, StateRendered, snap.ErrMsg)
	}
	if !snap.Repaired {
		t.Error("auto-repaired render not marked repaired")
	}
	if !strings.Contains(snap.SVG, repaired) {
		t.Errorf("svg = %q, want repaired text %q", snap.SVG, repaired)
	}
	if snap.Source != source {
		t.Errorf("source = %q, want the original %q", snap.Source, source)
	}
}

func TestEngineRepairedStillInvalid(t *testing.T) {
	source := "%%{init: {\"theme\":\"dark\"}}%%\nnot a diagram"
	repaired := "not a diagram"
	r := &scriptedRenderer{
		parseErrs: map[string]error{
			source:   errors.New("no diagram type detected"),
			repaired: errors.New("still no diagram type"),
		},
	}
	e := NewEngine(r, WithLogger(discardLogger()))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want %s", snap.State, StateFailed)
	}
	if snap.ErrMsg != "no diagram type detected" {
		t.Errorf("err = %q, want the original parse error", snap.ErrMsg)
	}
	if snap.Candidate != repaired {
		t.Errorf("candidate = %q, want %q", snap.Candidate, repaired)
	}
	if got := r.ids(); len(got) != 0 {
		t.Errorf("render called for a failed parse: %v", got)
	}
}

func TestEngineNoCandidateWhenRepairChangesNothing(t *testing.T) {
	source := "graph TD\n  A --> B"
	r := &scriptedRenderer{
		parseErrs: map[string]error{source: errors.New("mysterious failure")},
	}
	e := NewEngine(r, WithLogger(discardLogger()))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want %s", snap.State, StateFailed)
	}
	if snap.Candidate != "" {
		t.Errorf("candidate = %q, want none", snap.Candidate)
	}
	if snap.ErrMsg != "mysterious failure" {
		t.Errorf("err = %q", snap.ErrMsg)
	}
}

func TestEngineRenderFailure(t *testing.T) {
	source := "graph TD\n  A --> B"
	r := &scriptedRenderer{
		renderErrs: map[string]error{source: errors.New("image load failed")},
	}
	e := NewEngine(r, WithLogger(discardLogger()))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want %s", snap.State, StateFailed)
	}
	if snap.ErrMsg != "image load failed" {
		t.Errorf("err = %q", snap.ErrMsg)
	}
	if snap.Candidate != "" {
		t.Errorf("render failure offered candidate %q", snap.Candidate)
	}
}

func TestEngineRetry(t *testing.T) {
	ctx := context.Background()
	source := "%%{init: {\"theme\":\"dark\"}}%%\nflowchart maybe"
	repaired := "flowchart maybe"
	r := &scriptedRenderer{
		parseErrs: map[string]error{
			source:   errors.New("bad directive"),
			repaired: errors.New("bad flowchart"),
		},
	}
	e := NewEngine(r, WithLogger(discardLogger()))

	e.SetSource(ctx, source)
	if snap := e.Snapshot(); snap.Candidate != repaired {
		t.Fatalf("candidate = %q, want %q", snap.Candidate, repaired)
	}

	// The user fixed the backend (here: the parser accepts the candidate
	// now) and hits retry.
	delete(r.parseErrs, repaired)
	if err := e.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	snap := e.Snapshot()
	if snap.State != StateRendered {
		t.Fatalf("state = %s, want %s (%s)", snap.State, StateRendered, snap.ErrMsg)
	}
	if snap.Source != repaired {
		t.Errorf("source = %q, want the candidate %q", snap.Source, repaired)
	}
	if snap.Repaired {
		t.Error("retry render marked repaired")
	}
}

func TestEngineRetryWithoutCandidate(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&scriptedRenderer{}, WithLogger(discardLogger()))

	if err := e.Retry(ctx); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("Retry on idle engine = %v, want ErrNoCandidate", err)
	}

	source := "graph TD\n  A --> B"
	r := &scriptedRenderer{
		parseErrs: map[string]error{source: errors.New("nope")},
	}
	e = NewEngine(r, WithLogger(discardLogger()))
	e.SetSource(ctx, source)

	if err := e.Retry(ctx); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("Retry without candidate = %v, want ErrNoCandidate", err)
	}
}

func TestEngineSupersession(t *testing.T) {
	ctx := context.Background()
	slow := "graph TD\n  Slow --> Path"
	fast := "graph LR\n  Fast --> Path"

	gate := make(chan struct{})
	r := &scriptedRenderer{
		gates:   map[string]chan struct{}{slow: gate},
		started: make(chan string, 2),
	}
	e := NewEngine(r, WithLogger(discardLogger()))

	done := make(chan struct{})
	go func() {
		e.SetSource(ctx, slow)
		close(done)
	}()
	if got := <-r.started; got != slow {
		t.Fatalf("first parse = %q", got)
	}

	// A newer source arrives while the first attempt is stuck parsing.
	e.SetSource(ctx, fast)

	close(gate)
	<-done

	snap := e.Snapshot()
	if snap.State != StateRendered {
		t.Fatalf("state = %s, want %s", snap.State, StateRendered)
	}
	if snap.Source != fast {
		t.Errorf("source = %q, want the newer %q", snap.Source, fast)
	}
	if !strings.Contains(snap.SVG, "Fast") {
		t.Errorf("svg = %q, want the newer diagram", snap.SVG)
	}
	if ids := r.ids(); len(ids) != 1 || ids[0] != "diagram-2" {
		t.Errorf("render IDs = %v, want just diagram-2", ids)
	}
}

func TestEngineRecoverBoundary(t *testing.T) {
	ctx := context.Background()
	source := "graph TD\n  A --> B"
	r := &scriptedRenderer{panicOn: source}
	e := NewEngine(r, WithLogger(discardLogger()))

	e.SetSource(ctx, source)

	snap := e.Snapshot()
	if snap.State != StateFaulted {
		t.Fatalf("state = %s, want %s", snap.State, StateFaulted)
	}
	if snap.ErrMsg != faultMessage {
		t.Errorf("err = %q, want the generic fault message", snap.ErrMsg)
	}

	// Reset is the only way out of a fault.
	e.Reset()
	if got := e.Snapshot().State; got != StateIdle {
		t.Fatalf("state after Reset = %s, want %s", got, StateIdle)
	}

	r.panicOn = ""
	e.SetSource(ctx, source)
	if got := e.Snapshot().State; got != StateRendered {
		t.Errorf("state after recovery = %s, want %s", got, StateRendered)
	}
}

func TestEngineLinkResolution(t *testing.T) {
	source := "graph TD\n  click A \"https://github.com/u/r/blob/main/src/app.py\""
	r := &scriptedRenderer{
		svgFor: map[string]string{
			source: `<svg><a xlink:href="https://github.com/u/r/blob/main/src/app.py">A</a>` +
				`<a href="https://example.com/docs">docs</a></svg>`,
		},
	}
	e := NewEngine(r,
		WithLogger(discardLogger()),
		WithLinkResolver(func(path string) string { return "/files/" + path }))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateRendered {
		t.Fatalf("state = %s (%s)", snap.State, snap.ErrMsg)
	}
	if !strings.Contains(snap.SVG, `xlink:href="/files/src/app.py"`) {
		t.Errorf("repository link not resolved: %q", snap.SVG)
	}
	if !strings.Contains(snap.SVG, `href="https://example.com/docs" target="_blank" rel="noopener noreferrer"`) {
		t.Errorf("external link not retargeted: %q", snap.SVG)
	}
}

type wrappingZoom struct{}

func (wrappingZoom) Attach(svg string) (string, error) {
	return `<div class="pan-zoom">` + svg + `</div>`, nil
}

func TestEngineZoomAttached(t *testing.T) {
	source := "graph TD\n  A --> B"
	e := NewEngine(&scriptedRenderer{},
		WithLogger(discardLogger()),
		WithZoom(func() (ZoomAttacher, error) { return wrappingZoom{}, nil }))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateRendered {
		t.Fatalf("state = %s (%s)", snap.State, snap.ErrMsg)
	}
	if !strings.HasPrefix(snap.SVG, `<div class="pan-zoom">`) {
		t.Errorf("svg not wrapped: %q", snap.SVG)
	}
}

func TestEngineZoomLoadFailureTolerated(t *testing.T) {
	source := "graph TD\n  A --> B"
	e := NewEngine(&scriptedRenderer{},
		WithLogger(discardLogger()),
		WithZoom(func() (ZoomAttacher, error) { return nil, errors.New("capability missing") }))

	e.SetSource(context.Background(), source)

	snap := e.Snapshot()
	if snap.State != StateRendered {
		t.Fatalf("state = %s (%s)", snap.State, snap.ErrMsg)
	}
	if !strings.Contains(snap.SVG, source) {
		t.Errorf("svg = %q", snap.SVG)
	}
}
