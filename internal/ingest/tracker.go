// Package ingest tracks repository ingestion progress from the backend event
// stream. The tracker is a small state machine: intermediate stage events
// update a fixed label/percent table, a terminal event latches the outcome,
// and everything after the first terminal event is ignored.
package ingest

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gitunderstand/gitunderstand-go/internal/client"
	"github.com/gitunderstand/gitunderstand-go/internal/sse"
)

// Stage is a pipeline stage reported by the backend.
type Stage string

const (
	StageParsing    Stage = "parsing"
	StageCloning    Stage = "cloning"
	StageAnalyzing  Stage = "analyzing"
	StageFormatting Stage = "formatting"
	StageStoring    Stage = "storing"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

type stageInfo struct {
	Label   string
	Percent int
}

// stages is the fixed progress table for intermediate pipeline stages.
var stages = map[Stage]stageInfo{
	StageParsing:    {Label: "Parsing repository URL", Percent: 10},
	StageCloning:    {Label: "Cloning repository", Percent: 25},
	StageAnalyzing:  {Label: "Analyzing files", Percent: 50},
	StageFormatting: {Label: "Formatting digest", Percent: 75},
	StageStoring:    {Label: "Saving digest", Percent: 90},
}

// StageTable returns the label and percent for an intermediate stage.
func StageTable(stage Stage) (label string, percent int, ok bool) {
	info, ok := stages[stage]
	return info.Label, info.Percent, ok
}

// Progress is the observable state of an ingestion run.
type Progress struct {
	Stage   Stage
	Label   string
	Percent int
	Detail  string
	Loading bool
}

// Tracker folds ingestion stream events into progress state. Safe for
// concurrent use; the stream reader goroutine applies events while other
// goroutines read snapshots.
type Tracker struct {
	mu       sync.Mutex
	progress Progress
	result   *client.IngestResult
	errMsg   string
	done     bool
	logger   *slog.Logger
}

// NewTracker returns a tracker for one ingestion run.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		progress: Progress{Loading: true},
		logger:   logger,
	}
}

// Apply folds one stream event into the tracker. Events arriving after the
// first terminal event are ignored and never reopen the loading state.
func (t *Tracker) Apply(ev sse.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}

	stage := Stage(ev.Type)
	switch stage {
	case StageComplete:
		var result client.IngestResult
		if err := ev.DecodePayload(&result); err != nil {
			t.logger.Warn("failed to decode completion payload",
				slog.String("error", err.Error()))
		} else {
			t.result = &result
		}
		t.progress = Progress{Stage: StageComplete, Label: "Complete", Percent: 100}
		t.done = true

	case StageError:
		msg := ev.StringField("error")
		if msg == "" {
			msg = ev.StringField("message")
		}
		if msg == "" {
			msg = "Ingestion failed"
		}
		t.errMsg = msg
		t.progress = Progress{
			Stage:   StageError,
			Label:   "Error",
			Percent: t.progress.Percent,
			Detail:  msg,
		}
		t.done = true

	default:
		info, ok := stages[stage]
		if !ok {
			// Unknown event types pass through silently so new backend
			// stages do not break older clients.
			return
		}
		detail := ev.StringField("message")
		if n, ok := ev.IntField("files_processed"); ok {
			detail = fmt.Sprintf("%d files processed", n)
		}
		t.progress = Progress{
			Stage:   stage,
			Label:   info.Label,
			Percent: info.Percent,
			Detail:  detail,
			Loading: true,
		}
	}
}

// Fail records a transport failure. Like a terminal event it ends loading
// and latches the tracker.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	t.errMsg = err.Error()
	t.progress = Progress{
		Stage:   StageError,
		Label:   "Error",
		Percent: t.progress.Percent,
		Detail:  t.errMsg,
	}
	t.done = true
}

// Consume applies every result from a stream until the channel closes.
func (t *Tracker) Consume(ch <-chan client.Result) {
	for res := range ch {
		if res.Err != nil {
			t.Fail(res.Err)
			continue
		}
		t.Apply(*res.Event)
	}
}

// Progress returns a snapshot of the current progress state.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Result returns the completion payload once the run finished successfully.
func (t *Tracker) Result() (*client.IngestResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.result != nil
}

// ErrMessage returns the surfaced error message, empty when none.
func (t *Tracker) ErrMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errMsg
}

// Done reports whether a terminal event or failure has been seen.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
