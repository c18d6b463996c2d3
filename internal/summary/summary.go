// Package summary tracks AI summary generation for an ingested digest.
package summary

import (
	"sync"

	"github.com/gitunderstand/gitunderstand-go/internal/client"
	"github.com/gitunderstand/gitunderstand-go/internal/sse"
)

// Type identifies which summary the backend generates.
type Type string

const (
	TypeArchitecture Type = "architecture"
	TypeCodeReview   Type = "code_review"
	TypeOnboarding   Type = "onboarding"
	TypeSecurity     Type = "security"
)

var labels = map[Type]string{
	TypeArchitecture: "Architecture Overview",
	TypeCodeReview:   "Code Review",
	TypeOnboarding:   "Onboarding Guide",
	TypeSecurity:     "Security Audit",
}

// Types lists all summary types in display order.
func Types() []Type {
	return []Type{TypeArchitecture, TypeCodeReview, TypeOnboarding, TypeSecurity}
}

// Valid reports whether t is a known summary type.
func (t Type) Valid() bool {
	_, ok := labels[t]
	return ok
}

// Label returns the display heading for the summary type.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// Quota is the remaining generation allowance reported by the backend.
type Quota struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// State is the observable summary generation state.
type State struct {
	Type    Type
	Label   string
	Caption string
	Content string
	Cached  bool
	Quota   *Quota
	Err     string
	Loading bool
}

// Tracker folds summary stream events into generation state. First terminal
// event wins; later events are ignored.
type Tracker struct {
	mu    sync.Mutex
	state State
	done  bool
}

// NewTracker returns a tracker for one summary generation run.
func NewTracker(typ Type) *Tracker {
	return &Tracker{
		state: State{
			Type:    typ,
			Label:   typ.Label(),
			Loading: true,
		},
	}
}

// Apply folds one stream event into the tracker.
func (t *Tracker) Apply(ev sse.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}

	switch ev.Type {
	case "generating":
		t.state.Caption = ev.StringField("message")

	case "complete":
		if typ := Type(ev.StringField("summary_type")); typ != "" {
			t.state.Type = typ
			t.state.Label = typ.Label()
		}
		t.state.Content = ev.StringField("content")
		t.state.Cached = ev.BoolField("cached")
		t.decodeQuota(ev)
		t.state.Caption = ""
		t.state.Loading = false
		t.done = true

	case "error":
		msg := ev.StringField("error")
		if msg == "" {
			msg = ev.StringField("message")
		}
		if msg == "" {
			msg = "Summary generation failed"
		}
		t.state.Err = msg
		t.state.Loading = false
		t.done = true
	}
}

func (t *Tracker) decodeQuota(ev sse.Event) {
	raw, ok := ev.Payload["quota"].(map[string]any)
	if !ok {
		return
	}
	quota := &Quota{}
	if f, ok := raw["remaining"].(float64); ok {
		quota.Remaining = int(f)
	}
	if f, ok := raw["limit"].(float64); ok {
		quota.Limit = int(f)
	}
	t.state.Quota = quota
}

// Fail records a transport failure, ending the run.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	t.state.Err = err.Error()
	t.state.Loading = false
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

// State returns a snapshot of the generation state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done reports whether a terminal event or failure has been seen.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
