// Package chat maintains the conversation state for an ingested repository:
// an ordered message list, a busy flag while a response streams, and
// best-effort history persistence keyed by digest ID.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gitunderstand/gitunderstand-go/internal/client"
	"github.com/gitunderstand/gitunderstand-go/internal/sse"
	"github.com/gitunderstand/gitunderstand-go/internal/storage"
	"github.com/gitunderstand/gitunderstand-go/internal/tokens"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Timestamps are presentation state and
// are not persisted; restored messages carry the zero time.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// ErrBusy is returned by Begin while a response is still streaming.
var ErrBusy = errors.New("chat: response pending")

// SessionOption configures a session.
type SessionOption func(*Session)

// WithHistoryBudget caps the token count of history sent with each message,
// dropping the oldest turns first. A zero budget sends everything.
func WithHistoryBudget(counter tokens.Counter, maxTokens int) SessionOption {
	return func(s *Session) {
		s.counter = counter
		s.budget = maxTokens
	}
}

// Session is the chat state machine for one digest. Safe for concurrent
// use; the stream reader goroutine applies events while others read.
type Session struct {
	mu       sync.Mutex
	digestID string
	messages []Message
	busy     bool
	errMsg   string
	store    storage.HistoryStore
	logger   *slog.Logger
	counter  tokens.Counter
	budget   int
}

// NewSession restores any persisted history for the digest. A failing store
// is logged and treated as empty history; a nil store disables persistence.
func NewSession(ctx context.Context, digestID string, store storage.HistoryStore, logger *slog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		digestID: digestID,
		store:    store,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if store != nil {
		stored, err := store.History(ctx, digestID)
		if err != nil {
			logger.Warn("failed to load chat history",
				slog.String("digest_id", digestID),
				slog.String("error", err.Error()))
		} else {
			for _, m := range stored {
				s.messages = append(s.messages, Message{
					Role:    Role(m.Role),
					Content: m.Content,
				})
			}
		}
	}
	return s
}

// Begin records an outgoing user message and returns the request to send.
// The request history holds the turns before this message, oldest first,
// trimmed to the session budget. The session stays busy until a terminal
// event or failure is applied.
func (s *Session) Begin(ctx context.Context, message string) (*client.ChatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, ErrBusy
	}

	history := s.historyPayloadLocked()
	s.messages = append(s.messages, Message{
		Role:      RoleUser,
		Content:   message,
		Timestamp: time.Now(),
	})
	s.errMsg = ""
	s.busy = true
	s.persistLocked(ctx)

	return &client.ChatRequest{
		DigestID: s.digestID,
		Message:  message,
		History:  history,
	}, nil
}

// Apply folds one stream event into the session. "thinking" is a no-op,
// "complete" appends the assistant reply and persists, "error" surfaces the
// message. The first terminal event per turn wins; once the busy flag
// clears, later events are ignored.
func (s *Session) Apply(ctx context.Context, ev sse.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy {
		return
	}

	switch ev.Type {
	case "thinking":
		// The backend is working; nothing to record.

	case "complete":
		s.messages = append(s.messages, Message{
			Role:      RoleAssistant,
			Content:   ev.StringField("content"),
			Timestamp: time.Now(),
		})
		s.busy = false
		s.persistLocked(ctx)

	case "error":
		msg := ev.StringField("error")
		if msg == "" {
			msg = ev.StringField("message")
		}
		if msg == "" {
			msg = "Chat failed"
		}
		s.errMsg = msg
		s.busy = false
	}
}

// Fail records a transport failure, ending the turn.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy {
		return
	}
	s.errMsg = err.Error()
	s.busy = false
}

// Consume applies every result from a stream until the channel closes.
func (s *Session) Consume(ctx context.Context, ch <-chan client.Result) {
	for res := range ch {
		if res.Err != nil {
			s.Fail(res.Err)
			continue
		}
		s.Apply(ctx, *res.Event)
	}
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Busy reports whether a response is still streaming.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// ErrMessage returns the last surfaced error, empty when none. It resets on
// the next Begin.
func (s *Session) ErrMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// DigestID returns the digest this session talks about.
func (s *Session) DigestID() string {
	return s.digestID
}

// Clear drops the conversation and its persisted history.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.errMsg = ""
	if s.store != nil {
		if err := s.store.ClearHistory(ctx, s.digestID); err != nil {
			s.logger.Warn("failed to clear chat history",
				slog.String("digest_id", s.digestID),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Session) historyPayloadLocked() []client.HistoryMessage {
	history := make([]client.HistoryMessage, 0, len(s.messages))
	for _, m := range s.messages {
		history = append(history, client.HistoryMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	if s.counter == nil || s.budget <= 0 {
		return history
	}
	return trimToBudget(history, s.counter, s.budget)
}

// trimToBudget drops the oldest turns until the rest fit the token budget.
func trimToBudget(history []client.HistoryMessage, counter tokens.Counter, budget int) []client.HistoryMessage {
	counts := make([]int, len(history))
	total := 0
	for i, m := range history {
		n, err := counter.Count(m.Content)
		if err != nil {
			n = len(m.Content) / 4
		}
		counts[i] = n
		total += n
	}

	start := 0
	for start < len(history) && total > budget {
		total -= counts[start]
		start++
	}
	return history[start:]
}

func (s *Session) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	stored := make([]storage.StoredMessage, len(s.messages))
	for i, m := range s.messages {
		stored[i] = storage.StoredMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	if err := s.store.SaveHistory(ctx, s.digestID, stored); err != nil {
		s.logger.Warn("failed to persist chat history",
			slog.String("digest_id", s.digestID),
			slog.String("error", err.Error()))
	}
}
