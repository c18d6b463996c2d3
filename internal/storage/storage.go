// Package storage persists client-side state between runs: chat history per
// digest and a record of past ingestions. Feature code treats the store as
// best effort; failures are logged and never interrupt a session.
package storage

import (
	"context"
	"time"
)

// StoredMessage is one chat turn as persisted. Only role and content
// survive a round trip; timestamps are presentation state.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DigestRecord is a locally recorded ingestion.
type DigestRecord struct {
	ID           string
	RepoURL      string
	ShortRepoURL string
	Summary      string
	DigestURL    string
	CreatedAt    time.Time
}

// HistoryStore persists chat history keyed by digest ID. History returns an
// empty slice, not an error, when nothing was saved yet. SaveHistory
// replaces the stored history wholesale.
type HistoryStore interface {
	History(ctx context.Context, digestID string) ([]StoredMessage, error)
	SaveHistory(ctx context.Context, digestID string, messages []StoredMessage) error
	ClearHistory(ctx context.Context, digestID string) error
}

// DigestStore records completed ingestions for later summary and chat runs.
type DigestStore interface {
	SaveDigest(ctx context.Context, rec *DigestRecord) error
	Digest(ctx context.Context, id string) (*DigestRecord, error)
	ListDigests(ctx context.Context, limit int) ([]*DigestRecord, error)
	DeleteDigest(ctx context.Context, id string) error
}

// Store is the full client-side persistence surface.
type Store interface {
	HistoryStore
	DigestStore
	Close() error
}
