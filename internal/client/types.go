package client

import (
	"strings"
)

// Pattern types for file filtering during ingestion.
const (
	PatternInclude = "include"
	PatternExclude = "exclude"
)

// DefaultMaxFileSizeKB is the backend's default file size cutoff.
const DefaultMaxFileSizeKB = 5120

// IngestRequest is the body for POST /api/ingest and /api/ingest/stream.
type IngestRequest struct {
	InputText   string `json:"input_text"`
	MaxFileSize int    `json:"max_file_size"`
	PatternType string `json:"pattern_type"`
	Pattern     string `json:"pattern"`
	// Token is a GitHub PAT for private repositories.
	Token string `json:"token,omitempty"`
}

// NewIngestRequest builds an ingest request with backend defaults.
func NewIngestRequest(inputText string) *IngestRequest {
	return &IngestRequest{
		InputText:   inputText,
		MaxFileSize: DefaultMaxFileSizeKB,
		PatternType: PatternExclude,
	}
}

// IngestResult is the payload of a completed ingestion, delivered either as
// the body of POST /api/ingest or as the payload of the terminal "complete"
// stream event.
type IngestResult struct {
	RepoURL            string `json:"repo_url"`
	ShortRepoURL       string `json:"short_repo_url"`
	Summary            string `json:"summary"`
	DigestURL          string `json:"digest_url"`
	Tree               string `json:"tree"`
	Content            string `json:"content"`
	DefaultMaxFileSize int    `json:"default_max_file_size"`
	PatternType        string `json:"pattern_type"`
	Pattern            string `json:"pattern"`
}

// DigestID extracts the digest identifier from the download URL
// ("/api/download/file/{id}"). Summary and chat requests are keyed by it.
func (r *IngestResult) DigestID() string {
	if r.DigestURL == "" {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(r.DigestURL, "/"), "/")
	return parts[len(parts)-1]
}

// SummaryRequest is the body for POST /api/summary/stream.
type SummaryRequest struct {
	DigestID    string `json:"digest_id"`
	SummaryType string `json:"summary_type"`
}

// HistoryMessage is one prior conversation turn as the backend expects it.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body for POST /api/chat/stream. History carries the
// turns before Message, oldest first.
type ChatRequest struct {
	DigestID string           `json:"digest_id"`
	Message  string           `json:"message"`
	History  []HistoryMessage `json:"history"`
}
