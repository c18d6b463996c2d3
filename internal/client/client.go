// Package client talks to the GitUnderstand backend: one-shot JSON endpoints
// plus the SSE streaming endpoints for ingestion, summaries and chat.
//
// Streaming calls return a channel of results. Events arrive in frame order;
// a transport failure is delivered as a single terminal error result; the
// channel closes when the stream ends either way. A non-2xx response is not
// a transport failure: it is folded into a synthetic "error" event so feature
// consumers handle HTTP rejection through their normal event path.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gitunderstand/gitunderstand-go/internal/sse"
)

const (
	defaultBaseURL   = "http://localhost:8080"
	defaultUserAgent = "gitunderstand-go/1.0"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is an HTTP client for the GitUnderstand backend API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new backend client.
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result wraps a streamed event or a terminal transport error. A stream
// yields at most one error result, always last.
type Result struct {
	Event *sse.Event
	Err   error
}

// StreamIngest starts repository ingestion and streams progress events.
func (c *Client) StreamIngest(ctx context.Context, req *IngestRequest) (<-chan Result, error) {
	return c.stream(ctx, "/api/ingest/stream", req)
}

// StreamSummary requests an AI summary and streams generation events.
func (c *Client) StreamSummary(ctx context.Context, req *SummaryRequest) (<-chan Result, error) {
	return c.stream(ctx, "/api/summary/stream", req)
}

// StreamChat sends a chat message and streams the response events.
func (c *Client) StreamChat(ctx context.Context, req *ChatRequest) (<-chan Result, error) {
	return c.stream(ctx, "/api/chat/stream", req)
}

func (c *Client) stream(ctx context.Context, path string, reqBody any) (<-chan Result, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	out := make(chan Result)
	go c.streamReader(httpReq, out)
	return out, nil
}

func (c *Client) streamReader(req *http.Request, out chan<- Result) {
	defer close(out)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		out <- Result{Err: fmt.Errorf("request failed: %w", err)}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := errorMessage(resp.StatusCode, body)
		c.logger.Warn("stream request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg))
		out <- Result{Event: errorEvent(msg)}
		return
	}

	dec := sse.NewDecoder(resp.Body, c.logger)
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			out <- Result{Err: err}
			return
		}
		out <- Result{Event: &ev}
	}
}

// errorEvent synthesizes the terminal error event for rejected requests.
// Both payload fields carry the message; consumers read either.
func errorEvent(msg string) *sse.Event {
	return &sse.Event{
		Type: "error",
		Payload: map[string]any{
			"message": msg,
			"error":   msg,
		},
	}
}

// Ingest runs a one-shot (non-streaming) ingestion.
func (c *Client) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ingest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var result IngestResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// SummaryAvailable reports whether the backend has AI summaries configured.
func (c *Client) SummaryAvailable(ctx context.Context) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/summary/available", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	respBody, err := c.do(httpReq)
	if err != nil {
		return false, err
	}

	var result struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result.Available, nil
}

// DownloadDigest fetches the full digest text for a completed ingestion.
func (c *Client) DownloadDigest(ctx context.Context, digestID string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/download/file/"+digestID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	respBody, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	return string(respBody), nil
}

// do executes a one-shot request and returns the body, mapping non-2xx
// responses to *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, respBody),
		}
	}
	return respBody, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
}
