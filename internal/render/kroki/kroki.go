// Package kroki renders Mermaid diagrams through a Kroki server. It backs
// the render engine when no local rendering library is available.
package kroki

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gitunderstand/gitunderstand-go/internal/render"
)

const (
	defaultBaseURL   = "https://kroki.io"
	defaultUserAgent = "gitunderstand-go/1.0"
)

// SyntaxError is a diagram the server refused to compile. The render
// engine's repair pass keys off parse failures like this one.
type SyntaxError struct {
	Detail string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid diagram: %s", e.Detail)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different Kroki server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client implements render.Renderer against Kroki's HTTP API. Kroki has no
// validate-only endpoint, so Parse compiles the diagram and keeps the
// result; the Render that follows for the same source reuses it instead of
// compiling twice.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger

	mu      sync.Mutex
	lastSrc string
	lastSVG string
}

var _ render.Renderer = (*Client)(nil)

// NewClient creates a Kroki client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpc:   http.DefaultClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse compiles source and reports its syntax error, if any.
func (c *Client) Parse(ctx context.Context, source string, opts render.Options) error {
	svg, err := c.compile(ctx, source, opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.lastSrc, c.lastSVG = source, svg
	c.mu.Unlock()
	return nil
}

// Render returns the SVG for source, reusing the document Parse already
// compiled when the source matches.
func (c *Client) Render(ctx context.Context, id, source string, opts render.Options) (string, error) {
	c.mu.Lock()
	if source == c.lastSrc && c.lastSVG != "" {
		svg := c.lastSVG
		c.mu.Unlock()
		return svg, nil
	}
	c.mu.Unlock()

	return c.compile(ctx, source, opts)
}

func (c *Client) compile(ctx context.Context, source string, opts render.Options) (string, error) {
	url := c.baseURL + "/mermaid/svg"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(source))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", defaultUserAgent)
	if opts.Theme != "" {
		req.Header.Set("Kroki-Diagram-Options-Theme", opts.Theme)
	}
	if opts.SecurityLevel != "" {
		req.Header.Set("Kroki-Diagram-Options-SecurityLevel", opts.SecurityLevel)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach diagram server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read diagram response: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest {
		return "", &SyntaxError{Detail: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("diagram server error",
			slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("diagram server returned status %d", resp.StatusCode)
	}
	return string(body), nil
}
