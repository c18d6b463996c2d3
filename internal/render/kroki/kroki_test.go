package kroki

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gitunderstand/gitunderstand-go/internal/render"
	"github.com/gitunderstand/gitunderstand-go/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientParseThenRenderCompilesOnce(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte("<svg>diagram</svg>"))
	}))
	defer srv.Close()

	rec, cleanup := testutil.NewVCRRecorder(t, "kroki_render.yaml")
	defer cleanup()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(testutil.VCRHTTPClient(rec)),
		WithLogger(discardLogger()))

	ctx := context.Background()
	source := "graph TD\n  A --> B"

	if err := c.Parse(ctx, source, render.Options{}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	svg, err := c.Render(ctx, "diagram-1", source, render.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if svg != "<svg>diagram</svg>" {
		t.Errorf("svg = %q", svg)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (render should reuse the parse result)", got)
	}
}

func TestClientRenderWithoutParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<svg>fresh</svg>"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithLogger(discardLogger()))

	svg, err := c.Render(context.Background(), "diagram-1", "graph LR\n  X --> Y", render.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if svg != "<svg>fresh</svg>" {
		t.Errorf("svg = %q", svg)
	}
}

func TestClientSyntaxError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Error 400: Unable to parse the diagram\n"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithLogger(discardLogger()))

	err := c.Parse(context.Background(), "not a diagram", render.Options{})
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("Parse error = %v, want *SyntaxError", err)
	}
	if syntaxErr.Detail != "Error 400: Unable to parse the diagram" {
		t.Errorf("detail = %q", syntaxErr.Detail)
	}
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithLogger(discardLogger()))

	err := c.Parse(context.Background(), "graph TD\n  A --> B", render.Options{})
	if err == nil {
		t.Fatal("expected error for status 500")
	}
	var syntaxErr *SyntaxError
	if errors.As(err, &syntaxErr) {
		t.Errorf("server error classified as syntax error: %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want the status in the message", err)
	}
}

func TestClientSendsRequest(t *testing.T) {
	var (
		gotPath     string
		gotBody     string
		gotTheme    string
		gotSecurity string
		gotType     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotTheme = r.Header.Get("Kroki-Diagram-Options-Theme")
		gotSecurity = r.Header.Get("Kroki-Diagram-Options-SecurityLevel")
		gotType = r.Header.Get("Content-Type")
		w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL+"/"), WithLogger(discardLogger()))

	source := "graph TD\n  A --> B"
	opts := render.Options{Theme: "neutral", SecurityLevel: "strict"}
	if _, err := c.Render(context.Background(), "diagram-1", source, opts); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if gotPath != "/mermaid/svg" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody != source {
		t.Errorf("body = %q", gotBody)
	}
	if gotTheme != "neutral" || gotSecurity != "strict" {
		t.Errorf("option headers = %q, %q", gotTheme, gotSecurity)
	}
	if gotType != "text/plain" {
		t.Errorf("content type = %q", gotType)
	}
}
