// Package sse decodes the GitUnderstand event stream: an HTTP response body
// carrying blank-line separated frames of the form "data: <json>\n\n". Frames
// may arrive split across arbitrary network chunks; the decoder reassembles
// them and yields events in arrival order.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const dataPrefix = "data: "

var frameSep = []byte("\n\n")

// Decoder reads events from a server-sent event stream.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	pending []Event
}

// NewDecoder returns a decoder reading frames from r.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}

	scanner := bufio.NewScanner(r)
	// Increase buffer size for potentially large frames
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	scanner.Split(splitFrames)

	return &Decoder{scanner: scanner, logger: logger}
}

// Next returns the next event in the stream. It returns io.EOF once the
// stream ends cleanly and a wrapped read error if the underlying stream
// fails. Malformed data lines are logged and skipped, never returned.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}

		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return Event{}, fmt.Errorf("stream read error: %w", err)
			}
			return Event{}, io.EOF
		}

		d.pending = d.parseFrame(d.scanner.Text())
	}
}

// parseFrame extracts events from a single frame. Only lines with a literal
// "data: " prefix are consulted; event:, id: and retry: lines pass through
// uninterpreted.
func (d *Decoder) parseFrame(frame string) []Event {
	var events []Event
	for _, line := range strings.Split(frame, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimPrefix(line, dataPrefix)

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			d.logger.Warn("skipping malformed stream event",
				slog.String("error", err.Error()))
			continue
		}
		events = append(events, ev)
	}
	return events
}

// splitFrames is a bufio.SplitFunc producing one token per "\n\n" delimited
// frame. An unterminated trailing frame at end of stream is dropped, matching
// the wire contract that every event ends with a blank line.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, frameSep); i >= 0 {
		return i + len(frameSep), data[:i], nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}
