// Package tokens estimates token counts for digest content and chat history.
// A tiktoken-backed counter gives accurate counts; a character-ratio
// estimator stands in when the tokenizer cannot load.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens in plain text.
type Counter interface {
	Count(text string) (int, error)
	// Estimated reports whether counts are approximations.
	Estimated() bool
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

func (e *Estimator) Count(text string) (int, error) {
	return int(float64(len(text)) / e.CharsPerToken), nil
}

func (e *Estimator) Estimated() bool {
	return true
}

// TiktokenCounter counts tokens with tiktoken's cl100k_base encoding, the
// closest public match for the models the backend generates with.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter loads the cl100k_base codec.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (c *TiktokenCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("failed to encode text: %w", err)
	}
	return len(ids), nil
}

func (c *TiktokenCounter) Estimated() bool {
	return false
}

// NewCounter returns the most accurate counter available: tiktoken when its
// encoding loads, the estimator otherwise.
func NewCounter() Counter {
	if c, err := NewTiktokenCounter(); err == nil {
		return c
	}
	return NewEstimator()
}

// FormatCount renders a count the way digest summaries do: "523", "1.2k",
// "3.4M".
func FormatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
