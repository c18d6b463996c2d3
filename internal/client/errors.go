package client

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// rateLimitMessage is surfaced verbatim for HTTP 429, overriding whatever
// the response body says.
const rateLimitMessage = "Rate limit exceeded. Please wait a moment and try again."

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// errorBody is the JSON shape of backend error responses. Application
// handlers set "error"; FastAPI's framework errors set "detail".
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// errorMessage extracts a user-facing message from a non-2xx response.
func errorMessage(statusCode int, body []byte) string {
	if statusCode == http.StatusTooManyRequests {
		return rateLimitMessage
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Detail != "" {
			return eb.Detail
		}
	}
	return fmt.Sprintf("Request failed with status %d", statusCode)
}
