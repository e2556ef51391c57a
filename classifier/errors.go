package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrEmptyEmbedding     = errors.New("embedding is empty or zero")
	ErrDimensionMismatch  = errors.New("image and text embeddings differ in dimension")
	ErrMissingEmbeddingAt = errors.New("embedding response is missing an index")
)

// HTTPError is a non-2xx answer from the embedding server.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("embedding server: status=%d message=%s", e.StatusCode, msg)
}

func parseHTTPError(status int, raw []byte) error {
	body := strings.TrimSpace(string(raw))

	// both {"error":{"message":...}} and {"error":"..."} / {"detail":"..."} are seen in the wild
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Error.Message != "" {
		return &HTTPError{StatusCode: status, Message: nested.Error.Message, Body: body}
	}
	var flat struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil {
		if flat.Error != "" {
			return &HTTPError{StatusCode: status, Message: flat.Error, Body: body}
		}
		if flat.Detail != "" {
			return &HTTPError{StatusCode: status, Message: flat.Detail, Body: body}
		}
	}
	return &HTTPError{StatusCode: status, Body: body}
}
