package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransportError wraps network and timeout failures talking to the backend.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// MessageFrom returns the most specific user facing message carried by err.
func MessageFrom(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "could not reach the server"
	}
	return err.Error()
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// decodeErrorMessage accepts a JSON string body, {message}, {error} or plain
// text. An empty result means none of them carried a message.
func decodeErrorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	switch body[0] {
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return strings.TrimSpace(s)
		}
	case '{':
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err != nil {
			return ""
		}
		if msg := stringOrList(eb.Message); msg != "" {
			return msg
		}
		return stringOrList(eb.Error)
	case '[':
		return ""
	default:
		return strings.TrimSpace(string(body))
	}
	return ""
}

func stringOrList(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				parts = append(parts, item)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func genericMessage(status int) string {
	return fmt.Sprintf("request failed with status %d", status)
}
