package api

import (
	"fmt"
	"net/http"
)

// TransportError is a failed backend call: a network failure (StatusCode 0)
// or a non-2xx response.
type TransportError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	// Message is the backend's explanation, when it sent one.
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	prefix := fmt.Sprintf("%s: %s %s", e.Op, e.Method, e.Path)
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", prefix, e.Err)
		}
		return prefix + ": request failed"
	}
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", prefix, status, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage is the single line shown to the user for this failure.
func (e *TransportError) UserMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.StatusCode == 0:
		return "cannot reach the defect service"
	case e.StatusCode == http.StatusNotFound:
		return "not found"
	default:
		return fmt.Sprintf("request failed (%d %s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
}
