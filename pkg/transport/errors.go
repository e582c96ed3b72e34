package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents failures where no status was obtained.
	ErrorClassNetwork ErrorClass = "network"
)

// HTTPError is reported by Handle.Err when the server answered with an
// error status.
type HTTPError struct {
	StatusCode int
	Status     string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	reason := http.StatusText(e.StatusCode)
	if reason == "" {
		reason = e.Status
	}
	if e.Err != nil {
		return fmt.Sprintf("server replied: %s: %v", reason, e.Err)
	}
	return fmt.Sprintf("server replied: %s", reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Classify categorizes the outcome of a completed handle.
// Returns "" for successful handles.
func Classify(h Handle) ErrorClass {
	return classify(h.StatusCode(), h.Err())
}

func classify(status int, err error) ErrorClass {
	if status == 0 {
		if err != nil {
			return ErrorClassNetwork
		}
		return ""
	}

	var httpErr *HTTPError
	if err != nil && errors.As(err, &httpErr) {
		status = httpErr.StatusCode
	}

	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
