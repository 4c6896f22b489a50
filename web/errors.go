package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrBodyLocked is reported when a response body was consumed before it
// could be relayed.
var ErrBodyLocked = errors.New("response body is locked")

// ErrorBody is the JSON payload of an HTTPError.
type ErrorBody struct {
	Message string `json:"message"`
}

// HTTPError is an error that maps onto an HTTP status. Its string form is
// the JSON encoding of Body.
type HTTPError struct {
	Status int       `json:"status"`
	Body   ErrorBody `json:"body"`
}

// Error returns an HTTPError with the given status and message.
func Error(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Body: ErrorBody{Message: message}}
}

// Errorf formats the message of a new HTTPError.
func Errorf(status int, format string, args ...any) *HTTPError {
	return Error(status, fmt.Sprintf(format, args...))
}

func (e *HTTPError) Error() string {
	b, err := json.Marshal(e.Body)
	if err != nil {
		return e.Body.Message
	}
	return string(b)
}

// StatusOf returns the status carried by err, or 500.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) && he.Status != 0 {
		return he.Status
	}
	return http.StatusInternalServerError
}

// IsTooLarge reports whether err is a 413 HTTPError.
func IsTooLarge(err error) bool {
	return StatusOf(err) == http.StatusRequestEntityTooLarge
}
