package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var ErrTimeout = errors.New("transcription request timed out")

// Error is the normalized failure of a provider call. StatusCode is zero when
// the request never produced an HTTP response.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func statusError(name string, statusCode int, message string, cause error) *Error {
	if message == "" {
		message = genericMessage(statusCode)
	}
	return &Error{Provider: name, StatusCode: statusCode, Message: message, Err: cause}
}

func transportError(name string, err error) *Error {
	if isTimeout(err) {
		return &Error{Provider: name, Message: ErrTimeout.Error(), Err: errors.Join(ErrTimeout, err)}
	}
	return &Error{Provider: name, Message: "transcription failed: " + err.Error(), Err: err}
}

func genericMessage(statusCode int) string {
	text := http.StatusText(statusCode)
	if text == "" {
		text = fmt.Sprintf("status %d", statusCode)
	}
	return "transcription failed: " + text
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
