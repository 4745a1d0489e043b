package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed chat request.
type ErrorKind string

const (
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindQuotaExceeded   ErrorKind = "quota_exceeded"
	KindRateLimited     ErrorKind = "rate_limit"
	KindUpstreamFailure ErrorKind = "server_error"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrMessageEmpty = errors.New("message is required and must be a string")
	ErrMessageLong  = errors.New("message exceeds maximum length")

	ErrHistoryInvalid = errors.New("conversation history is malformed")
)

// ChatError is the only error type ChatService.Reply returns. Message is safe
// to show to the caller; Err carries the underlying cause for logging.
type ChatError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ChatError) Unwrap() error { return e.Err }

// Status maps the error kind onto an HTTP status code.
func (e *ChatError) Status() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindQuotaExceeded, KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ResponseType is the value of the "type" field in the error envelope.
// Validation failures carry no type.
func (e *ChatError) ResponseType() string {
	if e.Kind == KindInvalidRequest {
		return ""
	}
	return string(e.Kind)
}

func invalidRequest(msg string, err error) *ChatError {
	return &ChatError{Kind: KindInvalidRequest, Message: msg, Err: err}
}
