package assistant

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMessageTooLong    = errors.New("message exceeds 1000 characters")
	ErrBusy              = errors.New("a message is already being sent")
	ErrClosed            = errors.New("assistant is closed")
	ErrDiscarded         = errors.New("conversation was cleared while the request was in flight")
	ErrUnknownMessage    = errors.New("message not found in transcript")
	ErrCorruptTranscript = errors.New("stored transcript is corrupt")
)

// GatewayError is a non-2xx answer from the chat gateway.
type GatewayError struct {
	Status  int
	Message string
	Type    string
}

func (e *GatewayError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("gateway returned %d (%s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}
