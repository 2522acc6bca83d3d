package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrMissingToken = fmt.Errorf("no credential provided")
	ErrInvalidToken = fmt.Errorf("invalid or expired token")

	ErrMissingRecipient = fmt.Errorf("message has no recipient")
	ErrEmptyMessage     = fmt.Errorf("message has neither content nor media url")

	ErrCalleeBusy    = fmt.Errorf("user is busy in another call")
	ErrCalleeOffline = fmt.Errorf("user is offline")
	ErrUnknownCall   = fmt.Errorf("no call registered for this id")
)
