package ws

import (
	"errors"

	"messenger-service/internal/repositories"
)

var (
	// ErrValidation marks a malformed or semantically invalid inbound frame.
	ErrValidation = errors.New("validation failed")
	// ErrConnectionLimit is returned when an identity already holds the maximum number of
	// sessions.
	ErrConnectionLimit = errors.New("connection limit exceeded")
	// ErrStorage wraps transient storage failures.
	ErrStorage = errors.New("storage unavailable")
	// ErrHubClosed is returned by Open after Shutdown.
	ErrHubClosed = errors.New("hub closed")
	// ErrUserNotFound is the user directory's not-found error.
	ErrUserNotFound = repositories.ErrUserNotFound
)

// Application close codes sent in websocket close frames.
const (
	CloseUnknownUser     = 4001
	CloseConnectionLimit = 4002
)

// publicError is the text sent to the client in an error frame.
func publicError(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrUserNotFound):
		return "user not found"
	default:
		return "temporarily unavailable, try again"
	}
}
