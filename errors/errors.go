package errors

import "fmt"

var (
	// Chat core taxonomy. Failures past persistence (fanout) are never
	// surfaced through these: the message is already durable.
	ErrUnknownSession    = fmt.Errorf("unknown session")
	ErrRoomInactive      = fmt.Errorf("incident chatroom is not active")
	ErrStoreUnavailable  = fmt.Errorf("message store unavailable")
	ErrIncidentNotFound  = fmt.Errorf("incident not found")
	ErrSessionBufferFull = fmt.Errorf("session delivery buffer full")
	ErrRoomBusy          = fmt.Errorf("incident room command queue full")
	ErrMessageTooLong    = fmt.Errorf("message body exceeds the maximum length")

	// Auth
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")

	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)

// BlockedError is returned when the moderation filter rejects a message.
// The message is discarded before persistence and never obtains a sequence number.
type BlockedError struct {
	Reason string
}

func (e BlockedError) Error() string {
	return fmt.Sprintf("message blocked by moderation: %s", e.Reason)
}
