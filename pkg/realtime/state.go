package realtime

import (
	"errors"
	"fmt"
	"net/http"
)

// State is the connectivity state of a ConnectionManager.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateUnavailable  State = "unavailable"
	StateFailed       State = "failed"
	// StateError is only ever reported to observers. It flags a non-fatal error
	// (a refused subscription, a failed auth call) and leaves State() unchanged.
	StateError State = "error"
)

// StateChange is delivered to observers registered with OnState.
type StateChange struct {
	Previous State
	Current  State
	Err      error
}

var (
	ErrChannelAuthDenied    = errors.New("channel authorization denied")
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// AuthError is returned by the channel authorization endpoint for a non-2xx reply.
type AuthError struct {
	Channel string
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorize %s: status %d", e.Channel, e.Status)
}

func (e *AuthError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrChannelAuthDenied
	}
	return ErrTransportUnavailable
}
