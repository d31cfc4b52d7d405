package chathub

import "errors"

// Errors reported to clients. The error text doubles as the wire code.
var (
	ErrRoomNotFound           = errors.New("room_not_found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrAlreadyInProgress      = errors.New("already_in_progress")
	ErrAuthenticationRequired = errors.New("authentication_required")
	ErrAlreadyFriends         = errors.New("already_friends")
	ErrPeerAnonymous          = errors.New("peer_anonymous")
	ErrRequestNotFound        = errors.New("request_not_found")
	ErrInvalidEvent           = errors.New("invalid_event")
	ErrBanned                 = errors.New("banned")
	ErrStoreFailure           = errors.New("store_failure")
)

// ErrHubStopped is returned by calls made after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

var clientErrors = []error{
	ErrRoomNotFound,
	ErrUnauthorized,
	ErrAlreadyInProgress,
	ErrAuthenticationRequired,
	ErrAlreadyFriends,
	ErrPeerAnonymous,
	ErrRequestNotFound,
	ErrInvalidEvent,
	ErrBanned,
}

// errorCode maps err onto one of the client error codes. Anything unknown is
// reported as a store failure.
func errorCode(err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrStoreFailure.Error()
}
