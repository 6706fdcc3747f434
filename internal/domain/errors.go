package domain

import "errors"

// Failure taxonomy. All three surface to the originating connection as a
// generic error event with a short reason; the triggering event is dropped
// without partial state mutation.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreWriteFailed = errors.New("store write failed")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// Reason strings carried by the error event.
const (
	ReasonStoreUnavailable = "store_unavailable"
	ReasonStoreWriteFailed = "store_write_failed"
	ReasonInvalidPayload   = "invalid_payload"
	ReasonInternalError    = "internal_error"
)

// ReasonFor maps an error to the reason string sent to the client.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return ReasonInvalidPayload
	case errors.Is(err, ErrStoreWriteFailed):
		return ReasonStoreWriteFailed
	case errors.Is(err, ErrStoreUnavailable):
		return ReasonStoreUnavailable
	default:
		return ReasonInternalError
	}
}
