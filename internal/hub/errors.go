package hub

import "errors"

// Errors reported back to the requesting peer. All of them are
// recoverable: they never terminate the presentation or the connection
// and are never broadcast to the room.
var (
	ErrNotFound       = errors.New("presentation not found")
	ErrPeerNotFound   = errors.New("participant not found")
	ErrUnauthorized   = errors.New("operation not permitted for role")
	ErrInvalidIndex   = errors.New("slide index out of range")
	ErrInvalidRequest = errors.New("malformed request")
	ErrFull           = errors.New("presentation is full")
)

// errKind maps an error to the machine-readable kind sent in error
// payloads over the wire.
func errKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "session_not_found"
	case errors.Is(err, ErrPeerNotFound):
		return "participant_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidIndex):
		return "invalid_index"
	case errors.Is(err, ErrFull):
		return "full"
	default:
		return "invalid_request"
	}
}
