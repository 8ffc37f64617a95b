package events

import "errors"

// WireError is a protocol-level failure. Its label travels to the offending
// session as an `error {message}` frame; it is never broadcast and never
// mutates room state.
type WireError struct {
	Label string
}

func (e *WireError) Error() string { return e.Label }

var (
	ErrInvalidPayload     = &WireError{Label: "invalid_payload"}
	ErrNotInRoom          = &WireError{Label: "not_in_room"}
	ErrNotYourTurn        = &WireError{Label: "not_your_turn"}
	ErrNotHost            = &WireError{Label: "not_host"}
	ErrRoomNotFound       = &WireError{Label: "room_not_found"}
	ErrRoomFull           = &WireError{Label: "room_full"}
	ErrGameInProgress     = &WireError{Label: "game_in_progress"}
	ErrTooManyConnections = &WireError{Label: "too_many_connections"}
	ErrRateLimited        = &WireError{Label: "rate_limited"}
	ErrTimeout            = &WireError{Label: "timeout"}
	ErrInternal           = &WireError{Label: "internal"}
)

// AsWire extracts the WireError from an error chain, if any.
func AsWire(err error) (*WireError, bool) {
	var we *WireError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
