package presence

import "errors"

var (
	// ErrChannelDisconnected is surfaced after resubscription attempts are
	// exhausted. Non-fatal: the user recovers by rejoining the room.
	ErrChannelDisconnected = errors.New("presence channel disconnected")

	// ErrAlreadyJoined is returned when Join is called with a different
	// session ID while this tracker is already tracking one.
	ErrAlreadyJoined = errors.New("tracker already joined with another session")
)
