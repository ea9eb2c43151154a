package room

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrCodeNotFound    = errors.New("no room with that code")
	ErrRoomNotJoinable = errors.New("room is not accepting players")
	ErrRoomNotWaiting  = errors.New("room has already started")
)
