package schema

import "errors"

var (
	// ErrInvalidRoomID indicates an empty or malformed room identifier.
	ErrInvalidRoomID = errors.New("invalid room id")
	// ErrIndexOutOfRange indicates a list update addressed a position outside the list.
	ErrIndexOutOfRange = errors.New("room list index out of range")
	// ErrInvalidUpdate indicates a malformed list update.
	ErrInvalidUpdate = errors.New("invalid room list update")
	// ErrClosed indicates the processor no longer accepts updates.
	ErrClosed = errors.New("room list processor closed")
)
