package server

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNameTaken     = errors.New("name already in use")
	ErrNotNamedYet   = errors.New("no name set")
	ErrRoomNotFound  = errors.New("room not found")
	ErrDuplicateRoom = errors.New("duplicate room id")
	ErrAlreadyInRoom = errors.New("already in room")
	ErrNotInRoom     = errors.New("not in a room")
	ErrSessionGone   = errors.New("session not found")
)
