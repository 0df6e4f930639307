package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")

	// Connection errors
	ErrUnauthenticated = errors.New("unauthenticated")

	// Room errors
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrDuplicateSession = errors.New("identity is already in a room")
	ErrNotInRoom        = errors.New("identity is not in a room")

	// Game errors
	ErrNotInPlacement    = errors.New("game is not accepting ship placement")
	ErrAlreadyReady      = errors.New("ships have already been placed")
	ErrInvalidFleet      = errors.New("fleet must contain ships with coordinates")
	ErrGameNotInProgress = errors.New("no game in progress")
	ErrNotYourTurn       = errors.New("not this player's turn")

	// Protocol errors
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownCommand   = errors.New("unknown command")

	// Match errors
	ErrMatchNotFound = errors.New("match not found")
)
