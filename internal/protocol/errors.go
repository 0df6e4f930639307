package protocol

import (
	"errors"

	"github.com/mcoot/battleship-go/internal/model"
)

// Error codes carried in error events
const (
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeRoomFull          = "ROOM_FULL"
	CodeDuplicateSession  = "DUPLICATE_SESSION"
	CodeNotYourTurn       = "NOT_YOUR_TURN"
	CodeNotInRoom         = "NOT_IN_ROOM"
	CodeNotInPlacement    = "NOT_IN_PLACEMENT"
	CodeAlreadyReady      = "ALREADY_READY"
	CodeInvalidFleet      = "INVALID_FLEET"
	CodeGameNotInProgress = "GAME_NOT_IN_PROGRESS"
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeMalformedMessage  = "MALFORMED_MESSAGE"
	CodeUnknownCommand    = "UNKNOWN_COMMAND"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorEventFrom maps an error to the event reported to the sender
func ErrorEventFrom(err error) Error {
	code, msg := classify(err)
	return Error{Type: EvtError, Code: code, Message: msg}
}

func classify(err error) (string, string) {
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return CodeRoomNotFound, "Room not found"
	case errors.Is(err, model.ErrRoomFull):
		return CodeRoomFull, "Room is full"
	case errors.Is(err, model.ErrDuplicateSession):
		return CodeDuplicateSession, "Already in a room"
	case errors.Is(err, model.ErrNotYourTurn):
		return CodeNotYourTurn, "Not your turn"
	case errors.Is(err, model.ErrNotInRoom):
		return CodeNotInRoom, "Not in a room"
	case errors.Is(err, model.ErrNotInPlacement):
		return CodeNotInPlacement, "Ships can only be placed before the game starts"
	case errors.Is(err, model.ErrAlreadyReady):
		return CodeAlreadyReady, "Ships already placed"
	case errors.Is(err, model.ErrInvalidFleet):
		return CodeInvalidFleet, "Fleet must contain at least one ship with coordinates"
	case errors.Is(err, model.ErrGameNotInProgress):
		return CodeGameNotInProgress, "No game in progress"
	case errors.Is(err, model.ErrUnauthenticated):
		return CodeUnauthenticated, "Authentication required"
	case errors.Is(err, model.ErrMalformedMessage):
		return CodeMalformedMessage, "Malformed message"
	case errors.Is(err, model.ErrUnknownCommand):
		return CodeUnknownCommand, "Unknown command"
	default:
		return CodeInternalError, "Internal server error"
	}
}
