package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/battleship-go/internal/model"
)

// CommandType is the "type" discriminator of an inbound message
type CommandType string

const (
	CmdCreateRoom CommandType = "create_room"
	CmdJoinRoom   CommandType = "join_room"
	CmdPlaceShips CommandType = "place_ships"
	CmdAttack     CommandType = "attack"
	CmdChat       CommandType = "chat"
	CmdLeaveRoom  CommandType = "leave_room"
)

// Command is one of the closed set of inbound commands
type Command interface {
	Type() CommandType
}

// CreateRoom opens a new room with the sender as host
type CreateRoom struct{}

// JoinRoom joins an existing room by code
type JoinRoom struct {
	RoomCode string
}

// PlaceShips submits the sender's fleet
type PlaceShips struct {
	Ships model.Board
}

// Attack fires at a cell on the opponent's board
type Attack struct {
	X int
	Y int
}

// Chat relays a message to the sender's room
type Chat struct {
	Message string
}

// LeaveRoom removes the sender from their room
type LeaveRoom struct{}

func (CreateRoom) Type() CommandType { return CmdCreateRoom }
func (JoinRoom) Type() CommandType   { return CmdJoinRoom }
func (PlaceShips) Type() CommandType { return CmdPlaceShips }
func (Attack) Type() CommandType     { return CmdAttack }
func (Chat) Type() CommandType       { return CmdChat }
func (LeaveRoom) Type() CommandType  { return CmdLeaveRoom }

// Wire shapes

type envelope struct {
	Type CommandType `json:"type"`
}

type joinRoomPayload struct {
	RoomCode *string `json:"room_code"`
}

// CoordPayload is a ship cell on the wire
type CoordPayload struct {
	X   int  `json:"x"`
	Y   int  `json:"y"`
	Hit bool `json:"hit,omitempty"`
}

// ShipPayload is a ship on the wire
type ShipPayload struct {
	Coords []CoordPayload `json:"coords"`
}

type placeShipsPayload struct {
	Ships map[string]ShipPayload `json:"ships"`
}

type attackPayload struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

type chatPayload struct {
	Message *string `json:"message"`
}

// Decode parses a raw inbound message into a typed command. Errors wrap
// model.ErrMalformedMessage or model.ErrUnknownCommand.
func Decode(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}

	switch env.Type {
	case CmdCreateRoom:
		return CreateRoom{}, nil

	case CmdLeaveRoom:
		return LeaveRoom{}, nil

	case CmdJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(env.Type, err)
		}
		if p.RoomCode == nil || *p.RoomCode == "" {
			return nil, fmt.Errorf("%w: join_room requires room_code", model.ErrMalformedMessage)
		}
		return JoinRoom{RoomCode: *p.RoomCode}, nil

	case CmdPlaceShips:
		var p placeShipsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(env.Type, err)
		}
		if p.Ships == nil {
			return nil, fmt.Errorf("%w: place_ships requires ships", model.ErrMalformedMessage)
		}
		return PlaceShips{Ships: BoardFromPayload(p.Ships)}, nil

	case CmdAttack:
		var p attackPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(env.Type, err)
		}
		if p.X == nil || p.Y == nil {
			return nil, fmt.Errorf("%w: attack requires x and y", model.ErrMalformedMessage)
		}
		return Attack{X: *p.X, Y: *p.Y}, nil

	case CmdChat:
		var p chatPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(env.Type, err)
		}
		if p.Message == nil {
			return nil, fmt.Errorf("%w: chat requires message", model.ErrMalformedMessage)
		}
		return Chat{Message: *p.Message}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", model.ErrMalformedMessage)

	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCommand, env.Type)
	}
}

func malformed(t CommandType, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrMalformedMessage, t, err)
}

// BoardFromPayload converts a wire fleet to the model board
func BoardFromPayload(ships map[string]ShipPayload) model.Board {
	board := make(model.Board, len(ships))
	for name, ship := range ships {
		coords := make([]model.Coord, len(ship.Coords))
		for i, c := range ship.Coords {
			coords[i] = model.Coord{X: c.X, Y: c.Y, Hit: c.Hit}
		}
		board[name] = model.Ship{Coords: coords}
	}
	return board
}

// PayloadFromBoard converts a model board to its wire form
func PayloadFromBoard(board model.Board) map[string]ShipPayload {
	ships := make(map[string]ShipPayload, len(board))
	for name, ship := range board {
		coords := make([]CoordPayload, len(ship.Coords))
		for i, c := range ship.Coords {
			coords[i] = CoordPayload{X: c.X, Y: c.Y, Hit: c.Hit}
		}
		ships[name] = ShipPayload{Coords: coords}
	}
	return ships
}

// Wire builders used by clients

// CreateRoomMessage returns the wire form of create_room
func CreateRoomMessage() map[string]any {
	return map[string]any{"type": CmdCreateRoom}
}

// JoinRoomMessage returns the wire form of join_room
func JoinRoomMessage(code string) map[string]any {
	return map[string]any{"type": CmdJoinRoom, "room_code": code}
}

// PlaceShipsMessage returns the wire form of place_ships
func PlaceShipsMessage(board model.Board) map[string]any {
	return map[string]any{"type": CmdPlaceShips, "ships": PayloadFromBoard(board)}
}

// AttackMessage returns the wire form of attack
func AttackMessage(x, y int) map[string]any {
	return map[string]any{"type": CmdAttack, "x": x, "y": y}
}

// ChatMessage returns the wire form of chat
func ChatMessage(text string) map[string]any {
	return map[string]any{"type": CmdChat, "message": text}
}

// LeaveRoomMessage returns the wire form of leave_room
func LeaveRoomMessage() map[string]any {
	return map[string]any{"type": CmdLeaveRoom}
}
