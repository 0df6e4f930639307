package protocol

import (
	"time"

	"github.com/mcoot/battleship-go/internal/model"
)

// EventType is the "type" discriminator of an outbound event
type EventType string

const (
	EvtRoomCreated  EventType = "room_created"
	EvtPlayerJoined EventType = "player_joined"
	EvtPlayerReady  EventType = "player_ready"
	EvtGameStart    EventType = "game_start"
	EvtAttackResult EventType = "attack_result"
	EvtGameOver     EventType = "game_over"
	EvtChat         EventType = "chat"
	EvtPlayerLeft   EventType = "player_left"
	EvtRoomLeft     EventType = "room_left"
	EvtError        EventType = "error"
)

// RoomCreated is sent to the host after create_room
type RoomCreated struct {
	Type     EventType `json:"type"`
	RoomCode string    `json:"room_code"`
}

// PlayerJoined is broadcast to the room when the second player joins
type PlayerJoined struct {
	Type    EventType `json:"type"`
	Players []string  `json:"players"`
	Status  string    `json:"status"`
}

// PlayerReady is broadcast when one player has placed ships
type PlayerReady struct {
	Type   EventType `json:"type"`
	Player string    `json:"player"`
}

// GameStart is broadcast when both fleets are placed
type GameStart struct {
	Type        EventType `json:"type"`
	CurrentTurn string    `json:"current_turn"`
}

// AttackResult is broadcast after every non-winning attack
type AttackResult struct {
	Type        EventType `json:"type"`
	Attacker    string    `json:"attacker"`
	X           int       `json:"x"`
	Y           int       `json:"y"`
	Hit         bool      `json:"hit"`
	SunkShip    *string   `json:"sunk_ship"`
	CurrentTurn string    `json:"current_turn"`
}

// GameOver is broadcast once per match
type GameOver struct {
	Type    EventType `json:"type"`
	Winner  string    `json:"winner"`
	Loser   string    `json:"loser"`
	Forfeit bool      `json:"forfeit,omitempty"`
}

// ChatEvent relays a chat message to the room
type ChatEvent struct {
	Type      EventType `json:"type"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PlayerLeft is sent to the remaining player when the other leaves outside a game
type PlayerLeft struct {
	Type    EventType `json:"type"`
	Player  string    `json:"player"`
	Players []string  `json:"players"`
	Status  string    `json:"status"`
}

// RoomLeft confirms leave_room to the sender
type RoomLeft struct {
	Type     EventType `json:"type"`
	RoomCode string    `json:"room_code"`
}

// Error reports a rejected command to its sender
type Error struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Constructors

func NewRoomCreated(code model.RoomCode) RoomCreated {
	return RoomCreated{Type: EvtRoomCreated, RoomCode: string(code)}
}

func NewPlayerJoined(room model.Room) PlayerJoined {
	return PlayerJoined{Type: EvtPlayerJoined, Players: identities(room.Players), Status: string(room.Status)}
}

func NewPlayerReady(player model.Identity) PlayerReady {
	return PlayerReady{Type: EvtPlayerReady, Player: string(player)}
}

func NewGameStart(turn model.Identity) GameStart {
	return GameStart{Type: EvtGameStart, CurrentTurn: string(turn)}
}

func NewAttackResult(attacker model.Identity, x, y int, hit bool, sunk string, turn model.Identity) AttackResult {
	evt := AttackResult{
		Type:        EvtAttackResult,
		Attacker:    string(attacker),
		X:           x,
		Y:           y,
		Hit:         hit,
		CurrentTurn: string(turn),
	}
	if sunk != "" {
		evt.SunkShip = &sunk
	}
	return evt
}

func NewGameOver(rec model.MatchRecord) GameOver {
	return GameOver{Type: EvtGameOver, Winner: string(rec.Winner), Loser: string(rec.Loser), Forfeit: rec.Forfeit}
}

func NewChat(from model.Identity, message string, at time.Time) ChatEvent {
	return ChatEvent{Type: EvtChat, Username: string(from), Message: message, Timestamp: at}
}

func NewPlayerLeft(left model.Identity, room model.Room) PlayerLeft {
	return PlayerLeft{Type: EvtPlayerLeft, Player: string(left), Players: identities(room.Players), Status: string(room.Status)}
}

func NewRoomLeft(code model.RoomCode) RoomLeft {
	return RoomLeft{Type: EvtRoomLeft, RoomCode: string(code)}
}

func identities(ids []model.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Inbound is a generic decoded event used by clients that only need to
// branch on the type before decoding the full payload
type Inbound struct {
	Type EventType `json:"type"`
}
