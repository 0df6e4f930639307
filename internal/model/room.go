package model

// RoomCode is the six character code players exchange to join a room
type RoomCode string

// RoomStatus is derived from whether a session exists and its phase
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"   // Host alone, no session
	RoomStatusPlacement RoomStatus = "placement" // Both players placing ships
	RoomStatusPlaying   RoomStatus = "playing"   // Attacks in progress
	RoomStatusFinished  RoomStatus = "finished"  // Winner decided, room about to be removed
)

// Room is a point-in-time snapshot of a room's membership
type Room struct {
	Code    RoomCode
	Host    Identity
	Players []Identity
	Status  RoomStatus
}

// HasPlayer returns true if the identity is a member of the room
func (r Room) HasPlayer(id Identity) bool {
	for _, p := range r.Players {
		if p == id {
			return true
		}
	}
	return false
}

// Opponent returns the other member of a two-player room, or "" if none
func (r Room) Opponent(id Identity) Identity {
	for _, p := range r.Players {
		if p != id {
			return p
		}
	}
	return ""
}
