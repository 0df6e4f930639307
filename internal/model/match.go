package model

import "time"

// MatchID uniquely identifies a finished match
type MatchID string

// MatchRecord is built once when a winner is decided and handed to the recorder
type MatchRecord struct {
	ID         MatchID
	Player1    Identity // host
	Player2    Identity
	Winner     Identity
	Loser      Identity
	Duration   time.Duration
	FinishedAt time.Time
	Forfeit    bool // true if the loser left or disconnected mid-game
}

// DurationSeconds returns the match duration truncated to whole seconds
func (m MatchRecord) DurationSeconds() int64 {
	return int64(m.Duration / time.Second)
}

// Involves returns true if the identity played in the match
func (m MatchRecord) Involves(id Identity) bool {
	return m.Player1 == id || m.Player2 == id
}
