package model

import (
	"math"
	"time"
)

// Identity is the authenticated name a connection acts under.
// Registered usernames are used directly as identities.
type Identity string

// User is a registered account together with its lifetime statistics
type User struct {
	Username     Identity
	PasswordHash string // bcrypt hash
	Stats        Stats
	CreatedAt    time.Time
}

// Stats holds the win/loss counters maintained by the match recorder
type Stats struct {
	Wins        int
	Losses      int
	GamesPlayed int
}

// WinRate returns wins as a percentage of games played, rounded to two places
func (s Stats) WinRate() float64 {
	if s.GamesPlayed == 0 {
		return 0
	}
	rate := float64(s.Wins) / float64(s.GamesPlayed) * 100
	return math.Round(rate*100) / 100
}

// Outcome is the result of a finished match from one player's point of view
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// Apply returns the stats after counting one more game with the given outcome
func (s Stats) Apply(outcome Outcome) Stats {
	switch outcome {
	case OutcomeWin:
		s.Wins++
	case OutcomeLoss:
		s.Losses++
	}
	s.GamesPlayed++
	return s
}
