package response

import (
	"time"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/services/auth"
	"github.com/mcoot/battleship-go/internal/services/match"
)

// TokenTypeBearer is the token_type of every issued access token
const TokenTypeBearer = "bearer"

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		AccessToken: s.Token,
		TokenType:   TokenTypeBearer,
		Username:    string(s.Username),
		ExpiresAt:   s.ExpiresAt,
	}
}

// Profile represents a player's account and stats
type Profile struct {
	Username    string    `json:"username"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	GamesPlayed int       `json:"games_played"`
	WinRate     float64   `json:"win_rate"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProfileFromService converts a match.Profile
func ProfileFromService(p *match.Profile) Profile {
	return Profile{
		Username:    string(p.Username),
		Wins:        p.Wins,
		Losses:      p.Losses,
		GamesPlayed: p.GamesPlayed,
		WinRate:     p.WinRate,
		CreatedAt:   p.CreatedAt,
	}
}

// LeaderboardEntry is one ranked row of the leaderboard
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	Username    string  `json:"username"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GamesPlayed int     `json:"games_played"`
	WinRate     float64 `json:"win_rate"`
}

// LeaderboardFromStandings converts match standings
func LeaderboardFromStandings(standings []match.Standing) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, len(standings))
	for i, s := range standings {
		entries[i] = LeaderboardEntry{
			Rank:        s.Rank,
			Username:    string(s.Username),
			Wins:        s.Wins,
			Losses:      s.Losses,
			GamesPlayed: s.GamesPlayed,
			WinRate:     s.WinRate,
		}
	}
	return entries
}

// Match represents a finished match in history responses
type Match struct {
	ID              string    `json:"id"`
	Player1         string    `json:"player1"`
	Player2         string    `json:"player2"`
	Winner          string    `json:"winner"`
	Loser           string    `json:"loser"`
	DurationSeconds int64     `json:"duration_seconds"`
	FinishedAt      time.Time `json:"finished_at"`
	Forfeit         bool      `json:"forfeit"`
}

// MatchesFromModel converts match records
func MatchesFromModel(records []*model.MatchRecord) []Match {
	matches := make([]Match, len(records))
	for i, m := range records {
		matches[i] = Match{
			ID:              string(m.ID),
			Player1:         string(m.Player1),
			Player2:         string(m.Player2),
			Winner:          string(m.Winner),
			Loser:           string(m.Loser),
			DurationSeconds: m.DurationSeconds(),
			FinishedAt:      m.FinishedAt.UTC(),
			Forfeit:         m.Forfeit,
		}
	}
	return matches
}

// Room is a snapshot of a live room
type Room struct {
	Code    string   `json:"code"`
	Host    string   `json:"host"`
	Players []string `json:"players"`
	Status  string   `json:"status"`
}

// RoomFromModel converts model.Room
func RoomFromModel(r model.Room) Room {
	players := make([]string, len(r.Players))
	for i, p := range r.Players {
		players[i] = string(p)
	}
	return Room{
		Code:    string(r.Code),
		Host:    string(r.Host),
		Players: players,
		Status:  string(r.Status),
	}
}

// Health is the health check response
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}
