package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case AuthResult:
		o.printAuthResult(v)
	case Profile:
		o.printProfile(v)
	case Leaderboard:
		o.printLeaderboard(v)
	case History:
		o.printHistory(v)
	case Room:
		o.printRoom(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// AuthResult response type (matches API)
type AuthResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Profile response type
type Profile struct {
	Username    string    `json:"username"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	GamesPlayed int       `json:"games_played"`
	WinRate     float64   `json:"win_rate"`
	CreatedAt   time.Time `json:"created_at"`
}

// LeaderboardEntry response type
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	Username    string  `json:"username"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GamesPlayed int     `json:"games_played"`
	WinRate     float64 `json:"win_rate"`
}

// Leaderboard is the ranked list returned by the API
type Leaderboard []LeaderboardEntry

// Match response type
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

// History is the match list returned by the API
type History []Match

// Room response type
type Room struct {
	Code    string   `json:"code"`
	Host    string   `json:"host"`
	Players []string `json:"players"`
	Status  string   `json:"status"`
}

// HealthResult response type
type HealthResult struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

func (o *Output) printAuthResult(a AuthResult) {
	fmt.Printf("Logged in as: %s\n", a.Username)
	fmt.Printf("Token: %s\n", a.AccessToken)
	if !a.ExpiresAt.IsZero() {
		fmt.Printf("Expires: %s\n", a.ExpiresAt.Local().Format(time.DateTime))
	}
}

func (o *Output) printProfile(p Profile) {
	fmt.Printf("Player: %s\n", p.Username)
	fmt.Printf("Record: %d wins, %d losses (%d games)\n", p.Wins, p.Losses, p.GamesPlayed)
	fmt.Printf("Win rate: %.2f%%\n", p.WinRate)
	fmt.Printf("Member since: %s\n", p.CreatedAt.Local().Format(time.DateOnly))
}

func (o *Output) printLeaderboard(l Leaderboard) {
	if len(l) == 0 {
		fmt.Println("No players yet")
		return
	}
	fmt.Printf("%-4s %-20s %5s %6s %6s %8s\n", "#", "PLAYER", "WINS", "LOSSES", "GAMES", "WIN RATE")
	for _, e := range l {
		fmt.Printf("%-4d %-20s %5d %6d %6d %7.2f%%\n", e.Rank, e.Username, e.Wins, e.Losses, e.GamesPlayed, e.WinRate)
	}
}

func (o *Output) printHistory(h History) {
	if len(h) == 0 {
		fmt.Println("No matches played")
		return
	}
	for _, m := range h {
		forfeit := ""
		if m.Forfeit {
			forfeit = " (forfeit)"
		}
		fmt.Printf("%s  %s vs %s  winner: %s%s  %s\n",
			m.FinishedAt.Local().Format(time.DateTime),
			m.Player1, m.Player2, m.Winner, forfeit,
			(time.Duration(m.DurationSeconds) * time.Second).String())
	}
}

func (o *Output) printRoom(r Room) {
	fmt.Printf("Room: %s\n", r.Code)
	fmt.Printf("Status: %s\n", r.Status)
	fmt.Printf("Host: %s\n", r.Host)
	fmt.Printf("Players: %s\n", strings.Join(r.Players, ", "))
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Connections: %d\n", h.Connections)
	fmt.Printf("Rooms: %d\n", h.Rooms)
}
