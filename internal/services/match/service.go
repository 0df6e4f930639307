package match

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/storage"
)

const (
	// LeaderboardSize is the number of players returned by Leaderboard
	LeaderboardSize = 10

	// HistorySize is the number of matches returned by History
	HistorySize = 20
)

// Service answers read-side questions about players and finished matches
type Service struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewService creates a match query service
func NewService(storage storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger.With(slog.String("component", "match_service")),
	}
}

// Profile is a player's public account summary
type Profile struct {
	Username    model.Identity
	Wins        int
	Losses      int
	GamesPlayed int
	WinRate     float64
	CreatedAt   time.Time
}

// Standing is one leaderboard row
type Standing struct {
	Rank        int
	Username    model.Identity
	Wins        int
	Losses      int
	GamesPlayed int
	WinRate     float64
}

// Profile returns the player's stats
func (s *Service) Profile(ctx context.Context, id model.Identity) (*Profile, error) {
	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Username:    user.Username,
		Wins:        user.Stats.Wins,
		Losses:      user.Stats.Losses,
		GamesPlayed: user.Stats.GamesPlayed,
		WinRate:     user.Stats.WinRate(),
		CreatedAt:   user.CreatedAt,
	}, nil
}

// Leaderboard ranks players by wins, then win rate. Ties keep a stable
// alphabetical order.
func (s *Service) Leaderboard(ctx context.Context) ([]Standing, error) {
	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i].Stats, users[j].Stats
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.WinRate() != b.WinRate() {
			return a.WinRate() > b.WinRate()
		}
		return users[i].Username < users[j].Username
	})

	if len(users) > LeaderboardSize {
		users = users[:LeaderboardSize]
	}

	standings := make([]Standing, len(users))
	for i, u := range users {
		standings[i] = Standing{
			Rank:        i + 1,
			Username:    u.Username,
			Wins:        u.Stats.Wins,
			Losses:      u.Stats.Losses,
			GamesPlayed: u.Stats.GamesPlayed,
			WinRate:     u.Stats.WinRate(),
		}
	}
	return standings, nil
}

// History returns the player's most recent matches, newest first
func (s *Service) History(ctx context.Context, id model.Identity) ([]*model.MatchRecord, error) {
	return s.storage.ListMatchesForPlayer(ctx, id, HistorySize)
}
