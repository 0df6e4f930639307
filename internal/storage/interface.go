package storage

import (
	"context"

	"github.com/mcoot/battleship-go/internal/model"
)

// Storage defines the interface for data persistence
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, username model.Identity) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	IncrementStats(ctx context.Context, username model.Identity, outcome model.Outcome) error

	// Match operations

	// SaveMatch stores a finished match. Saving an ID that already exists is
	// a no-op and reports false so callers can skip stat updates on retries.
	// A backend may report true together with an error when the match was
	// stored but a secondary write failed.
	SaveMatch(ctx context.Context, match *model.MatchRecord) (bool, error)
	GetMatch(ctx context.Context, id model.MatchID) (*model.MatchRecord, error)
	ListMatchesForPlayer(ctx context.Context, username model.Identity, limit int) ([]*model.MatchRecord, error)

	Close() error
}
