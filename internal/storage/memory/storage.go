package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	users   map[model.Identity]*model.User
	matches map[model.MatchID]*model.MatchRecord
	order   []model.MatchID // insertion order, oldest first
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		users:   make(map[model.Identity]*model.User),
		matches: make(map[model.MatchID]*model.MatchRecord),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return model.ErrUserExists
	}
	stored := *user
	s.users[user.Username] = &stored
	return nil
}

func (s *Storage) GetUser(ctx context.Context, username model.Identity) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Storage) IncrementStats(ctx context.Context, username model.Identity, outcome model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return model.ErrUserNotFound
	}
	user.Stats = user.Stats.Apply(outcome)
	return nil
}

// Match operations

func (s *Storage) SaveMatch(ctx context.Context, match *model.MatchRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[match.ID]; ok {
		return false, nil
	}
	stored := *match
	s.matches[match.ID] = &stored
	s.order = append(s.order, match.ID)
	return true, nil
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[id]
	if !ok {
		return nil, model.ErrMatchNotFound
	}
	out := *match
	return &out, nil
}

func (s *Storage) ListMatchesForPlayer(ctx context.Context, username model.Identity, limit int) ([]*model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.MatchRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		match := s.matches[s.order[i]]
		if match.Involves(username) {
			m := *match
			out = append(out, &m)
		}
	}
	return out, nil
}

func (s *Storage) Close() error {
	return nil
}
