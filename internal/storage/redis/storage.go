package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Stored shapes. Counters live in a separate hash so increments stay atomic.

type userRecord struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type matchRecord struct {
	ID         string    `json:"id"`
	Player1    string    `json:"player1"`
	Player2    string    `json:"player2"`
	Winner     string    `json:"winner"`
	Loser      string    `json:"loser"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
	Forfeit    bool      `json:"forfeit,omitempty"`
}

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(userRecord{
		Username:     string(user.Username),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	})
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, userKey(user.Username), data, 0).Result()
	if err != nil {
		return err
	}
	if !created {
		return model.ErrUserExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, statsKey(user.Username),
		fieldWins, user.Stats.Wins,
		fieldLosses, user.Stats.Losses,
		fieldGamesPlayed, user.Stats.GamesPlayed,
	)
	pipe.SAdd(ctx, usersIndexKey(), string(user.Username))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetUser(ctx context.Context, username model.Identity) (*model.User, error) {
	pipe := s.client.Pipeline()
	userCmd := pipe.Get(ctx, userKey(username))
	statsCmd := pipe.HGetAll(ctx, statsKey(username))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data, err := userCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}
	return decodeUser(data, statsCmd.Val())
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	names, err := s.client.SMembers(ctx, usersIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	userCmds := make([]*redis.StringCmd, len(names))
	statsCmds := make([]*redis.MapStringStringCmd, len(names))
	for i, name := range names {
		userCmds[i] = pipe.Get(ctx, userKey(model.Identity(name)))
		statsCmds[i] = pipe.HGetAll(ctx, statsKey(model.Identity(name)))
	}
	if len(names) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
	}

	users := make([]*model.User, 0, len(names))
	for i := range names {
		data, err := userCmds[i].Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		user, err := decodeUser(data, statsCmds[i].Val())
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Storage) IncrementStats(ctx context.Context, username model.Identity, outcome model.Outcome) error {
	exists, err := s.client.Exists(ctx, userKey(username)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return model.ErrUserNotFound
	}

	pipe := s.client.TxPipeline()
	switch outcome {
	case model.OutcomeWin:
		pipe.HIncrBy(ctx, statsKey(username), fieldWins, 1)
	case model.OutcomeLoss:
		pipe.HIncrBy(ctx, statsKey(username), fieldLosses, 1)
	}
	pipe.HIncrBy(ctx, statsKey(username), fieldGamesPlayed, 1)
	_, err = pipe.Exec(ctx)
	return err
}

func decodeUser(data []byte, stats map[string]string) (*model.User, error) {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &model.User{
		Username:     model.Identity(rec.Username),
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
		Stats: model.Stats{
			Wins:        atoi(stats[fieldWins]),
			Losses:      atoi(stats[fieldLosses]),
			GamesPlayed: atoi(stats[fieldGamesPlayed]),
		},
	}, nil
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

// Match operations

func (s *Storage) SaveMatch(ctx context.Context, match *model.MatchRecord) (bool, error) {
	data, err := json.Marshal(matchRecord{
		ID:         string(match.ID),
		Player1:    string(match.Player1),
		Player2:    string(match.Player2),
		Winner:     string(match.Winner),
		Loser:      string(match.Loser),
		DurationMS: match.Duration.Milliseconds(),
		FinishedAt: match.FinishedAt,
		Forfeit:    match.Forfeit,
	})
	if err != nil {
		return false, err
	}

	created, err := s.client.SetNX(ctx, matchKey(match.ID), data, 0).Result()
	if err != nil || !created {
		return false, err
	}

	pipe := s.client.TxPipeline()
	for _, player := range []model.Identity{match.Player1, match.Player2} {
		key := playerMatchesIndexKey(player)
		pipe.LPush(ctx, key, string(match.ID))
		if s.cfg.HistoryLength > 0 {
			pipe.LTrim(ctx, key, 0, s.cfg.HistoryLength-1)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.MatchRecord, error) {
	data, err := s.client.Get(ctx, matchKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrMatchNotFound
		}
		return nil, err
	}
	return decodeMatch(data)
}

func (s *Storage) ListMatchesForPlayer(ctx context.Context, username model.Identity, limit int) ([]*model.MatchRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.LRange(ctx, playerMatchesIndexKey(username), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = matchKey(model.MatchID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	matches := make([]*model.MatchRecord, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		match, err := decodeMatch([]byte(str))
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func decodeMatch(data []byte) (*model.MatchRecord, error) {
	var rec matchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &model.MatchRecord{
		ID:         model.MatchID(rec.ID),
		Player1:    model.Identity(rec.Player1),
		Player2:    model.Identity(rec.Player2),
		Winner:     model.Identity(rec.Winner),
		Loser:      model.Identity(rec.Loser),
		Duration:   time.Duration(rec.DurationMS) * time.Millisecond,
		FinishedAt: rec.FinishedAt,
		Forfeit:    rec.Forfeit,
	}, nil
}
