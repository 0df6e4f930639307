package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/storage"
	"github.com/mcoot/battleship-go/internal/storage/postgres/migrations"
)

const uniqueViolation = "23505"

// Storage is a Postgres-backed implementation of the storage interface
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to Postgres, applying migrations first when configured
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	if cfg.Migrate {
		if err := Migrate(cfg.URL, logger); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// NewWithPool creates a Postgres storage with an existing pool (for testing)
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Migrate applies all pending embedded migrations
func Migrate(databaseURL string, logger *slog.Logger) error {
	m, err := migrations.New(databaseURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

// Close closes the connection pool
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, wins, losses, games_played, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(user.Username), user.PasswordHash,
		user.Stats.Wins, user.Stats.Losses, user.Stats.GamesPlayed,
		user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ErrUserExists
	}
	return err
}

const userColumns = `username, password_hash, wins, losses, games_played, created_at`

func (s *Storage) GetUser(ctx context.Context, username model.Identity) (*model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, string(username))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	return user, err
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Storage) IncrementStats(ctx context.Context, username model.Identity, outcome model.Outcome) error {
	var win, loss int
	switch outcome {
	case model.OutcomeWin:
		win = 1
	case model.OutcomeLoss:
		loss = 1
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE users
		 SET wins = wins + $2, losses = losses + $3, games_played = games_played + 1
		 WHERE username = $1`,
		string(username), win, loss,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user     model.User
		username string
	)
	err := row.Scan(&username, &user.PasswordHash,
		&user.Stats.Wins, &user.Stats.Losses, &user.Stats.GamesPlayed,
		&user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.Username = model.Identity(username)
	return &user, nil
}

// Match operations

func (s *Storage) SaveMatch(ctx context.Context, match *model.MatchRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO matches (id, player1, player2, winner, loser, duration_ms, finished_at, forfeit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		string(match.ID), string(match.Player1), string(match.Player2),
		string(match.Winner), string(match.Loser),
		match.Duration.Milliseconds(), match.FinishedAt, match.Forfeit,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const matchColumns = `id, player1, player2, winner, loser, duration_ms, finished_at, forfeit`

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.MatchRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, string(id))
	match, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrMatchNotFound
	}
	return match, err
}

func (s *Storage) ListMatchesForPlayer(ctx context.Context, username model.Identity, limit int) ([]*model.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM matches
		WHERE player1 = $1 OR player2 = $1
		ORDER BY finished_at DESC, seq DESC`
	args := []any{string(username)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*model.MatchRecord
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func scanMatch(row pgx.Row) (*model.MatchRecord, error) {
	var (
		id, p1, p2, winner, loser string
		durationMS                int64
		match                     model.MatchRecord
	)
	err := row.Scan(&id, &p1, &p2, &winner, &loser, &durationMS, &match.FinishedAt, &match.Forfeit)
	if err != nil {
		return nil, err
	}
	match.ID = model.MatchID(id)
	match.Player1 = model.Identity(p1)
	match.Player2 = model.Identity(p2)
	match.Winner = model.Identity(winner)
	match.Loser = model.Identity(loser)
	match.Duration = time.Duration(durationMS) * time.Millisecond
	return &match, nil
}
