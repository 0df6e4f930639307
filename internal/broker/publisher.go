// Package broker publishes finished matches to NATS JetStream for
// downstream consumers such as analytics or notification services.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mcoot/battleship-go/internal/model"
)

// Config holds NATS connection and stream settings
type Config struct {
	URL        string
	StreamName string
	Subject    string
	MaxAge     time.Duration
}

// DefaultConfig returns the default broker configuration
func DefaultConfig() Config {
	return Config{
		URL:        nats.DefaultURL,
		StreamName: "BATTLESHIP_MATCHES",
		Subject:    "battleship.matches.finished",
		MaxAge:     30 * 24 * time.Hour,
	}
}

// MatchFinished is the message body published for each finished match
type MatchFinished struct {
	ID              string    `json:"id"`
	Player1         string    `json:"player1"`
	Player2         string    `json:"player2"`
	Winner          string    `json:"winner"`
	Loser           string    `json:"loser"`
	DurationSeconds int64     `json:"duration_seconds"`
	FinishedAt      time.Time `json:"finished_at"`
	Forfeit         bool      `json:"forfeit"`
}

// NewMatchFinished builds the message body for a match record
func NewMatchFinished(rec model.MatchRecord) MatchFinished {
	return MatchFinished{
		ID:              string(rec.ID),
		Player1:         string(rec.Player1),
		Player2:         string(rec.Player2),
		Winner:          string(rec.Winner),
		Loser:           string(rec.Loser),
		DurationSeconds: rec.DurationSeconds(),
		FinishedAt:      rec.FinishedAt,
		Forfeit:         rec.Forfeit,
	}
}

// Publisher publishes match events to a JetStream stream
type Publisher struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	logger  *slog.Logger
}

// New connects to NATS and ensures the match stream exists
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	logger = logger.With(slog.String("component", "broker"))

	conn, err := nats.Connect(cfg.URL,
		nats.Name("battleship-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}

	p := &Publisher{conn: conn, js: js, subject: cfg.Subject, logger: logger}
	if err := p.ensureStream(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream(cfg Config) error {
	_, err := p.js.StreamInfo(cfg.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("look up stream %s: %w", cfg.StreamName, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    cfg.MaxAge,
		Discard:   nats.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}
	p.logger.Info("created stream", slog.String("stream", cfg.StreamName))
	return nil
}

// PublishMatch publishes one finished match. The message ID is the match ID
// so JetStream drops duplicates from recorder retries.
func (p *Publisher) PublishMatch(ctx context.Context, rec model.MatchRecord) error {
	data, err := json.Marshal(NewMatchFinished(rec))
	if err != nil {
		return err
	}

	_, err = p.js.Publish(p.subject, data, nats.Context(ctx), nats.MsgId(string(rec.ID)))
	return err
}

// Close drains and closes the NATS connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
