// Package match records finished matches and answers stats queries.
package match

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/storage"
)

// ErrRecorderClosed is returned by Close when called twice
var ErrRecorderClosed = errors.New("recorder closed")

// Publisher fans finished matches out to other systems
type Publisher interface {
	PublishMatch(ctx context.Context, rec model.MatchRecord) error
}

// RecorderConfig tunes the background persistence of finished matches
type RecorderConfig struct {
	QueueSize    int
	Timeout      time.Duration // per attempt
	MaxAttempts  int
	RetryBackoff time.Duration // multiplied by the attempt number
}

// DefaultRecorderConfig returns the production recorder settings
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:    256,
		Timeout:      5 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Recorder persists finished matches and their stat increments on a single
// background worker so game logic never waits on storage.
type Recorder struct {
	storage   storage.Storage
	publisher Publisher
	cfg       RecorderConfig
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan model.MatchRecord
	done   chan struct{}
}

// NewRecorder starts the recorder's worker. publisher may be nil.
func NewRecorder(storage storage.Storage, publisher Publisher, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	r := &Recorder{
		storage:   storage,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "match_recorder")),
		queue:     make(chan model.MatchRecord, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues a finished match. It never blocks; a full queue drops the
// record with an error log.
func (r *Recorder) Record(rec model.MatchRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Error("recorder closed, dropping match", slog.String("match_id", string(rec.ID)))
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.logger.Error("recorder queue full, dropping match", slog.String("match_id", string(rec.ID)))
	}
}

// Close stops accepting records and waits for queued ones to be persisted
// or for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		r.persist(rec)
	}
}

func (r *Recorder) persist(rec model.MatchRecord) {
	logger := r.logger.With(slog.String("match_id", string(rec.ID)))

	// A storage write can fail after the match row landed. Once any attempt
	// reports the match as new, later attempts see it as a duplicate, so the
	// flag sticks and the stats are still owed.
	var created bool
	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		var ok bool
		ok, err = r.save(rec)
		created = created || ok
		if err == nil {
			break
		}
		logger.Warn("failed to save match",
			slog.Int("attempt", attempt),
			slog.Bool("created", created),
			slog.String("error", err.Error()))
		if attempt < r.cfg.MaxAttempts {
			time.Sleep(r.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	switch {
	case err != nil && !created:
		logger.Error("giving up on match", slog.String("error", err.Error()))
		return
	case err != nil:
		logger.Error("match stored with incomplete history", slog.String("error", err.Error()))
	case !created:
		logger.Debug("match already recorded")
		return
	}

	for _, inc := range []struct {
		id      model.Identity
		outcome model.Outcome
	}{
		{rec.Winner, model.OutcomeWin},
		{rec.Loser, model.OutcomeLoss},
	} {
		if err := r.incrementStats(inc.id, inc.outcome); err != nil {
			logger.Error("failed to update stats",
				slog.String("identity", string(inc.id)),
				slog.String("error", err.Error()))
		}
	}

	if r.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		if err := r.publisher.PublishMatch(ctx, rec); err != nil {
			logger.Warn("failed to publish match", slog.String("error", err.Error()))
		}
		cancel()
	}

	logger.Info("match recorded",
		slog.String("winner", string(rec.Winner)),
		slog.String("loser", string(rec.Loser)),
		slog.Int64("duration_seconds", rec.DurationSeconds()),
		slog.Bool("forfeit", rec.Forfeit))
}

// incrementStats retries a single counter update. Unknown users are not
// retried.
func (r *Recorder) incrementStats(id model.Identity, outcome model.Outcome) error {
	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		err = r.storage.IncrementStats(ctx, id, outcome)
		cancel()
		if err == nil || errors.Is(err, model.ErrUserNotFound) {
			return err
		}
		if attempt < r.cfg.MaxAttempts {
			time.Sleep(r.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	return err
}

func (r *Recorder) save(rec model.MatchRecord) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	return r.storage.SaveMatch(ctx, &rec)
}
