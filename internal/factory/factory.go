package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcoot/battleship-go/internal/api"
	"github.com/mcoot/battleship-go/internal/broker"
	"github.com/mcoot/battleship-go/internal/config"
	"github.com/mcoot/battleship-go/internal/dependencies/clock"
	"github.com/mcoot/battleship-go/internal/dependencies/random"
	"github.com/mcoot/battleship-go/internal/dispatch"
	"github.com/mcoot/battleship-go/internal/services/auth"
	"github.com/mcoot/battleship-go/internal/services/match"
	"github.com/mcoot/battleship-go/internal/services/room"
	"github.com/mcoot/battleship-go/internal/storage"
	"github.com/mcoot/battleship-go/internal/storage/memory"
	"github.com/mcoot/battleship-go/internal/storage/postgres"
	redisstorage "github.com/mcoot/battleship-go/internal/storage/redis"
	"github.com/mcoot/battleship-go/internal/ws"
)

// Storage type constants
const (
	StorageTypeMemory   = config.StorageMemory
	StorageTypeRedis    = config.StorageRedis
	StorageTypePostgres = config.StoragePostgres
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Realtime core
	Hub        *ws.Hub
	Rooms      *room.Store
	Dispatcher *dispatch.Dispatcher

	// Services
	AuthService  *auth.Service
	MatchService *match.Service
	Recorder     *match.Recorder

	// Publisher is nil unless a broker was configured
	Publisher *broker.Publisher

	allowedOrigins []string
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds Postgres settings (required if StorageType is "postgres")
	PostgresConfig *postgres.Config
	// BrokerConfig enables publishing finished matches to NATS (optional)
	BrokerConfig *broker.Config
	// AuthConfig holds configuration for the auth service (optional)
	// If zero value, defaults to auth.DefaultConfig()
	AuthConfig auth.Config
	// RecorderConfig tunes match persistence (optional)
	RecorderConfig match.RecorderConfig
	// AllowedOrigins restricts WebSocket origins; empty allows any
	AllowedOrigins []string
}

// FromConfig translates loaded settings into a factory config
func FromConfig(c *config.Config, logger *slog.Logger) Config {
	cfg := Config{
		Logger:      logger,
		StorageType: c.Storage.Type,
		AuthConfig: auth.Config{
			SessionDuration: c.Auth.SessionDuration,
		},
		RecorderConfig: match.RecorderConfig{
			QueueSize:    c.Recorder.QueueSize,
			Timeout:      c.Recorder.Timeout,
			MaxAttempts:  c.Recorder.MaxAttempts,
			RetryBackoff: c.Recorder.RetryBackoff,
		},
		AllowedOrigins: c.Server.AllowedOrigins,
	}

	switch c.Storage.Type {
	case StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.Redis.URL
		if c.Redis.PoolSize > 0 {
			redisCfg.PoolSize = c.Redis.PoolSize
		}
		if c.Redis.MinIdleConns > 0 {
			redisCfg.MinIdleConns = c.Redis.MinIdleConns
		}
		if c.Redis.HistoryLength > 0 {
			redisCfg.HistoryLength = c.Redis.HistoryLength
		}
		cfg.RedisConfig = &redisCfg
	case StorageTypePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = c.Postgres.URL
		pgCfg.Migrate = c.Postgres.Migrate
		if c.Postgres.MaxConns > 0 {
			pgCfg.MaxConns = c.Postgres.MaxConns
		}
		if c.Postgres.MinConns > 0 {
			pgCfg.MinConns = c.Postgres.MinConns
		}
		cfg.PostgresConfig = &pgCfg
	}

	if c.NATS.URL != "" {
		brokerCfg := broker.DefaultConfig()
		brokerCfg.URL = c.NATS.URL
		brokerCfg.StreamName = c.NATS.Stream
		brokerCfg.Subject = c.NATS.Subject
		if c.NATS.MaxAge > 0 {
			brokerCfg.MaxAge = c.NATS.MaxAge
		}
		cfg.BrokerConfig = &brokerCfg
	}

	return cfg
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var publisher *broker.Publisher
	if cfg.BrokerConfig != nil {
		publisher, err = broker.New(*cfg.BrokerConfig, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	// Use default auth config if not provided
	authCfg := cfg.AuthConfig
	if authCfg.SessionDuration == 0 {
		authCfg = auth.DefaultConfig()
	}

	app := newWithDependencies(store, publisher, clk, rnd, authCfg, cfg.RecorderConfig, logger)
	app.allowedOrigins = cfg.AllowedOrigins
	return app, nil
}

func newStorage(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		return postgres.New(ctx, *cfg.PostgresConfig, logger)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'postgres'", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	publisher *broker.Publisher,
	clk clock.Clock,
	rnd random.Random,
	authCfg auth.Config,
	recCfg match.RecorderConfig,
	logger *slog.Logger,
) *App {
	// A nil *broker.Publisher must not become a non-nil interface
	var matchPublisher match.Publisher
	if publisher != nil {
		matchPublisher = publisher
	}

	hub := ws.NewHub(logger)
	rooms := room.NewStore(clk, rnd, logger)
	recorder := match.NewRecorder(store, matchPublisher, recCfg, logger)
	dispatcher := dispatch.New(rooms, hub, recorder, clk, logger)

	return &App{
		Storage:      store,
		Clock:        clk,
		Random:       rnd,
		Logger:       logger,
		Hub:          hub,
		Rooms:        rooms,
		Dispatcher:   dispatcher,
		AuthService:  auth.New(store, clk, authCfg, logger),
		MatchService: match.NewService(store, logger),
		Recorder:     recorder,
		Publisher:    publisher,
	}
}

// Handler builds the HTTP handler serving the API and game connections
func (a *App) Handler() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:         a.Logger,
		AuthService:    a.AuthService,
		MatchService:   a.MatchService,
		Rooms:          a.Rooms,
		Hub:            a.Hub,
		Dispatcher:     a.Dispatcher,
		AllowedOrigins: a.allowedOrigins,
	})
}

// Close tears the application down: live connections and rooms first, then
// the recorder is drained before the broker and storage are released.
func (a *App) Close(ctx context.Context) error {
	a.Hub.Close()
	a.Rooms.Close()

	var errs []error
	if err := a.Recorder.Close(ctx); err != nil && !errors.Is(err, match.ErrRecorderClosed) {
		errs = append(errs, fmt.Errorf("drain recorder: %w", err))
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}
	if err := a.Storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
