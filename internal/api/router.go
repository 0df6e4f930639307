package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/battleship-go/internal/api/handler"
	"github.com/mcoot/battleship-go/internal/api/middleware"
	"github.com/mcoot/battleship-go/internal/services/auth"
	"github.com/mcoot/battleship-go/internal/services/match"
	"github.com/mcoot/battleship-go/internal/services/room"
	"github.com/mcoot/battleship-go/internal/ws"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	AuthService    *auth.Service
	MatchService   *match.Service
	Rooms          *room.Store
	Hub            *ws.Hub
	Dispatcher     ws.Handler
	AllowedOrigins []string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.MatchService)
	statsHandler := handler.NewStatsHandler(cfg.MatchService)
	statusHandler := handler.NewStatusHandler(cfg.Rooms, cfg.Hub)
	socketHandler := handler.NewSocketHandler(cfg.AuthService, cfg.Hub, cfg.Dispatcher, cfg.AllowedOrigins, cfg.Logger)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Account routes (no auth required for registering/logging in)
	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)

	// Public stats
	api.HandleFunc("/leaderboard", statsHandler.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)

	// Game connections authenticate themselves before upgrading
	api.HandleFunc("/ws", socketHandler.Connect).Methods(http.MethodGet)
	api.HandleFunc("/ws/{token}", socketHandler.Connect).Methods(http.MethodGet)

	// Protected routes
	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware)
	protected.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)
	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/history", statsHandler.History).Methods(http.MethodGet)
	protected.HandleFunc("/rooms/{code}", statusHandler.Room).Methods(http.MethodGet)

	return r
}
