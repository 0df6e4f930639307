package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/mcoot/battleship-go/internal/api/middleware"
	"github.com/mcoot/battleship-go/internal/services/auth"
	"github.com/mcoot/battleship-go/internal/ws"
)

// SocketHandler upgrades authenticated requests to game connections
type SocketHandler struct {
	authService *auth.Service
	hub         *ws.Hub
	handler     ws.Handler
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewSocketHandler creates a new socket handler. An empty allowedOrigins
// accepts any origin.
func NewSocketHandler(authService *auth.Service, hub *ws.Hub, handler ws.Handler, allowedOrigins []string, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		authService: authService,
		hub:         hub,
		handler:     handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		logger: logger.With(slog.String("component", "socket_handler")),
	}
}

// Connect handles GET /api/v1/ws and /api/v1/ws/{token}
func (h *SocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if token == "" {
		token = middleware.ExtractToken(r)
	}

	id, err := h.authService.AuthenticateChannel(token)
	if err != nil {
		h.logger.Debug("rejected connection", slog.String("error", err.Error()))
		WriteError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Warn("websocket upgrade failed",
			slog.String("identity", string(id)),
			slog.String("error", err.Error()))
		return
	}

	h.logger.Info("connection opened", slog.String("identity", string(id)))

	// The connection outlives the request context once hijacked
	ws.NewClient(h.hub, id, conn).Serve(context.WithoutCancel(r.Context()), h.handler)

	h.logger.Info("connection closed", slog.String("identity", string(id)))
}
