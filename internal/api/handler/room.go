package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/battleship-go/internal/api/response"
	"github.com/mcoot/battleship-go/internal/services/room"
	"github.com/mcoot/battleship-go/internal/ws"
)

// StatusHandler serves room lookups and the health check
type StatusHandler struct {
	rooms *room.Store
	hub   *ws.Hub
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(rooms *room.Store, hub *ws.Hub) *StatusHandler {
	return &StatusHandler{rooms: rooms, hub: hub}
}

// Room handles GET /api/v1/rooms/{code}
func (h *StatusHandler) Room(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rooms.Get(mux.Vars(r)["code"])
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomFromModel(snap))
}

// Health handles GET /api/v1/health
func (h *StatusHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{
		Status:      "ok",
		Connections: h.hub.Count(),
		Rooms:       h.rooms.Count(),
	})
}
