package handler

import (
	"net/http"

	"github.com/mcoot/battleship-go/internal/api/middleware"
	"github.com/mcoot/battleship-go/internal/api/response"
	"github.com/mcoot/battleship-go/internal/services/match"
)

// StatsHandler serves the leaderboard and match history
type StatsHandler struct {
	matchService *match.Service
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(matchService *match.Service) *StatsHandler {
	return &StatsHandler{matchService: matchService}
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.matchService.Leaderboard(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.LeaderboardFromStandings(standings))
}

// History handles GET /api/v1/history
func (h *StatsHandler) History(w http.ResponseWriter, r *http.Request) {
	id := middleware.MustGetIdentity(r.Context())

	records, err := h.matchService.History(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MatchesFromModel(records))
}
