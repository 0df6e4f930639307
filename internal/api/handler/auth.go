package handler

import (
	"net/http"

	"github.com/mcoot/battleship-go/internal/api/middleware"
	"github.com/mcoot/battleship-go/internal/api/request"
	"github.com/mcoot/battleship-go/internal/api/response"
	"github.com/mcoot/battleship-go/internal/services/auth"
	"github.com/mcoot/battleship-go/internal/services/match"
)

// AuthHandler handles account endpoints
type AuthHandler struct {
	authService  *auth.Service
	matchService *match.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, matchService *match.Service) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		matchService: matchService,
	}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, err := h.authService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Token(w, http.StatusCreated, response.AuthResponseFromSession(session))
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if req.Username == "" || req.Password == "" {
		WriteError(w, NewInvalidRequestError("username and password are required"))
		return
	}

	session, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Token(w, http.StatusOK, response.AuthResponseFromSession(session))
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.GetSession(r.Context()); session != nil {
		h.authService.InvalidateSession(session.Token)
	}
	response.NoContent(w)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.MustGetIdentity(r.Context())

	profile, err := h.matchService.Profile(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ProfileFromService(profile))
}
