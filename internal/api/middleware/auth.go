package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/battleship-go/internal/api/apierr"
	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/services/auth"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	sessionContextKey  contextKey = "session"
)

// Auth creates authentication middleware
func Auth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := authService.ValidateSession(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, identityContextKey, session.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractToken extracts the session token from the request. Browsers cannot
// set headers on a WebSocket handshake, so the token query parameter is
// accepted as a last resort.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if cookie, err := r.Cookie("session"); err == nil {
		return cookie.Value
	}

	return r.URL.Query().Get("token")
}

// GetIdentity returns the authenticated identity from the request context
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(model.Identity)
	return id, ok && id != ""
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// MustGetIdentity returns the authenticated identity or panics
func MustGetIdentity(ctx context.Context) model.Identity {
	id, ok := GetIdentity(ctx)
	if !ok {
		panic("no identity in context - auth middleware not applied?")
	}
	return id
}
