package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Logging logs one line per request. Upgraded game connections are logged
// when they close, with the lifetime of the connection as the duration.
// Health probes are logged at debug level.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := Wrap(w)

			next.ServeHTTP(wrapped, r)

			msg := "http request"
			if wrapped.Hijacked() {
				msg = "game connection closed"
			}

			logger.LogAttrs(r.Context(), requestLevel(r, wrapped.Status()), msg,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.Status()),
				slog.Int("size", wrapped.Size()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func requestLevel(r *http.Request, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case strings.HasSuffix(r.URL.Path, "/health"):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
