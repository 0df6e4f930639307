package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
}

func writeTeapot(w http.ResponseWriter, _ *http.Request, _ any) {
	w.WriteHeader(http.StatusTeapot)
}

func TestWrap_ReusesExistingWrapper(t *testing.T) {
	rec := httptest.NewRecorder()
	first := Wrap(rec)
	assert.Same(t, first, Wrap(first))
	assert.Equal(t, http.StatusOK, first.Status())
	assert.False(t, first.Started())
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := Wrap(httptest.NewRecorder())

	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.False(t, rw.Hijacked())
	assert.False(t, rw.Started())
}

func TestResponseWriter_TracksWrites(t *testing.T) {
	rw := Wrap(httptest.NewRecorder())

	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, rw.Started())
	assert.Equal(t, 5, rw.Size())
}

func TestRecovery_WritesErrorResponse(t *testing.T) {
	var logs bytes.Buffer
	h := Recovery(bufferLogger(&logs, slog.LevelInfo), writeTeapot)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/ABC234", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), "boom")
}

func TestRecovery_LeavesStartedResponseAlone(t *testing.T) {
	var logs bytes.Buffer
	h := Recovery(bufferLogger(&logs, slog.LevelInfo), writeTeapot)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("partial"))
			panic("late")
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
	assert.Contains(t, logs.String(), `"response_started":true`)
}

func TestRecovery_RepanicsAbort(t *testing.T) {
	h := Recovery(bufferLogger(&bytes.Buffer{}, slog.LevelInfo), writeTeapot)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"success", "/api/v1/leaderboard", http.StatusOK, "INFO"},
		{"client error", "/api/v1/rooms/ZZZZZZ", http.StatusNotFound, "WARN"},
		{"server error", "/api/v1/history", http.StatusInternalServerError, "ERROR"},
		{"health probe", "/api/v1/health", http.StatusOK, "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			h := Logging(bufferLogger(&logs, slog.LevelDebug))(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.status)
				}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "http request", entry["msg"])
			assert.Equal(t, tt.path, entry["path"])
			assert.EqualValues(t, tt.status, entry["status"])
		})
	}
}

func TestLogging_HealthHiddenAtInfo(t *testing.T) {
	var logs bytes.Buffer
	h := Logging(bufferLogger(&logs, slog.LevelInfo))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Empty(t, logs.String())
}
