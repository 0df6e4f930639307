package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/battleship-go/internal/api/apierr"
	"github.com/mcoot/battleship-go/internal/api/response"
	"github.com/mcoot/battleship-go/internal/factory"
	"github.com/mcoot/battleship-go/internal/model"
)

// testServer wraps a fully wired test application
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	return &testServer{
		handler: app.Handler(),
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code)
	resp := decode[apierr.ErrorResponse](t, rr)
	assert.Equal(t, code, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Message)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	ts.app.MockRandom.QueueString("ROOM22")
	_, err := ts.app.Rooms.Create("alice")
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	health := decode[response.Health](t, rr)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 0, health.Connections)
	assert.Equal(t, 1, health.Rooms)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]string{"username": "alice", "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/auth/register", body, "")
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	registerResp := decode[response.AuthResponse](t, rr)
	assert.NotEmpty(t, registerResp.AccessToken)
	assert.Equal(t, "bearer", registerResp.TokenType)
	assert.Equal(t, "alice", registerResp.Username)
	assert.True(t, registerResp.ExpiresAt.Equal(ts.app.MockClock.Now().Add(7*24*time.Hour)))

	rr = ts.request(http.MethodPost, "/api/v1/auth/login", body, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	loginResp := decode[response.AuthResponse](t, rr)
	assert.Equal(t, "alice", loginResp.Username)
	assert.NotEqual(t, registerResp.AccessToken, loginResp.AccessToken)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing username", map[string]string{"password": "secret"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"missing password", map[string]string{"username": "alice"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"short username", map[string]string{"username": "al", "password": "secret"}, http.StatusBadRequest, apierr.CodeInvalidUsername},
		{"bad characters", map[string]string{"username": "al ice", "password": "secret"}, http.StatusBadRequest, apierr.CodeInvalidUsername},
		{"short password", map[string]string{"username": "alice", "password": "abc"}, http.StatusBadRequest, apierr.CodeInvalidPassword},
		{"not an object", []int{1, 2}, http.StatusBadRequest, apierr.CodeInvalidRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/auth/register", tc.body, "")
			assertErrorCode(t, rr, tc.status, tc.code)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ts := newTestServer(t)

	registerUser(t, ts, "alice")

	body := map[string]string{"username": "alice", "password": "another"}
	rr := ts.request(http.MethodPost, "/api/v1/auth/register", body, "")
	assertErrorCode(t, rr, http.StatusBadRequest, apierr.CodeUsernameExists)
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)

	registerUser(t, ts, "alice")

	rr := ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "wrong"}, "")
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeInvalidCredentials)

	rr = ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "nobody", "password": "secret123"}, "")
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeInvalidCredentials)
}

func TestGetMe(t *testing.T) {
	ts := newTestServer(t)

	token := registerUser(t, ts, "bob")
	require.NoError(t, ts.app.Storage.IncrementStats(context.Background(), "bob", model.OutcomeWin))
	require.NoError(t, ts.app.Storage.IncrementStats(context.Background(), "bob", model.OutcomeLoss))
	require.NoError(t, ts.app.Storage.IncrementStats(context.Background(), "bob", model.OutcomeLoss))

	rr := ts.request(http.MethodGet, "/api/v1/auth/me", nil, token)
	assert.Equal(t, http.StatusOK, rr.Code)

	me := decode[response.Profile](t, rr)
	assert.Equal(t, "bob", me.Username)
	assert.Equal(t, 1, me.Wins)
	assert.Equal(t, 2, me.Losses)
	assert.Equal(t, 3, me.GamesPlayed)
	assert.Equal(t, 33.33, me.WinRate)
	assert.True(t, me.CreatedAt.Equal(ts.app.MockClock.Now()))
}

func TestSessionCookieIsAccepted(t *testing.T) {
	ts := newTestServer(t)

	token := registerUser(t, ts, "carol")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/auth/me", "/api/v1/history", "/api/v1/rooms/ABC234"} {
		rr := ts.request(http.MethodGet, path, nil, "")
		assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
	}

	rr := ts.request(http.MethodGet, "/api/v1/auth/me", nil, "sess_unknown")
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
}

func TestExpiredSession(t *testing.T) {
	ts := newTestServer(t)

	token := registerUser(t, ts, "alice")
	ts.app.MockClock.Advance(7*24*time.Hour + time.Second)

	rr := ts.request(http.MethodGet, "/api/v1/auth/me", nil, token)
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)

	token := registerUser(t, ts, "alice")

	rr := ts.request(http.MethodPost, "/api/v1/auth/logout", nil, token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	registerUser(t, ts, "alice")
	registerUser(t, ts, "bob")
	registerUser(t, ts, "carol")

	// alice: 2 wins / 4 games, bob: 2 wins / 2 games, carol: no games
	for _, o := range []model.Outcome{model.OutcomeWin, model.OutcomeWin, model.OutcomeLoss, model.OutcomeLoss} {
		require.NoError(t, ts.app.Storage.IncrementStats(ctx, "alice", o))
	}
	for _, o := range []model.Outcome{model.OutcomeWin, model.OutcomeWin} {
		require.NoError(t, ts.app.Storage.IncrementStats(ctx, "bob", o))
	}

	rr := ts.request(http.MethodGet, "/api/v1/leaderboard", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	board := decode[[]response.LeaderboardEntry](t, rr)
	require.Len(t, board, 3)

	assert.Equal(t, response.LeaderboardEntry{Rank: 1, Username: "bob", Wins: 2, GamesPlayed: 2, WinRate: 100}, board[0])
	assert.Equal(t, response.LeaderboardEntry{Rank: 2, Username: "alice", Wins: 2, Losses: 2, GamesPlayed: 4, WinRate: 50}, board[1])
	assert.Equal(t, "carol", board[2].Username)
	assert.Equal(t, 0.0, board[2].WinRate)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	token := registerUser(t, ts, "alice")
	registerUser(t, ts, "bob")

	finished := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	older := &model.MatchRecord{
		ID: "m-1", Player1: "alice", Player2: "bob", Winner: "bob", Loser: "alice",
		Duration: 95 * time.Second, FinishedAt: finished,
	}
	newer := &model.MatchRecord{
		ID: "m-2", Player1: "bob", Player2: "alice", Winner: "alice", Loser: "bob",
		Duration: 42500 * time.Millisecond, FinishedAt: finished.Add(time.Hour), Forfeit: true,
	}
	for _, m := range []*model.MatchRecord{older, newer} {
		_, err := ts.app.Storage.SaveMatch(ctx, m)
		require.NoError(t, err)
	}

	rr := ts.request(http.MethodGet, "/api/v1/history", nil, token)
	assert.Equal(t, http.StatusOK, rr.Code)

	history := decode[[]response.Match](t, rr)
	require.Len(t, history, 2)

	assert.Equal(t, "m-2", history[0].ID)
	assert.Equal(t, int64(42), history[0].DurationSeconds)
	assert.True(t, history[0].Forfeit)
	assert.Equal(t, "m-1", history[1].ID)
	assert.Equal(t, int64(95), history[1].DurationSeconds)
	assert.Equal(t, "bob", history[1].Winner)
	assert.True(t, history[1].FinishedAt.Equal(finished))
}

func TestRoomLookup(t *testing.T) {
	ts := newTestServer(t)

	token := registerUser(t, ts, "alice")

	ts.app.MockRandom.QueueString("ABC234")
	_, err := ts.app.Rooms.Create("alice")
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/rooms/abc234", nil, token)
	assert.Equal(t, http.StatusOK, rr.Code)

	room := decode[response.Room](t, rr)
	assert.Equal(t, response.Room{Code: "ABC234", Host: "alice", Players: []string{"alice"}, Status: "waiting"}, room)

	rr = ts.request(http.MethodGet, "/api/v1/rooms/ZZZZZZ", nil, token)
	assertErrorCode(t, rr, http.StatusNotFound, apierr.CodeRoomNotFound)
}

func TestSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/ws", nil, "")
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = ts.request(http.MethodGet, "/api/v1/ws/sess_unknown", nil, "")
	assertErrorCode(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
}

// Helper functions

func registerUser(t *testing.T, ts *testServer, username string) string {
	t.Helper()

	body := map[string]string{"username": username, "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/auth/register", body, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	return decode[response.AuthResponse](t, rr).AccessToken
}
