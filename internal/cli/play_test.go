package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/battleship-go/internal/factory"
	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/protocol"
)

func noFiles(string) ([]byte, error) {
	return nil, errors.New("no files in this test")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		line string
		want map[string]any
	}{
		{"create", "create", protocol.CreateRoomMessage()},
		{"create upper case", "  CREATE ", protocol.CreateRoomMessage()},
		{"join", "join abc234", protocol.JoinRoomMessage("abc234")},
		{"attack", "attack 3 7", protocol.AttackMessage(3, 7)},
		{"chat keeps spacing", "chat  good  game ", protocol.ChatMessage("good  game")},
		{"leave", "leave", protocol.LeaveRoomMessage()},
		{
			"inline fleet",
			"place boat=0,0 sub=2,0;2,1",
			protocol.PlaceShipsMessage(model.Board{
				"boat": {Coords: []model.Coord{{X: 0, Y: 0}}},
				"sub":  {Coords: []model.Coord{{X: 2, Y: 0}, {X: 2, Y: 1}}},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.line, noFiles)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Blank(t *testing.T) {
	got, err := parseCommand("   ", noFiles)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseCommand_Control(t *testing.T) {
	_, err := parseCommand("quit", noFiles)
	assert.ErrorIs(t, err, errQuit)

	_, err = parseCommand("exit", noFiles)
	assert.ErrorIs(t, err, errQuit)

	_, err = parseCommand("help", noFiles)
	assert.ErrorIs(t, err, errHelp)
}

func TestParseCommand_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr string
	}{
		{"unknown", "fire 1 2", "unknown command"},
		{"join without code", "join", "usage: join"},
		{"attack missing y", "attack 1", "usage: attack"},
		{"attack not numeric", "attack a b", "must be integers"},
		{"chat empty", "chat   ", "usage: chat"},
		{"place nothing", "place", "usage: place"},
		{"place bad ship", "place boat", "read fleet file"},
		{"place bad cell", "place boat=0;1", "invalid cell"},
		{"place empty cells", "place boat=", "invalid ship"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCommand(tt.line, noFiles)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseCommand_FleetFile(t *testing.T) {
	files := map[string]string{
		"wrapped.json": `{"ships": {"boat": {"coords": [{"x": 1, "y": 1}]}}}`,
		"bare.json":    `{"boat": {"coords": [{"x": 1, "y": 1}]}}`,
		"empty.json":   `{}`,
		"broken.json":  `{"ships":`,
	}
	readFile := func(path string) ([]byte, error) {
		data, ok := files[path]
		if !ok {
			return nil, errors.New("not found")
		}
		return []byte(data), nil
	}
	want := protocol.PlaceShipsMessage(model.Board{"boat": {Coords: []model.Coord{{X: 1, Y: 1}}}})

	got, err := parseCommand("place wrapped.json", readFile)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = parseCommand("place bare.json", readFile)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = parseCommand("place empty.json", readFile)
	assert.ErrorContains(t, err, "no ships")

	_, err = parseCommand("place broken.json", readFile)
	assert.ErrorContains(t, err, "parse fleet file")
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"room created", `{"type":"room_created","room_code":"ABC234"}`, "Room created: ABC234"},
		{"player joined", `{"type":"player_joined","players":["alice","bob"],"status":"placement"}`, "Players: alice, bob (placement)"},
		{"player ready", `{"type":"player_ready","player":"bob"}`, "bob has placed their ships"},
		{"game start", `{"type":"game_start","current_turn":"alice"}`, "Game started! alice moves first"},
		{"miss", `{"type":"attack_result","attacker":"alice","x":1,"y":2,"hit":false,"sunk_ship":null,"current_turn":"bob"}`, "alice fired at (1,2): miss. Next: bob"},
		{"sunk", `{"type":"attack_result","attacker":"bob","x":0,"y":0,"hit":true,"sunk_ship":"boat","current_turn":"alice"}`, "bob fired at (0,0): hit, sunk boat. Next: alice"},
		{"game over", `{"type":"game_over","winner":"alice","loser":"bob","forfeit":false}`, "Game over: alice wins"},
		{"forfeit", `{"type":"game_over","winner":"bob","loser":"alice","forfeit":true}`, "Game over: bob wins by forfeit"},
		{"player left", `{"type":"player_left","player":"bob","status":"waiting"}`, "bob left the room (waiting)"},
		{"room left", `{"type":"room_left","room_code":"ABC234"}`, "Left room ABC234"},
		{"error", `{"type":"error","code":"NOT_YOUR_TURN","message":"not your turn"}`, "Error: not your turn (NOT_YOUR_TURN)"},
		{"unknown type", `{"type":"mystery"}`, `{"type":"mystery"}`},
		{"not json", `hello`, `hello`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, formatEvent([]byte(tt.data)), tt.want)
		})
	}
}

func TestFormatEvent_Chat(t *testing.T) {
	got := formatEvent([]byte(`{"type":"chat","username":"alice","message":"hi","timestamp":"2024-01-01T12:00:00Z"}`))
	assert.True(t, strings.HasSuffix(got, "] alice: hi"), got)
}

// syncBuffer is a bytes.Buffer safe for the play loops to share with a test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunPlay_CompleteGame(t *testing.T) {
	app := factory.NewTestApp()
	server := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		_ = app.Close(context.Background())
		server.Close()
	})
	wsURL := NewClient(server.URL, "").WebSocketURL()

	ctx := context.Background()
	alice, err := app.AuthService.Register(ctx, "alice", "password")
	require.NoError(t, err)
	bob, err := app.AuthService.Register(ctx, "bob", "password")
	require.NoError(t, err)

	app.MockRandom.QueueString("PLAY22")

	in, input := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runPlay(ctx, wsURL, alice.Token, in, out, false)
	}()
	t.Cleanup(func() { _ = input.Close() })

	typeLine := func(line string) {
		_, err := io.WriteString(input, line+"\n")
		require.NoError(t, err)
	}
	waitFor := func(text string) {
		require.Eventually(t, func() bool {
			return strings.Contains(out.String(), text)
		}, 5*time.Second, 10*time.Millisecond, "waiting for %q in:\n%s", text, out.String())
	}

	waitFor("Connected.")
	typeLine("create")
	waitFor("Room created: PLAY22")

	header := http.Header{"Authorization": {"Bearer " + bob.Token}}
	opponent, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = opponent.Close() })

	expect := func(evt protocol.EventType) map[string]any {
		require.NoError(t, opponent.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg map[string]any
		require.NoError(t, opponent.ReadJSON(&msg))
		require.Equal(t, string(evt), msg["type"], "unexpected event %v", msg)
		return msg
	}

	require.NoError(t, opponent.WriteJSON(protocol.JoinRoomMessage("play22")))
	expect(protocol.EvtPlayerJoined)
	waitFor("Players: alice, bob (placement)")

	typeLine("bogus")
	waitFor(`unknown command "bogus"`)

	typeLine("place boat=0,0")
	expect(protocol.EvtPlayerReady)
	waitFor("alice has placed their ships")

	require.NoError(t, opponent.WriteJSON(protocol.PlaceShipsMessage(model.Board{
		"boat": {Coords: []model.Coord{{X: 5, Y: 5}}},
	})))
	expect(protocol.EvtGameStart)
	waitFor("Game started! alice moves first")

	typeLine("attack 5 5")
	over := expect(protocol.EvtGameOver)
	assert.Equal(t, "alice", over["winner"])
	waitFor("Game over: alice wins")

	typeLine("quit")
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("play session did not end after quit")
	}
}

func TestRunPlay_RejectedToken(t *testing.T) {
	app := factory.NewTestApp()
	server := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		_ = app.Close(context.Background())
		server.Close()
	})

	err := runPlay(context.Background(), NewClient(server.URL, "").WebSocketURL(), "bogus", strings.NewReader(""), io.Discard, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session rejected")
}

func TestRunPlay_ContextCancel(t *testing.T) {
	app := factory.NewTestApp()
	server := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		_ = app.Close(context.Background())
		server.Close()
	})

	session, err := app.AuthService.Register(context.Background(), "alice", "password")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		// Empty input: the session keeps streaming until cancelled
		done <- runPlay(ctx, NewClient(server.URL, "").WebSocketURL(), session.Token, strings.NewReader(""), out, true)
	}()

	require.Eventually(t, func() bool { return app.Hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("play session did not end after cancel")
	}
	assert.Empty(t, out.String())
}
