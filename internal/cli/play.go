package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/protocol"
)

const playHelp = `Commands:
  create                         open a new room
  join CODE                      join a room by code
  place FILE.json                place the fleet described in a JSON file
  place NAME=X,Y;X,Y ...         place ships inline, e.g. place boat=0,0 sub=2,0;2,1
  attack X Y                     fire at a cell
  chat TEXT                      message your room
  leave                          leave the current room
  help                           show this help
  quit                           disconnect`

var (
	errQuit = errors.New("quit")
	errHelp = errors.New("help")
)

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play interactively over a game connection",
		Long: `Open a game connection and read commands from stdin, one per line.
Events from the server are printed as they arrive.

` + playHelp + `

When stdin ends the connection stays open and events keep streaming until
the server closes it. Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" {
				return fmt.Errorf("not logged in: run 'shipctl login' first")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runPlay(ctx, client.WebSocketURL(), cfg.Token, os.Stdin, os.Stdout, cfg.Output == "json")
		},
	}
}

// runPlay drives one game connection until the user quits, the server closes
// the connection or ctx ends
func runPlay(ctx context.Context, wsURL, token string, in io.Reader, out io.Writer, jsonOutput bool) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("session rejected: run 'shipctl login' again")
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	w := &lineWriter{w: out}
	if !jsonOutput {
		w.println("Connected. Type 'help' for commands.")
	}

	serverDone := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				serverDone <- err
				return
			}
			if jsonOutput {
				w.println(string(data))
			} else {
				w.println(formatEvent(data))
			}
		}
	}()

	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)

	for {
		select {
		case <-ctx.Done():
			closeConn(conn, serverDone)
			return nil

		case err := <-serverDone:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if !jsonOutput {
					w.println("Connection closed by server")
				}
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)

		case line, ok := <-lines:
			if !ok {
				// Input exhausted: keep streaming events
				lines = nil
				continue
			}

			msg, err := parseCommand(line, os.ReadFile)
			switch {
			case errors.Is(err, errQuit):
				closeConn(conn, serverDone)
				return nil
			case errors.Is(err, errHelp):
				w.println(playHelp)
				continue
			case err != nil:
				w.println("error: " + err.Error())
				continue
			case msg == nil:
				continue
			}

			if err := conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

// readLines forwards input lines until the input ends or done is closed
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// closeConn sends a close frame and waits briefly for the server to finish
func closeConn(conn *websocket.Conn, serverDone <-chan error) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
	}
}

// parseCommand turns one input line into a wire message. Blank lines yield
// a nil message.
func parseCommand(line string, readFile func(string) ([]byte, error)) (map[string]any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "create":
		return protocol.CreateRoomMessage(), nil

	case "join":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: join CODE")
		}
		return protocol.JoinRoomMessage(args[0]), nil

	case "place":
		board, err := parseFleet(args, readFile)
		if err != nil {
			return nil, err
		}
		return protocol.PlaceShipsMessage(board), nil

	case "attack":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: attack X Y")
		}
		x, errX := strconv.Atoi(args[0])
		y, errY := strconv.Atoi(args[1])
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("attack coordinates must be integers")
		}
		return protocol.AttackMessage(x, y), nil

	case "chat":
		// Keep the message as typed, including inner spacing
		text := strings.TrimSpace(strings.TrimSpace(line)[len(fields[0]):])
		if text == "" {
			return nil, fmt.Errorf("usage: chat TEXT")
		}
		return protocol.ChatMessage(text), nil

	case "leave":
		return protocol.LeaveRoomMessage(), nil

	case "help", "?":
		return nil, errHelp

	case "quit", "exit":
		return nil, errQuit

	default:
		return nil, fmt.Errorf("unknown command %q (type 'help')", fields[0])
	}
}

// parseFleet reads a fleet either from a JSON file or from inline
// NAME=X,Y;X,Y arguments
func parseFleet(args []string, readFile func(string) ([]byte, error)) (model.Board, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: place FILE.json | place NAME=X,Y;X,Y ...")
	}

	if len(args) == 1 && !strings.Contains(args[0], "=") {
		data, err := readFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read fleet file: %w", err)
		}
		return decodeFleet(data)
	}

	board := make(model.Board, len(args))
	for _, arg := range args {
		name, cells, ok := strings.Cut(arg, "=")
		if !ok || name == "" || cells == "" {
			return nil, fmt.Errorf("invalid ship %q: expected NAME=X,Y;X,Y", arg)
		}

		var coords []model.Coord
		for _, cell := range strings.Split(cells, ";") {
			xs, ys, ok := strings.Cut(cell, ",")
			x, errX := strconv.Atoi(xs)
			y, errY := strconv.Atoi(ys)
			if !ok || errX != nil || errY != nil {
				return nil, fmt.Errorf("invalid cell %q in ship %s", cell, name)
			}
			coords = append(coords, model.Coord{X: x, Y: y})
		}
		board[name] = model.Ship{Coords: coords}
	}
	return board, nil
}

// decodeFleet accepts either {"ships": {...}} or the bare ships object
func decodeFleet(data []byte) (model.Board, error) {
	var wrapped struct {
		Ships map[string]protocol.ShipPayload `json:"ships"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse fleet file: %w", err)
	}
	if wrapped.Ships != nil {
		return protocol.BoardFromPayload(wrapped.Ships), nil
	}

	var ships map[string]protocol.ShipPayload
	if err := json.Unmarshal(data, &ships); err != nil {
		return nil, fmt.Errorf("parse fleet file: %w", err)
	}
	if len(ships) == 0 {
		return nil, fmt.Errorf("fleet file contains no ships")
	}
	return protocol.BoardFromPayload(ships), nil
}

// wireEvent is a flattened view of every server event
type wireEvent struct {
	Type        protocol.EventType `json:"type"`
	RoomCode    string             `json:"room_code"`
	Players     []string           `json:"players"`
	Status      string             `json:"status"`
	Player      string             `json:"player"`
	CurrentTurn string             `json:"current_turn"`
	Attacker    string             `json:"attacker"`
	X           int                `json:"x"`
	Y           int                `json:"y"`
	Hit         bool               `json:"hit"`
	SunkShip    *string            `json:"sunk_ship"`
	Winner      string             `json:"winner"`
	Loser       string             `json:"loser"`
	Forfeit     bool               `json:"forfeit"`
	Username    string             `json:"username"`
	Message     string             `json:"message"`
	Timestamp   time.Time          `json:"timestamp"`
	Code        string             `json:"code"`
}

// formatEvent renders a server event for a terminal
func formatEvent(data []byte) string {
	var e wireEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return string(data)
	}

	switch e.Type {
	case protocol.EvtRoomCreated:
		return fmt.Sprintf("Room created: %s (share the code with your opponent)", e.RoomCode)
	case protocol.EvtPlayerJoined:
		return fmt.Sprintf("Players: %s (%s)", strings.Join(e.Players, ", "), e.Status)
	case protocol.EvtPlayerReady:
		return fmt.Sprintf("%s has placed their ships", e.Player)
	case protocol.EvtGameStart:
		return fmt.Sprintf("Game started! %s moves first", e.CurrentTurn)
	case protocol.EvtAttackResult:
		result := "miss"
		if e.Hit {
			result = "hit"
		}
		if e.SunkShip != nil {
			result += ", sunk " + *e.SunkShip
		}
		return fmt.Sprintf("%s fired at (%d,%d): %s. Next: %s", e.Attacker, e.X, e.Y, result, e.CurrentTurn)
	case protocol.EvtGameOver:
		if e.Forfeit {
			return fmt.Sprintf("Game over: %s wins by forfeit", e.Winner)
		}
		return fmt.Sprintf("Game over: %s wins", e.Winner)
	case protocol.EvtChat:
		return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Local().Format(time.TimeOnly), e.Username, e.Message)
	case protocol.EvtPlayerLeft:
		return fmt.Sprintf("%s left the room (%s)", e.Player, e.Status)
	case protocol.EvtRoomLeft:
		return fmt.Sprintf("Left room %s", e.RoomCode)
	case protocol.EvtError:
		return fmt.Sprintf("Error: %s (%s)", e.Message, e.Code)
	default:
		return string(data)
	}
}

// lineWriter serialises output from the event and input loops
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.w, s)
}
