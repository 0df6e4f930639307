package room

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/mcoot/battleship-go/internal/dependencies/clock"
	"github.com/mcoot/battleship-go/internal/dependencies/random"
	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/services/game"
)

const (
	// CodeLength is the length of generated room codes
	CodeLength = 6
	// CodeAlphabet is the characters used in room codes (avoid confusing chars)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// maxCodeAttempts bounds the collision retry loop
	maxCodeAttempts = 64
)

// ErrCodeSpaceExhausted is returned if no free room code could be generated
var ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")

// Room is a live room. Its mutex guards membership and the session.
type Room struct {
	mu      sync.Mutex
	code    model.RoomCode
	host    model.Identity
	players []model.Identity
	session *game.Session
	closed  bool // set once the room is being torn down
}

// Store owns every live room and the identity -> room index.
// Lock order is Room.mu then Store.mu. Store.mu is only held for map access
// and never while waiting on a room.
type Store struct {
	mu      sync.Mutex
	rooms   map[model.RoomCode]*Room
	members map[model.Identity]*Room

	clock  clock.Clock
	random random.Random
	logger *slog.Logger
}

// NewStore creates an empty room store
func NewStore(clock clock.Clock, random random.Random, logger *slog.Logger) *Store {
	return &Store{
		rooms:   make(map[model.RoomCode]*Room),
		members: make(map[model.Identity]*Room),
		clock:   clock,
		random:  random,
		logger:  logger.With(slog.String("component", "room_store")),
	}
}

// PlaceResult is returned by PlaceShips
type PlaceResult struct {
	Room    model.Room
	Started bool // both fleets placed, game now playing
	Turn    model.Identity
}

// AttackResult is returned by Attack. Match is set when the attack won the game,
// in which case the room has already been removed from the store.
type AttackResult struct {
	Room    model.Room
	Outcome game.AttackOutcome
	Match   *model.MatchRecord
}

// LeaveResult describes what happened to the room when an identity left it
type LeaveResult struct {
	Code      model.RoomCode
	Left      model.Identity
	Prior     model.RoomStatus // status before the identity left
	Remaining []model.Identity
	Room      *model.Room        // nil if the room was deleted
	Match     *model.MatchRecord // set if leaving forfeited a game in progress
}

// Deleted returns true if the room no longer exists
func (r LeaveResult) Deleted() bool {
	return r.Room == nil
}

// Create opens a waiting room with the identity as host
func (s *Store) Create(id model.Identity) (model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; ok {
		return model.Room{}, model.ErrDuplicateSession
	}

	code, err := s.freeCode()
	if err != nil {
		return model.Room{}, err
	}

	r := &Room{
		code:    code,
		host:    id,
		players: []model.Identity{id},
	}
	s.rooms[code] = r
	s.members[id] = r

	s.logger.Info("room created",
		slog.String("room", string(code)),
		slog.String("host", string(id)))

	return r.snapshot(), nil
}

// freeCode must be called with s.mu held
func (s *Store) freeCode() (model.RoomCode, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := model.RoomCode(s.random.String(CodeLength, CodeAlphabet))
		if len(code) != CodeLength {
			continue
		}
		if _, exists := s.rooms[code]; !exists {
			return code, nil
		}
		s.logger.Debug("room code collision", slog.String("room", string(code)))
	}
	return "", ErrCodeSpaceExhausted
}

// NormalizeCode trims and upper-cases a user supplied room code
func NormalizeCode(code string) model.RoomCode {
	return model.RoomCode(strings.ToUpper(strings.TrimSpace(code)))
}

// Join adds the identity as the second player and starts ship placement
func (s *Store) Join(id model.Identity, code string) (model.Room, error) {
	s.mu.Lock()
	_, inRoom := s.members[id]
	r, ok := s.rooms[NormalizeCode(code)]
	s.mu.Unlock()

	if inRoom {
		return model.Room{}, model.ErrDuplicateSession
	}
	if !ok {
		return model.Room{}, model.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return model.Room{}, model.ErrRoomNotFound
	}
	if len(r.players) >= 2 || r.session != nil {
		return model.Room{}, model.ErrRoomFull
	}

	// The identity may have entered another room while r.mu was contended
	s.mu.Lock()
	if _, ok := s.members[id]; ok {
		s.mu.Unlock()
		return model.Room{}, model.ErrDuplicateSession
	}
	s.members[id] = r
	s.mu.Unlock()

	r.players = append(r.players, id)
	r.session = game.New(r.host, id, s.clock.Now())

	s.logger.Info("player joined room",
		slog.String("room", string(r.code)),
		slog.String("identity", string(id)))

	return r.snapshot(), nil
}

// PlaceShips submits the identity's fleet to its room's session
func (s *Store) PlaceShips(id model.Identity, board model.Board) (PlaceResult, error) {
	r, err := s.lockRoomOf(id)
	if err != nil {
		return PlaceResult{}, err
	}
	defer r.mu.Unlock()

	if r.session == nil {
		return PlaceResult{}, model.ErrNotInPlacement
	}

	started, err := r.session.PlaceShips(id, board)
	if err != nil {
		return PlaceResult{}, err
	}

	if started {
		s.logger.Info("game started",
			slog.String("room", string(r.code)),
			slog.String("turn", string(r.session.Turn)))
	}

	return PlaceResult{
		Room:    r.snapshot(),
		Started: started,
		Turn:    r.session.Turn,
	}, nil
}

// Attack fires at the opponent's board. A winning attack closes the room and
// removes it from the store.
func (s *Store) Attack(id model.Identity, x, y int) (AttackResult, error) {
	r, err := s.lockRoomOf(id)
	if err != nil {
		return AttackResult{}, err
	}

	if r.session == nil {
		r.mu.Unlock()
		return AttackResult{}, model.ErrGameNotInProgress
	}

	out, err := r.session.Attack(id, x, y, s.clock.Now())
	if err != nil {
		r.mu.Unlock()
		return AttackResult{}, err
	}

	res := AttackResult{Outcome: out}
	if out.Result != nil {
		r.closed = true
		rec := s.matchRecord(r.session, out.Result)
		res.Match = &rec
		s.remove(r, r.players)
	}
	res.Room = r.snapshot()
	r.mu.Unlock()

	if res.Match != nil {
		s.logger.Info("game won",
			slog.String("room", string(res.Room.Code)),
			slog.String("winner", string(res.Match.Winner)),
			slog.String("match_id", string(res.Match.ID)))
	}

	return res, nil
}

// Leave removes the identity from its room. Leaving a game in progress
// forfeits it; leaving during placement sends the room back to waiting.
func (s *Store) Leave(id model.Identity) (LeaveResult, error) {
	s.mu.Lock()
	r, ok := s.members[id]
	s.mu.Unlock()
	if !ok {
		return LeaveResult{}, model.ErrNotInRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.hasPlayer(id) {
		s.mu.Lock()
		if s.members[id] == r {
			delete(s.members, id)
		}
		s.mu.Unlock()
		return LeaveResult{}, model.ErrNotInRoom
	}

	res := LeaveResult{Code: r.code, Left: id, Prior: r.status()}
	if res.Prior == model.RoomStatusPlaying {
		result, err := r.session.Forfeit(id, s.clock.Now())
		if err != nil {
			return LeaveResult{}, err
		}
		rec := s.matchRecord(r.session, result)
		res.Match = &rec
	}

	r.players = without(r.players, id)
	res.Remaining = append([]model.Identity(nil), r.players...)

	switch {
	case len(r.players) == 0 || res.Match != nil:
		r.closed = true
		s.remove(r, append([]model.Identity{id}, res.Remaining...))

	default:
		s.mu.Lock()
		delete(s.members, id)
		s.mu.Unlock()

		// Placement or waiting: the remaining player keeps the room
		r.session = nil
		r.host = r.players[0]
		snap := r.snapshot()
		res.Room = &snap
	}

	s.logger.Info("player left room",
		slog.String("room", string(r.code)),
		slog.String("identity", string(id)),
		slog.String("prior_status", string(res.Prior)),
		slog.Bool("deleted", res.Deleted()))

	return res, nil
}

// RoomOf returns a snapshot of the identity's current room
func (s *Store) RoomOf(id model.Identity) (model.Room, bool) {
	s.mu.Lock()
	r, ok := s.members[id]
	s.mu.Unlock()
	if !ok {
		return model.Room{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.Room{}, false
	}
	return r.snapshot(), true
}

// Get returns a snapshot of the room with the given code
func (s *Store) Get(code string) (model.Room, error) {
	s.mu.Lock()
	r, ok := s.rooms[NormalizeCode(code)]
	s.mu.Unlock()
	if !ok {
		return model.Room{}, model.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.Room{}, model.ErrRoomNotFound
	}
	return r.snapshot(), nil
}

// Count returns the number of live rooms
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Close drops every room. Used at shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	clear(s.rooms)
	clear(s.members)
	s.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}
}

// lockRoomOf returns the identity's room with its lock held
func (s *Store) lockRoomOf(id model.Identity) (*Room, error) {
	s.mu.Lock()
	r, ok := s.members[id]
	s.mu.Unlock()
	if !ok {
		return nil, model.ErrNotInRoom
	}

	r.mu.Lock()
	if r.closed || !r.hasPlayer(id) {
		r.mu.Unlock()
		return nil, model.ErrNotInRoom
	}
	return r, nil
}

// remove deletes a closed room and the index entries of ids that still
// point at it. Called with r.mu held.
func (s *Store) remove(r *Room, ids []model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[r.code] == r {
		delete(s.rooms, r.code)
	}
	for _, id := range ids {
		if s.members[id] == r {
			delete(s.members, id)
		}
	}
}

func (s *Store) matchRecord(session *game.Session, result *game.Result) model.MatchRecord {
	return model.MatchRecord{
		ID:         model.MatchID(s.random.UUID()),
		Player1:    session.Home.Identity,
		Player2:    session.Away.Identity,
		Winner:     result.Winner,
		Loser:      result.Loser,
		Duration:   result.Duration,
		FinishedAt: result.FinishedAt,
		Forfeit:    result.Forfeit,
	}
}

// status must be called with r.mu held
func (r *Room) status() model.RoomStatus {
	if r.session == nil {
		return model.RoomStatusWaiting
	}
	switch r.session.Phase {
	case game.PhasePlaying:
		return model.RoomStatusPlaying
	case game.PhaseFinished:
		return model.RoomStatusFinished
	default:
		return model.RoomStatusPlacement
	}
}

func (r *Room) hasPlayer(id model.Identity) bool {
	for _, p := range r.players {
		if p == id {
			return true
		}
	}
	return false
}

func (r *Room) snapshot() model.Room {
	return model.Room{
		Code:    r.code,
		Host:    r.host,
		Players: append([]model.Identity(nil), r.players...),
		Status:  r.status(),
	}
}

func without(ids []model.Identity, id model.Identity) []model.Identity {
	out := ids[:0:0]
	for _, p := range ids {
		if p != id {
			out = append(out, p)
		}
	}
	return out
}
