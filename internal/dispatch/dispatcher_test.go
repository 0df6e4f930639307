package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/battleship-go/internal/dependencies/mocks"
	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/protocol"
	"github.com/mcoot/battleship-go/internal/services/room"
	"github.com/mcoot/battleship-go/internal/testutil"
)

// fakeNotifier records every delivered event per recipient
type fakeNotifier struct {
	mu     sync.Mutex
	events map[model.Identity][]map[string]any
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(map[model.Identity][]map[string]any)}
}

func (n *fakeNotifier) Send(id model.Identity, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		panic(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		panic(err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[id] = append(n.events[id], decoded)
}

func (n *fakeNotifier) Broadcast(ids []model.Identity, event any) {
	for _, id := range ids {
		n.Send(id, event)
	}
}

// take returns and clears the events delivered to id
func (n *fakeNotifier) take(id model.Identity) []map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.events[id]
	delete(n.events, id)
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []model.MatchRecord
	panics  bool
}

func (r *fakeRecorder) Record(rec model.MatchRecord) {
	if r.panics {
		panic("recorder exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *fakeRecorder) recorded() []model.MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.MatchRecord(nil), r.records...)
}

type DispatcherSuite struct {
	suite.Suite
	clock      *mocks.MockClock
	random     *mocks.MockRandom
	rooms      *room.Store
	notifier   *fakeNotifier
	recorder   *fakeRecorder
	dispatcher *Dispatcher
	ctx        context.Context
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.rooms = room.NewStore(s.clock, s.random, testutil.NopLogger())
	s.notifier = newFakeNotifier()
	s.recorder = &fakeRecorder{}
	s.dispatcher = New(s.rooms, s.notifier, s.recorder, s.clock, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *DispatcherSuite) send(id model.Identity, msg map[string]any) {
	raw, err := json.Marshal(msg)
	s.Require().NoError(err)
	s.dispatcher.Handle(s.ctx, id, raw)
}

// only asserts exactly one event was delivered to id and returns it
func (s *DispatcherSuite) only(id model.Identity) map[string]any {
	events := s.notifier.take(id)
	s.Require().Len(events, 1, "events for %s: %v", id, events)
	return events[0]
}

func (s *DispatcherSuite) assertError(id model.Identity, code string) {
	evt := s.only(id)
	s.Equal("error", evt["type"])
	s.Equal(code, evt["code"])
}

// placement sets up room "ROOM01" with alice as host and bob joined
func (s *DispatcherSuite) placement() {
	s.random.QueueString("ROOM01")
	s.send("alice", protocol.CreateRoomMessage())
	s.send("bob", protocol.JoinRoomMessage("ROOM01"))
	s.notifier.take("alice")
	s.notifier.take("bob")
}

// playing additionally places SmallFleet for both players
func (s *DispatcherSuite) playing() {
	s.placement()
	s.send("alice", protocol.PlaceShipsMessage(testutil.SmallFleet()))
	s.send("bob", protocol.PlaceShipsMessage(testutil.SmallFleet()))
	s.notifier.take("alice")
	s.notifier.take("bob")
}

// Room lifecycle

func (s *DispatcherSuite) TestCreateRoomRepliesToSenderOnly() {
	s.random.QueueString("ABC234")

	s.send("alice", protocol.CreateRoomMessage())

	evt := s.only("alice")
	s.Equal("room_created", evt["type"])
	s.Equal("ABC234", evt["room_code"])
	s.Empty(s.notifier.take("bob"))
}

func (s *DispatcherSuite) TestCreateRoomTwiceIsDuplicateSession() {
	s.random.QueueString("ABC234", "XYZ789")
	s.send("alice", protocol.CreateRoomMessage())
	s.notifier.take("alice")

	s.send("alice", protocol.CreateRoomMessage())

	s.assertError("alice", protocol.CodeDuplicateSession)
	s.Equal(1, s.rooms.Count())
}

func (s *DispatcherSuite) TestJoinUnknownRoom() {
	s.send("bob", protocol.JoinRoomMessage("NOPE22"))

	s.assertError("bob", protocol.CodeRoomNotFound)
	s.Equal(0, s.rooms.Count())
	_, inRoom := s.rooms.RoomOf("bob")
	s.False(inRoom)
}

func (s *DispatcherSuite) TestJoinBroadcastsToBothPlayers() {
	s.random.QueueString("ROOM01")
	s.send("alice", protocol.CreateRoomMessage())
	s.notifier.take("alice")

	s.send("bob", protocol.JoinRoomMessage("room01"))

	for _, id := range []model.Identity{"alice", "bob"} {
		evt := s.only(id)
		s.Equal("player_joined", evt["type"])
		s.Equal([]any{"alice", "bob"}, evt["players"])
		s.Equal("placement", evt["status"])
	}
}

func (s *DispatcherSuite) TestJoinFullRoom() {
	s.placement()

	s.send("carol", protocol.JoinRoomMessage("ROOM01"))

	s.assertError("carol", protocol.CodeRoomFull)
	s.Empty(s.notifier.take("alice"))
}

// Placement

func (s *DispatcherSuite) TestPlacementAnnouncesReadyThenStart() {
	s.placement()

	s.send("bob", protocol.PlaceShipsMessage(testutil.SmallFleet()))
	for _, id := range []model.Identity{"alice", "bob"} {
		evt := s.only(id)
		s.Equal("player_ready", evt["type"])
		s.Equal("bob", evt["player"])
	}

	s.send("alice", protocol.PlaceShipsMessage(testutil.SmallFleet()))
	for _, id := range []model.Identity{"alice", "bob"} {
		evt := s.only(id)
		s.Equal("game_start", evt["type"])
		s.Equal("alice", evt["current_turn"])
	}

	r, ok := s.rooms.RoomOf("alice")
	s.Require().True(ok)
	s.Equal(model.RoomStatusPlaying, r.Status)
}

func (s *DispatcherSuite) TestPlaceShipsTwice() {
	s.placement()
	s.send("alice", protocol.PlaceShipsMessage(testutil.SmallFleet()))
	s.notifier.take("alice")
	s.notifier.take("bob")

	s.send("alice", protocol.PlaceShipsMessage(testutil.SmallFleet()))

	s.assertError("alice", protocol.CodeAlreadyReady)
	s.Empty(s.notifier.take("bob"))
}

func (s *DispatcherSuite) TestPlaceShipsWithoutRoom() {
	s.send("alice", protocol.PlaceShipsMessage(testutil.SmallFleet()))

	s.assertError("alice", protocol.CodeNotInRoom)
}

func (s *DispatcherSuite) TestPlaceEmptyFleet() {
	s.placement()

	s.send("alice", map[string]any{"type": "place_ships", "ships": map[string]any{}})

	s.assertError("alice", protocol.CodeInvalidFleet)
}

// Attacks

func (s *DispatcherSuite) TestAttackOutOfTurnOnlyTellsAttacker() {
	s.playing()

	s.send("bob", protocol.AttackMessage(0, 0))

	s.assertError("bob", protocol.CodeNotYourTurn)
	s.Empty(s.notifier.take("alice"))

	// alice still holds the turn
	s.send("alice", protocol.AttackMessage(9, 9))
	evt := s.only("alice")
	s.Equal("attack_result", evt["type"])
	s.Equal("bob", evt["current_turn"])
}

func (s *DispatcherSuite) TestAttackBeforeGameStarts() {
	s.placement()

	s.send("alice", protocol.AttackMessage(0, 0))

	s.assertError("alice", protocol.CodeGameNotInProgress)
}

func (s *DispatcherSuite) TestAttackWithoutRoom() {
	s.send("alice", protocol.AttackMessage(0, 0))

	s.assertError("alice", protocol.CodeNotInRoom)
}

func (s *DispatcherSuite) TestGameToCompletion() {
	s.playing()
	s.random.QueueUUID("match-1")

	s.send("alice", protocol.AttackMessage(0, 0))
	for _, id := range []model.Identity{"alice", "bob"} {
		evt := s.only(id)
		s.Equal("attack_result", evt["type"])
		s.Equal("alice", evt["attacker"])
		s.Equal(true, evt["hit"])
		s.Equal("boat", evt["sunk_ship"])
		s.Equal("bob", evt["current_turn"])
	}

	s.send("bob", protocol.AttackMessage(8, 8))
	evt := s.only("alice")
	s.Equal(false, evt["hit"])
	s.Nil(evt["sunk_ship"])
	s.notifier.take("bob")

	s.send("alice", protocol.AttackMessage(2, 0))
	evt = s.only("bob")
	s.Equal(true, evt["hit"])
	s.Nil(evt["sunk_ship"])
	s.notifier.take("alice")

	s.send("bob", protocol.AttackMessage(8, 9))
	s.notifier.take("alice")
	s.notifier.take("bob")

	s.clock.Advance(3 * time.Minute)
	s.send("alice", protocol.AttackMessage(2, 1))
	for _, id := range []model.Identity{"alice", "bob"} {
		evt := s.only(id)
		s.Equal("game_over", evt["type"])
		s.Equal("alice", evt["winner"])
		s.Equal("bob", evt["loser"])
		s.NotContains(evt, "forfeit")
	}

	records := s.recorder.recorded()
	s.Require().Len(records, 1)
	s.Equal(model.MatchID("match-1"), records[0].ID)
	s.Equal(model.Identity("alice"), records[0].Winner)
	s.Equal(3*time.Minute, records[0].Duration)

	s.Equal(0, s.rooms.Count())
	s.send("carol", protocol.JoinRoomMessage("ROOM01"))
	s.assertError("carol", protocol.CodeRoomNotFound)

	// the room is gone, so further attacks have no room
	s.send("alice", protocol.AttackMessage(2, 1))
	s.assertError("alice", protocol.CodeNotInRoom)
	s.Len(s.recorder.recorded(), 1)
}

func (s *DispatcherSuite) TestRepeatAttackReplaysResult() {
	s.playing()

	s.send("alice", protocol.AttackMessage(0, 0))
	s.notifier.take("alice")
	s.notifier.take("bob")
	s.send("bob", protocol.AttackMessage(8, 8))
	s.notifier.take("alice")
	s.notifier.take("bob")

	s.send("alice", protocol.AttackMessage(0, 0))
	evt := s.only("bob")
	s.Equal(true, evt["hit"])
	s.Equal("boat", evt["sunk_ship"])
	s.Empty(s.recorder.recorded())
}

// Chat

func (s *DispatcherSuite) TestChatWithoutRoomIsIgnored() {
	s.send("alice", protocol.ChatMessage("anyone?"))

	s.Empty(s.notifier.take("alice"))
}

func (s *DispatcherSuite) TestChatBroadcastsToRoom() {
	s.placement()

	s.send("bob", protocol.ChatMessage("good luck"))

	for _, id := range []model.Identity{"alice", "bob"} {
		evt := s.only(id)
		s.Equal("chat", evt["type"])
		s.Equal("bob", evt["username"])
		s.Equal("good luck", evt["message"])
		s.Equal("2024-01-01T12:00:00Z", evt["timestamp"])
	}
}

// Malformed input

func (s *DispatcherSuite) TestMalformedMessage() {
	s.dispatcher.Handle(s.ctx, "alice", []byte(`{not json`))

	s.assertError("alice", protocol.CodeMalformedMessage)
}

func (s *DispatcherSuite) TestUnknownCommand() {
	s.dispatcher.Handle(s.ctx, "alice", []byte(`{"type":"surrender"}`))

	s.assertError("alice", protocol.CodeUnknownCommand)
}

func (s *DispatcherSuite) TestPanicIsRecovered() {
	s.playing()
	s.recorder.panics = true
	s.send("alice", protocol.AttackMessage(0, 0))
	s.send("bob", protocol.AttackMessage(8, 8))
	s.send("alice", protocol.AttackMessage(2, 0))
	s.send("bob", protocol.AttackMessage(8, 9))
	s.notifier.take("alice")
	s.notifier.take("bob")

	s.NotPanics(func() {
		s.send("alice", protocol.AttackMessage(2, 1))
	})

	events := s.notifier.take("alice")
	s.Require().Len(events, 2)
	s.Equal("game_over", events[0]["type"])
	s.Equal("error", events[1]["type"])
	s.Equal(protocol.CodeInternalError, events[1]["code"])
}

// Leaving and disconnects

func (s *DispatcherSuite) TestLeaveRoomWhileWaiting() {
	s.random.QueueString("ROOM01")
	s.send("alice", protocol.CreateRoomMessage())
	s.notifier.take("alice")

	s.send("alice", protocol.LeaveRoomMessage())

	evt := s.only("alice")
	s.Equal("room_left", evt["type"])
	s.Equal("ROOM01", evt["room_code"])
	s.Equal(0, s.rooms.Count())
}

func (s *DispatcherSuite) TestLeaveWithoutRoom() {
	s.send("alice", protocol.LeaveRoomMessage())

	s.assertError("alice", protocol.CodeNotInRoom)
}

func (s *DispatcherSuite) TestDisconnectDuringPlacementReturnsRoomToWaiting() {
	s.placement()

	s.dispatcher.Disconnect(s.ctx, "alice")

	evt := s.only("bob")
	s.Equal("player_left", evt["type"])
	s.Equal("alice", evt["player"])
	s.Equal([]any{"bob"}, evt["players"])
	s.Equal("waiting", evt["status"])
	s.Empty(s.recorder.recorded())

	s.send("carol", protocol.JoinRoomMessage("ROOM01"))
	s.Equal("player_joined", s.only("carol")["type"])
	s.Equal("player_joined", s.only("bob")["type"])
}

func (s *DispatcherSuite) TestDisconnectDuringPlayIsForfeit() {
	s.playing()
	s.random.QueueUUID("match-forfeit")
	s.clock.Advance(time.Minute)

	s.dispatcher.Disconnect(s.ctx, "alice")

	evt := s.only("bob")
	s.Equal("game_over", evt["type"])
	s.Equal("bob", evt["winner"])
	s.Equal("alice", evt["loser"])
	s.Equal(true, evt["forfeit"])
	s.Empty(s.notifier.take("alice"))

	records := s.recorder.recorded()
	s.Require().Len(records, 1)
	s.True(records[0].Forfeit)
	s.Equal(model.Identity("bob"), records[0].Winner)
	s.Equal(time.Minute, records[0].Duration)

	s.Equal(0, s.rooms.Count())

	// bob's follow-up actions against the vanished room are rejected cleanly
	s.NotPanics(func() {
		s.send("bob", protocol.AttackMessage(0, 0))
	})
	s.assertError("bob", protocol.CodeNotInRoom)
	s.send("bob", protocol.ChatMessage("hello?"))
	s.Empty(s.notifier.take("bob"))
}

func (s *DispatcherSuite) TestDisconnectWithoutRoomIsNoop() {
	s.NotPanics(func() {
		s.dispatcher.Disconnect(s.ctx, "alice")
	})
	s.Empty(s.notifier.take("alice"))
}

func (s *DispatcherSuite) TestConcurrentAttacksOnlyOneAccepted() {
	s.playing()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatcher.Handle(s.ctx, "alice", []byte(`{"type":"attack","x":7,"y":7}`))
		}()
	}
	wg.Wait()

	results := 0
	errs := 0
	for _, evt := range s.notifier.take("alice") {
		switch evt["type"] {
		case "attack_result":
			results++
		case "error":
			errs++
			s.Equal(protocol.CodeNotYourTurn, evt["code"])
		}
	}
	s.Equal(1, results)
	s.Equal(9, errs)
}
