// Package dispatch routes decoded protocol commands to the room store and
// turns their results into outbound events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/battleship-go/internal/dependencies/clock"
	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/protocol"
	"github.com/mcoot/battleship-go/internal/services/room"
)

// Notifier delivers events to connected identities. Delivery is best-effort.
type Notifier interface {
	Send(id model.Identity, event any)
	Broadcast(ids []model.Identity, event any)
}

// Recorder accepts finished matches. Record must not block on storage.
type Recorder interface {
	Record(rec model.MatchRecord)
}

// Dispatcher is stateless apart from its collaborators; all game state lives
// in the room store.
type Dispatcher struct {
	rooms    *room.Store
	notifier Notifier
	recorder Recorder
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a dispatcher
func New(rooms *room.Store, notifier Notifier, recorder Recorder, clock clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		rooms:    rooms,
		notifier: notifier,
		recorder: recorder,
		clock:    clock,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Handle decodes and executes one inbound message from the identity.
// Failures are reported to the sender as error events and never escape.
func (d *Dispatcher) Handle(ctx context.Context, id model.Identity, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic handling message",
				slog.String("identity", string(id)),
				slog.String("panic", fmt.Sprint(rec)))
			d.notifier.Send(id, protocol.ErrorEventFrom(fmt.Errorf("panic: %v", rec)))
		}
	}()

	cmd, err := protocol.Decode(raw)
	if err != nil {
		d.logger.Debug("rejected message",
			slog.String("identity", string(id)),
			slog.String("error", err.Error()))
		d.notifier.Send(id, protocol.ErrorEventFrom(err))
		return
	}

	if err := d.dispatch(ctx, id, cmd); err != nil {
		d.logger.Debug("command failed",
			slog.String("identity", string(id)),
			slog.String("command", string(cmd.Type())),
			slog.String("error", err.Error()))
		d.notifier.Send(id, protocol.ErrorEventFrom(err))
	}
}

// Disconnect cleans up after an identity's connection has gone away
func (d *Dispatcher) Disconnect(ctx context.Context, id model.Identity) {
	res, err := d.rooms.Leave(id)
	if errors.Is(err, model.ErrNotInRoom) {
		return
	}
	if err != nil {
		d.logger.Error("cleanup after disconnect failed",
			slog.String("identity", string(id)),
			slog.String("error", err.Error()))
		return
	}
	d.announceLeave(res)
}

func (d *Dispatcher) dispatch(ctx context.Context, id model.Identity, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.CreateRoom:
		return d.createRoom(id)
	case protocol.JoinRoom:
		return d.joinRoom(id, c)
	case protocol.PlaceShips:
		return d.placeShips(id, c)
	case protocol.Attack:
		return d.attack(id, c)
	case protocol.Chat:
		d.chat(id, c)
		return nil
	case protocol.LeaveRoom:
		return d.leaveRoom(id)
	default:
		return fmt.Errorf("%w: %s", model.ErrUnknownCommand, cmd.Type())
	}
}

func (d *Dispatcher) createRoom(id model.Identity) error {
	r, err := d.rooms.Create(id)
	if err != nil {
		return err
	}
	d.notifier.Send(id, protocol.NewRoomCreated(r.Code))
	return nil
}

func (d *Dispatcher) joinRoom(id model.Identity, c protocol.JoinRoom) error {
	r, err := d.rooms.Join(id, c.RoomCode)
	if err != nil {
		return err
	}
	d.notifier.Broadcast(r.Players, protocol.NewPlayerJoined(r))
	return nil
}

func (d *Dispatcher) placeShips(id model.Identity, c protocol.PlaceShips) error {
	res, err := d.rooms.PlaceShips(id, c.Ships)
	if err != nil {
		return err
	}
	if res.Started {
		d.notifier.Broadcast(res.Room.Players, protocol.NewGameStart(res.Turn))
	} else {
		d.notifier.Broadcast(res.Room.Players, protocol.NewPlayerReady(id))
	}
	return nil
}

func (d *Dispatcher) attack(id model.Identity, c protocol.Attack) error {
	res, err := d.rooms.Attack(id, c.X, c.Y)
	if err != nil {
		return err
	}

	if res.Match != nil {
		d.notifier.Broadcast(res.Room.Players, protocol.NewGameOver(*res.Match))
		d.recorder.Record(*res.Match)
		return nil
	}

	out := res.Outcome
	d.notifier.Broadcast(res.Room.Players,
		protocol.NewAttackResult(out.Attacker, out.X, out.Y, out.Hit, out.SunkShip, out.NextTurn))
	return nil
}

func (d *Dispatcher) chat(id model.Identity, c protocol.Chat) {
	r, ok := d.rooms.RoomOf(id)
	if !ok {
		return
	}
	d.notifier.Broadcast(r.Players, protocol.NewChat(id, c.Message, d.clock.Now()))
}

func (d *Dispatcher) leaveRoom(id model.Identity) error {
	res, err := d.rooms.Leave(id)
	if err != nil {
		return err
	}
	d.notifier.Send(id, protocol.NewRoomLeft(res.Code))
	d.announceLeave(res)
	return nil
}

func (d *Dispatcher) announceLeave(res room.LeaveResult) {
	switch {
	case res.Match != nil:
		d.notifier.Broadcast(res.Remaining, protocol.NewGameOver(*res.Match))
		d.recorder.Record(*res.Match)
	case res.Room != nil:
		d.notifier.Broadcast(res.Remaining, protocol.NewPlayerLeft(res.Left, *res.Room))
	}
}
