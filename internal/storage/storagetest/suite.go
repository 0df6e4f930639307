// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/storage"
)

// Suite is embedded by backend test suites. Backends set Storage in their
// SetupTest before calling Suite.SetupTest.
type Suite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.Ctx = context.Background()
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func (s *Suite) user(name string) *model.User {
	return &model.User{Username: model.Identity(name), PasswordHash: "hash-" + name, CreatedAt: epoch}
}

func (s *Suite) match(id, winner, loser string, offset time.Duration) *model.MatchRecord {
	return &model.MatchRecord{
		ID:         model.MatchID(id),
		Player1:    model.Identity(winner),
		Player2:    model.Identity(loser),
		Winner:     model.Identity(winner),
		Loser:      model.Identity(loser),
		Duration:   95 * time.Second,
		FinishedAt: epoch.Add(offset),
	}
}

// User tests

func (s *Suite) TestCreateAndGetUser() {
	s.Require().NoError(s.Storage.CreateUser(s.Ctx, s.user("alice")))

	got, err := s.Storage.GetUser(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.Identity("alice"), got.Username)
	s.Equal("hash-alice", got.PasswordHash)
	s.Equal(model.Stats{}, got.Stats)
	s.True(epoch.Equal(got.CreatedAt))
}

func (s *Suite) TestCreateUserDuplicate() {
	s.Require().NoError(s.Storage.CreateUser(s.Ctx, s.user("alice")))

	err := s.Storage.CreateUser(s.Ctx, s.user("alice"))
	s.ErrorIs(err, model.ErrUserExists)
}

func (s *Suite) TestGetUserNotFound() {
	_, err := s.Storage.GetUser(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestListUsers() {
	for _, name := range []string{"carol", "alice", "bob"} {
		s.Require().NoError(s.Storage.CreateUser(s.Ctx, s.user(name)))
	}

	users, err := s.Storage.ListUsers(s.Ctx)
	s.Require().NoError(err)
	s.Len(users, 3)

	names := make([]model.Identity, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	s.ElementsMatch([]model.Identity{"alice", "bob", "carol"}, names)
}

func (s *Suite) TestIncrementStats() {
	s.Require().NoError(s.Storage.CreateUser(s.Ctx, s.user("alice")))

	s.Require().NoError(s.Storage.IncrementStats(s.Ctx, "alice", model.OutcomeWin))
	s.Require().NoError(s.Storage.IncrementStats(s.Ctx, "alice", model.OutcomeWin))
	s.Require().NoError(s.Storage.IncrementStats(s.Ctx, "alice", model.OutcomeLoss))

	got, err := s.Storage.GetUser(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.Stats{Wins: 2, Losses: 1, GamesPlayed: 3}, got.Stats)
}

func (s *Suite) TestIncrementStatsUnknownUser() {
	err := s.Storage.IncrementStats(s.Ctx, "nobody", model.OutcomeWin)
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestConcurrentIncrements() {
	s.Require().NoError(s.Storage.CreateUser(s.Ctx, s.user("alice")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Storage.IncrementStats(s.Ctx, "alice", model.OutcomeWin)
		}()
	}
	wg.Wait()

	got, err := s.Storage.GetUser(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(20, got.Stats.Wins)
	s.Equal(20, got.Stats.GamesPlayed)
}

// Match tests

func (s *Suite) TestSaveAndGetMatch() {
	rec := s.match("m-1", "alice", "bob", 0)
	rec.Forfeit = true

	created, err := s.Storage.SaveMatch(s.Ctx, rec)
	s.Require().NoError(err)
	s.True(created)

	got, err := s.Storage.GetMatch(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Equal(rec.Winner, got.Winner)
	s.Equal(rec.Loser, got.Loser)
	s.Equal(rec.Player1, got.Player1)
	s.Equal(rec.Player2, got.Player2)
	s.Equal(int64(95), got.DurationSeconds())
	s.True(rec.FinishedAt.Equal(got.FinishedAt))
	s.True(got.Forfeit)
}

func (s *Suite) TestSaveMatchIsIdempotent() {
	rec := s.match("m-1", "alice", "bob", 0)

	created, err := s.Storage.SaveMatch(s.Ctx, rec)
	s.Require().NoError(err)
	s.True(created)

	created, err = s.Storage.SaveMatch(s.Ctx, rec)
	s.Require().NoError(err)
	s.False(created)

	matches, err := s.Storage.ListMatchesForPlayer(s.Ctx, "alice", 10)
	s.Require().NoError(err)
	s.Len(matches, 1)
}

func (s *Suite) TestGetMatchNotFound() {
	_, err := s.Storage.GetMatch(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestListMatchesNewestFirst() {
	for i := 0; i < 5; i++ {
		rec := s.match(fmt.Sprintf("m-%d", i), "alice", "bob", time.Duration(i)*time.Minute)
		_, err := s.Storage.SaveMatch(s.Ctx, rec)
		s.Require().NoError(err)
	}
	_, err := s.Storage.SaveMatch(s.Ctx, s.match("other", "carol", "dave", time.Hour))
	s.Require().NoError(err)

	matches, err := s.Storage.ListMatchesForPlayer(s.Ctx, "bob", 3)
	s.Require().NoError(err)
	s.Require().Len(matches, 3)
	s.Equal(model.MatchID("m-4"), matches[0].ID)
	s.Equal(model.MatchID("m-3"), matches[1].ID)
	s.Equal(model.MatchID("m-2"), matches[2].ID)
}

func (s *Suite) TestListMatchesEmpty() {
	matches, err := s.Storage.ListMatchesForPlayer(s.Ctx, "alice", 20)
	s.Require().NoError(err)
	s.Empty(matches)
}
