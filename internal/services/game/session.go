package game

import (
	"sort"
	"time"

	"github.com/mcoot/battleship-go/internal/model"
)

// Phase is the lifecycle stage of a session
type Phase string

const (
	PhasePlacement Phase = "placement" // Waiting for both fleets
	PhasePlaying   Phase = "playing"   // Alternating attacks
	PhaseFinished  Phase = "finished"  // Terminal
)

type cell struct{ x, y int }

// Player is one of the two fixed slots in a session
type Player struct {
	Identity model.Identity
	Board    model.Board
	Ready    bool
	Shots    []model.ShotRecord // attacks made by this player

	// sunk result of the first strike on each cell of this player's board
	strikes map[cell]string
}

// Result describes how a session ended
type Result struct {
	Winner     model.Identity
	Loser      model.Identity
	Duration   time.Duration
	FinishedAt time.Time
	Forfeit    bool
}

// AttackOutcome is the result of an accepted attack
type AttackOutcome struct {
	Attacker model.Identity
	X, Y     int
	Hit      bool
	SunkShip string // empty if the strike sank nothing
	NextTurn model.Identity
	Result   *Result // set when this attack won the game
}

// Session is the per-room game state machine. It is not safe for
// concurrent use; the owning room serialises access.
type Session struct {
	Home      *Player // host
	Away      *Player
	Turn      model.Identity
	Phase     Phase
	StartedAt time.Time
	Result    *Result
}

// New creates a session in the placement phase with the host holding the first turn
func New(host, guest model.Identity, startedAt time.Time) *Session {
	return &Session{
		Home:      &Player{Identity: host, strikes: make(map[cell]string)},
		Away:      &Player{Identity: guest, strikes: make(map[cell]string)},
		Turn:      host,
		Phase:     PhasePlacement,
		StartedAt: startedAt,
	}
}

// Player returns the slot for the identity, or nil if it is not in the session
func (s *Session) Player(id model.Identity) *Player {
	switch id {
	case s.Home.Identity:
		return s.Home
	case s.Away.Identity:
		return s.Away
	}
	return nil
}

// Opponent returns the slot facing the identity, or nil if it is not in the session
func (s *Session) Opponent(id model.Identity) *Player {
	switch id {
	case s.Home.Identity:
		return s.Away
	case s.Away.Identity:
		return s.Home
	}
	return nil
}

// PlaceShips records a player's fleet. It returns true when this placement
// completed both fleets and the session moved to the playing phase.
func (s *Session) PlaceShips(id model.Identity, board model.Board) (bool, error) {
	if s.Phase != PhasePlacement {
		return false, model.ErrNotInPlacement
	}
	p := s.Player(id)
	if p == nil {
		return false, model.ErrNotInRoom
	}
	if p.Ready {
		return false, model.ErrAlreadyReady
	}
	if !validFleet(board) {
		return false, model.ErrInvalidFleet
	}

	p.Board = board.Fresh()
	p.Ready = true

	if s.Home.Ready && s.Away.Ready {
		s.Phase = PhasePlaying
		s.Turn = s.Home.Identity
		return true, nil
	}
	return false, nil
}

// Attack resolves a shot from the identity holding the turn
func (s *Session) Attack(id model.Identity, x, y int, now time.Time) (AttackOutcome, error) {
	if s.Phase != PhasePlaying {
		return AttackOutcome{}, model.ErrGameNotInProgress
	}
	attacker := s.Player(id)
	if attacker == nil {
		return AttackOutcome{}, model.ErrNotInRoom
	}
	if id != s.Turn {
		return AttackOutcome{}, model.ErrNotYourTurn
	}
	defender := s.Opponent(id)

	hit, sunk := defender.strike(x, y)
	attacker.Shots = append(attacker.Shots, model.ShotRecord{X: x, Y: y, Hit: hit})

	out := AttackOutcome{Attacker: id, X: x, Y: y, Hit: hit, SunkShip: sunk}

	if defender.Board.AllSunk() {
		out.Result = s.finish(id, defender.Identity, now, false)
		return out, nil
	}

	s.Turn = defender.Identity
	out.NextTurn = s.Turn
	return out, nil
}

// Forfeit ends a playing session in favour of the identity that did not leave
func (s *Session) Forfeit(leaver model.Identity, now time.Time) (*Result, error) {
	if s.Phase != PhasePlaying {
		return nil, model.ErrGameNotInProgress
	}
	winner := s.Opponent(leaver)
	if winner == nil {
		return nil, model.ErrNotInRoom
	}
	return s.finish(winner.Identity, leaver, now, true), nil
}

func (s *Session) finish(winner, loser model.Identity, now time.Time, forfeit bool) *Result {
	s.Phase = PhaseFinished
	s.Result = &Result{
		Winner:     winner,
		Loser:      loser,
		Duration:   now.Sub(s.StartedAt),
		FinishedAt: now,
		Forfeit:    forfeit,
	}
	return s.Result
}

// strike marks every unhit coordinate at (x, y) on the player's board.
// Ships are visited in name order so overlapping fleets resolve deterministically.
func (p *Player) strike(x, y int) (hit bool, sunk string) {
	target := cell{x, y}
	flipped := false

	names := make([]string, 0, len(p.Board))
	for name := range p.Board {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ship := p.Board[name]
		struck := false
		for i := range ship.Coords {
			c := &ship.Coords[i]
			if c.X != x || c.Y != y {
				continue
			}
			hit = true
			if !c.Hit {
				c.Hit = true
				struck = true
			}
		}
		if struck {
			flipped = true
			if ship.Sunk() {
				sunk = name
			}
		}
	}

	if flipped {
		p.strikes[target] = sunk
		return hit, sunk
	}
	// Repeat strike on a cell that was already hit
	if hit {
		return true, p.strikes[target]
	}
	return false, ""
}

// validFleet only rejects boards with nothing to sink. Placement rules such as
// bounds and overlap are not checked.
func validFleet(board model.Board) bool {
	if len(board) == 0 {
		return false
	}
	for _, ship := range board {
		if len(ship.Coords) == 0 {
			return false
		}
	}
	return true
}
