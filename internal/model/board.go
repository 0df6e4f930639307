package model

// Coord is a single ship cell; Hit is flipped when an attack lands on it
type Coord struct {
	X   int
	Y   int
	Hit bool
}

// Ship is an ordered list of cells
type Ship struct {
	Coords []Coord
}

// Sunk returns true once every cell of the ship has been hit
func (s Ship) Sunk() bool {
	if len(s.Coords) == 0 {
		return false
	}
	for _, c := range s.Coords {
		if !c.Hit {
			return false
		}
	}
	return true
}

// Board maps ship name to ship. Placement legality is not checked.
type Board map[string]Ship

// Fresh returns a deep copy of the board with every hit flag cleared
func (b Board) Fresh() Board {
	out := make(Board, len(b))
	for name, ship := range b {
		coords := make([]Coord, len(ship.Coords))
		for i, c := range ship.Coords {
			coords[i] = Coord{X: c.X, Y: c.Y}
		}
		out[name] = Ship{Coords: coords}
	}
	return out
}

// AllSunk returns true when every ship on the board is sunk
func (b Board) AllSunk() bool {
	if len(b) == 0 {
		return false
	}
	for _, ship := range b {
		if !ship.Sunk() {
			return false
		}
	}
	return true
}

// CellCount returns the total number of ship cells on the board
func (b Board) CellCount() int {
	n := 0
	for _, ship := range b {
		n += len(ship.Coords)
	}
	return n
}

// ShotRecord is one entry in an attacker's shot log
type ShotRecord struct {
	X   int
	Y   int
	Hit bool
}
