package testutil

import "github.com/mcoot/battleship-go/internal/model"

// Cell is a shorthand coordinate for building fleets in tests
type Cell struct{ X, Y int }

// Ship builds a ship from the given cells
func Ship(cells ...Cell) model.Ship {
	coords := make([]model.Coord, len(cells))
	for i, c := range cells {
		coords[i] = model.Coord{X: c.X, Y: c.Y}
	}
	return model.Ship{Coords: coords}
}

// SmallFleet is a three-cell fleet: a one-cell "boat" at (0,0) and a
// two-cell "destroyer" at (2,0),(2,1)
func SmallFleet() model.Board {
	return model.Board{
		"boat":      Ship(Cell{0, 0}),
		"destroyer": Ship(Cell{2, 0}, Cell{2, 1}),
	}
}

// SingleCellFleet is a fleet of one ship occupying one cell
func SingleCellFleet(x, y int) model.Board {
	return model.Board{"boat": Ship(Cell{x, y})}
}
