// Package opponent picks moves for automated seats. Strategies are black boxes
// to the rest of the server: they only ever see a copy of the position.
package opponent

import (
	"context"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/rules"
)

// Move is either a placement at Coord or a pass.
type Move struct {
	Coord int
	Pass  bool
}

// Position is what a strategy is allowed to look at.
type Position struct {
	Board *board.Board
	Rules rules.Kind
}

type Strategy interface {
	Choose(ctx context.Context, pos Position, color board.Cell) (Move, error)
}
