package session

import (
	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/rules"
)

// Snapshot is a detached copy of a game, safe to hand to other goroutines.
type Snapshot struct {
	State         State
	Rules         rules.Kind
	Board         *board.Board
	Clocks        clock.Clocks
	Turn          board.Cell
	PassCount     int
	BlackCaptured int
	WhiteCaptured int
	MoveNumber    int
	DrawOfferBy   board.Cell
	Winner        rules.Winner
	Reason        string
	Score         rules.Result
}

func (g *Game) Snapshot() Snapshot {
	return Snapshot{
		State:         g.state,
		Rules:         g.ruleset.Kind(),
		Board:         g.board.Clone(),
		Clocks:        g.clocks,
		Turn:          g.turn,
		PassCount:     g.passCount,
		BlackCaptured: g.captured[board.Black],
		WhiteCaptured: g.captured[board.White],
		MoveNumber:    g.moveNumber,
		DrawOfferBy:   g.drawOfferBy,
		Winner:        g.winner,
		Reason:        g.reason,
		Score:         g.score,
	}
}
