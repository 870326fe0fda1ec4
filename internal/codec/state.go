package codec

import (
	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/rules"
	"github.com/park285/baduk-omok-server/internal/session"
)

func ColorOf(c board.Cell) Color {
	switch c {
	case board.Black:
		return ColorBlack
	case board.White:
		return ColorWhite
	default:
		return ColorFree
	}
}

// Cell maps a wire colour back to a stone; Free and Error become Empty.
func (c Color) Cell() board.Cell {
	switch c {
	case ColorBlack:
		return board.Black
	case ColorWhite:
		return board.White
	default:
		return board.Empty
	}
}

// WinnerColor encodes a result; a draw is ColorFree.
func WinnerColor(w rules.Winner) Color {
	switch w {
	case rules.WinnerBlack:
		return ColorBlack
	case rules.WinnerWhite:
		return ColorWhite
	case rules.WinnerDraw:
		return ColorFree
	default:
		return ColorError
	}
}

func TimeInfo(c clock.PlayerClock) PlayerTimeInfo {
	return PlayerTimeInfo{
		MainMs:     c.MainTimeRemainingMs,
		OvertimeMs: c.OvertimeRemainingMs,
		Periods:    uint32(max(c.OvertimePeriodsRemaining, 0)),
		InOvertime: c.InOvertime,
		Expired:    c.Expired,
	}
}

// FromSnapshot builds the wire game state. Turn is Free unless the game is
// being played.
func FromSnapshot(s session.Snapshot) GameState {
	gs := GameState{
		Board:         EncodeBoard(s.Board),
		BlackTime:     TimeInfo(s.Clocks.Black),
		WhiteTime:     TimeInfo(s.Clocks.White),
		Turn:          ColorFree,
		BlackCaptured: uint32(s.BlackCaptured),
		WhiteCaptured: uint32(s.WhiteCaptured),
		PassCount:     uint32(s.PassCount),
		MoveNumber:    uint32(s.MoveNumber),
		LastMove:      -1,
	}
	switch s.State {
	case session.StatePlaying:
		gs.Phase = PhasePlaying
		gs.Turn = ColorOf(s.Turn)
	case session.StateFinished:
		gs.Phase = PhaseFinished
	default:
		gs.Phase = PhaseSetup
	}
	if p, ok := s.Board.LastMove(); ok {
		gs.LastMove = Coordinate(p.Row, p.Col, s.Board.Size())
	}
	return gs
}

// DecodedBoard rebuilds the board carried by gs, last move included.
func (gs GameState) DecodedBoard() (*board.Board, error) {
	b, err := DecodeBoard(gs.Board)
	if err != nil {
		return nil, err
	}
	if gs.LastMove >= 0 {
		if gs.LastMove >= gs.Board.Size*gs.Board.Size {
			return nil, malformed("game_state.last_move", "coordinate %d out of range", gs.LastMove)
		}
		p := Point(gs.LastMove, gs.Board.Size)
		b.SetLastMove(&p)
	}
	return b, nil
}
