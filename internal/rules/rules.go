// Package rules holds the game-mode specific parts shared by every session:
// Go capture and area scoring, and the omok five-in-a-row scan.
package rules

import (
	"fmt"
	"strings"

	"github.com/park285/baduk-omok-server/internal/board"
)

// Komi is the fixed bonus white receives in Go scoring.
const Komi = 6.5

type Kind string

const (
	KindGo   Kind = "go"
	KindOmok Kind = "omok"
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "go", "baduk":
		return KindGo, nil
	case "omok", "gomoku":
		return KindOmok, nil
	default:
		return "", fmt.Errorf("unknown rules %q", s)
	}
}

// Winner is the result side of a finished game.
type Winner int

const (
	NoWinner Winner = iota
	WinnerBlack
	WinnerWhite
	WinnerDraw
)

func (w Winner) String() string {
	switch w {
	case WinnerBlack:
		return "black"
	case WinnerWhite:
		return "white"
	case WinnerDraw:
		return "draw"
	default:
		return "none"
	}
}

// WinnerFor maps a stone colour to its winning side.
func WinnerFor(c board.Cell) Winner {
	switch c {
	case board.Black:
		return WinnerBlack
	case board.White:
		return WinnerWhite
	default:
		return NoWinner
	}
}

// Outcome is what a single placement produced.
type Outcome struct {
	Captured int
	// Winner is set when the placement ends the game.
	Winner Winner
	Reason string
}

// Result of scoring a game that ended by consecutive passes.
type Result struct {
	Winner     Winner
	BlackScore float64
	WhiteScore float64
}

// Ruleset is implemented by every game mode.
type Ruleset interface {
	Kind() Kind
	Play(b *board.Board, p board.Point, c board.Cell) (Outcome, error)
	Score(b *board.Board, blackCaptured, whiteCaptured int) Result
}

func New(kind Kind) Ruleset {
	if kind == KindOmok {
		return Omok{WinLength: 5}
	}
	return Go{}
}

// Go is capture Go with the area approximation: stones on board plus captures,
// and Komi for white.
type Go struct{}

func (Go) Kind() Kind { return KindGo }

func (Go) Play(b *board.Board, p board.Point, c board.Cell) (Outcome, error) {
	n, err := b.Place(p.Row, p.Col, c)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Captured: n}, nil
}

// Score never returns a draw: the fractional komi breaks every tie, and an
// exact equality still goes to white.
func (Go) Score(b *board.Board, blackCaptured, whiteCaptured int) Result {
	black, white := b.CountStones()
	bs := float64(black + blackCaptured)
	ws := float64(white+whiteCaptured) + Komi
	r := Result{BlackScore: bs, WhiteScore: ws, Winner: WinnerWhite}
	if bs > ws {
		r.Winner = WinnerBlack
	}
	return r
}

// Omok has no captures; the first line of WinLength stones wins.
type Omok struct {
	WinLength int
}

func (Omok) Kind() Kind { return KindOmok }

func (o Omok) Play(b *board.Board, p board.Point, c board.Cell) (Outcome, error) {
	if !b.InBounds(p.Row, p.Col) {
		return Outcome{}, fmt.Errorf("%w: %s", board.ErrOutOfBounds, p)
	}
	if b.At(p.Row, p.Col) != board.Empty {
		return Outcome{}, fmt.Errorf("%w: %s", board.ErrOccupied, p)
	}
	if err := b.Set(p.Row, p.Col, c); err != nil {
		return Outcome{}, err
	}
	b.SetLastMove(&p)
	if o.IsWin(b, p) {
		return Outcome{Winner: WinnerFor(c), Reason: "five_in_row"}, nil
	}
	if b.Full() {
		return Outcome{Winner: WinnerDraw, Reason: "board_full"}, nil
	}
	return Outcome{}, nil
}

// Score for omok: a game ended by passes is a draw.
func (Omok) Score(*board.Board, int, int) Result {
	return Result{Winner: WinnerDraw}
}

// IsWin scans the four lines through p for a run of at least WinLength stones.
func (o Omok) IsWin(b *board.Board, p board.Point) bool {
	c := b.At(p.Row, p.Col)
	if c == board.Empty {
		return false
	}
	need := o.WinLength
	if need <= 0 {
		need = 5
	}
	directions := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range directions {
		count := 1
		count += countDirection(b, p, d[0], d[1], c)
		count += countDirection(b, p, -d[0], -d[1], c)
		if count >= need {
			return true
		}
	}
	return false
}

func countDirection(b *board.Board, p board.Point, dr, dc int, c board.Cell) int {
	n := 0
	r, col := p.Row+dr, p.Col+dc
	for b.InBounds(r, col) && b.At(r, col) == c {
		n++
		r += dr
		col += dc
	}
	return n
}
