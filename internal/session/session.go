// Package session is the per-game state machine. A Game is not safe for
// concurrent use; the room host owns it and applies one action at a time.
package session

import (
	"errors"
	"fmt"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/rules"
)

var (
	ErrNotYourTurn    = errors.New("not your turn")
	ErrGameNotPlaying = errors.New("game is not in progress")
	ErrGameFinished   = errors.New("game already finished")
	ErrAlreadyStarted = errors.New("game already started")
	ErrNoDrawOffer    = errors.New("no draw offer to answer")
	ErrStaleMessage   = errors.New("stale or duplicate message")
	ErrInvalidColor   = errors.New("invalid player colour")
)

type State int

const (
	StateSetup State = iota
	StatePlaying
	StateFinished
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return "setup"
	}
}

// Finish reasons.
const (
	ReasonDoublePass = "double_pass"
	ReasonResign     = "resign"
	ReasonDraw       = "draw"
	ReasonTimeout    = "timeout"
	ReasonDisconnect = "disconnect"
)

type Config struct {
	Size        int
	Rules       rules.Kind
	TimeControl clock.TimeControl
	Suicide     board.SuicidePolicy
}

type Game struct {
	cfg     Config
	ruleset rules.Ruleset

	state      State
	board      *board.Board
	clocks     clock.Clocks
	turn       board.Cell
	passCount  int
	captured   [3]int
	moveNumber int

	drawOfferBy board.Cell
	lastSeq     [3]uint64

	winner rules.Winner
	reason string
	score  rules.Result
}

func New(cfg Config) (*Game, error) {
	b, err := board.New(cfg.Size)
	if err != nil {
		return nil, err
	}
	if cfg.Rules == "" {
		cfg.Rules = rules.KindGo
	}
	b.WithSuicidePolicy(cfg.Suicide)
	return &Game{
		cfg:     cfg,
		ruleset: rules.New(cfg.Rules),
		state:   StateSetup,
		board:   b,
		clocks:  clock.NewClocks(cfg.TimeControl),
		turn:    board.Black,
	}, nil
}

func (g *Game) State() State         { return g.state }
func (g *Game) Turn() board.Cell     { return g.turn }
func (g *Game) Winner() rules.Winner { return g.winner }
func (g *Game) Reason() string       { return g.reason }
func (g *Game) Config() Config       { return g.cfg }

func (g *Game) Captured(c board.Cell) int {
	if c != board.Black && c != board.White {
		return 0
	}
	return g.captured[c]
}

// Start moves Setup to Playing with fresh clocks and black to move.
func (g *Game) Start() error {
	switch g.state {
	case StateFinished:
		return ErrGameFinished
	case StatePlaying:
		return ErrAlreadyStarted
	}
	g.clocks = clock.NewClocks(g.cfg.TimeControl)
	g.turn = board.Black
	g.passCount = 0
	g.state = StatePlaying
	return nil
}

// Place plays a stone for color at the canonical coordinate. It returns the
// number of stones captured by the move.
func (g *Game) Place(color board.Cell, coord int) (int, error) {
	if err := g.checkMove(color); err != nil {
		return 0, err
	}
	size := g.board.Size()
	if coord < 0 || coord >= size*size {
		return 0, fmt.Errorf("%w: coordinate %d", board.ErrOutOfBounds, coord)
	}
	p := board.Point{Row: coord / size, Col: coord % size}
	out, err := g.ruleset.Play(g.board, p, color)
	if err != nil {
		return 0, err
	}

	g.captured[color] += out.Captured
	g.passCount = 0
	g.drawOfferBy = board.Empty
	g.moveNumber++
	g.clocks.Reset(color)
	if out.Winner != rules.NoWinner {
		g.finish(out.Winner, out.Reason)
		return out.Captured, nil
	}
	g.turn = color.Opponent()
	return out.Captured, nil
}

// Pass hands the turn over; the second consecutive pass ends and scores the game.
func (g *Game) Pass(color board.Cell) error {
	if err := g.checkMove(color); err != nil {
		return err
	}
	g.passCount++
	g.drawOfferBy = board.Empty
	g.moveNumber++
	g.clocks.Reset(color)
	if g.passCount >= 2 {
		g.score = g.ruleset.Score(g.board, g.captured[board.Black], g.captured[board.White])
		g.finish(g.score.Winner, ReasonDoublePass)
		return nil
	}
	g.turn = color.Opponent()
	return nil
}

// Resign ends the game in favour of the opponent, whoever is on move.
func (g *Game) Resign(color board.Cell) error {
	if err := g.checkActive(color); err != nil {
		return err
	}
	g.finish(rules.WinnerFor(color.Opponent()), ReasonResign)
	return nil
}

// OfferDraw records an offer from color. If the opponent already has an
// offer pending, the two offers agree and the game ends drawn.
func (g *Game) OfferDraw(color board.Cell) (agreed bool, err error) {
	if err := g.checkActive(color); err != nil {
		return false, err
	}
	if g.drawOfferBy == color.Opponent() {
		g.finish(rules.WinnerDraw, ReasonDraw)
		return true, nil
	}
	g.drawOfferBy = color
	return false, nil
}

// AnswerDraw accepts or declines the opponent's pending offer.
func (g *Game) AnswerDraw(color board.Cell, accept bool) error {
	if err := g.checkActive(color); err != nil {
		return err
	}
	if g.drawOfferBy != color.Opponent() {
		return ErrNoDrawOffer
	}
	g.drawOfferBy = board.Empty
	if accept {
		g.finish(rules.WinnerDraw, ReasonDraw)
	}
	return nil
}

func (g *Game) DrawOfferBy() board.Cell { return g.drawOfferBy }

// Tick advances the clock of the side on move. forfeit is the colour that
// lost on time, or Empty.
func (g *Game) Tick(elapsedMs int64) (forfeit board.Cell, err error) {
	if err := g.checkState(); err != nil {
		return board.Empty, err
	}
	expired, err := g.clocks.Tick(g.turn, elapsedMs)
	if err != nil {
		return board.Empty, err
	}
	if !expired {
		return board.Empty, nil
	}
	loser := g.turn
	g.finish(rules.WinnerFor(loser.Opponent()), ReasonTimeout)
	return loser, nil
}

// Disconnect finishes the game against color without waiting for its clock.
func (g *Game) Disconnect(color board.Cell) error {
	if err := g.checkActive(color); err != nil {
		return err
	}
	g.finish(rules.WinnerFor(color.Opponent()), ReasonDisconnect)
	return nil
}

// CheckSequence rejects replayed or reordered messages. Zero means the
// sender does not number its messages.
func (g *Game) CheckSequence(color board.Cell, seq uint64) error {
	if color != board.Black && color != board.White {
		return ErrInvalidColor
	}
	if seq == 0 {
		return nil
	}
	if seq <= g.lastSeq[color] {
		return fmt.Errorf("%w: seq %d after %d", ErrStaleMessage, seq, g.lastSeq[color])
	}
	g.lastSeq[color] = seq
	return nil
}

func (g *Game) finish(w rules.Winner, reason string) {
	g.state = StateFinished
	g.winner = w
	g.reason = reason
	g.drawOfferBy = board.Empty
}

func (g *Game) checkState() error {
	switch g.state {
	case StateFinished:
		return ErrGameFinished
	case StateSetup:
		return ErrGameNotPlaying
	}
	return nil
}

func (g *Game) checkActive(color board.Cell) error {
	if color != board.Black && color != board.White {
		return ErrInvalidColor
	}
	return g.checkState()
}

func (g *Game) checkMove(color board.Cell) error {
	if err := g.checkActive(color); err != nil {
		return err
	}
	if color != g.turn {
		return ErrNotYourTurn
	}
	return nil
}
