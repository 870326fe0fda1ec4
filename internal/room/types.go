package room

import (
	"context"
	"strings"
	"time"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/opponent"
	"github.com/park285/baduk-omok-server/internal/session"
)

// ColorChoice is the creator's seat preference.
type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

func ParseColorChoice(s string) ColorChoice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return ColorWhite
	case "black", "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

// Seat is a session key bound to one colour of one room.
type Seat struct {
	Key   string     `json:"session_key"`
	Color board.Cell `json:"-"`
}

// Config describes a room at creation time.
type Config struct {
	Game session.Config
	// Opponent, when set, plays OpponentColor automatically and no session
	// key is issued for that colour.
	Opponent      opponent.Strategy
	OpponentColor board.Cell
	// AutoStart starts the game right away instead of waiting for GameStart.
	AutoStart bool
}

// Publisher receives every broadcast frame of a room.
type Publisher interface {
	Publish(ctx context.Context, roomID string, frame []byte) error
}

type Options struct {
	MaxRooms       int
	TickInterval   time.Duration
	FinishedLinger time.Duration
	Publisher      Publisher
	Messages       Texts
}

// Texts renders human-readable rejection messages. *msgcat.Catalog satisfies it.
type Texts interface {
	Text(key string, data any, fallback string) string
}

// Errors
var (
	ErrInvalidArgs       = errf("invalid arguments")
	ErrUnknownSessionKey = errf("unknown session key")
	ErrTooManyRooms      = errf("too many concurrent rooms")
	ErrRoomClosed        = errf("room closed")
	// 세션 키가 다른 방에 속해 있는 경우
	ErrWrongRoom = errf("session key belongs to another room")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Resolve picks a concrete colour; coin decides ColorRandom.
func (c ColorChoice) Resolve(coin func() bool) board.Cell {
	switch c {
	case ColorWhite:
		return board.White
	case ColorBlack:
		return board.Black
	}
	if coin != nil && coin() {
		return board.White
	}
	return board.Black
}
