package room

import (
	"errors"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/session"
)

// Rejection codes carried by rejected{code} on the wire.
const (
	CodeOccupied          = "occupied"
	CodeOutOfBounds       = "out_of_bounds"
	CodeSuicide           = "suicide"
	CodeNotYourTurn       = "not_your_turn"
	CodeGameNotPlaying    = "game_not_playing"
	CodeGameFinished      = "game_finished"
	CodeMalformedMessage  = "malformed_message"
	CodeUnknownSessionKey = "unknown_session_key"
	CodeStaleMessage      = "stale_message"
	CodeNoDrawOffer       = "no_draw_offer"
	CodeAlreadyExpired    = "already_expired"
	CodeAlreadyStarted    = "already_started"
	CodeInternal          = "internal"
)

var rejectCodes = []struct {
	err  error
	code string
}{
	{board.ErrOccupied, CodeOccupied},
	{board.ErrOutOfBounds, CodeOutOfBounds},
	{board.ErrSuicide, CodeSuicide},
	{session.ErrNotYourTurn, CodeNotYourTurn},
	{session.ErrGameNotPlaying, CodeGameNotPlaying},
	{session.ErrGameFinished, CodeGameFinished},
	{session.ErrAlreadyStarted, CodeAlreadyStarted},
	{session.ErrStaleMessage, CodeStaleMessage},
	{session.ErrNoDrawOffer, CodeNoDrawOffer},
	{clock.ErrAlreadyExpired, CodeAlreadyExpired},
	{codec.ErrMalformedMessage, CodeMalformedMessage},
	{ErrUnknownSessionKey, CodeUnknownSessionKey},
	{ErrWrongRoom, CodeUnknownSessionKey},
	{ErrRoomClosed, CodeGameFinished},
}

// RejectCode maps a domain error to its wire code.
func RejectCode(err error) string {
	for _, rc := range rejectCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return CodeInternal
}

// Rejection builds the rejected envelope for err.
func Rejection(texts Texts, err error) codec.ServerEnvelope {
	code := RejectCode(err)
	msg := err.Error()
	if texts != nil {
		msg = texts.Text("reject."+code, nil, msg)
	}
	return codec.ServerEnvelope{Kind: codec.ServerRejected, Code: code, Message: msg}
}
