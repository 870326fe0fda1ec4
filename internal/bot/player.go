// Package bot plays one seat of a game over a game socket.
package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/opponent"
	"github.com/park285/baduk-omok-server/internal/room"
	"github.com/park285/baduk-omok-server/internal/rules"
)

// Conn is the seat connection. *transport.Client satisfies it.
type Conn interface {
	Recv(ctx context.Context) (codec.ServerEnvelope, error)
	Send(ctx context.Context, env codec.ClientEnvelope) error
}

type Player struct {
	Conn     Conn
	Strategy opponent.Strategy
	Color    board.Cell
	Rules    rules.Kind

	// AutoStart sends GameStart when the game is still being set up.
	AutoStart bool
	// AcceptDraws answers draw offers.
	AcceptDraws bool
}

type turnKey struct {
	moves, passes uint32
}

// Play runs until the game ends and returns the game_ended envelope.
func (p *Player) Play(ctx context.Context) (codec.ServerEnvelope, error) {
	if p.Color != board.Black && p.Color != board.White {
		return codec.ServerEnvelope{}, fmt.Errorf("bot: invalid colour %s", p.Color)
	}
	log := obslog.L().With(zap.String("color", p.Color.String()))
	me := codec.ColorOf(p.Color)

	var (
		state   *codec.GameState
		started bool
		decided = turnKey{moves: ^uint32(0)}
	)
	for {
		env, err := p.Conn.Recv(ctx)
		if err != nil {
			return codec.ServerEnvelope{}, err
		}

		switch env.Kind {
		case codec.ServerGameEnded:
			log.Info("bot_game_ended", zap.String("winner", env.Winner.String()), zap.String("reason", env.Reason))
			return env, nil
		case codec.ServerDrawOffered:
			if err := p.send(ctx, codec.ClientEnvelope{Kind: codec.ClientAcceptDraw, Accepted: p.AcceptDraws}); err != nil {
				return codec.ServerEnvelope{}, err
			}
			continue
		case codec.ServerRejected:
			log.Warn("bot_rejected", zap.String("code", env.Code), zap.String("message", env.Message))
			continue
		case codec.ServerChaksuResult:
			if env.Success {
				break
			}
			log.Warn("bot_move_refused", zap.String("code", env.Code), zap.String("message", env.Message))
			if env.State != nil {
				state = env.State
			}
			switch env.Code {
			case room.CodeOccupied, room.CodeSuicide, room.CodeOutOfBounds:
				// 잘못 둔 수는 패스로 대체
				if state != nil && state.Phase == codec.PhasePlaying && state.Turn == me {
					if err := p.send(ctx, codec.ClientEnvelope{Kind: codec.ClientPassTurn}); err != nil {
						return codec.ServerEnvelope{}, err
					}
				}
			}
			continue
		}

		if env.State == nil {
			continue
		}
		state = env.State
		if state.Phase == codec.PhaseSetup && p.AutoStart && !started {
			started = true
			if err := p.send(ctx, codec.ClientEnvelope{Kind: codec.ClientGameStart}); err != nil {
				return codec.ServerEnvelope{}, err
			}
			continue
		}
		key := turnKey{moves: state.MoveNumber, passes: state.PassCount}
		if state.Phase != codec.PhasePlaying || state.Turn != me || key == decided {
			continue
		}
		decided = key
		if err := p.move(ctx, state); err != nil {
			return codec.ServerEnvelope{}, err
		}
	}
}

func (p *Player) move(ctx context.Context, state *codec.GameState) error {
	out := codec.ClientEnvelope{Kind: codec.ClientPassTurn}
	b, err := state.DecodedBoard()
	if err == nil {
		mv, cerr := p.Strategy.Choose(ctx, opponent.Position{Board: b, Rules: p.Rules}, p.Color)
		err = cerr
		if cerr == nil && !mv.Pass {
			out = codec.ClientEnvelope{Kind: codec.ClientPlaceStone, Coordinate: uint32(mv.Coord)}
		}
	}
	if err != nil {
		obslog.L().Warn("bot_choose_failed", zap.Error(err))
	}
	return p.send(ctx, out)
}

func (p *Player) send(ctx context.Context, env codec.ClientEnvelope) error {
	if err := p.Conn.Send(ctx, env); err != nil {
		return fmt.Errorf("bot send %s: %w", env.Kind, err)
	}
	return nil
}
