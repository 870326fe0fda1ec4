package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/opponent"
	"github.com/park285/baduk-omok-server/internal/session"
)

const (
	subscriberBuffer = 32
	publishTimeout   = 2 * time.Second
)

// Room hosts one game. Every mutation of the game runs on the room's own
// goroutine, one action at a time.
type Room struct {
	id   string
	game *session.Game
	opts Options

	ai       opponent.Strategy
	aiColor  board.Cell
	thinking bool

	inbox    chan func()
	seq      uint64
	now      func() time.Time
	lastTick time.Time

	subsMu     sync.Mutex
	subs       map[uint64]*Subscription
	nextSub    uint64
	subsClosed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *zap.Logger
}

// Subscription delivers length-framed server envelopes broadcast by a room.
// C is closed when the room shuts down or the subscription is closed.
type Subscription struct {
	C     <-chan []byte
	ch    chan []byte
	id    uint64
	color board.Cell
	room  *Room
}

func (s *Subscription) Close() { s.room.unsubscribe(s.id) }

func newRoom(parent context.Context, id string, game *session.Game, cfg Config, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:     id,
		game:   game,
		opts:   opts,
		inbox:  make(chan func()),
		now:    time.Now,
		subs:   make(map[uint64]*Subscription),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    obslog.L().With(zap.String("room_id", id)),
	}
	if cfg.Opponent != nil && (cfg.OpponentColor == board.Black || cfg.OpponentColor == board.White) {
		r.ai = cfg.Opponent
		r.aiColor = cfg.OpponentColor
	}
	return r
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) run() {
	defer r.shutdown()

	var tick <-chan time.Time
	if r.opts.TickInterval > 0 {
		t := time.NewTicker(r.opts.TickInterval)
		defer t.Stop()
		tick = t.C
	}
	var linger <-chan time.Time

	for {
		select {
		case <-r.ctx.Done():
			return
		case fn := <-r.inbox:
			fn()
		case <-tick:
			r.catchUp()
		case <-linger:
			r.log.Info("room_linger_expired")
			return
		}
		if linger == nil && r.opts.FinishedLinger > 0 && r.game.State() == session.StateFinished {
			linger = time.After(r.opts.FinishedLinger)
		}
	}
}

func (r *Room) shutdown() {
	r.subsMu.Lock()
	for id, s := range r.subs {
		close(s.ch)
		delete(r.subs, id)
	}
	r.subsClosed = true
	r.subsMu.Unlock()
	close(r.done)
}

// do runs fn on the room goroutine and waits for it.
func (r *Room) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		fn()
		close(finished)
	}
	select {
	case r.inbox <- job:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit applies one client action for the seat color. The returned envelope
// is the reply for the caller, a rejection included; err is only set when the
// room could not run the action at all.
func (r *Room) Submit(ctx context.Context, color board.Cell, env codec.ClientEnvelope) (codec.ServerEnvelope, error) {
	var reply codec.ServerEnvelope
	if err := r.do(ctx, func() { reply = r.apply(color, env) }); err != nil {
		return codec.ServerEnvelope{}, err
	}
	return reply, nil
}

// Advance charges elapsed to the side on move as one explicit tick.
func (r *Room) Advance(ctx context.Context, elapsed time.Duration) error {
	return r.do(ctx, func() { r.advance(elapsed) })
}

// Disconnect forfeits color if the game is still being played.
func (r *Room) Disconnect(ctx context.Context, color board.Cell) error {
	var err error
	doErr := r.do(ctx, func() {
		if r.game.State() != session.StatePlaying {
			return
		}
		was := r.game.State()
		if err = r.game.Disconnect(color); err == nil {
			r.log.Info("room_disconnect", zap.String("color", color.String()))
			r.afterChange(was)
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (r *Room) Snapshot(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := r.do(ctx, func() { snap = r.game.Snapshot() })
	return snap, err
}

// Subscribe registers for broadcasts. Events caused by color's own actions
// are not echoed back to it; pass board.Empty to receive everything.
func (r *Room) Subscribe(color board.Cell) *Subscription {
	ch := make(chan []byte, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch, color: color, room: r}
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if r.subsClosed {
		close(ch)
		return s
	}
	r.nextSub++
	s.id = r.nextSub
	r.subs[s.id] = s
	return s
}

func (r *Room) unsubscribe(id uint64) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if s, ok := r.subs[id]; ok {
		close(s.ch)
		delete(r.subs, id)
	}
}

// Close stops the room and waits for its goroutine.
func (r *Room) Close() {
	r.cancel()
	<-r.done
}

func (r *Room) start() {
	was := r.game.State()
	if err := r.game.Start(); err != nil {
		r.log.Warn("room_start_error", zap.Error(err))
		return
	}
	r.lastTick = r.now()
	r.broadcast(r.stateEnvelope(codec.ServerChaksuResult), board.Empty)
	r.afterChange(was)
}

func (r *Room) apply(color board.Cell, env codec.ClientEnvelope) codec.ServerEnvelope {
	if err := r.game.CheckSequence(color, env.Seq); err != nil {
		return r.reject(color, env, err)
	}
	r.catchUp()
	was := r.game.State()

	var (
		reply codec.ServerEnvelope
		err   error
	)
	switch env.Kind {
	case codec.ClientGameStart:
		if err = r.game.Start(); err == nil {
			r.lastTick = r.now()
			reply = r.stateEnvelope(codec.ServerChaksuResult)
			r.broadcast(reply, color)
		}
	case codec.ClientPlaceStone:
		var captured int
		captured, err = r.game.Place(color, int(env.Coordinate))
		if err != nil {
			return r.failedPlacement(color, env, err)
		}
		r.log.Debug("room_move", zap.String("color", color.String()), zap.Uint32("coord", env.Coordinate), zap.Int("captured", captured))
		reply = r.stateEnvelope(codec.ServerChaksuResult)
		r.broadcast(reply, color)
	case codec.ClientPassTurn:
		if err = r.game.Pass(color); err == nil {
			reply = r.stateEnvelope(codec.ServerPassResult)
			r.broadcast(reply, color)
		}
	case codec.ClientResign:
		if err = r.game.Resign(color); err == nil {
			reply = r.emit(codec.ServerEnvelope{Kind: codec.ServerResignAck})
		}
	case codec.ClientOfferDraw:
		var agreed bool
		if agreed, err = r.game.OfferDraw(color); err == nil {
			reply = r.emit(codec.ServerEnvelope{Kind: codec.ServerDrawOfferAck, Accepted: agreed})
			if !agreed {
				r.broadcast(codec.ServerEnvelope{Seq: reply.Seq, Kind: codec.ServerDrawOffered, By: codec.ColorOf(color)}, color)
			}
		}
	case codec.ClientAcceptDraw:
		if err = r.game.AnswerDraw(color, env.Accepted); err == nil {
			reply = r.emit(codec.ServerEnvelope{Kind: codec.ServerDrawOfferAck, Accepted: env.Accepted})
			r.broadcast(reply, color)
		}
	default:
		err = &codec.DecodeError{Field: "payload", Err: codec.ErrMalformedMessage}
	}
	if err != nil {
		return r.reject(color, env, err)
	}
	r.afterChange(was)
	return reply
}

func (r *Room) reject(color board.Cell, env codec.ClientEnvelope, err error) codec.ServerEnvelope {
	r.log.Debug("room_reject",
		zap.String("color", color.String()),
		zap.String("action", env.Kind.String()),
		zap.Uint64("seq", env.Seq),
		zap.Error(err))
	return r.emit(Rejection(r.opts.Messages, err))
}

// failedPlacement answers a refused place_stone with an unsuccessful
// chaksu_result carrying the unchanged state and the rejection code.
func (r *Room) failedPlacement(color board.Cell, env codec.ClientEnvelope, err error) codec.ServerEnvelope {
	r.log.Debug("room_place_refused",
		zap.String("color", color.String()),
		zap.Uint32("coord", env.Coordinate),
		zap.Error(err))
	rej := Rejection(r.opts.Messages, err)
	gs := codec.FromSnapshot(r.game.Snapshot())
	return r.emit(codec.ServerEnvelope{
		Kind:    codec.ServerChaksuResult,
		Success: false,
		State:   &gs,
		Code:    rej.Code,
		Message: rej.Message,
	})
}

// catchUp charges wall time since the last tick. Manual ticking via Advance
// is used when the room has no ticker.
func (r *Room) catchUp() {
	if r.opts.TickInterval <= 0 || r.game.State() != session.StatePlaying {
		return
	}
	now := r.now()
	elapsed := now.Sub(r.lastTick)
	r.lastTick = now
	r.advance(elapsed)
}

func (r *Room) advance(elapsed time.Duration) {
	if r.game.State() != session.StatePlaying {
		return
	}
	was := r.game.State()
	loser, err := r.game.Tick(elapsed.Milliseconds())
	if err != nil {
		r.log.Warn("room_tick_error", zap.Error(err))
		return
	}
	if loser != board.Empty {
		r.log.Info("room_timeout", zap.String("color", loser.String()))
	}
	r.afterChange(was)
}

// afterChange announces a finished game once and lets the automated seat move.
func (r *Room) afterChange(was session.State) {
	switch r.game.State() {
	case session.StateFinished:
		if was == session.StateFinished {
			return
		}
		snap := r.game.Snapshot()
		r.broadcast(SyncEnvelope(snap), board.Empty)
		r.log.Info("room_finish",
			zap.String("winner", snap.Winner.String()),
			zap.String("reason", snap.Reason),
			zap.Int("moves", snap.MoveNumber))
	case session.StatePlaying:
		r.think()
	}
}

// think asks the strategy for a move off the room goroutine. The answer is
// dropped if the position moved on in the meantime.
func (r *Room) think() {
	if r.ai == nil || r.thinking || r.game.Turn() != r.aiColor {
		return
	}
	snap := r.game.Snapshot()
	pos := opponent.Position{Board: snap.Board, Rules: snap.Rules}
	color, moveNumber := r.aiColor, snap.MoveNumber
	r.thinking = true

	go func() {
		mv, err := r.ai.Choose(r.ctx, pos, color)
		job := func() {
			r.thinking = false
			cur := r.game.Snapshot()
			if cur.State != session.StatePlaying || cur.MoveNumber != moveNumber || cur.Turn != color {
				return
			}
			if err != nil {
				r.log.Warn("room_opponent_error", zap.Error(err))
				mv = opponent.Move{Pass: true}
			}
			env := codec.ClientEnvelope{Kind: codec.ClientPlaceStone, Coordinate: uint32(mv.Coord)}
			if mv.Pass {
				env = codec.ClientEnvelope{Kind: codec.ClientPassTurn}
			}
			if reply := r.apply(color, env); reply.Kind == codec.ServerRejected {
				// 잘못된 수를 두면 패스로 대체
				r.log.Warn("room_opponent_rejected", zap.String("code", reply.Code))
				r.apply(color, codec.ClientEnvelope{Kind: codec.ClientPassTurn})
			}
		}
		select {
		case r.inbox <- job:
		case <-r.ctx.Done():
		}
	}()
}

func (r *Room) stateEnvelope(kind codec.ServerKind) codec.ServerEnvelope {
	gs := codec.FromSnapshot(r.game.Snapshot())
	env := codec.ServerEnvelope{Kind: kind, State: &gs}
	if kind == codec.ServerChaksuResult {
		env.Success = true
	}
	return r.emit(env)
}

// emit stamps the next room sequence number.
func (r *Room) emit(env codec.ServerEnvelope) codec.ServerEnvelope {
	r.seq++
	env.Seq = r.seq
	return env
}

// broadcast sends env to every subscriber except those of the acting colour.
// Slow subscribers drop frames rather than stall the room.
func (r *Room) broadcast(env codec.ServerEnvelope, except board.Cell) {
	if env.Seq == 0 {
		env = r.emit(env)
	}
	payload, err := codec.EncodeServer(env)
	if err != nil {
		r.log.Error("room_encode_error", zap.String("kind", env.Kind.String()), zap.Error(err))
		return
	}
	frame := codec.AppendFrame(nil, payload)

	r.subsMu.Lock()
	for _, s := range r.subs {
		if except != board.Empty && s.color == except {
			continue
		}
		select {
		case s.ch <- frame:
		default:
			r.log.Warn("room_subscriber_slow", zap.Uint64("sub", s.id), zap.String("kind", env.Kind.String()))
		}
	}
	r.subsMu.Unlock()

	if r.opts.Publisher != nil {
		ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
		if err := r.opts.Publisher.Publish(ctx, r.id, frame); err != nil {
			r.log.Warn("room_publish_error", zap.Error(err))
		}
		cancel()
	}
}

// SyncEnvelope describes snap as a single unsequenced envelope: game_ended
// for a finished game, otherwise a successful chaksu_result carrying the state.
func SyncEnvelope(snap session.Snapshot) codec.ServerEnvelope {
	gs := codec.FromSnapshot(snap)
	if snap.State == session.StateFinished {
		return codec.ServerEnvelope{
			Kind:       codec.ServerGameEnded,
			Winner:     codec.WinnerColor(snap.Winner),
			Reason:     snap.Reason,
			State:      &gs,
			BlackScore: snap.Score.BlackScore,
			WhiteScore: snap.Score.WhiteScore,
		}
	}
	return codec.ServerEnvelope{Kind: codec.ServerChaksuResult, Success: true, State: &gs}
}
