package room

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/fanout"
	"github.com/park285/baduk-omok-server/internal/msgcat"
	"github.com/park285/baduk-omok-server/internal/opponent"
	"github.com/park285/baduk-omok-server/internal/rules"
	"github.com/park285/baduk-omok-server/internal/session"
)

func goConfig(size int) Config {
	return Config{Game: session.Config{
		Size:        size,
		Rules:       rules.KindGo,
		TimeControl: clock.TimeControl{MainTime: time.Minute, PeriodTime: 10 * time.Second, Periods: 3},
	}}
}

func newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts)
	t.Cleanup(m.Shutdown)
	return m
}

func seatsByColor(t *testing.T, seats []Seat) map[board.Cell]string {
	t.Helper()
	out := make(map[board.Cell]string, len(seats))
	for _, s := range seats {
		out[s.Color] = s.Key
	}
	return out
}

func decodeFrame(t *testing.T, frame []byte) codec.ServerEnvelope {
	t.Helper()
	payload, err := codec.Unframe(frame)
	if err != nil {
		t.Fatalf("Unframe: %v", err)
	}
	env, err := codec.DecodeServer(payload)
	if err != nil {
		t.Fatalf("DecodeServer: %v", err)
	}
	return env
}

func next(t *testing.T, s *Subscription) codec.ServerEnvelope {
	t.Helper()
	select {
	case frame, ok := <-s.C:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return decodeFrame(t, frame)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for broadcast")
	}
	return codec.ServerEnvelope{}
}

func expectNothing(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case frame := <-s.C:
		t.Fatalf("unexpected broadcast %s", decodeFrame(t, frame).Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func submit(t *testing.T, r *Room, color board.Cell, env codec.ClientEnvelope) codec.ServerEnvelope {
	t.Helper()
	reply, err := r.Submit(context.Background(), color, env)
	if err != nil {
		t.Fatalf("Submit %s: %v", env.Kind, err)
	}
	return reply
}

func place(coord int) codec.ClientEnvelope {
	return codec.ClientEnvelope{Kind: codec.ClientPlaceStone, Coordinate: uint32(coord)}
}

func startRoom(t *testing.T, m *Manager, cfg Config) (*Room, map[board.Cell]string) {
	t.Helper()
	cfg.AutoStart = true
	r, seats, err := m.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r, seatsByColor(t, seats)
}

func TestCreateAndLookup(t *testing.T) {
	m := newManager(t, Options{})
	r, seats, err := m.Create(context.Background(), goConfig(9))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(seats) != 2 || seats[0].Color != board.Black || seats[1].Color != board.White {
		t.Fatalf("unexpected seats %+v", seats)
	}
	if seats[0].Key == seats[1].Key {
		t.Fatalf("seat keys must differ")
	}
	for _, s := range seats {
		got, color, err := m.Lookup(s.Key)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if got != r || color != s.Color {
			t.Fatalf("Lookup(%s) = %s %s", s.Key, got.ID(), color)
		}
	}
	for _, key := range []string{"", "   ", "nope"} {
		if _, _, err := m.Lookup(key); !errors.Is(err, ErrUnknownSessionKey) {
			t.Fatalf("Lookup(%q): expected ErrUnknownSessionKey, got %v", key, err)
		}
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d", m.Len())
	}
	snap, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != session.StateSetup {
		t.Fatalf("room should wait for GameStart, state=%s", snap.State)
	}
}

func TestCreateRejectsBadSize(t *testing.T) {
	m := newManager(t, Options{})
	if _, _, err := m.Create(context.Background(), goConfig(10)); !errors.Is(err, board.ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestTooManyRooms(t *testing.T) {
	m := newManager(t, Options{MaxRooms: 1})
	r, _, err := m.Create(context.Background(), goConfig(9))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := m.Create(context.Background(), goConfig(9)); !errors.Is(err, ErrTooManyRooms) {
		t.Fatalf("expected ErrTooManyRooms, got %v", err)
	}
	if err := m.Close(r.ID()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := m.Create(context.Background(), goConfig(9)); err != nil {
		t.Fatalf("Create after close: %v", err)
	}
}

func TestMoveFlowAndBroadcast(t *testing.T) {
	m := newManager(t, Options{})
	r, seats, err := m.Create(context.Background(), goConfig(9))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	keys := seatsByColor(t, seats)
	_, black, _ := m.Lookup(keys[board.Black])
	_, white, _ := m.Lookup(keys[board.White])

	blackSub := r.Subscribe(black)
	defer blackSub.Close()
	whiteSub := r.Subscribe(white)
	defer whiteSub.Close()

	reply := submit(t, r, black, codec.ClientEnvelope{Kind: codec.ClientGameStart})
	if reply.Kind != codec.ServerChaksuResult || !reply.Success || reply.State == nil || reply.State.Phase != codec.PhasePlaying {
		t.Fatalf("unexpected start reply %+v", reply)
	}
	if got := next(t, whiteSub); got.Kind != codec.ServerChaksuResult || got.Seq != reply.Seq {
		t.Fatalf("white should see the start, got %+v", got)
	}

	reply = submit(t, r, black, place(40))
	if reply.Kind != codec.ServerChaksuResult || reply.State.Turn != codec.ColorWhite || reply.State.LastMove != 40 {
		t.Fatalf("unexpected move reply %+v", reply)
	}
	got := next(t, whiteSub)
	if got.Kind != codec.ServerChaksuResult || got.State.MoveNumber != 1 {
		t.Fatalf("white should see the move, got %+v", got)
	}
	b, err := got.State.DecodedBoard()
	if err != nil {
		t.Fatalf("DecodedBoard: %v", err)
	}
	if b.At(4, 4) != board.Black {
		t.Fatalf("expected black stone at center")
	}
	expectNothing(t, blackSub)

	if rej := submit(t, r, white, place(40)); rej.Kind != codec.ServerChaksuResult || rej.Success || rej.Code != CodeOccupied {
		t.Fatalf("expected failed chaksu_result for occupied, got %+v", rej)
	}
	if rej := submit(t, r, black, place(41)); rej.Code != CodeNotYourTurn {
		t.Fatalf("expected not_your_turn, got %+v", rej)
	}
	if rej := submit(t, r, white, place(81)); rej.Code != CodeOutOfBounds {
		t.Fatalf("expected out_of_bounds, got %+v", rej)
	}
	expectNothing(t, blackSub)

	if rep := submit(t, r, white, codec.ClientEnvelope{Kind: codec.ClientPassTurn}); rep.Kind != codec.ServerPassResult || rep.State.PassCount != 1 {
		t.Fatalf("unexpected pass reply %+v", rep)
	}
	if got := next(t, blackSub); got.Kind != codec.ServerPassResult {
		t.Fatalf("black should see the pass, got %+v", got)
	}
}

func TestRefusedPlacementReportsFailure(t *testing.T) {
	m := newManager(t, Options{Messages: msgcat.MustDefault()})
	r, keys := startRoom(t, m, goConfig(9))
	_, black, _ := m.Lookup(keys[board.Black])
	_, white, _ := m.Lookup(keys[board.White])
	whiteSub := r.Subscribe(white)
	defer whiteSub.Close()

	ok := submit(t, r, black, place(codec.Coordinate(2, 2, 9)))
	if ok.Kind != codec.ServerChaksuResult || !ok.Success || ok.Code != "" {
		t.Fatalf("unexpected reply %+v", ok)
	}
	next(t, whiteSub)

	for _, c := range []struct {
		color board.Cell
		coord int
		code  string
	}{
		{white, 20, CodeOccupied},
		{white, 81, CodeOutOfBounds},
		{black, 0, CodeNotYourTurn},
	} {
		got := submit(t, r, c.color, place(c.coord))
		if got.Kind != codec.ServerChaksuResult || got.Success {
			t.Fatalf("%s: want failed chaksu_result, got %+v", c.code, got)
		}
		if got.Code != c.code || got.Message == "" {
			t.Fatalf("%s: code=%q message=%q", c.code, got.Code, got.Message)
		}
		if got.State == nil || got.Seq <= ok.Seq {
			t.Fatalf("%s: missing state or seq %+v", c.code, got)
		}
		if got.State.MoveNumber != 1 || got.State.Turn != codec.ColorWhite || got.State.LastMove != 20 {
			t.Fatalf("%s: state changed %+v", c.code, got.State)
		}
		b, err := got.State.DecodedBoard()
		if err != nil {
			t.Fatalf("DecodedBoard: %v", err)
		}
		if blacks, whites := b.CountStones(); blacks != 1 || whites != 0 {
			t.Fatalf("%s: board changed: black=%d white=%d", c.code, blacks, whites)
		}
	}
	expectNothing(t, whiteSub)
}

func TestServerSeqIncreases(t *testing.T) {
	m := newManager(t, Options{})
	r, keys := startRoom(t, m, goConfig(9))
	_, black, _ := m.Lookup(keys[board.Black])
	_, white, _ := m.Lookup(keys[board.White])

	var last uint64
	for i, step := range []struct {
		color board.Cell
		env   codec.ClientEnvelope
	}{
		{black, place(0)},
		{black, place(1)},
		{white, place(80)},
		{black, place(1)},
	} {
		reply := submit(t, r, step.color, step.env)
		if reply.Seq <= last {
			t.Fatalf("step %d: seq %d after %d", i, reply.Seq, last)
		}
		last = reply.Seq
	}
}

func TestStaleSequenceRejected(t *testing.T) {
	m := newManager(t, Options{})
	r, keys := startRoom(t, m, goConfig(9))
	_, black, _ := m.Lookup(keys[board.Black])

	env := place(0)
	env.Seq = 5
	if reply := submit(t, r, black, env); reply.Kind != codec.ServerChaksuResult {
		t.Fatalf("unexpected reply %+v", reply)
	}
	env = codec.ClientEnvelope{Kind: codec.ClientResign, Seq: 5}
	if reply := submit(t, r, black, env); reply.Code != CodeStaleMessage {
		t.Fatalf("expected stale_message, got %+v", reply)
	}
	snap, _ := r.Snapshot(context.Background())
	if snap.State != session.StatePlaying {
		t.Fatalf("stale resign must not end the game")
	}
}

func TestRejectionUsesCatalog(t *testing.T) {
	m := newManager(t, Options{Messages: msgcat.MustDefault()})
	r, keys := startRoom(t, m, goConfig(9))
	_, white, _ := m.Lookup(keys[board.White])

	reply := submit(t, r, white, place(0))
	if reply.Code != CodeNotYourTurn {
		t.Fatalf("expected not_your_turn, got %+v", reply)
	}
	if reply.Message == "" || reply.Message == session.ErrNotYourTurn.Error() {
		t.Fatalf("expected catalog text, got %q", reply.Message)
	}
}

func TestRejectCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{board.ErrOccupied, CodeOccupied},
		{board.ErrSuicide, CodeSuicide},
		{session.ErrNoDrawOffer, CodeNoDrawOffer},
		{clock.ErrAlreadyExpired, CodeAlreadyExpired},
		{&codec.DecodeError{Field: "seq", Err: codec.ErrMalformedMessage}, CodeMalformedMessage},
		{ErrWrongRoom, CodeUnknownSessionKey},
		{errors.New("boom"), CodeInternal},
	}
	for _, c := range cases {
		if got := RejectCode(c.err); got != c.code {
			t.Fatalf("RejectCode(%v) = %s want %s", c.err, got, c.code)
		}
	}
}

func TestTimeoutViaAdvance(t *testing.T) {
	m := newManager(t, Options{})
	cfg := goConfig(9)
	cfg.Game.TimeControl = clock.TimeControl{MainTime: time.Second}
	r, keys := startRoom(t, m, cfg)
	_, white, _ := m.Lookup(keys[board.White])
	whiteSub := r.Subscribe(white)
	defer whiteSub.Close()

	if err := r.Advance(context.Background(), 500*time.Millisecond); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	snap, _ := r.Snapshot(context.Background())
	if snap.State != session.StatePlaying {
		t.Fatalf("game ended too early")
	}
	if err := r.Advance(context.Background(), time.Second); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got := next(t, whiteSub)
	if got.Kind != codec.ServerGameEnded || got.Winner != codec.ColorWhite || got.Reason != session.ReasonTimeout {
		t.Fatalf("unexpected end %+v", got)
	}
	if got.State == nil || !got.State.BlackTime.Expired {
		t.Fatalf("black clock should be expired: %+v", got.State)
	}
	expectNothing(t, whiteSub)
}

func TestDisconnectForfeits(t *testing.T) {
	m := newManager(t, Options{})
	r, keys := startRoom(t, m, goConfig(9))
	_, black, _ := m.Lookup(keys[board.Black])
	sub := r.Subscribe(board.Empty)
	defer sub.Close()

	if err := r.Disconnect(context.Background(), black); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	got := next(t, sub)
	if got.Kind != codec.ServerGameEnded || got.Winner != codec.ColorWhite || got.Reason != session.ReasonDisconnect {
		t.Fatalf("unexpected end %+v", got)
	}
	// 종료 후 재접속 끊김은 무시
	if err := r.Disconnect(context.Background(), black); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	expectNothing(t, sub)
}

func TestDrawAgreement(t *testing.T) {
	m := newManager(t, Options{})
	r, keys := startRoom(t, m, goConfig(9))
	_, black, _ := m.Lookup(keys[board.Black])
	_, white, _ := m.Lookup(keys[board.White])
	whiteSub := r.Subscribe(white)
	defer whiteSub.Close()

	reply := submit(t, r, black, codec.ClientEnvelope{Kind: codec.ClientOfferDraw})
	if reply.Kind != codec.ServerDrawOfferAck || reply.Accepted {
		t.Fatalf("unexpected offer reply %+v", reply)
	}
	if got := next(t, whiteSub); got.Kind != codec.ServerDrawOffered || got.By != codec.ColorBlack {
		t.Fatalf("white should see the offer, got %+v", got)
	}

	reply = submit(t, r, white, codec.ClientEnvelope{Kind: codec.ClientAcceptDraw, Accepted: true})
	if reply.Kind != codec.ServerDrawOfferAck || !reply.Accepted {
		t.Fatalf("unexpected answer reply %+v", reply)
	}
	got := next(t, whiteSub)
	if got.Kind != codec.ServerGameEnded || got.Winner != codec.ColorFree || got.Reason != session.ReasonDraw {
		t.Fatalf("unexpected end %+v", got)
	}
}

func TestAnswerWithoutOffer(t *testing.T) {
	m := newManager(t, Options{})
	r, keys := startRoom(t, m, goConfig(9))
	_, white, _ := m.Lookup(keys[board.White])
	reply := submit(t, r, white, codec.ClientEnvelope{Kind: codec.ClientAcceptDraw, Accepted: true})
	if reply.Code != CodeNoDrawOffer {
		t.Fatalf("expected no_draw_offer, got %+v", reply)
	}
}

func TestOmokFiveEndsGame(t *testing.T) {
	m := newManager(t, Options{})
	cfg := goConfig(15)
	cfg.Game.Rules = rules.KindOmok
	r, keys := startRoom(t, m, cfg)
	_, black, _ := m.Lookup(keys[board.Black])
	_, white, _ := m.Lookup(keys[board.White])
	sub := r.Subscribe(board.Empty)
	defer sub.Close()

	for i := 0; i < 4; i++ {
		submit(t, r, black, place(i))
		submit(t, r, white, place(15+i))
	}
	submit(t, r, black, place(4))

	var ended codec.ServerEnvelope
	for ended.Kind != codec.ServerGameEnded {
		ended = next(t, sub)
	}
	if ended.Winner != codec.ColorBlack {
		t.Fatalf("expected black to win, got %+v", ended)
	}
	if rej := submit(t, r, white, place(30)); rej.Code != CodeGameFinished {
		t.Fatalf("expected game_finished, got %+v", rej)
	}
}

func TestOpponentSeatPlays(t *testing.T) {
	m := newManager(t, Options{})
	cfg := goConfig(9)
	cfg.Opponent = opponent.NewHeuristic(7)
	cfg.OpponentColor = board.White
	cfg.AutoStart = true
	r, seats, err := m.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(seats) != 1 || seats[0].Color != board.Black {
		t.Fatalf("only the human seat gets a key: %+v", seats)
	}
	sub := r.Subscribe(board.Black)
	defer sub.Close()

	submit(t, r, board.Black, place(40))
	got := next(t, sub)
	if got.Kind != codec.ServerChaksuResult && got.Kind != codec.ServerPassResult {
		t.Fatalf("expected the opponent to answer, got %+v", got)
	}
	if got.State.Turn != codec.ColorBlack || got.State.MoveNumber < 1 {
		t.Fatalf("turn should come back to black: %+v", got.State)
	}
}

func TestOpponentMovesFirstAsBlack(t *testing.T) {
	m := newManager(t, Options{})
	cfg := goConfig(9)
	cfg.Opponent = opponent.NewHeuristic(3)
	cfg.OpponentColor = board.Black
	cfg.AutoStart = true
	r, seats, err := m.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(seats) != 1 || seats[0].Color != board.White {
		t.Fatalf("unexpected seats %+v", seats)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := r.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.Turn == board.White {
			if blacks, _ := snap.Board.CountStones(); blacks != 1 {
				t.Fatalf("expected one black stone")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("opponent never moved")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFinishedRoomLingersThenCloses(t *testing.T) {
	m := newManager(t, Options{FinishedLinger: 20 * time.Millisecond})
	r, keys := startRoom(t, m, goConfig(9))
	_, black, _ := m.Lookup(keys[board.Black])
	submit(t, r, black, codec.ClientEnvelope{Kind: codec.ClientResign})

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("room did not close after linger")
	}
	deadline := time.Now().Add(time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("manager still holds the room")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, _, err := m.Lookup(keys[board.Black]); !errors.Is(err, ErrUnknownSessionKey) {
		t.Fatalf("seat should be released, got %v", err)
	}
	if _, err := r.Submit(context.Background(), black, place(0)); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	m := newManager(t, Options{})
	r, _, err := m.Create(context.Background(), goConfig(9))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sub := r.Subscribe(board.Empty)
	if err := m.Close(r.ID()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatalf("expected closed subscription")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed")
	}
	if err := m.Close(r.ID()); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
	late := r.Subscribe(board.Empty)
	if _, ok := <-late.C; ok {
		t.Fatalf("late subscription should be closed")
	}
}

func TestPublisherReceivesBroadcasts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	pub := fanout.New(rdb)

	m := newManager(t, Options{Publisher: pub})
	r, seats, err := m.Create(context.Background(), goConfig(9))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	frames, cancel, err := pub.Subscribe(context.Background(), r.ID())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	black := seatsByColor(t, seats)
	_, color, _ := m.Lookup(black[board.Black])
	submit(t, r, color, codec.ClientEnvelope{Kind: codec.ClientGameStart})

	select {
	case frame := <-frames:
		if env := decodeFrame(t, frame); env.Kind != codec.ServerChaksuResult {
			t.Fatalf("unexpected published frame %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("nothing published")
	}
	last, err := pub.Last(context.Background(), r.ID())
	if err != nil || len(last) == 0 {
		t.Fatalf("Last: %x %v", last, err)
	}
}

func TestColorChoice(t *testing.T) {
	if ParseColorChoice(" W ") != ColorWhite || ParseColorChoice("black") != ColorBlack || ParseColorChoice("") != ColorRandom {
		t.Fatalf("ParseColorChoice mismatch")
	}
	heads := func() bool { return true }
	tails := func() bool { return false }
	if ColorRandom.Resolve(heads) != board.White || ColorRandom.Resolve(tails) != board.Black {
		t.Fatalf("random resolve mismatch")
	}
	if ColorBlack.Resolve(heads) != board.Black || ColorWhite.Resolve(nil) != board.White {
		t.Fatalf("fixed resolve mismatch")
	}
}
