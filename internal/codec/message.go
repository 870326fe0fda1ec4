package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Color is the wire colour enum. ColorFree and ColorError mean "no turn".
type Color int32

const (
	ColorBlack Color = 0
	ColorWhite Color = 1
	ColorFree  Color = 2
	ColorError Color = 3
)

func (c Color) String() string {
	switch c {
	case ColorBlack:
		return "black"
	case ColorWhite:
		return "white"
	case ColorFree:
		return "free"
	default:
		return "error"
	}
}

// Phase mirrors the session lifecycle on the wire.
type Phase int32

const (
	PhaseSetup Phase = iota
	PhasePlaying
	PhaseFinished
)

type PlayerTimeInfo struct {
	MainMs     int64
	OvertimeMs int64
	Periods    uint32
	InOvertime bool
	Expired    bool
}

type GameState struct {
	Board         BitBoard
	BlackTime     PlayerTimeInfo
	WhiteTime     PlayerTimeInfo
	Turn          Color
	BlackCaptured uint32
	WhiteCaptured uint32
	PassCount     uint32
	Phase         Phase
	MoveNumber    uint32
	// LastMove is the canonical coordinate of the last placement, or -1.
	LastMove int
}

type ClientKind int

const (
	ClientUnknown ClientKind = iota
	ClientPlaceStone
	ClientResign
	ClientOfferDraw
	ClientPassTurn
	ClientGameStart
	ClientAcceptDraw
)

func (k ClientKind) String() string {
	switch k {
	case ClientPlaceStone:
		return "place_stone"
	case ClientResign:
		return "resign"
	case ClientOfferDraw:
		return "offer_draw"
	case ClientPassTurn:
		return "pass_turn"
	case ClientGameStart:
		return "game_start"
	case ClientAcceptDraw:
		return "accept_draw"
	default:
		return "unknown"
	}
}

// ClientEnvelope is one player action. Coordinate is used by ClientPlaceStone,
// Accepted by ClientAcceptDraw.
type ClientEnvelope struct {
	SessionKey string
	Seq        uint64
	Kind       ClientKind
	Coordinate uint32
	Accepted   bool
}

type ServerKind int

const (
	ServerUnknown ServerKind = iota
	ServerChaksuResult
	ServerResignAck
	ServerDrawOfferAck
	ServerPassResult
	ServerGameEnded
	ServerRejected
	ServerDrawOffered
)

func (k ServerKind) String() string {
	switch k {
	case ServerChaksuResult:
		return "chaksu_result"
	case ServerResignAck:
		return "resign_ack"
	case ServerDrawOfferAck:
		return "draw_offer_ack"
	case ServerPassResult:
		return "pass_result"
	case ServerGameEnded:
		return "game_ended"
	case ServerRejected:
		return "rejected"
	case ServerDrawOffered:
		return "draw_offered"
	default:
		return "unknown"
	}
}

// ServerEnvelope is one server message. Which fields are meaningful depends
// on Kind; Winner uses ColorFree for a drawn game. Code and Message describe a
// rejected envelope or a chaksu_result with Success false.
type ServerEnvelope struct {
	Seq        uint64
	Kind       ServerKind
	Success    bool
	Accepted   bool
	State      *GameState
	Winner     Color
	Reason     string
	BlackScore float64
	WhiteScore float64
	Code       string
	Message    string
	By         Color
}

const (
	clientSessionKey protowire.Number = 1
	clientSeq        protowire.Number = 2
	clientPlaceStone protowire.Number = 10
	clientResign     protowire.Number = 11
	clientOfferDraw  protowire.Number = 12
	clientPassTurn   protowire.Number = 13
	clientGameStart  protowire.Number = 14
	clientAcceptDraw protowire.Number = 15

	serverSeq          protowire.Number = 1
	serverChaksuResult protowire.Number = 10
	serverResignAck    protowire.Number = 11
	serverDrawOfferAck protowire.Number = 12
	serverPassResult   protowire.Number = 13
	serverGameEnded    protowire.Number = 14
	serverRejected     protowire.Number = 15
	serverDrawOffered  protowire.Number = 16

	// first field number reserved for envelope payloads
	payloadBase protowire.Number = 10
)

var clientPayloads = map[protowire.Number]ClientKind{
	clientPlaceStone: ClientPlaceStone,
	clientResign:     ClientResign,
	clientOfferDraw:  ClientOfferDraw,
	clientPassTurn:   ClientPassTurn,
	clientGameStart:  ClientGameStart,
	clientAcceptDraw: ClientAcceptDraw,
}

var serverPayloads = map[protowire.Number]ServerKind{
	serverChaksuResult: ServerChaksuResult,
	serverResignAck:    ServerResignAck,
	serverDrawOfferAck: ServerDrawOfferAck,
	serverPassResult:   ServerPassResult,
	serverGameEnded:    ServerGameEnded,
	serverRejected:     ServerRejected,
	serverDrawOffered:  ServerDrawOffered,
}

func EncodeClient(env ClientEnvelope) ([]byte, error) {
	var b []byte
	b = appendString(b, clientSessionKey, env.SessionKey)
	b = appendVarint(b, clientSeq, env.Seq)
	switch env.Kind {
	case ClientPlaceStone:
		b = appendMessage(b, clientPlaceStone, appendVarint(nil, 1, uint64(env.Coordinate)))
	case ClientResign:
		b = appendMessage(b, clientResign, nil)
	case ClientOfferDraw:
		b = appendMessage(b, clientOfferDraw, nil)
	case ClientPassTurn:
		b = appendMessage(b, clientPassTurn, nil)
	case ClientGameStart:
		b = appendMessage(b, clientGameStart, nil)
	case ClientAcceptDraw:
		b = appendMessage(b, clientAcceptDraw, appendBool(nil, 1, env.Accepted))
	default:
		return nil, fmt.Errorf("encode client envelope: unknown kind %d", env.Kind)
	}
	return b, nil
}

// DecodeClient parses a client envelope. Exactly one payload and a session
// key are required; unknown fields below the payload range are skipped.
func DecodeClient(b []byte) (ClientEnvelope, error) {
	var env ClientEnvelope
	err := walk(b, func(f field) error {
		var err error
		switch {
		case f.num == clientSessionKey:
			env.SessionKey, err = f.str("session_key")
		case f.num == clientSeq:
			env.Seq, err = f.varint("seq")
		case f.num >= payloadBase:
			kind, ok := clientPayloads[f.num]
			if !ok {
				return malformed("payload", "unknown client payload %d", f.num)
			}
			if env.Kind != ClientUnknown {
				return malformed("payload", "multiple payloads %s and %s", env.Kind, kind)
			}
			env.Kind = kind
			err = decodeClientPayload(&env, f)
		}
		return err
	})
	if err != nil {
		return ClientEnvelope{}, err
	}
	if env.Kind == ClientUnknown {
		return ClientEnvelope{}, malformed("payload", "missing")
	}
	if env.SessionKey == "" {
		return ClientEnvelope{}, malformed("session_key", "missing")
	}
	return env, nil
}

func decodeClientPayload(env *ClientEnvelope, f field) error {
	body, err := f.bytes(env.Kind.String())
	if err != nil {
		return err
	}
	return walk(body, func(sub field) error {
		var err error
		switch {
		case env.Kind == ClientPlaceStone && sub.num == 1:
			env.Coordinate, err = sub.u32("place_stone.coordinate")
		case env.Kind == ClientAcceptDraw && sub.num == 1:
			env.Accepted, err = sub.boolean("accept_draw.accepted")
		}
		return err
	})
}

func EncodeServer(env ServerEnvelope) ([]byte, error) {
	var b []byte
	b = appendVarint(b, serverSeq, env.Seq)
	switch env.Kind {
	case ServerChaksuResult:
		var body []byte
		body = appendBool(body, 1, env.Success)
		if env.State != nil {
			body = appendMessage(body, 2, appendGameState(nil, *env.State))
		}
		// 실패한 착수만 사유를 싣는다
		body = appendString(body, 3, env.Code)
		body = appendString(body, 4, env.Message)
		b = appendMessage(b, serverChaksuResult, body)
	case ServerResignAck:
		b = appendMessage(b, serverResignAck, nil)
	case ServerDrawOfferAck:
		b = appendMessage(b, serverDrawOfferAck, appendBool(nil, 1, env.Accepted))
	case ServerPassResult:
		var body []byte
		if env.State != nil {
			body = appendMessage(body, 1, appendGameState(nil, *env.State))
		}
		b = appendMessage(b, serverPassResult, body)
	case ServerGameEnded:
		var body []byte
		body = appendVarint(body, 1, uint64(env.Winner))
		body = appendString(body, 2, env.Reason)
		if env.State != nil {
			body = appendMessage(body, 3, appendGameState(nil, *env.State))
		}
		body = appendDouble(body, 4, env.BlackScore)
		body = appendDouble(body, 5, env.WhiteScore)
		b = appendMessage(b, serverGameEnded, body)
	case ServerRejected:
		var body []byte
		body = appendString(body, 1, env.Code)
		body = appendString(body, 2, env.Message)
		b = appendMessage(b, serverRejected, body)
	case ServerDrawOffered:
		b = appendMessage(b, serverDrawOffered, appendVarint(nil, 1, uint64(env.By)))
	default:
		return nil, fmt.Errorf("encode server envelope: unknown kind %d", env.Kind)
	}
	return b, nil
}

func DecodeServer(b []byte) (ServerEnvelope, error) {
	var env ServerEnvelope
	err := walk(b, func(f field) error {
		switch {
		case f.num == serverSeq:
			v, err := f.varint("seq")
			env.Seq = v
			return err
		case f.num >= payloadBase:
			kind, ok := serverPayloads[f.num]
			if !ok {
				return malformed("payload", "unknown server payload %d", f.num)
			}
			if env.Kind != ServerUnknown {
				return malformed("payload", "multiple payloads %s and %s", env.Kind, kind)
			}
			env.Kind = kind
			return decodeServerPayload(&env, f)
		}
		return nil
	})
	if err != nil {
		return ServerEnvelope{}, err
	}
	if env.Kind == ServerUnknown {
		return ServerEnvelope{}, malformed("payload", "missing")
	}
	return env, nil
}

func decodeServerPayload(env *ServerEnvelope, f field) error {
	name := env.Kind.String()
	body, err := f.bytes(name)
	if err != nil {
		return err
	}
	state := func(sub field) error {
		raw, err := sub.bytes(name + ".game_state")
		if err != nil {
			return err
		}
		gs, err := decodeGameState(raw)
		if err != nil {
			return err
		}
		env.State = &gs
		return nil
	}
	return walk(body, func(sub field) error {
		var err error
		switch env.Kind {
		case ServerChaksuResult:
			switch sub.num {
			case 1:
				env.Success, err = sub.boolean(name + ".success")
			case 2:
				err = state(sub)
			case 3:
				env.Code, err = sub.str(name + ".code")
			case 4:
				env.Message, err = sub.str(name + ".message")
			}
		case ServerDrawOfferAck:
			if sub.num == 1 {
				env.Accepted, err = sub.boolean(name + ".accepted")
			}
		case ServerPassResult:
			if sub.num == 1 {
				err = state(sub)
			}
		case ServerGameEnded:
			switch sub.num {
			case 1:
				env.Winner, err = decodeColor(sub, name+".winner")
			case 2:
				env.Reason, err = sub.str(name + ".reason")
			case 3:
				err = state(sub)
			case 4:
				env.BlackScore, err = sub.double(name + ".black_score")
			case 5:
				env.WhiteScore, err = sub.double(name + ".white_score")
			}
		case ServerRejected:
			switch sub.num {
			case 1:
				env.Code, err = sub.str(name + ".code")
			case 2:
				env.Message, err = sub.str(name + ".message")
			}
		case ServerDrawOffered:
			if sub.num == 1 {
				env.By, err = decodeColor(sub, name+".by")
			}
		}
		return err
	})
}

func decodeColor(f field, name string) (Color, error) {
	v, err := f.varint(name)
	if err != nil {
		return ColorError, err
	}
	if v > uint64(ColorError) {
		return ColorError, malformed(name, "unknown colour %d", v)
	}
	return Color(v), nil
}

func appendGameState(b []byte, gs GameState) []byte {
	var bb []byte
	bb = appendPackedFixed64(bb, 1, gs.Board.Black)
	bb = appendPackedFixed64(bb, 2, gs.Board.White)
	bb = appendVarint(bb, 3, uint64(gs.Board.Size))
	b = appendMessage(b, 1, bb)
	b = appendMessage(b, 2, appendTimeInfo(nil, gs.BlackTime))
	b = appendMessage(b, 3, appendTimeInfo(nil, gs.WhiteTime))
	b = appendVarint(b, 4, uint64(gs.Turn))
	b = appendVarint(b, 5, uint64(gs.BlackCaptured))
	b = appendVarint(b, 6, uint64(gs.WhiteCaptured))
	b = appendVarint(b, 7, uint64(gs.PassCount))
	b = appendVarint(b, 8, uint64(gs.Phase))
	b = appendVarint(b, 9, uint64(gs.MoveNumber))
	if gs.LastMove >= 0 {
		b = appendVarint(b, 10, uint64(gs.LastMove)+1)
	}
	return b
}

func appendTimeInfo(b []byte, t PlayerTimeInfo) []byte {
	b = appendVarint(b, 1, uint64(max(t.MainMs, 0)))
	b = appendVarint(b, 2, uint64(max(t.OvertimeMs, 0)))
	b = appendVarint(b, 3, uint64(t.Periods))
	b = appendBool(b, 4, t.InOvertime)
	b = appendBool(b, 5, t.Expired)
	return b
}

func decodeGameState(b []byte) (GameState, error) {
	gs := GameState{LastMove: -1}
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var raw []byte
			if raw, err = f.bytes("game_state.board"); err == nil {
				gs.Board, err = decodeBitBoard(raw)
			}
		case 2:
			gs.BlackTime, err = decodeTimeInfoField(f, "game_state.black_time")
		case 3:
			gs.WhiteTime, err = decodeTimeInfoField(f, "game_state.white_time")
		case 4:
			gs.Turn, err = decodeColor(f, "game_state.turn")
		case 5:
			gs.BlackCaptured, err = f.u32("game_state.black_captured")
		case 6:
			gs.WhiteCaptured, err = f.u32("game_state.white_captured")
		case 7:
			gs.PassCount, err = f.u32("game_state.pass_count")
		case 8:
			var v uint32
			if v, err = f.u32("game_state.state"); err == nil {
				if Phase(v) > PhaseFinished {
					return malformed("game_state.state", "unknown phase %d", v)
				}
				gs.Phase = Phase(v)
			}
		case 9:
			gs.MoveNumber, err = f.u32("game_state.move_number")
		case 10:
			var v uint32
			if v, err = f.u32("game_state.last_move"); err == nil {
				gs.LastMove = int(v) - 1
			}
		}
		return err
	})
	if err != nil {
		return GameState{}, err
	}
	return gs, nil
}

func decodeBitBoard(b []byte) (BitBoard, error) {
	var bb BitBoard
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			bb.Black, err = f.fixed64s("board.black", bb.Black)
		case 2:
			bb.White, err = f.fixed64s("board.white", bb.White)
		case 3:
			var v uint32
			if v, err = f.u32("board.size"); err == nil {
				bb.Size = int(v)
			}
		}
		return err
	})
	return bb, err
}

func decodeTimeInfoField(f field, name string) (PlayerTimeInfo, error) {
	raw, err := f.bytes(name)
	if err != nil {
		return PlayerTimeInfo{}, err
	}
	var t PlayerTimeInfo
	err = walk(raw, func(sub field) error {
		var err error
		switch sub.num {
		case 1:
			t.MainMs, err = sub.i64(name + ".main_ms")
		case 2:
			t.OvertimeMs, err = sub.i64(name + ".overtime_ms")
		case 3:
			t.Periods, err = sub.u32(name + ".periods")
		case 4:
			t.InOvertime, err = sub.boolean(name + ".in_overtime")
		case 5:
			t.Expired, err = sub.boolean(name + ".expired")
		}
		return err
	})
	return t, err
}
