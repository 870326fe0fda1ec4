package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/room"
)

const (
	writeTimeout      = 5 * time.Second
	disconnectTimeout = 5 * time.Second
)

// wsSession is one game socket. It binds to a seat on the first message, or
// at connect time when the URL carries ?session_key=.
type wsSession struct {
	h    *Handler
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	key   string
	room  *room.Room
	color board.Cell
	sub   *room.Subscription
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(int64(codec.MaxFrameSize + binary.MaxVarintLen64))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &wsSession{h: h, conn: conn, log: obslog.L()}
	defer s.release()

	if key := strings.TrimSpace(r.URL.Query().Get("session_key")); key != "" {
		if err := s.bind(ctx, key, true); err != nil {
			_ = s.writeEnvelope(ctx, s.reject(err))
			conn.Close(websocket.StatusPolicyViolation, "unknown session key")
			return
		}
	}

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			s.log.Debug("ws_read_end", zap.Error(err))
			return
		}
		reply := s.handle(ctx, typ, msg)
		if err := s.writeEnvelope(ctx, reply); err != nil {
			s.log.Debug("ws_write_failed", zap.Error(err))
			return
		}
	}
}

func (s *wsSession) handle(ctx context.Context, typ websocket.MessageType, msg []byte) codec.ServerEnvelope {
	if typ != websocket.MessageBinary {
		return s.reject(&codec.DecodeError{Field: "frame", Err: codec.ErrMalformedMessage})
	}
	payload, err := codec.Unframe(msg)
	if err != nil {
		return s.reject(&codec.DecodeError{Field: "frame", Err: codec.ErrMalformedMessage})
	}
	env, err := codec.DecodeClient(payload)
	if err != nil {
		return s.reject(err)
	}

	key := strings.TrimSpace(env.SessionKey)
	switch {
	case s.room == nil:
		if err := s.bind(ctx, key, false); err != nil {
			return s.reject(err)
		}
	case key != s.key:
		_, _, err := s.h.opts.Rooms.Lookup(key)
		if err == nil {
			err = room.ErrWrongRoom
		}
		return s.reject(err)
	}

	reply, err := s.room.Submit(ctx, s.color, env)
	if err != nil {
		return s.reject(err)
	}
	return reply
}

func (s *wsSession) reject(err error) codec.ServerEnvelope {
	s.log.Debug("ws_reject", zap.Error(err))
	return room.Rejection(s.h.opts.Texts, err)
}

// bind attaches the socket to the seat behind key and starts forwarding the
// room's broadcasts. With push the current state is sent first.
func (s *wsSession) bind(ctx context.Context, key string, push bool) error {
	rm, color, err := s.h.opts.Rooms.Lookup(key)
	if err != nil {
		return err
	}
	s.key, s.room, s.color = key, rm, color
	s.log = obslog.L().With(zap.String("room_id", rm.ID()), zap.String("color", color.String()))
	s.h.seatOnline(key)
	s.sub = rm.Subscribe(color)

	if push {
		if snap, err := rm.Snapshot(ctx); err == nil {
			if err := s.writeEnvelope(ctx, room.SyncEnvelope(snap)); err != nil {
				return err
			}
		}
	}
	go s.forward(ctx, s.sub)
	s.log.Info("ws_bind")
	return nil
}

func (s *wsSession) forward(ctx context.Context, sub *room.Subscription) {
	for frame := range sub.C {
		if err := s.write(ctx, frame); err != nil {
			s.log.Debug("ws_forward_failed", zap.Error(err))
			return
		}
	}
	if ctx.Err() == nil {
		// 방이 닫힘
		s.conn.Close(websocket.StatusNormalClosure, "room closed")
	}
}

func (s *wsSession) writeEnvelope(ctx context.Context, env codec.ServerEnvelope) error {
	payload, err := codec.EncodeServer(env)
	if err != nil {
		return err
	}
	return s.write(ctx, codec.AppendFrame(nil, payload))
}

func (s *wsSession) write(ctx context.Context, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageBinary, frame)
}

// release drops the seat's socket and schedules the disconnect forfeit when
// it was the seat's last one.
func (s *wsSession) release() {
	if s.sub != nil {
		s.sub.Close()
	}
	if s.room == nil {
		return
	}
	s.log.Info("ws_unbind")
	if s.h.seatOffline(s.key) > 0 || s.h.opts.DisconnectGrace <= 0 {
		return
	}
	rm, color, key := s.room, s.color, s.key
	log := s.log
	time.AfterFunc(s.h.opts.DisconnectGrace, func() {
		if s.h.seatConnected(key) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := rm.Disconnect(ctx, color); err != nil && !errors.Is(err, room.ErrRoomClosed) {
			log.Warn("ws_disconnect_error", zap.Error(err))
		}
	})
}

func (h *Handler) seatOnline(key string) {
	h.mu.Lock()
	h.online[key]++
	h.mu.Unlock()
}

func (h *Handler) seatOffline(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.online[key] - 1
	if n <= 0 {
		delete(h.online, key)
		return 0
	}
	h.online[key] = n
	return n
}

func (h *Handler) seatConnected(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online[key] > 0
}
