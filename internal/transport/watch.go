package transport

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/room"
)

// watch streams every broadcast of a room to a read-only socket. Rooms hosted
// by this process are read directly; others come from the Spectator.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var (
		frames <-chan []byte
		stop   func()
		first  []byte
	)
	if rm, ok := h.opts.Rooms.Get(id); ok {
		sub := rm.Subscribe(board.Empty)
		frames, stop = sub.C, sub.Close
		if snap, err := rm.Snapshot(ctx); err == nil {
			if payload, err := codec.EncodeServer(room.SyncEnvelope(snap)); err == nil {
				first = codec.AppendFrame(nil, payload)
			}
		}
	} else if h.opts.Spectator != nil {
		// 구독을 먼저 열어야 Last 조회 사이의 프레임을 놓치지 않는다
		ch, cancel, err := h.opts.Spectator.Subscribe(ctx, id)
		if err != nil {
			obslog.L().Warn("watch_subscribe_failed", zap.String("room_id", id), zap.Error(err))
			writeError(w, http.StatusBadGateway, "fanout unavailable")
			return
		}
		last, err := h.opts.Spectator.Last(ctx, id)
		if err != nil {
			cancel()
			obslog.L().Warn("watch_last_failed", zap.String("room_id", id), zap.Error(err))
			writeError(w, http.StatusBadGateway, "fanout unavailable")
			return
		}
		if last == nil {
			cancel()
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		frames, stop, first = ch, cancel, last
	} else {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	defer stop()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 관전자는 읽기 전용
	ctx = conn.CloseRead(ctx)
	if first != nil {
		if err := writeFrame(ctx, conn, first); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "room closed")
				return
			}
			// the first frame may also arrive through the subscription
			if first != nil && bytes.Equal(frame, first) {
				first = nil
				continue
			}
			first = nil
			if err := writeFrame(ctx, conn, frame); err != nil {
				obslog.L().Debug("watch_write_failed", zap.String("room_id", id), zap.Error(err))
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageBinary, frame)
}
