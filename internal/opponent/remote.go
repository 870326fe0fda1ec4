package opponent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/obslog"
)

// MoveRequest is the body of POST /move on a remote engine.
type MoveRequest struct {
	Size  int      `json:"size"`
	Black []uint64 `json:"black"`
	White []uint64 `json:"white"`
	Color string   `json:"color"`
	Rules string   `json:"rules"`
}

type MoveResponse struct {
	Coordinate int  `json:"coordinate"`
	Pass       bool `json:"pass"`
}

// EngineError is a non-2xx answer from the remote engine.
type EngineError struct {
	Status int
	Body   string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("remote engine: status %d: %s", e.Status, e.Body)
}

// Busy reports whether the engine may answer a later attempt.
func (e *EngineError) Busy() bool {
	switch e.Status {
	case fasthttp.StatusTooManyRequests, fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

// engine bodies are quoted in errors up to this many bytes
const maxEngineBody = 512

// Remote asks an HTTP engine for moves.
type Remote struct {
	baseURL string
	http    *fasthttp.Client

	moveTimeout time.Duration
	attempts    int
	backoff     time.Duration
}

type Option func(*Remote)

// WithTimeout bounds a single request to the engine.
func WithTimeout(d time.Duration) Option {
	return func(r *Remote) { r.moveTimeout = d }
}

// WithRetry sets how many times a move is requested before giving up.
func WithRetry(attempts int) Option {
	return func(r *Remote) { r.attempts = attempts }
}

// WithBackoff sets the wait before the second attempt; it doubles afterwards.
func WithBackoff(d time.Duration) Option {
	return func(r *Remote) { r.backoff = d }
}

func NewRemote(baseURL string, opts ...Option) *Remote {
	r := &Remote{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		moveTimeout: 5 * time.Second,
		attempts:    3,
		backoff:     100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	return r
}

func (r *Remote) Choose(ctx context.Context, pos Position, color board.Cell) (Move, error) {
	bb := codec.EncodeBoard(pos.Board)
	payload, err := json.Marshal(MoveRequest{
		Size:  bb.Size,
		Black: bb.Black,
		White: bb.White,
		Color: color.String(),
		Rules: string(pos.Rules),
	})
	if err != nil {
		return Move{}, fmt.Errorf("remote engine: encode position: %w", err)
	}

	resp, err := r.askMove(ctx, payload)
	if err != nil {
		return Move{}, err
	}
	if resp.Pass {
		return Move{Pass: true}, nil
	}
	if resp.Coordinate < 0 || resp.Coordinate >= bb.Size*bb.Size {
		return Move{}, fmt.Errorf("remote engine: coordinate %d out of range", resp.Coordinate)
	}
	return Move{Coord: resp.Coordinate}, nil
}

// askMove posts the position until the engine answers, a non-busy error comes
// back, or the attempts run out.
func (r *Remote) askMove(ctx context.Context, payload []byte) (MoveResponse, error) {
	wait := r.backoff
	for attempt := 1; ; attempt++ {
		resp, err := r.postMove(ctx, payload)
		if err == nil {
			return resp, nil
		}
		var engErr *EngineError
		if errors.As(err, &engErr) && !engErr.Busy() {
			return MoveResponse{}, err
		}
		if attempt >= r.attempts {
			return MoveResponse{}, fmt.Errorf("remote engine: giving up after %d attempts: %w", attempt, err)
		}

		obslog.L().Debug("remote_engine_retry", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return MoveResponse{}, fmt.Errorf("remote engine: %w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
		wait *= 2
	}
}

func (r *Remote) postMove(ctx context.Context, payload []byte) (MoveResponse, error) {
	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(r.baseURL + "/move")
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	// 한 수에 쓰는 시간은 대국 context 마감보다 길 수 없다
	deadline := time.Now().Add(r.moveTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := r.http.DoDeadline(req, res, deadline); err != nil {
		return MoveResponse{}, fmt.Errorf("remote engine: %w", err)
	}

	if status := res.StatusCode(); status < 200 || status >= 300 {
		body := res.Body()
		if len(body) > maxEngineBody {
			body = body[:maxEngineBody]
		}
		return MoveResponse{}, &EngineError{Status: status, Body: string(body)}
	}
	var out MoveResponse
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return MoveResponse{}, fmt.Errorf("remote engine: decode move: %w", err)
	}
	return out, nil
}
