package transport

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/opponent"
	"github.com/park285/baduk-omok-server/internal/room"
	"github.com/park285/baduk-omok-server/internal/rules"
	"github.com/park285/baduk-omok-server/internal/session"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Spectator streams frames of rooms hosted by any server process.
// *fanout.Redis satisfies it.
type Spectator interface {
	Subscribe(ctx context.Context, roomID string) (<-chan []byte, func(), error)
	Last(ctx context.Context, roomID string) ([]byte, error)
}

// TimeControls resolves a named time control. config.Presets satisfies it.
type TimeControls interface {
	Resolve(name string) (clock.TimeControl, error)
}

// OpponentFactory builds the automated player named by kind.
type OpponentFactory func(kind string) (opponent.Strategy, error)

var ErrUnknownOpponent = errors.New("unknown opponent")

// Opponents returns the stock factory: "heuristic" always works, "remote"
// only when remote is set.
func Opponents(remote opponent.Strategy) OpponentFactory {
	return func(kind string) (opponent.Strategy, error) {
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case "heuristic", "ai", "bot":
			return opponent.NewHeuristic(time.Now().UnixNano()), nil
		case "remote":
			if remote != nil {
				return remote, nil
			}
		}
		return nil, ErrUnknownOpponent
	}
}

type Options struct {
	Rooms     *room.Manager
	Spectator Spectator
	Texts     room.Texts
	Checks    map[string]Checker

	// Defaults fills POST /rooms fields left empty.
	Defaults     session.Config
	TimeControls TimeControls
	Opponents    OpponentFactory

	// DisconnectGrace is how long a seat may stay without a socket before
	// it forfeits; 0 never forfeits.
	DisconnectGrace time.Duration
}

type Handler struct {
	opts Options

	mu     sync.Mutex
	online map[string]int
	// 테스트에서 랜덤 색 고정용
	coin func() bool
}

func NewHandler(opts Options) *Handler {
	if opts.Opponents == nil {
		opts.Opponents = Opponents(nil)
	}
	return &Handler{
		opts:   opts,
		online: make(map[string]int),
		coin:   func() bool { return rand.Intn(2) == 0 },
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Post("/rooms", h.createRoom)
	r.Get("/rooms/{id}/watch", h.watch)
	r.Get("/ws", h.serveWS)
	return r
}

type healthResult struct {
	Status string `json:"status"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]healthResult, len(h.opts.Checks)+1)
	results["rooms"] = healthResult{Status: "ok"}
	status := http.StatusOK
	for name, c := range h.opts.Checks {
		if err := c.Check(ctx); err != nil {
			obslog.L().Error("health_check_failed", zap.String("name", name), zap.Error(err))
			results[name] = healthResult{Status: "error"}
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = healthResult{Status: "ok"}
	}
	writeJSON(w, status, results)
}

type CreateRoomRequest struct {
	Rules       string `json:"rules"`
	Size        int    `json:"size"`
	Color       string `json:"color"`
	Opponent    string `json:"opponent"`
	TimeControl string `json:"time_control"`
	Suicide     string `json:"suicide"`
	// Nil means true.
	AutoStart *bool `json:"auto_start"`
}

type SeatInfo struct {
	SessionKey string `json:"session_key"`
	Color      string `json:"color"`
}

type CreateRoomResponse struct {
	RoomID string     `json:"room_id"`
	Rules  string     `json:"rules"`
	Size   int        `json:"size"`
	Seats  []SeatInfo `json:"seats"`
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// 요청한 색의 좌석을 먼저
	mine := room.ParseColorChoice(req.Color).Resolve(h.coin)
	cfg, err := h.roomConfig(req, mine)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rm, seats, err := h.opts.Rooms.Create(r.Context(), cfg)
	switch {
	case errors.Is(err, room.ErrTooManyRooms):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, board.ErrInvalidSize):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		obslog.L().Error("room_create_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := CreateRoomResponse{RoomID: rm.ID(), Rules: string(cfg.Game.Rules), Size: cfg.Game.Size}
	for _, s := range seats {
		info := SeatInfo{SessionKey: s.Key, Color: s.Color.String()}
		if s.Color == mine {
			out.Seats = append([]SeatInfo{info}, out.Seats...)
		} else {
			out.Seats = append(out.Seats, info)
		}
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) roomConfig(req CreateRoomRequest, mine board.Cell) (room.Config, error) {
	game := h.opts.Defaults
	if strings.TrimSpace(req.Rules) != "" {
		kind, err := rules.ParseKind(req.Rules)
		if err != nil {
			return room.Config{}, err
		}
		game.Rules = kind
	}
	if req.Size != 0 {
		game.Size = req.Size
	}
	if !board.ValidSize(game.Size) {
		return room.Config{}, board.ErrInvalidSize
	}
	if s := strings.TrimSpace(req.Suicide); s != "" {
		game.Suicide = board.ParseSuicidePolicy(strings.ToLower(s))
	}
	if name := strings.TrimSpace(req.TimeControl); name != "" {
		if h.opts.TimeControls == nil {
			return room.Config{}, errors.New("named time controls are not configured")
		}
		tc, err := h.opts.TimeControls.Resolve(name)
		if err != nil {
			return room.Config{}, err
		}
		game.TimeControl = tc
	}

	cfg := room.Config{Game: game, AutoStart: req.AutoStart == nil || *req.AutoStart}
	if kind := strings.TrimSpace(req.Opponent); kind != "" {
		strategy, err := h.opts.Opponents(kind)
		if err != nil {
			return room.Config{}, err
		}
		cfg.Opponent = strategy
		cfg.OpponentColor = mine.Opponent()
	}
	return cfg, nil
}
