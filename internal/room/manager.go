package room

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/session"
)

type seatRef struct {
	roomID string
	color  board.Cell
}

// Manager owns every live room and the session keys bound to their seats.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	seats map[string]seatRef
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		rooms:  make(map[string]*Room),
		seats:  make(map[string]seatRef),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Create starts a room and returns the session keys for its human seats,
// black first.
func (m *Manager) Create(ctx context.Context, cfg Config) (*Room, []Seat, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	game, err := session.New(cfg.Game)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	if m.opts.MaxRooms > 0 && len(m.rooms) >= m.opts.MaxRooms {
		m.mu.Unlock()
		return nil, nil, ErrTooManyRooms
	}
	id := uuid.NewString()
	r := newRoom(m.ctx, id, game, cfg, m.opts)
	var seats []Seat
	for _, color := range []board.Cell{board.Black, board.White} {
		if r.ai != nil && color == r.aiColor {
			continue
		}
		s := Seat{Key: uuid.NewString(), Color: color}
		m.seats[s.Key] = seatRef{roomID: id, color: color}
		seats = append(seats, s)
	}
	m.rooms[id] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.run()
	}()
	go func() {
		<-r.Done()
		m.forget(id)
	}()

	gc := game.Config()
	obslog.L().Info("room_create",
		zap.String("room_id", id),
		zap.String("rules", string(gc.Rules)),
		zap.Int("size", gc.Size),
		zap.Bool("opponent", r.ai != nil))

	if cfg.AutoStart {
		if err := r.do(ctx, r.start); err != nil {
			r.Close()
			return nil, nil, err
		}
	}
	return r, seats, nil
}

// Lookup resolves a session key to its room and colour.
func (m *Manager) Lookup(sessionKey string) (*Room, board.Cell, error) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return nil, board.Empty, ErrUnknownSessionKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.seats[key]
	if !ok {
		return nil, board.Empty, ErrUnknownSessionKey
	}
	r, ok := m.rooms[ref.roomID]
	if !ok {
		return nil, board.Empty, ErrUnknownSessionKey
	}
	return r, ref.color, nil
}

func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Close stops a room and releases its seats.
func (m *Manager) Close(id string) error {
	r, ok := m.Get(id)
	if !ok {
		return ErrRoomClosed
	}
	r.Close()
	m.forget(id)
	return nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return
	}
	delete(m.rooms, id)
	for key, ref := range m.seats {
		if ref.roomID == id {
			delete(m.seats, key)
		}
	}
	obslog.L().Info("room_close", zap.String("room_id", id))
}

// Shutdown stops every room and waits for their goroutines.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
