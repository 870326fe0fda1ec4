// Package fanout relays room broadcast frames through Redis pub/sub so that
// spectators attached to another server process see the same stream.
package fanout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/baduk-omok-server/internal/obslog"
)

const (
	ttlLast      = 24 * time.Hour
	forwardQueue = 64
)

// Redis publishes frames to "baduk:room:<id>" and remembers the last frame of
// each room so late subscribers can catch up.
type Redis struct {
	rdb  *redis.Client
	own  bool
	once sync.Once
}

func New(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

// NewFromURL dials REDIS_URL and checks the connection.
func NewFromURL(ctx context.Context, raw string) (*Redis, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("REDIS_URL required for fanout")
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, own: true}, nil
}

func keyChannel(roomID string) string { return "baduk:room:" + strings.TrimSpace(roomID) }
func keyLast(roomID string) string    { return keyChannel(roomID) + ":last" }

// Publish implements room.Publisher.
func (f *Redis) Publish(ctx context.Context, roomID string, frame []byte) error {
	pipe := f.rdb.Pipeline()
	pipe.Set(ctx, keyLast(roomID), frame, ttlLast)
	pipe.Publish(ctx, keyChannel(roomID), frame)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", roomID, err)
	}
	return nil
}

// Last returns the most recent frame published for roomID, or nil.
func (f *Redis) Last(ctx context.Context, roomID string) ([]byte, error) {
	raw, err := f.rdb.Get(ctx, keyLast(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Subscribe returns a channel of frames published for roomID. The
// subscription is confirmed before Subscribe returns, so frames published
// afterwards are never missed. The channel closes after cancel or when ctx ends.
func (f *Redis) Subscribe(ctx context.Context, roomID string) (<-chan []byte, func(), error) {
	ps := f.rdb.Subscribe(ctx, keyChannel(roomID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", roomID, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan []byte, forwardQueue)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-subCtx.Done():
					return
				default:
					obslog.L().Warn("fanout_subscriber_slow", zap.String("room_id", roomID))
				}
			}
		}
	}()
	return out, cancel, nil
}

// Ping backs the /healthz redis check.
func (f *Redis) Ping(ctx context.Context) error { return f.rdb.Ping(ctx).Err() }

// Close releases the client when it was dialed by NewFromURL.
func (f *Redis) Close() error {
	if f == nil || !f.own {
		return nil
	}
	var err error
	f.once.Do(func() { err = f.rdb.Close() })
	return err
}
