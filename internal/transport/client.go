package transport

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/baduk-omok-server/internal/codec"
	"github.com/park285/baduk-omok-server/internal/obslog"
)

var ErrClientClosed = errors.New("client closed")

const clientQueue = 64

// Client is a game socket bound to one seat. Server envelopes, replies and
// broadcasts alike, arrive in order through Recv.
type Client struct {
	conn *websocket.Conn
	key  string
	seq  atomic.Uint64

	in      chan codec.ServerEnvelope
	readErr error

	pingInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type ClientOption func(*Client)

// WithPingInterval sets the keepalive period; 0 disables pings.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.pingInterval = d }
}

// Dial connects to wsURL (ws://host/ws) as the seat behind sessionKey. The
// server answers the connect with the current game state.
func Dial(ctx context.Context, wsURL, sessionKey string, opts ...ClientOption) (*Client, error) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return nil, errors.New("session key required")
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("session_key", key)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:         conn,
		key:          key,
		in:           make(chan codec.ServerEnvelope, clientQueue),
		pingInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.listen()
	if c.pingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}
	return c, nil
}

func (c *Client) listen() {
	defer c.wg.Done()
	defer close(c.in)
	for {
		typ, msg, err := c.conn.Read(c.rootCtx)
		if err != nil {
			if !c.isStopping() {
				c.readErr = err
			}
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		payload, err := codec.Unframe(msg)
		if err != nil {
			obslog.L().Warn("client_bad_frame", zap.Error(err))
			continue
		}
		env, err := codec.DecodeServer(payload)
		if err != nil {
			obslog.L().Warn("client_bad_envelope", zap.Error(err))
			continue
		}
		select {
		case c.in <- env:
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := c.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Warn("client_ping_failed", zap.Error(err))
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// Send stamps the session key and the next sequence number when env leaves
// them empty, then writes one frame.
func (c *Client) Send(ctx context.Context, env codec.ClientEnvelope) error {
	if c.isStopping() {
		return ErrClientClosed
	}
	if env.SessionKey == "" {
		env.SessionKey = c.key
	}
	if env.Seq == 0 {
		env.Seq = c.seq.Add(1)
	}
	payload, err := codec.EncodeClient(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageBinary, codec.AppendFrame(nil, payload))
}

// Recv returns the next server envelope. After the socket ends it returns
// the read error, or ErrClientClosed after Close.
func (c *Client) Recv(ctx context.Context) (codec.ServerEnvelope, error) {
	select {
	case env, ok := <-c.in:
		if !ok {
			if c.readErr != nil {
				return codec.ServerEnvelope{}, c.readErr
			}
			return codec.ServerEnvelope{}, ErrClientClosed
		}
		return env, nil
	case <-ctx.Done():
		return codec.ServerEnvelope{}, ctx.Err()
	}
}

func (c *Client) Start(ctx context.Context) error {
	return c.Send(ctx, codec.ClientEnvelope{Kind: codec.ClientGameStart})
}

func (c *Client) Place(ctx context.Context, coord int) error {
	return c.Send(ctx, codec.ClientEnvelope{Kind: codec.ClientPlaceStone, Coordinate: uint32(coord)})
}

func (c *Client) Pass(ctx context.Context) error {
	return c.Send(ctx, codec.ClientEnvelope{Kind: codec.ClientPassTurn})
}

func (c *Client) Resign(ctx context.Context) error {
	return c.Send(ctx, codec.ClientEnvelope{Kind: codec.ClientResign})
}

func (c *Client) OfferDraw(ctx context.Context) error {
	return c.Send(ctx, codec.ClientEnvelope{Kind: codec.ClientOfferDraw})
}

func (c *Client) AnswerDraw(ctx context.Context, accept bool) error {
	return c.Send(ctx, codec.ClientEnvelope{Kind: codec.ClientAcceptDraw, Accepted: accept})
}

// Close shuts the socket and waits for the client goroutines.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	_ = c.conn.Close(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		c.rootCancel()
		return ctx.Err()
	case <-done:
		c.rootCancel()
		return nil
	}
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}
