package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// State is the connection state of the realtime client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// ErrClosed indicates the client was closed and can no longer be used.
var ErrClosed = errors.New("realtime client closed")

// Message is the JSON envelope exchanged with the realtime endpoint.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Options tunes connection behaviour. Zero-value fields fall back to the
// defaults below.
type Options struct {
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int
}

// DefaultOptions returns the production connection tuning.
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		ReconnectDelay: time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  5,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = def.MaxBackoff
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = def.MaxReconnects
	}
	return o
}

// Client maintains a WebSocket connection to the SnatchShot realtime
// endpoint with heartbeat pings and exponential-backoff reconnection.
// WebSocket connections do not support concurrent writes, so Send guards the
// write path with a mutex; a single reader at a time is the caller's
// responsibility.
type Client struct {
	url    string
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	onState func(State)
	closed  bool

	pingCancel context.CancelFunc
	pingDone   chan struct{}
}

// NewClient constructs a realtime client for the resolved WebSocket base URL.
func NewClient(rawURL string, logger *zap.Logger, opts Options) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("unsupported websocket scheme %q", parsed.Scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		url:    rawURL,
		logger: logger.With(zap.String("component", "realtime")),
		opts:   opts.withDefaults(),
		state:  StateDisconnected,
	}, nil
}

// OnStateChange registers a callback invoked on every connection state
// transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState updates the state and fires the callback. Caller must not hold
// c.mu.
func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Connect dials the realtime endpoint and starts the heartbeat loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	// Close may have raced the dial; a connection installed now would leak
	// its heartbeat and resurrect a closed client.
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)
	c.startHeartbeat()

	c.logger.Info("realtime connection established", zap.String("url", c.url))
	return nil
}

// Send marshals the message and writes it as a text frame.
func (c *Client) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Receive reads the next message. On a read failure it attempts to
// re-establish the connection with exponential backoff before giving up.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		conn, closed := c.conn, c.closed
		c.mu.Unlock()
		if closed {
			return Message{}, ErrClosed
		}
		if conn == nil {
			return Message{}, fmt.Errorf("not connected")
		}

		_, data, err := conn.Read(ctx)
		if err == nil {
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				return Message{}, fmt.Errorf("decode message: %w", err)
			}
			return msg, nil
		}

		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		c.mu.Lock()
		closed = c.closed
		c.mu.Unlock()
		if closed {
			return Message{}, ErrClosed
		}

		if attempt >= c.opts.MaxReconnects {
			return Message{}, fmt.Errorf("websocket read after %d reconnect attempts: %w", attempt, err)
		}
		if rerr := c.reconnect(ctx, attempt); rerr != nil {
			return Message{}, rerr
		}
	}
}

// reconnect tears down the current connection and dials again after the
// backoff delay for this attempt.
func (c *Client) reconnect(ctx context.Context, attempt int) error {
	c.dropConn(websocket.StatusAbnormalClosure, "reconnecting")
	c.setState(StateDisconnected)

	delay := backoffDelay(attempt, c.opts.ReconnectDelay, c.opts.MaxBackoff)
	c.logger.Warn("realtime connection lost, reconnecting",
		zap.Int("attempt", attempt+1),
		zap.Duration("delay", delay),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	return c.Connect(ctx)
}

// Close shuts the connection down. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.dropConn(websocket.StatusNormalClosure, "client closed")
	c.setState(StateClosed)
	return nil
}

// dropConn stops the heartbeat and closes the underlying connection if any.
func (c *Client) dropConn(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	cancel := c.pingCancel
	done := c.pingDone
	c.pingCancel = nil
	c.pingDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if conn != nil {
		_ = conn.Close(code, reason)
	}
}

// startHeartbeat pings the server on an interval until the connection is
// dropped. A failed ping closes the connection so the next Receive triggers
// reconnection.
func (c *Client) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	conn := c.conn
	c.pingCancel = cancel
	c.pingDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.Ping(ctx); err != nil {
					c.logger.Warn("heartbeat ping failed", zap.Error(err))
					_ = conn.Close(websocket.StatusAbnormalClosure, "heartbeat failed")
					return
				}
			}
		}
	}()
}

// backoffDelay returns the exponential backoff delay for a reconnect
// attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
