package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/facility-live/internal/stomp"
)

// Client represents a single WebSocket connection to the live-update broker.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes one text message to the connection.
	Send(data []byte) error

	// StartHeartbeat begins sending a heart-beat every send interval and
	// reports ErrStaleConnection when nothing arrives for tolerance × expect.
	// Zero disables either direction.
	StartHeartbeat(send, expect time.Duration)

	// Messages returns a channel of ALL raw messages in arrival order.
	// Each message includes a local timestamp for when it was received.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastReadAt time.Time
	closed     bool
	hbOnce     sync.Once
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	if cfg.HeartbeatTolerance < 1 {
		cfg.HeartbeatTolerance = 1
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	for k, v := range c.cfg.Header {
		header[k] = append([]string(nil), v...)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		Subprotocols:     c.cfg.Subprotocols,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Closed while dialing
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.lastReadAt = time.Now()
	c.mu.Unlock()

	// Control frames count as inbound traffic for staleness checks
	conn.SetPingHandler(func(data string) error {
		c.touch()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL, "subprotocol", conn.Subprotocol())

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return conn.Close()
	}

	return nil
}

// Send writes one text message to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// StartHeartbeat starts the heart-beat goroutine once per connection.
func (c *client) StartHeartbeat(send, expect time.Duration) {
	if send <= 0 && expect <= 0 {
		return
	}
	c.hbOnce.Do(func() {
		go c.heartbeatLoop(send, expect)
	})
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastReadAt = time.Now()
	c.mu.Unlock()
}

func (c *client) reportError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop reads messages from the WebSocket and sends them to the messages
// channel. A full channel blocks the loop rather than dropping, so frames
// are never lost or reordered.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
			default:
				c.reportError(err)
			}
			return
		}

		c.mu.Lock()
		c.lastReadAt = receivedAt
		c.mu.Unlock()

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop sends client heart-beats and monitors for stale connections.
func (c *client) heartbeatLoop(send, expect time.Duration) {
	var sendC, checkC <-chan time.Time
	if send > 0 {
		t := time.NewTicker(send)
		defer t.Stop()
		sendC = t.C
	}
	if expect > 0 {
		t := time.NewTicker(expect)
		defer t.Stop()
		checkC = t.C
	}
	staleAfter := expect * time.Duration(c.cfg.HeartbeatTolerance)

	for {
		select {
		case <-c.done:
			return

		case <-sendC:
			if err := c.Send(stomp.HeartbeatEOL); err != nil {
				c.logger.Debug("failed to send heart-beat", "error", err)
			}

		case <-checkC:
			c.mu.RLock()
			lastRead := c.lastReadAt
			c.mu.RUnlock()

			if time.Since(lastRead) > staleAfter {
				c.logger.Warn("no heart-beat received, connection stale",
					"last_read", lastRead,
					"timeout", staleAfter,
				)
				c.reportError(ErrStaleConnection)
				return
			}
		}
	}
}
