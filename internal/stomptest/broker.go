package stomptest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"github.com/rickgao/facility-live/internal/stomp"
)

// Path is the endpoint path returned by URL.
const Path = "/ws-cafeteria/websocket"

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets the heart-beat header of CONNECTED. A non-zero send
// interval makes the broker actually emit an EOL at that rate.
func WithHeartbeat(send, receive time.Duration) Option {
	return func(b *Broker) {
		b.heartbeat = stomp.Heartbeat{Send: send, Receive: receive}
	}
}

// WithoutConnected makes the broker accept CONNECT but never answer it.
func WithoutConnected() Option {
	return func(b *Broker) {
		b.silent = true
	}
}

// WithoutHeartbeats makes the broker advertise its heart-beat header but
// never send one, as a hung backend would.
func WithoutHeartbeats() Option {
	return func(b *Broker) {
		b.stalled = true
	}
}

// Subscription is an active SUBSCRIBE on one of the broker's connections.
type Subscription struct {
	ID          string
	Destination string
}

// Broker is a STOMP-over-WebSocket server backed by httptest.
type Broker struct {
	server    *httptest.Server
	upgrader  websocket.Upgrader
	heartbeat stomp.Heartbeat
	silent    bool
	stalled   bool

	mu       sync.Mutex
	conns    map[*conn]struct{}
	upgrades int
	connects int
	received []*frame.Frame
	nextID   int
	changed  chan struct{} // Closed and replaced on every change
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]string // Subscription id → destination, guarded by Broker.mu
	order   []string          // Subscription ids in SUBSCRIBE order
	done    chan struct{}
}

// NewBroker starts a broker. Call Close when done.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		upgrader: websocket.Upgrader{
			Subprotocols: stomp.Subprotocols,
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
		conns:   make(map[*conn]struct{}),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// URL returns the WebSocket endpoint.
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + Path
}

// Close drops all connections and stops the server.
func (b *Broker) Close() {
	b.DropConnections()
	b.server.Close()
}

// Upgrades returns how many WebSocket connections were accepted.
func (b *Broker) Upgrades() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upgrades
}

// Connects returns how many CONNECT frames were received.
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Active returns the number of open connections.
func (b *Broker) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Received returns the frames received with the given command, oldest first.
func (b *Broker) Received(command string) []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*frame.Frame
	for _, f := range b.received {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

// Subscriptions returns the live subscriptions across open connections.
func (b *Broker) Subscriptions() []Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Subscription
	for c := range b.conns {
		for _, id := range c.order {
			out = append(out, Subscription{ID: id, Destination: c.subs[id]})
		}
	}
	return out
}

// WaitFor blocks until cond holds or timeout elapses. cond is evaluated
// after every broker event.
func (b *Broker) WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.After(timeout)
	for {
		b.mu.Lock()
		ch := b.changed
		b.mu.Unlock()

		if cond() {
			return true
		}

		select {
		case <-ch:
		case <-deadline:
			return cond()
		}
	}
}

// WaitSubscribed waits for a live subscription to destination and returns
// its id.
func (b *Broker) WaitSubscribed(destination string, timeout time.Duration) (string, bool) {
	var id string
	ok := b.WaitFor(timeout, func() bool {
		for _, s := range b.Subscriptions() {
			if s.Destination == destination {
				id = s.ID
				return true
			}
		}
		return false
	})
	return id, ok
}

// Publish sends body as a MESSAGE to every subscription on destination,
// with a generated message-id. It returns the number of frames sent.
func (b *Broker) Publish(destination, body string) int {
	b.mu.Lock()
	b.nextID++
	id := "msg-" + strconv.Itoa(b.nextID)
	b.mu.Unlock()

	return b.PublishID(destination, id, body)
}

// PublishID is Publish with an explicit message-id.
func (b *Broker) PublishID(destination, messageID, body string) int {
	type target struct {
		c     *conn
		subID string
	}

	b.mu.Lock()
	var targets []target
	for c := range b.conns {
		for _, id := range c.order {
			if c.subs[id] == destination {
				targets = append(targets, target{c, id})
			}
		}
	}
	b.mu.Unlock()

	sent := 0
	for _, t := range targets {
		f := frame.New(frame.MESSAGE,
			stomp.HeaderDestination, destination,
			stomp.HeaderSubscription, t.subID,
			stomp.HeaderMessageID, messageID,
			stomp.HeaderContentType, "application/json",
		)
		f.Body = []byte(body)
		if t.c.write(stomp.MustEncode(f)) == nil {
			sent++
		}
	}
	return sent
}

// SendRaw writes data as one text message on every open connection.
func (b *Broker) SendRaw(data []byte) int {
	sent := 0
	for _, c := range b.snapshot() {
		if c.write(data) == nil {
			sent++
		}
	}
	return sent
}

// SendError writes an ERROR frame on every open connection.
func (b *Broker) SendError(message, detail string) int {
	f := frame.New(frame.ERROR, stomp.HeaderMessage, message)
	f.Body = []byte(detail)
	return b.SendRaw(stomp.MustEncode(f))
}

// DropConnections closes every socket without a close handshake, as a
// crashed backend would.
func (b *Broker) DropConnections() {
	for _, c := range b.snapshot() {
		c.ws.UnderlyingConn().Close()
	}
}

// CloseConnections sends a WebSocket close frame with code on every open
// connection.
func (b *Broker) CloseConnections(code int) {
	for _, c := range b.snapshot() {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.ws.Close()
	}
}

func (b *Broker) snapshot() []*conn {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*conn, 0, len(b.conns))
	for c := range b.conns {
		out = append(out, c)
	}
	return out
}

// notifyLocked wakes WaitFor callers.
func (b *Broker) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Broker) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &conn{
		ws:   ws,
		subs: make(map[string]string),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.upgrades++
	b.conns[c] = struct{}{}
	b.notifyLocked()
	b.mu.Unlock()

	defer func() {
		close(c.done)
		ws.Close()

		b.mu.Lock()
		delete(b.conns, c)
		b.notifyLocked()
		b.mu.Unlock()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		frames, err := stomp.Decode(data)
		if err != nil {
			continue
		}
		for _, f := range frames {
			b.handle(c, f)
		}
	}
}

func (b *Broker) handle(c *conn, f *frame.Frame) {
	b.mu.Lock()
	b.received = append(b.received, f)

	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		b.connects++

	case frame.SUBSCRIBE:
		id := f.Header.Get(stomp.HeaderID)
		if _, ok := c.subs[id]; !ok {
			c.order = append(c.order, id)
		}
		c.subs[id] = f.Header.Get(stomp.HeaderDestination)

	case frame.UNSUBSCRIBE:
		id := f.Header.Get(stomp.HeaderID)
		delete(c.subs, id)
		for i, x := range c.order {
			if x == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	b.notifyLocked()
	b.mu.Unlock()

	if (f.Command == frame.CONNECT || f.Command == frame.STOMP) && !b.silent {
		connected := frame.New(frame.CONNECTED,
			stomp.HeaderVersion, "1.2",
			stomp.HeaderHeartBeat, b.heartbeat.String(),
		)
		c.write(stomp.MustEncode(connected))

		if b.heartbeat.Send > 0 && !b.stalled {
			go c.heartbeat(b.heartbeat.Send)
		}
	}
}

func (c *conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) heartbeat(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.write(stomp.HeartbeatEOL) != nil {
				return
			}
		}
	}
}
