package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/facility-live/internal/dedup"
	"github.com/rickgao/facility-live/internal/metrics"
	"github.com/rickgao/facility-live/internal/stomp"
	"github.com/rickgao/facility-live/internal/update"
	"github.com/rickgao/facility-live/internal/version"
)

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records manager activity in m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		if m != nil {
			mgr.metrics = m
		}
	}
}

// WithHeader adds headers to every WebSocket upgrade request.
func WithHeader(h http.Header) Option {
	return func(mgr *Manager) {
		for k, v := range h {
			mgr.header[k] = append(mgr.header[k], v...)
		}
	}
}

// Manager owns the single STOMP-over-WebSocket connection of the process and
// fans inbound updates out to registered consumers.
//
// The transport is opened by the first Connect and torn down when the last
// consumer is released or Disconnect is called. While consumers exist the
// manager reconnects after a fixed delay and resubscribes every topic.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	header  http.Header

	// deliverMu spans every callback invocation. Release and Disconnect take
	// it so no callback runs after they return. Lock order: deliverMu, mu.
	deliverMu sync.Mutex

	mu      sync.Mutex
	state   State
	epoch   uint64             // Bumped on start and teardown
	cancel  context.CancelFunc // Stops the current supervisor
	client  Client             // Set while Connected
	topics  map[string]*topicEntry
	bySubID map[string]string // STOMP subscription id → topic key
	outbox  []outFrame        // Written by the session goroutine, in order
	kick    chan struct{}     // Wakes the connected session to flush outbox

	newClient func(ClientConfig, *slog.Logger) Client

	listenMu     sync.Mutex
	listeners    map[uint64]func(State)
	nextListener uint64
	lastEmitted  State

	sessions          atomic.Int64
	reconnects        atomic.Int64
	delivered         atomic.Int64
	parseErrors       atomic.Int64
	duplicatesDropped atomic.Int64
}

// topicEntry is the registry record of one topic.
type topicEntry struct {
	key       string
	consumers []*consumer // Registration order is delivery order
	subID     string      // Transport subscription in the current session
	seen      *dedup.Window
}

// outFrame is an encoded frame queued for the session of epoch.
type outFrame struct {
	epoch uint64
	data  []byte
}

type consumer struct {
	id       string
	topic    string
	onUpdate UpdateHandler
	onError  ErrorHandler
}

// Subscription is one consumer's registration with the Manager.
type Subscription struct {
	mgr  *Manager
	c    *consumer
	once sync.Once
}

// Topic returns the topic key the subscription was made for.
func (s *Subscription) Topic() string { return s.c.topic }

// ID returns the consumer id.
func (s *Subscription) ID() string { return s.c.id }

// Release removes the consumer. It is safe to call more than once. The
// consumer's callbacks are never invoked after Release returns.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.mgr.release(s.c)
	})
}

// NewManager creates a Connection Manager. Nothing is dialed until the first
// Connect.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultManagerConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = def.TopicPrefix
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.HeartbeatTolerance < 1 {
		cfg.HeartbeatTolerance = def.HeartbeatTolerance
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		header:    http.Header{},
		topics:    make(map[string]*topicEntry),
		bySubID:   make(map[string]string),
		listeners: make(map[uint64]func(State)),
		kick:      make(chan struct{}, 1),
		newClient: NewClient,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.New(prometheus.NewRegistry())
	}
	m.metrics.ConnectionState.Set(float64(StateDisconnected))

	return m
}

// Connect registers onUpdate for topicKey and makes sure the transport is
// open and subscribed. It never blocks on network I/O; onError
// receives transport and protocol errors for as long as the subscription
// lives and may be nil.
func (m *Manager) Connect(topicKey string, onUpdate UpdateHandler, onError ErrorHandler) (*Subscription, error) {
	if strings.TrimSpace(topicKey) == "" {
		m.logger.Warn("ignoring subscription with empty topic key")
		return nil, ErrEmptyTopic
	}
	if onUpdate == nil {
		m.logger.Warn("ignoring subscription without update handler", "topic", topicKey)
		return nil, ErrNilHandler
	}

	c := &consumer{
		id:       uuid.NewString(),
		topic:    topicKey,
		onUpdate: onUpdate,
		onError:  onError,
	}

	m.mu.Lock()
	entry, ok := m.topics[topicKey]
	if !ok {
		entry = &topicEntry{key: topicKey, seen: dedup.NewWindow(m.cfg.DedupWindow)}
		m.topics[topicKey] = entry
	}
	entry.consumers = append(entry.consumers, c)

	switch m.state {
	case StateDisconnected:
		m.startLocked()
	case StateConnected:
		if entry.subID == "" {
			m.subscribeLocked(entry)
		}
	}
	// Connecting or Reconnecting: subscribed once the handshake completes
	m.updateRegistryMetricsLocked()
	m.mu.Unlock()

	m.logger.Debug("consumer registered", "topic", topicKey, "consumer", c.id)
	m.emitState()

	return &Subscription{mgr: m, c: c}, nil
}

// Disconnect removes every consumer and closes the transport. It is a no-op
// when already disconnected and does not retry.
func (m *Manager) Disconnect() {
	m.deliverMu.Lock()
	m.mu.Lock()
	clear(m.topics)
	clear(m.bySubID)
	wasActive := m.state != StateDisconnected
	if wasActive {
		m.teardownLocked()
	}
	m.updateRegistryMetricsLocked()
	m.mu.Unlock()
	m.deliverMu.Unlock()

	if wasActive {
		m.logger.Info("disconnected")
	}
	m.emitState()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch calls fn with the current state and again on every change until the
// returned cancel func is called. Listeners must not call back into the
// Manager.
func (m *Manager) Watch(fn func(State)) (cancel func()) {
	m.listenMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	fn(m.State())
	m.listenMu.Unlock()

	return func() {
		m.listenMu.Lock()
		delete(m.listeners, id)
		m.listenMu.Unlock()
	}
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	consumers := 0
	for _, e := range m.topics {
		consumers += len(e.consumers)
	}
	stats := ManagerStats{
		State:     m.state,
		Topics:    slices.Sorted(maps.Keys(m.topics)),
		Consumers: consumers,
	}
	m.mu.Unlock()

	stats.Sessions = m.sessions.Load()
	stats.Reconnects = m.reconnects.Load()
	stats.Delivered = m.delivered.Load()
	stats.ParseErrors = m.parseErrors.Load()
	stats.DuplicatesDropped = m.duplicatesDropped.Load()
	return stats
}

// release removes one consumer, unsubscribing its topic when it was the last
// and closing the transport when the registry becomes empty.
func (m *Manager) release(c *consumer) {
	m.deliverMu.Lock()
	m.mu.Lock()

	entry, ok := m.topics[c.topic]
	if ok {
		entry.consumers = slices.DeleteFunc(entry.consumers, func(x *consumer) bool { return x == c })
		if len(entry.consumers) == 0 {
			delete(m.topics, c.topic)
			if entry.subID != "" {
				m.unsubscribeLocked(entry)
			}
		}
	}

	tornDown := false
	if len(m.topics) == 0 && m.state != StateDisconnected {
		m.teardownLocked()
		tornDown = true
	}
	m.updateRegistryMetricsLocked()
	m.mu.Unlock()
	m.deliverMu.Unlock()

	m.logger.Debug("consumer released", "topic", c.topic, "consumer", c.id)
	if tornDown {
		m.logger.Info("last consumer released, connection closed")
	}
	m.emitState()
}

// startLocked launches a supervisor for a new active period.
func (m *Manager) startLocked() {
	m.epoch++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = StateConnecting

	go m.run(ctx, m.epoch)
}

// teardownLocked stops the supervisor. The session closes its socket
// asynchronously.
func (m *Manager) teardownLocked() {
	m.epoch++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.client = nil
	m.state = StateDisconnected
	clear(m.bySubID)
	for _, e := range m.topics {
		e.subID = ""
	}
}

func (m *Manager) subscribeLocked(entry *topicEntry) {
	entry.subID = uuid.NewString()
	m.bySubID[entry.subID] = entry.key

	dest := m.cfg.TopicPrefix + entry.key
	m.enqueueLocked(stomp.MustEncode(stomp.Subscribe(entry.subID, dest)))
	m.logger.Debug("subscribing", "topic", entry.key, "destination", dest, "sub_id", entry.subID)
}

func (m *Manager) unsubscribeLocked(entry *topicEntry) {
	delete(m.bySubID, entry.subID)
	if m.state == StateConnected && m.client != nil {
		m.enqueueLocked(stomp.MustEncode(stomp.Unsubscribe(entry.subID)))
		m.logger.Debug("unsubscribing", "topic", entry.key, "sub_id", entry.subID)
	}
	entry.subID = ""
}

// enqueueLocked queues data for the current session and wakes it.
func (m *Manager) enqueueLocked(data []byte) {
	m.outbox = append(m.outbox, outFrame{epoch: m.epoch, data: data})
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// dropOutboxLocked discards frames queued for the session of epoch.
func (m *Manager) dropOutboxLocked(epoch uint64) {
	m.outbox = slices.DeleteFunc(m.outbox, func(f outFrame) bool { return f.epoch == epoch })
}

// flush writes the frames queued for the session of epoch, outside mu.
func (m *Manager) flush(epoch uint64, client Client) error {
	m.mu.Lock()
	var pending [][]byte
	m.outbox = slices.DeleteFunc(m.outbox, func(f outFrame) bool {
		if f.epoch != epoch {
			return false
		}
		pending = append(pending, f.data)
		return true
	})
	m.mu.Unlock()

	for _, data := range pending {
		if err := client.Send(data); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	}
	return nil
}

func (m *Manager) updateRegistryMetricsLocked() {
	consumers := 0
	for _, e := range m.topics {
		consumers += len(e.consumers)
	}
	m.metrics.SetRegistry(len(m.topics), consumers)
}

// setState moves the supervisor of epoch to s. It reports false when the
// supervisor has been superseded and must exit.
func (m *Manager) setState(epoch uint64, s State) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.state = s
	if s != StateConnected {
		m.dropOutboxLocked(epoch)
		m.client = nil
		clear(m.bySubID)
		for _, e := range m.topics {
			e.subID = ""
		}
	}
	m.mu.Unlock()

	m.emitState()
	return true
}

// emitState notifies listeners when the state differs from the last one
// they saw.
func (m *Manager) emitState() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()

	s := m.State()
	if s == m.lastEmitted {
		return
	}
	m.lastEmitted = s
	m.metrics.ConnectionState.Set(float64(s))

	for _, id := range slices.Sorted(maps.Keys(m.listeners)) {
		m.listeners[id](s)
	}
}

// run supervises sessions for one active period until ctx is cancelled.
func (m *Manager) run(ctx context.Context, epoch uint64) {
	logger := m.logger.With("epoch", epoch)
	defer func() {
		m.mu.Lock()
		m.dropOutboxLocked(epoch)
		m.mu.Unlock()
	}()

	for {
		err := m.session(ctx, epoch, logger)
		if ctx.Err() != nil {
			return
		}

		m.sessionEnded(epoch, err, logger)

		if !m.setState(epoch, StateReconnecting) {
			return
		}
		m.reconnects.Add(1)
		m.metrics.Reconnects.Inc()

		logger.Info("reconnecting", "delay", m.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.ReconnectDelay):
		}

		if !m.setState(epoch, StateConnecting) {
			return
		}
	}
}

// sessionEnded logs why a session ended and surfaces reportable failures.
func (m *Manager) sessionEnded(epoch uint64, err error, logger *slog.Logger) {
	var ce *closeError
	if err == nil || errors.As(err, &ce) {
		logger.Info("connection closed", "reason", err)
		return
	}

	logger.Warn("connection failed", "error", err)
	m.reportError(epoch, err)
}

// reportError hands err to every consumer's error handler.
func (m *Manager) reportError(epoch uint64, err error) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	var handlers []ErrorHandler
	for _, key := range slices.Sorted(maps.Keys(m.topics)) {
		for _, c := range m.topics[key].consumers {
			if c.onError != nil {
				handlers = append(handlers, c.onError)
			}
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}

func (m *Manager) clientConfig() ClientConfig {
	header := m.header.Clone()
	header.Set("User-Agent", version.UserAgent())

	return ClientConfig{
		URL:                m.cfg.URL,
		Header:             header,
		Subprotocols:       stomp.Subprotocols,
		HandshakeTimeout:   m.cfg.ConnectTimeout,
		WriteTimeout:       m.cfg.WriteTimeout,
		HeartbeatTolerance: m.cfg.HeartbeatTolerance,
		BufferSize:         m.cfg.BufferSize,
	}
}

// session runs one connection from dial to close. It returns the reason the
// session ended.
func (m *Manager) session(ctx context.Context, epoch uint64, logger *slog.Logger) error {
	client := m.newClient(m.clientConfig(), logger)
	defer client.Close()

	handshakeCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := client.Connect(handshakeCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "dial", Err: err}
	}

	local := stomp.Heartbeat{Send: m.cfg.HeartbeatOutgoing, Receive: m.cfg.HeartbeatIncoming}
	if err := client.Send(stomp.MustEncode(stomp.Connect(m.cfg.Host, local))); err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	connected, err := awaitConnected(ctx, handshakeCtx, client)
	if err != nil {
		return err
	}

	remote, err := stomp.ParseHeartbeat(connected.Header.Get(stomp.HeaderHeartBeat))
	if err != nil {
		logger.Warn("ignoring heart-beat header", "error", err)
	}
	send, expect := stomp.Negotiate(local, remote)
	client.StartHeartbeat(send, expect)

	kick, ok := m.activate(epoch, client)
	if !ok {
		client.Send(stomp.MustEncode(stomp.Disconnect()))
		return ctx.Err()
	}
	if err := m.flush(epoch, client); err != nil {
		return err
	}
	m.sessions.Add(1)
	m.metrics.Sessions.Inc()
	m.emitState()

	logger.Info("connected",
		"url", m.cfg.URL,
		"version", connected.Header.Get(stomp.HeaderVersion),
		"heartbeat_send", send,
		"heartbeat_expect", expect,
	)

	return m.readLoop(ctx, epoch, client, kick)
}

// awaitConnected waits for the broker's CONNECTED frame.
func awaitConnected(ctx, handshakeCtx context.Context, client Client) (*frame.Frame, error) {
	for {
		select {
		case <-handshakeCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TransportError{Op: "handshake", Err: ErrTimeout}

		case err := <-client.Errors():
			return nil, classify("handshake", err)

		case msg := <-client.Messages():
			frames, err := stomp.Decode(msg.Data)
			if err != nil {
				return nil, &ProtocolError{Err: err}
			}
			for _, f := range frames {
				switch f.Command {
				case frame.CONNECTED:
					return f, nil
				case frame.ERROR:
					return nil, errorFrame(f)
				}
			}
		}
	}
}

// activate marks the session connected and queues a SUBSCRIBE for every
// registered topic with fresh subscription ids. It returns the channel that
// signals newly queued frames for this session.
func (m *Manager) activate(epoch uint64, client Client) (chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return nil, false
	}

	m.state = StateConnected
	m.client = client
	m.kick = make(chan struct{}, 1)
	clear(m.bySubID)
	m.dropOutboxLocked(epoch)

	for _, key := range slices.Sorted(maps.Keys(m.topics)) {
		entry := m.topics[key]
		entry.seen.Reset()
		m.subscribeLocked(entry)
	}
	return m.kick, true
}

// readLoop processes inbound messages until the session ends.
func (m *Manager) readLoop(ctx context.Context, epoch uint64, client Client, kick <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			// UNSUBSCRIBEs queued by the release that tore the session down
			if err := m.flush(epoch, client); err != nil {
				m.logger.Debug("failed to flush before DISCONNECT", "error", err)
			}
			if err := client.Send(stomp.MustEncode(stomp.Disconnect())); err != nil {
				m.logger.Debug("failed to send DISCONNECT", "error", err)
			}
			return ctx.Err()

		case err := <-client.Errors():
			// Deliver what was read before the failure
			for {
				select {
				case msg := <-client.Messages():
					if perr := m.handleMessage(epoch, msg); perr != nil {
						return perr
					}
				default:
					return classify("read", err)
				}
			}

		case <-kick:
			if err := m.flush(epoch, client); err != nil {
				return err
			}

		case msg := <-client.Messages():
			if err := m.handleMessage(epoch, msg); err != nil {
				return err
			}
		}
	}
}

// handleMessage decodes one WebSocket message and dispatches its frames. A
// non-nil error ends the session.
func (m *Manager) handleMessage(epoch uint64, msg TimestampedMessage) error {
	frames, err := stomp.Decode(msg.Data)
	for _, f := range frames {
		m.metrics.FramesReceived.WithLabelValues(f.Command).Inc()

		switch f.Command {
		case frame.MESSAGE:
			m.dispatch(epoch, f, msg.ReceivedAt)
		case frame.ERROR:
			return errorFrame(f)
		default:
			m.logger.Debug("ignoring frame", "command", f.Command)
		}
	}
	if err != nil {
		return &ProtocolError{Err: err}
	}
	return nil
}

// dispatch parses a MESSAGE frame and delivers it to every consumer of its
// topic, in registration order.
func (m *Manager) dispatch(epoch uint64, f *frame.Frame, receivedAt time.Time) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	subID := f.Header.Get(stomp.HeaderSubscription)
	msgID := f.Header.Get(stomp.HeaderMessageID)

	m.mu.Lock()
	if m.epoch != epoch || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	entry := m.routeLocked(subID, f.Header.Get(stomp.HeaderDestination))
	if entry == nil {
		m.mu.Unlock()
		m.logger.Debug("dropping message for unknown subscription",
			"sub_id", subID,
			"destination", f.Header.Get(stomp.HeaderDestination),
		)
		return
	}
	if msgID != "" && entry.seen.Seen(msgID) {
		m.mu.Unlock()
		m.duplicatesDropped.Add(1)
		m.metrics.DuplicatesDropped.Inc()
		m.logger.Debug("dropping duplicate message", "topic", entry.key, "message_id", msgID)
		return
	}
	topic := entry.key
	handlers := make([]UpdateHandler, 0, len(entry.consumers))
	for _, c := range entry.consumers {
		handlers = append(handlers, c.onUpdate)
	}
	m.mu.Unlock()

	ev, err := update.Parse(topic, f.Body, receivedAt)
	if err != nil {
		perr := &ParseError{Topic: topic, MessageID: msgID, Err: err}
		m.parseErrors.Add(1)
		m.metrics.ParseErrors.Inc()
		m.logger.Warn("discarding update", "topic", topic, "error", perr)
		return
	}

	for _, h := range handlers {
		h(ev)
	}
	m.delivered.Add(int64(len(handlers)))
	m.metrics.UpdatesDelivered.WithLabelValues(string(ev.Type())).Add(float64(len(handlers)))
}

// routeLocked finds the topic of a MESSAGE by its subscription header, or by
// destination when the broker omits it.
func (m *Manager) routeLocked(subID, destination string) *topicEntry {
	if subID != "" {
		key, ok := m.bySubID[subID]
		if !ok {
			return nil
		}
		return m.topics[key]
	}

	key, ok := strings.CutPrefix(destination, m.cfg.TopicPrefix)
	if !ok {
		return nil
	}
	entry := m.topics[key]
	if entry == nil || entry.subID == "" {
		return nil
	}
	return entry
}

func errorFrame(f *frame.Frame) *ProtocolError {
	return &ProtocolError{
		Message: f.Header.Get(stomp.HeaderMessage),
		Detail:  strings.TrimSpace(string(f.Body)),
	}
}

// classify maps a socket error to the session end reason. Closes and
// heart-beat timeouts reconnect silently.
func classify(op string, err error) error {
	var wsClose *websocket.CloseError
	if errors.As(err, &wsClose) || errors.Is(err, io.EOF) || errors.Is(err, ErrStaleConnection) {
		return &closeError{err: err}
	}
	return &TransportError{Op: op, Err: err}
}
