package subscription

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/facility-live/internal/connection"
	"github.com/rickgao/facility-live/internal/update"
)

// Binding is one consumer's live-update subscription.
//
// The handler sits behind an atomic cell, so SetHandler takes effect for the
// next delivered event without touching the transport. Handlers run on the
// manager's session goroutine and must not call Bind or Unbind.
type Binding struct {
	mgr    *connection.Manager
	logger *slog.Logger

	handler atomic.Pointer[connection.UpdateHandler]

	// lifecycleMu serializes Bind and Unbind. mu guards the fields below
	// and is never held while calling into the manager.
	lifecycleMu sync.Mutex
	mu          sync.Mutex
	topic       string
	sub         *connection.Subscription
	unwatch     func()
	connected   bool
	err         error
}

// New creates an unbound Binding on mgr.
func New(mgr *connection.Manager, logger *slog.Logger) *Binding {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binding{mgr: mgr, logger: logger}
}

// Bind subscribes to topicKey with handler. Binding the current topic again
// only replaces the handler. An empty topic key releases any previous
// binding and makes no connection attempt.
func (b *Binding) Bind(topicKey string, handler connection.UpdateHandler) error {
	if handler == nil {
		return connection.ErrNilHandler
	}

	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.SetHandler(handler)

	b.mu.Lock()
	same := b.sub != nil && b.topic == topicKey
	b.mu.Unlock()
	if same {
		return nil
	}

	b.unbind()

	unwatch := b.mgr.Watch(b.onState)
	sub, err := b.mgr.Connect(topicKey, b.deliver, b.onError)
	if err != nil {
		unwatch()
		b.logger.Warn("not binding", "topic", topicKey, "error", err)
		return err
	}

	b.mu.Lock()
	b.topic = topicKey
	b.sub = sub
	b.unwatch = unwatch
	b.mu.Unlock()

	b.logger.Debug("bound", "topic", topicKey)
	return nil
}

// SetHandler replaces the handler without resubscribing. A nil handler
// drops events until the next SetHandler or Bind.
func (b *Binding) SetHandler(handler connection.UpdateHandler) {
	if handler == nil {
		b.handler.Store(nil)
		return
	}
	b.handler.Store(&handler)
}

// Unbind releases the subscription. It is safe to call when never bound, when
// already unbound, and before the connection handshake completes.
func (b *Binding) Unbind() {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.unbind()
}

func (b *Binding) unbind() {
	b.mu.Lock()
	sub, unwatch, topic := b.sub, b.unwatch, b.topic
	b.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if sub != nil {
		sub.Release()
		b.logger.Debug("unbound", "topic", topic)
	}

	b.mu.Lock()
	b.topic = ""
	b.sub = nil
	b.unwatch = nil
	b.connected = false
	b.err = nil
	b.mu.Unlock()
}

// Topic returns the bound topic key, or "" when unbound.
func (b *Binding) Topic() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topic
}

// Connected reports whether the manager is connected while bound.
func (b *Binding) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Err returns the last transport or protocol error reported since the last
// successful connection.
func (b *Binding) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Binding) deliver(ev update.Event) {
	if h := b.handler.Load(); h != nil {
		(*h)(ev)
	}
}

func (b *Binding) onError(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *Binding) onState(s connection.State) {
	b.mu.Lock()
	b.connected = s == connection.StateConnected
	if b.connected {
		b.err = nil
	}
	b.mu.Unlock()
}
