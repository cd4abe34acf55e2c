package connection

import (
	"net/http"
	"time"

	"github.com/rickgao/facility-live/internal/config"
	"github.com/rickgao/facility-live/internal/update"
)

// UpdateHandler receives parsed update events. It runs on the manager's
// session goroutine and must not call Release or Disconnect synchronously.
type UpdateHandler func(update.Event)

// ErrorHandler receives transport and protocol errors.
type ErrorHandler func(error)

// State is the lifecycle state of the manager's connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL                string        // WebSocket URL (e.g., ws://localhost:8080/ws-cafeteria/websocket)
	Header             http.Header   // Extra headers on the upgrade request
	Subprotocols       []string      // Requested WebSocket subprotocols
	HandshakeTimeout   time.Duration // WebSocket upgrade timeout
	WriteTimeout       time.Duration // Write deadline for sends
	HeartbeatTolerance int           // Missed expected intervals before the link is stale
	BufferSize         int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       5 * time.Second,
		HeartbeatTolerance: 2,
		BufferSize:         256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                string        // Streaming endpoint
	Host               string        // STOMP host header (empty = omitted)
	TopicPrefix        string        // Destination prefix for topic keys
	ReconnectDelay     time.Duration // Fixed wait between reconnection attempts
	HeartbeatOutgoing  time.Duration // Client heart-beat offer (<= 0 disables)
	HeartbeatIncoming  time.Duration // Broker heart-beat request (<= 0 disables)
	HeartbeatTolerance int           // Missed intervals before the link is stale
	ConnectTimeout     time.Duration // Dial plus STOMP handshake deadline
	WriteTimeout       time.Duration // Write deadline for sends
	BufferSize         int           // Inbound message buffer
	DedupWindow        int           // Remembered message ids per topic (<1 disables)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		URL:                config.DefaultURL,
		TopicPrefix:        config.DefaultTopicPrefix,
		ReconnectDelay:     config.DefaultReconnectDelay,
		HeartbeatOutgoing:  config.DefaultHeartbeatOutgoing,
		HeartbeatIncoming:  config.DefaultHeartbeatIncoming,
		HeartbeatTolerance: config.DefaultHeartbeatTolerance,
		ConnectTimeout:     config.DefaultConnectTimeout,
		WriteTimeout:       config.DefaultWriteTimeout,
		BufferSize:         config.DefaultBufferSize,
		DedupWindow:        config.DefaultDedupWindow,
	}
}

// ManagerConfigFrom maps the file configuration onto a ManagerConfig.
func ManagerConfigFrom(cfg *config.ClientConfig) ManagerConfig {
	return ManagerConfig{
		URL:                cfg.Endpoint.URL,
		Host:               cfg.Endpoint.Host,
		TopicPrefix:        cfg.Endpoint.TopicPrefix,
		ReconnectDelay:     cfg.Connection.ReconnectDelay,
		HeartbeatOutgoing:  cfg.Connection.HeartbeatOutgoing,
		HeartbeatIncoming:  cfg.Connection.HeartbeatIncoming,
		HeartbeatTolerance: cfg.Connection.HeartbeatTolerance,
		ConnectTimeout:     cfg.Connection.ConnectTimeout,
		WriteTimeout:       cfg.Connection.WriteTimeout,
		BufferSize:         cfg.Connection.BufferSize,
		DedupWindow:        cfg.Connection.DedupWindow,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State             State    `json:"state"`
	Topics            []string `json:"topics"` // Topics with at least one consumer, sorted
	Consumers         int      `json:"consumers"`
	Sessions          int64    `json:"sessions"` // Completed STOMP handshakes
	Reconnects        int64    `json:"reconnects"`
	Delivered         int64    `json:"delivered"` // Events handed to consumers (counted once per consumer)
	ParseErrors       int64    `json:"parse_errors"`
	DuplicatesDropped int64    `json:"duplicates_dropped"`
}
