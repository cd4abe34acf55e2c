package config

import "time"

// ClientConfig is the root configuration for a live-update client process.
type ClientConfig struct {
	Endpoint   EndpointConfig   `yaml:"endpoint"`
	Connection ConnectionConfig `yaml:"connection"`
	Status     StatusConfig     `yaml:"status"`
	Log        LogConfig        `yaml:"log"`
	Topics     []string         `yaml:"topics"` // Facility codes to bind at startup (livetail)
}

// EndpointConfig locates the streaming backend.
type EndpointConfig struct {
	URL         string `yaml:"url"`          // e.g. ws://localhost:8080/ws-cafeteria/websocket
	Host        string `yaml:"host"`         // STOMP virtual host header (empty = URL host)
	TopicPrefix string `yaml:"topic_prefix"` // Destination prefix, "/topic/" by default
}

// ConnectionConfig holds reconnect and keep-alive settings.
type ConnectionConfig struct {
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	HeartbeatOutgoing  time.Duration `yaml:"heartbeat_outgoing"` // Negative disables
	HeartbeatIncoming  time.Duration `yaml:"heartbeat_incoming"` // Negative disables
	HeartbeatTolerance int           `yaml:"heartbeat_tolerance"` // Missed intervals before the link is stale
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`  // Inbound message channel size
	DedupWindow        int           `yaml:"dedup_window"` // Remembered message ids per topic, -1 disables
}

// StatusConfig holds the HTTP status surface settings.
type StatusConfig struct {
	Addr        string `yaml:"addr"` // Empty disables the server
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
