package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultURL                = "ws://localhost:8080/ws-cafeteria/websocket"
	DefaultTopicPrefix        = "/topic/"
	DefaultReconnectDelay     = 5 * time.Second
	DefaultHeartbeatOutgoing  = 4 * time.Second
	DefaultHeartbeatIncoming  = 4 * time.Second
	DefaultHeartbeatTolerance = 2
	DefaultConnectTimeout     = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 256
	DefaultDedupWindow        = 128
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Default returns a config with every default applied.
func Default() *ClientConfig {
	cfg := &ClientConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *ClientConfig) ApplyDefaults() {
	if c.Endpoint.URL == "" {
		c.Endpoint.URL = DefaultURL
	}
	if c.Endpoint.TopicPrefix == "" {
		c.Endpoint.TopicPrefix = DefaultTopicPrefix
	}

	if c.Connection.ReconnectDelay == 0 {
		c.Connection.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Connection.HeartbeatOutgoing == 0 {
		c.Connection.HeartbeatOutgoing = DefaultHeartbeatOutgoing
	}
	if c.Connection.HeartbeatIncoming == 0 {
		c.Connection.HeartbeatIncoming = DefaultHeartbeatIncoming
	}
	if c.Connection.HeartbeatTolerance == 0 {
		c.Connection.HeartbeatTolerance = DefaultHeartbeatTolerance
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}
	if c.Connection.DedupWindow == 0 {
		c.Connection.DedupWindow = DefaultDedupWindow
	}

	if c.Status.MetricsPath == "" {
		c.Status.MetricsPath = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
