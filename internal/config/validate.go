package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Endpoint.URL == "" {
		return errors.New("endpoint.url is required")
	}
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil {
		return fmt.Errorf("endpoint.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if !strings.HasPrefix(c.Endpoint.TopicPrefix, "/") {
		return fmt.Errorf("endpoint.topic_prefix must start with /, got %q", c.Endpoint.TopicPrefix)
	}

	conn := c.Connection
	if conn.ReconnectDelay <= 0 {
		return errors.New("connection.reconnect_delay must be > 0")
	}
	if conn.HeartbeatTolerance < 1 {
		return errors.New("connection.heartbeat_tolerance must be >= 1")
	}
	if conn.ConnectTimeout <= 0 {
		return errors.New("connection.connect_timeout must be > 0")
	}
	if conn.WriteTimeout <= 0 {
		return errors.New("connection.write_timeout must be > 0")
	}
	if conn.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}
	if conn.DedupWindow < -1 {
		return errors.New("connection.dedup_window must be >= -1")
	}

	if c.Status.Addr != "" && !strings.HasPrefix(c.Status.MetricsPath, "/") {
		return fmt.Errorf("status.metrics_path must start with /, got %q", c.Status.MetricsPath)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	for i, topic := range c.Topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("topics[%d] must not be empty", i)
		}
	}

	return nil
}
