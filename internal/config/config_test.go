package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
endpoint:
  url: ws://facilities.internal:8080/ws-cafeteria/websocket
  topic_prefix: /topic/
connection:
  reconnect_delay: 3s
  heartbeat_outgoing: 2s
topics:
  - CAF-01
  - CAF-02
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint.URL != "ws://facilities.internal:8080/ws-cafeteria/websocket" {
		t.Errorf("Endpoint.URL = %q", cfg.Endpoint.URL)
	}
	if cfg.Connection.ReconnectDelay != 3*time.Second {
		t.Errorf("Connection.ReconnectDelay = %v, want 3s", cfg.Connection.ReconnectDelay)
	}
	if cfg.Connection.HeartbeatOutgoing != 2*time.Second {
		t.Errorf("Connection.HeartbeatOutgoing = %v, want 2s", cfg.Connection.HeartbeatOutgoing)
	}
	if len(cfg.Topics) != 2 || cfg.Topics[0] != "CAF-01" {
		t.Errorf("Topics = %v, want [CAF-01 CAF-02]", cfg.Topics)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_LIVE_HOST", "10.0.0.7:9000")

	yaml := `
endpoint:
  url: ws://${TEST_LIVE_HOST}/ws-cafeteria/websocket
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint.URL != "ws://10.0.0.7:9000/ws-cafeteria/websocket" {
		t.Errorf("Endpoint.URL = %q, want expanded host", cfg.Endpoint.URL)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "topics: [CAF-01]\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Endpoint.URL != DefaultURL {
		t.Errorf("Endpoint.URL = %q, want default %q", cfg.Endpoint.URL, DefaultURL)
	}
	if cfg.Connection.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want default %v", cfg.Connection.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.Connection.HeartbeatOutgoing != 4*time.Second || cfg.Connection.HeartbeatIncoming != 4*time.Second {
		t.Errorf("heartbeat = %v/%v, want 4s/4s", cfg.Connection.HeartbeatOutgoing, cfg.Connection.HeartbeatIncoming)
	}
	if cfg.Connection.HeartbeatTolerance != DefaultHeartbeatTolerance {
		t.Errorf("HeartbeatTolerance = %d, want %d", cfg.Connection.HeartbeatTolerance, DefaultHeartbeatTolerance)
	}
	if cfg.Status.MetricsPath != DefaultMetricsPath {
		t.Errorf("MetricsPath = %q, want %q", cfg.Status.MetricsPath, DefaultMetricsPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(c *ClientConfig) { c.Endpoint.URL = "" },
			wantErr: "endpoint.url is required",
		},
		{
			name:    "http scheme",
			mutate:  func(c *ClientConfig) { c.Endpoint.URL = "http://localhost/ws" },
			wantErr: `endpoint.url scheme must be ws or wss, got "http"`,
		},
		{
			name:    "relative topic prefix",
			mutate:  func(c *ClientConfig) { c.Endpoint.TopicPrefix = "topic/" },
			wantErr: `endpoint.topic_prefix must start with /, got "topic/"`,
		},
		{
			name:    "negative reconnect delay",
			mutate:  func(c *ClientConfig) { c.Connection.ReconnectDelay = -time.Second },
			wantErr: "connection.reconnect_delay must be > 0",
		},
		{
			name:    "zero tolerance",
			mutate:  func(c *ClientConfig) { c.Connection.HeartbeatTolerance = -1 },
			wantErr: "connection.heartbeat_tolerance must be >= 1",
		},
		{
			name:    "bad log level",
			mutate:  func(c *ClientConfig) { c.Log.Level = "verbose" },
			wantErr: `log.level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name:    "blank topic",
			mutate:  func(c *ClientConfig) { c.Topics = []string{"CAF-01", " "} },
			wantErr: "topics[1] must not be empty",
		},
		{
			name:    "dedup disabled",
			mutate:  func(c *ClientConfig) { c.Connection.DedupWindow = -1 },
			wantErr: "",
		},
		{
			name:    "valid config",
			mutate:  func(c *ClientConfig) { c.Topics = []string{"CAF-01"} },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
