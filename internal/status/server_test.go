package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/facility-live/internal/connection"
	"github.com/rickgao/facility-live/internal/metrics"
)

type fakeStats struct {
	stats connection.ManagerStats
}

func (f *fakeStats) Stats() connection.ManagerStats { return f.stats }

func TestHealth(t *testing.T) {
	tests := []struct {
		state      connection.State
		wantCode   int
		wantStatus string
	}{
		{connection.StateConnected, http.StatusOK, "healthy"},
		{connection.StateReconnecting, http.StatusServiceUnavailable, "degraded"},
		{connection.StateConnecting, http.StatusServiceUnavailable, "degraded"},
		{connection.StateDisconnected, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			src := &fakeStats{stats: connection.ManagerStats{State: tt.state}}
			srv := httptest.NewServer(NewServer(":0", "", src, nil, nil).Handler())
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/healthz")
			if err != nil {
				t.Fatalf("GET /healthz failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.wantCode)
			}

			var body struct {
				Status string `json:"status"`
				State  string `json:"state"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.State != tt.state.String() {
				t.Errorf("state = %q, want %q", body.State, tt.state)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	src := &fakeStats{stats: connection.ManagerStats{
		State:      connection.StateConnected,
		Topics:     []string{"CAF-01", "CAF-02"},
		Consumers:  3,
		Sessions:   2,
		Reconnects: 1,
		Delivered:  42,
	}}
	srv := httptest.NewServer(NewServer(":0", "", src, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Version struct {
			Version string `json:"version"`
		} `json:"version"`
		Connection struct {
			State     string   `json:"state"`
			Topics    []string `json:"topics"`
			Consumers int      `json:"consumers"`
			Delivered int64    `json:"delivered"`
		} `json:"connection"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Version.Version == "" {
		t.Error("version missing")
	}
	if body.Connection.State != "connected" || body.Connection.Consumers != 3 || body.Connection.Delivered != 42 {
		t.Errorf("connection = %+v", body.Connection)
	}
	if len(body.Connection.Topics) != 2 {
		t.Errorf("topics = %v", body.Connection.Topics)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Reconnects.Inc()

	src := &fakeStats{}
	srv := httptest.NewServer(NewServer(":0", "/internal/metrics", src, reg, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/internal/metrics")
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if !strings.Contains(string(data), "facility_live_reconnects_total 1") {
		t.Errorf("metrics output missing reconnects counter:\n%s", data)
	}

	notFound, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	notFound.Body.Close()
	if notFound.StatusCode != http.StatusNotFound {
		t.Errorf("default path status = %d, want 404", notFound.StatusCode)
	}
}
