package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/facility-live/internal/update"
)

var receivedAt = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   update.Event
		want []string
	}{
		{
			name: "counter update",
			ev: update.Event{
				TopicKey: "CAF-01",
				Payload: update.CounterUpdate{Counters: []update.CounterStatus{
					{CounterID: "c1", CounterName: "Korean", QueueLength: 4, WaitTimeMinutes: 2.5, Status: "OPEN"},
					{CounterID: "c2", QueueLength: 0, Status: "CLOSED"},
				}},
			},
			want: []string{"10:30:00.000", "CAF-01", "counter_update", "Korean:OPEN q=4 wait=2.5m", "c2:CLOSED q=0"},
		},
		{
			name: "occupancy update",
			ev: update.Event{
				TopicKey: "CAF-02",
				Payload: update.OccupancyUpdate{Occupancy: update.OccupancyStatus{
					CurrentOccupancy: 42, MaxCapacity: 120, OccupancyPercentage: 35, CongestionLevel: "LOW",
				}},
			},
			want: []string{"occupancy_update", "occupancy=42/120 (35%) LOW"},
		},
		{
			name: "full update without occupancy",
			ev: update.Event{
				TopicKey: "CAF-03",
				Payload:  update.FullUpdate{},
			},
			want: []string{"full_update", "counters=[]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ev.ReceivedAt = receivedAt
			got := formatEvent(tt.ev)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("formatEvent() = %q, missing %q", got, w)
				}
			}
			if strings.Contains(got, "\n") {
				t.Errorf("formatEvent() = %q, want a single line", got)
			}
		})
	}
}

func TestPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, true)

	ev := update.Event{
		TopicKey:      "CAF-01",
		CafeteriaCode: "CAF-01",
		Timestamp:     "2024-01-15T10:30:00",
		ReceivedAt:    receivedAt,
		Payload:       update.OccupancyUpdate{Occupancy: update.OccupancyStatus{CurrentOccupancy: 5, MaxCapacity: 10}},
	}
	if err := p.Print(ev); err != nil {
		t.Fatalf("Print failed: %v", err)
	}

	var got struct {
		Topic  string `json:"topic"`
		Update struct {
			UpdateType      string `json:"updateType"`
			OccupancyStatus struct {
				CurrentOccupancy int `json:"currentOccupancy"`
			} `json:"occupancyStatus"`
		} `json:"update"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if got.Topic != "CAF-01" || got.Update.UpdateType != "occupancy_update" || got.Update.OccupancyStatus.CurrentOccupancy != 5 {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(options{url: "ws://example.test/ws", topics: []string{"CAF-01"}, verbose: true})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Endpoint.URL != "ws://example.test/ws" {
		t.Errorf("URL = %q", cfg.Endpoint.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Connection.BufferSize <= 0 {
		t.Errorf("BufferSize = %d, want default applied", cfg.Connection.BufferSize)
	}

	if _, err := loadConfig(options{}); err == nil {
		t.Error("expected error without topics")
	}
}
