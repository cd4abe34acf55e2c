package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rickgao/facility-live/internal/update"
)

// printer writes one line per event.
type printer struct {
	w       io.Writer
	enc     *json.Encoder
	jsonOut bool
}

func newPrinter(w io.Writer, jsonOut bool) *printer {
	return &printer{w: w, enc: json.NewEncoder(w), jsonOut: jsonOut}
}

// jsonLine is the --json output record.
type jsonLine struct {
	Topic      string       `json:"topic"`
	ReceivedAt time.Time    `json:"received_at"`
	Update     update.Event `json:"update"`
}

func (p *printer) Print(ev update.Event) error {
	if p.jsonOut {
		return p.enc.Encode(jsonLine{Topic: ev.TopicKey, ReceivedAt: ev.ReceivedAt, Update: ev})
	}
	_, err := fmt.Fprintln(p.w, formatEvent(ev))
	return err
}

// formatEvent renders ev as a single human-readable line.
func formatEvent(ev update.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-8s %-16s", ev.ReceivedAt.Format("15:04:05.000"), ev.TopicKey, ev.Type())

	switch p := ev.Payload.(type) {
	case update.CounterUpdate:
		b.WriteString(" ")
		b.WriteString(formatCounters(p.Counters))
	case update.OccupancyUpdate:
		b.WriteString(" ")
		b.WriteString(formatOccupancy(p.Occupancy))
	case update.FullUpdate:
		if p.Occupancy != nil {
			b.WriteString(" ")
			b.WriteString(formatOccupancy(*p.Occupancy))
		}
		b.WriteString(" ")
		b.WriteString(formatCounters(p.Counters))
	}

	return b.String()
}

func formatOccupancy(o update.OccupancyStatus) string {
	s := fmt.Sprintf("occupancy=%d/%d", o.CurrentOccupancy, o.MaxCapacity)
	if o.OccupancyPercentage > 0 {
		s += fmt.Sprintf(" (%.0f%%)", o.OccupancyPercentage)
	}
	if o.CongestionLevel != "" {
		s += " " + o.CongestionLevel
	}
	return s
}

func formatCounters(counters []update.CounterStatus) string {
	if len(counters) == 0 {
		return "counters=[]"
	}
	parts := make([]string, 0, len(counters))
	for _, c := range counters {
		name := c.CounterName
		if name == "" {
			name = string(c.CounterID)
		}
		parts = append(parts, fmt.Sprintf("%s:%s q=%d wait=%.1fm", name, c.Status, c.QueueLength, c.WaitTimeMinutes))
	}
	return "counters=[" + strings.Join(parts, ", ") + "]"
}
