package update

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateType tags the payload variant.
type UpdateType string

const (
	TypeCounterUpdate   UpdateType = "counter_update"
	TypeOccupancyUpdate UpdateType = "occupancy_update"
	TypeFullUpdate      UpdateType = "full_update"
)

// Known reports whether t is one of the three payload variants.
func (t UpdateType) Known() bool {
	switch t {
	case TypeCounterUpdate, TypeOccupancyUpdate, TypeFullUpdate:
		return true
	}
	return false
}

// CounterID identifies a serving counter. The backend may send it as a JSON
// string or a number; numbers are kept as their literal text.
type CounterID string

func (id *CounterID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = CounterID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("counterId must be a string or number: %w", err)
	}
	*id = CounterID(n.String())
	return nil
}

// CounterStatus is the queue state of one serving counter.
type CounterStatus struct {
	CounterID       CounterID `json:"counterId"`
	CounterName     string    `json:"counterName"`
	QueueLength     int       `json:"queueLength"`
	WaitTimeMinutes float64   `json:"waitTimeMinutes"`
	Status          string    `json:"status"` // e.g. "OPEN", "CLOSED", "BUSY"
	LastUpdated     string    `json:"lastUpdated,omitempty"`
}

// OccupancyStatus is the seating occupancy of a facility.
type OccupancyStatus struct {
	CurrentOccupancy    int     `json:"currentOccupancy"`
	MaxCapacity         int     `json:"maxCapacity"`
	OccupancyPercentage float64 `json:"occupancyPercentage"`
	CongestionLevel     string  `json:"congestionLevel"` // e.g. "LOW", "MEDIUM", "HIGH"
	LastUpdated         string  `json:"lastUpdated,omitempty"`
}

// Payload is the closed set of update bodies: CounterUpdate,
// OccupancyUpdate and FullUpdate.
type Payload interface {
	Type() UpdateType
	isPayload()
}

// CounterUpdate carries the counters that changed. Occupancy is whatever
// reading the backend attached, nil when it sent null.
type CounterUpdate struct {
	Counters  []CounterStatus
	Occupancy *OccupancyStatus
}

// OccupancyUpdate carries a new occupancy reading, plus any counters the
// backend sent alongside it.
type OccupancyUpdate struct {
	Occupancy OccupancyStatus
	Counters  []CounterStatus
}

// FullUpdate carries the complete facility state. Occupancy is nil when the
// backend has no reading.
type FullUpdate struct {
	Counters  []CounterStatus
	Occupancy *OccupancyStatus
}

func (CounterUpdate) Type() UpdateType   { return TypeCounterUpdate }
func (OccupancyUpdate) Type() UpdateType { return TypeOccupancyUpdate }
func (FullUpdate) Type() UpdateType      { return TypeFullUpdate }

func (CounterUpdate) isPayload()   {}
func (OccupancyUpdate) isPayload() {}
func (FullUpdate) isPayload()      {}

// Event is one update delivered to consumers of a topic.
type Event struct {
	TopicKey      string    // Logical stream, e.g. a facility code
	CafeteriaCode string    // Facility code as reported by the backend
	Payload       Payload   // Never nil for events returned by Parse
	Timestamp     string    // Server timestamp, as sent
	ReceivedAt    time.Time // Local receive time, used for staleness

	// Body is the original JSON document, kept so fields this client does
	// not model are still available to consumers.
	Body json.RawMessage
}

// Type returns the payload tag.
func (e Event) Type() UpdateType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

// Age returns how long ago the event was received.
func (e Event) Age(now time.Time) time.Duration {
	return now.Sub(e.ReceivedAt)
}

// Stale reports whether the event is older than maxAge.
func (e Event) Stale(now time.Time, maxAge time.Duration) bool {
	return e.Age(now) > maxAge
}

// serverTimeLayouts covers RFC 3339 and zone-less local date-times.
var serverTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// EventTime parses the server timestamp. Zone-less values are read as UTC.
// The result is informational only; ordering and staleness use ReceivedAt.
func (e Event) EventTime() (time.Time, bool) {
	for _, layout := range serverTimeLayouts {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
