package update

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Parse errors. Every error returned by Parse wraps one of these.
var (
	ErrMalformedBody     = errors.New("malformed update body")
	ErrUnknownUpdateType = errors.New("unknown update type")
	ErrSchemaViolation   = errors.New("update schema violation")
)

// wireUpdate is the wire format of an update document.
type wireUpdate struct {
	CafeteriaCode   string           `json:"cafeteriaCode"`
	Counters        []CounterStatus  `json:"counters"`
	OccupancyStatus *OccupancyStatus `json:"occupancyStatus"`
	Timestamp       string           `json:"timestamp"`
	UpdateType      UpdateType       `json:"updateType"`
}

// Parse decodes a MESSAGE body received on topicKey into an Event.
func Parse(topicKey string, body []byte, receivedAt time.Time) (Event, error) {
	var wire wireUpdate
	if err := json.Unmarshal(body, &wire); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	var payload Payload
	switch wire.UpdateType {
	case TypeCounterUpdate:
		payload = CounterUpdate{Counters: wire.Counters, Occupancy: wire.OccupancyStatus}

	case TypeOccupancyUpdate:
		if wire.OccupancyStatus == nil {
			return Event{}, fmt.Errorf("%w: occupancy_update without occupancyStatus", ErrSchemaViolation)
		}
		payload = OccupancyUpdate{Occupancy: *wire.OccupancyStatus, Counters: wire.Counters}

	case TypeFullUpdate:
		payload = FullUpdate{Counters: wire.Counters, Occupancy: wire.OccupancyStatus}

	case "":
		return Event{}, fmt.Errorf("%w: missing updateType", ErrSchemaViolation)

	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownUpdateType, wire.UpdateType)
	}

	return Event{
		TopicKey:      topicKey,
		CafeteriaCode: wire.CafeteriaCode,
		Payload:       payload,
		Timestamp:     wire.Timestamp,
		ReceivedAt:    receivedAt,
		Body:          append(json.RawMessage(nil), body...),
	}, nil
}

// MarshalJSON writes the event in the backend wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	wire := wireUpdate{
		CafeteriaCode: e.CafeteriaCode,
		Timestamp:     e.Timestamp,
		UpdateType:    e.Type(),
	}

	switch p := e.Payload.(type) {
	case CounterUpdate:
		wire.Counters = p.Counters
		wire.OccupancyStatus = p.Occupancy
	case OccupancyUpdate:
		occ := p.Occupancy
		wire.Counters = p.Counters
		wire.OccupancyStatus = &occ
	case FullUpdate:
		wire.Counters = p.Counters
		wire.OccupancyStatus = p.Occupancy
	default:
		return nil, fmt.Errorf("%w: no payload", ErrSchemaViolation)
	}

	// The backend always sends an array, never null
	if wire.Counters == nil {
		wire.Counters = []CounterStatus{}
	}

	return json.Marshal(wire)
}
