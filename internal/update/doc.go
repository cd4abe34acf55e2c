// Package update defines the live-update events delivered to consumers.
//
// The backend publishes one JSON document per MESSAGE frame:
//
//	{
//	  "cafeteriaCode": "CAF-01",
//	  "counters": [...],
//	  "occupancyStatus": {...} | null,
//	  "timestamp": "2024-01-15T10:30:00",
//	  "updateType": "counter_update" | "occupancy_update" | "full_update"
//	}
//
// Parse is the only way to build an Event from wire bytes, so every Event
// carries one of the three known payload variants.
package update
