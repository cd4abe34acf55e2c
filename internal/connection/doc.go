// Package connection implements the live-update Connection Manager.
//
// The Connection Manager:
//   - Owns at most one STOMP-over-WebSocket connection per instance
//   - Subscribes /topic/<topicKey> once per topic and fans frames out to every consumer
//   - Parses MESSAGE bodies into typed update events at the boundary
//   - Reconnects after a fixed delay and re-subscribes every active topic
//   - Negotiates STOMP heart-beats and treats silence as a dropped connection
//   - Tears the connection down when the last consumer is released
package connection
