// Package metrics provides Prometheus metrics for monitoring the live-update
// client.
//
// Key metrics:
//   - Connection state, sessions and reconnects
//   - STOMP frames received by command
//   - Updates delivered by update type
//   - Parse failures and duplicate frames dropped
//   - Active topic subscriptions and consumers
package metrics
