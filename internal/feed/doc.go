// Package feed decouples update callbacks from slow sinks.
//
// Callbacks run on the connection manager's session goroutine and must
// return quickly. A Queue accepts events without blocking and hands them to
// a consumer goroutine in order. The queue grows on demand; with a limit set
// it drops the oldest entries instead of growing past it.
package feed
