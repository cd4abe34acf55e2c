// Package subscription binds a consumer's lifecycle to a topic on the
// connection manager.
//
// A Binding is mounted with Bind and unmounted with Unbind. Re-binding the
// same topic only swaps the handler, so a consumer that re-renders with a
// fresh callback never resubscribes. Changing topics releases the old
// subscription before the new one is made.
package subscription
