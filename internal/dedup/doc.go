// Package dedup drops repeated deliveries of the same broker message.
//
// The broker stamps every MESSAGE frame with a message-id that is unique within
// a session. A Window remembers the most recent ids per topic so a frame that
// is delivered twice (a replayed send, a duplicated subscription that was not
// yet torn down) reaches consumers only once.
package dedup
