// Package stomp builds and decodes the STOMP frames exchanged with the
// live-update broker over WebSocket text messages.
//
// Frame encoding is delegated to github.com/go-stomp/stomp/v3/frame; this
// package adds the client-side frame set, multi-frame message decoding and
// STOMP 1.2 heart-beat negotiation.
package stomp
