// Package stomptest provides an in-process STOMP-over-WebSocket broker for
// tests. It speaks just enough STOMP 1.2 to drive the live-update client:
// CONNECT/CONNECTED, SUBSCRIBE, UNSUBSCRIBE, MESSAGE, ERROR and heart-beats.
package stomptest
