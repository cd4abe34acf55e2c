package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Header names used by the client.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderHeartBeat     = "heart-beat"
	HeaderVersion       = "version"
	HeaderID            = "id"
	HeaderDestination   = "destination"
	HeaderAck           = "ack"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderMessage       = "message"
	HeaderContentType   = "content-type"
)

// AcceptVersions is advertised on CONNECT.
const AcceptVersions = "1.2,1.1,1.0"

// Subprotocols are requested on the WebSocket upgrade.
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// ErrMalformedFrame is returned when a message cannot be decoded.
var ErrMalformedFrame = errors.New("malformed stomp frame")

// Heartbeat is a heart-beat header pair: Send is how often this side
// promises to send, Receive is how often it wants to hear from the peer.
type Heartbeat struct {
	Send    time.Duration
	Receive time.Duration
}

// String formats the pair as a heart-beat header value in milliseconds.
func (h Heartbeat) String() string {
	// Negative intervals mean disabled
	return strconv.FormatInt(max(h.Send, 0).Milliseconds(), 10) + "," + strconv.FormatInt(max(h.Receive, 0).Milliseconds(), 10)
}

// Connect builds the CONNECT frame. An empty host is omitted.
func Connect(host string, hb Heartbeat) *frame.Frame {
	f := frame.New(frame.CONNECT,
		HeaderAcceptVersion, AcceptVersions,
		HeaderHeartBeat, hb.String(),
	)
	if host != "" {
		f.Header.Add(HeaderHost, host)
	}
	return f
}

// Subscribe builds a SUBSCRIBE frame with automatic acknowledgement.
func Subscribe(id, destination string) *frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		HeaderID, id,
		HeaderDestination, destination,
		HeaderAck, "auto",
	)
}

// Unsubscribe builds an UNSUBSCRIBE frame.
func Unsubscribe(id string) *frame.Frame {
	return frame.New(frame.UNSUBSCRIBE, HeaderID, id)
}

// Disconnect builds a DISCONNECT frame.
func Disconnect() *frame.Frame {
	return frame.New(frame.DISCONNECT)
}

// HeartbeatEOL is the single end-of-line sent as a client heart-beat.
var HeartbeatEOL = []byte{'\n'}

// Encode serializes a frame for a WebSocket text message.
func Encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// MustEncode is Encode for frames built by this package, which always encode.
func MustEncode(f *frame.Frame) []byte {
	data, err := Encode(f)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode splits a WebSocket message into frames. Heart-beat EOLs produce no
// frame, so a pure heart-beat message decodes to an empty slice.
func Decode(data []byte) ([]*frame.Frame, error) {
	// Every frame ends in NUL, optionally followed by EOLs
	trimmed := bytes.TrimRight(data, "\r\n")
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] != 0 {
		return nil, fmt.Errorf("%w: missing NUL terminator", ErrMalformedFrame)
	}

	r := frame.NewReader(bytes.NewReader(data))

	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}

// ParseHeartbeat parses a heart-beat header value. An empty value means no
// heart-beating, as sent by STOMP 1.0 brokers.
func ParseHeartbeat(value string) (Heartbeat, error) {
	if value == "" {
		return Heartbeat{}, nil
	}
	send, recv, err := frame.ParseHeartBeat(value)
	if err != nil {
		return Heartbeat{}, fmt.Errorf("parse heart-beat %q: %w", value, err)
	}
	return Heartbeat{Send: send, Receive: recv}, nil
}

// Negotiate resolves the effective intervals from the client's CONNECT
// header and the broker's CONNECTED header. send is how often the client
// must emit a heart-beat; expect is how often it should hear from the broker.
// Zero disables the corresponding direction.
func Negotiate(client, server Heartbeat) (send, expect time.Duration) {
	if client.Send > 0 && server.Receive > 0 {
		send = max(client.Send, server.Receive)
	}
	if client.Receive > 0 && server.Send > 0 {
		expect = max(client.Receive, server.Send)
	}
	return send, expect
}
