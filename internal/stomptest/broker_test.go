package stomptest

import (
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"github.com/rickgao/facility-live/internal/stomp"
)

func dial(t *testing.T, b *Broker) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{Subprotocols: stomp.Subprotocols}
	ws, _, err := dialer.Dial(b.URL(), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, f *frame.Frame) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, stomp.MustEncode(f)); err != nil {
		t.Fatalf("write %s failed: %v", f.Command, err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) *frame.Frame {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		frames, err := stomp.Decode(data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func TestBroker_ConnectSubscribePublish(t *testing.T) {
	b := NewBroker(WithHeartbeat(0, 4*time.Second))
	defer b.Close()

	ws := dial(t, b)
	send(t, ws, stomp.Connect("", stomp.Heartbeat{}))

	connected := readFrame(t, ws)
	if connected.Command != frame.CONNECTED {
		t.Fatalf("Command = %s, want CONNECTED", connected.Command)
	}
	if got := connected.Header.Get(stomp.HeaderHeartBeat); got != "0,4000" {
		t.Errorf("heart-beat = %q, want 0,4000", got)
	}

	send(t, ws, stomp.Subscribe("sub-0", "/topic/CAF-01"))
	id, ok := b.WaitSubscribed("/topic/CAF-01", time.Second)
	if !ok || id != "sub-0" {
		t.Fatalf("WaitSubscribed = %q, %v", id, ok)
	}

	if n := b.Publish("/topic/CAF-01", `{"updateType":"full_update"}`); n != 1 {
		t.Fatalf("Publish sent %d, want 1", n)
	}
	if n := b.Publish("/topic/CAF-02", `{}`); n != 0 {
		t.Errorf("Publish to unsubscribed destination sent %d, want 0", n)
	}

	msg := readFrame(t, ws)
	if msg.Command != frame.MESSAGE {
		t.Fatalf("Command = %s, want MESSAGE", msg.Command)
	}
	if got := msg.Header.Get(stomp.HeaderSubscription); got != "sub-0" {
		t.Errorf("subscription = %q, want sub-0", got)
	}
	if got := msg.Header.Get(stomp.HeaderMessageID); got != "msg-1" {
		t.Errorf("message-id = %q, want msg-1", got)
	}

	send(t, ws, stomp.Unsubscribe("sub-0"))
	if !b.WaitFor(time.Second, func() bool { return len(b.Subscriptions()) == 0 }) {
		t.Error("subscription still live after UNSUBSCRIBE")
	}

	if b.Connects() != 1 || b.Upgrades() != 1 {
		t.Errorf("Connects = %d, Upgrades = %d, want 1/1", b.Connects(), b.Upgrades())
	}
	if got := len(b.Received(frame.SUBSCRIBE)); got != 1 {
		t.Errorf("SUBSCRIBE frames = %d, want 1", got)
	}
}

func TestBroker_DropConnections(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ws := dial(t, b)
	if !b.WaitFor(time.Second, func() bool { return b.Active() == 1 }) {
		t.Fatal("connection not registered")
	}

	b.DropConnections()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected read error after drop")
	}
	if !b.WaitFor(time.Second, func() bool { return b.Active() == 0 }) {
		t.Error("connection still active after drop")
	}
}
