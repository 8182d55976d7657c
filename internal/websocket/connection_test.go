package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mentorchat/pkg/types"
)

func newConnectionPair(t *testing.T) (*Connection, *websocket.Conn) {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		upgraded <- socket
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = clientConn.Close() })

	serverSide := <-upgraded
	conn := NewConnection(serverSide, "alice", 10, time.Second, time.Minute)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, clientConn
}

func readFrame(t *testing.T, clientConn *websocket.Conn) map[string]interface{} {
	t.Helper()

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("client got invalid JSON: %v", err)
	}
	return decoded
}

func TestTrySendDelivers(t *testing.T) {
	conn, clientConn := newConnectionPair(t)

	if !conn.TrySend(types.NewSystemEvent("test", "hello")) {
		t.Fatal("TrySend returned false on open connection")
	}

	frame := readFrame(t, clientConn)
	if frame["type"] != types.EnvelopeSystem {
		t.Errorf("type = %v, want %q", frame["type"], types.EnvelopeSystem)
	}
	if frame["message"] != "hello" {
		t.Errorf("message = %v, want hello", frame["message"])
	}
}

func TestWriteJSONDelivers(t *testing.T) {
	conn, clientConn := newConnectionPair(t)

	if err := conn.WriteJSON(types.NewSystemEvent("test", "direct")); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	frame := readFrame(t, clientConn)
	if frame["message"] != "direct" {
		t.Errorf("message = %v, want direct", frame["message"])
	}
}

func TestSendAfterClose(t *testing.T) {
	conn, _ := newConnectionPair(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if conn.TrySend(types.NewSystemEvent("test", "late")) {
		t.Error("TrySend succeeded on closed connection")
	}
	if err := conn.WriteJSON(types.NewSystemEvent("test", "late")); err != ErrConnectionClosed {
		t.Errorf("WriteJSON: got %v, want ErrConnectionClosed", err)
	}

	// Double close must be safe.
	if err := conn.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	conn, clientConn := newConnectionPair(t)

	// Stop the client from reading and flood the buffer. Eventually the
	// non-blocking send must start reporting drops instead of blocking.
	_ = clientConn.SetReadDeadline(time.Now())

	dropped := false
	for i := 0; i < 10000; i++ {
		if !conn.TrySend(types.NewSystemEvent("flood", "x")) {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Error("TrySend never reported a drop under backpressure")
	}
}

func TestUserID(t *testing.T) {
	conn, _ := newConnectionPair(t)
	if conn.UserID() != "alice" {
		t.Errorf("UserID = %q, want alice", conn.UserID())
	}
}
