package pushgateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"callcore/internal/correlator"
	"callcore/internal/settings"
	"callcore/internal/snapshot"
)

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	corr := correlator.New([]string{"100"}, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
	gw := New(corr, 50*time.Millisecond)
	go gw.Run()
	t.Cleanup(gw.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gw.ServeHTTP(w, r, snapshot.AllScope())
	}))
	t.Cleanup(srv.Close)
	return gw, srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return msg
}

func TestServeHTTP_SendsInitialStateOnConnect(t *testing.T) {
	_, srv := newTestGateway(t)
	conn := dialWS(t, srv)

	msg := readMessage(t, conn)
	if msg.Type != MsgInitialState {
		t.Errorf("first message Type = %q, want %q", msg.Type, MsgInitialState)
	}
}

func TestNotifyAction_BroadcastsToConnectedClients(t *testing.T) {
	gw, srv := newTestGateway(t)
	conn := dialWS(t, srv)
	readMessage(t, conn) // discard initial_state

	gw.NotifyAction(ActionResult{Operation: "hangup", Success: true, Message: "ok"})

	msg := readMessage(t, conn)
	if msg.Type != MsgActionResult {
		t.Fatalf("Type = %q, want %q", msg.Type, MsgActionResult)
	}
}

func TestNotifyCall_BroadcastsCallNotification(t *testing.T) {
	gw, srv := newTestGateway(t)
	conn := dialWS(t, srv)
	readMessage(t, conn) // discard initial_state

	gw.NotifyCall("100")

	msg := readMessage(t, conn)
	if msg.Type != MsgCallNotification {
		t.Fatalf("Type = %q, want %q", msg.Type, MsgCallNotification)
	}
}

func TestClientCount_TracksConnectAndDisconnect(t *testing.T) {
	gw, srv := newTestGateway(t)
	conn := dialWS(t, srv)
	readMessage(t, conn)

	deadline := time.Now().Add(time.Second)
	for gw.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if gw.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", gw.ClientCount())
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for gw.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if gw.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d after disconnect, want 0", gw.ClientCount())
	}
}
