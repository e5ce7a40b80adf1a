package client_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/controlhub/realtime-gateway/internal/client"
	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer runs handler for each accepted connection, passing its
// 1-based accept index. Returns the websocket URL and the accept counter.
func newWSServer(t *testing.T, handler func(i int, conn *websocket.Conn)) (string, *int64) {
	t.Helper()
	var accepts int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		i := int(atomic.AddInt64(&accepts, 1))
		handler(i, conn)
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http"), &accepts
}

// holdOpen drains the connection until the peer goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}

func waitStatus(t *testing.T, statuses <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-statuses:
		if got != want {
			t.Fatalf("Expected status change to %v, got %v", want, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Timed out waiting for status change to %v", want)
	}
}

func TestConnect_SendsAuthAndReportsConnected(t *testing.T) {
	authFrames := make(chan []byte, 1)
	url, _ := newWSServer(t, func(i int, conn *websocket.Conn) {
		_, frame, err := conn.ReadMessage()
		if err == nil {
			authFrames <- frame
		}
		holdOpen(conn)
	})

	statuses := make(chan bool, 16)
	c := client.New(client.Options{
		URL:         url,
		Token:       "tok-123",
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		MaxAttempts: 3,
	}, client.Callbacks{
		OnStatusChange: func(connected bool) { statuses <- connected },
	}, zap.NewNop())
	defer c.Disconnect()

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitStatus(t, statuses, true)

	select {
	case frame := <-authFrames:
		env, err := protocol.Decode(frame)
		if err != nil {
			t.Fatalf("Auth frame undecodable: %v", err)
		}
		if env.Type != protocol.TypeAuth {
			t.Fatalf("Expected auth envelope first, got %s", env.Type)
		}
		var auth protocol.AuthData
		if err := protocol.DecodeData(env, &auth); err != nil {
			t.Fatalf("Failed to decode auth data: %v", err)
		}
		if auth.Token != "tok-123" {
			t.Errorf("Expected token 'tok-123', got %q", auth.Token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server never received the auth message")
	}
}

func TestDisconnect_IdempotentAndNoReconnect(t *testing.T) {
	url, accepts := newWSServer(t, func(i int, conn *websocket.Conn) {
		holdOpen(conn)
	})

	statuses := make(chan bool, 16)
	c := client.New(client.Options{
		URL:         url,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		MaxAttempts: 5,
	}, client.Callbacks{
		OnStatusChange: func(connected bool) { statuses <- connected },
	}, zap.NewNop())

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitStatus(t, statuses, true)

	c.Disconnect()
	waitStatus(t, statuses, false)
	c.Disconnect()

	// A manual disconnect never schedules a retry.
	time.Sleep(200 * time.Millisecond)
	if n := atomic.LoadInt64(accepts); n != 1 {
		t.Errorf("Expected exactly 1 accepted connection, got %d", n)
	}
	select {
	case s := <-statuses:
		t.Errorf("Unexpected extra status change: %v", s)
	default:
	}
}

func TestReconnect_AfterUnexpectedCloseAndCounterReset(t *testing.T) {
	// Every odd connection dies abruptly; even ones stay up. With
	// MaxAttempts of 1 this only works if a successful open resets the
	// attempt counter.
	url, accepts := newWSServer(t, func(i int, conn *websocket.Conn) {
		if i%2 == 1 {
			conn.UnderlyingConn().Close()
			return
		}
		holdOpen(conn)
	})

	statuses := make(chan bool, 16)
	var gaveUp int64
	c := client.New(client.Options{
		URL:         url,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		MaxAttempts: 1,
	}, client.Callbacks{
		OnStatusChange: func(connected bool) { statuses <- connected },
		OnGiveUp:       func() { atomic.AddInt64(&gaveUp, 1) },
	}, zap.NewNop())
	defer c.Disconnect()

	c.Connect()

	// First open may be torn down before or after the status callback
	// fires; either way the retry must land on connection 2.
	deadline := time.Now().Add(3 * time.Second)
	for c.Connected() == false || atomic.LoadInt64(accepts) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Client never settled on a live connection (accepts=%d)", atomic.LoadInt64(accepts))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if atomic.LoadInt64(&gaveUp) != 0 {
		t.Error("Client gave up despite the retry succeeding")
	}
}

func TestGiveUp_AfterMaxAttempts(t *testing.T) {
	gaveUp := make(chan struct{}, 4)
	c := client.New(client.Options{
		URL:         "ws://127.0.0.1:1/ws", // nothing listens here
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		MaxAttempts: 3,
	}, client.Callbacks{
		OnGiveUp: func() { gaveUp <- struct{}{} },
	}, zap.NewNop())

	if err := c.Connect(); err == nil {
		t.Fatal("Expected initial connect to fail")
	}

	select {
	case <-gaveUp:
	case <-time.After(3 * time.Second):
		t.Fatal("Client never gave up")
	}

	// Exactly one terminal notification.
	select {
	case <-gaveUp:
		t.Error("Expected a single give-up notification, got more")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStatusOrder_OnReconnect(t *testing.T) {
	url, _ := newWSServer(t, func(i int, conn *websocket.Conn) {
		if i == 1 {
			// Let the client see the connection, then kill it.
			time.Sleep(50 * time.Millisecond)
			conn.UnderlyingConn().Close()
			return
		}
		holdOpen(conn)
	})

	statuses := make(chan bool, 16)
	c := client.New(client.Options{
		URL:         url,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		MaxAttempts: 5,
	}, client.Callbacks{
		OnStatusChange: func(connected bool) { statuses <- connected },
	}, zap.NewNop())
	defer c.Disconnect()

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitStatus(t, statuses, true)
	waitStatus(t, statuses, false)
	waitStatus(t, statuses, true)
}
