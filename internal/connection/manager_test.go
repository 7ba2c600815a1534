package connection

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testManagerConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.Backoff = BackoffConfig{
		Initial:    20 * time.Millisecond,
		Max:        100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0,
	}
	cfg.ReadTimeout = 5 * time.Second
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManager_ConnectAndReceive(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		drain(conn)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(), nil)
	defer m.Close()

	received := make(chan string, 1)
	if err := m.Connect("ticker", wsURL(server), func(data []byte) {
		received <- string(data)
	}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case got := <-received:
		if got != "hello" {
			t.Errorf("message = %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if !m.IsConnected("ticker") {
		t.Error("expected stream to be connected")
	}

	stats := m.Stats()
	if stats.ConnectedCount != 1 || len(stats.Streams) != 1 {
		t.Errorf("Stats = %+v, want one connected stream", stats)
	}
	if stats.Streams[0].Messages != 1 {
		t.Errorf("Messages = %d, want 1", stats.Streams[0].Messages)
	}
}

func TestManager_ReconnectsAfterServerClose(t *testing.T) {
	var connects atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := connects.Add(1)
		if n < 3 {
			// Drop the first two connections immediately.
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("stable"))
		drain(conn)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(), nil)
	defer m.Close()

	received := make(chan string, 4)
	m.Connect("liquidation", wsURL(server), func(data []byte) {
		received <- string(data)
	})

	select {
	case got := <-received:
		if got != "stable" {
			t.Errorf("message = %q, want %q", got, "stable")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream never recovered")
	}

	if connects.Load() < 3 {
		t.Errorf("connects = %d, want >= 3", connects.Load())
	}

	stats := m.Stats()
	if stats.Streams[0].Reconnects < 2 {
		t.Errorf("Reconnects = %d, want >= 2", stats.Streams[0].Reconnects)
	}
}

func TestManager_DisconnectCancelsPendingReconnect(t *testing.T) {
	cfg := testManagerConfig()
	cfg.Backoff.Initial = 10 * time.Second
	cfg.Backoff.Max = 10 * time.Second

	m := NewManager(cfg, nil)
	defer m.Close()

	// Nothing listens here, so the stream sits in its reconnect wait.
	m.Connect("dead", "ws://127.0.0.1:1/ws", func([]byte) {})

	waitFor(t, 2*time.Second, func() bool {
		return m.State("dead") == StateDisconnected
	})

	start := time.Now()
	if err := m.Disconnect("dead"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Disconnect took %v, want prompt cancellation", elapsed)
	}

	if m.State("dead") != StateClosed {
		t.Errorf("State = %v, want closed", m.State("dead"))
	}
}

func TestManager_DisconnectLiveStream(t *testing.T) {
	closed := make(chan int, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					closed <- ce.Code
				}
				return
			}
		}
	})
	defer server.Close()

	m := NewManager(testManagerConfig(), nil)
	defer m.Close()

	m.Connect("ticker", wsURL(server), func([]byte) {})
	waitFor(t, 2*time.Second, func() bool { return m.IsConnected("ticker") })

	if err := m.Disconnect("ticker"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Errorf("close code = %d, want %d", code, websocket.CloseNormalClosure)
		}
	case <-time.After(2 * time.Second):
		t.Error("server never saw a close frame")
	}

	if err := m.Disconnect("ticker"); err != ErrUnknownStream {
		t.Errorf("second Disconnect = %v, want ErrUnknownStream", err)
	}
}

func TestManager_HandlerPanicDoesNotStopStream(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("boom"))
		conn.WriteMessage(websocket.TextMessage, []byte("ok"))
		drain(conn)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(), nil)
	defer m.Close()

	received := make(chan string, 2)
	m.Connect("ticker", wsURL(server), func(data []byte) {
		if string(data) == "boom" {
			panic("bad message")
		}
		received <- string(data)
	})

	select {
	case got := <-received:
		if got != "ok" {
			t.Errorf("message = %q, want %q", got, "ok")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream stopped after handler panic")
	}

	if p := m.Stats().Streams[0].Panics; p != 1 {
		t.Errorf("Panics = %d, want 1", p)
	}
}

func TestManager_ConnectReplacesStream(t *testing.T) {
	var mu sync.Mutex
	var got []string
	serverA := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("a"))
		drain(conn)
	})
	defer serverA.Close()
	serverB := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("b"))
		drain(conn)
	})
	defer serverB.Close()

	m := NewManager(testManagerConfig(), nil)
	defer m.Close()

	record := func(data []byte) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	}

	m.Connect("s", wsURL(serverA), record)
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	m.Connect("s", wsURL(serverB), record)
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	if got[1] != "b" {
		t.Errorf("second message = %q, want %q", got[1], "b")
	}
	if n := len(m.Stats().Streams); n != 1 {
		t.Errorf("streams = %d, want 1", n)
	}
}

func TestManager_ConnectAfterClose(t *testing.T) {
	m := NewManager(testManagerConfig(), nil)
	m.Close()

	if err := m.Connect("x", "ws://unused", func([]byte) {}); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateClosed:       "closed",
		State(42):         "unknown",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(st), got, want)
		}
	}
}
