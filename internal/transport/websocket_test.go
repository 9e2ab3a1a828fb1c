package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type testServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan string

	mu      sync.Mutex
	headers []http.Header
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan string, 16),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.headers = append(ts.headers, r.Header.Clone())
		ts.mu.Unlock()
		ts.conns <- c
		for {
			_, data, err := c.Read(context.Background())
			if err != nil {
				return
			}
			ts.received <- string(data)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("server saw no connection")
		return nil
	}
}

func newClient(t *testing.T, url string, maxReconnect int) *WebSocket {
	t.Helper()
	ws := New(Options{
		URL:            url,
		MaxReconnect:   maxReconnect,
		ReconnectDelay: 10 * time.Millisecond,
		Headers:        func() map[string]string { return map[string]string{"X-Client-Id": "c-1", " ": "skip"} },
		Logger:         zap.NewNop(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Close(ctx)
	})
	return ws
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s not reached", want)
		}
	}
}

func TestSendBeforeConnect(t *testing.T) {
	ws := newClient(t, "ws://127.0.0.1:1", 0)
	if err := ws.Send(context.Background(), []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestFramesBothWays(t *testing.T) {
	ts := newTestServer(t)
	ws := newClient(t, ts.wsURL(), 0)

	got := make(chan string, 4)
	ws.OnFrame(func(frame []byte) { got <- string(frame) })
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ws.State() != StateConnected {
		t.Fatalf("state = %s", ws.State())
	}
	srv := ts.nextConn(t)

	for _, msg := range []string{`{"type":"init_game"}`, `{"type":"move"}`} {
		if err := srv.Write(context.Background(), websocket.MessageText, []byte(msg)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}
	for _, want := range []string{`{"type":"init_game"}`, `{"type":"move"}`} {
		select {
		case frame := <-got:
			if frame != want {
				t.Fatalf("frame = %s, want %s", frame, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("frame %s not delivered", want)
		}
	}

	if err := ws.Send(context.Background(), []byte(`{"type":"init_game"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case msg := <-ts.received:
		if msg != `{"type":"init_game"}` {
			t.Fatalf("server got %s", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server received nothing")
	}

	ts.mu.Lock()
	hdr := ts.headers[0]
	ts.mu.Unlock()
	if hdr.Get("X-Client-Id") != "c-1" {
		t.Fatalf("handshake header missing: %v", hdr)
	}
}

func TestReconnectAfterServerClose(t *testing.T) {
	ts := newTestServer(t)
	ws := newClient(t, ts.wsURL(), 3)

	states := make(chan State, 16)
	ws.OnStateChange(func(s State) { states <- s })
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitState(t, states, StateConnected)
	first := ts.nextConn(t)

	_ = first.Close(websocket.StatusGoingAway, "restart")
	waitState(t, states, StateDisconnected)
	waitState(t, states, StateConnected)
	ts.nextConn(t)

	if err := ws.Send(context.Background(), []byte(`{"type":"move"}`)); err != nil {
		t.Fatalf("send after reconnect: %v", err)
	}
}

func TestConnectFailureWithoutRetry(t *testing.T) {
	ts := newTestServer(t)
	url := ts.wsURL()
	ts.Close()

	ws := newClient(t, url, 0)
	if err := ws.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if ws.State() != StateFailed {
		t.Fatalf("state = %s", ws.State())
	}
}

func TestCloseStopsEverything(t *testing.T) {
	ts := newTestServer(t)
	ws := newClient(t, ts.wsURL(), 3)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ts.nextConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ws.State() != StateClosed {
		t.Fatalf("state = %s", ws.State())
	}
	if err := ws.Send(context.Background(), []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send after close: %v", err)
	}
	if err := ws.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("connect after close: %v", err)
	}
}

func TestBackoffDuration(t *testing.T) {
	ws := New(Options{ReconnectDelay: 100 * time.Millisecond, Logger: zap.NewNop()})
	cases := map[int]time.Duration{
		0:  100 * time.Millisecond,
		1:  100 * time.Millisecond,
		2:  200 * time.Millisecond,
		6:  3200 * time.Millisecond,
		10: 3200 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := ws.backoffDuration(attempt); got != want {
			t.Fatalf("attempt %d: %v, want %v", attempt, got, want)
		}
	}
}
