package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-chess-client/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var (
	ErrNotConnected  = errors.New("websocket not connected")
	ErrSendQueueFull = errors.New("websocket send queue full")
	ErrClosed        = errors.New("websocket closed")
)

// State is the lifecycle of the transport.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

type FrameCallback func(frame []byte)

type StateCallback func(state State)

// HeaderProvider injects headers into the handshake.
type HeaderProvider func() map[string]string

type Options struct {
	URL            string
	MaxReconnect   int
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	DialTimeout    time.Duration
	SendQueue      int
	ReadLimit      int64
	Headers        HeaderProvider
	Logger         *zap.Logger
}

type frameCallbackEntry struct {
	id       int
	callback FrameCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// link is one live connection and the goroutines serving it.
type link struct {
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	sendCh   chan []byte
	dropOnce sync.Once
}

// WebSocket is a reconnecting text-frame client. Inbound frames are handed
// to callbacks in arrival order on a single reader goroutine. Send never
// blocks on network I/O.
type WebSocket struct {
	opts Options
	log  *zap.Logger

	mu    sync.RWMutex
	state State
	cur   *link

	frameCbs []frameCallbackEntry
	stateCbs []stateCallbackEntry
	nextCbID int
	cbM      sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func New(opts Options) *WebSocket {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 100 * time.Millisecond
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 << 10
	}
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &WebSocket{
		opts:       opts,
		log:        opts.Logger.With(zap.String("component", "transport")),
		state:      StateDisconnected,
		stopCh:     make(chan struct{}),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
	}
}

// Connect dials once. On failure it returns the error and, when reconnects
// are enabled, keeps retrying in the background.
func (ws *WebSocket) Connect(ctx context.Context) error {
	if ws.isStopping() {
		return ErrClosed
	}
	switch ws.State() {
	case StateConnected, StateConnecting, StateReconnecting:
		return nil
	}
	ws.setState(StateConnecting)

	conn, err := ws.dial(ctx)
	if err != nil {
		ws.log.Warn("ws_connect_failed", zap.String("url", ws.opts.URL), zap.Error(err))
		ws.setState(StateFailed)
		ws.scheduleReconnect()
		return err
	}
	ws.attach(conn)
	return nil
}

func (ws *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ws.opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, ws.opts.URL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.buildHeaders(),
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(ws.opts.ReadLimit)
	return conn, nil
}

func (ws *WebSocket) attach(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ws.rootCtx)
	l := &link{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		sendCh: make(chan []byte, ws.opts.SendQueue),
	}
	ws.mu.Lock()
	ws.cur = l
	ws.mu.Unlock()

	ws.log.Info("ws_connected", zap.String("url", ws.opts.URL))
	ws.setState(StateConnected)

	ws.wg.Add(3)
	go ws.listen(l)
	go ws.writeLoop(l)
	go ws.pingLoop(l)
}

// Send queues one text frame for the writer goroutine.
func (ws *WebSocket) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ws.mu.RLock()
	l, st := ws.cur, ws.state
	ws.mu.RUnlock()
	if l == nil || st != StateConnected {
		return ErrNotConnected
	}
	select {
	case <-l.ctx.Done():
		return ErrNotConnected
	default:
	}
	select {
	case l.sendCh <- append([]byte(nil), frame...):
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (ws *WebSocket) listen(l *link) {
	defer ws.wg.Done()
	for {
		typ, data, err := l.conn.Read(l.ctx)
		if err != nil {
			if !ws.isStopping() {
				ws.log.Info("ws_read_failed", zap.Error(err), zap.Int("close_status", int(websocket.CloseStatus(err))))
			}
			ws.drop(l, websocket.StatusGoingAway, "read failure")
			return
		}
		if typ != websocket.MessageText {
			ws.log.Warn("ws_binary_frame_ignored", zap.Int("size", len(data)))
			continue
		}

		ws.cbM.RLock()
		callbacks := make([]frameCallbackEntry, len(ws.frameCbs))
		copy(callbacks, ws.frameCbs)
		ws.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(data)
			}
		}
	}
}

func (ws *WebSocket) writeLoop(l *link) {
	defer ws.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case frame := <-l.sendCh:
			ctx, cancel := context.WithTimeout(l.ctx, 5*time.Second)
			err := l.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				if !ws.isStopping() {
					ws.log.Error("ws_write_failed", zap.Int("size", len(frame)), zap.Error(err))
				}
				ws.drop(l, websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

func (ws *WebSocket) pingLoop(l *link) {
	defer ws.wg.Done()
	t := time.NewTicker(ws.opts.PingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(l.ctx, 3*time.Second)
			err := l.conn.Ping(ctx)
			cancel()
			if err != nil {
				consecutivePingFailures++
				ws.log.Debug("ws_ping_failed", zap.Int("consecutive", consecutivePingFailures), zap.Error(err))
				if consecutivePingFailures >= 2 {
					ws.drop(l, websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			consecutivePingFailures = 0
		}
	}
}

// drop tears down l exactly once and starts reconnecting unless the client
// is closing.
func (ws *WebSocket) drop(l *link, code websocket.StatusCode, reason string) {
	l.dropOnce.Do(func() {
		l.cancel()
		_ = l.conn.Close(code, reason)

		ws.mu.Lock()
		current := ws.cur == l
		if current {
			ws.cur = nil
		}
		ws.mu.Unlock()
		if !current || ws.isStopping() {
			return
		}
		ws.log.Info("ws_disconnected", zap.String("reason", reason))
		ws.setState(StateDisconnected)
		ws.scheduleReconnect()
	})
}

func (ws *WebSocket) scheduleReconnect() {
	if ws.opts.MaxReconnect <= 0 || ws.isStopping() {
		return
	}
	ws.setState(StateReconnecting)

	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		for attempt := 1; attempt <= ws.opts.MaxReconnect; attempt++ {
			select {
			case <-ws.stopCh:
				return
			case <-time.After(ws.backoffDuration(attempt)):
			}

			conn, err := ws.dial(ws.rootCtx)
			if err != nil {
				ws.log.Warn("ws_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if ws.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			ws.attach(conn)
			return
		}
		ws.log.Error("ws_reconnect_exhausted", zap.Int("attempts", ws.opts.MaxReconnect))
		ws.setState(StateFailed)
	}()
}

// backoffDuration doubles the base delay per attempt, capped at 32x.
func (ws *WebSocket) backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * ws.opts.ReconnectDelay
}

func (ws *WebSocket) OnFrame(cb FrameCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	ws.nextCbID++
	ws.frameCbs = append(ws.frameCbs, frameCallbackEntry{id: ws.nextCbID, callback: cb})
	return ws.nextCbID
}

func (ws *WebSocket) RemoveFrameCallback(id int) {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	for i, cb := range ws.frameCbs {
		if cb.id == id {
			ws.frameCbs = append(ws.frameCbs[:i], ws.frameCbs[i+1:]...)
			break
		}
	}
}

func (ws *WebSocket) OnStateChange(cb StateCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	ws.nextCbID++
	ws.stateCbs = append(ws.stateCbs, stateCallbackEntry{id: ws.nextCbID, callback: cb})
	return ws.nextCbID
}

func (ws *WebSocket) RemoveStateCallback(id int) {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	for i, cb := range ws.stateCbs {
		if cb.id == id {
			ws.stateCbs = append(ws.stateCbs[:i], ws.stateCbs[i+1:]...)
			break
		}
	}
}

func (ws *WebSocket) State() State {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.state
}

func (ws *WebSocket) setState(state State) {
	ws.mu.Lock()
	if ws.state == StateClosed || ws.state == state {
		ws.mu.Unlock()
		return
	}
	ws.state = state
	ws.mu.Unlock()

	ws.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(ws.stateCbs))
	copy(callbacks, ws.stateCbs)
	ws.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

// Close stops reconnecting, closes the live connection and waits for every
// goroutine to exit or ctx to expire.
func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })

	ws.mu.RLock()
	l := ws.cur
	ws.mu.RUnlock()
	if l != nil {
		ws.drop(l, websocket.StatusNormalClosure, "close")
	}
	ws.setState(StateClosed)

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		ws.rootCancel()
		return ctx.Err()
	case <-done:
		ws.rootCancel()
		return nil
	}
}

func (ws *WebSocket) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}

func (ws *WebSocket) buildHeaders() http.Header {
	hdr := http.Header{}
	if ws.opts.Headers == nil {
		return hdr
	}
	for k, v := range ws.opts.Headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
