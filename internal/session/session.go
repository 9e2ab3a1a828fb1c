package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-chess-client/internal/clock"
	"github.com/park285/cheese-chess-client/internal/obslog"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/rules"
	"go.uber.org/zap"
)

// Rules is the external rules engine. The session forwards confirmed moves to
// it and never inspects board internals itself.
type Rules interface {
	Start() rules.Position
	Apply(pos rules.Position, mv protocol.Move) (rules.Position, rules.Result, error)
	PieceColor(pos rules.Position, square string) (protocol.Color, bool)
	Turn(pos rules.Position) protocol.Color
}

// Sender delivers an outgoing frame. Implementations must not block on I/O.
type Sender interface {
	Send(ctx context.Context, frame []byte) error
}

// Observer receives every published snapshot on the session goroutine.
// It must return quickly and must not call back into the session.
type Observer func(SessionState)

type Config struct {
	// InitialTime is the per-side allowance when MatchStarted carries none.
	InitialTime time.Duration
	// Tick is the countdown resolution.
	Tick      time.Duration
	Clock     clockwork.Clock
	Logger    *zap.Logger
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.InitialTime <= 0 {
		c.InitialTime = 5 * time.Minute
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = obslog.L()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Session is the match state machine. All transitions run on the goroutine
// executing Run, one event at a time.
type Session struct {
	cfg   Config
	rules Rules
	out   Sender
	log   *zap.Logger
	clock *clock.Clock

	// owned by the Run goroutine
	state     SessionState
	tickDirty bool
	runCtx    context.Context

	events  chan any
	running atomic.Bool
	stopped chan struct{}

	pubM      sync.RWMutex
	published SessionState

	obsM      sync.Mutex
	observers map[int]Observer
	nextObsID int
}

type (
	evConnected    struct{}
	evDisconnected struct{}
	evFrame        struct{ frame []byte }
)

type intentKind int

const (
	intentRequestMatch intentKind = iota
	intentPlayAgain
	intentProposeMove
)

type intent struct {
	ctx   context.Context
	kind  intentKind
	move  protocol.Move
	reply chan error
}

func New(cfg Config, r Rules, out Sender) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:       cfg,
		rules:     r,
		out:       out,
		log:       cfg.Logger.With(zap.String("component", "session")),
		runCtx:    context.Background(),
		events:    make(chan any, cfg.QueueSize),
		stopped:   make(chan struct{}),
		observers: make(map[int]Observer),
	}
	s.clock = clock.New(cfg.Clock, cfg.Tick, s.onClockTick, s.onClockExpired)
	s.clock.Reset(cfg.InitialTime)
	s.state = s.freshState(PhaseDisconnected)
	s.published = s.state.clone()
	return s
}

// Run processes events until ctx is cancelled. It may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.stopped)
	s.runCtx = ctx
	s.log.Info("session_loop_start")
	for {
		select {
		case <-ctx.Done():
			s.clock.Stop()
			s.log.Info("session_loop_stop", zap.Error(ctx.Err()))
			return ctx.Err()
		case ev := <-s.events:
			s.dispatch(ev)
		case now := <-s.clock.C():
			s.tick(now)
		}
	}
}

// Connected reports that the transport has an open channel.
func (s *Session) Connected() { s.enqueue(evConnected{}) }

// Disconnected reports transport loss.
func (s *Session) Disconnected() { s.enqueue(evDisconnected{}) }

// Deliver hands one raw inbound frame to the session. Frames are processed in
// the order Deliver is called.
func (s *Session) Deliver(frame []byte) {
	s.enqueue(evFrame{frame: append([]byte(nil), frame...)})
}

// RequestMatch asks the service for a new pairing.
func (s *Session) RequestMatch(ctx context.Context) error {
	return s.submit(ctx, intent{kind: intentRequestMatch})
}

// PlayAgain leaves a finished match and requests a new one.
func (s *Session) PlayAgain(ctx context.Context) error {
	return s.submit(ctx, intent{kind: intentPlayAgain})
}

// ProposeMove forwards a move attempt. The board does not change until the
// service confirms it.
func (s *Session) ProposeMove(ctx context.Context, from, to string) error {
	mv := protocol.Move{
		From: strings.ToLower(strings.TrimSpace(from)),
		To:   strings.ToLower(strings.TrimSpace(to)),
	}
	return s.submit(ctx, intent{kind: intentProposeMove, move: mv})
}

// ProposePromotion is ProposeMove with an explicit promotion piece.
func (s *Session) ProposePromotion(ctx context.Context, from, to, promotion string) error {
	mv := protocol.Move{
		From:      strings.ToLower(strings.TrimSpace(from)),
		To:        strings.ToLower(strings.TrimSpace(to)),
		Promotion: strings.ToLower(strings.TrimSpace(promotion)),
	}
	return s.submit(ctx, intent{kind: intentProposeMove, move: mv})
}

// State returns the latest published snapshot.
func (s *Session) State() SessionState {
	s.pubM.RLock()
	defer s.pubM.RUnlock()
	return s.published.clone()
}

// Subscribe registers fn for every future snapshot and returns a cancel func.
func (s *Session) Subscribe(fn Observer) func() {
	s.obsM.Lock()
	defer s.obsM.Unlock()
	s.nextObsID++
	id := s.nextObsID
	s.observers[id] = fn
	return func() {
		s.obsM.Lock()
		delete(s.observers, id)
		s.obsM.Unlock()
	}
}

func (s *Session) enqueue(ev any) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	}
}

// submit queues an intent and waits for its result. An intent whose ctx is
// done by the time the loop reaches it is dropped without being applied.
func (s *Session) submit(ctx context.Context, in intent) error {
	in.ctx = ctx
	in.reply = make(chan error, 1)
	select {
	case s.events <- in:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrClosed
	}
	select {
	case err := <-in.reply:
		return err
	case <-ctx.Done():
	case <-s.stopped:
	}
	// 루프가 이미 처리했다면 그 결과를 돌려준다
	select {
	case err := <-in.reply:
		return err
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (s *Session) dispatch(ev any) {
	switch e := ev.(type) {
	case evConnected:
		s.onConnected()
	case evDisconnected:
		s.onDisconnected()
	case evFrame:
		s.onFrame(e.frame)
	case intent:
		if e.ctx != nil && e.ctx.Err() != nil {
			s.log.Info("intent_expired", zap.Int("kind", int(e.kind)), zap.Error(e.ctx.Err()))
			e.reply <- e.ctx.Err()
			return
		}
		var err error
		switch e.kind {
		case intentRequestMatch:
			err = s.onRequestMatch()
		case intentPlayAgain:
			err = s.onPlayAgain()
		case intentProposeMove:
			err = s.onProposeMove(e.move)
		}
		e.reply <- err
	default:
		s.log.Warn("session_unknown_event", zap.Any("event", ev))
	}
}

func (s *Session) tick(now time.Time) {
	s.clock.Tick(now)
	if s.tickDirty {
		s.commit(s.state, "clock_tick")
	}
}

// commit replaces the owned state wholesale and publishes a copy.
func (s *Session) commit(next SessionState, reason string) {
	prev := s.state.Phase
	next.Clocks = clocksFrom(s.clock.Snapshot())
	next.Version = s.state.Version + 1
	s.state = next
	s.tickDirty = false

	snap := next.clone()
	s.pubM.Lock()
	s.published = snap
	s.pubM.Unlock()

	if prev != next.Phase {
		s.log.Info("session_transition",
			zap.String("from", string(prev)),
			zap.String("to", string(next.Phase)),
			zap.String("reason", reason),
			zap.String("match_id", next.MatchID),
			zap.String("outcome", string(next.Outcome)),
		)
	}

	s.obsM.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		obs = append(obs, fn)
	}
	s.obsM.Unlock()
	for _, fn := range obs {
		fn(snap.clone())
	}
}

func (s *Session) send(frame []byte) error {
	if s.out == nil {
		return ErrClosed
	}
	return s.out.Send(s.runCtx, frame)
}
