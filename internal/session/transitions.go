package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-client/internal/clock"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"go.uber.org/zap"
)

func (s *Session) freshState(phase Phase) SessionState {
	return SessionState{
		Phase:      phase,
		LocalColor: Unassigned,
		Board:      s.rules.Start(),
		Turn:       protocol.White,
	}
}

func (s *Session) onConnected() {
	if s.state.Phase != PhaseDisconnected {
		s.log.Debug("connected_ignored", zap.String("phase", string(s.state.Phase)))
		return
	}
	s.commit(s.freshState(PhaseIdle), "transport_connected")
}

// onDisconnected discards the match from any phase.
func (s *Session) onDisconnected() {
	if s.state.Phase == PhaseDisconnected {
		return
	}
	s.clock.Reset(s.cfg.InitialTime)
	s.commit(s.freshState(PhaseDisconnected), "transport_disconnected")
}

func (s *Session) onRequestMatch() error {
	if s.state.Phase != PhaseIdle {
		return fmt.Errorf("%w: request match in %s", ErrWrongPhase, s.state.Phase)
	}
	if err := s.sendRequestMatch(); err != nil {
		return err
	}
	next := s.state
	next.Phase = PhaseAwaitingOpponent
	s.commit(next, "request_match")
	return nil
}

func (s *Session) onPlayAgain() error {
	if s.state.Phase != PhaseGameOver {
		return fmt.Errorf("%w: play again in %s", ErrWrongPhase, s.state.Phase)
	}
	if err := s.sendRequestMatch(); err != nil {
		return err
	}
	s.clock.Reset(s.cfg.InitialTime)
	s.commit(s.freshState(PhaseAwaitingOpponent), "play_again")
	return nil
}

func (s *Session) sendRequestMatch() error {
	frame, err := protocol.EncodeRequestMatch()
	if err != nil {
		return err
	}
	if err := s.send(frame); err != nil {
		s.log.Error("send_request_match_failed", zap.Error(err))
		return fmt.Errorf("send request match: %w", err)
	}
	return nil
}

func (s *Session) onProposeMove(mv protocol.Move) error {
	st := s.state
	if st.Phase != PhaseInProgress {
		return fmt.Errorf("%w: move in %s", ErrWrongPhase, st.Phase)
	}
	if !protocol.ValidSquare(mv.From) || !protocol.ValidSquare(mv.To) || mv.From == mv.To {
		return fmt.Errorf("%w: %q -> %q", ErrBadSquare, mv.From, mv.To)
	}
	if st.LocalColor != st.Turn {
		return fmt.Errorf("%w: %s to move", ErrNotYourTurn, st.Turn)
	}
	frame, err := protocol.EncodeProposeMove(mv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSquare, err)
	}
	if err := s.send(frame); err != nil {
		s.log.Error("send_move_failed", zap.String("move", mv.UCI()), zap.Error(err))
		return fmt.Errorf("send move: %w", err)
	}
	next := st
	next.PendingMove = &mv
	s.commit(next, "propose_move")
	return nil
}

func (s *Session) onFrame(frame []byte) {
	ev := protocol.Decode(frame)
	switch ev.Kind {
	case protocol.KindMatchStarted:
		s.onMatchStarted(ev)
	case protocol.KindMoveConfirmed:
		s.onMoveConfirmed(ev)
	case protocol.KindMatchEnded:
		s.onMatchEnded(ev)
	default:
		s.log.Warn("codec_malformed_frame",
			zap.String("type", ev.Type),
			zap.Int("size", len(frame)),
			zap.Error(ev.Err),
		)
	}
}

func (s *Session) onMatchStarted(ev protocol.Event) {
	if s.state.Phase != PhaseAwaitingOpponent {
		s.dropped(ev, "unexpected_match_started")
		return
	}
	allowance := s.cfg.InitialTime
	if ev.InitialMillis > 0 {
		allowance = time.Duration(ev.InitialMillis) * time.Millisecond
	}
	next := s.freshState(PhaseInProgress)
	next.LocalColor = ev.Color
	next.MatchID = ev.MatchID
	if next.MatchID == "" {
		next.MatchID = uuid.NewString()
	}
	s.clock.Reset(allowance)
	s.clock.Start(sideOf(next.Turn))
	s.commit(next, "match_started")
}

func (s *Session) onMoveConfirmed(ev protocol.Event) {
	st := s.state
	if st.Phase != PhaseInProgress {
		s.dropped(ev, "move_outside_match")
		return
	}
	mover, ok := s.rules.PieceColor(st.Board, ev.Move.From)
	if !ok {
		s.rejectMove(ev, "empty_square", nil)
		return
	}
	if mover != st.Turn || (ev.Color != "" && ev.Color != st.Turn) {
		s.rejectMove(ev, "wrong_mover", nil)
		return
	}
	pos, res, err := s.rules.Apply(st.Board, ev.Move)
	if err != nil {
		s.rejectMove(ev, "illegal", err)
		return
	}

	next := st
	next.Board = pos
	next.MoveHistory = append(slices.Clip(st.MoveHistory), res.Move)
	next.Turn = s.rules.Turn(pos)
	if mover == st.LocalColor {
		next.PendingMove = nil
	}
	// Start charges the mover for the partial tick before arming the other side.
	s.clock.Start(sideOf(next.Turn))
	switch {
	case res.Terminal:
		s.finish(&next, res.Outcome, res.Method)
	case s.clock.Remaining(sideOf(mover)) <= 0:
		s.log.Info("clock_expired", zap.String("match_id", st.MatchID), zap.String("side", string(mover)))
		s.finish(&next, protocol.WinFor(mover.Opponent()), "timeout")
	}
	s.commit(next, "move_confirmed")
}

func (s *Session) onMatchEnded(ev protocol.Event) {
	switch s.state.Phase {
	case PhaseGameOver:
		s.log.Debug("outcome_already_set",
			zap.String("match_id", s.state.MatchID),
			zap.String("kept", string(s.state.Outcome)),
			zap.String("ignored", string(ev.Outcome)),
		)
		return
	case PhaseInProgress:
	default:
		s.dropped(ev, "match_ended_outside_match")
		return
	}
	next := s.state
	if s.finish(&next, ev.Outcome, "remote") {
		s.commit(next, "match_ended")
	}
}

func (s *Session) onClockTick(clock.Side, time.Duration) {
	s.tickDirty = true
}

// onClockExpired runs inside clock.Tick on the session goroutine.
func (s *Session) onClockExpired(side clock.Side) {
	st := s.state
	loser := colorOf(side)
	if st.Phase != PhaseInProgress || loser != st.Turn {
		s.log.Debug("clock_expiry_ignored", zap.String("side", side.String()), zap.String("phase", string(st.Phase)))
		return
	}
	s.log.Info("clock_expired", zap.String("match_id", st.MatchID), zap.String("side", side.String()))
	next := st
	if s.finish(&next, protocol.WinFor(loser.Opponent()), "timeout") {
		s.commit(next, "clock_expired")
	}
}

// finish is the only place an outcome is assigned. It refuses to overwrite
// an outcome that is already set.
func (s *Session) finish(next *SessionState, outcome protocol.Outcome, method string) bool {
	if next.Phase == PhaseGameOver || next.Outcome != protocol.OutcomeNone || outcome == protocol.OutcomeNone {
		return false
	}
	s.clock.Stop()
	next.Phase = PhaseGameOver
	next.Outcome = outcome
	next.Method = method
	next.PendingMove = nil
	return true
}

func (s *Session) rejectMove(ev protocol.Event, reason string, err error) {
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("match_id", s.state.MatchID),
		zap.String("move", ev.Move.UCI()),
		zap.String("turn", string(s.state.Turn)),
		zap.String("asserted", string(ev.Color)),
		zap.Int("ply", len(s.state.MoveHistory)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.log.Warn("move_rejected", fields...)
}

func (s *Session) dropped(ev protocol.Event, reason string) {
	s.log.Warn("event_dropped",
		zap.String("reason", reason),
		zap.String("event", ev.Kind.String()),
		zap.String("phase", string(s.state.Phase)),
	)
}
