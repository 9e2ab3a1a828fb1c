package session

import (
	"slices"

	"github.com/park285/cheese-chess-client/internal/clock"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/rules"
)

// Phase is the discrete state of a session.
type Phase string

const (
	PhaseDisconnected     Phase = "disconnected"
	PhaseIdle             Phase = "idle"
	PhaseAwaitingOpponent Phase = "awaiting_opponent"
	PhaseInProgress       Phase = "in_progress"
	PhaseGameOver         Phase = "game_over"
)

// Unassigned is the local color before a match has started.
const Unassigned protocol.Color = ""

// Clocks holds remaining time per side in milliseconds.
type Clocks struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
	// Running is the armed side, empty when no clock runs.
	Running protocol.Color `json:"running,omitempty"`
}

// SessionState is the snapshot published to observers. Values handed out by
// the session are copies; holding one never observes later transitions.
type SessionState struct {
	Phase       Phase
	MatchID     string
	LocalColor  protocol.Color
	Board       rules.Position
	Turn        protocol.Color
	MoveHistory []protocol.Move
	Clocks      Clocks
	Outcome     protocol.Outcome
	// Method says how the match ended: checkmate, stalemate, timeout, remote...
	Method string
	// PendingMove is the last local proposal not yet confirmed.
	PendingMove *protocol.Move
	// Version increases by one per published transition.
	Version uint64
}

// LastMove returns the most recent confirmed move.
func (s SessionState) LastMove() (protocol.Move, bool) {
	if len(s.MoveHistory) == 0 {
		return protocol.Move{}, false
	}
	return s.MoveHistory[len(s.MoveHistory)-1], true
}

// MyTurn reports whether the local player is to move in a running match.
func (s SessionState) MyTurn() bool {
	return s.Phase == PhaseInProgress && s.LocalColor != Unassigned && s.LocalColor == s.Turn
}

func (s SessionState) clone() SessionState {
	c := s
	c.MoveHistory = slices.Clone(s.MoveHistory)
	if s.PendingMove != nil {
		mv := *s.PendingMove
		c.PendingMove = &mv
	}
	return c
}

func sideOf(c protocol.Color) clock.Side {
	if c == protocol.Black {
		return clock.Black
	}
	return clock.White
}

func colorOf(s clock.Side) protocol.Color {
	if s == clock.Black {
		return protocol.Black
	}
	return protocol.White
}

func clocksFrom(t clock.Times) Clocks {
	c := Clocks{White: t.White.Milliseconds(), Black: t.Black.Milliseconds()}
	if t.Running != nil {
		c.Running = colorOf(*t.Running)
	}
	return c
}
