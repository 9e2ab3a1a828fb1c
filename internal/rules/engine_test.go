package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/park285/cheese-chess-client/internal/protocol"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func mustApply(t *testing.T, e *Engine, pos Position, from, to string) (Position, Result) {
	t.Helper()
	next, res, err := e.Apply(pos, protocol.Move{From: from, To: to})
	if err != nil {
		t.Fatalf("Apply %s%s: %v", from, to, err)
	}
	return next, res
}

func TestStartPosition(t *testing.T) {
	e := NewEngine()
	pos := e.Start()
	if pos.FEN() != startFEN {
		t.Fatalf("start fen = %q", pos.FEN())
	}
	if e.Turn(pos) != protocol.White || pos.Ply() != 0 {
		t.Fatalf("white must move first")
	}
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	e := NewEngine()
	start := e.Start()
	a, res := mustApply(t, e, start, "e2", "e4")
	if res.Terminal {
		t.Fatalf("1.e4 is not terminal")
	}
	if res.SAN != "e4" {
		t.Fatalf("san = %q", res.SAN)
	}
	b, _ := mustApply(t, e, start, "d2", "d4")

	if start.FEN() != startFEN || start.Ply() != 0 {
		t.Fatalf("start position mutated: %q", start.FEN())
	}
	if a.FEN() == b.FEN() {
		t.Fatalf("branches share state")
	}
	if !strings.Contains(a.FEN(), " b ") || e.Turn(a) != protocol.Black {
		t.Fatalf("black should be to move after 1.e4: %q", a.FEN())
	}
	if got := a.Moves(); len(got) != 1 || got[0] != "e2e4" {
		t.Fatalf("history = %v", got)
	}
}

func TestApplyIllegal(t *testing.T) {
	e := NewEngine()
	pos := e.Start()
	next, _, err := e.Apply(pos, protocol.Move{From: "e2", To: "e5"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if next.FEN() != pos.FEN() {
		t.Fatalf("illegal move changed the position")
	}
	// black piece while white is to move
	if _, _, err := e.Apply(pos, protocol.Move{From: "e7", To: "e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("out-of-turn move accepted: %v", err)
	}
}

func TestFoolsMateIsTerminal(t *testing.T) {
	e := NewEngine()
	pos := e.Start()
	pos, _ = mustApply(t, e, pos, "f2", "f3")
	pos, _ = mustApply(t, e, pos, "e7", "e5")
	pos, _ = mustApply(t, e, pos, "g2", "g4")
	_, res := mustApply(t, e, pos, "d8", "h4")
	if !res.Terminal || res.Outcome != protocol.OutcomeBlackWins {
		t.Fatalf("expected black mate, got %+v", res)
	}
	if res.Method != "checkmate" {
		t.Fatalf("method = %q", res.Method)
	}
}

func TestAutoQueen(t *testing.T) {
	e := NewEngine()
	pos := e.Start()
	for _, mv := range [][2]string{
		{"h2", "h4"}, {"g7", "g5"},
		{"h4", "g5"}, {"g8", "f6"},
		{"g5", "g6"}, {"f6", "e4"},
		{"g6", "g7"}, {"e4", "d6"},
	} {
		pos, _ = mustApply(t, e, pos, mv[0], mv[1])
	}
	next, res := mustApply(t, e, pos, "g7", "h8")
	moves := next.Moves()
	if moves[len(moves)-1] != "g7h8q" {
		t.Fatalf("promotion not defaulted to queen: %v", moves)
	}
	if res.Move.UCI() != "g7h8q" {
		t.Fatalf("applied move = %+v", res.Move)
	}
}

func TestPieceColor(t *testing.T) {
	e := NewEngine()
	pos := e.Start()
	if c, ok := e.PieceColor(pos, "e2"); !ok || c != protocol.White {
		t.Fatalf("e2 = %v %v", c, ok)
	}
	if c, ok := e.PieceColor(pos, "e7"); !ok || c != protocol.Black {
		t.Fatalf("e7 = %v %v", c, ok)
	}
	if _, ok := e.PieceColor(pos, "e4"); ok {
		t.Fatalf("e4 should be empty")
	}
	if _, ok := e.PieceColor(pos, "x9"); ok {
		t.Fatalf("invalid square reported a piece")
	}
}
