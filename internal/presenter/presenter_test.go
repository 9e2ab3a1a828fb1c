package presenter

import (
	"strings"
	"testing"

	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/rules"
	"github.com/park285/cheese-chess-client/internal/session"
)

func TestClock(t *testing.T) {
	cases := map[int64]string{
		300_000: "5:00",
		299_001: "4:59",
		65_000:  "1:05",
		9_999:   "0:09",
		0:       "0:00",
		-5:      "0:00",
	}
	for ms, want := range cases {
		if got := Clock(ms); got != want {
			t.Fatalf("Clock(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestMoveList(t *testing.T) {
	p := New(nil)
	got := p.MoveList([]protocol.Move{{From: "e2", To: "e4"}, {From: "e7", To: "e5"}})
	if len(got) != 2 || got[0] != "1. e2 to e4" || got[1] != "2. e7 to e5" {
		t.Fatalf("move list = %q", got)
	}
}

func inProgress() session.SessionState {
	return session.SessionState{
		Phase:       session.PhaseInProgress,
		MatchID:     "m-1",
		LocalColor:  protocol.White,
		Board:       rules.NewEngine().Start(),
		Turn:        protocol.White,
		MoveHistory: []protocol.Move{},
		Clocks:      session.Clocks{White: 300_000, Black: 245_500, Running: protocol.White},
		Version:     7,
	}
}

func TestStatusInProgress(t *testing.T) {
	p := New(nil)
	st := inProgress()
	st.PendingMove = &protocol.Move{From: "e2", To: "e4"}
	out := p.Status(st)
	for _, want := range []string{"5:00", "4:05", "e2 to e4", p.Side(protocol.White)} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q:\n%s", want, out)
		}
	}
	lines := strings.Split(out, "\n")
	// opponent clock first for white
	if !strings.Contains(lines[1], "4:05") || !strings.Contains(lines[2], "5:00") {
		t.Fatalf("clock order wrong:\n%s", out)
	}
}

func TestResult(t *testing.T) {
	p := New(nil)
	st := inProgress()
	if p.Result(st) != "" {
		t.Fatalf("result before game over")
	}
	st.Phase = session.PhaseGameOver
	st.Outcome = protocol.OutcomeBlackWins
	st.Method = "timeout"
	res := p.Result(st)
	if !strings.Contains(res, "흑") || !strings.Contains(res, "시간 초과") {
		t.Fatalf("result = %q", res)
	}
	st.Method = "unknown_method"
	if res := p.Result(st); !strings.Contains(res, "unknown_method") {
		t.Fatalf("unknown method not passed through: %q", res)
	}
	if out := p.Status(st); !strings.Contains(out, "패배") {
		t.Fatalf("white should see a loss:\n%s", out)
	}
}

func TestToView(t *testing.T) {
	p := New(nil)
	st := inProgress()
	st.MoveHistory = []protocol.Move{{From: "e2", To: "e4"}}
	st.Turn = protocol.Black
	v := p.ToView("client-a", st)
	if v.ClientID != "client-a" || v.Phase != "in_progress" || v.Version != 7 {
		t.Fatalf("view = %+v", v)
	}
	if len(v.Moves) != 1 || v.MovesUCI[0] != "e2e4" || v.MyTurn {
		t.Fatalf("moves = %+v", v)
	}
	if v.Clocks.White != "5:00" || v.Clocks.BlackMS != 245_500 || v.Clocks.Running != "white" {
		t.Fatalf("clocks = %+v", v.Clocks)
	}
	if v.Pending != nil || v.Result != "" {
		t.Fatalf("unexpected pending/result")
	}
}
