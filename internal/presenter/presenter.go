package presenter

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-chess-client/internal/msgcat"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/session"
	"github.com/park285/cheese-chess-client/pkg/chessdto"
)

// Presenter turns session snapshots into display text and DTOs.
type Presenter struct {
	cat *msgcat.Catalog
}

func New(cat *msgcat.Catalog) *Presenter {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	return &Presenter{cat: cat}
}

// Clock formats milliseconds as m:ss, rounding partial seconds down.
func Clock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func (p *Presenter) Side(c protocol.Color) string {
	switch c {
	case protocol.White:
		return p.cat.Text("side.white", nil, "White")
	case protocol.Black:
		return p.cat.Text("side.black", nil, "Black")
	}
	return ""
}

// MoveList numbers every ply from 1.
func (p *Presenter) MoveList(moves []protocol.Move) []string {
	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		data := map[string]any{"No": i + 1, "From": mv.From, "To": mv.To}
		out = append(out, p.cat.Text("move.line", data, fmt.Sprintf("%d. %s to %s", i+1, mv.From, mv.To)))
	}
	return out
}

// Result is the winner banner, empty while no outcome is set.
func (p *Presenter) Result(st session.SessionState) string {
	if st.Outcome == protocol.OutcomeNone {
		return ""
	}
	res := p.cat.Text("result."+string(st.Outcome), nil, string(st.Outcome))
	if st.Method == "" {
		return res
	}
	method := p.cat.Text("method."+st.Method, nil, st.Method)
	return p.cat.Text("result.with_method", map[string]any{"Result": res, "Method": method}, res+" ("+method+")")
}

// Status is the multi-line text view of a snapshot.
func (p *Presenter) Status(st session.SessionState) string {
	var sb strings.Builder
	phase := p.cat.Text("phase."+string(st.Phase), map[string]any{"Color": p.Side(st.LocalColor)}, string(st.Phase))
	sb.WriteString(phase)
	sb.WriteString("\n")

	if st.Phase != session.PhaseInProgress && st.Phase != session.PhaseGameOver {
		return strings.TrimRight(sb.String(), "\n")
	}

	// 상대 시계를 위에, 내 시계를 아래에
	top, bottom := protocol.Black, protocol.White
	if st.LocalColor == protocol.Black {
		top, bottom = protocol.White, protocol.Black
	}
	sb.WriteString(p.clockLine(st, top))
	sb.WriteString("\n")
	sb.WriteString(p.clockLine(st, bottom))
	sb.WriteString("\n")

	if st.Phase == session.PhaseInProgress {
		if st.MyTurn() {
			sb.WriteString(p.cat.Text("turn.mine", nil, "Your move"))
		} else {
			sb.WriteString(p.cat.Text("turn.theirs", nil, "Opponent to move"))
		}
		sb.WriteString("\n")
		if mv := st.PendingMove; mv != nil {
			sb.WriteString(p.cat.Text("move.pending", map[string]any{"From": mv.From, "To": mv.To}, "pending "+mv.UCI()))
			sb.WriteString("\n")
		}
	}

	moves := p.MoveList(st.MoveHistory)
	if len(moves) == 0 {
		sb.WriteString(p.cat.Text("move.empty", nil, "No moves yet"))
		sb.WriteString("\n")
	}
	for _, line := range moves {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if res := p.Result(st); res != "" {
		sb.WriteString(res)
		sb.WriteString("\n")
		if st.LocalColor != session.Unassigned && st.Outcome != protocol.OutcomeDraw {
			if st.Outcome == protocol.WinFor(st.LocalColor) {
				sb.WriteString(p.cat.Text("result.you_won", nil, "You won"))
			} else {
				sb.WriteString(p.cat.Text("result.you_lost", nil, "You lost"))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (p *Presenter) clockLine(st session.SessionState, c protocol.Color) string {
	ms := st.Clocks.White
	if c == protocol.Black {
		ms = st.Clocks.Black
	}
	data := map[string]any{"Side": p.Side(c), "Time": Clock(ms)}
	return p.cat.Text("clock.line", data, p.Side(c)+": "+Clock(ms))
}

// ToView maps a snapshot to its JSON DTO.
func (p *Presenter) ToView(clientID string, st session.SessionState) chessdto.SessionView {
	moves := make([]chessdto.Move, 0, len(st.MoveHistory))
	uci := make([]string, 0, len(st.MoveHistory))
	for _, mv := range st.MoveHistory {
		moves = append(moves, toDTOMove(mv))
		uci = append(uci, mv.UCI())
	}
	v := chessdto.SessionView{
		ClientID:   clientID,
		Version:    st.Version,
		Phase:      string(st.Phase),
		MatchID:    st.MatchID,
		LocalColor: string(st.LocalColor),
		Turn:       string(st.Turn),
		MyTurn:     st.MyTurn(),
		FEN:        st.Board.FEN(),
		Moves:      moves,
		MovesUCI:   uci,
		Clocks: chessdto.Clocks{
			WhiteMS: st.Clocks.White,
			BlackMS: st.Clocks.Black,
			Running: string(st.Clocks.Running),
			White:   Clock(st.Clocks.White),
			Black:   Clock(st.Clocks.Black),
		},
		Outcome:     string(st.Outcome),
		OutcomeMeta: st.Method,
		Result:      p.Result(st),
	}
	if st.PendingMove != nil {
		mv := toDTOMove(*st.PendingMove)
		v.Pending = &mv
	}
	return v
}

func toDTOMove(m protocol.Move) chessdto.Move {
	return chessdto.Move{From: m.From, To: m.To, Promotion: m.Promotion}
}
