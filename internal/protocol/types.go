package protocol

import (
	"errors"
	"strings"
)

// Wire type tags shared with the game service.
const (
	TypeInitGame = "init_game"
	TypeMove     = "move"
	TypeGameOver = "game_over"
)

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side. The zero Color has no opponent.
func (c Color) Opponent() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return ""
	}
}

// Outcome is the terminal result of a match.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeWhiteWins Outcome = "white_wins"
	OutcomeBlackWins Outcome = "black_wins"
	OutcomeDraw      Outcome = "draw"
)

// WinFor returns the outcome in which c wins.
func WinFor(c Color) Outcome {
	switch c {
	case White:
		return OutcomeWhiteWins
	case Black:
		return OutcomeBlackWins
	default:
		return OutcomeNone
	}
}

// Move is a from/to pair in algebraic coordinates, with an optional
// promotion piece letter (q, r, b, n).
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the move in long algebraic form, e.g. e7e8q.
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}

// Kind tags the closed set of inbound events.
type Kind int

const (
	KindMalformed Kind = iota
	KindMatchStarted
	KindMoveConfirmed
	KindMatchEnded
)

func (k Kind) String() string {
	switch k {
	case KindMatchStarted:
		return "match_started"
	case KindMoveConfirmed:
		return "move_confirmed"
	case KindMatchEnded:
		return "match_ended"
	default:
		return "malformed"
	}
}

// Event is one decoded inbound frame.
type Event struct {
	Kind Kind
	// Type is the raw tag as received, kept for diagnostics.
	Type string

	// MatchStarted: local color. MoveConfirmed: asserted mover, may be empty.
	Color Color
	// MatchStarted only, optional.
	MatchID       string
	InitialMillis int64

	Move    Move
	Outcome Outcome

	// Err explains why a frame is KindMalformed.
	Err error
}

var (
	ErrBadFrame    = errors.New("frame is not a json object")
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("invalid payload")
)

// ValidSquare reports whether s is a board coordinate such as "e4".
func ValidSquare(s string) bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func validPromotion(p string) bool {
	switch p {
	case "", "q", "r", "b", "n":
		return true
	default:
		return false
	}
}

// ParseColor accepts "white"/"black" and their one-letter forms.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return "", false
	}
}

// ParseOutcome is lenient: the service has sent bare winners ("white"),
// phrases ("White wins") and PGN results ("1-0") over time.
func ParseOutcome(s string) (Outcome, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	switch v {
	case "white_wins", "whitewins", "white_won", "white", "w", "1_0":
		return OutcomeWhiteWins, true
	case "black_wins", "blackwins", "black_won", "black", "b", "0_1":
		return OutcomeBlackWins, true
	case "draw", "1/2_1/2", "stalemate":
		return OutcomeDraw, true
	default:
		return OutcomeNone, false
	}
}
