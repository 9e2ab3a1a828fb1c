package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-client/internal/protocol"
)

var ErrIllegalMove = errors.New("illegal move")

// Position is an immutable board value. It keeps the UCI history from the
// initial position so repetition and fifty-move draws survive a rebuild.
type Position struct {
	fen   string
	moves []string
}

func (p Position) FEN() string { return p.fen }

// Moves returns a copy of the UCI history.
func (p Position) Moves() []string { return slices.Clone(p.moves) }

func (p Position) Ply() int { return len(p.moves) }

// Result describes the position after a move.
type Result struct {
	Terminal bool
	Outcome  protocol.Outcome
	Method   string
	SAN      string
	// Move is the move as applied, including a defaulted promotion.
	Move protocol.Move
}

// Engine applies confirmed moves with corentings/chess.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Start returns the standard initial position.
func (e *Engine) Start() Position {
	return Position{fen: nchess.NewGame().FEN()}
}

// Apply returns the position after mv. pos is left untouched.
// A pawn reaching the last rank without a promotion letter is promoted to a
// queen.
func (e *Engine) Apply(pos Position, mv protocol.Move) (Position, Result, error) {
	game, err := replay(pos.moves)
	if err != nil {
		return pos, Result{}, err
	}
	before := game.Position()

	uci := strings.ToLower(mv.UCI())
	if perr := game.PushNotationMove(uci, nchess.UCINotation{}, nil); perr != nil {
		if mv.Promotion != "" || !lastRank(mv.To) {
			return pos, Result{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, perr)
		}
		uci += "q"
		if qerr := game.PushNotationMove(uci, nchess.UCINotation{}, nil); qerr != nil {
			return pos, Result{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, qerr)
		}
	}

	next := Position{
		fen:   game.FEN(),
		moves: append(slices.Clip(pos.moves), uci),
	}
	res := Result{Move: protocol.Move{From: uci[0:2], To: uci[2:4], Promotion: uci[4:]}}
	if last := lastMove(game); last != nil {
		res.SAN = nchess.AlgebraicNotation{}.Encode(before, last)
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		res.Terminal, res.Outcome = true, protocol.OutcomeWhiteWins
	case nchess.BlackWon:
		res.Terminal, res.Outcome = true, protocol.OutcomeBlackWins
	case nchess.Draw:
		res.Terminal, res.Outcome = true, protocol.OutcomeDraw
	}
	if res.Terminal {
		res.Method = strings.ToLower(game.Method().String())
	}
	return next, res, nil
}

// PieceColor reports the color of the piece standing on square, if any.
func (e *Engine) PieceColor(pos Position, square string) (protocol.Color, bool) {
	sq, ok := parseSquare(square)
	if !ok {
		return "", false
	}
	game, err := replay(pos.moves)
	if err != nil {
		return "", false
	}
	piece := game.Position().Board().Piece(sq)
	if piece == nchess.NoPiece {
		return "", false
	}
	return colorFrom(piece.Color()), true
}

// Turn reports the side to move in pos.
func (e *Engine) Turn(pos Position) protocol.Color {
	if len(pos.moves)%2 == 0 {
		return protocol.White
	}
	return protocol.Black
}

// Board rebuilds the library board for rendering.
func Board(pos Position) (*nchess.Board, error) {
	game, err := replay(pos.moves)
	if err != nil {
		return nil, err
	}
	return game.Position().Board(), nil
}

func replay(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	return game, nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func parseSquare(s string) (nchess.Square, bool) {
	if !protocol.ValidSquare(s) {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

// ParseSquare is exported for renderers that highlight moves.
func ParseSquare(s string) (nchess.Square, bool) { return parseSquare(s) }

func lastRank(sq string) bool {
	return len(sq) == 2 && (sq[1] == '1' || sq[1] == '8')
}

func colorFrom(c nchess.Color) protocol.Color {
	if c == nchess.White {
		return protocol.White
	}
	return protocol.Black
}
