package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/rules"
	"github.com/park285/cheese-chess-client/internal/session"
)

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func square(t *testing.T, s string) nchess.Square {
	t.Helper()
	sq, ok := rules.ParseSquare(s)
	if !ok {
		t.Fatalf("bad square %s", s)
	}
	return sq
}

func TestPieceGlyphsParse(t *testing.T) {
	for _, c := range []nchess.Color{nchess.White, nchess.Black} {
		for _, pt := range []nchess.PieceType{nchess.King, nchess.Queen, nchess.Rook, nchess.Bishop, nchess.Knight, nchess.Pawn} {
			img, err := renderPieceImage(nchess.NewPiece(pt, c), 32)
			if err != nil {
				t.Fatalf("glyph %v %v: %v", c, pt, err)
			}
			if img.Bounds().Dx() != 32 {
				t.Fatalf("glyph size = %v", img.Bounds())
			}
		}
	}
}

func TestOrientationAndHighlight(t *testing.T) {
	e := rules.NewEngine()
	pos, _, err := e.Apply(e.Start(), protocol.Move{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	board, err := rules.Board(pos)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	r := New()
	hl := &MoveHighlight{From: square(t, "e2"), To: square(t, "e4")}

	for _, flip := range []bool{false, true} {
		img, err := r.renderImage(board, Options{Flip: flip, Highlight: hl})
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		g := geometry{size: r.squareSize, origin: image.Point{X: sideMargin, Y: topMargin}, flip: flip}

		e4 := g.rect(square(t, "e4")).Min.Add(image.Pt(2, 2))
		if sameColor(img.At(e4.X, e4.Y), lightSquare) {
			t.Fatalf("flip=%v: e4 not highlighted", flip)
		}
		d5 := g.rect(square(t, "d5")).Min.Add(image.Pt(2, 2))
		if !sameColor(img.At(d5.X, d5.Y), lightSquare) {
			t.Fatalf("flip=%v: d5 should be a plain light square", flip)
		}
	}
}

func TestGeometryFlip(t *testing.T) {
	g := geometry{size: 10}
	if col, row := g.cell(square(t, "a1")); col != 0 || row != 7 {
		t.Fatalf("a1 white view = %d,%d", col, row)
	}
	g.flip = true
	if col, row := g.cell(square(t, "a1")); col != 7 || row != 0 {
		t.Fatalf("a1 black view = %d,%d", col, row)
	}
	if col, row := g.cell(square(t, "h8")); col != 0 || row != 7 {
		t.Fatalf("h8 black view = %d,%d", col, row)
	}
}

func TestRenderStatePNG(t *testing.T) {
	st := session.SessionState{
		Phase:       session.PhaseInProgress,
		LocalColor:  protocol.Black,
		Board:       rules.NewEngine().Start(),
		MoveHistory: nil,
	}
	b, err := New().RenderState(context.Background(), st, "흑: 5:00", "백: 5:00")
	if err != nil {
		t.Fatalf("RenderState: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := image.Rect(0, 0, 8*defaultSquareSize+2*sideMargin, 8*defaultSquareSize+topMargin+bottomMargin)
	if img.Bounds() != want {
		t.Fatalf("bounds = %v, want %v", img.Bounds(), want)
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().RenderPNG(ctx, nchess.NewGame().Position().Board(), Options{}); err == nil {
		t.Fatalf("cancelled render succeeded")
	}
	if _, err := New().RenderPNG(context.Background(), nil, Options{}); err == nil {
		t.Fatalf("nil board rendered")
	}
}
