package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/rules"
	"github.com/park285/cheese-chess-client/internal/session"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type MoveHighlight struct {
	From nchess.Square
	To   nchess.Square
}

type Options struct {
	// Flip draws the board from Black's side.
	Flip      bool
	Highlight *MoveHighlight
	Header    string
	Footer    string
}

const (
	defaultSquareSize = 64
	sideMargin        = 28
	topMargin         = 56
	bottomMargin      = 60
	panelHeight       = 28
	panelRadius       = 8
	panelPaddingX     = 16
)

var (
	lightSquare               = color.RGBA{233, 207, 163, 255}
	darkSquare                = color.RGBA{187, 136, 96, 255}
	backgroundColor           = color.RGBA{24, 26, 38, 255}
	whiteMoveHighlightFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveHighlightArrow   = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	neutralMoveHighlightArrow = color.NRGBA{R: 182, G: 184, B: 190, A: 140}
	hudPanelColor             = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTextPrimary            = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordinateTextColor       = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// Renderer draws boards as PNG images. It is safe for concurrent use.
type Renderer struct {
	squareSize int
	face       font.Face
}

func New() *Renderer {
	return &Renderer{squareSize: defaultSquareSize, face: basicfont.Face7x13}
}

// RenderState draws the snapshot's board oriented to the local color with
// the last confirmed move highlighted.
func (r *Renderer) RenderState(ctx context.Context, st session.SessionState, header, footer string) ([]byte, error) {
	board, err := rules.Board(st.Board)
	if err != nil {
		return nil, fmt.Errorf("rebuild board: %w", err)
	}
	opts := Options{
		Flip:   st.LocalColor == protocol.Black,
		Header: header,
		Footer: footer,
	}
	if last, ok := st.LastMove(); ok {
		from, okFrom := rules.ParseSquare(last.From)
		to, okTo := rules.ParseSquare(last.To)
		if okFrom && okTo {
			opts.Highlight = &MoveHighlight{From: from, To: to}
		}
	}
	return r.RenderPNG(ctx, board, opts)
}

func (r *Renderer) RenderPNG(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := r.renderImage(board, opts)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

func (r *Renderer) renderImage(board *nchess.Board, opts Options) (*image.RGBA, error) {
	if board == nil {
		return nil, errors.New("board is nil")
	}
	g := geometry{
		size:   r.squareSize,
		origin: image.Point{X: sideMargin, Y: topMargin},
		flip:   opts.Flip,
	}
	boardSize := g.size * 8
	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawSquares(img, g)
	if err := drawPieces(img, board, g); err != nil {
		return nil, err
	}
	drawHighlight(img, board, opts.Highlight, g)
	r.drawCoordinates(img, g)
	boardRect := image.Rect(g.origin.X, g.origin.Y, g.origin.X+boardSize, g.origin.Y+boardSize)
	r.drawHUD(img, boardRect, opts)
	return img, nil
}

// geometry maps squares to pixels for one orientation.
type geometry struct {
	size   int
	origin image.Point
	flip   bool
}

func (g geometry) cell(sq nchess.Square) (col, row int) {
	file, rank := int(sq.File()), int(sq.Rank())
	if g.flip {
		return 7 - file, rank
	}
	return file, 7 - rank
}

func (g geometry) rect(sq nchess.Square) image.Rectangle {
	col, row := g.cell(sq)
	x := g.origin.X + col*g.size
	y := g.origin.Y + row*g.size
	return image.Rect(x, y, x+g.size, y+g.size)
}

func (g geometry) center(sq nchess.Square) image.Point {
	r := g.rect(sq)
	return image.Point{X: r.Min.X + g.size/2, Y: r.Min.Y + g.size/2}
}

func allSquares(fn func(nchess.Square)) {
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			fn(nchess.NewSquare(file, rank))
		}
	}
}

func drawSquares(dst imagedraw.Image, g geometry) {
	allSquares(func(sq nchess.Square) {
		imagedraw.Draw(dst, g.rect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
	})
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, g geometry) error {
	var firstErr error
	allSquares(func(sq nchess.Square) {
		if firstErr != nil {
			return
		}
		piece := board.Piece(sq)
		if piece == nchess.NoPiece {
			return
		}
		img, err := renderPieceImage(piece, g.size)
		if err != nil {
			firstErr = err
			return
		}
		imagedraw.Draw(dst, g.rect(sq), img, image.Point{}, imagedraw.Over)
	})
	return firstErr
}

// 백의 수는 칸 채우기, 흑의 수는 화살표
func drawHighlight(img *image.RGBA, board *nchess.Board, highlight *MoveHighlight, g geometry) {
	if highlight == nil {
		return
	}
	switch moverColor, ok := moveHighlightMoverColor(board, highlight); {
	case ok && moverColor == nchess.Black:
		drawArrow(img, highlight.From, highlight.To, g, blackMoveHighlightArrow)
	case ok && moverColor == nchess.White:
		drawSquareOverlay(img, g.rect(highlight.From), whiteMoveHighlightFill)
		drawSquareOverlay(img, g.rect(highlight.To), whiteMoveHighlightFill)
	default:
		drawArrow(img, highlight.From, highlight.To, g, neutralMoveHighlightArrow)
	}
}

func moveHighlightMoverColor(board *nchess.Board, highlight *MoveHighlight) (nchess.Color, bool) {
	if board == nil || highlight == nil {
		return nchess.NoColor, false
	}
	if piece := board.Piece(highlight.To); piece != nchess.NoPiece {
		return piece.Color(), true
	}
	if piece := board.Piece(highlight.From); piece != nchess.NoPiece {
		return piece.Color(), true
	}
	return nchess.NoColor, false
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawArrow(img *image.RGBA, from, to nchess.Square, g geometry, clr color.Color) {
	if from == to {
		return
	}
	start, end := g.center(from), g.center(to)

	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	size := float64(g.size)
	baseLength := length - size*0.45
	if baseLength < size*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := size * 0.18
	headWidth := size * 0.32

	baseX := float64(start.X) + dirX*baseLength
	baseY := float64(start.Y) + dirY*baseLength

	fillQuad(img,
		pointF{X: float64(start.X) - perpX*halfWidth, Y: float64(start.Y) - perpY*halfWidth},
		pointF{X: float64(start.X) + perpX*halfWidth, Y: float64(start.Y) + perpY*halfWidth},
		pointF{X: baseX + perpX*halfWidth, Y: baseY + perpY*halfWidth},
		pointF{X: baseX - perpX*halfWidth, Y: baseY - perpY*halfWidth},
		clr,
	)
	fillTriangleF(img,
		pointF{X: float64(end.X), Y: float64(end.Y)},
		pointF{X: baseX - perpX*headWidth/2, Y: baseY - perpY*headWidth/2},
		pointF{X: baseX + perpX*headWidth/2, Y: baseY + perpY*headWidth/2},
		clr,
	)
}

func (r *Renderer) drawCoordinates(dst imagedraw.Image, g geometry) {
	drawer := &font.Drawer{Dst: dst, Face: r.face, Src: image.NewUniform(coordinateTextColor)}
	ascent := r.face.Metrics().Ascent.Ceil()
	boardBottom := g.origin.Y + 8*g.size

	for i := 0; i < 8; i++ {
		file := nchess.File(i)
		rank := nchess.Rank(i)
		fc := g.center(nchess.NewSquare(file, nchess.Rank1))
		drawCenteredText(drawer, file.String(), fc.X, boardBottom+ascent+2)
		rc := g.center(nchess.NewSquare(nchess.FileA, rank))
		drawCenteredText(drawer, rank.String(), g.origin.X-sideMargin/2, rc.Y+ascent/2)
	}
}

func (r *Renderer) drawHUD(img *image.RGBA, boardRect image.Rectangle, opts Options) {
	drawer := &font.Drawer{Dst: img, Face: r.face}
	if header := strings.TrimSpace(opts.Header); header != "" {
		bottom := boardRect.Min.Y - 14
		rect := r.panelRect(drawer, header, boardRect, bottom-panelHeight, bottom)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, truncateWithEllipsis(r.face, header, rect.Dx()-panelPaddingX*2), hudTextPrimary)
	}
	if footer := strings.TrimSpace(opts.Footer); footer != "" {
		top := boardRect.Max.Y + 24
		rect := r.panelRect(drawer, footer, boardRect, top, top+panelHeight)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, truncateWithEllipsis(r.face, footer, rect.Dx()-panelPaddingX*2), hudTextPrimary)
	}
}

func (r *Renderer) panelRect(drawer *font.Drawer, text string, boardRect image.Rectangle, top, bottom int) image.Rectangle {
	width := drawer.MeasureString(text).Round() + panelPaddingX*2
	if width > boardRect.Dx() {
		width = boardRect.Dx()
	}
	left := boardRect.Min.X + (boardRect.Dx()-width)/2
	return image.Rect(left, top, left+width, bottom)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}
	ellipsis := "..."
	if drawer.MeasureString(ellipsis).Round() > maxWidth {
		return ""
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	maxRadius := rect.Dx() / 2
	if r := rect.Dy() / 2; r < maxRadius {
		maxRadius = r
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius <= 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	core := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	imagedraw.Draw(img, core, fill, image.Point{}, imagedraw.Over)
	left := image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius)
	imagedraw.Draw(img, left, fill, image.Point{}, imagedraw.Over)
	right := image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius)
	imagedraw.Draw(img, right, fill, image.Point{}, imagedraw.Over)

	for _, center := range []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	} {
		drawQuarterDisc(img, center, radius, rect, clr)
	}
}

// drawQuarterDisc fills the part of the disc outside the already painted
// cross so corner pixels are blended once.
func drawQuarterDisc(img *image.RGBA, center image.Point, radius int, rect image.Rectangle, clr color.Color) {
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			px, py := center.X+x, center.Y+y
			inCore := px >= rect.Min.X+radius && px < rect.Max.X-radius
			inSides := py >= rect.Min.Y+radius && py < rect.Max.Y-radius
			if inCore || inSides || !(image.Point{X: px, Y: py}).In(rect) {
				continue
			}
			blendPixel(img, px, py, clr)
		}
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	// premultiplied over: out = src + dst*(1-srcA)
	inv := 1 - float64(sa)/0xffff
	img.SetRGBA(x, y, color.RGBA{
		R: floatToUint8(float64(sr>>8) + float64(dst.R)*inv),
		G: floatToUint8(float64(sg>>8) + float64(dst.G)*inv),
		B: floatToUint8(float64(sb>>8) + float64(dst.B)*inv),
		A: floatToUint8(float64(sa>>8) + float64(dst.A)*inv),
	})
}

func floatToUint8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

type pointF struct {
	X float64
	Y float64
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF, clr color.Color) {
	fillTriangleF(img, p0, p1, p2, clr)
	fillTriangleF(img, p0, p2, p3, clr)
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func pointInTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	gamma := 1 - alpha - beta
	return alpha >= 0 && beta >= 0 && gamma >= 0
}
