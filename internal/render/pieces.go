package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Glyph bodies on a 45x45 view box. FILL and STROKE are substituted per color.
var glyphBodies = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="6" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M 13 38 L 32 38 L 28 24 L 17 24 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Rook: `<path d="M 11 38 L 34 38 L 34 35 L 31 35 L 30 17 L 33 17 L 33 10 L 29 10 L 29 13 L 25 13 L 25 10 L 20 10 L 20 13 L 16 13 L 16 10 L 12 10 L 12 17 L 15 17 L 14 35 L 11 35 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Knight: `<path d="M 12 38 L 33 38 L 31 30 C 31 22 29 15 22 10 L 19 7 L 18 11 L 13 17 L 12 21 L 15 23 L 19 20 L 22 22 L 14 30 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="9" r="3" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M 22.5 12 C 16 16 15 23 18 30 L 27 30 C 30 23 29 16 22.5 12 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M 12 38 L 33 38 L 30 32 L 15 32 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Queen: `<path d="M 9 26 L 12 12 L 17 22 L 22.5 10 L 28 22 L 33 12 L 36 26 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M 11 38 L 34 38 L 33 27 L 12 27 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="12" cy="11" r="2" fill="FILL" stroke="STROKE" stroke-width="1"/>
<circle cx="22.5" cy="9" r="2" fill="FILL" stroke="STROKE" stroke-width="1"/>
<circle cx="33" cy="11" r="2" fill="FILL" stroke="STROKE" stroke-width="1"/>`,
	nchess.King: `<path d="M 21 4 L 24 4 L 24 8 L 28 8 L 28 11 L 24 11 L 24 15 L 21 15 L 21 11 L 17 11 L 17 8 L 21 8 Z" fill="FILL" stroke="STROKE" stroke-width="1"/>
<path d="M 11 38 L 34 38 L 36 22 C 30 16 15 16 9 22 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
}

func pieceSVG(piece nchess.Piece) (string, error) {
	body, ok := glyphBodies[piece.Type()]
	if !ok {
		return "", fmt.Errorf("no glyph for piece %v", piece)
	}
	fill, stroke := "#ffffff", "#000000"
	if piece.Color() == nchess.Black {
		fill, stroke = "#222222", "#000000"
	}
	body = strings.NewReplacer("FILL", fill, "STROKE", stroke).Replace(body)
	return `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">` + body + `</svg>`, nil
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	src, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}
