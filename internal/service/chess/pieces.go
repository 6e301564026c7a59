package chess

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

type pieceKey struct {
	piece nchess.Piece
	size  int
}

// pieceCache rasterises piece icons once per size. Each renderer owns one.
type pieceCache struct {
	mu     sync.RWMutex
	images map[pieceKey]image.Image
}

func newPieceCache() *pieceCache {
	return &pieceCache{images: make(map[pieceKey]image.Image)}
}

func (c *pieceCache) get(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceKey{piece: piece, size: size}

	c.mu.RLock()
	img, ok := c.images[key]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}

	img, err := rasterisePiece(piece, size)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.images[key] = img
	c.mu.Unlock()
	return img, nil
}

func (c *pieceCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

func rasterisePiece(piece nchess.Piece, size int) (image.Image, error) {
	name := pieceAssetName(piece)
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)
	return img, nil
}

func pieceAssetName(piece nchess.Piece) string {
	prefix := "b"
	if piece.Color() == nchess.White {
		prefix = "w"
	}
	var suffix string
	switch piece.Type() {
	case nchess.King:
		suffix = "K"
	case nchess.Queen:
		suffix = "Q"
	case nchess.Rook:
		suffix = "R"
	case nchess.Bishop:
		suffix = "B"
	case nchess.Knight:
		suffix = "N"
	default:
		suffix = "P"
	}
	return "assets/pieces/" + prefix + suffix + ".svg"
}

// sanitizeSVG normalises style spellings oksvg rejects.
func sanitizeSVG(svg []byte) []byte {
	r := strings.NewReplacer(
		"fill:000000", "fill:#000000",
		"fill: 000000", "fill:#000000",
		"stroke: 000000", "stroke:#000000",
		"fill: #", "fill:#",
		"stroke: #", "stroke:#",
		"stop-color: #", "stop-color:#",
	)
	return []byte(r.Replace(string(svg)))
}
