package chess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
)

// Geometry places the board inside a rendered snapshot.
type Geometry struct {
	SquareSize int
	Origin     image.Point
}

func DefaultGeometry() Geometry {
	return Geometry{SquareSize: 64, Origin: image.Pt(32, 96)}
}

func (g Geometry) BoardRect() image.Rectangle {
	side := g.SquareSize * 8
	return image.Rect(g.Origin.X, g.Origin.Y, g.Origin.X+side, g.Origin.Y+side)
}

// Bounds is the full image: the board plus margins, with the HUD above it.
func (g Geometry) Bounds() image.Rectangle {
	b := g.BoardRect()
	return image.Rect(0, 0, b.Max.X+g.Origin.X, b.Max.Y+g.Origin.X)
}

// SquareRect is the pixel area of sq with White at the bottom.
func (g Geometry) SquareRect(sq nchess.Square) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	x := g.Origin.X + col*g.SquareSize
	y := g.Origin.Y + row*g.SquareSize
	return image.Rect(x, y, x+g.SquareSize, y+g.SquareSize)
}

// SquareAt maps a pixel to the square under it.
func (g Geometry) SquareAt(x, y int) (nchess.Square, bool) {
	if g.SquareSize <= 0 || !image.Pt(x, y).In(g.BoardRect()) {
		return nchess.NoSquare, false
	}
	col := (x - g.Origin.X) / g.SquareSize
	row := (y - g.Origin.Y) / g.SquareSize
	return nchess.NewSquare(nchess.File(col), nchess.Rank(7-row)), true
}

type MoveHighlight struct {
	From nchess.Square
	To   nchess.Square
}

type SquareMarker struct {
	Square nchess.Square
}

type RenderOptions struct {
	LastMove *MoveHighlight
	Selected *SquareMarker
	Header   string
	Turn     string
}

// RenderOptionsFor builds highlight options from a coordinator snapshot.
func RenderOptionsFor(snap Snapshot, header, turn string) RenderOptions {
	opts := RenderOptions{Header: header, Turn: turn}
	if snap.HasLast {
		opts.LastMove = &MoveHighlight{From: snap.LastMove.From, To: snap.LastMove.To}
	}
	if snap.Selected != nchess.NoSquare {
		opts.Selected = &SquareMarker{Square: snap.Selected}
	}
	return opts
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, board *corechess.Board, opts RenderOptions) ([]byte, error)
	Geometry() Geometry
}

type svgBoardRenderer struct {
	geom   Geometry
	pieces *pieceCache
	face   font.Face
}

// NewSVGBoardRenderer renders with geom, or DefaultGeometry when geom is zero.
func NewSVGBoardRenderer(geom Geometry) BoardRenderer {
	if geom.SquareSize <= 0 {
		geom = DefaultGeometry()
	}
	return &svgBoardRenderer{geom: geom, pieces: newPieceCache(), face: basicfont.Face7x13}
}

func (r *svgBoardRenderer) Geometry() Geometry { return r.geom }

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, board *corechess.Board, opts RenderOptions) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cv := &canvas{img: image.NewRGBA(r.geom.Bounds()), geom: r.geom, face: r.face}
	imagedraw.Draw(cv.img, cv.img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	cv.hud(opts, MaterialOf(board))
	cv.squares()
	if err := cv.pieces(board, r.pieces); err != nil {
		return nil, err
	}
	if opts.LastMove != nil {
		cv.lastMove(board, *opts.LastMove)
	}
	if opts.Selected != nil {
		cv.overlay(opts.Selected.Square, selectionColor)
	}
	cv.coordinates()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, cv.img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// MaterialScore is the conventional piece value held by each side.
type MaterialScore struct {
	White int
	Black int
}

func (m MaterialScore) Diff() int { return m.White - m.Black }

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

func MaterialOf(board *corechess.Board) MaterialScore {
	var m MaterialScore
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		p := board.PieceAt(sq)
		if p == nchess.NoPiece {
			continue
		}
		switch p.Color() {
		case nchess.White:
			m.White += pieceValues[p.Type()]
		case nchess.Black:
			m.Black += pieceValues[p.Type()]
		}
	}
	return m
}

var (
	backgroundColor     = color.RGBA{R: 22, G: 24, B: 36, A: 255}
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	selectionColor      = color.NRGBA{R: 96, G: 200, B: 120, A: 130}
	whiteMoveFill       = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow      = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	hudPanelColor       = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTurnPanelColor   = color.NRGBA{R: 40, G: 44, B: 64, A: 245}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextSecondary    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

const (
	panelHeight  = 28
	panelGap     = 10
	panelRadius  = 8
	panelPadding = 16
)

type canvas struct {
	img  *image.RGBA
	geom Geometry
	face font.Face
}

func (c *canvas) squares() {
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		clr := lightSquare
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			clr = darkSquare
		}
		imagedraw.Draw(c.img, c.geom.SquareRect(sq), image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
}

func (c *canvas) pieces(board *corechess.Board, cache *pieceCache) error {
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		piece := board.PieceAt(sq)
		if piece == nchess.NoPiece {
			continue
		}
		icon, err := cache.get(piece, c.geom.SquareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(c.img, c.geom.SquareRect(sq), icon, image.Point{}, imagedraw.Over)
	}
	return nil
}

// lastMove fills both squares for a White move and draws an arrow for Black.
func (c *canvas) lastMove(board *corechess.Board, hl MoveHighlight) {
	mover := nchess.NoColor
	if p := board.PieceAt(hl.To); p != nchess.NoPiece {
		mover = p.Color()
	}
	if mover == nchess.White {
		c.overlay(hl.From, whiteMoveFill)
		c.overlay(hl.To, whiteMoveFill)
		return
	}
	c.arrow(hl.From, hl.To, blackMoveArrow)
}

func (c *canvas) overlay(sq nchess.Square, clr color.Color) {
	imagedraw.Draw(c.img, c.geom.SquareRect(sq), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func (c *canvas) arrow(from, to nchess.Square, clr color.Color) {
	if from == to {
		return
	}
	size := float64(c.geom.SquareSize)
	start := centerOf(c.geom.SquareRect(from))
	end := centerOf(c.geom.SquareRect(to))
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	shaft := length - size*0.45
	if shaft < size*0.35 {
		shaft = length * 0.6
	}
	half := size * 0.12
	head := size * 0.22
	base := pointF{X: start.X + dirX*shaft, Y: start.Y + dirY*shaft}

	a := pointF{X: start.X - perpX*half, Y: start.Y - perpY*half}
	b := pointF{X: start.X + perpX*half, Y: start.Y + perpY*half}
	bb := pointF{X: base.X + perpX*half, Y: base.Y + perpY*half}
	ab := pointF{X: base.X - perpX*half, Y: base.Y - perpY*half}
	c.triangle(a, b, bb, clr)
	c.triangle(a, bb, ab, clr)
	c.triangle(end,
		pointF{X: base.X - perpX*head, Y: base.Y - perpY*head},
		pointF{X: base.X + perpX*head, Y: base.Y + perpY*head},
		clr)
}

// hud draws the header and material panels on one row and the turn panel
// centred below them.
func (c *canvas) hud(opts RenderOptions, material MaterialScore) {
	board := c.geom.BoardRect()
	d := &font.Drawer{Dst: c.img, Face: c.face}

	header := strings.TrimSpace(opts.Header)
	if header == "" {
		header = "White vs Black"
	}
	turn := strings.TrimSpace(opts.Turn)
	score := "0"
	if diff := material.Diff(); diff != 0 {
		score = fmt.Sprintf("%+d", diff)
	}

	turnBottom := board.Min.Y - panelGap
	turnTop := turnBottom - panelHeight
	rowBottom := turnTop - panelGap
	rowTop := rowBottom - panelHeight

	scoreW := d.MeasureString(score).Round() + panelPadding*2
	scoreRect := image.Rect(board.Max.X-scoreW, rowTop, board.Max.X, rowBottom)
	headerMax := board.Dx() - scoreW - panelGap
	headerW := d.MeasureString(header).Round() + panelPadding*2
	if headerW > headerMax {
		headerW = headerMax
	}
	headerRect := image.Rect(board.Min.X, rowTop, board.Min.X+headerW, rowBottom)

	c.panel(headerRect, hudPanelColor)
	c.panel(scoreRect, hudPanelColor)
	c.centered(d, headerRect, truncateWithEllipsis(c.face, header, headerRect.Dx()-panelPadding*2), hudTextPrimary)
	c.centered(d, scoreRect, score, hudTextPrimary)

	if turn == "" {
		return
	}
	turnW := d.MeasureString(turn).Round() + panelPadding*2
	if turnW > board.Dx() {
		turnW = board.Dx()
	}
	left := board.Min.X + (board.Dx()-turnW)/2
	turnRect := image.Rect(left, turnTop, left+turnW, turnBottom)
	c.panel(turnRect, hudTurnPanelColor)
	c.centered(d, turnRect, truncateWithEllipsis(c.face, turn, turnRect.Dx()-panelPadding*2), hudTextSecondary)
}

func (c *canvas) coordinates() {
	d := &font.Drawer{Dst: c.img, Face: c.face, Src: image.NewUniform(coordinateTextColor)}
	ascent := c.face.Metrics().Ascent.Ceil()
	board := c.geom.BoardRect()
	for i := 0; i < 8; i++ {
		rank := nchess.NewSquare(nchess.FileA, nchess.Rank(i))
		r := c.geom.SquareRect(rank)
		drawTextAt(d, nchess.Rank(i).String(), board.Min.X-c.geom.Origin.X/2, r.Min.Y+r.Dy()/2+ascent/2)

		file := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		f := c.geom.SquareRect(file)
		drawTextAt(d, nchess.File(i).String(), f.Min.X+f.Dx()/2, board.Max.Y+ascent+4)
	}
}

func (c *canvas) panel(rect image.Rectangle, clr color.Color) {
	if rect.Empty() {
		return
	}
	radius := panelRadius
	if half := rect.Dy() / 2; radius > half {
		radius = half
	}
	fill := image.NewUniform(clr)
	imagedraw.Draw(c.img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(c.img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(c.img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	corners := []image.Point{
		{X: rect.Min.X + radius, Y: rect.Min.Y + radius},
		{X: rect.Max.X - radius - 1, Y: rect.Min.Y + radius},
		{X: rect.Min.X + radius, Y: rect.Max.Y - radius - 1},
		{X: rect.Max.X - radius - 1, Y: rect.Max.Y - radius - 1},
	}
	for _, center := range corners {
		c.quarterDisc(center, radius, rect, clr)
	}
}

// quarterDisc fills the part of a disc that lies in a corner of rect and
// outside the panel's straight sections.
func (c *canvas) quarterDisc(center image.Point, radius int, rect image.Rectangle, clr color.Color) {
	inner := image.Rect(rect.Min.X+radius, rect.Min.Y+radius, rect.Max.X-radius, rect.Max.Y-radius)
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			p := image.Pt(center.X+x, center.Y+y)
			if x*x+y*y > radius*radius || !p.In(rect) {
				continue
			}
			if p.X >= inner.Min.X && p.X < inner.Max.X || p.Y >= inner.Min.Y && p.Y < inner.Max.Y {
				continue
			}
			c.blend(p.X, p.Y, clr)
		}
	}
}

func (c *canvas) centered(d *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	m := d.Face.Metrics()
	x := rect.Min.X + (rect.Dx()-d.MeasureString(text).Round())/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	d.Src = image.NewUniform(clr)
	d.Dot = fixed.P(x, rect.Min.Y+(rect.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2)
	d.DrawString(text)
}

func drawTextAt(d *font.Drawer, text string, centerX, baseline int) {
	d.Dot = fixed.P(centerX-d.MeasureString(text).Round()/2, baseline)
	d.DrawString(text)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	text = strings.TrimSpace(text)
	if text == "" || maxWidth <= 0 {
		return ""
	}
	d := font.Drawer{Face: face}
	if d.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if candidate := string(runes) + "..."; d.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ""
}

type pointF struct {
	X float64
	Y float64
}

func centerOf(r image.Rectangle) pointF {
	return pointF{X: float64(r.Min.X) + float64(r.Dx())/2, Y: float64(r.Min.Y) + float64(r.Dy())/2}
}

func (c *canvas) triangle(a, b, p pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, p.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, p.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, p.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, p.Y))))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if inTriangle(float64(x)+0.5, float64(y)+0.5, a, b, p) {
				c.blend(x, y, clr)
			}
		}
	}
}

func inTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}

// blend composites clr over one pixel.
func (c *canvas) blend(x, y int, clr color.Color) {
	if !image.Pt(x, y).In(c.img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := c.img.RGBAAt(x, y)
	inv := 0xffff - sa
	mix := func(s uint32, d uint8) uint8 {
		return uint8((s + uint32(d)*0x101*inv/0xffff) >> 8)
	}
	c.img.SetRGBA(x, y, color.RGBA{
		R: mix(sr, dst.R),
		G: mix(sg, dst.G),
		B: mix(sb, dst.B),
		A: mix(sa, dst.A),
	})
}
