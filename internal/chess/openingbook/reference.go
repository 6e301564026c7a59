// Package openingbook holds the fixed opening reference lines shown next to
// the board.
package openingbook

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"

	"github.com/park285/Cheese-Desk/internal/chess"
)

// ItalianWhite is White's side of the Italian Game, one move per row.
var ItalianWhite = []string{
	"e2e4", "g1f3", "f1c4", "c2c3", "d2d3", "b1d2", "h2h3", "a2a4",
	"d1b3", "g2g4", "b3b7", "b7a8", "O-O", "d2b3", "c1e3", "d3e4",
}

// ItalianLine is the same game with both sides, in ply order.
var ItalianLine = []string{
	"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "f8c5", "c2c3", "g8f6",
	"d2d3", "d7d6", "b1d2", "c8g4", "h2h3", "g4h5", "a2a4", "a7a5",
	"d1b3", "h7h6", "g2g4", "h5g6", "b3b7", "d8d7", "b7a8", "O-O",
	"O-O", "d2b3", "c5a7", "c1e3", "g6e4", "d3e4",
}

const ItalianName = "Italian Game"

type Row struct {
	Number int
	White  string
	Black  string
}

// Reference is an immutable, pre-rendered opening line.
type Reference struct {
	name   string
	paired bool
	rows   []Row
	code   string
	title  string
}

// NewWhiteReference lists moves verbatim, one numbered row per move.
func NewWhiteReference(name string, moves []string) *Reference {
	rows := make([]Row, 0, len(moves))
	for i, mv := range moves {
		rows = append(rows, Row{Number: i + 1, White: strings.TrimSpace(mv)})
	}
	return &Reference{name: name, rows: rows}
}

// NewPairedReference replays moves from the initial position and renders
// each one in SAN. A coordinate entry made by the side not on move is shown
// as if that side were on move, and the replay carries on from there. Entries
// that name no piece, or castling that is not available, keep their raw text.
func NewPairedReference(name string, moves []string) *Reference {
	rp := newReplay()
	labels := make([]string, len(moves))
	for i, raw := range moves {
		labels[i] = strings.TrimSpace(raw)
		if san, ok := rp.play(labels[i]); ok {
			labels[i] = san
		}
	}

	rows := make([]Row, 0, (len(labels)+1)/2)
	for i := 0; i < len(labels); i += 2 {
		row := Row{Number: i/2 + 1, White: labels[i]}
		if i+1 < len(labels) {
			row.Black = labels[i+1]
		}
		rows = append(rows, row)
	}

	ref := &Reference{name: name, paired: true, rows: rows}
	ref.code, ref.title = rp.board.Opening(ECOBook())
	return ref
}

// replay tracks the display position of a reference line. board follows the
// line only while every entry is a legal move and feeds the ECO lookup.
type replay struct {
	board  *chess.Board
	pos    *nchess.Position
	synced bool
}

func newReplay() *replay {
	board := chess.NewBoard()
	return &replay{board: board, pos: board.Position(), synced: true}
}

func (r *replay) play(text string) (string, bool) {
	if isCastlingMarker(text) {
		mv, err := nchess.AlgebraicNotation{}.Decode(r.pos, strings.ReplaceAll(text, "0", "O"))
		if err != nil {
			return "", false
		}
		return r.advance(r.pos, mv, true), true
	}

	uci := strings.ToLower(text)
	bare, err := nchess.UCINotation{}.Decode(nil, uci)
	if err != nil {
		return "", false
	}
	piece := r.pos.Board().Piece(bare.S1())
	if piece == nchess.NoPiece {
		return "", false
	}
	pos := r.pos
	flipped := piece.Color() != pos.Turn()
	if flipped {
		pos = pos.Update(nil)
	}
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return "", false
	}
	return r.advance(pos, mv, !flipped && isValid(pos, mv)), true
}

// advance renders mv in pos and moves the display position on. Once the
// line has left legal play, check marks are dropped.
func (r *replay) advance(pos *nchess.Position, mv *nchess.Move, legal bool) string {
	if r.synced && legal {
		if _, err := r.board.Apply(chess.Move{From: mv.S1(), To: mv.S2(), Promo: mv.Promo()}); err != nil {
			r.synced = false
		}
	} else {
		r.synced = false
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if !r.synced {
		san = strings.TrimRight(san, "+#")
	}
	r.pos = pos.Update(mv)
	return san
}

func isValid(pos *nchess.Position, mv *nchess.Move) bool {
	for _, m := range pos.ValidMoves() {
		if m.S1() == mv.S1() && m.S2() == mv.S2() && m.Promo() == mv.Promo() {
			return true
		}
	}
	return false
}

func isCastlingMarker(s string) bool {
	switch strings.TrimRight(s, "+#") {
	case "O-O", "O-O-O", "0-0", "0-0-0":
		return true
	}
	return false
}

func (r *Reference) Name() string { return r.name }

// Title is the ECO classification of the replayed prefix, e.g.
// "C53 Italian Game: Classical Variation". Empty for single-side lists.
func (r *Reference) Title() string {
	if r.code == "" {
		return ""
	}
	return r.code + " " + r.title
}

func (r *Reference) ECO() (code, title string) { return r.code, r.title }

func (r *Reference) Rows() []Row {
	return append([]Row(nil), r.rows...)
}

// Format renders "1. e2e4\n" for single-side lists and "1. e4      e5\n"
// for paired lines.
func (r *Reference) Format() string {
	var sb strings.Builder
	for _, row := range r.rows {
		if r.paired {
			fmt.Fprintf(&sb, "%d. %-7s %s\n", row.Number, row.White, row.Black)
			continue
		}
		fmt.Fprintf(&sb, "%d. %s\n", row.Number, row.White)
	}
	return sb.String()
}

var defaultECO = opening.NewBookECO()

// ECOBook exposes the shared ECO table for callers that label live games.
func ECOBook() *opening.BookECO { return defaultECO }

var (
	// Italian is the single-side reference shown by default.
	Italian = NewWhiteReference(ItalianName, ItalianWhite)
	// ItalianPaired is the full two-sided line.
	ItalianPaired = NewPairedReference(ItalianName, ItalianLine)
)
