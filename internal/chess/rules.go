package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ErrBadCoordinate = errors.New("malformed coordinate move")
	ErrIllegal       = errors.New("move not legal in position")
)

// Terminal reports why a position admits no further play.
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalCheckmate
	TerminalStalemate
	TerminalDraw
	TerminalResignation
)

func (t Terminal) String() string {
	switch t {
	case TerminalCheckmate:
		return "checkmate"
	case TerminalStalemate:
		return "stalemate"
	case TerminalDraw:
		return "draw"
	case TerminalResignation:
		return "resignation"
	default:
		return "none"
	}
}

// Move is an origin/destination pair with an optional promotion piece.
// It only has meaning relative to the Board it was validated against.
type Move struct {
	From  nchess.Square
	To    nchess.Square
	Promo nchess.PieceType
}

func (m Move) UCI() string {
	return m.From.String() + m.To.String() + promoLetter(m.Promo)
}

func (m Move) String() string { return m.UCI() }

func (m Move) WithPromo(pt nchess.PieceType) Move {
	m.Promo = pt
	return m
}

// ParseCoordinate parses "e2e4" or "a7a8q". Legality is not checked.
func ParseCoordinate(s string) (Move, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	if len(text) != 4 && len(text) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	from, ok := ParseSquare(text[0:2])
	if !ok {
		return Move{}, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	to, ok := ParseSquare(text[2:4])
	if !ok {
		return Move{}, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	mv := Move{From: from, To: to, Promo: nchess.NoPieceType}
	if len(text) == 5 {
		pt, ok := PromotionFromLetter(text[4:])
		if !ok {
			return Move{}, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
		}
		mv.Promo = pt
	}
	return mv, nil
}

func ParseSquare(s string) (nchess.Square, bool) {
	text := strings.ToLower(strings.TrimSpace(s))
	if len(text) != 2 {
		return nchess.NoSquare, false
	}
	f, r := text[0], text[1]
	if f < 'a' || f > 'h' || r < '1' || r > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(f-'a'), nchess.Rank(r-'1')), true
}

// PromotionFromLetter accepts q/r/b/n in either case.
func PromotionFromLetter(s string) (nchess.PieceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "q", "queen":
		return nchess.Queen, true
	case "r", "rook":
		return nchess.Rook, true
	case "b", "bishop":
		return nchess.Bishop, true
	case "n", "knight":
		return nchess.Knight, true
	}
	return nchess.NoPieceType, false
}

func promoLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	}
	return ""
}

func SideName(c nchess.Color) string {
	switch c {
	case nchess.White:
		return "white"
	case nchess.Black:
		return "black"
	default:
		return "unknown"
	}
}

type Applied struct {
	Move Move
	Side nchess.Color
	SAN  string
	UCI  string
}

// Board is a position plus the history needed for repetition and
// move-count draw rules.
type Board struct {
	game     *nchess.Game
	startFEN string
}

func NewBoard() *Board {
	return &Board{game: nchess.NewGame()}
}

// NewBoardFromFEN starts from fen; an empty string or "startpos" means the
// standard initial position.
func NewBoardFromFEN(fen string) (*Board, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return NewBoard(), nil
	}
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return &Board{game: nchess.NewGame(option), startFEN: fen}, nil
}

// StartFEN is the FEN the board was created from, or "" for the standard start.
func (b *Board) StartFEN() string { return b.startFEN }

func (b *Board) Position() *nchess.Position { return b.game.Position() }

func (b *Board) Turn() nchess.Color { return b.game.Position().Turn() }

func (b *Board) PieceAt(sq nchess.Square) nchess.Piece {
	return b.game.Position().Board().Piece(sq)
}

func (b *Board) FEN() string { return b.game.FEN() }

func (b *Board) PGN() string { return b.game.String() }

func (b *Board) Draw() string { return b.game.Position().Board().Draw() }

func (b *Board) Ply() int { return len(b.game.Moves()) }

func (b *Board) Outcome() nchess.Outcome { return b.game.Outcome() }

func (b *Board) Method() nchess.Method { return b.game.Method() }

func (b *Board) Clone() *Board {
	return &Board{game: b.game.Clone(), startFEN: b.startFEN}
}

func (b *Board) LegalMoves() []Move {
	valid := b.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for _, mv := range valid {
		out = append(out, Move{From: mv.S1(), To: mv.S2(), Promo: mv.Promo()})
	}
	return out
}

func (b *Board) IsLegal(m Move) bool {
	for _, mv := range b.LegalMoves() {
		if mv == m {
			return true
		}
	}
	return false
}

// HasMove reports whether any legal move goes from -> to, whatever the
// promotion piece.
func (b *Board) HasMove(from, to nchess.Square) bool {
	for _, mv := range b.LegalMoves() {
		if mv.From == from && mv.To == to {
			return true
		}
	}
	return false
}

// PromotionPending reports whether some legal move from->to requires a
// promotion piece.
func (b *Board) PromotionPending(from, to nchess.Square) bool {
	for _, mv := range b.LegalMoves() {
		if mv.From == from && mv.To == to && mv.Promo != nchess.NoPieceType {
			return true
		}
	}
	return false
}

func (b *Board) ParseSAN(s string) (Move, error) {
	text := normalizeCastling(strings.TrimSpace(s))
	pos := b.game.Position()
	mv, err := nchess.AlgebraicNotation{}.Decode(pos, text)
	if err != nil {
		return Move{}, err
	}
	out := Move{From: mv.S1(), To: mv.S2(), Promo: mv.Promo()}
	if !b.IsLegal(out) {
		return Move{}, fmt.Errorf("%w: %s", ErrIllegal, text)
	}
	return out, nil
}

func (b *Board) Notation(m Move) string {
	pos := b.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, m.UCI())
	if err != nil {
		return m.UCI()
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv)
}

// Apply plays m. Illegal moves leave the board untouched.
func (b *Board) Apply(m Move) (Applied, error) {
	if !b.IsLegal(m) {
		return Applied{}, fmt.Errorf("%w: %s", ErrIllegal, m.UCI())
	}
	side := b.Turn()
	san := b.Notation(m)
	if err := b.game.PushNotationMove(m.UCI(), nchess.UCINotation{}, nil); err != nil {
		return Applied{}, fmt.Errorf("apply move %s: %w", m.UCI(), err)
	}
	return Applied{Move: m, Side: side, SAN: san, UCI: m.UCI()}, nil
}

func (b *Board) Resign(side nchess.Color) {
	b.game.Resign(side)
}

// Terminal classifies the position. A position with no legal moves is
// always reported as terminal.
func (b *Board) Terminal() Terminal {
	if b.game.Outcome() == nchess.NoOutcome {
		if len(b.game.ValidMoves()) > 0 {
			return TerminalNone
		}
		if b.game.Position().Status() == nchess.Checkmate {
			return TerminalCheckmate
		}
		return TerminalStalemate
	}
	switch b.game.Method() {
	case nchess.Checkmate:
		return TerminalCheckmate
	case nchess.Stalemate:
		return TerminalStalemate
	case nchess.Resignation:
		return TerminalResignation
	default:
		return TerminalDraw
	}
}

func (b *Board) UCIHistory() []string {
	moves := b.game.Moves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, Move{From: mv.S1(), To: mv.S2(), Promo: mv.Promo()}.UCI())
	}
	return out
}

func (b *Board) Opening(book *opening.BookECO) (code, title string) {
	if book == nil {
		return "", ""
	}
	if eco := book.Find(b.game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

func normalizeCastling(s string) string {
	switch s {
	case "0-0", "0-0+", "0-0#":
		return "O-O" + s[3:]
	case "0-0-0", "0-0-0+", "0-0-0#":
		return "O-O-O" + s[5:]
	}
	return s
}
