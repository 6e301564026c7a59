package chess

import (
	nchess "github.com/corentings/chess/v2"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
)

type ClickKind int

const (
	ClickIgnored ClickKind = iota
	ClickSelected
	ClickDeselected
	ClickCandidate
)

func (k ClickKind) String() string {
	switch k {
	case ClickSelected:
		return "selected"
	case ClickDeselected:
		return "deselected"
	case ClickCandidate:
		return "candidate"
	default:
		return "ignored"
	}
}

// ClickOutcome describes what a click did to the selection. From and To are
// set for ClickCandidate; From alone for ClickSelected.
type ClickOutcome struct {
	Kind ClickKind
	From nchess.Square
	To   nchess.Square
}

// Selection is the pointer origin square awaiting a destination.
type Selection struct {
	from   nchess.Square
	active bool
}

func (s *Selection) Active() bool { return s.active }

// Square returns the selected origin, or NoSquare.
func (s *Selection) Square() nchess.Square {
	if !s.active {
		return nchess.NoSquare
	}
	return s.from
}

func (s *Selection) Clear() {
	s.active = false
	s.from = nchess.NoSquare
}

// Click advances the selection against board. A candidate leaves the
// selection in place; the caller clears it once the move is settled.
func (s *Selection) Click(board *corechess.Board, sq nchess.Square) ClickOutcome {
	if !s.active {
		piece := board.PieceAt(sq)
		if piece == nchess.NoPiece || piece.Color() != board.Turn() {
			return ClickOutcome{Kind: ClickIgnored}
		}
		s.from, s.active = sq, true
		return ClickOutcome{Kind: ClickSelected, From: sq}
	}
	if sq == s.from {
		s.Clear()
		return ClickOutcome{Kind: ClickDeselected}
	}
	return ClickOutcome{Kind: ClickCandidate, From: s.from, To: sq}
}
