package chess

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
)

// Entry is one played half-move. Ply starts at 0.
type Entry struct {
	Ply      int
	Side     nchess.Color
	Move     corechess.Move
	Notation string
}

// Row pairs a White move with Black's reply for display.
type Row struct {
	Number int
	White  string
	Black  string
}

// Ledger is the append-only record of the current game.
type Ledger struct {
	entries []Entry
}

func NewLedger() *Ledger { return &Ledger{} }

// Append records e. Entries must arrive in ply order.
func (l *Ledger) Append(e Entry) error {
	if e.Ply != len(l.entries) {
		return fmt.Errorf("%w: got ply %d, want %d", ErrOutOfOrder, e.Ply, len(l.entries))
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *Ledger) Len() int { return len(l.entries) }

func (l *Ledger) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Render groups entries into numbered rows. On an odd count the last row
// has an empty Black field.
func (l *Ledger) Render() []Row {
	rows := make([]Row, 0, (len(l.entries)+1)/2)
	for i := 0; i < len(l.entries); i += 2 {
		row := Row{Number: i/2 + 1, White: l.entries[i].Notation}
		if i+1 < len(l.entries) {
			row.Black = l.entries[i+1].Notation
		}
		rows = append(rows, row)
	}
	return rows
}

func (l *Ledger) Notations() []string {
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Notation)
	}
	return out
}

// Reset empties the ledger for a new game.
func (l *Ledger) Reset() { l.entries = l.entries[:0] }
