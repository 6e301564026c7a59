package chess

import (
	"errors"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func TestLedgerRender(t *testing.T) {
	l := NewLedger()
	for i, san := range []string{"e4", "e5", "Nf3"} {
		side := nchess.White
		if i%2 == 1 {
			side = nchess.Black
		}
		if err := l.Append(Entry{Ply: i, Side: side, Notation: san}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	rows := l.Render()
	want := []Row{{Number: 1, White: "e4", Black: "e5"}, {Number: 2, White: "Nf3"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
	if got := l.Notations(); len(got) != 3 || got[2] != "Nf3" {
		t.Fatalf("notations = %v", got)
	}
}

func TestLedgerRejectsOutOfOrder(t *testing.T) {
	l := NewLedger()
	if err := l.Append(Entry{Ply: 1, Notation: "e5"}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	_ = l.Append(Entry{Ply: 0, Notation: "e4"})
	if err := l.Append(Entry{Ply: 0, Notation: "d4"}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for repeated ply, got %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d", l.Len())
	}
	l.Reset()
	if l.Len() != 0 || len(l.Render()) != 0 {
		t.Fatalf("reset did not empty ledger")
	}
}
