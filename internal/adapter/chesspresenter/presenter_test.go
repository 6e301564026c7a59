package chesspresenter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
	"github.com/park285/Cheese-Desk/internal/chess/openingbook"
	"github.com/park285/Cheese-Desk/internal/msgcat"
	svc "github.com/park285/Cheese-Desk/internal/service/chess"
	"github.com/park285/Cheese-Desk/pkg/chessdto"
)

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return NewFormatter(cat)
}

// snapshotAfter plays moves from the start position and builds the matching
// coordinator snapshot.
func snapshotAfter(t *testing.T, moves ...string) svc.Snapshot {
	t.Helper()
	board := corechess.NewBoard()
	ledger := svc.NewLedger()
	var last corechess.Move
	for i, m := range moves {
		mv, err := corechess.ParseCoordinate(m)
		if err != nil {
			t.Fatalf("ParseCoordinate(%s): %v", m, err)
		}
		applied, err := board.Apply(mv)
		if err != nil {
			t.Fatalf("Apply(%s): %v", m, err)
		}
		if err := ledger.Append(svc.Entry{Ply: i, Side: applied.Side, Move: applied.Move, Notation: applied.SAN}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		last = applied.Move
	}
	return svc.Snapshot{
		GameID:   "0123456789abcdef",
		State:    svc.StateWaitingForWhiteInput,
		Turn:     board.Turn(),
		Ply:      board.Ply(),
		FEN:      board.FEN(),
		Rows:     ledger.Render(),
		Entries:  ledger.Entries(),
		Selected: nchess.NoSquare,
		LastMove: last,
		HasLast:  len(moves) > 0,
		Player:   "alice",
		Opponent: "stockfish",
		Board:    board,
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err       error
		code      string
		retryable bool
	}{
		{svc.ErrInvalidFormat, chessdto.CodeInvalidFormat, true},
		{fmt.Errorf("wrap: %w", svc.ErrIllegalMove), chessdto.CodeIllegalMove, true},
		{svc.ErrNotYourTurn, chessdto.CodeNotYourTurn, true},
		{svc.ErrGameOver, chessdto.CodeGameOver, false},
		{fmt.Errorf("%w: missing", svc.ErrEngineUnavailable), chessdto.CodeEngineUnavailable, false},
		{fmt.Errorf("%w: eof", svc.ErrEngineCommunication), chessdto.CodeEngineFailure, false},
		{svc.ErrSessionNotFound, chessdto.CodeSessionNotFound, false},
		{svc.ErrGameNotFound, chessdto.CodeGameNotFound, false},
		{errors.New("boom"), chessdto.CodeInternal, false},
	}
	for _, tc := range cases {
		got := StatusFor(tc.err)
		if got.Code != tc.code || got.Retryable != tc.retryable {
			t.Fatalf("StatusFor(%v) = %+v, want code %s retryable %v", tc.err, got, tc.code, tc.retryable)
		}
	}
	de := chessdto.DomainError{Code: "custom", Message: "m"}
	if got := StatusFor(fmt.Errorf("x: %w", de)); got != de {
		t.Fatalf("domain error not passed through: %+v", got)
	}
	if got := StatusFor(nil); got.Code != "" {
		t.Fatalf("nil error mapped to %+v", got)
	}
}

func TestFormatterStatusLines(t *testing.T) {
	f := newFormatter(t)
	if got := f.Status(svc.ErrIllegalMove, ""); got != "Illegal move!" {
		t.Fatalf("illegal move = %q", got)
	}
	if got := f.Status(svc.ErrInvalidFormat, ""); got != "Invalid move format!" {
		t.Fatalf("invalid format = %q", got)
	}
	if got := f.Status(svc.ErrNotYourTurn, "stockfish"); !strings.Contains(got, "stockfish") {
		t.Fatalf("not your turn = %q", got)
	}
	if got := f.Status(errors.New("disk full"), ""); !strings.Contains(got, "disk full") {
		t.Fatalf("internal = %q", got)
	}
	if got := f.Status(nil, ""); got != "" {
		t.Fatalf("nil status = %q", got)
	}
	if got := f.GameNotFound(42); got != "Game 42 not found." {
		t.Fatalf("game not found = %q", got)
	}
}

func TestFormatterMoves(t *testing.T) {
	f := newFormatter(t)
	rows := []chessdto.MoveRow{{Number: 1, White: "e4", Black: "e5"}, {Number: 2, White: "Nf3"}}
	if got, want := f.Moves(rows), "1. e4 e5\n2. Nf3\n"; got != want {
		t.Fatalf("Moves = %q, want %q", got, want)
	}
	if got := f.Moves(nil); got != "" {
		t.Fatalf("empty ledger rendered %q", got)
	}
	if got := f.Played(&chessdto.MoveSummary{Ply: 1, Side: "black", SAN: "e5"}); got != "1... e5" {
		t.Fatalf("Played(black) = %q", got)
	}
	if got := f.Played(&chessdto.MoveSummary{Ply: 2, Side: "white", SAN: "Nf3"}); got != "2. Nf3" {
		t.Fatalf("Played(white) = %q", got)
	}
}

func TestFormatterReference(t *testing.T) {
	f := newFormatter(t)
	got := f.Reference(openingbook.ItalianPaired)
	if !strings.HasPrefix(got, openingbook.ItalianName+"\n1. e4      e5\n") {
		t.Fatalf("reference text = %q", got)
	}
	if !strings.Contains(got, "Opening: ") {
		t.Fatalf("reference without opening title: %q", got)
	}
	white := f.Reference(openingbook.Italian)
	if !strings.Contains(white, "1. e2e4\n2. g1f3\n") {
		t.Fatalf("white reference = %q", white)
	}
}

func TestFormatterGameOverAndHistory(t *testing.T) {
	f := newFormatter(t)
	state := &chessdto.SessionState{Finished: true, Result: "0-1", Reason: "checkmate"}
	if got := f.GameOver(state); got != "Game over: Black wins (0-1) by checkmate." {
		t.Fatalf("GameOver = %q", got)
	}
	if got := f.GameOver(&chessdto.SessionState{}); got != "" {
		t.Fatalf("unfinished game rendered %q", got)
	}
	state = &chessdto.SessionState{Finished: true, Result: "*", Reason: svc.ReasonEngineFailure}
	if got := f.GameOver(state); !strings.Contains(got, "engine failure") {
		t.Fatalf("engine failure = %q", got)
	}

	games := []*chessdto.ChessGame{{ID: 7, Result: "1-0", ResultMethod: "resignation", Opponent: "stockfish", MovesSAN: []string{"e4", "e5", "Qh5"}}}
	got := f.History(games)
	if !strings.HasPrefix(got, "#7 - 1-0 resignation vs stockfish (3 plies)") {
		t.Fatalf("History = %q", got)
	}
	detail := f.Game(&chessdto.ChessGame{ID: 7, Result: "1-0", PGN: "1. e4 *", ECOCode: "B00", ECOTitle: "King's Pawn"})
	if !strings.Contains(detail, "Opening: B00 King's Pawn") || !strings.Contains(detail, "1. e4 *") {
		t.Fatalf("Game = %q", detail)
	}
}

func TestToDTOState(t *testing.T) {
	snap := snapshotAfter(t, "e2e4", "e7e5", "g1f3")
	snap.Selected = nchess.B8
	state := ToDTOState(snap)
	if state.Turn != "Black" || state.Ply != 3 || state.Selected != "b8" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if len(state.Rows) != 2 || state.Rows[1].White != "Nf3" || state.Rows[1].Black != "" {
		t.Fatalf("rows = %+v", state.Rows)
	}
	if state.LastMove == nil || state.LastMove.UCI != "g1f3" || state.LastMove.Side != "white" || state.LastMove.Ply != 2 {
		t.Fatalf("last move = %+v", state.LastMove)
	}
	if state.Material.White != 39 || state.Material.Black != 39 {
		t.Fatalf("material = %+v", state.Material)
	}
	if state.Finished {
		t.Fatalf("state should be in progress")
	}
}

func TestPresenterHandleUpdate(t *testing.T) {
	var out bytes.Buffer
	p := NewPresenter(&out, newFormatter(t), nil, "")
	snap := snapshotAfter(t, "e2e4", "e7e5")
	p.HandleUpdate(svc.Update{Kind: svc.UpdateOpponentMoved, Snapshot: snap})
	text := out.String()
	for _, want := range []string{"Black (stockfish) moved. 1... e5", "alice vs stockfish", "1. e4 e5", "Material even"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	snap.State = svc.StateGameOver
	snap.Reason = svc.ReasonEngineFailure
	snap.Result = "*"
	p.HandleUpdate(svc.Update{Kind: svc.UpdateEngineFailure, Snapshot: snap, Err: svc.ErrEngineCommunication})
	if !strings.Contains(out.String(), "Engine stopped responding") || !strings.Contains(out.String(), "engine failure") {
		t.Fatalf("engine failure output:\n%s", out.String())
	}
}

func TestPresenterSavePNG(t *testing.T) {
	dir := t.TempDir()
	p := NewPresenter(&bytes.Buffer{}, newFormatter(t), svc.NewSVGBoardRenderer(svc.DefaultGeometry()), dir)
	snap := snapshotAfter(t, "e2e4")

	path, err := p.SavePNG(context.Background(), snap, "")
	if err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	if filepath.Dir(path) != dir || filepath.Base(path) != "cheese-01234567-001.png" {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("snapshot is not a PNG")
	}

	named, err := p.SavePNG(context.Background(), snap, filepath.Join("sub", "board.png"))
	if err != nil {
		t.Fatalf("SavePNG(named): %v", err)
	}
	if named != filepath.Join(dir, "sub", "board.png") {
		t.Fatalf("named path = %s", named)
	}

	noRenderer := NewPresenter(&bytes.Buffer{}, newFormatter(t), nil, dir)
	if _, err := noRenderer.SavePNG(context.Background(), snap, ""); err == nil {
		t.Fatalf("expected error without renderer")
	}
}
