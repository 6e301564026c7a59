package chess

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
	"github.com/park285/Cheese-Desk/internal/domain"
)

type fakeOpponent struct {
	mu    sync.Mutex
	moves []string
	err   error
	block chan struct{}
	calls []corechess.MoveRequest
}

func (f *fakeOpponent) Name() string { return "FakeFish" }

func (f *fakeOpponent) BestMove(ctx context.Context, req corechess.MoveRequest) (corechess.MoveResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	idx := len(f.calls) - 1
	block, err := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return corechess.MoveResult{}, ctx.Err()
		}
	}
	if err != nil {
		return corechess.MoveResult{}, err
	}
	if idx >= len(f.moves) {
		return corechess.MoveResult{}, errors.New("no scripted reply")
	}
	return corechess.MoveResult{Move: f.moves[idx], Duration: time.Millisecond}, nil
}

func (f *fakeOpponent) requests() []corechess.MoveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]corechess.MoveRequest(nil), f.calls...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	games []*domain.ChessGame
}

func (n *recordingNotifier) GameFinished(ctx context.Context, g *domain.ChessGame) error {
	n.mu.Lock()
	n.games = append(n.games, g)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.games)
}

func startCoordinator(t *testing.T, cfg Config) (*Coordinator, <-chan Update) {
	t.Helper()
	if cfg.OpponentDelay == 0 {
		cfg.OpponentDelay = -1
	}
	c, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	updates := make(chan Update, 32)
	c.OnUpdate(func(u Update) { updates <- u })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, updates
}

func waitUpdate(t *testing.T, updates <-chan Update, kind UpdateKind) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Kind == kind {
				return u
			}
		case <-timeout:
			t.Fatalf("no update of kind %d within timeout", kind)
		}
	}
}

func mustSnapshot(t *testing.T, c *Coordinator) Snapshot {
	t.Helper()
	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestCoordinatorPlaysOpponentReply(t *testing.T) {
	opp := &fakeOpponent{moves: []string{"e7e5"}}
	c, updates := startCoordinator(t, Config{Opponent: opp})
	ctx := context.Background()

	applied, err := c.SubmitText(ctx, "e4")
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if applied.UCI != "e2e4" || applied.SAN != "e4" {
		t.Fatalf("unexpected applied move: %+v", applied)
	}

	u := waitUpdate(t, updates, UpdateOpponentMoved)
	if u.Applied.UCI != "e7e5" {
		t.Fatalf("opponent move = %q, want e7e5", u.Applied.UCI)
	}
	snap := mustSnapshot(t, c)
	if snap.State != StateWaitingForWhiteInput || snap.Ply != 2 {
		t.Fatalf("unexpected state %s at ply %d", snap.State, snap.Ply)
	}
	if len(snap.Rows) != 1 || snap.Rows[0] != (Row{Number: 1, White: "e4", Black: "e5"}) {
		t.Fatalf("unexpected rows: %+v", snap.Rows)
	}
	if !snap.HasLast || snap.LastMove.UCI() != "e7e5" {
		t.Fatalf("last move = %v", snap.LastMove)
	}
	if snap.Opponent != "FakeFish" {
		t.Fatalf("opponent = %q", snap.Opponent)
	}

	reqs := opp.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one opponent request, got %d", len(reqs))
	}
	if len(reqs[0].Moves) != 1 || reqs[0].Moves[0] != "e2e4" || reqs[0].Budget != DefaultMoveBudget {
		t.Fatalf("unexpected request: %+v", reqs[0])
	}
}

func TestCoordinatorRejectsInputWhileOpponentThinks(t *testing.T) {
	opp := &fakeOpponent{moves: []string{"e7e5"}, block: make(chan struct{})}
	c, updates := startCoordinator(t, Config{Opponent: opp})
	ctx := context.Background()

	if _, err := c.SubmitText(ctx, "e2e4"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if _, err := c.SubmitText(ctx, "d4"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := c.Click(ctx, nchess.D2); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for click, got %v", err)
	}
	if snap := mustSnapshot(t, c); snap.State != StateWaitingForOpponent {
		t.Fatalf("state = %s", snap.State)
	}

	close(opp.block)
	waitUpdate(t, updates, UpdateOpponentMoved)
	if _, err := c.SubmitText(ctx, "Nf3"); err != nil {
		t.Fatalf("SubmitText after reply: %v", err)
	}
}

func TestCoordinatorNewGameDropsPendingReply(t *testing.T) {
	opp := &fakeOpponent{moves: []string{"e7e5"}, block: make(chan struct{})}
	c, updates := startCoordinator(t, Config{Opponent: opp})
	ctx := context.Background()

	if _, err := c.SubmitText(ctx, "e4"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	before := mustSnapshot(t, c)

	id, err := c.NewGame(ctx)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if id == "" || id == before.GameID {
		t.Fatalf("expected a fresh game id, got %q (was %q)", id, before.GameID)
	}
	close(opp.block)

	select {
	case u := <-updates:
		t.Fatalf("unexpected update after new game: %+v", u.Kind)
	case <-time.After(50 * time.Millisecond):
	}
	snap := mustSnapshot(t, c)
	if snap.Ply != 0 || snap.State != StateWaitingForWhiteInput || len(snap.Rows) != 0 {
		t.Fatalf("new game not clean: ply=%d state=%s rows=%v", snap.Ply, snap.State, snap.Rows)
	}
}

func TestCoordinatorDiscardsStaleOpponentResult(t *testing.T) {
	c, _ := startCoordinator(t, Config{})
	ctx := context.Background()

	if _, err := c.SubmitText(ctx, "e4"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	err := c.do(ctx, func() {
		c.handleOpponent(opponentReady{gameID: "old-game", ply: 1, result: corechess.MoveResult{Move: "e7e5"}})
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if snap := mustSnapshot(t, c); snap.Ply != 1 {
		t.Fatalf("stale result was applied: ply=%d", snap.Ply)
	}
}

func TestCoordinatorEngineFailureEndsGame(t *testing.T) {
	sessions := NewMemorySessionStore()
	opp := &fakeOpponent{err: errors.New("broken pipe")}
	c, updates := startCoordinator(t, Config{Opponent: opp, Sessions: sessions, Player: "ana"})
	ctx := context.Background()

	if _, err := c.SubmitText(ctx, "e4"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	u := waitUpdate(t, updates, UpdateEngineFailure)
	if !errors.Is(u.Err, ErrEngineCommunication) {
		t.Fatalf("expected engine communication error, got %v", u.Err)
	}
	if u.Snapshot.State != StateGameOver || u.Snapshot.Reason != ReasonEngineFailure {
		t.Fatalf("unexpected snapshot: state=%s reason=%q", u.Snapshot.State, u.Snapshot.Reason)
	}
	if _, err := c.SubmitText(ctx, "d4"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}

	saved, err := sessions.Load(ctx, "ana")
	if err != nil {
		t.Fatalf("session should survive engine failure: %v", err)
	}
	if len(saved.MovesUCI) != 1 || saved.MovesUCI[0] != "e2e4" {
		t.Fatalf("unexpected saved moves: %v", saved.MovesUCI)
	}
}

func TestCoordinatorRejectsIllegalEngineMove(t *testing.T) {
	opp := &fakeOpponent{moves: []string{"e2e4"}}
	c, updates := startCoordinator(t, Config{Opponent: opp})

	if _, err := c.SubmitText(context.Background(), "d4"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	u := waitUpdate(t, updates, UpdateEngineFailure)
	if !errors.Is(u.Err, ErrEngineCommunication) {
		t.Fatalf("expected engine communication error, got %v", u.Err)
	}
	if u.Snapshot.Ply != 1 {
		t.Fatalf("illegal engine move was applied: ply=%d", u.Snapshot.Ply)
	}
}

func TestCoordinatorHotSeatCheckmateArchives(t *testing.T) {
	repo := NewMemoryRepository()
	sessions := NewMemorySessionStore()
	notifier := &recordingNotifier{}
	c, updates := startCoordinator(t, Config{Repo: repo, Sessions: sessions, Notifier: notifier, Player: "ana"})
	ctx := context.Background()

	for _, mv := range []string{"f3", "e7e5", "g4"} {
		if _, err := c.SubmitText(ctx, mv); err != nil {
			t.Fatalf("SubmitText(%s): %v", mv, err)
		}
	}
	if _, err := sessions.Load(ctx, "ana"); err != nil {
		t.Fatalf("session not saved mid-game: %v", err)
	}
	if _, err := c.SubmitText(ctx, "Qh4"); err != nil {
		t.Fatalf("SubmitText(Qh4): %v", err)
	}

	u := waitUpdate(t, updates, UpdateGameOver)
	if u.Snapshot.Result != "0-1" || u.Snapshot.Reason != "checkmate" {
		t.Fatalf("unexpected result %q reason %q", u.Snapshot.Result, u.Snapshot.Reason)
	}
	if _, err := c.SubmitText(ctx, "a3"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}

	games, err := repo.GetRecentGames(ctx, "ana", 10)
	if err != nil {
		t.Fatalf("GetRecentGames: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("expected 1 archived game, got %d", len(games))
	}
	g := games[0]
	if g.Result != "0-1" || g.ResultMethod != "checkmate" || g.Opponent != "human" {
		t.Fatalf("unexpected archive: %+v", g)
	}
	if len(g.MovesUCI) != 4 || g.MovesUCI[3] != "d8h4" || len(g.MovesSAN) != 4 || g.MovesSAN[0] != "f3" {
		t.Fatalf("unexpected moves: %v / %v", g.MovesUCI, g.MovesSAN)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifier called %d times", notifier.count())
	}
	if _, err := sessions.Load(ctx, "ana"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session should be deleted after game over, got %v", err)
	}
}

func TestCoordinatorResign(t *testing.T) {
	repo := NewMemoryRepository()
	c, updates := startCoordinator(t, Config{Opponent: &fakeOpponent{}, Repo: repo, Player: "ana"})
	ctx := context.Background()

	if err := c.Resign(ctx); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	u := waitUpdate(t, updates, UpdateGameOver)
	if u.Snapshot.Result != "0-1" || u.Snapshot.Reason != ReasonResignation {
		t.Fatalf("unexpected result %q reason %q", u.Snapshot.Result, u.Snapshot.Reason)
	}
	if err := c.Resign(ctx); !errors.Is(err, ErrGameOver) {
		t.Fatalf("second Resign: expected ErrGameOver, got %v", err)
	}
	games, _ := repo.GetRecentGames(ctx, "ana", 0)
	if len(games) != 1 || games[0].Opponent != "FakeFish" {
		t.Fatalf("unexpected archive: %+v", games)
	}
}

func TestCoordinatorClickFlow(t *testing.T) {
	c, _ := startCoordinator(t, Config{})
	ctx := context.Background()

	steps := []struct {
		sq   nchess.Square
		want ClickKind
	}{
		{nchess.E7, ClickIgnored},
		{nchess.E2, ClickSelected},
		{nchess.E2, ClickDeselected},
		{nchess.E2, ClickSelected},
	}
	for i, st := range steps {
		res, err := c.Click(ctx, st.sq)
		if err != nil {
			t.Fatalf("step %d: Click: %v", i, err)
		}
		if res.Outcome.Kind != st.want {
			t.Fatalf("step %d: kind = %s, want %s", i, res.Outcome.Kind, st.want)
		}
	}
	if snap := mustSnapshot(t, c); snap.Selected != nchess.E2 {
		t.Fatalf("selected = %v", snap.Selected)
	}

	res, err := c.Click(ctx, nchess.E4)
	if err != nil {
		t.Fatalf("Click e4: %v", err)
	}
	if res.Outcome.Kind != ClickCandidate || res.Applied == nil || res.Applied.UCI != "e2e4" {
		t.Fatalf("unexpected click result: %+v", res)
	}
	if snap := mustSnapshot(t, c); snap.Selected != nchess.NoSquare || snap.Ply != 1 {
		t.Fatalf("after move: selected=%v ply=%d", snap.Selected, snap.Ply)
	}

	if _, err := c.Click(ctx, nchess.E7); err != nil {
		t.Fatalf("Click e7: %v", err)
	}
	if _, err := c.Click(ctx, nchess.E4); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if snap := mustSnapshot(t, c); snap.Selected != nchess.NoSquare || snap.Ply != 1 {
		t.Fatalf("after illegal click: selected=%v ply=%d", snap.Selected, snap.Ply)
	}
}

const promotionFEN = "8/P7/8/8/8/8/8/k6K w - - 0 1"

func TestCoordinatorClickPromotionAsksPrompter(t *testing.T) {
	var asked []corechess.Move
	prompter := PromotionPrompterFunc(func(ctx context.Context, mv corechess.Move) (nchess.PieceType, error) {
		asked = append(asked, mv)
		return nchess.Knight, nil
	})
	c, _ := startCoordinator(t, Config{StartFEN: promotionFEN, Prompter: prompter})
	ctx := context.Background()

	if _, err := c.Click(ctx, nchess.A7); err != nil {
		t.Fatalf("Click a7: %v", err)
	}
	res, err := c.Click(ctx, nchess.A8)
	if err != nil {
		t.Fatalf("Click a8: %v", err)
	}
	if res.Applied == nil || res.Applied.UCI != "a7a8n" {
		t.Fatalf("unexpected promotion: %+v", res.Applied)
	}
	if len(asked) != 1 || asked[0].From != nchess.A7 || asked[0].To != nchess.A8 {
		t.Fatalf("prompter calls: %v", asked)
	}
}

func TestCoordinatorCancelledPromotionKeepsSelection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prompter := PromotionPrompterFunc(func(pctx context.Context, mv corechess.Move) (nchess.PieceType, error) {
		cancel()
		return nchess.NoPieceType, pctx.Err()
	})
	c, _ := startCoordinator(t, Config{StartFEN: promotionFEN, Prompter: prompter})

	if _, err := c.Click(ctx, nchess.A7); err != nil {
		t.Fatalf("Click a7: %v", err)
	}
	if _, err := c.Click(ctx, nchess.A8); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	snap := mustSnapshot(t, c)
	if snap.Ply != 0 || snap.Selected != nchess.A7 {
		t.Fatalf("cancelled prompt changed state: ply=%d selected=%v", snap.Ply, snap.Selected)
	}
}

func TestCoordinatorOpensWithBlackToMove(t *testing.T) {
	const fen = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	opp := &fakeOpponent{moves: []string{"c7c5"}}
	_, updates := startCoordinator(t, Config{Opponent: opp, StartFEN: fen})

	u := waitUpdate(t, updates, UpdateOpponentMoved)
	if u.Applied.UCI != "c7c5" {
		t.Fatalf("opponent move = %q", u.Applied.UCI)
	}
	reqs := opp.requests()
	if len(reqs) != 1 || reqs[0].FEN != fen || len(reqs[0].Moves) != 0 {
		t.Fatalf("unexpected request: %+v", reqs)
	}
}

func TestCoordinatorRestore(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := sessions.Save(ctx, &domain.SavedSession{
		GameID:    "g-1",
		Player:    "ana",
		MovesUCI:  []string{"e2e4", "e7e5"},
		StartedAt: started,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	c, _ := startCoordinator(t, Config{Sessions: sessions, Player: "ana"})

	ok, err := c.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("Restore: ok=%v err=%v", ok, err)
	}
	snap := mustSnapshot(t, c)
	if snap.GameID != "g-1" || snap.Ply != 2 || snap.State != StateWaitingForWhiteInput {
		t.Fatalf("unexpected restored snapshot: %+v", snap)
	}
	if len(snap.Rows) != 1 || snap.Rows[0].White != "e4" || snap.Rows[0].Black != "e5" {
		t.Fatalf("unexpected rows: %+v", snap.Rows)
	}
}

func TestCoordinatorRestoreResumesOpponent(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	_ = sessions.Save(ctx, &domain.SavedSession{GameID: "g-2", Player: "ana", MovesUCI: []string{"d2d4"}})
	opp := &fakeOpponent{moves: []string{"d7d5"}}
	c, updates := startCoordinator(t, Config{Opponent: opp, Sessions: sessions, Player: "ana"})

	if ok, err := c.Restore(ctx); err != nil || !ok {
		t.Fatalf("Restore: ok=%v err=%v", ok, err)
	}
	u := waitUpdate(t, updates, UpdateOpponentMoved)
	if u.Applied.UCI != "d7d5" || u.Snapshot.GameID != "g-2" {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestCoordinatorRestoreRejectsCorruptSession(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	_ = sessions.Save(ctx, &domain.SavedSession{GameID: "g-3", Player: "ana", MovesUCI: []string{"e2e5"}})
	c, _ := startCoordinator(t, Config{Sessions: sessions, Player: "ana"})

	if ok, err := c.Restore(ctx); err == nil || ok {
		t.Fatalf("expected restore failure, got ok=%v err=%v", ok, err)
	}
	if _, err := sessions.Load(ctx, "ana"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("corrupt session should be removed, got %v", err)
	}
	if snap := mustSnapshot(t, c); snap.Ply != 0 {
		t.Fatalf("board changed: ply=%d", snap.Ply)
	}
}

func TestCoordinatorRestoreWithoutSession(t *testing.T) {
	c, _ := startCoordinator(t, Config{Sessions: NewMemorySessionStore(), Player: "ana"})
	ok, err := c.Restore(context.Background())
	if err != nil || ok {
		t.Fatalf("Restore: ok=%v err=%v", ok, err)
	}
}

func TestCoordinatorStopped(t *testing.T) {
	c, err := NewCoordinator(Config{})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
	if _, err := c.Snapshot(context.Background()); !errors.Is(err, ErrCoordinatorStopped) {
		t.Fatalf("expected ErrCoordinatorStopped, got %v", err)
	}
}

func TestNewCoordinatorRejectsBadFEN(t *testing.T) {
	if _, err := NewCoordinator(Config{StartFEN: "not a fen"}); err == nil {
		t.Fatalf("expected error for malformed FEN")
	}
}

func TestCoordinatorHistoryAndGame(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	otherID, err := repo.InsertGame(ctx, &domain.ChessGame{GameID: "other", Player: "bob"})
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	c, updates := startCoordinator(t, Config{Repo: repo, Player: "ana"})
	if err := c.Resign(ctx); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	waitUpdate(t, updates, UpdateGameOver)

	games, err := c.History(ctx, 0)
	if err != nil || len(games) != 1 {
		t.Fatalf("History: %v %v", games, err)
	}
	got, err := c.Game(ctx, games[0].ID)
	if err != nil || got.GameID != games[0].GameID {
		t.Fatalf("Game: %v %v", got, err)
	}
	if _, err := c.Game(ctx, otherID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound for another player's game, got %v", err)
	}
}

type stubbornOpponent struct {
	started  chan struct{}
	returned chan struct{}
}

func (s *stubbornOpponent) Name() string { return "Stubborn" }

func (s *stubbornOpponent) BestMove(ctx context.Context, req corechess.MoveRequest) (corechess.MoveResult, error) {
	close(s.started)
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	close(s.returned)
	return corechess.MoveResult{}, ctx.Err()
}

func TestCoordinatorRunWaitsForOpponentSearch(t *testing.T) {
	opp := &stubbornOpponent{started: make(chan struct{}), returned: make(chan struct{})}
	c, err := NewCoordinator(Config{
		Opponent:      opp,
		OpponentDelay: -1,
		StartFEN:      "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-opp.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("opponent was never asked")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	select {
	case <-opp.returned:
	default:
		t.Fatalf("Run returned while the opponent search was still running")
	}
}
