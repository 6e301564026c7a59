package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
	"github.com/park285/Cheese-Desk/internal/chess/openingbook"
	"github.com/park285/Cheese-Desk/internal/domain"
)

type State int

const (
	StateWaitingForWhiteInput State = iota
	StateApplyingMove
	StateWaitingForOpponent
	StateGameOver
)

func (s State) String() string {
	switch s {
	case StateWaitingForWhiteInput:
		return "waiting_for_white_input"
	case StateApplyingMove:
		return "applying_move"
	case StateWaitingForOpponent:
		return "waiting_for_opponent"
	case StateGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

const (
	DefaultOpponentDelay = 500 * time.Millisecond
	DefaultMoveBudget    = 100 * time.Millisecond

	ReasonEngineFailure = "engine_failure"
	ReasonResignation   = "resignation"

	opponentGrace  = 3 * time.Second
	persistTimeout = 5 * time.Second
)

var ErrCoordinatorStopped = errors.New("coordinator stopped")

type Opponent interface {
	BestMove(ctx context.Context, req corechess.MoveRequest) (corechess.MoveResult, error)
	Name() string
}

type GameNotifier interface {
	GameFinished(ctx context.Context, game *domain.ChessGame) error
}

type UpdateKind int

const (
	UpdateOpponentMoved UpdateKind = iota
	UpdateGameOver
	UpdateEngineFailure
)

type Update struct {
	Kind     UpdateKind
	Applied  corechess.Applied
	Snapshot Snapshot
	Err      error
}

type Snapshot struct {
	GameID   string
	State    State
	Turn     nchess.Color
	Ply      int
	FEN      string
	PGN      string
	Rows     []Row
	Entries  []Entry
	Selected nchess.Square
	LastMove corechess.Move
	HasLast  bool
	Result   string
	Reason   string
	ECOCode  string
	ECOTitle string
	Player   string
	Opponent string
	Board    *corechess.Board
}

type ClickResult struct {
	Outcome ClickOutcome
	Applied *corechess.Applied
}

type Config struct {
	// Opponent plays Black. Nil means both sides are entered by hand.
	Opponent Opponent
	Prompter PromotionPrompter
	// OpponentDelay defaults to DefaultOpponentDelay; negative means none.
	OpponentDelay time.Duration
	MoveBudget    time.Duration
	StartFEN      string
	Player        string
	EnginePreset  string
	Sessions      SessionStore
	Repo          Repository
	Notifier      GameNotifier
	Logger        *zap.Logger
	Now           func() time.Time
}

type request struct {
	fn   func()
	done chan struct{}
}

type opponentReady struct {
	gameID string
	ply    int
	result corechess.MoveResult
	err    error
}

// Coordinator owns one game. All game state is touched only by the event
// loop started with Run; exported methods hand work to that loop and wait.
type Coordinator struct {
	cfg      Config
	resolver *Resolver
	logger   *zap.Logger

	requests chan request
	events   chan opponentReady
	stopped  chan struct{}

	listenMu  sync.Mutex
	listeners []func(Update)

	loopCtx   context.Context
	board     *corechess.Board
	ledger    *Ledger
	selection Selection
	state     State
	gameID    string
	startedAt time.Time
	reason    string
	lastMove  corechess.Move
	hasLast   bool
	ecoCode   string
	ecoTitle  string
	latency   time.Duration
	pending   *Task
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OpponentDelay < 0 {
		cfg.OpponentDelay = 0
	} else if cfg.OpponentDelay == 0 {
		cfg.OpponentDelay = DefaultOpponentDelay
	}
	if cfg.MoveBudget <= 0 {
		cfg.MoveBudget = DefaultMoveBudget
	}
	if strings.TrimSpace(cfg.Player) == "" {
		cfg.Player = "player"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	board, err := corechess.NewBoardFromFEN(cfg.StartFEN)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		resolver: NewResolver(cfg.Prompter, cfg.Logger),
		logger:   cfg.Logger,
		requests: make(chan request),
		events:   make(chan opponentReady),
		stopped:  make(chan struct{}),
		ledger:   NewLedger(),
	}
	c.reset(board)
	return c, nil
}

// OnUpdate registers fn for asynchronous updates. Listeners run on the
// event loop and must not call back into the Coordinator.
func (c *Coordinator) OnUpdate(fn func(Update)) {
	if fn == nil {
		return
	}
	c.listenMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenMu.Unlock()
}

// Run drives the event loop until ctx ends. It returns only after an
// in-flight opponent search has returned.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	c.loopCtx = ctx
	c.maybeScheduleOpponent()

	for {
		select {
		case <-ctx.Done():
			if c.pending != nil {
				c.pending.Cancel()
				<-c.pending.Done()
			}
			return ctx.Err()
		case req := <-c.requests:
			req.fn()
			close(req.done)
		case ev := <-c.events:
			c.handleOpponent(ev)
		}
	}
}

func (c *Coordinator) do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrCoordinatorStopped
	}
	<-req.done
	return nil
}

func (c *Coordinator) SubmitText(ctx context.Context, text string) (corechess.Applied, error) {
	var (
		board  *corechess.Board
		gameID string
		ply    int
		err    error
	)
	if derr := c.do(ctx, func() {
		if err = c.acceptingInput(); err != nil {
			return
		}
		board, gameID, ply = c.board.Clone(), c.gameID, c.board.Ply()
	}); derr != nil {
		return corechess.Applied{}, derr
	}
	if err != nil {
		return corechess.Applied{}, err
	}

	mv, err := c.resolver.ResolveText(ctx, board, text)
	if err != nil {
		c.logger.Debug("move input rejected", zap.String("game_id", gameID), zap.String("input", text), zap.Error(err))
		return corechess.Applied{}, err
	}
	return c.applyResolved(ctx, gameID, ply, mv)
}

func (c *Coordinator) Click(ctx context.Context, sq nchess.Square) (ClickResult, error) {
	var (
		board   *corechess.Board
		gameID  string
		ply     int
		outcome ClickOutcome
		err     error
	)
	if derr := c.do(ctx, func() {
		if err = c.acceptingInput(); err != nil {
			return
		}
		outcome = c.selection.Click(c.board, sq)
		if outcome.Kind == ClickCandidate {
			board, gameID, ply = c.board.Clone(), c.gameID, c.board.Ply()
		}
	}); derr != nil {
		return ClickResult{}, derr
	}
	if err != nil || outcome.Kind != ClickCandidate {
		return ClickResult{Outcome: outcome}, err
	}

	mv, err := c.resolver.ResolvePointer(ctx, board, outcome.From, outcome.To)
	if err != nil {
		if errors.Is(err, ErrIllegalMove) {
			_ = c.do(context.WithoutCancel(ctx), func() {
				if c.gameID == gameID && c.board.Ply() == ply {
					c.selection.Clear()
				}
			})
		}
		return ClickResult{Outcome: outcome}, err
	}

	applied, err := c.applyResolved(ctx, gameID, ply, mv)
	if err != nil {
		return ClickResult{Outcome: outcome}, err
	}
	return ClickResult{Outcome: outcome, Applied: &applied}, nil
}

func (c *Coordinator) applyResolved(ctx context.Context, gameID string, ply int, mv corechess.Move) (corechess.Applied, error) {
	var (
		applied corechess.Applied
		err     error
	)
	if derr := c.do(ctx, func() {
		if err = c.acceptingInput(); err != nil {
			return
		}
		if c.gameID != gameID || c.board.Ply() != ply {
			err = ErrNotYourTurn
			return
		}
		c.state = StateApplyingMove
		applied, err = c.commit(mv)
		if err != nil {
			c.state = StateWaitingForWhiteInput
			return
		}
		c.advance()
		if c.state == StateGameOver {
			c.emit(Update{Kind: UpdateGameOver, Applied: applied, Snapshot: c.snapshot()})
		}
	}); derr != nil {
		return corechess.Applied{}, derr
	}
	return applied, err
}

func (c *Coordinator) NewGame(ctx context.Context) (string, error) {
	var (
		id  string
		err error
	)
	if derr := c.do(ctx, func() {
		board, berr := corechess.NewBoardFromFEN(c.cfg.StartFEN)
		if berr != nil {
			err = berr
			return
		}
		c.deleteSession()
		c.reset(board)
		c.maybeScheduleOpponent()
		id = c.gameID
		c.logger.Info("new game", zap.String("game_id", id), zap.String("state", c.state.String()))
	}); derr != nil {
		return "", derr
	}
	return id, err
}

// Resign ends the game in the opponent's favour. Without an opponent the
// side to move resigns.
func (c *Coordinator) Resign(ctx context.Context) error {
	var err error
	if derr := c.do(ctx, func() {
		if c.state == StateGameOver {
			err = ErrGameOver
			return
		}
		side := nchess.White
		if c.cfg.Opponent == nil {
			side = c.board.Turn()
		}
		c.board.Resign(side)
		c.finish(ReasonResignation)
		c.emit(Update{Kind: UpdateGameOver, Snapshot: c.snapshot()})
	}); derr != nil {
		return derr
	}
	return err
}

func (c *Coordinator) Restore(ctx context.Context) (bool, error) {
	if c.cfg.Sessions == nil {
		return false, nil
	}
	saved, err := c.cfg.Sessions.Load(ctx, c.cfg.Player)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var restored bool
	if derr := c.do(ctx, func() {
		board, ledger, rerr := replaySaved(saved)
		if rerr != nil {
			err = rerr
			c.logger.Warn("discarding unreadable saved session", zap.String("game_id", saved.GameID), zap.Error(rerr))
			c.deleteSession()
			return
		}
		c.pending.Cancel()
		c.pending = nil
		c.board, c.ledger = board, ledger
		c.selection.Clear()
		c.gameID = saved.GameID
		c.startedAt = saved.StartedAt
		c.reason = ""
		c.latency = 0
		c.hasLast = false
		if entries := ledger.Entries(); len(entries) > 0 {
			c.lastMove, c.hasLast = entries[len(entries)-1].Move, true
		}
		c.ecoCode, c.ecoTitle = c.board.Opening(openingbook.ECOBook())
		c.state = StateWaitingForWhiteInput
		c.advance()
		restored = true
		c.logger.Info("session restored",
			zap.String("game_id", c.gameID),
			zap.Int("ply", c.board.Ply()),
			zap.String("state", c.state.String()),
		)
	}); derr != nil {
		return false, derr
	}
	return restored, err
}

func replaySaved(saved *domain.SavedSession) (*corechess.Board, *Ledger, error) {
	board, err := corechess.NewBoardFromFEN(saved.StartFEN)
	if err != nil {
		return nil, nil, err
	}
	ledger := NewLedger()
	for i, text := range saved.MovesUCI {
		mv, err := corechess.ParseCoordinate(text)
		if err != nil {
			return nil, nil, fmt.Errorf("saved move %d: %w", i, err)
		}
		applied, err := board.Apply(mv)
		if err != nil {
			return nil, nil, fmt.Errorf("saved move %d: %w", i, err)
		}
		if err := ledger.Append(Entry{Ply: i, Side: applied.Side, Move: mv, Notation: applied.SAN}); err != nil {
			return nil, nil, err
		}
	}
	return board, ledger, nil
}

const defaultHistoryLimit = 10

func (c *Coordinator) History(ctx context.Context, limit int) ([]*domain.ChessGame, error) {
	if c.cfg.Repo == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return c.cfg.Repo.GetRecentGames(ctx, c.cfg.Player, limit)
}

func (c *Coordinator) Game(ctx context.Context, id int64) (*domain.ChessGame, error) {
	if c.cfg.Repo == nil {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	game, err := c.cfg.Repo.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if game.Player != c.cfg.Player {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	return game, nil
}

func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, func() { snap = c.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (c *Coordinator) snapshot() Snapshot {
	snap := Snapshot{
		GameID:   c.gameID,
		State:    c.state,
		Turn:     c.board.Turn(),
		Ply:      c.board.Ply(),
		FEN:      c.board.FEN(),
		PGN:      c.board.PGN(),
		Rows:     c.ledger.Render(),
		Entries:  c.ledger.Entries(),
		Selected: c.selection.Square(),
		LastMove: c.lastMove,
		HasLast:  c.hasLast,
		Reason:   c.reason,
		ECOCode:  c.ecoCode,
		ECOTitle: c.ecoTitle,
		Player:   c.cfg.Player,
		Opponent: c.opponentName(),
		Board:    c.board.Clone(),
	}
	if c.state == StateGameOver {
		snap.Result = resultString(c.board.Outcome())
	}
	return snap
}

func (c *Coordinator) acceptingInput() error {
	switch c.state {
	case StateWaitingForWhiteInput:
		return nil
	case StateGameOver:
		return ErrGameOver
	default:
		return ErrNotYourTurn
	}
}

func (c *Coordinator) reset(board *corechess.Board) {
	c.pending.Cancel()
	c.pending = nil
	c.board = board
	c.ledger.Reset()
	c.selection.Clear()
	c.state = StateWaitingForWhiteInput
	c.gameID = uuid.NewString()
	c.startedAt = c.cfg.Now()
	c.reason = ""
	c.hasLast = false
	c.lastMove = corechess.Move{}
	c.ecoCode, c.ecoTitle = "", ""
	c.latency = 0
}

func (c *Coordinator) commit(mv corechess.Move) (corechess.Applied, error) {
	ply := c.board.Ply()
	applied, err := c.board.Apply(mv)
	if err != nil {
		return corechess.Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	if err := c.ledger.Append(Entry{Ply: ply, Side: applied.Side, Move: mv, Notation: applied.SAN}); err != nil {
		c.logger.Error("ledger out of sync with board", zap.String("game_id", c.gameID), zap.Error(err))
	}
	c.lastMove, c.hasLast = mv, true
	c.selection.Clear()

	c.ecoCode, c.ecoTitle = c.board.Opening(openingbook.ECOBook())
	c.logger.Info("move applied",
		zap.String("game_id", c.gameID),
		zap.Int("ply", ply+1),
		zap.String("side", corechess.SideName(applied.Side)),
		zap.String("move_uci", applied.UCI),
		zap.String("move_san", applied.SAN),
		zap.String("eco_code", c.ecoCode),
		zap.String("eco_title", c.ecoTitle),
	)
	return applied, nil
}

func (c *Coordinator) advance() {
	if t := c.board.Terminal(); t != corechess.TerminalNone {
		c.finish(c.reasonFor(t))
		return
	}
	c.state = StateWaitingForWhiteInput
	c.maybeScheduleOpponent()
	c.saveSession()
}

func (c *Coordinator) maybeScheduleOpponent() {
	if c.cfg.Opponent == nil || c.loopCtx == nil || c.state != StateWaitingForWhiteInput || c.board.Turn() != nchess.Black {
		return
	}
	c.state = StateWaitingForOpponent

	gameID, ply := c.gameID, c.board.Ply()
	req := corechess.MoveRequest{
		FEN:    c.board.StartFEN(),
		Moves:  c.board.UCIHistory(),
		Budget: c.cfg.MoveBudget,
	}
	opponent := c.cfg.Opponent
	budget := c.cfg.MoveBudget
	c.pending = Schedule(c.loopCtx, c.cfg.OpponentDelay, func(ctx context.Context) {
		callCtx, cancel := context.WithTimeout(ctx, budget+opponentGrace)
		defer cancel()
		res, err := opponent.BestMove(callCtx, req)
		select {
		case c.events <- opponentReady{gameID: gameID, ply: ply, result: res, err: err}:
		case <-ctx.Done():
		}
	})
}

func (c *Coordinator) handleOpponent(ev opponentReady) {
	if ev.gameID != c.gameID || ev.ply != c.board.Ply() || c.state != StateWaitingForOpponent {
		c.logger.Debug("stale opponent result discarded",
			zap.String("game_id", ev.gameID),
			zap.Int("ply", ev.ply),
			zap.String("state", c.state.String()),
		)
		return
	}
	c.pending = nil

	if ev.err != nil {
		if errors.Is(ev.err, context.Canceled) && c.loopCtx.Err() != nil {
			return
		}
		c.engineFailure(ev.err)
		return
	}
	mv, err := corechess.ParseCoordinate(ev.result.Move)
	if err != nil || !c.board.IsLegal(mv) {
		c.engineFailure(fmt.Errorf("%w: engine proposed %q", ErrEngineCommunication, ev.result.Move))
		return
	}

	c.state = StateApplyingMove
	applied, err := c.commit(mv)
	if err != nil {
		c.engineFailure(fmt.Errorf("%w: %v", ErrEngineCommunication, err))
		return
	}
	c.latency += ev.result.Duration
	c.advance()

	c.emit(Update{Kind: UpdateOpponentMoved, Applied: applied, Snapshot: c.snapshot()})
	if c.state == StateGameOver {
		c.emit(Update{Kind: UpdateGameOver, Snapshot: c.snapshot()})
	}
}

func (c *Coordinator) engineFailure(err error) {
	classified := corechess.ClassifyEngineError(err)
	c.logger.Error("opponent failed",
		zap.String("game_id", c.gameID),
		zap.Int("ply", c.board.Ply()),
		zap.Error(classified),
	)
	c.finish(ReasonEngineFailure)
	c.emit(Update{Kind: UpdateEngineFailure, Snapshot: c.snapshot(), Err: classified})
}

// finish moves to GameOver. Completed games are archived and the saved
// session dropped; an engine failure keeps the session for a later resume.
func (c *Coordinator) finish(reason string) {
	c.pending.Cancel()
	c.pending = nil
	c.state = StateGameOver
	c.reason = reason
	c.selection.Clear()

	c.logger.Info("game over",
		zap.String("game_id", c.gameID),
		zap.Int("ply", c.board.Ply()),
		zap.String("reason", reason),
		zap.String("result", resultString(c.board.Outcome())),
	)

	if reason == ReasonEngineFailure {
		c.saveSession()
		return
	}
	c.archive()
	c.deleteSession()
}

func (c *Coordinator) archive() {
	if c.cfg.Repo == nil && c.cfg.Notifier == nil {
		return
	}
	now := c.cfg.Now()
	game := &domain.ChessGame{
		GameID:        c.gameID,
		Player:        c.cfg.Player,
		Opponent:      c.opponentName(),
		EnginePreset:  c.cfg.EnginePreset,
		StartFEN:      c.board.StartFEN(),
		Result:        resultString(c.board.Outcome()),
		ResultMethod:  c.reason,
		MovesUCI:      c.board.UCIHistory(),
		MovesSAN:      c.ledger.Notations(),
		PGN:           c.board.PGN(),
		ECOCode:       c.ecoCode,
		ECOTitle:      c.ecoTitle,
		StartedAt:     c.startedAt,
		EndedAt:       now,
		Duration:      now.Sub(c.startedAt),
		EngineLatency: c.latency,
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if c.cfg.Repo != nil {
		id, err := c.cfg.Repo.InsertGame(ctx, game)
		switch {
		case errors.Is(err, ErrDuplicateGame):
			c.logger.Warn("game already archived", zap.String("game_id", c.gameID))
		case err != nil:
			c.logger.Error("archive game failed", zap.String("game_id", c.gameID), zap.Error(err))
		default:
			game.ID = id
		}
	}
	if c.cfg.Notifier != nil {
		if err := c.cfg.Notifier.GameFinished(ctx, game); err != nil {
			c.logger.Warn("game notification failed", zap.String("game_id", c.gameID), zap.Error(err))
		}
	}
}

func (c *Coordinator) saveSession() {
	if c.cfg.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := c.cfg.Sessions.Save(ctx, &domain.SavedSession{
		GameID:       c.gameID,
		Player:       c.cfg.Player,
		Opponent:     c.opponentName(),
		EnginePreset: c.cfg.EnginePreset,
		StartFEN:     c.board.StartFEN(),
		MovesUCI:     c.board.UCIHistory(),
		StartedAt:    c.startedAt,
		UpdatedAt:    c.cfg.Now(),
	})
	if err != nil {
		c.logger.Warn("save session failed", zap.String("game_id", c.gameID), zap.Error(err))
	}
}

func (c *Coordinator) deleteSession() {
	if c.cfg.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.cfg.Sessions.Delete(ctx, c.cfg.Player); err != nil {
		c.logger.Warn("delete session failed", zap.String("game_id", c.gameID), zap.Error(err))
	}
}

func (c *Coordinator) emit(u Update) {
	c.listenMu.Lock()
	listeners := make([]func(Update), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenMu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}

func (c *Coordinator) opponentName() string {
	if c.cfg.Opponent == nil {
		return "human"
	}
	return c.cfg.Opponent.Name()
}

func (c *Coordinator) reasonFor(t corechess.Terminal) string {
	switch t {
	case corechess.TerminalCheckmate:
		return "checkmate"
	case corechess.TerminalStalemate:
		return "stalemate"
	case corechess.TerminalResignation:
		return ReasonResignation
	}
	if method := strings.ToLower(c.board.Method().String()); method != "" && method != "nomethod" {
		return method
	}
	return "draw"
}

func resultString(o nchess.Outcome) string {
	switch o {
	case nchess.WhiteWon:
		return "1-0"
	case nchess.BlackWon:
		return "0-1"
	case nchess.Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}
