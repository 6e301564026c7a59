package chess

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Desk/internal/chess/uci"
)

var (
	ErrEngineUnavailable   = errors.New("chess engine unavailable")
	ErrEngineCommunication = errors.New("chess engine communication failed")
)

const searchGrace = 2 * time.Second

// Caller cancellation passes through unchanged.
func ClassifyEngineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrEngineCommunication):
		return err
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrEngineCommunication, err)
	}
}

type EngineConfig struct {
	BinaryPath string
	Preset     string
	MoveTime   time.Duration
	Logger     *zap.Logger
	// Start replaces process launch; used with pipe-backed sessions.
	Start uci.StartFunc
	Seed  int64
}

type MoveRequest struct {
	FEN    string
	Moves  []string
	Budget time.Duration
}

type MoveResult struct {
	Move       string
	Candidates []Candidate
	Duration   time.Duration
	Repertoire string
}

type Engine struct {
	pool     *uci.Pool
	preset   DifficultyPreset
	moveTime time.Duration
	logger   *zap.Logger
	name     string

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	preset, err := GetPreset(cfg.Preset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := ValidatePreset(preset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	pool, err := uci.NewPool(ctx, uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Options:    optionsFromPreset(preset),
		Start:      cfg.Start,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Engine{
		pool:     pool,
		preset:   preset,
		moveTime: cfg.MoveTime,
		logger:   logger,
		name:     "Stockfish",
		rand:     rand.New(rand.NewSource(seed)),
	}

	session, err := pool.Acquire(ctx)
	if err == nil {
		if name := session.Name(); name != "" {
			e.name = name
		}
		pool.Release(session, nil)
	}
	logger.Info("chess engine ready",
		zap.String("engine", e.name),
		zap.String("preset", preset.Name),
		zap.Int("skill_level", preset.SkillLevel),
		zap.Int("elo", preset.Elo),
	)
	return e, nil
}

// Name is the engine's reported identity
func (e *Engine) Name() string { return e.name }

func (e *Engine) ShortName() string {
	if fields := strings.Fields(e.name); len(fields) > 0 {
		return fields[0]
	}
	return "Engine"
}

func (e *Engine) Preset() DifficultyPreset { return e.preset }

func (e *Engine) BestMove(ctx context.Context, req MoveRequest) (MoveResult, error) {
	start := time.Now()
	r := e.random()

	moveTime := e.moveTime
	if req.Budget > 0 && (moveTime <= 0 || req.Budget < moveTime) {
		moveTime = req.Budget
	}
	goTokens, err := BuildGoCommand(e.preset, moveTime)
	if err != nil {
		return MoveResult{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	limits := limitsFromPreset(e.preset, moveTime)

	searchCtx, cancel := context.WithTimeout(ctx, time.Duration(limits.MoveTimeMillis)*time.Millisecond+searchGrace)
	defer cancel()

	session, err := e.pool.Acquire(searchCtx)
	if err != nil {
		return MoveResult{}, ClassifyEngineError(err)
	}
	var releaseErr error
	defer func() { e.pool.Release(session, releaseErr) }()

	if err := session.NewGame(searchCtx); err != nil {
		releaseErr = err
		return MoveResult{}, ClassifyEngineError(err)
	}

	resp, err := session.Search(searchCtx, uci.SearchRequest{
		FEN:         req.FEN,
		Moves:       req.Moves,
		Limits:      limits,
		GoOverrides: goTokens,
	})
	if err != nil {
		releaseErr = err
		return MoveResult{}, ClassifyEngineError(err)
	}

	candidates := convertCandidates(resp.Candidates)
	if len(candidates) == 0 {
		candidates = []Candidate{{Move: resp.BestMove, Principal: []string{resp.BestMove}}}
	}

	var line string
	if isStandardStart(req.FEN) {
		candidates, line = applyRepertoire(e.preset.Repertoire, candidates, req.Moves, r)
	}

	chosen, err := SelectCandidate(e.preset, candidates, r)
	if err != nil {
		return MoveResult{}, ClassifyEngineError(err)
	}

	result := MoveResult{
		Move:       chosen.Move,
		Candidates: candidates,
		Duration:   time.Since(start),
		Repertoire: line,
	}
	e.logger.Debug("engine move",
		zap.String("move_uci", result.Move),
		zap.String("engine_best", resp.BestMove),
		zap.String("repertoire", line),
		zap.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

func (e *Engine) random() *rand.Rand {
	e.randMu.Lock()
	seed := e.rand.Int63()
	e.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func isStandardStart(fen string) bool {
	fen = strings.TrimSpace(fen)
	return fen == "" || fen == "startpos"
}

func optionsFromPreset(p DifficultyPreset) uci.Options {
	return uci.Options{
		Threads:       p.Threads,
		SkillLevel:    p.SkillLevel,
		HashMB:        p.HashMB,
		MultiPV:       p.MultiPV,
		LimitStrength: p.LimitStrength,
		Elo:           p.Elo,
	}
}

func limitsFromPreset(p DifficultyPreset, moveTime time.Duration) uci.Limits {
	ms := p.MoveTimeMillis
	if moveTime > 0 {
		ms = max(int(moveTime/time.Millisecond), 1)
	}
	return uci.Limits{
		Depth:          p.DepthCap,
		MoveTimeMillis: ms,
		NodeCap:        p.NodeCap,
	}
}

func convertCandidates(in []uci.Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		out = append(out, Candidate{
			Move:      c.Move,
			EvalCP:    c.EvalCP,
			Principal: append([]string(nil), c.Principal...),
		})
	}
	return out
}
