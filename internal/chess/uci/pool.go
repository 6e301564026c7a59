package uci

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("engine pool closed")

// StartFunc launches a ready session configured with opt.
type StartFunc func(ctx context.Context, opt Options) (*Session, error)

type PoolConfig struct {
	BinaryPath string
	Options    Options
	// Start overrides process launch, e.g. with a pipe-backed session.
	Start  StartFunc
	Logger *zap.Logger
}

// Pool supervises a single warm engine session. At most one caller holds
// the session at a time; a session released with an error is discarded and
// replaced on the next Acquire.
type Pool struct {
	start  StartFunc
	opt    Options
	logger *zap.Logger

	slot chan struct{}

	mu     sync.Mutex
	idle   *Session
	closed bool
}

// NewPool starts the first session eagerly so a missing binary or a failed
// handshake is reported before any game begins.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := cfg.Start
	if start == nil {
		if cfg.BinaryPath == "" {
			return nil, fmt.Errorf("binary path required")
		}
		path, err := exec.LookPath(cfg.BinaryPath)
		if err != nil {
			return nil, fmt.Errorf("stockfish binary check: %w", err)
		}
		start = func(ctx context.Context, opt Options) (*Session, error) {
			return NewSession(ctx, path, opt, logger)
		}
	}
	if err := validateOptions(cfg.Options); err != nil {
		return nil, err
	}

	p := &Pool{
		start:  start,
		opt:    cfg.Options,
		logger: logger,
		slot:   make(chan struct{}, 1),
	}
	session, err := start(ctx, cfg.Options)
	if err != nil {
		return nil, err
	}
	p.idle = session
	logger.Info("engine session started", zap.String("engine", session.Name()))
	return p, nil
}

// Acquire blocks until the slot is free and returns a ready session.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slot
		return nil, ErrPoolClosed
	}
	session := p.idle
	p.idle = nil
	p.mu.Unlock()

	if session != nil {
		if err := session.EnsureReady(ctx); err == nil {
			return session, nil
		} else {
			p.logger.Warn("idle engine session not ready, restarting", zap.Error(err))
			_ = session.Close()
		}
	}

	session, err := p.start(ctx, p.opt)
	if err != nil {
		<-p.slot
		return nil, err
	}
	return session, nil
}

// Release hands the session back. A non-nil err means the session's state
// is unknown and it is closed instead of kept.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	defer func() { <-p.slot }()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil || p.closed {
		if err != nil {
			p.logger.Warn("discarding engine session", zap.Error(err))
		}
		_ = session.Close()
		return
	}
	p.idle = session
}

// Close shuts down the idle session. A session still held is closed when
// it is released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.idle == nil {
		return nil
	}
	err := p.idle.Close()
	p.idle = nil
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
