package uci

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-Desk/internal/chess/uci/ucitest"
)

type fakeStarter struct {
	mu      sync.Mutex
	script  ucitest.Script
	engines []*ucitest.Engine
	fail    error
}

func (f *fakeStarter) start(ctx context.Context, opt Options) (*Session, error) {
	f.mu.Lock()
	if f.fail != nil {
		err := f.fail
		f.mu.Unlock()
		return nil, err
	}
	fake := ucitest.Start(f.script)
	f.engines = append(f.engines, fake)
	f.mu.Unlock()
	return NewPipeSession(ctx, fake.Reader(), fake.Writer(), opt, nil)
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func TestNewPoolStartsEagerly(t *testing.T) {
	starter := &fakeStarter{}
	pool, err := NewPool(context.Background(), PoolConfig{Start: starter.start})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()
	if starter.count() != 1 {
		t.Fatalf("expected one session at startup, got %d", starter.count())
	}
}

func TestNewPoolSurfacesStartFailure(t *testing.T) {
	boom := errors.New("no such binary")
	starter := &fakeStarter{fail: boom}
	if _, err := NewPool(context.Background(), PoolConfig{Start: starter.start}); !errors.Is(err, boom) {
		t.Fatalf("expected start failure, got %v", err)
	}
	if _, err := NewPool(context.Background(), PoolConfig{BinaryPath: "/nonexistent/stockfish"}); err == nil {
		t.Fatalf("expected missing binary to fail")
	}
}

func TestPoolReusesHealthySession(t *testing.T) {
	starter := &fakeStarter{}
	pool, err := NewPool(context.Background(), PoolConfig{Start: starter.start})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(first, nil)

	second, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pool.Release(second, nil)
	if first != second {
		t.Fatalf("expected the warm session to be reused")
	}
	if starter.count() != 1 {
		t.Fatalf("expected no restart, got %d engines", starter.count())
	}
}

func TestPoolReplacesFailedSession(t *testing.T) {
	starter := &fakeStarter{}
	pool, err := NewPool(context.Background(), PoolConfig{Start: starter.start})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(first, errors.New("search timed out"))

	second, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pool.Release(second, nil)
	if first == second {
		t.Fatalf("expected a fresh session after a failure")
	}
	if starter.count() != 2 {
		t.Fatalf("expected 2 engines, got %d", starter.count())
	}
}

func TestPoolSingleSlot(t *testing.T) {
	starter := &fakeStarter{}
	pool, err := NewPool(context.Background(), PoolConfig{Start: starter.start})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second Acquire to block, got %v", err)
	}
	pool.Release(held, nil)
}

func TestPoolClosed(t *testing.T) {
	starter := &fakeStarter{}
	pool, err := NewPool(context.Background(), PoolConfig{Start: starter.start})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	select {
	case <-starter.engines[0].Done():
	case <-time.After(time.Second):
		t.Fatalf("engine not stopped by Close")
	}
}
