package chess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Desk/internal/domain"
	"github.com/park285/Cheese-Desk/internal/service/cache"
)

// SessionStore keeps the in-progress game so it can be resumed.
type SessionStore interface {
	Save(ctx context.Context, s *domain.SavedSession) error
	// Load returns ErrSessionNotFound when nothing is stored for player.
	Load(ctx context.Context, player string) (*domain.SavedSession, error)
	Delete(ctx context.Context, player string) error
}

type redisSessionStore struct {
	cache *cache.CacheService
	ttl   time.Duration
}

func NewRedisSessionStore(c *cache.CacheService, ttl time.Duration) SessionStore {
	return &redisSessionStore{cache: c, ttl: ttl}
}

func sessionKey(player string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(player)))
	return "chess:sessions:" + hex.EncodeToString(hash[:])
}

func (s *redisSessionStore) Save(ctx context.Context, sess *domain.SavedSession) error {
	if sess == nil {
		return fmt.Errorf("cannot save nil chess session")
	}
	return s.cache.Set(ctx, sessionKey(sess.Player), sess, s.ttl)
}

func (s *redisSessionStore) Load(ctx context.Context, player string) (*domain.SavedSession, error) {
	var sess domain.SavedSession
	found, err := s.cache.Get(ctx, sessionKey(player), &sess)
	if err != nil {
		return nil, err
	}
	if !found || sess.GameID == "" {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, player string) error {
	return s.cache.Del(ctx, sessionKey(player))
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.SavedSession
}

func NewMemorySessionStore() SessionStore {
	return &memSessionStore{sessions: make(map[string]domain.SavedSession)}
}

func (m *memSessionStore) Save(ctx context.Context, sess *domain.SavedSession) error {
	if sess == nil {
		return fmt.Errorf("cannot save nil chess session")
	}
	dup := *sess
	dup.MovesUCI = append([]string(nil), sess.MovesUCI...)
	m.mu.Lock()
	m.sessions[sess.Player] = dup
	m.mu.Unlock()
	return nil
}

func (m *memSessionStore) Load(ctx context.Context, player string) (*domain.SavedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[player]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.MovesUCI = append([]string(nil), sess.MovesUCI...)
	return &sess, nil
}

func (m *memSessionStore) Delete(ctx context.Context, player string) error {
	m.mu.Lock()
	delete(m.sessions, player)
	m.mu.Unlock()
	return nil
}
