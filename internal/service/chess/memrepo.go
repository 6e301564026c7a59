package chess

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Cheese-Desk/internal/domain"
)

// memrepo keeps the archive in process memory when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	byID     map[int64]*domain.ChessGame
	byPlayer map[string][]*domain.ChessGame
	byGameID map[string]*domain.ChessGame
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:     make(map[int64]*domain.ChessGame),
		byPlayer: make(map[string][]*domain.ChessGame),
		byGameID: make(map[string]*domain.ChessGame),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil chess game payload")
	}
	key := strings.TrimSpace(game.GameID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byGameID[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID

	m.byID[stored.ID] = stored
	m.byGameID[key] = stored
	m.byPlayer[stored.Player] = append(m.byPlayer[stored.Player], stored)
	return stored.ID, nil
}

func (m *memrepo) GetRecentGames(ctx context.Context, player string, limit int) ([]*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.byPlayer[player]
	items := make([]*domain.ChessGame, 0, len(list))
	for _, g := range list {
		items = append(items, cloneGame(g))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetGame(ctx context.Context, id int64) (*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	return cloneGame(g), nil
}

func cloneGame(g *domain.ChessGame) *domain.ChessGame {
	dup := *g
	dup.MovesUCI = append([]string(nil), g.MovesUCI...)
	dup.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &dup
}
