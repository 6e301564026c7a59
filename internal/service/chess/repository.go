package chess

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/park285/Cheese-Desk/internal/domain"
)

var ErrDuplicateGame = errors.New("chess game already exists")

// Repository archives finished games.
type Repository interface {
	InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error)
	GetRecentGames(ctx context.Context, player string, limit int) ([]*domain.ChessGame, error)
	GetGame(ctx context.Context, id int64) (*domain.ChessGame, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS chess_games (
	id                BIGSERIAL PRIMARY KEY,
	game_uuid         TEXT NOT NULL UNIQUE,
	player            TEXT NOT NULL,
	opponent          TEXT NOT NULL,
	engine_preset     TEXT NOT NULL DEFAULT '',
	start_fen         TEXT NOT NULL DEFAULT '',
	result            TEXT NOT NULL,
	result_method     TEXT NOT NULL,
	moves_uci         JSONB NOT NULL,
	moves_san         JSONB NOT NULL,
	pgn               TEXT NOT NULL,
	eco_code          TEXT NOT NULL DEFAULT '',
	eco_title         TEXT NOT NULL DEFAULT '',
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ NOT NULL,
	duration_ms       BIGINT,
	engine_latency_ms BIGINT
);
CREATE INDEX IF NOT EXISTS chess_games_player_ended ON chess_games (player, ended_at DESC);`

// EnsureSchema creates the archive table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create chess schema: %w", err)
	}
	return nil
}

const selectColumns = `
	id, game_uuid, player, opponent, engine_preset, start_fen, result, result_method,
	moves_uci, moves_san, pgn, eco_code, eco_title, started_at, ended_at,
	duration_ms, engine_latency_ms`

func (r *repository) InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil chess game payload")
	}

	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO chess_games (
			game_uuid, player, opponent, engine_preset, start_fen, result, result_method,
			moves_uci, moves_san, pgn, eco_code, eco_title, started_at, ended_at,
			duration_ms, engine_latency_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.GameID,
		game.Player,
		game.Opponent,
		game.EnginePreset,
		game.StartFEN,
		game.Result,
		game.ResultMethod,
		movesUCI,
		movesSAN,
		game.PGN,
		game.ECOCode,
		game.ECOTitle,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
		game.EngineLatency.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert chess game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetRecentGames(ctx context.Context, player string, limit int) ([]*domain.ChessGame, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + selectColumns + `
		FROM chess_games
		WHERE player = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, player, limit)
	if err != nil {
		return nil, fmt.Errorf("select chess games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ChessGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chess games: %w", err)
	}
	return games, nil
}

func (r *repository) GetGame(ctx context.Context, id int64) (*domain.ChessGame, error) {
	query := `SELECT` + selectColumns + `
		FROM chess_games
		WHERE id = $1`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return game, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.ChessGame, error) {
	var (
		game         domain.ChessGame
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
		latencyMS    sql.NullInt64
	)
	err := row.Scan(
		&game.ID,
		&game.GameID,
		&game.Player,
		&game.Opponent,
		&game.EnginePreset,
		&game.StartFEN,
		&game.Result,
		&game.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&game.ECOCode,
		&game.ECOTitle,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
		&latencyMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan chess game: %w", err)
	}
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if latencyMS.Valid {
		game.EngineLatency = time.Duration(latencyMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}
