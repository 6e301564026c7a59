package domain

import "time"

// ChessGame is a finished game as archived by the repository.
type ChessGame struct {
	ID            int64
	GameID        string
	Player        string
	Opponent      string
	EnginePreset  string
	StartFEN      string
	Result        string
	ResultMethod  string
	MovesUCI      []string
	MovesSAN      []string
	PGN           string
	ECOCode       string
	ECOTitle      string
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
	EngineLatency time.Duration
}

// SavedSession is an in-progress game persisted between runs.
type SavedSession struct {
	GameID       string    `json:"game_id"`
	Player       string    `json:"player"`
	Opponent     string    `json:"opponent"`
	EnginePreset string    `json:"engine_preset,omitempty"`
	StartFEN     string    `json:"start_fen,omitempty"`
	MovesUCI     []string  `json:"moves_uci"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
