package chessdto

import "time"

type ChessGame struct {
	ID            int64
	GameID        string
	Player        string
	Opponent      string
	EnginePreset  string
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
