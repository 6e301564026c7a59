package chessdto

type MaterialScore struct {
	White int
	Black int
}

// SessionState is the presentation view of the game in progress.
type SessionState struct {
	GameID   string
	State    string
	Turn     string
	Player   string
	Opponent string
	Ply      int
	FEN      string
	PGN      string
	Rows     []MoveRow
	Selected string
	LastMove *MoveSummary
	Material MaterialScore
	ECOCode  string
	ECOTitle string
	Finished bool
	Result   string
	Reason   string
}
