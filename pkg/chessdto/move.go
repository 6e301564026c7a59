package chessdto

// MoveRow is one numbered line of the move list. Black is empty while
// White's move is the last one played.
type MoveRow struct {
	Number int
	White  string
	Black  string
}

// MoveSummary describes a single applied ply.
type MoveSummary struct {
	Ply  int
	Side string
	SAN  string
	UCI  string
}
