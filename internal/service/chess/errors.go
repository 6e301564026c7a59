package chess

import (
	"errors"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
)

var (
	ErrInvalidFormat   = errors.New("invalid move format")
	ErrIllegalMove     = errors.New("illegal move")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrGameOver        = errors.New("game is over")
	ErrSessionNotFound = errors.New("chess session not found")
	ErrGameNotFound    = errors.New("chess game not found")
	ErrOutOfOrder      = errors.New("ledger entry out of order")

	ErrEngineUnavailable   = corechess.ErrEngineUnavailable
	ErrEngineCommunication = corechess.ErrEngineCommunication
)

// IsRecoverable reports whether err leaves the game playable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrIllegalMove) ||
		errors.Is(err, ErrNotYourTurn)
}
