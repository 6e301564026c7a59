package chessdto

// Error codes carried by DomainError.
const (
	CodeInvalidFormat     = "invalid_format"
	CodeIllegalMove       = "illegal_move"
	CodeNotYourTurn       = "not_your_turn"
	CodeGameOver          = "game_over"
	CodeEngineUnavailable = "engine_unavailable"
	CodeEngineFailure     = "engine_failure"
	CodeSessionNotFound   = "session_not_found"
	CodeGameNotFound      = "game_not_found"
	CodeInternal          = "internal"
)

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}
