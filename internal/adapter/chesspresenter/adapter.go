package chesspresenter

import (
	"errors"

	nchess "github.com/corentings/chess/v2"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
	"github.com/park285/Cheese-Desk/internal/domain"
	svc "github.com/park285/Cheese-Desk/internal/service/chess"
	"github.com/park285/Cheese-Desk/pkg/chessdto"
)

func ToDTOState(s svc.Snapshot) *chessdto.SessionState {
	state := &chessdto.SessionState{
		GameID:   s.GameID,
		State:    s.State.String(),
		Turn:     turnName(s.Turn),
		Player:   s.Player,
		Opponent: s.Opponent,
		Ply:      s.Ply,
		FEN:      s.FEN,
		PGN:      s.PGN,
		Rows:     toDTORows(s.Rows),
		ECOCode:  s.ECOCode,
		ECOTitle: s.ECOTitle,
		Finished: s.State == svc.StateGameOver,
		Result:   s.Result,
		Reason:   s.Reason,
	}
	if s.Selected != nchess.NoSquare {
		state.Selected = s.Selected.String()
	}
	if n := len(s.Entries); n > 0 {
		last := s.Entries[n-1]
		state.LastMove = &chessdto.MoveSummary{
			Ply:  last.Ply,
			Side: corechess.SideName(last.Side),
			SAN:  last.Notation,
			UCI:  last.Move.UCI(),
		}
	}
	if s.Board != nil {
		m := svc.MaterialOf(s.Board)
		state.Material = chessdto.MaterialScore{White: m.White, Black: m.Black}
	}
	return state
}

func ToDTOMove(a corechess.Applied, ply int) *chessdto.MoveSummary {
	return &chessdto.MoveSummary{
		Ply:  ply,
		Side: corechess.SideName(a.Side),
		SAN:  a.SAN,
		UCI:  a.UCI,
	}
}

func toDTORows(rows []svc.Row) []chessdto.MoveRow {
	out := make([]chessdto.MoveRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, chessdto.MoveRow{Number: r.Number, White: r.White, Black: r.Black})
	}
	return out
}

func turnName(c nchess.Color) string {
	if c == nchess.Black {
		return "Black"
	}
	return "White"
}

func ToDTOGames(list []*domain.ChessGame) []*chessdto.ChessGame {
	out := make([]*chessdto.ChessGame, 0, len(list))
	for _, g := range list {
		if dto := ToDTOGame(g); dto != nil {
			out = append(out, dto)
		}
	}
	return out
}

func ToDTOGame(g *domain.ChessGame) *chessdto.ChessGame {
	if g == nil {
		return nil
	}
	gg := *g
	return &chessdto.ChessGame{
		ID:            gg.ID,
		GameID:        gg.GameID,
		Player:        gg.Player,
		Opponent:      gg.Opponent,
		EnginePreset:  gg.EnginePreset,
		Result:        gg.Result,
		ResultMethod:  gg.ResultMethod,
		MovesUCI:      append([]string(nil), gg.MovesUCI...),
		MovesSAN:      append([]string(nil), gg.MovesSAN...),
		PGN:           gg.PGN,
		ECOCode:       gg.ECOCode,
		ECOTitle:      gg.ECOTitle,
		StartedAt:     gg.StartedAt,
		EndedAt:       gg.EndedAt,
		Duration:      gg.Duration,
		EngineLatency: gg.EngineLatency,
	}
}

// StatusFor classifies err into a DomainError whose Code is also the
// catalog key suffix under "status.".
func StatusFor(err error) chessdto.DomainError {
	var de chessdto.DomainError
	if errors.As(err, &de) {
		return de
	}
	switch {
	case err == nil:
		return chessdto.DomainError{}
	case errors.Is(err, svc.ErrInvalidFormat):
		return chessdto.DomainError{Code: chessdto.CodeInvalidFormat, Message: err.Error(), Retryable: true}
	case errors.Is(err, svc.ErrIllegalMove):
		return chessdto.DomainError{Code: chessdto.CodeIllegalMove, Message: err.Error(), Retryable: true}
	case errors.Is(err, svc.ErrNotYourTurn):
		return chessdto.DomainError{Code: chessdto.CodeNotYourTurn, Message: err.Error(), Retryable: true}
	case errors.Is(err, svc.ErrGameOver):
		return chessdto.DomainError{Code: chessdto.CodeGameOver, Message: err.Error()}
	case errors.Is(err, svc.ErrEngineUnavailable):
		return chessdto.DomainError{Code: chessdto.CodeEngineUnavailable, Message: err.Error()}
	case errors.Is(err, svc.ErrEngineCommunication):
		return chessdto.DomainError{Code: chessdto.CodeEngineFailure, Message: err.Error()}
	case errors.Is(err, svc.ErrSessionNotFound):
		return chessdto.DomainError{Code: chessdto.CodeSessionNotFound, Message: err.Error()}
	case errors.Is(err, svc.ErrGameNotFound):
		return chessdto.DomainError{Code: chessdto.CodeGameNotFound, Message: err.Error()}
	default:
		return chessdto.DomainError{Code: chessdto.CodeInternal, Message: err.Error()}
	}
}
