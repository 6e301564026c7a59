package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
)

// PromotionPrompter asks which piece a pawn reaching the last rank becomes.
// Returning an error other than a context error, or a piece that is not
// Q/R/B/N, counts as dismissal and promotes to a queen.
type PromotionPrompter interface {
	ChoosePromotion(ctx context.Context, mv corechess.Move) (nchess.PieceType, error)
}

type PromotionPrompterFunc func(ctx context.Context, mv corechess.Move) (nchess.PieceType, error)

func (f PromotionPrompterFunc) ChoosePromotion(ctx context.Context, mv corechess.Move) (nchess.PieceType, error) {
	return f(ctx, mv)
}

// errNotThisNotation lets a notation attempt decline text it does not
// recognise so the next attempt can try.
var errNotThisNotation = errors.New("not this notation")

type notationAttempt struct {
	name  string
	parse func(ctx context.Context, board *corechess.Board, text string) (corechess.Move, error)
}

// Resolver turns raw input into a legal move for a given position. It never
// mutates the board it is given.
type Resolver struct {
	prompter PromotionPrompter
	attempts []notationAttempt
	logger   *zap.Logger
}

func NewResolver(prompter PromotionPrompter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{prompter: prompter, logger: logger}
	r.attempts = []notationAttempt{
		{name: "san", parse: r.sanAttempt},
		{name: "coordinate", parse: r.coordinateAttempt},
	}
	return r
}

// ResolveText resolves typed notation: SAN first, then coordinates.
func (r *Resolver) ResolveText(ctx context.Context, board *corechess.Board, raw string) (corechess.Move, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return corechess.Move{}, fmt.Errorf("%w: empty input", ErrInvalidFormat)
	}
	for _, a := range r.attempts {
		mv, err := a.parse(ctx, board, text)
		if errors.Is(err, errNotThisNotation) {
			continue
		}
		if err != nil {
			return corechess.Move{}, err
		}
		r.logger.Debug("move resolved", zap.String("notation", a.name), zap.String("input", text), zap.String("move_uci", mv.UCI()))
		return mv, nil
	}
	return corechess.Move{}, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
}

// ResolvePointer resolves an origin/destination pair built from clicks.
func (r *Resolver) ResolvePointer(ctx context.Context, board *corechess.Board, from, to nchess.Square) (corechess.Move, error) {
	mv := corechess.Move{From: from, To: to, Promo: nchess.NoPieceType}
	if !board.HasMove(from, to) {
		return corechess.Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}
	if board.PromotionPending(from, to) {
		pt, err := r.choosePromotion(ctx, mv)
		if err != nil {
			return corechess.Move{}, err
		}
		mv = mv.WithPromo(pt)
	}
	if !board.IsLegal(mv) {
		return corechess.Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}
	return mv, nil
}

// sanAttempt leaves lower-case square pairs to coordinateAttempt: the SAN
// decoder also accepts long forms and would read g1f3 as the pawn move f3.
// Upper-case text such as B3f4 is SAN first.
func (r *Resolver) sanAttempt(ctx context.Context, board *corechess.Board, text string) (corechess.Move, error) {
	if isSquarePair(text) {
		return corechess.Move{}, errNotThisNotation
	}
	mv, err := board.ParseSAN(text)
	if err != nil {
		return corechess.Move{}, errNotThisNotation
	}
	return mv, nil
}

func isSquarePair(text string) bool {
	if text[0] < 'a' || text[0] > 'h' {
		return false
	}
	_, err := corechess.ParseCoordinate(text)
	return err == nil
}

func (r *Resolver) coordinateAttempt(ctx context.Context, board *corechess.Board, text string) (corechess.Move, error) {
	mv, err := corechess.ParseCoordinate(text)
	if err != nil {
		return corechess.Move{}, errNotThisNotation
	}
	if mv.Promo == nchess.NoPieceType && board.PromotionPending(mv.From, mv.To) {
		pt, err := r.choosePromotion(ctx, mv)
		if err != nil {
			return corechess.Move{}, err
		}
		mv = mv.WithPromo(pt)
	}
	if !board.IsLegal(mv) {
		return corechess.Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}
	return mv, nil
}

func (r *Resolver) choosePromotion(ctx context.Context, mv corechess.Move) (nchess.PieceType, error) {
	if r.prompter == nil {
		return nchess.Queen, nil
	}
	pt, err := r.prompter.ChoosePromotion(ctx, mv)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nchess.NoPieceType, ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nchess.NoPieceType, err
	}
	if err != nil {
		r.logger.Debug("promotion prompt dismissed", zap.String("move_uci", mv.UCI()), zap.Error(err))
		return nchess.Queen, nil
	}
	switch pt {
	case nchess.Queen, nchess.Rook, nchess.Bishop, nchess.Knight:
		return pt, nil
	default:
		return nchess.Queen, nil
	}
}
