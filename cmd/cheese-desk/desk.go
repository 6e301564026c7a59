package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-Desk/internal/adapter/chesspresenter"
	corechess "github.com/park285/Cheese-Desk/internal/chess"
	"github.com/park285/Cheese-Desk/internal/chess/openingbook"
	svcchess "github.com/park285/Cheese-Desk/internal/service/chess"
)

var errQuit = errors.New("quit")

// desk is the interactive command loop. It is the only reader of lines, so
// a pending promotion choice always receives the very next line.
type desk struct {
	coord        *svcchess.Coordinator
	presenter    *chesspresenter.Presenter
	format       *chesspresenter.Formatter
	geometry     svcchess.Geometry
	historyLimit int
	resume       bool
	lines        <-chan string
}

func (d *desk) serve(ctx context.Context) error {
	if err := d.start(ctx); err != nil {
		return err
	}
	for {
		d.prompt(ctx)
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-d.lines:
			if !ok {
				return nil
			}
			line = l
		}
		if err := d.handle(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

func (d *desk) start(ctx context.Context) error {
	resumed := false
	if d.resume {
		ok, err := d.coord.Restore(ctx)
		if err != nil {
			d.presenter.Error(err, "")
		}
		resumed = ok
	}
	snap, err := d.coord.Snapshot(ctx)
	if err != nil {
		return err
	}
	state := chesspresenter.ToDTOState(snap)
	d.presenter.Notice(d.format.Start(state, resumed))
	d.presenter.ShowState("", state, snap)
	return nil
}

func (d *desk) prompt(ctx context.Context) {
	snap, err := d.coord.Snapshot(ctx)
	if err != nil {
		return
	}
	d.presenter.Prompt(d.format.Prompt(chesspresenter.ToDTOState(snap)))
}

func (d *desk) handle(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		d.presenter.Message(d.format.Help())
	case "new":
		if _, err := d.coord.NewGame(ctx); err != nil {
			return d.fail(ctx, err)
		}
		return d.show(ctx, func(s svcchess.Snapshot) string {
			return d.format.Start(chesspresenter.ToDTOState(s), false)
		})
	case "resign":
		if err := d.coord.Resign(ctx); err != nil {
			return d.fail(ctx, err)
		}
	case "history", "moves":
		snap, err := d.coord.Snapshot(ctx)
		if err != nil {
			return err
		}
		d.presenter.Message(d.format.Moves(chesspresenter.ToDTOState(snap).Rows))
	case "opening", "eco":
		snap, err := d.coord.Snapshot(ctx)
		if err != nil {
			return err
		}
		d.presenter.Message(d.format.Opening(chesspresenter.ToDTOState(snap)))
	case "line", "reference":
		ref := openingbook.ItalianPaired
		if len(args) > 0 && strings.EqualFold(args[0], "white") {
			ref = openingbook.Italian
		}
		d.presenter.Message(d.format.Reference(ref))
	case "board":
		return d.show(ctx, nil)
	case "png", "snapshot":
		snap, err := d.coord.Snapshot(ctx)
		if err != nil {
			return err
		}
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		saved, err := d.presenter.SavePNG(ctx, snap, path)
		if err != nil {
			return d.fail(ctx, err)
		}
		d.presenter.Notice(d.format.SnapshotSaved(saved))
	case "games":
		limit := d.historyLimit
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				limit = n
			}
		}
		games, err := d.coord.History(ctx, limit)
		if err != nil {
			return d.fail(ctx, err)
		}
		d.presenter.Message(d.format.History(chesspresenter.ToDTOGames(games)))
	case "game":
		if len(args) < 1 {
			d.presenter.Message("usage: game <id>")
			return nil
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			d.presenter.Message("usage: game <id>")
			return nil
		}
		game, err := d.coord.Game(ctx, id)
		if errors.Is(err, svcchess.ErrGameNotFound) {
			d.presenter.Message(d.format.GameNotFound(id))
			return nil
		}
		if err != nil {
			return d.fail(ctx, err)
		}
		d.presenter.Message(d.format.Game(chesspresenter.ToDTOGame(game)))
	case "click":
		if len(args) < 1 {
			d.presenter.Message("usage: click <square>|<x>,<y>")
			return nil
		}
		sq, ok := parseClickTarget(args[0], d.geometry)
		if !ok {
			d.presenter.Message(d.format.Click(svcchess.ClickIgnored.String(), ""))
			return nil
		}
		return d.click(ctx, sq)
	default:
		applied, err := d.coord.SubmitText(ctx, strings.TrimSpace(line))
		if err != nil {
			return d.fail(ctx, err)
		}
		return d.played(ctx, applied)
	}
	return nil
}

func (d *desk) click(ctx context.Context, sq nchess.Square) error {
	res, err := d.coord.Click(ctx, sq)
	if err != nil {
		return d.fail(ctx, err)
	}
	if res.Applied != nil {
		return d.played(ctx, *res.Applied)
	}
	square := ""
	if res.Outcome.Kind == svcchess.ClickSelected {
		square = res.Outcome.From.String()
	}
	d.presenter.Message(d.format.Click(res.Outcome.Kind.String(), square))
	return nil
}

func (d *desk) played(ctx context.Context, applied corechess.Applied) error {
	return d.show(ctx, func(s svcchess.Snapshot) string {
		return d.format.Played(chesspresenter.ToDTOMove(applied, plyOf(s, applied)))
	})
}

// plyOf finds applied in the ledger; the opponent may already have replied.
func plyOf(s svcchess.Snapshot, applied corechess.Applied) int {
	for i := len(s.Entries) - 1; i >= 0; i-- {
		e := s.Entries[i]
		if e.Side == applied.Side && e.Move == applied.Move {
			return e.Ply
		}
	}
	return s.Ply - 1
}

// show prints the board with an optional heading built from the snapshot.
func (d *desk) show(ctx context.Context, heading func(svcchess.Snapshot) string) error {
	snap, err := d.coord.Snapshot(ctx)
	if err != nil {
		return err
	}
	text := ""
	if heading != nil {
		text = heading(snap)
	}
	d.presenter.Board(text, snap)
	return nil
}

// fail reports err. Only a stopped coordinator or a cancelled context ends
// the loop.
func (d *desk) fail(ctx context.Context, err error) error {
	if errors.Is(err, svcchess.ErrCoordinatorStopped) || ctx.Err() != nil {
		return err
	}
	opponent := ""
	if snap, serr := d.coord.Snapshot(ctx); serr == nil {
		opponent = snap.Opponent
	}
	d.presenter.Error(err, opponent)
	return nil
}

// parseClickTarget accepts a square name ("e2") or pixel coordinates
// ("412,300") on the snapshot image.
func parseClickTarget(arg string, geom svcchess.Geometry) (nchess.Square, bool) {
	if sq, ok := corechess.ParseSquare(arg); ok {
		return sq, true
	}
	xs, ys, found := strings.Cut(arg, ",")
	if !found {
		return nchess.NoSquare, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return nchess.NoSquare, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return nchess.NoSquare, false
	}
	return geom.SquareAt(x, y)
}

// linePrompter asks for a promotion piece on the terminal and takes the
// next input line as the answer.
type linePrompter struct {
	lines     <-chan string
	presenter *chesspresenter.Presenter
}

func (p *linePrompter) ChoosePromotion(ctx context.Context, mv corechess.Move) (nchess.PieceType, error) {
	if p.presenter != nil {
		p.presenter.Prompt(p.presenter.Formatter().PromotionPrompt())
	}
	select {
	case <-ctx.Done():
		return nchess.NoPieceType, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return nchess.NoPieceType, io.EOF
		}
		if pt, ok := corechess.PromotionFromLetter(line); ok {
			return pt, nil
		}
		return nchess.NoPieceType, fmt.Errorf("no promotion piece for %q", strings.TrimSpace(line))
	}
}
