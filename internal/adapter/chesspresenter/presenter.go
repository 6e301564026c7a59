package chesspresenter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"

	svc "github.com/park285/Cheese-Desk/internal/service/chess"
	"github.com/park285/Cheese-Desk/pkg/chessdto"
)

// Presenter writes formatted messages, boards and snapshots to the terminal
// without coupling to the command loop. It is safe for use from the
// coordinator's update listener.
type Presenter struct {
	mu          sync.Mutex
	out         io.Writer
	formatter   *Formatter
	renderer    svc.BoardRenderer
	snapshotDir string

	info   *color.Color
	accent *color.Color
	warn   *color.Color
	fail   *color.Color
}

func NewPresenter(out io.Writer, formatter *Formatter, renderer svc.BoardRenderer, snapshotDir string) *Presenter {
	if strings.TrimSpace(snapshotDir) == "" {
		snapshotDir = "."
	}
	return &Presenter{
		out:         out,
		formatter:   formatter,
		renderer:    renderer,
		snapshotDir: snapshotDir,
		info:        color.New(color.FgWhite),
		accent:      color.New(color.FgCyan, color.Bold),
		warn:        color.New(color.FgYellow),
		fail:        color.New(color.FgRed, color.Bold),
	}
}

func (p *Presenter) Formatter() *Formatter { return p.formatter }

func (p *Presenter) write(c *color.Color, text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = c.Fprintln(p.out, text)
}

func (p *Presenter) Message(text string) { p.write(p.info, text) }

func (p *Presenter) Notice(text string) { p.write(p.accent, text) }

// Prompt writes text without a trailing newline.
func (p *Presenter) Prompt(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = p.accent.Fprint(p.out, text)
}

// Error writes the catalog line for err, as a warning when the game stays
// playable.
func (p *Presenter) Error(err error, opponent string) {
	if err == nil {
		return
	}
	c := p.fail
	if svc.IsRecoverable(err) {
		c = p.warn
	}
	p.write(c, p.formatter.Status(err, opponent))
}

func (p *Presenter) Board(message string, snap svc.Snapshot) {
	p.Message(message)
	if snap.Board == nil {
		return
	}
	state := ToDTOState(snap)
	var sb strings.Builder
	sb.WriteString(p.formatter.Header(state))
	sb.WriteByte('\n')
	sb.WriteString(snap.Board.Draw())
	if moves := p.formatter.Moves(state.Rows); moves != "" {
		sb.WriteString(moves)
	}
	sb.WriteString(p.formatter.Material(state.Material))
	p.Message(sb.String())
}

// SavePNG renders snap and writes it to path. A relative path lands in the
// snapshot directory; an empty path gets a name derived from the game.
func (p *Presenter) SavePNG(ctx context.Context, snap svc.Snapshot, path string) (string, error) {
	if p.renderer == nil {
		return "", fmt.Errorf("no board renderer configured")
	}
	state := ToDTOState(snap)
	turn := state.Turn + " to move"
	if state.Finished {
		turn = formatResult(state.Result)
	}
	data, err := p.renderer.RenderPNG(ctx, snap.Board, svc.RenderOptionsFor(snap, p.formatter.Header(state), turn))
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = snapshotName(snap)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.snapshotDir, path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

func snapshotName(snap svc.Snapshot) string {
	id := snap.GameID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("cheese-%s-%03d.png", id, snap.Ply)
}

// HandleUpdate is registered as the coordinator's update listener.
func (p *Presenter) HandleUpdate(u svc.Update) {
	state := ToDTOState(u.Snapshot)
	switch u.Kind {
	case svc.UpdateOpponentMoved:
		p.Board(p.formatter.OpponentMoved(state), u.Snapshot)
	case svc.UpdateGameOver:
		p.Notice(p.formatter.GameOver(state))
	case svc.UpdateEngineFailure:
		p.Error(u.Err, state.Opponent)
		p.Notice(p.formatter.GameOver(state))
	}
}

func (p *Presenter) ShowState(heading string, state *chessdto.SessionState, snap svc.Snapshot) {
	if state != nil && state.Finished {
		heading = strings.TrimSpace(heading + "\n" + p.formatter.GameOver(state))
	}
	p.Board(heading, snap)
}
