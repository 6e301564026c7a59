package chesspresenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Desk/internal/chess/openingbook"
	"github.com/park285/Cheese-Desk/internal/msgcat"
	"github.com/park285/Cheese-Desk/pkg/chessdto"
)

const shortTimeLayout = "2006-01-02 15:04"

// Formatter renders chess DTOs into terminal text using the message catalog.
type Formatter struct {
	catalog *msgcat.Catalog
}

func NewFormatter(catalog *msgcat.Catalog) *Formatter {
	return &Formatter{catalog: catalog}
}

func (f *Formatter) text(key string, data map[string]any) string {
	if f == nil || f.catalog == nil {
		return key
	}
	return f.catalog.Text(key, data)
}

func (f *Formatter) Status(err error, opponent string) string {
	if err == nil {
		return ""
	}
	de := StatusFor(err)
	key := "status." + de.Code
	if f == nil || f.catalog == nil || !f.catalog.Has(key) {
		return de.Error()
	}
	return f.text(key, map[string]any{
		"Opponent": opponent,
		"Detail":   de.Message,
		"ID":       "",
	})
}

func (f *Formatter) GameNotFound(id int64) string {
	return f.text("status."+chessdto.CodeGameNotFound, map[string]any{"ID": id})
}

func (f *Formatter) Start(state *chessdto.SessionState, resumed bool) string {
	if state == nil {
		return ""
	}
	if resumed {
		return f.text("game.resumed", map[string]any{"GameID": state.GameID, "Ply": state.Ply})
	}
	return f.text("game.new", map[string]any{"GameID": state.GameID, "Opponent": state.Opponent})
}

func (f *Formatter) Header(state *chessdto.SessionState) string {
	if state == nil {
		return ""
	}
	return f.text("game.header", map[string]any{"Player": state.Player, "Opponent": state.Opponent})
}

func (f *Formatter) Prompt(state *chessdto.SessionState) string {
	turn := "White"
	if state != nil && state.Turn != "" {
		turn = state.Turn
	}
	return f.text("prompt.move", map[string]any{"Turn": turn})
}

func (f *Formatter) PromotionPrompt() string {
	return f.text("prompt.promotion", nil)
}

func (f *Formatter) Help() string {
	return strings.TrimRight(f.text("help", nil), "\n")
}

// Moves renders the ledger as "1. e4 e5" lines.
func (f *Formatter) Moves(rows []chessdto.MoveRow) string {
	var sb strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&sb, "%d. %s", row.Number, row.White)
		if row.Black != "" {
			sb.WriteByte(' ')
			sb.WriteString(row.Black)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Played echoes one applied ply, "1. e4" for White and "1... e5" for Black.
func (f *Formatter) Played(m *chessdto.MoveSummary) string {
	if m == nil {
		return ""
	}
	number := m.Ply/2 + 1
	if m.Side == "black" {
		return fmt.Sprintf("%d... %s", number, m.SAN)
	}
	return fmt.Sprintf("%d. %s", number, m.SAN)
}

func (f *Formatter) OpponentMoved(state *chessdto.SessionState) string {
	if state == nil {
		return ""
	}
	line := f.text("status.opponent_moved", map[string]any{"Opponent": state.Opponent})
	if state.LastMove != nil {
		line += " " + f.Played(state.LastMove)
	}
	return line
}

func (f *Formatter) Opening(state *chessdto.SessionState) string {
	if state == nil || state.ECOCode == "" {
		return f.text("reference.unknown_opening", nil)
	}
	return f.text("reference.opening", map[string]any{"Title": state.ECOCode + " " + state.ECOTitle})
}

func (f *Formatter) Reference(ref *openingbook.Reference) string {
	if ref == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(f.text("reference.header", map[string]any{"Name": ref.Name()}))
	sb.WriteByte('\n')
	sb.WriteString(ref.Format())
	if title := ref.Title(); title != "" {
		sb.WriteString(f.text("reference.opening", map[string]any{"Title": title}))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f *Formatter) GameOver(state *chessdto.SessionState) string {
	if state == nil || !state.Finished {
		return ""
	}
	return f.text("game.over", map[string]any{
		"Result": formatResult(state.Result),
		"Reason": formatReason(state.Reason),
	})
}

func (f *Formatter) History(games []*chessdto.ChessGame) string {
	var sb strings.Builder
	for _, game := range games {
		sb.WriteString(f.archivedLine(game))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f *Formatter) archivedLine(game *chessdto.ChessGame) string {
	plies := len(game.MovesSAN)
	if plies == 0 {
		plies = len(game.MovesUCI)
	}
	return f.text("game.archived", map[string]any{
		"ID":       game.ID,
		"EndedAt":  formatShortTime(game.EndedAt),
		"Result":   game.Result,
		"Method":   formatReason(game.ResultMethod),
		"Opponent": game.Opponent,
		"Plies":    plies,
	})
}

func (f *Formatter) Game(game *chessdto.ChessGame) string {
	if game == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(f.archivedLine(game))
	sb.WriteByte('\n')
	if game.ECOCode != "" {
		sb.WriteString(f.text("reference.opening", map[string]any{"Title": game.ECOCode + " " + game.ECOTitle}))
		sb.WriteByte('\n')
	}
	if d := formatGameDuration(game.Duration); d != "" {
		fmt.Fprintf(&sb, "Duration: %s\n", d)
	}
	if game.PGN != "" {
		sb.WriteByte('\n')
		sb.WriteString(strings.TrimSpace(game.PGN))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f *Formatter) SnapshotSaved(path string) string {
	return f.text("game.snapshot_saved", map[string]any{"Path": path})
}

func (f *Formatter) Click(kind, square string) string {
	switch kind {
	case "selected":
		return f.text("status.selected", map[string]any{"Square": square})
	case "deselected":
		return f.text("status.deselected", nil)
	case "ignored":
		return f.text("status.ignored", nil)
	}
	return ""
}

// Material renders "+3" style balance from White's side.
func (f *Formatter) Material(score chessdto.MaterialScore) string {
	diff := score.White - score.Black
	switch {
	case diff > 0:
		return fmt.Sprintf("White +%d", diff)
	case diff < 0:
		return fmt.Sprintf("Black +%d", -diff)
	default:
		return "Material even"
	}
}

func formatResult(result string) string {
	switch result {
	case "1-0":
		return "White wins (1-0)"
	case "0-1":
		return "Black wins (0-1)"
	case "1/2-1/2":
		return "draw (1/2-1/2)"
	case "":
		return "*"
	default:
		return result
	}
}

func formatReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "-"
	}
	return strings.ReplaceAll(strings.ToLower(reason), "_", " ")
}

func formatShortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(shortTimeLayout)
}

func formatGameDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
