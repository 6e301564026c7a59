package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedMessages(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for key, want := range map[string]string{
		"status.illegal_move":   "Illegal move!",
		"status.invalid_format": "Invalid move format!",
	} {
		if got := c.Text(key, nil); got != want {
			t.Fatalf("%s = %q, want %q", key, got, want)
		}
	}
	got, err := c.Render("status.opponent_moved", map[string]any{"Opponent": "Stockfish"})
	if err != nil || got != "Black (Stockfish) moved." {
		t.Fatalf("opponent_moved = %q, %v", got, err)
	}
}

func TestRenderMissingData(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("status.opponent_moved", map[string]any{}); err == nil {
		t.Fatalf("expected error for missing template field")
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if got := c.Text("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("Text fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "status:\n  illegal_move: \"Nope.\"\n")
	writeFile(t, dir, "notes.txt", "ignored")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("status.illegal_move", nil); got != "Nope." {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("status.invalid_format", nil); got != "Invalid move format!" {
		t.Fatalf("default lost: %q", got)
	}
}

func TestOverrideDirRejectsDuplicatesAndBadTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "status:\n  illegal_move: \"A\"\n")
	writeFile(t, dir, "b.yml", "status:\n  illegal_move: \"B\"\n")
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}

	bad := t.TempDir()
	writeFile(t, bad, "a.yaml", "status:\n  illegal_move: \"{{.Oops\"\n")
	if _, err := New(bad); err == nil {
		t.Fatalf("expected template parse error")
	}

	nonString := t.TempDir()
	writeFile(t, nonString, "a.yaml", "status:\n  illegal_move: 3\n")
	if _, err := New(nonString); err == nil {
		t.Fatalf("expected error for non-string leaf")
	}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
