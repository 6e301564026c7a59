package obslog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "desk.log")
	if err := Init(Options{Level: "debug", ToFile: true, File: path, Format: "json"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		Close()
		globalLogger = zap.NewNop()
	})

	L().Info("move applied", zap.String("game_id", "g-1"), zap.Int("ply", 3))
	Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", raw)
	}
	if entry["msg"] != "move applied" || entry["game_id"] != "g-1" || entry["ply"] != float64(3) {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestInitWithoutSinksDiscards(t *testing.T) {
	if err := Init(Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if L().Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected a no-op logger")
	}
}

func TestOptionsFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "LOG_TO_CONSOLE", "LOG_TO_FILE", "LOG_FILE", "LOG_FORMAT", "LOG_CALLER"} {
		t.Setenv(k, "")
	}
	opts := OptionsFromEnv()
	if opts.Console || !opts.ToFile || opts.File != filepath.Join("logs", "cheese-desk.log") || opts.Format != "legacy" {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zapcore.WarnLevel || parseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("unexpected level parsing")
	}
}
