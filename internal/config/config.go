package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
)

const (
	OpponentEngine = "engine"
	OpponentHuman  = "human"
)

type AppConfig struct {
	OpponentMode    string `yaml:"opponent_mode"`
	StockfishPath   string `yaml:"stockfish_path"`
	EnginePreset    string `yaml:"engine_preset"`
	OpponentDelayMs int    `yaml:"opponent_delay_ms"`
	// MoveTimeMs overrides the preset's movetime when positive.
	MoveTimeMs int `yaml:"move_time_ms"`

	StartFEN   string `yaml:"start_fen"`
	PlayerName string `yaml:"player_name"`

	RedisURL      string `yaml:"redis_url"`
	DatabaseURL   string `yaml:"database_url"`
	SessionTTLSec int    `yaml:"session_ttl_sec"`
	Resume        bool   `yaml:"resume"`
	HistoryLimit  int    `yaml:"history_limit"`

	WebhookURL   string `yaml:"webhook_url"`
	WebhookToken string `yaml:"webhook_token"`
	MessagesDir  string `yaml:"messages_dir"`
	SnapshotDir  string `yaml:"snapshot_dir"`
}

func defaults() *AppConfig {
	return &AppConfig{
		OpponentMode:    OpponentEngine,
		EnginePreset:    "club",
		OpponentDelayMs: 500,
		PlayerName:      "player",
		SessionTTLSec:   7 * 24 * 3600,
		Resume:          true,
		HistoryLimit:    10,
		SnapshotDir:     ".",
	}
}

// Load reads defaults, then the YAML file named by CHEESE_CONFIG, then
// environment overrides.
func Load() (*AppConfig, error) {
	return LoadFrom(os.Getenv)
}

func LoadFrom(getenv func(string) string) (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(getenv("CHEESE_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	env := func(key string) string { return strings.TrimSpace(getenv(key)) }
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := env(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, key string) error {
		v := env(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString(&cfg.OpponentMode, "CHESS_OPPONENT")
	setString(&cfg.StockfishPath, "STOCKFISH_PATH")
	setString(&cfg.EnginePreset, "CHESS_PRESET", "CHESS_DEFAULT_PRESET")
	setString(&cfg.StartFEN, "CHESS_START_FEN")
	setString(&cfg.PlayerName, "CHESS_PLAYER")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.WebhookURL, "CHESS_WEBHOOK_URL")
	setString(&cfg.WebhookToken, "CHESS_WEBHOOK_TOKEN")
	setString(&cfg.MessagesDir, "CHESS_MESSAGES_DIR")
	setString(&cfg.SnapshotDir, "CHESS_SNAPSHOT_DIR")

	for key, dst := range map[string]*int{
		"CHESS_OPPONENT_DELAY_MS": &cfg.OpponentDelayMs,
		"CHESS_MOVE_TIME_MS":      &cfg.MoveTimeMs,
		"CHESS_SESSION_TTL":       &cfg.SessionTTLSec,
		"CHESS_HISTORY_LIMIT":     &cfg.HistoryLimit,
	} {
		if err := setInt(dst, key); err != nil {
			return nil, err
		}
	}
	if v := env("CHESS_RESUME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CHESS_RESUME: %w", err)
		}
		cfg.Resume = b
	}

	cfg.OpponentMode = strings.ToLower(strings.TrimSpace(cfg.OpponentMode))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.OpponentMode {
	case OpponentEngine:
		if strings.TrimSpace(c.StockfishPath) == "" {
			return errors.New("STOCKFISH_PATH is required when CHESS_OPPONENT=engine")
		}
		if _, err := corechess.GetPreset(c.EnginePreset); err != nil {
			return fmt.Errorf("CHESS_PRESET: %w", err)
		}
	case OpponentHuman:
	default:
		return fmt.Errorf("CHESS_OPPONENT must be %q or %q, got %q", OpponentEngine, OpponentHuman, c.OpponentMode)
	}
	if c.OpponentDelayMs < 0 {
		return errors.New("CHESS_OPPONENT_DELAY_MS must not be negative")
	}
	if c.MoveTimeMs < 0 {
		return errors.New("CHESS_MOVE_TIME_MS must not be negative")
	}
	if c.SessionTTLSec <= 0 {
		return errors.New("CHESS_SESSION_TTL must be positive")
	}
	if strings.TrimSpace(c.PlayerName) == "" {
		return errors.New("CHESS_PLAYER must not be empty")
	}
	if fen := strings.TrimSpace(c.StartFEN); fen != "" {
		if _, err := corechess.NewBoardFromFEN(fen); err != nil {
			return fmt.Errorf("CHESS_START_FEN: %w", err)
		}
	}
	return nil
}

func (c *AppConfig) EngineMode() bool { return c.OpponentMode == OpponentEngine }

func (c *AppConfig) OpponentDelay() time.Duration {
	return time.Duration(c.OpponentDelayMs) * time.Millisecond
}

// MoveTime is zero when the preset decides.
func (c *AppConfig) MoveTime() time.Duration {
	return time.Duration(c.MoveTimeMs) * time.Millisecond
}

func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}
