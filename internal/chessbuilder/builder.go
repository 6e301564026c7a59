package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Desk/internal/adapter/chesspresenter"
	corechess "github.com/park285/Cheese-Desk/internal/chess"
	"github.com/park285/Cheese-Desk/internal/chess/uci"
	"github.com/park285/Cheese-Desk/internal/config"
	"github.com/park285/Cheese-Desk/internal/msgcat"
	"github.com/park285/Cheese-Desk/internal/notify"
	"github.com/park285/Cheese-Desk/internal/service/cache"
	svcchess "github.com/park285/Cheese-Desk/internal/service/chess"
)

type Deps struct {
	Coordinator *svcchess.Coordinator
	Engine      *corechess.Engine
	Cache       *cache.CacheService
	DB          *sql.DB
	Repo        svcchess.Repository
	Sessions    svcchess.SessionStore
	Catalog     *msgcat.Catalog
	Formatter   *chesspresenter.Formatter
	Renderer    svcchess.BoardRenderer
}

type options struct {
	prompter    svcchess.PromotionPrompter
	engineStart uci.StartFunc
}

type Option func(*options)

// WithPrompter sets the promotion prompter handed to the coordinator.
func WithPrompter(p svcchess.PromotionPrompter) Option {
	return func(o *options) { o.prompter = p }
}

// WithEngineStart replaces engine process launch, e.g. with a pipe-backed
// fake in tests.
func WithEngineStart(start uci.StartFunc) Option {
	return func(o *options) { o.engineStart = start }
}

// New wires the desk from cfg. On error everything already opened is
// closed again.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (_ *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	deps := &Deps{}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	deps.Catalog, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	deps.Formatter = chesspresenter.NewFormatter(deps.Catalog)
	deps.Renderer = svcchess.NewSVGBoardRenderer(svcchess.DefaultGeometry())

	// Engine
	var opponent svcchess.Opponent
	moveBudget := cfg.MoveTime()
	if cfg.EngineMode() {
		deps.Engine, err = corechess.NewEngine(ctx, corechess.EngineConfig{
			BinaryPath: cfg.StockfishPath,
			Preset:     cfg.EnginePreset,
			MoveTime:   cfg.MoveTime(),
			Logger:     logger,
			Start:      o.engineStart,
		})
		if err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
		opponent = deps.Engine
		if moveBudget <= 0 {
			moveBudget = time.Duration(deps.Engine.Preset().MoveTimeMillis) * time.Millisecond
		}
	}

	// Sessions (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cconf, perr := cache.ParseURL(cfg.RedisURL)
		if perr != nil {
			return nil, fmt.Errorf("parse redis url: %w", perr)
		}
		deps.Cache, err = cache.NewCacheService(cconf, logger)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		deps.Sessions = svcchess.NewRedisSessionStore(deps.Cache, cfg.SessionTTL())
	} else {
		deps.Sessions = svcchess.NewMemorySessionStore()
	}

	// Archive (postgres optional)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		deps.DB, deps.Repo, err = openRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	} else {
		deps.Repo = svcchess.NewMemoryRepository()
	}

	var notifier svcchess.GameNotifier
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		notifier = notify.NewWebhook(url,
			notify.WithLogger(logger),
			notify.WithHeaderProvider(tokenHeaders(cfg.WebhookToken)),
		)
	}

	delay := cfg.OpponentDelay()
	if delay <= 0 {
		delay = -1
	}
	deps.Coordinator, err = svcchess.NewCoordinator(svcchess.Config{
		Opponent:      opponent,
		Prompter:      o.prompter,
		OpponentDelay: delay,
		MoveBudget:    moveBudget,
		StartFEN:      cfg.StartFEN,
		Player:        cfg.PlayerName,
		EnginePreset:  enginePreset(cfg),
		Sessions:      deps.Sessions,
		Repo:          deps.Repo,
		Notifier:      notifier,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init coordinator: %w", err)
	}
	return deps, nil
}

func openRepository(ctx context.Context, dsn string) (*sql.DB, svcchess.Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := svcchess.EnsureSchema(pctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, svcchess.NewRepository(db), nil
}

func tokenHeaders(token string) notify.HeaderProvider {
	token = strings.TrimSpace(token)
	return func() map[string]string {
		if token == "" {
			return nil
		}
		return map[string]string{"Authorization": "Bearer " + token}
	}
}

func enginePreset(cfg *config.AppConfig) string {
	if !cfg.EngineMode() {
		return ""
	}
	return cfg.EnginePreset
}

// Close releases the engine process and storage connections.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Engine != nil {
		errs = append(errs, d.Engine.Close())
		d.Engine = nil
	}
	if d.Cache != nil {
		errs = append(errs, d.Cache.Close())
		d.Cache = nil
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
		d.DB = nil
	}
	return errors.Join(errs...)
}
