package main

import (
	"context"
	"log"
	"os"
	"time"

	corechess "github.com/park285/Cheese-Desk/internal/chess"
	appcfg "github.com/park285/Cheese-Desk/internal/config"
	"github.com/park285/Cheese-Desk/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.StockfishPath == "" {
		log.Fatal("STOCKFISH_PATH is required")
	}
	preset := cfg.EnginePreset
	if len(os.Args) > 1 {
		preset = os.Args[1]
	}

	_ = obslog.Init(obslog.Options{Level: "debug", Console: true, Format: "console"})
	defer obslog.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine, err := corechess.NewEngine(ctx, corechess.EngineConfig{
		BinaryPath: cfg.StockfishPath,
		Preset:     preset,
		MoveTime:   cfg.MoveTime(),
		Logger:     obslog.L(),
	})
	if err != nil {
		log.Fatalf("engine error: %v", err)
	}
	defer engine.Close()

	p := engine.Preset()
	log.Printf("handshake ok: engine=%q (%s) preset=%s skill=%d elo=%d multipv=%d movetime=%dms",
		engine.Name(), engine.ShortName(), p.Name, p.SkillLevel, p.Elo, p.MultiPV, p.MoveTimeMillis)
	goCmd, err := corechess.FormatGoCommand(p, cfg.MoveTime())
	if err != nil {
		log.Printf("go command error: %v", err)
		return
	}
	log.Printf("search command: %s", goCmd)

	res, err := engine.BestMove(ctx, corechess.MoveRequest{})
	if err != nil {
		log.Printf("bestmove error: %v", err)
		return
	}
	log.Printf("bestmove from start: %s (%d candidates, %s)", res.Move, len(res.Candidates), res.Duration)
	for _, c := range res.Candidates {
		log.Printf("  candidate %+v", c)
	}
}
