package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/Cheese-Desk/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-Desk/internal/chessbuilder"
	appcfg "github.com/park285/Cheese-Desk/internal/config"
	"github.com/park285/Cheese-Desk/internal/obslog"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		return 1
	}
	defer obslog.Close()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := readLines(os.Stdin)
	prompter := &linePrompter{lines: lines}
	deps, err := chessbuilder.New(ctx, cfg, logger, chessbuilder.WithPrompter(prompter))
	if err != nil {
		fmt.Fprintf(os.Stderr, "chess init error: %v\n", err)
		return 1
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			logger.Warn("shutdown", zap.Error(cerr))
		}
	}()

	presenter := chesspresenter.NewPresenter(os.Stdout, deps.Formatter, deps.Renderer, cfg.SnapshotDir)
	prompter.presenter = presenter
	deps.Coordinator.OnUpdate(presenter.HandleUpdate)

	d := &desk{
		coord:        deps.Coordinator,
		presenter:    presenter,
		format:       deps.Formatter,
		geometry:     deps.Renderer.Geometry(),
		historyLimit: cfg.HistoryLimit,
		resume:       cfg.Resume,
		lines:        lines,
	}

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, cancelLoop := context.WithCancel(gctx)
	g.Go(func() error {
		return deps.Coordinator.Run(loopCtx)
	})
	g.Go(func() error {
		defer cancelLoop()
		return d.serve(loopCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("desk stopped", zap.Error(err))
		presenter.Error(err, "")
		return 1
	}
	logger.Info("desk closed")
	return 0
}

// readLines feeds stdin lines to a channel that closes on EOF. The reader
// goroutine blocks in Scan and is left behind on exit.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}
