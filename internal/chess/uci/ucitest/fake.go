// Package ucitest provides an in-process UCI engine speaking over io.Pipe.
package ucitest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DefaultOptions mirrors the option lines a recent Stockfish advertises.
var DefaultOptions = []string{
	"option name Threads type spin default 1 min 1 max 1024",
	"option name Hash type spin default 16 min 1 max 33554432",
	"option name MultiPV type spin default 1 min 1 max 256",
	"option name Skill Level type spin default 20 min 0 max 20",
	"option name UCI_LimitStrength type check default false",
	"option name UCI_Elo type spin default 1320 min 1320 max 3190",
}

type Script struct {
	Name string
	// Options are raw "option name ..." lines; nil means DefaultOptions.
	Options []string
	// BestMoves are returned in order; the last one repeats. Empty means e7e5.
	BestMoves []string
	// Info lines are emitted before every bestmove.
	Info []string
	// CrashOnGo closes both streams when the nth "go" arrives (1-based).
	CrashOnGo int
	// Stall makes the engine ignore every "go".
	Stall bool
}

type Engine struct {
	script Script

	cmdR *io.PipeReader
	cmdW *io.PipeWriter
	outR *io.PipeReader
	outW *io.PipeWriter

	mu       sync.Mutex
	commands []string
	goCount  int

	done chan struct{}
}

func Start(script Script) *Engine {
	if script.Name == "" {
		script.Name = "FakeFish 1.0"
	}
	if script.Options == nil {
		script.Options = DefaultOptions
	}
	e := &Engine{script: script, done: make(chan struct{})}
	e.cmdR, e.cmdW = io.Pipe()
	e.outR, e.outW = io.Pipe()
	go e.run()
	return e
}

// Reader is the engine's stdout as seen by the client.
func (e *Engine) Reader() io.Reader { return e.outR }

// Writer is the engine's stdin as seen by the client.
func (e *Engine) Writer() io.WriteCloser { return e.cmdW }

// Done is closed once the engine loop has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// Saw reports whether any received command starts with prefix.
func (e *Engine) Saw(prefix string) bool {
	for _, c := range e.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (e *Engine) GoCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.goCount
}

func (e *Engine) run() {
	defer close(e.done)
	defer e.outW.Close()

	scanner := bufio.NewScanner(e.cmdR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		e.mu.Lock()
		e.commands = append(e.commands, line)
		e.mu.Unlock()

		switch {
		case line == "uci":
			lines := append([]string{"id name " + e.script.Name, "id author test"}, e.script.Options...)
			if !e.write(append(lines, "uciok")...) {
				return
			}
		case line == "isready":
			if !e.write("readyok") {
				return
			}
		case strings.HasPrefix(line, "go"):
			e.mu.Lock()
			e.goCount++
			n := e.goCount
			e.mu.Unlock()
			if e.script.CrashOnGo > 0 && n == e.script.CrashOnGo {
				e.cmdR.Close()
				return
			}
			if e.script.Stall {
				continue
			}
			lines := append(append([]string(nil), e.script.Info...), "bestmove "+e.bestMove(n))
			if !e.write(lines...) {
				return
			}
		case line == "quit":
			e.cmdR.Close()
			return
		}
	}
}

func (e *Engine) bestMove(n int) string {
	moves := e.script.BestMoves
	if len(moves) == 0 {
		return "e7e5"
	}
	if n > len(moves) {
		return moves[len(moves)-1]
	}
	return moves[n-1]
}

func (e *Engine) write(lines ...string) bool {
	for _, l := range lines {
		if _, err := fmt.Fprintln(e.outW, l); err != nil {
			return false
		}
	}
	return true
}
