package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	quitGrace            = 500 * time.Millisecond
	lineBuffer           = 64
)

var (
	ErrEngineExited   = errors.New("engine process exited")
	ErrMalformedReply = errors.New("malformed engine reply")
	ErrSessionClosed  = errors.New("engine session closed")
)

type Options struct {
	Threads       int
	SkillLevel    int
	HashMB        int
	MultiPV       int
	LimitStrength bool
	Elo           int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

// EngineOption is one "option name ..." line advertised during the handshake.
type EngineOption struct {
	Name    string
	Type    string
	Default string
	Min     int
	Max     int
	HasMin  bool
	HasMax  bool
}

type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	done   chan struct{}
	logger *zap.Logger

	readErr error

	name    string
	options map[string]EngineOption

	mu     sync.Mutex
	search sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewSession starts binaryPath and completes the UCI handshake. ctx bounds
// the startup only; the process lives until Close.
func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := newSession(stdoutPipe, stdin, logger)
	s.cmd = cmd

	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// NewPipeSession speaks UCI over an already connected stream pair.
func NewPipeSession(ctx context.Context, r io.Reader, w io.WriteCloser, opt Options, logger *zap.Logger) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	s := newSession(r, w, logger)
	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(r io.Reader, w io.WriteCloser, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		stdin:   w,
		lines:   make(chan string, lineBuffer),
		done:    make(chan struct{}),
		logger:  logger,
		options: make(map[string]EngineOption),
	}
	go s.pump(r)
	return s
}

func (s *Session) pump(r io.Reader) {
	defer close(s.lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	s.readErr = scanner.Err()
}

// Name is the "id name" the engine reported.
func (s *Session) Name() string { return s.name }

// Option returns an advertised option by name (case-insensitive).
func (s *Session) Option(name string) (EngineOption, bool) {
	opt, ok := s.options[strings.ToLower(name)]
	return opt, ok
}

type SearchRequest struct {
	FEN         string
	Moves       []string
	Limits      Limits
	GoOverrides []string
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
}

func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goTokens := req.GoOverrides
	var err error
	if len(goTokens) == 0 {
		goTokens, err = buildGoTokens(req.Limits)
		if err != nil {
			return SearchResponse{}, err
		}
	}

	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	candidates := make(map[int]Candidate)
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			s.logger.Warn("uci read failed",
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if mv, cand, ok := parseInfo(line); ok {
				candidates[mv] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			parts := strings.Fields(line)
			if len(parts) < 2 || parts[1] == "(none)" || parts[1] == "0000" {
				return SearchResponse{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
			}
			return SearchResponse{Candidates: collapseCandidates(candidates), BestMove: parts[1]}, nil
		}
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func validateOptions(opt Options) error {
	if opt.SkillLevel < 0 || opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	if opt.HashMB < 0 {
		return fmt.Errorf("hash size must be >= 0: %d", opt.HashMB)
	}
	if opt.MultiPV < 0 {
		return fmt.Errorf("multipv must be >= 0: %d", opt.MultiPV)
	}
	if opt.Elo < 0 {
		return fmt.Errorf("elo must be >= 0: %d", opt.Elo)
	}
	return nil
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		ms := l.MoveTimeMillis + 2000
		return time.Duration(ms) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, Candidate{}, false
	}
	var (
		multipv = 1
		evalCP  int
		pvIdx   = -1
	)

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				kind, val := parts[i+1], parts[i+2]
				if v, err := strconv.Atoi(val); err == nil {
					switch kind {
					case "cp":
						evalCP = v
					case "mate":
						const mateValue = 30000
						if v >= 0 {
							evalCP = mateValue
						} else {
							evalCP = -mateValue
						}
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return 0, Candidate{}, false
	}
	principal := parts[pvIdx:]
	cand := Candidate{
		Move:      principal[0],
		EvalCP:    evalCP,
		Principal: append([]string(nil), principal...),
	}
	return multipv, cand, true
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}

// parseOption reads "option name <name...> type <t> [default d] [min x] [max y] ...".
func parseOption(line string) (EngineOption, bool) {
	parts := strings.Fields(line)
	if len(parts) < 5 || parts[0] != "option" || parts[1] != "name" {
		return EngineOption{}, false
	}
	var (
		opt       EngineOption
		nameParts []string
		i         = 2
	)
	for ; i < len(parts) && parts[i] != "type"; i++ {
		nameParts = append(nameParts, parts[i])
	}
	if len(nameParts) == 0 || i+1 >= len(parts) {
		return EngineOption{}, false
	}
	opt.Name = strings.Join(nameParts, " ")
	opt.Type = parts[i+1]
	for i += 2; i+1 < len(parts); i++ {
		switch parts[i] {
		case "default":
			opt.Default = parts[i+1]
			i++
		case "min":
			if v, err := strconv.Atoi(parts[i+1]); err == nil {
				opt.Min, opt.HasMin = v, true
			}
			i++
		case "max":
			if v, err := strconv.Atoi(parts[i+1]); err == nil {
				opt.Max, opt.HasMax = v, true
			}
			i++
		}
	}
	return opt, true
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts || errors.Is(err, ErrEngineExited) {
			return err
		}
		s.logger.Warn("uci ensure ready retry after ucinewgame",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", newGameRetryAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

// Close asks the engine to quit and reaps the process. Safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.send("quit\n")

		s.mu.Lock()
		s.closed = true
		if s.stdin != nil {
			s.stdin.Close()
		}
		s.mu.Unlock()
		close(s.done)

		if s.cmd == nil || s.cmd.Process == nil {
			return
		}
		waitCh := make(chan error, 1)
		go func() { waitCh <- s.cmd.Wait() }()
		select {
		case err := <-waitCh:
			s.closeErr = err
		case <-time.After(quitGrace):
			_ = s.cmd.Process.Kill()
			<-waitCh
		}
	})
	return s.closeErr
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.readHandshake(initCtx); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	if err := s.applyOptions(opt); err != nil {
		return err
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) readHandshake(ctx context.Context) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		switch {
		case line == "uciok":
			return nil
		case strings.HasPrefix(line, "id name "):
			s.name = strings.TrimSpace(strings.TrimPrefix(line, "id name "))
		case strings.HasPrefix(line, "option "):
			if opt, ok := parseOption(line); ok {
				s.options[strings.ToLower(opt.Name)] = opt
			}
		}
	}
}

func (s *Session) applyOptions(opt Options) error {
	type setting struct {
		name  string
		value int
		raw   string
	}
	var settings []setting
	if opt.Threads > 0 {
		settings = append(settings, setting{name: "Threads", value: opt.Threads})
	}
	if opt.HashMB > 0 {
		settings = append(settings, setting{name: "Hash", value: opt.HashMB})
	}
	settings = append(settings, setting{name: "Skill Level", value: opt.SkillLevel})
	if opt.MultiPV > 0 {
		settings = append(settings, setting{name: "MultiPV", value: opt.MultiPV})
	}
	if opt.LimitStrength {
		settings = append(settings, setting{name: "UCI_LimitStrength", raw: "true"})
		if opt.Elo > 0 {
			settings = append(settings, setting{name: "UCI_Elo", value: opt.Elo})
		}
	}

	for _, st := range settings {
		adv, ok := s.Option(st.name)
		if !ok {
			s.logger.Warn("engine does not advertise option, skipping", zap.String("option", st.name))
			continue
		}
		value := st.raw
		if value == "" {
			v := st.value
			if adv.HasMin && v < adv.Min {
				v = adv.Min
			}
			if adv.HasMax && v > adv.Max {
				v = adv.Max
			}
			if v != st.value {
				s.logger.Info("engine option clamped",
					zap.String("option", st.name),
					zap.Int("requested", st.value),
					zap.Int("applied", v),
				)
			}
			value = strconv.Itoa(v)
		}
		if err := s.send(fmt.Sprintf("setoption name %s value %s\n", adv.Name, value)); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.logger.Debug("uci send", zap.String("cmd", strings.TrimSpace(msg)))
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			if s.readErr != nil {
				return "", fmt.Errorf("%w: %v", ErrEngineExited, s.readErr)
			}
			return "", ErrEngineExited
		}
		return line, nil
	}
}
