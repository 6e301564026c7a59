package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Desk/internal/domain"
)

// HeaderProvider injects per-request headers such as an auth token.
type HeaderProvider func() map[string]string

// GameFinishedEvent is the JSON body posted for each archived game.
type GameFinishedEvent struct {
	Event      string    `json:"event"`
	GameID     string    `json:"game_id"`
	ArchiveID  int64     `json:"archive_id,omitempty"`
	Player     string    `json:"player"`
	Opponent   string    `json:"opponent"`
	Preset     string    `json:"preset,omitempty"`
	Result     string    `json:"result"`
	Method     string    `json:"method"`
	Moves      []string  `json:"moves"`
	PGN        string    `json:"pgn"`
	ECOCode    string    `json:"eco_code,omitempty"`
	ECOTitle   string    `json:"eco_title,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMs int64     `json:"duration_ms"`
}

func eventFromGame(g *domain.ChessGame) GameFinishedEvent {
	return GameFinishedEvent{
		Event:      "game_finished",
		GameID:     g.GameID,
		ArchiveID:  g.ID,
		Player:     g.Player,
		Opponent:   g.Opponent,
		Preset:     g.EnginePreset,
		Result:     g.Result,
		Method:     g.ResultMethod,
		Moves:      g.MovesSAN,
		PGN:        g.PGN,
		ECOCode:    g.ECOCode,
		ECOTitle:   g.ECOTitle,
		StartedAt:  g.StartedAt,
		EndedAt:    g.EndedAt,
		DurationMs: g.Duration.Milliseconds(),
	}
}

// Webhook posts finished games to an HTTP endpoint.
type Webhook struct {
	url     string
	http    *fasthttp.Client
	headers HeaderProvider
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Webhook)

func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) { w.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(w *Webhook) { w.retryMax = max }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(w *Webhook) { w.headers = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithHTTPClient replaces the fasthttp client, e.g. to dial an in-memory listener.
func WithHTTPClient(c *fasthttp.Client) Option {
	return func(w *Webhook) { w.http = c }
}

func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 4},
		logger:         zap.NewNop(),
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Webhook) GameFinished(ctx context.Context, game *domain.ChessGame) error {
	if game == nil {
		return errors.New("nil chess game")
	}
	if err := w.postJSON(ctx, eventFromGame(game)); err != nil {
		return fmt.Errorf("notify game %s: %w", game.GameID, err)
	}
	w.logger.Info("game notification sent", zap.String("game_id", game.GameID))
	return nil
}

func (w *Webhook) postJSON(ctx context.Context, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(w.url)
	req.Header.SetContentType("application/json")
	if w.headers != nil {
		for k, v := range w.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	req.SetBody(payload)

	attempts := w.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := w.http.DoDeadline(req, resp, w.deadline(ctx))
		switch {
		case err != nil:
			lastErr = fmt.Errorf("request failed: %w", err)
		case resp.StatusCode() < 200 || resp.StatusCode() >= 300:
			status := resp.StatusCode()
			lastErr = fmt.Errorf("webhook error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if !shouldRetryStatus(status) {
				return lastErr
			}
		default:
			return nil
		}
		if attempt == attempts {
			break
		}
		w.logger.Debug("webhook retry", zap.Int("attempt", attempt), zap.Error(lastErr))
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	return lastErr
}

func (w *Webhook) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(w.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDuration doubles from 100ms and caps at 3.2s.
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway, fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
