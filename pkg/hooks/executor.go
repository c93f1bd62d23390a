// Package hooks runs "webhook" object macros: the object body names an
// HTTP endpoint that is posted the call and answers with reply text.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/voicetyped/rivebot/pkg/brain"
)

// Language is the object language served by Executor.
const Language = "webhook"

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
	maxBreakers     = 10000
)

// ErrCircuitOpen is returned while an endpoint's breaker is open.
var ErrCircuitOpen = errors.New("hook circuit open")

// Option configures an Executor.
type Option func(*Executor)

// AllowPrivateIPs disables the reserved address checks. Use only in tests.
func AllowPrivateIPs() Option {
	return func(e *Executor) { e.allowPrivate = true }
}

// WithBreaker sets the per-endpoint trip threshold and open interval.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(e *Executor) {
		e.tripAfter = failures
		e.openFor = openFor
	}
}

// Executor calls hook endpoints. It implements brain.MacroHandler.
type Executor struct {
	httpClient   *http.Client
	allowPrivate bool
	tripAfter    uint32
	openFor      time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

var _ brain.MacroHandler = (*Executor)(nil)

// NewExecutor creates a hook executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		tripAfter: 5,
		openFor:   30 * time.Second,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext:         guardedDialer(e.allowPrivate).DialContext,
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     60 * time.Second,
		},
	}
	return e
}

// Call runs one <call> of a webhook object.
func (e *Executor) Call(ctx context.Context, call brain.MacroCall) (string, error) {
	cfg, err := ParseConfig(call.Object.Body)
	if err != nil {
		return "", err
	}
	resp, err := e.Execute(ctx, cfg, Request{
		SessionID: call.UserID,
		Object:    call.Object.Name,
		Topic:     call.Topic,
		Args:      call.Args,
		Variables: call.Variables,
	})
	if err != nil {
		return "", err
	}
	return resp.Reply, nil
}

// Execute posts req to the hook endpoint and decodes its response.
func (e *Executor) Execute(ctx context.Context, cfg Config, req Request) (*Response, error) {
	if err := ValidateURL(ctx, cfg.URL, e.allowPrivate); err != nil {
		return nil, fmt.Errorf("hook URL validation: %w", err)
	}

	resp, err := e.breaker(cfg.URL).Execute(func() (*Response, error) {
		return e.post(ctx, cfg, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return resp, err
}

func (e *Executor) post(ctx context.Context, cfg Config, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal hook request: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create hook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	switch cfg.AuthType {
	case "bearer":
		httpReq.Header.Set("Authorization", "Bearer "+cfg.AuthSecret)
	case "hmac":
		httpReq.Header.Set(SignatureHeader, Sign(cfg.AuthSecret, body))
	}
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read hook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.WarnContext(ctx, "hook returned error status",
			slog.String("url", cfg.URL), slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("hook returned HTTP %d", resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal hook response: %w", err)
	}
	return &out, nil
}

func (e *Executor) breaker(url string) *gobreaker.CircuitBreaker[*Response] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[url]; ok {
		return cb
	}
	if len(e.breakers) >= maxBreakers {
		for k := range e.breakers {
			delete(e.breakers, k)
			break
		}
	}
	tripAfter := e.tripAfter
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Timeout:     e.openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("hook breaker state changed", "url", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[url] = cb
	return cb
}

// BreakerState returns the breaker state of an endpoint ("closed" when it
// has not been called).
func (e *Executor) BreakerState(url string) string {
	e.mu.Lock()
	cb, ok := e.breakers[url]
	e.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}
