// Package resilience provides the retry/backoff request engine, transient
// error classification and a circuit breaker for retailer endpoints.
package resilience

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Request describes one logical JSON GET against a retailer endpoint.
// Retailer, Query and Postcode are carried only for log context.
type Request struct {
	URL      string
	Params   url.Values
	Headers  map[string]string
	Retailer string
	Query    string
	Postcode string
}

// HTTPConfig controls the request engine.
type HTTPConfig struct {
	// MaxRetries is the total attempt budget. 1 means a single attempt
	// with no delay. Default: 3.
	MaxRetries int

	// Timeout bounds each individual attempt. Default: 30s.
	Timeout time.Duration

	// BackoffFactor scales the exponential delay: attempt n (n>=1) waits
	// BackoffFactor * 2^n seconds; attempt 0 sends immediately.
	// Default: 1.0.
	BackoffFactor float64
}

func (cfg HTTPConfig) withDefaults() HTTPConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 1.0
	}
	return cfg
}

// Engine executes retailer API requests with exponential backoff and
// retryable/non-retryable classification.
type Engine struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) EngineOption {
	return func(e *Engine) {
		e.client = hc
	}
}

// WithLimiter paces attempts with a shared rate limiter.
func WithLimiter(l *rate.Limiter) EngineOption {
	return func(e *Engine) {
		e.limiter = l
	}
}

// WithSleeper overrides the backoff sleep, for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// NewEngine creates a request engine with the given retry configuration.
func NewEngine(cfg HTTPConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg: cfg.withDefaults(),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffDelay returns the delay inserted before attempt n (0-indexed).
func (e *Engine) backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	secs := e.cfg.BackoffFactor * math.Pow(2, float64(attempt))
	return time.Duration(secs * float64(time.Second))
}

// FetchJSON executes the request with up to MaxRetries attempts and
// returns the parsed JSON body. ok is false when the source is
// unavailable: retry budget exhausted, a non-retryable status, or an
// unparseable 200 body. Callers must treat ok=false as "no candidates"
// and move on to the next acquisition strategy, never as a hard error.
func (e *Engine) FetchJSON(ctx context.Context, req Request) (gjson.Result, bool) {
	log := zap.L().With(
		zap.String("retailer", req.Retailer),
		zap.String("query", req.Query),
		zap.String("postcode", req.Postcode),
		zap.String("url", req.URL),
	)

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if delay := e.backoffDelay(attempt); delay > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				log.Warn("request cancelled during backoff", zap.Int("attempt", attempt))
				return gjson.Result{}, false
			}
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return gjson.Result{}, false
			}
		}

		start := time.Now()
		status, body, err := e.attempt(ctx, req)
		latency := time.Since(start)

		lastAttempt := attempt == e.cfg.MaxRetries-1
		nextDelay := e.backoffDelay(attempt + 1)

		fields := []zap.Field{
			zap.Int("attempt", attempt),
			zap.Duration("latency", latency),
		}

		switch {
		case err == nil && status == http.StatusOK:
			if !gjson.ValidBytes(body) {
				// A malformed 200 body is an upstream contract violation,
				// not transience. Never retried.
				log.Error("unparseable response body",
					append(fields, zap.Int("status", status), zap.Bool("will_retry", false))...)
				return gjson.Result{}, false
			}
			log.Info("request succeeded",
				append(fields, zap.Int("status", status))...)
			return gjson.ParseBytes(body), true

		case err == nil && IsRetryableStatus(status):
			willRetry := !lastAttempt
			log.Warn("retryable status",
				append(fields,
					zap.Int("status", status),
					zap.Duration("next_delay", nextDelay),
					zap.Bool("will_retry", willRetry))...)
			if !willRetry {
				return gjson.Result{}, false
			}

		case err == nil:
			log.Error("non-retryable status",
				append(fields, zap.Int("status", status), zap.Bool("will_retry", false))...)
			return gjson.Result{}, false

		case IsTransient(err):
			willRetry := !lastAttempt
			log.Warn("transient network fault",
				append(fields,
					zap.String("error_kind", "network"),
					zap.Error(err),
					zap.Duration("next_delay", nextDelay),
					zap.Bool("will_retry", willRetry))...)
			if !willRetry {
				return gjson.Result{}, false
			}

		default:
			log.Error("unexpected request fault",
				append(fields,
					zap.String("error_kind", "unexpected"),
					zap.Error(err),
					zap.Bool("will_retry", false))...)
			return gjson.Result{}, false
		}
	}

	return gjson.Result{}, false
}

// attempt performs one bounded HTTP GET.
func (e *Engine) attempt(ctx context.Context, req Request) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	target := req.URL
	if len(req.Params) > 0 {
		target += "?" + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
