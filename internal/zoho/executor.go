package zoho

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	authScheme   = "Zoho-oauthtoken"
	orgIDHeader  = "ZANALYTICS-ORGID"
	maxErrorBody = 4096
)

// TokenProvider supplies access tokens to the executor.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, stale string) (string, error)
}

// Request describes an outbound call before auth headers are attached.
type Request struct {
	Op     string // short name used in errors and logs, e.g. "create export job"
	Method string
	URL    string
	Body   []byte
}

// ExecutorConfig configures the authenticated executor.
type ExecutorConfig struct {
	OrgID     string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	RateBurst int
	Transport http.RoundTripper
}

// Executor performs every outbound call to the analytics API.
type Executor struct {
	tokens      TokenProvider
	orgID       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
}

// NewExecutor creates an executor that authenticates through tokens.
func NewExecutor(tokens TokenProvider, cfg ExecutorConfig, logger zerolog.Logger) *Executor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 5
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return &Executor{
		tokens: tokens,
		orgID:  cfg.OrgID,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: limiter,
		logger:      logger.With().Str("component", "executor").Logger(),
	}
}

// Do sends req with the current access token and returns the response body.
// A 401 forces one token refresh and one retry; any other failure is returned immediately.
func (e *Executor) Do(ctx context.Context, req Request) ([]byte, error) {
	token, err := e.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := e.send(ctx, req, token)
	if err != nil {
		return nil, &UpstreamError{Op: req.Op, Err: err}
	}

	if status == http.StatusUnauthorized {
		e.logger.Warn().Str("op", req.Op).Msg("Access token rejected, refreshing and retrying once")

		token, err = e.tokens.ForceRefresh(ctx, token)
		if err != nil {
			return nil, err
		}

		status, body, err = e.send(ctx, req, token)
		if err != nil {
			return nil, &UpstreamError{Op: req.Op, Err: err}
		}
	}

	if status >= http.StatusBadRequest {
		return nil, &UpstreamError{Op: req.Op, StatusCode: status, Body: truncate(body)}
	}

	return body, nil
}

// send performs a single attempt.
func (e *Executor) send(ctx context.Context, req Request, token string) (int, []byte, error) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", authScheme+" "+token)
	if e.orgID != "" {
		httpReq.Header.Set(orgIDHeader, e.orgID)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	e.logger.Debug().
		Str("op", req.Op).
		Str("method", req.Method).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Analytics API call")

	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
