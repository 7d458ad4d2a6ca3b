package tokenclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/pkg/circuitbreaker"
	"chatgate/pkg/retry"
	"chatgate/pkg/tracing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const maxResponseBytes = 64 << 10

type Config struct {
	Endpoint         string
	Timeout          time.Duration
	RetryAttempts    int // 0 means a single attempt
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Client requests video grants from the token endpoint.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retry      retry.Config
	metrics    ports.Metrics
	logger     *zap.SugaredLogger
}

func New(cfg Config, metrics ports.Metrics, logger *zap.SugaredLogger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("token endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	if cfg.BreakerThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.BreakerThreshold
	}
	if cfg.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.BreakerTimeout
	}
	breaker := circuitbreaker.New(breakerCfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("token endpoint breaker changed state",
			"from", from.String(),
			"to", to.String(),
		)
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.Enabled = cfg.RetryAttempts > 0
	retryCfg.MaxAttempts = cfg.RetryAttempts + 1
	retryCfg.Retryable = isTransient

	return &Client{
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		breaker:    breaker,
		retry:      retryCfg,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// RequestToken posts {"identity": identity} and returns the granted token.
func (c *Client) RequestToken(ctx context.Context, identity string) (domain.VideoToken, error) {
	ctx, span := tracing.TraceTokenRequest(ctx, identity)
	defer span.End()
	start := time.Now()

	value, err := retry.Do(ctx, c.retry, func(ctx context.Context) (string, error) {
		var token string
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			token, err = c.post(ctx, identity)
			return err
		}, countsAgainstEndpoint)
		return token, err
	})

	duration := time.Since(start)
	tracing.MeasureDuration(ctx, start)
	if c.metrics != nil {
		c.metrics.TokenRequested(err == nil, duration)
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Warnw("token request failed",
			"identity", identity,
			"duration", duration,
			"error", err,
		)
		if errors.Is(err, domain.ErrTokenRequest) {
			return domain.VideoToken{}, err
		}
		return domain.VideoToken{}, fmt.Errorf("%w: %w", domain.ErrTokenRequest, err)
	}

	token := domain.VideoToken{Identity: identity, Value: value, ExpiresAt: expiry(value)}
	c.logger.Debugw("token granted", "identity", identity, "duration", duration)
	return token, nil
}

func (c *Client) post(ctx context.Context, identity string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"identity": identity})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	token, err := decodeToken(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTokenRequest, err)
	}
	return token, nil
}

// decodeToken accepts {"token": "..."} or a bare JSON string.
func decodeToken(body []byte) (string, error) {
	var token string

	var wrapped struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		token = wrapped.Token
	} else if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("empty token in response")
	}
	return token, nil
}

// expiry reads exp from a JWT-shaped token without verifying it. Opaque
// tokens have no expiry.
func expiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("token endpoint returned %d", e.code)
	}
	return fmt.Sprintf("token endpoint returned %d: %s", e.code, e.body)
}

// isTransient allows retries for network failures and 5xx answers.
func isTransient(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return !errors.Is(err, domain.ErrTokenRequest)
}

// countsAgainstEndpoint keeps caller cancellation and 4xx answers from
// tripping the breaker.
func countsAgainstEndpoint(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return true
}

var _ ports.TokenRequester = (*Client)(nil)
