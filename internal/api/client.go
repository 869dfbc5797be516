package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized indicates a missing or rejected session token.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError reports a non-2xx response that does not map to a sentinel
// error.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("database api: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("database api: %s (status %d)", e.Message, e.StatusCode)
}

// Client talks to the SnatchShot database API. All calls honour the
// configured request timeout and pass through a client-side token bucket so
// a misbehaving caller loop cannot hammer the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	throttle   throttle
	logger     *zap.Logger

	mu           sync.RWMutex
	sessionToken string
}

// Option configures Client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithThrottle overrides the default request throttle (primarily for tests).
func WithThrottle(t throttle) Option {
	return func(c *Client) {
		c.throttle = t
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a database API client for the resolved base URL and
// timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		throttle:   newTokenBucketThrottle(10, 20),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetSessionToken stores the bearer token attached to subsequent requests.
// An empty token clears authentication.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.sessionToken = token
	c.mu.Unlock()
}

func (c *Client) currentSessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

// Health checks the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var resp healthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("database api reported status %q", resp.Status)
	}
	return nil
}

// ExchangeIdentity verifies a third-party identity assertion with the
// backend and returns the issued session.
func (c *Client) ExchangeIdentity(ctx context.Context, req IdentityExchangeRequest) (SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/exchange", req, &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// GetProfile fetches the stored profile for a user.
func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, fmt.Errorf("user id must not be empty")
	}
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID), nil, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// ListRecommendations returns the styling recommendations available for a
// user, newest first.
func (c *Client) ListRecommendations(ctx context.Context, userID string) ([]Recommendation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id must not be empty")
	}
	var recs []Recommendation
	path := "/v1/users/" + url.PathEscape(userID) + "/recommendations"
	if err := c.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// SubmitPoseAnalysis uploads capture data for styling analysis and returns
// the recommendations produced for it.
func (c *Client) SubmitPoseAnalysis(ctx context.Context, analysis PoseAnalysis) ([]Recommendation, error) {
	if analysis.SessionID == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}
	if len(analysis.Keypoints) == 0 {
		return nil, fmt.Errorf("pose analysis must contain at least one keypoint")
	}
	var recs []Recommendation
	if err := c.do(ctx, http.MethodPost, "/v1/pose-analyses", analysis, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// SendFeedback records the user's reaction to a recommendation.
func (c *Client) SendFeedback(ctx context.Context, fb Feedback) error {
	if fb.RecommendationID == "" {
		return fmt.Errorf("recommendation id must not be empty")
	}
	return c.do(ctx, http.MethodPost, "/v1/feedback", fb, nil)
}

// do performs a JSON round-trip against the backend. A nil out discards the
// response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return fmt.Errorf("request throttled: %w", err)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.currentSessionToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.Debug("database api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.mapError(resp.StatusCode, resp.Body)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func (c *Client) mapError(status int, body io.Reader) error {
	var details errorResponse
	_ = json.NewDecoder(body).Decode(&details)

	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}

	message := details.Error
	if details.Details != "" {
		message = fmt.Sprintf("%s: %s", details.Error, details.Details)
	}
	return &StatusError{StatusCode: status, Message: message}
}
