// Package github provides the GitHub API client used by the approval gate:
// authentication (personal token or App installation tokens), request
// plumbing with retry, and the handful of REST operations the gate needs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/approval-gate/pkg/cache"

	"github.com/codeGROOVE-dev/retry"
)

// Client handles all GitHub API interactions.
type Client struct {
	tokenExpiry       time.Time
	tokens            *cache.Cache // installation tokens keyed by org
	httpClient        *http.Client
	installationIDs   map[string]int
	appID             string
	token             string
	privateKeyPath    string
	currentOrg        string
	privateKeyContent []byte
	tokenMutex        sync.RWMutex
	isAppAuth         bool
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	AppID       string
	AppKeyPath  string
	Token       string // personal access token (for non-app auth)
	HTTPTimeout time.Duration
	UseAppAuth  bool
}

// New creates a new GitHub API client using a personal access token or
// GitHub App authentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.UseAppAuth {
		return newAppAuthClient(ctx, cfg.AppID, cfg.AppKeyPath, cfg.HTTPTimeout)
	}
	return newPersonalTokenClient(ctx, cfg.Token, cfg.HTTPTimeout)
}

// SetCurrentOrg sets the organization whose installation token authenticates
// subsequent requests (App auth only).
func (c *Client) SetCurrentOrg(org string) {
	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	c.currentOrg = org
}

// Token returns the current GitHub token for external use (e.g., sprinkler).
// For App authentication with a current org set, returns the installation
// token; otherwise the base token.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.tokenMutex.RLock()
	org := c.currentOrg
	token := c.token
	c.tokenMutex.RUnlock()

	if c.isAppAuth && org != "" {
		return c.installationToken(ctx, org)
	}
	return token, nil
}

// drainAndCloseBody drains and closes an HTTP response body to prevent
// resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// doRequest makes an HTTP request to the GitHub API with retry logic.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body any) (*http.Response, error) {
	if c.isAppAuth {
		if err := c.refreshJWTIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to refresh JWT: %w", err)
		}
	}

	sanitizedURL := sanitizeURLForLogging(apiURL)
	slog.Debug("HTTP request", "component", "http", "method", method, "url", sanitizedURL)

	var resp *http.Response
	err := retryWithBackoff(ctx, fmt.Sprintf("%s %s", method, sanitizedURL), func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		// refreshJWTIfNeeded writes c.token under tokenMutex.
		c.tokenMutex.RLock()
		authToken := c.token
		org := c.currentOrg
		c.tokenMutex.RUnlock()
		if c.isAppAuth && org != "" {
			installToken, err := c.installationToken(ctx, org)
			if err == nil {
				authToken = installToken
			} else {
				// Graceful degradation: try with the JWT, which may have limited access.
				slog.Warn("Failed to get installation token, attempting with JWT", "org", org, "error", err)
			}
		}

		if c.isAppAuth {
			req.Header.Set("Authorization", "Bearer "+authToken)
		} else {
			req.Header.Set("Authorization", "token "+authToken)
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if method == http.MethodPost || method == http.MethodPatch || method == http.MethodPut || method == http.MethodDelete {
			req.Header.Set("Content-Type", "application/json")
		}

		localResp, err := c.httpClient.Do(req) //nolint:bodyclose // body is closed by the caller or drainAndCloseBody
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if localResp.StatusCode == http.StatusTooManyRequests {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Rate limited, will retry with backoff", "method", method, "url", sanitizedURL)
			return fmt.Errorf("http %d: rate limited", localResp.StatusCode)
		}

		if localResp.StatusCode >= http.StatusInternalServerError && localResp.StatusCode < 600 {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Server error, will retry with backoff", "method", method, "url", sanitizedURL, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: server error", localResp.StatusCode)
		}

		resp = localResp
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("HTTP response", "component", "http", "method", method, "url", sanitizedURL, "status", resp.StatusCode)
	return resp, nil
}

// Retry constants.
const (
	maxRetryAttempts  = 8               // Maximum retry attempts for API calls
	initialRetryDelay = 1 * time.Second // Initial delay for retry attempts
	maxRetryDelay     = 2 * time.Minute // Maximum delay cap
)

// retryWithBackoff executes a function with exponential backoff and jitter.
func retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(maxRetryAttempts)),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(initialRetryDelay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", maxRetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if err == nil {
				return false
			}
			errStr := err.Error()
			return strings.Contains(errStr, "rate limited") ||
				strings.Contains(errStr, "server error") ||
				strings.Contains(errStr, "connection refused") ||
				strings.Contains(errStr, "timeout") ||
				strings.Contains(errStr, "temporary failure") ||
				strings.Contains(errStr, "EOF")
		}),
	)
}

// errorWithStatus reads an error response body into a status-tagged error.
func errorWithStatus(action string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to %s: status %d (could not read body: %w)", action, resp.StatusCode, err)
	}
	return fmt.Errorf("failed to %s: status %d: %s", action, resp.StatusCode, string(body))
}

// sanitizeURLForLogging strips query parameters, which can carry tokens.
func sanitizeURLForLogging(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "(unparseable URL)"
	}
	u.RawQuery = ""
	return u.String()
}
