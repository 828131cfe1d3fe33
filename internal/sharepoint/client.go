package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries       = 5
	baseBackoff      = 1 * time.Second
	maxBackoff       = 60 * time.Second
	maxRetryAfter    = 5 * time.Minute
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	defaultUserAgent = "spmirror/0.1"
)

// acceptNoMetadata asks for plain JSON without OData annotations.
const acceptNoMetadata = "application/json;odata=nometadata"

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer; auth.go
// provides the implementations.
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for one SharePoint site's REST API.
type Client struct {
	siteURL    string // absolute site URL without trailing slash
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the site at siteURL, e.g.
// "https://contoso.sharepoint.com/sites/Team". An empty userAgent uses the
// default.
func NewClient(siteURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if token == nil {
		panic("sharepoint: NewClient requires a non-nil TokenSource")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		siteURL:    strings.TrimSuffix(siteURL, "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		sleepFunc:  timeSleep,
	}
}

// SiteURL returns the absolute site URL the client targets.
func (c *Client) SiteURL() string {
	return c.siteURL
}

// Do executes a request against the site's REST endpoint. apiPath is
// appended to "<site>/_api", e.g. "/web". The caller closes the response
// body on success.
func (c *Client) Do(ctx context.Context, method, apiPath string, body io.Reader) (*http.Response, error) {
	return c.DoWithHeaders(ctx, method, apiPath, body, nil)
}

// DoWithHeaders is Do with extra request headers. A body is replayed on
// retry only if it implements io.Seeker.
func (c *Client) DoWithHeaders(
	ctx context.Context, method, apiPath string, body io.Reader, headers http.Header,
) (*http.Response, error) {
	url := c.siteURL + "/_api" + apiPath

	var attempt int
	for {
		if attempt > 0 {
			if err := rewindBody(body); err != nil {
				return nil, fmt.Errorf("sharepoint: rewinding request body for retry: %w", err)
			}
		}

		resp, err := c.doOnce(ctx, method, url, body, headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("sharepoint: request canceled: %w", ctx.Err())
			}

			var tokErr *tokenError
			if errors.As(err, &tokErr) {
				return nil, err
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", apiPath),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("sharepoint: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("sharepoint: %s %s failed after %d retries: %w", method, apiPath, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", apiPath),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", apiPath),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("sharepoint: request canceled: %w", err)
			}

			attempt++

			continue
		}

		apiErr := newAPIError(resp.StatusCode, requestID(resp), errBody)

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", apiPath),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// tokenError marks a failure to obtain a bearer token. It is never retried
// by the HTTP loop; the token source has its own retry semantics.
type tokenError struct {
	err error
}

func (e *tokenError) Error() string { return "sharepoint: obtaining token: " + e.err.Error() }
func (e *tokenError) Unwrap() error { return e.err }

// Is makes every token failure match ErrAuthentication.
func (e *tokenError) Is(target error) bool { return target == ErrAuthentication }

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(
	ctx context.Context, method, url string, body io.Reader, headers http.Header,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, &tokenError{err: err}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptNoMetadata)

	if body != nil {
		req.Header.Set("Content-Type", acceptNoMetadata)
	}

	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return c.httpClient.Do(req)
}

// rewindBody seeks a replayable body back to its start. Non-seekable and nil
// bodies are left alone.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	s, ok := body.(io.Seeker)
	if !ok {
		return nil
	}

	_, err := s.Seek(0, io.SeekStart)

	return err
}

// requestID returns SharePoint's correlation ID for a response.
func requestID(resp *http.Response) string {
	if id := resp.Header.Get("SPRequestGuid"); id != "" {
		return id
	}

	return resp.Header.Get("request-id")
}

// retryBackoff returns the wait before retrying resp. SharePoint sends
// Retry-After (in seconds) on both 429 and 503 when throttling.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, maxRetryAfter)
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
