package board

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"internship-matcher/internal/utils"
)

const (
	defaultTimeout = 12 * time.Second
	maxRetries     = 2
	retryBase      = 500 * time.Millisecond

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/124 Safari/537.36"
)

// Client fetches rendered job-board pages with a consistent browser identity,
// bounded retries with backoff, and a per-host rate limit.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	logger     *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewClient(logger *zap.Logger) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		UserAgent:  userAgent,
		logger:     logger,
		limiters:   make(map[string]*rate.Limiter),
		rps:        rate.Limit(0.5),
		burst:      1,
	}
}

// Fetch GETs the url and returns the response body. Responses with status
// 429 or 5xx are retried a bounded number of times with doubled backoff;
// everything else fails immediately.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.wait(ctx, rawURL); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := utils.WaitFor(ctx, utils.Backoff(retryBase, attempt-1)); err != nil {
				return nil, err
			}
		}

		body, retryable, err := c.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !retryable {
			break
		}

		c.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}

	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	default:
		return nil, false, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	return data, false, nil
}

func (c *Client) wait(ctx context.Context, rawURL string) error {
	host := "_"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	return c.limiterFor(host).Wait(ctx)
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lim, ok := c.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(c.rps, c.burst)
	c.limiters[host] = lim
	return lim
}
