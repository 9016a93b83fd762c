package resolve

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Checker confirms a candidate website is live.
type Checker interface {
	Check(ctx context.Context, url string) error
}

// HTTPChecker accepts a URL only when a GET ends in 200 after redirects.
type HTTPChecker struct {
	client    *http.Client
	userAgent string
}

// NewHTTPChecker returns an HTTPChecker whose requests time out after timeout.
func NewHTTPChecker(timeout time.Duration, userAgent string) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
	}
}

// Check issues the request. Any non-200 status or transport error rejects.
func (c *HTTPChecker) Check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "resolve: build check request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "resolve: check %s", url)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("resolve: check %s: status %d", url, resp.StatusCode)
	}
	return nil
}
