// Package google provides a client for the Custom Search JSON API.
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/resilience"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// maxNum is the largest page size the API accepts.
const maxNum = 10

// ErrQuotaExceeded is returned when the daily or per-minute quota is spent.
var ErrQuotaExceeded = eris.New("google: search quota exceeded")

// Client performs web searches.
type Client interface {
	Search(ctx context.Context, query string, num int) (*SearchResponse, error)
}

// SearchResponse is the subset of the Custom Search response we read.
type SearchResponse struct {
	Items []Item `json:"items"`
}

// Item is one organic result.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	DisplayLink string `json:"displayLink"`
	Snippet     string `json:"snippet"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey  string
	cx      string
	baseURL string
	http    *http.Client
}

// NewClient creates a Custom Search client for the engine cx.
func NewClient(apiKey, cx string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		cx:      cx,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, num int) (*SearchResponse, error) {
	if num <= 0 || num > maxNum {
		num = maxNum
	}
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.cx)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.Transient(eris.Wrap(err, "google: read response"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, body)
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}
	return &result, nil
}

// classify maps a non-200 response to a quota, transient or permanent error.
func classify(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	for _, e := range er.Error.Errors {
		if strings.Contains(strings.ToLower(e.Reason), "limitexceeded") || strings.EqualFold(e.Reason, "quotaExceeded") {
			return eris.Wrapf(ErrQuotaExceeded, "google: status %d: %s", status, e.Reason)
		}
	}
	if status == http.StatusTooManyRequests {
		return eris.Wrapf(ErrQuotaExceeded, "google: status %d", status)
	}

	err := eris.Errorf("google: unexpected status %d: %s", status, strings.TrimSpace(er.Error.Message))
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.Transient(err, status)
	}
	return err
}
