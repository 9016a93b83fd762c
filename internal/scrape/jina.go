package scrape

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/resilience"
	"github.com/sells-group/contact-enricher/pkg/jina"
)

// JinaScraper fetches rendered HTML through the Jina reader. A breaker
// skips it for a while after repeated failures.
type JinaScraper struct {
	client  jina.Client
	breaker *resilience.Breaker
	tokens  atomic.Int64
}

// NewJinaScraper wraps a Jina client. Three consecutive failures open the
// breaker for a minute.
func NewJinaScraper(client jina.Client) *JinaScraper {
	return &JinaScraper{
		client: client,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:      "jina_reader",
			Threshold: 3,
			Cooldown:  time.Minute,
			Counts: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
			TripsImmediately: func(err error) bool {
				return errors.Is(err, jina.ErrQuotaExceeded)
			},
		}),
	}
}

func (j *JinaScraper) Name() string { return "jina" }

// Tokens returns the reader tokens consumed so far.
func (j *JinaScraper) Tokens() int64 { return j.tokens.Load() }

// Supports returns true unless the breaker is open.
func (j *JinaScraper) Supports(_ string) bool {
	return j.breaker.State() != resilience.Open
}

// Scrape fetches a URL via the reader in HTML mode.
func (j *JinaScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.Call(ctx, j.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := j.client.Read(ctx, targetURL, jina.WithFormat("html"))
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.New("jina: unusable response")
		}
		return resp, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina")
	}

	j.tokens.Add(int64(resp.Data.Usage.Tokens))

	final := resp.Data.URL
	if final == "" {
		final = targetURL
	}
	return &Result{
		Page: Page{
			URL:        targetURL,
			FinalURL:   final,
			StatusCode: 200,
			Title:      resp.Data.Title,
			HTML:       []byte(resp.Data.HTML),
		},
		Source: "jina",
	}, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"just a moment",
	"attention required",
}

// needsFallback reports whether a reader response has no usable document.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	html := strings.TrimSpace(resp.Data.HTML)
	if len(html) < minBody {
		return true
	}

	if len(html) < interstitialMax {
		lower := strings.ToLower(html)
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return true
			}
		}
	}
	return false
}
