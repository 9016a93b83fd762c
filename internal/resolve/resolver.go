// Package resolve finds a live website for a firm that has none on file.
package resolve

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/resilience"
)

// Method names how a URL was found.
type Method string

const (
	MethodEmail  Method = "email"
	MethodSearch Method = "search"
)

// Rejection is a candidate that failed validation.
type Rejection struct {
	URL    string `json:"url"`
	Method Method `json:"method"`
	Reason string `json:"reason"`
}

// Resolution is the outcome of resolving one firm.
type Resolution struct {
	URL      string        `json:"url,omitempty"`
	Method   Method        `json:"method,omitempty"`
	Search   SearchOutcome `json:"search,omitempty"`
	Rejected []Rejection   `json:"rejected,omitempty"`
}

// Options tunes a Resolver. Zero values take defaults.
type Options struct {
	// MaxResults caps how many search results are inspected. Default 5.
	MaxResults int
	// Interval is the minimum gap between two searches.
	Interval time.Duration
	// Backoff is slept after a search fails before moving on.
	Backoff time.Duration
	// Retries is how many times a transient search failure is retried.
	Retries int
	// QuotaCooldown pauses searching after the provider reports its quota
	// spent. Default 15m.
	QuotaCooldown time.Duration
}

// Resolver derives a candidate website from a firm's email domain, falling
// back to a name search, and accepts it only once validated.
type Resolver struct {
	blacklist *Blacklist
	checker   Checker
	searcher  Searcher
	limiter   *rate.Limiter
	breaker   *resilience.Breaker
	backoff   resilience.Backoff
	opts      Options
	sleep     func(ctx context.Context, d time.Duration)

	queries atomic.Int64
}

// New returns a Resolver. searcher may be nil to disable name search.
func New(bl *Blacklist, checker Checker, searcher Searcher, opts Options) *Resolver {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.QuotaCooldown <= 0 {
		opts.QuotaCooldown = 15 * time.Minute
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	return &Resolver{
		blacklist: bl,
		checker:   checker,
		searcher:  searcher,
		limiter:   rate.NewLimiter(limit, 1),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:             "web_search",
			Threshold:        5,
			Cooldown:         opts.QuotaCooldown,
			TripsImmediately: IsQuotaError,
		}),
		backoff: resilience.Backoff{
			Attempts:   opts.Retries + 1,
			Initial:    max(opts.Backoff, 100*time.Millisecond),
			Max:        max(opts.Backoff*4, time.Second),
			Multiplier: 2,
			Jitter:     0.2,
			OnRetry:    resilience.LogRetry("web_search"),
		},
		opts:  opts,
		sleep: sleepCtx,
	}
}

// Resolve returns a validated website for firm. ok is false when no
// candidate survived; failures along the way are recorded in the
// Resolution and never returned as errors.
func (r *Resolver) Resolve(ctx context.Context, firm *model.Firm) (res Resolution, ok bool) {
	log := zap.L().With(zap.Int64("firm_id", firm.ID))

	tried := make(map[string]struct{})
	for _, email := range firm.Emails {
		candidate, derived := URLFromEmail(email, r.blacklist)
		if !derived {
			continue
		}
		if _, dup := tried[candidate]; dup {
			continue
		}
		tried[candidate] = struct{}{}

		if r.validate(ctx, &res, candidate, MethodEmail) {
			log.Debug("resolve: url derived from email", zap.String("url", candidate))
			return res, true
		}
	}

	name := strings.TrimSpace(firm.Name())
	if name == "" || r.searcher == nil {
		return res, false
	}

	urls, outcome := r.search(ctx, name)
	res.Search = outcome
	if outcome != SearchFound {
		log.Debug("resolve: search produced no urls", zap.String("outcome", string(outcome)))
		return res, false
	}

	candidate := r.pick(urls)
	if candidate == "" {
		res.Search = SearchEmpty
		return res, false
	}
	// Only the first usable result is validated.
	if r.validate(ctx, &res, candidate, MethodSearch) {
		log.Debug("resolve: url found by search", zap.String("url", candidate))
		return res, true
	}
	return res, false
}

func (r *Resolver) validate(ctx context.Context, res *Resolution, candidate string, m Method) bool {
	if err := r.checker.Check(ctx, candidate); err != nil {
		res.Rejected = append(res.Rejected, Rejection{URL: candidate, Method: m, Reason: err.Error()})
		return false
	}
	res.URL = candidate
	res.Method = m
	return true
}

// pick returns the first result, within MaxResults, that is not a
// directory or rating site.
func (r *Resolver) pick(urls []string) string {
	for i, u := range urls {
		if i >= r.opts.MaxResults {
			break
		}
		parsed, err := url.Parse(u)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			continue
		}
		if r.blacklist.IsDirectory(parsed.Hostname()) {
			continue
		}
		return u
	}
	return ""
}

// search runs one rate-limited, retried name search behind the quota
// breaker and classifies the result.
func (r *Resolver) search(ctx context.Context, name string) ([]string, SearchOutcome) {
	urls, err := resilience.Call(ctx, r.breaker, func(ctx context.Context) ([]string, error) {
		return resilience.Retry(ctx, r.backoff, func(ctx context.Context) ([]string, error) {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			r.queries.Add(1)
			return r.searcher.Search(ctx, name, r.opts.MaxResults)
		})
	})

	outcome := classifySearch(urls, err)
	switch outcome {
	case SearchQuota:
		zap.L().Warn("resolve: search quota exceeded, pausing search",
			zap.Duration("cooldown", r.opts.QuotaCooldown), zap.Error(err))
	case SearchTransient, SearchFailed:
		zap.L().Warn("resolve: search failed", zap.String("query", name), zap.Error(err))
		if ctx.Err() == nil {
			r.sleep(ctx, r.opts.Backoff)
		}
	}
	return urls, outcome
}

// Queries returns how many search requests were sent, retries included.
func (r *Resolver) Queries() int64 {
	return r.queries.Load()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
