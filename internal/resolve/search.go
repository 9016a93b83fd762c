package resolve

import (
	"context"
	"errors"

	"github.com/sells-group/contact-enricher/internal/resilience"
	"github.com/sells-group/contact-enricher/pkg/google"
	"github.com/sells-group/contact-enricher/pkg/jina"
)

// Searcher returns result URLs for a query, best first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// SearchOutcome classifies one name search.
type SearchOutcome string

const (
	SearchNotRun    SearchOutcome = ""
	SearchFound     SearchOutcome = "found"
	SearchEmpty     SearchOutcome = "empty"
	SearchQuota     SearchOutcome = "quota_exceeded"
	SearchTransient SearchOutcome = "transient"
	SearchFailed    SearchOutcome = "failed"
	// SearchPaused means the breaker skipped the call after a quota error.
	SearchPaused SearchOutcome = "paused"
)

// IsQuotaError reports whether err means the provider's quota is spent.
func IsQuotaError(err error) bool {
	return errors.Is(err, google.ErrQuotaExceeded) || errors.Is(err, jina.ErrQuotaExceeded)
}

func classifySearch(urls []string, err error) SearchOutcome {
	switch {
	case err == nil && len(urls) == 0:
		return SearchEmpty
	case err == nil:
		return SearchFound
	case errors.Is(err, resilience.ErrOpen):
		return SearchPaused
	case IsQuotaError(err):
		return SearchQuota
	case resilience.IsTransient(err):
		return SearchTransient
	default:
		return SearchFailed
	}
}

// GoogleSearcher adapts the Custom Search client.
type GoogleSearcher struct {
	Client google.Client
}

// Search implements Searcher.
func (g GoogleSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	resp, err := g.Client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Link != "" {
			urls = append(urls, it.Link)
		}
	}
	return urls, nil
}

// JinaSearcher adapts the Jina search client.
type JinaSearcher struct {
	Client jina.Client
}

// Search implements Searcher.
func (j JinaSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	resp, err := j.Client.Search(ctx, query, jina.WithNum(limit))
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls, nil
}
