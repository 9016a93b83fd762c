package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/config"
	"github.com/sells-group/contact-enricher/internal/cost"
	"github.com/sells-group/contact-enricher/internal/enrich"
	"github.com/sells-group/contact-enricher/internal/extract"
	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/registry"
	"github.com/sells-group/contact-enricher/internal/resilience"
	"github.com/sells-group/contact-enricher/internal/resolve"
	"github.com/sells-group/contact-enricher/internal/scrape"
	"github.com/sells-group/contact-enricher/internal/store"
	"github.com/sells-group/contact-enricher/pkg/anthropic"
	"github.com/sells-group/contact-enricher/pkg/google"
	"github.com/sells-group/contact-enricher/pkg/jina"
)

// enrichEnv holds everything the enrich command needs.
type enrichEnv struct {
	Store        store.Store
	Orchestrator *enrich.Orchestrator
	Resolver     *resolve.Resolver
	// Reader is nil unless the Jina fallback is enabled.
	Reader    *scrape.JinaScraper
	Extractor *extract.PageExtractor
	Costs     *cost.Calculator
}

// Usage prices the metered calls made so far.
func (e *enrichEnv) Usage(c *config.Config) cost.Usage {
	m := cost.Metered{
		SearchProvider: c.Search.Provider,
		SearchQueries:  e.Resolver.Queries(),
		LLMModel:       c.Extract.LLM.Model,
	}
	if e.Reader != nil {
		m.ReaderTokens = e.Reader.Tokens()
	}
	calls, usage := e.Extractor.LLMUsage()
	m.LLMCalls = calls
	m.LLMInputTokens = usage.InputTokens
	m.LLMOutputTokens = usage.OutputTokens
	return e.Costs.Estimate(m)
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnrich opens and migrates the store, builds the web clients and
// wires the orchestrator. Callers should defer env.Close().
func initEnrich(ctx context.Context) (*enrichEnv, error) {
	opts, err := enrichOptions(cfg)
	if err != nil {
		return nil, err
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	chain, reader := newFetcher(cfg)
	ex := newExtractor(cfg, chain)
	orch := enrich.New(st, registry.New(st), resolver, ex, opts)
	return &enrichEnv{
		Store:        st,
		Orchestrator: orch,
		Resolver:     resolver,
		Reader:       reader,
		Extractor:    ex,
		Costs:        cost.NewCalculator(pricing(cfg.Pricing)),
	}, nil
}

// enrichOptions maps configuration onto orchestrator options.
func enrichOptions(c *config.Config) (enrich.Options, error) {
	variant, err := model.ParseVariant(c.Batch.Variant)
	if err != nil {
		return enrich.Options{}, err
	}
	return enrich.Options{
		Name:          c.Script.Name,
		Version:       c.Script.Version,
		Description:   c.Script.Description,
		Variant:       variant,
		BatchSize:     c.Batch.Size,
		MaxBatches:    c.Batch.MaxBatches,
		MinAgeMonths:  c.Batch.MinAgeMonths,
		LeaseTTL:      c.Batch.LeaseTTL,
		MaxCandidates: c.Batch.MaxCandidates,
		Atomic:        c.Batch.Atomic,
		Note:          c.Persist.Note,
		Confidence:    c.Persist.Confidence,
		TypeID:        c.Persist.TypeID,
	}, nil
}

// newSearcher returns the configured web search, or nil when disabled.
// Retries are left to the resolver so each attempt respects its pacing.
func newSearcher(c *config.Config) (resolve.Searcher, error) {
	switch c.Search.Provider {
	case "google":
		client := google.NewClient(c.Search.GoogleKey, c.Search.GoogleCX,
			google.WithBaseURL(c.Search.GoogleBaseURL),
			google.WithTimeout(c.Search.Timeout),
		)
		zap.L().Info("web search enabled", zap.String("provider", "google"))
		return resolve.GoogleSearcher{Client: client}, nil
	case "jina":
		client := jina.NewClient(c.Search.JinaKey,
			jina.WithSearchBaseURL(c.Search.JinaSearchURL),
			jina.WithHTTPClient(&http.Client{Timeout: c.Search.Timeout}),
			jina.WithBackoff(resilience.Backoff{Attempts: 1}),
		)
		zap.L().Info("web search enabled", zap.String("provider", "jina"))
		return resolve.JinaSearcher{Client: client}, nil
	case "none", "":
		zap.L().Warn("web search disabled, only email-derived websites will be found")
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported search provider: %s", c.Search.Provider)
	}
}

func newResolver(c *config.Config) (*resolve.Resolver, error) {
	searcher, err := newSearcher(c)
	if err != nil {
		return nil, err
	}
	bl := resolve.NewBlacklist(c.Resolver.FreemailDomains, c.Resolver.DirectorySites)
	checker := resolve.NewHTTPChecker(c.Resolver.ValidateTimeout, c.Extract.UserAgent)
	return resolve.New(bl, checker, searcher, resolve.Options{
		MaxResults:    c.Resolver.SearchMaxResults,
		Interval:      c.Resolver.SearchInterval,
		Backoff:       c.Resolver.SearchBackoff,
		Retries:       c.Search.Retries,
		QuotaCooldown: c.Resolver.QuotaCooldown,
	}), nil
}

// newFetcher builds the page fetch chain: a direct request first, then the
// Jina reader when enabled. The reader is returned for usage accounting.
func newFetcher(c *config.Config) (*scrape.Chain, *scrape.JinaScraper) {
	scrapers := []scrape.Scraper{
		scrape.NewLocalScraper(scrape.LocalOptions{
			Timeout:      c.Extract.Timeout,
			MaxBodyBytes: c.Extract.MaxBodyBytes,
			UserAgent:    c.Extract.UserAgent,
		}),
	}
	var reader *scrape.JinaScraper
	if c.Extract.JinaFallback {
		reader = scrape.NewJinaScraper(jina.NewClient(c.Search.JinaKey,
			jina.WithBaseURL(c.Extract.JinaReadURL),
			jina.WithHTTPClient(&http.Client{Timeout: c.Extract.Timeout * 2}),
		))
		scrapers = append(scrapers, reader)
	}
	return scrape.NewChain(scrapers...), reader
}

// newExtractor wraps the fetch chain, adding the model fallback when enabled.
func newExtractor(c *config.Config, f extract.Fetcher) *extract.PageExtractor {
	if !c.Extract.LLM.Enabled {
		return extract.New(f)
	}
	client := anthropic.NewClient(c.Extract.LLM.Key,
		anthropic.WithBaseURL(c.Extract.LLM.BaseURL),
		anthropic.WithMaxRetries(c.Extract.LLM.Retries),
	)
	zap.L().Info("model fallback enabled", zap.String("model", c.Extract.LLM.Model))
	return extract.New(f, extract.WithLLM(client, extract.LLMOptions{
		Model:     c.Extract.LLM.Model,
		MaxTokens: c.Extract.LLM.MaxTokens,
		MaxChars:  c.Extract.LLM.MaxChars,
	}))
}

func pricing(p config.PricingConfig) cost.Rates {
	models := make(map[string]cost.ModelRate, len(p.Anthropic))
	for name, r := range p.Anthropic {
		models[name] = cost.ModelRate{Input: r.Input, Output: r.Output}
	}
	return cost.Rates{
		Google:    cost.GoogleRate{PerThousand: p.Google.PerThousand, FreeDaily: p.Google.FreeDaily},
		Jina:      cost.JinaRate{PerMTok: p.Jina.PerMTok, SearchTokens: p.Jina.SearchTokens},
		Anthropic: models,
	}
}
