// Package cost estimates what a run spent on metered web APIs.
package cost

// Rates holds per-provider pricing.
type Rates struct {
	Google    GoogleRate
	Jina      JinaRate
	Anthropic map[string]ModelRate
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64
	Output float64
}

// GoogleRate holds Custom Search pricing. The first FreeDaily queries are
// not billed.
type GoogleRate struct {
	PerThousand float64
	FreeDaily   int
}

// JinaRate holds Jina token pricing.
type JinaRate struct {
	PerMTok      float64
	SearchTokens int
}

// Metered is the raw third-party work one run did.
type Metered struct {
	SearchProvider  string
	SearchQueries   int64
	ReaderTokens    int64
	LLMModel        string
	LLMCalls        int64
	LLMInputTokens  int64
	LLMOutputTokens int64
}

// Usage is the metered work of one run and its estimated price in USD.
type Usage struct {
	SearchProvider  string  `json:"search_provider"`
	SearchQueries   int64   `json:"search_queries"`
	ReaderTokens    int64   `json:"reader_tokens"`
	LLMCalls        int64   `json:"llm_calls"`
	LLMInputTokens  int64   `json:"llm_input_tokens"`
	LLMOutputTokens int64   `json:"llm_output_tokens"`
	SearchUSD       float64 `json:"search_usd"`
	ReaderUSD       float64 `json:"reader_usd"`
	LLMUSD          float64 `json:"llm_usd"`
	TotalUSD        float64 `json:"total_usd"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Google computes the cost of n Custom Search queries issued within one day.
func (c *Calculator) Google(n int64) float64 {
	billable := n - int64(c.rates.Google.FreeDaily)
	if billable <= 0 {
		return 0
	}
	return float64(billable) / 1000 * c.rates.Google.PerThousand
}

// JinaSearch computes the cost of n Jina search requests.
func (c *Calculator) JinaSearch(n int64) float64 {
	return c.Jina(n * int64(c.rates.Jina.SearchTokens))
}

// Jina computes the cost for Jina token usage.
func (c *Calculator) Jina(tokens int64) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// Claude computes the cost of a model's token usage. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Estimate prices metered work.
func (c *Calculator) Estimate(m Metered) Usage {
	u := Usage{
		SearchProvider:  m.SearchProvider,
		SearchQueries:   m.SearchQueries,
		ReaderTokens:    m.ReaderTokens,
		LLMCalls:        m.LLMCalls,
		LLMInputTokens:  m.LLMInputTokens,
		LLMOutputTokens: m.LLMOutputTokens,
		ReaderUSD:       c.Jina(m.ReaderTokens),
		LLMUSD:          c.Claude(m.LLMModel, m.LLMInputTokens, m.LLMOutputTokens),
	}
	switch m.SearchProvider {
	case "google":
		u.SearchUSD = c.Google(m.SearchQueries)
	case "jina":
		u.SearchUSD = c.JinaSearch(m.SearchQueries)
	}
	u.TotalUSD = u.SearchUSD + u.ReaderUSD + u.LLMUSD
	return u
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Google: GoogleRate{PerThousand: 5.00, FreeDaily: 100},
		Jina:   JinaRate{PerMTok: 0.02, SearchTokens: 10000},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
	}
}
