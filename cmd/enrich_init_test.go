//go:build !integration

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/resolve"
)

func TestEnrichOptions(t *testing.T) {
	c := loadTestConfig(t)
	c.Batch.Variant = "phone"
	c.Batch.Size = 50
	c.Batch.MaxBatches = 4
	c.Batch.Atomic = false
	c.Persist.Note = "test"

	opts, err := enrichOptions(c)
	require.NoError(t, err)

	assert.Equal(t, "contact_enricher", opts.Name)
	assert.Equal(t, "1.0.0", opts.Version)
	assert.Equal(t, model.VariantPhone, opts.Variant)
	assert.Equal(t, 50, opts.BatchSize)
	assert.Equal(t, 4, opts.MaxBatches)
	assert.Equal(t, 1, opts.MinAgeMonths)
	assert.Equal(t, 30*time.Minute, opts.LeaseTTL)
	assert.Equal(t, 2, opts.MaxCandidates)
	assert.False(t, opts.Atomic)
	assert.Equal(t, "test", opts.Note)
}

func TestEnrichOptions_BadVariant(t *testing.T) {
	c := loadTestConfig(t)
	c.Batch.Variant = "fax"

	_, err := enrichOptions(c)
	assert.Error(t, err)
}

func TestNewSearcher(t *testing.T) {
	c := loadTestConfig(t)

	c.Search.Provider = "google"
	s, err := newSearcher(c)
	require.NoError(t, err)
	assert.IsType(t, resolve.GoogleSearcher{}, s)

	c.Search.Provider = "jina"
	s, err = newSearcher(c)
	require.NoError(t, err)
	assert.IsType(t, resolve.JinaSearcher{}, s)

	c.Search.Provider = "none"
	s, err = newSearcher(c)
	require.NoError(t, err)
	assert.Nil(t, s)

	c.Search.Provider = "bing"
	_, err = newSearcher(c)
	assert.Error(t, err)
}

func TestNewResolver_BadProvider(t *testing.T) {
	c := loadTestConfig(t)
	c.Search.Provider = "bing"

	r, err := newResolver(c)
	assert.Nil(t, r)
	assert.Error(t, err)
}

func TestNewFetcher(t *testing.T) {
	c := loadTestConfig(t)

	chain, reader := newFetcher(c)
	assert.NotNil(t, chain)
	assert.Nil(t, reader)

	c.Extract.JinaFallback = true
	chain, reader = newFetcher(c)
	assert.NotNil(t, chain)
	assert.NotNil(t, reader)
}

func TestPricing(t *testing.T) {
	c := loadTestConfig(t)

	rates := pricing(c.Pricing)
	assert.InDelta(t, 5.0, rates.Google.PerThousand, 1e-9)
	assert.Equal(t, 100, rates.Google.FreeDaily)
	assert.InDelta(t, 0.02, rates.Jina.PerMTok, 1e-9)
	assert.Equal(t, 10000, rates.Jina.SearchTokens)
	assert.InDelta(t, 0.80, rates.Anthropic["claude-haiku-4-5-20251001"].Input, 1e-9)
}

func TestNewExtractor_ModelFallback(t *testing.T) {
	c := loadTestConfig(t)
	chain, _ := newFetcher(c)

	ex := newExtractor(c, chain)
	calls, _ := ex.LLMUsage()
	assert.Zero(t, calls)

	c.Extract.LLM.Enabled = true
	c.Extract.LLM.Key = "sk-ant-test"
	assert.NotNil(t, newExtractor(c, chain))
}
