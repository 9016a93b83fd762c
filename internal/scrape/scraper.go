// Package scrape fetches the HTML of a single page, falling back from a
// direct request to the Jina reader when the site blocks us.
package scrape

import (
	"context"
)

// Page is a fetched document.
type Page struct {
	// URL is the address that was requested.
	URL string
	// FinalURL is where redirects ended, or URL when unknown.
	FinalURL   string
	StatusCode int
	Title      string
	HTML       []byte
}

// Result holds a fetched page with the scraper that produced it.
type Result struct {
	Page   Page
	Source string // "local_http" or "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
