// Package extract pulls candidate contact values out of a single web page.
package extract

import (
	"bytes"
	"context"
	"iter"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/scrape"
	"github.com/sells-group/contact-enricher/pkg/anthropic"
)

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Scrape(ctx context.Context, url string) (*scrape.Result, error)
}

// PageExtractor yields candidates for one field from one page. Nothing is
// fetched until the sequence is first pulled.
type PageExtractor struct {
	fetcher Fetcher
	llm     *llmFallback
}

// Option configures a PageExtractor.
type Option func(*PageExtractor)

// WithLLM asks a model for values when the page markup yields none.
func WithLLM(client anthropic.Client, opts LLMOptions) Option {
	return func(e *PageExtractor) { e.llm = newLLMFallback(client, opts) }
}

// New returns a PageExtractor reading pages through f.
func New(f Fetcher, opts ...Option) *PageExtractor {
	e := &PageExtractor{fetcher: f}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LLMUsage reports model calls and tokens spent by the fallback.
func (e *PageExtractor) LLMUsage() (calls int64, usage anthropic.TokenUsage) {
	if e.llm == nil {
		return 0, usage
	}
	usage.InputTokens = e.llm.input.Load()
	usage.OutputTokens = e.llm.output.Load()
	return e.llm.calls.Load(), usage
}

// Extract returns the candidates for field found on pageURL, in document
// order with duplicates removed. A fetch or parse failure is yielded once as
// an error and ends the sequence.
func (e *PageExtractor) Extract(ctx context.Context, firmID int64, pageURL string, field model.FieldType) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if field == model.FieldURL {
			yield(pageURL, nil)
			return
		}

		res, err := e.fetcher.Scrape(ctx, pageURL)
		if err != nil {
			yield("", eris.Wrapf(err, "extract: fetch %s", pageURL))
			return
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Page.HTML))
		if err != nil {
			yield("", eris.Wrapf(err, "extract: parse %s", pageURL))
			return
		}

		zap.L().Debug("extract: page fetched",
			zap.Int64("firm_id", firmID),
			zap.String("url", pageURL),
			zap.String("source", res.Source),
			zap.Int("bytes", len(res.Page.HTML)),
		)

		seen := make(map[string]struct{})
		emit := func(v string) bool {
			key := field.Normalize(v)
			if key == "" {
				return true
			}
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			return yield(v, nil)
		}

		for v := range candidates(doc, field) {
			if !emit(v) {
				return
			}
		}
		if len(seen) > 0 || e.llm == nil {
			return
		}

		// The model fallback is best effort: failures are logged, not yielded.
		vals, err := e.llm.candidates(ctx, visibleText(doc), field)
		if err != nil {
			zap.L().Warn("extract: model fallback failed",
				zap.Int64("firm_id", firmID),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return
		}
		for _, v := range vals {
			if v = plausible(field, v); v == "" {
				continue
			}
			if !emit(v) {
				return
			}
		}
	}
}

func candidates(doc *goquery.Document, field model.FieldType) iter.Seq[string] {
	switch field {
	case model.FieldEmail:
		return emails(doc)
	case model.FieldPhone:
		return phones(doc)
	case model.FieldAddress:
		return addresses(doc)
	default:
		return func(func(string) bool) {}
	}
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,24}`)
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?[2-9]\d{2}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
)

// assetSuffixes are file extensions that look like email TLDs in retina
// image names such as logo@2x.png.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

func emails(doc *goquery.Document) iter.Seq[string] {
	return func(yield func(string) bool) {
		stop := false
		eachLink(doc, "mailto:", func(target string) bool {
			if addr := mailtoAddress(target); addr != "" {
				stop = !yield(addr)
			}
			return !stop
		})
		if stop {
			return
		}
		for _, m := range emailRe.FindAllString(visibleText(doc), -1) {
			m = strings.ToLower(strings.Trim(m, "."))
			if isAsset(m) {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

// eachLink calls fn with the part after scheme of every link using that
// scheme, until fn returns false.
func eachLink(doc *goquery.Document, scheme string, fn func(target string) bool) {
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if len(href) < len(scheme) || !strings.EqualFold(href[:len(scheme)], scheme) {
			return true
		}
		return fn(href[len(scheme):])
	})
}

func mailtoAddress(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if dec, err := url.PathUnescape(raw); err == nil {
		raw = dec
	}
	// mailto may list several recipients.
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ToLower(strings.TrimSpace(raw))
	if !emailRe.MatchString(raw) || isAsset(raw) {
		return ""
	}
	return raw
}

func isAsset(email string) bool {
	for _, s := range assetSuffixes {
		if strings.HasSuffix(email, s) {
			return true
		}
	}
	return false
}

func phones(doc *goquery.Document) iter.Seq[string] {
	return func(yield func(string) bool) {
		stop := false
		eachLink(doc, "tel:", func(target string) bool {
			if p := phoneDigits(target); p != "" {
				stop = !yield(p)
			}
			return !stop
		})
		if stop {
			return
		}
		text := visibleText(doc)
		for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
			// Skip runs cut out of longer digit strings such as order numbers.
			if loc[0] > 0 && isDigit(text[loc[0]-1]) {
				continue
			}
			if p := phoneDigits(text[loc[0]:loc[1]]); p != "" {
				if !yield(p) {
					return
				}
			}
		}
	}
}

// phoneDigits returns the ten NANP digits of raw, or "" when raw is not a
// plausible North American number.
func phoneDigits(raw string) string {
	d := model.FieldPhone.Normalize(raw)
	if len(d) != 10 || d[0] < '2' || d[3] < '2' {
		return ""
	}
	return d
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

var postalParts = []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"}

func addresses(doc *goquery.Document) iter.Seq[string] {
	return func(yield func(string) bool) {
		var found []string
		doc.Find(`[itemtype*="PostalAddress"]`).Each(func(_ int, s *goquery.Selection) {
			var parts []string
			for _, prop := range postalParts {
				if v := collapse(s.Find(`[itemprop="` + prop + `"]`).First().Text()); v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) > 0 {
				found = append(found, strings.Join(parts, ", "))
			}
		})
		doc.Find("address").Each(func(_ int, s *goquery.Selection) {
			if s.Find(`[itemtype*="PostalAddress"]`).Length() > 0 {
				return
			}
			s.Find("br").ReplaceWithHtml(", ")
			if v := collapse(s.Text()); v != "" {
				found = append(found, strings.Trim(v, ", "))
			}
		})
		for _, a := range found {
			if !yield(a) {
				return
			}
		}
	}
}

// visibleText is the document text without scripts and styles.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return body.Text()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
