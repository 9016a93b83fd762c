package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/scrape"
)

type fakeFetcher struct {
	html  string
	err   error
	calls int
}

func (f *fakeFetcher) Scrape(_ context.Context, url string) (*scrape.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &scrape.Result{Page: scrape.Page{URL: url, HTML: []byte(f.html)}, Source: "fake"}, nil
}

const page = `<html><head>
<script>var support = "noreply@tracker.example";</script>
<style>.x{}</style>
</head><body>
<header><img src="/logo@2x.png" alt="logo"></header>
<p>Write to <a href="MAILTO:Sales@Acme.biz?subject=Hello">our sales team</a>
or <a href="mailto:info@acme.biz,ops@acme.biz">info</a>.</p>
<p>Press: press@acme.biz. Careers: careers@acme.biz. Again: SALES@acme.biz</p>
<p>Call <a href="tel:+1-555-210-2000">(555) 210-2000</a> or fax 555.210.2001.
Toll free 1 (800) 555 0199. Order #1234567890123.</p>
<div itemscope itemtype="https://schema.org/PostalAddress">
  <span itemprop="streetAddress">12 Main St</span>
  <span itemprop="addressLocality">Springfield</span>
  <span itemprop="addressRegion">IL</span>
  <span itemprop="postalCode">62701</span>
</div>
<address>PO Box 9<br>Springfield,   IL 62705</address>
</body></html>`

func collect(t *testing.T, e *PageExtractor, field model.FieldType) []string {
	t.Helper()
	var out []string
	for v, err := range e.Extract(context.Background(), 7, "https://acme.biz/contact", field) {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestExtract_Emails(t *testing.T) {
	e := New(&fakeFetcher{html: page})

	got := collect(t, e, model.FieldEmail)
	assert.Equal(t, []string{
		"sales@acme.biz",
		"info@acme.biz",
		"press@acme.biz",
		"careers@acme.biz",
	}, got)
}

func TestExtract_Phones(t *testing.T) {
	e := New(&fakeFetcher{html: page})

	got := collect(t, e, model.FieldPhone)
	assert.Equal(t, []string{"5552102000", "5552102001", "8005550199"}, got)
}

func TestExtract_Addresses(t *testing.T) {
	e := New(&fakeFetcher{html: page})

	got := collect(t, e, model.FieldAddress)
	assert.Equal(t, []string{
		"12 Main St, Springfield, IL, 62701",
		"PO Box 9, Springfield, IL 62705",
	}, got)
}

func TestExtract_URLFieldYieldsPageWithoutFetching(t *testing.T) {
	f := &fakeFetcher{html: page}
	got := collect(t, New(f), model.FieldURL)

	assert.Equal(t, []string{"https://acme.biz/contact"}, got)
	assert.Zero(t, f.calls)
}

func TestExtract_Lazy(t *testing.T) {
	f := &fakeFetcher{html: page}
	seq := New(f).Extract(context.Background(), 7, "https://acme.biz", model.FieldEmail)
	assert.Zero(t, f.calls, "nothing fetched before the first pull")

	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, f.calls)
}

func TestExtract_FetchErrorYieldedOnce(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}

	var errs []error
	var values []string
	for v, err := range New(f).Extract(context.Background(), 7, "https://acme.biz", model.FieldEmail) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values = append(values, v)
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "connection refused")
	assert.Empty(t, values)
}

func TestExtract_EmptyPage(t *testing.T) {
	got := collect(t, New(&fakeFetcher{html: "<html><body><p>Nothing here</p></body></html>"}), model.FieldEmail)
	assert.Empty(t, got)
}

func TestPhoneDigits(t *testing.T) {
	assert.Equal(t, "5552102000", phoneDigits("+1 (555) 210-2000"))
	assert.Equal(t, "", phoneDigits("055-210-2000"))
	assert.Equal(t, "", phoneDigits("555-110-2000"))
	assert.Equal(t, "", phoneDigits("12345"))
}
