package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-enricher/internal/resilience"
)

const contactPage = `<html><head><title>
  Contact Acme
</title></head>
<body><h1>Contact us</h1><a href="mailto:info@acme.biz">info@acme.biz</a>
<a href="tel:+15550102000">(555) 010-2000</a></body></html>`

func TestLocalScraper_ReturnsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(contactPage))
	}))
	defer srv.Close()

	s := NewLocalScraper(LocalOptions{UserAgent: "test-agent"})
	result, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "local_http", result.Source)
	assert.Equal(t, "Contact Acme", result.Page.Title)
	assert.Equal(t, 200, result.Page.StatusCode)
	assert.Contains(t, string(result.Page.HTML), "mailto:info@acme.biz")
}

func TestLocalScraper_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/contact", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(contactPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result, err := NewLocalScraper(LocalOptions{}).Scrape(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/old", result.Page.URL)
	assert.Equal(t, srv.URL+"/contact", result.Page.FinalURL)
}

func TestLocalScraper_Cloudflare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cf-Ray", "abc123")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<html><body>Access denied</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(LocalOptions{}).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestLocalScraper_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusNotFound, false},
		{http.StatusGone, false},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(strings.Repeat("x", 200)))
			}))
			defer srv.Close()

			_, err := NewLocalScraper(LocalOptions{}).Scrape(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestLocalScraper_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(LocalOptions{}).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty page")
}

func TestLocalScraper_RejectsBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(strings.Repeat("%PDF", 100)))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(LocalOptions{}).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a document")
}

func TestLocalScraper_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>" + strings.Repeat("a", 10_000) + "</body></html>"))
	}))
	defer srv.Close()

	result, err := NewLocalScraper(LocalOptions{MaxBodyBytes: 1024}).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, result.Page.HTML, 1024)
}

func TestLocalScraper_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewLocalScraper(LocalOptions{Timeout: 20 * time.Millisecond}).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestLocalScraper_Supports(t *testing.T) {
	s := NewLocalScraper(LocalOptions{})
	assert.True(t, s.Supports("https://acme.biz"))
	assert.True(t, s.Supports("HTTP://acme.biz"))
	assert.False(t, s.Supports("ftp://acme.biz"))
	assert.False(t, s.Supports("acme.biz"))
}

func TestLocalScraper_DecodesCharset(t *testing.T) {
	latin1 := []byte("<html><head><title>Caf\xe9 Zo\xeb</title></head><body>" + strings.Repeat("menu ", 20) + "</body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write(latin1)
	}))
	defer srv.Close()

	result, err := NewLocalScraper(LocalOptions{}).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Café Zoë", result.Page.Title)
}

func TestToUTF8(t *testing.T) {
	meta := []byte(`<meta charset="windows-1252"><p>caf` + "\xe9" + `</p>`)
	assert.Contains(t, string(toUTF8(meta, "text/html")), "café")

	plain := []byte("already utf-8 é")
	assert.Equal(t, plain, toUTF8(plain, "text/html; charset=utf-8"))
	assert.Equal(t, plain, toUTF8(plain, "text/html; charset=bogus-charset"))
}
