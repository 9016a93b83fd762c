package scrape

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	bigPage := "<html><body>" + strings.Repeat("<p>Our team is here to help.</p>", 400) +
		`<form><div class="g-recaptcha"></div></form></body></html>`

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare ray header", 403, http.Header{"Cf-Ray": {"abc123"}}, "", BlockCloudflare},
		{"cloudflare server header", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"challenge body", 200, nil, "<html>Checking your browser before accessing</html>", BlockCloudflare},
		{"small captcha wall", 200, nil, "<html><body>Please complete the reCAPTCHA</body></html>", BlockCaptcha},
		{"captcha on a real page", 200, nil, bigPage, BlockNone},
		{"js shell", 200, nil, "<html><noscript>Please enable JavaScript</noscript></html>", BlockJSShell},
		{"meta refresh", 200, nil, `<html><meta http-equiv="refresh" content="0;url=/x"></html>`, BlockJSShell},
		{"403 without cloudflare", 403, http.Header{}, "<html>Forbidden</html>", BlockNone},
		{"clean", 200, nil, "<html><body><a href=\"mailto:info@acme.biz\">Email</a></body></html>", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.header
			if h == nil {
				h = http.Header{}
			}
			blocked, bt := DetectBlock(&http.Response{StatusCode: tt.status, Header: h}, []byte(tt.body))
			assert.Equal(t, tt.want, bt)
			assert.Equal(t, tt.want != BlockNone, blocked)
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, bt := DetectBlock(nil, []byte("captcha"))
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}
