package scrape

import (
	"bytes"
	"net/http"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// interstitialMax is the size under which a captcha or script-only page is
// treated as a wall rather than content. Contact pages routinely embed
// reCAPTCHA on their forms.
const interstitialMax = 8 * 1024

// DetectBlock checks an HTTP response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	lower := bytes.ToLower(body)

	if bytes.Contains(lower, []byte("checking your browser")) ||
		bytes.Contains(lower, []byte("cf-browser-verification")) ||
		bytes.Contains(lower, []byte("cf-challenge")) {
		return true, BlockCloudflare
	}

	if len(body) >= interstitialMax {
		return false, BlockNone
	}

	if bytes.Contains(lower, []byte("captcha")) {
		return true, BlockCaptcha
	}
	if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("enable javascript")) {
		return true, BlockJSShell
	}
	if bytes.Contains(lower, []byte(`http-equiv="refresh"`)) {
		return true, BlockJSShell
	}

	return false, BlockNone
}
