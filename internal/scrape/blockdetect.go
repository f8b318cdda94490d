package scrape

import (
	"bytes"
	"net/http"
)

// BlockType names the anti-bot wall a page sits behind.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockWAF        BlockType = "waf"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

const (
	// Company pages that embed a captcha widget on a contact form are
	// larger than this; challenge interstitials are not.
	challengeMaxBytes = 10000
	shellMaxBytes     = 2000
)

type blockMarker struct {
	block   BlockType
	maxSize int // 0 means any size
	all     [][]byte
}

// Checked in order; the first marker whose substrings all appear wins.
var blockMarkers = []blockMarker{
	{block: BlockCloudflare, all: [][]byte{[]byte("checking your browser")}},
	{block: BlockCloudflare, all: [][]byte{[]byte("cf-browser-verification")}},
	{block: BlockCloudflare, all: [][]byte{[]byte("cloudflare"), []byte("challenge")}},
	{block: BlockWAF, all: [][]byte{[]byte("incapsula incident")}},
	{block: BlockWAF, maxSize: challengeMaxBytes, all: [][]byte{[]byte("access denied"), []byte("reference #")}},
	{block: BlockCaptcha, maxSize: challengeMaxBytes, all: [][]byte{[]byte("captcha")}},
	{block: BlockJSShell, maxSize: shellMaxBytes, all: [][]byte{[]byte("<noscript"), []byte("javascript")}},
	{block: BlockJSShell, maxSize: shellMaxBytes, all: [][]byte{[]byte(`meta http-equiv="refresh"`)}},
}

// DetectBlock reports whether a fetched page is an anti-bot wall rather
// than company content.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		h := resp.Header
		if h.Get("cf-ray") != "" || h.Get("cf-cache-status") != "" || h.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	lower := bytes.ToLower(body)
	for _, m := range blockMarkers {
		if m.maxSize > 0 && len(body) >= m.maxSize {
			continue
		}
		if containsAll(lower, m.all) {
			return true, m.block
		}
	}
	return false, BlockNone
}

func containsAll(b []byte, subs [][]byte) bool {
	for _, s := range subs {
		if !bytes.Contains(b, s) {
			return false
		}
	}
	return true
}
