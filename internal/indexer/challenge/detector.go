// Package challenge classifies HTTP responses as anti-bot challenge pages.
package challenge

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Tag identifies the kind of anti-bot challenge a response represents.
type Tag string

const (
	TagCloudflareJS        Tag = "cf-js"
	TagCloudflareCaptcha   Tag = "cf-captcha"
	TagCloudflareDenied    Tag = "cf-denied"
	TagCloudflareError1020 Tag = "cf-error-1020"
	TagDDoSGuard           Tag = "ddos-guard"
	TagDDoSGeneric         Tag = "ddos-generic"
	TagChallengePage       Tag = "cf-challenge-page"
	TagSucuri              Tag = "sucuri"
	TagAkamai              Tag = "akamai"
	TagRateLimited         Tag = "rate-limited"
	TagForbidden           Tag = "forbidden"
	TagUnavailable         Tag = "unavailable"
)

// challengePageMarkers are body substrings that mark a Cloudflare
// JS-challenge interstitial regardless of status or title wording.
var challengePageMarkers = []string{
	"cf-challenge-running",
	"cf-please-wait",
	"challenge-spinner",
	"turnstile-wrapper",
	"cf-error-title",
}

// contains reports whether s contains needle, case-insensitively.
func contains(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
}

// pageTitle extracts the <title> text of an HTML document, or "" if the
// body isn't parseable HTML or carries no title element.
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Detect classifies a response as a challenge tag, or returns "" (no challenge
// detected) when the response looks like an ordinary page. Detect is a pure
// function of status, headers and body so it can be tested without network
// access. Decision table per §4.C.
func Detect(status int, headers http.Header, body []byte) Tag {
	server := headers.Get("Server")
	vary := headers.Get("Vary")
	bodyStr := string(body)
	blocked := status == 403 || status == 503
	title := pageTitle(body)

	switch {
	case blocked && contains(title, "Just a moment..."):
		return TagCloudflareJS
	case blocked && contains(title, "Attention Required! Cloudflare"):
		return TagCloudflareCaptcha
	case blocked && contains(title, "Access denied") && contains(server, "cloudflare"):
		return TagCloudflareDenied
	case contains(bodyStr, "Error code: 1020"):
		return TagCloudflareError1020
	case blocked && (contains(title, "DDoS-Guard") || contains(server, "ddos-guard")):
		return TagDDoSGuard
	case blocked && vary == "Accept-Encoding,User-Agent" && contains(bodyStr, "ddos"):
		return TagDDoSGeneric
	case anyOf(bodyStr, challengePageMarkers...):
		return TagChallengePage
	case contains(bodyStr, "sucuri") && (status == 403 || contains(bodyStr, "access denied")):
		return TagSucuri
	case contains(bodyStr, "akamai") && status == 403:
		return TagAkamai
	case status == 429:
		return TagRateLimited
	case status == 403:
		return TagForbidden
	case status == 503:
		return TagUnavailable
	default:
		return ""
	}
}

// anyOf reports whether s contains any of the given case-insensitive needles.
func anyOf(s string, needles ...string) bool {
	for _, n := range needles {
		if contains(s, n) {
			return true
		}
	}
	return false
}

// RequiresSolver reports whether the tag represents a challenge that a
// browser-automation solver can plausibly bypass, as opposed to a hard block
// or a plain upstream outage. Per §4.C, tags starting with cf- or ddos- are
// eligible for solver handoff; others are permanent failures for this mirror.
func RequiresSolver(t Tag) bool {
	return strings.HasPrefix(string(t), "cf-") || strings.HasPrefix(string(t), "ddos-")
}

// IsChallenge reports whether the tag represents any detected anti-bot condition.
func IsChallenge(t Tag) bool {
	return t != ""
}
