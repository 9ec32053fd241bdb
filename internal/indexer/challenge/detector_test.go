package challenge

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func titled(title, extra string) string {
	return "<html><head><title>" + title + "</title></head><body>" + extra + "</body></html>"
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   Tag
	}{
		{
			"cloudflare js challenge by title",
			403, nil,
			titled("Just a moment...", "please wait"),
			TagCloudflareJS,
		},
		{
			"cloudflare js challenge 503",
			503, nil,
			titled("Just a moment...", ""),
			TagCloudflareJS,
		},
		{
			"cloudflare captcha by title",
			403, nil,
			titled("Attention Required! Cloudflare", "solve the captcha"),
			TagCloudflareCaptcha,
		},
		{
			"cloudflare denied by title and server header",
			403,
			http.Header{"Server": []string{"cloudflare"}},
			titled("Access denied", ""),
			TagCloudflareDenied,
		},
		{
			"access denied title without cloudflare server falls back to forbidden",
			403, nil,
			titled("Access denied", ""),
			TagForbidden,
		},
		{
			"cloudflare error 1020",
			403, nil,
			"Error code: 1020 access denied",
			TagCloudflareError1020,
		},
		{
			"ddos-guard by title",
			403, nil,
			titled("DDoS-Guard", ""),
			TagDDoSGuard,
		},
		{
			"ddos-guard by server header",
			403,
			http.Header{"Server": []string{"ddos-guard"}},
			"<html><body>blocked</body></html>",
			TagDDoSGuard,
		},
		{
			"ddos-generic by vary header and body",
			403,
			http.Header{"Vary": []string{"Accept-Encoding,User-Agent"}},
			"checking if the site connection is secure, ddos protection in effect",
			TagDDoSGeneric,
		},
		{
			"cf challenge page by body marker",
			200, nil,
			"<html><body><div class=\"cf-challenge-running\">wait</div></body></html>",
			TagChallengePage,
		},
		{
			"cf challenge page turnstile marker",
			200, nil,
			"<div class=\"turnstile-wrapper\"></div>",
			TagChallengePage,
		},
		{
			"sucuri with 403",
			403, nil,
			"Sucuri WebSite Firewall blocked this request",
			TagSucuri,
		},
		{
			"sucuri with access denied text",
			200, nil,
			"Sucuri access denied",
			TagSucuri,
		},
		{
			"akamai with 403",
			403, nil,
			"reference #18.akamai block",
			TagAkamai,
		},
		{
			"rate limited",
			429, nil,
			"",
			TagRateLimited,
		},
		{
			"forbidden fallback",
			403, nil,
			"you are not allowed here",
			TagForbidden,
		},
		{
			"unavailable fallback",
			503, nil,
			"",
			TagUnavailable,
		},
		{
			"ordinary page",
			200, nil,
			"<html><title>Results</title><body>results here</body></html>",
			"",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Detect(c.status, c.header, []byte(c.body))
			assert.Equal(t, c.want, got)
		})
	}
}

func TestRequiresSolver(t *testing.T) {
	assert.True(t, RequiresSolver(TagCloudflareJS))
	assert.True(t, RequiresSolver(TagDDoSGuard))
	assert.True(t, RequiresSolver(TagDDoSGeneric))
	assert.True(t, RequiresSolver(TagCloudflareDenied))
	assert.True(t, RequiresSolver(TagCloudflareError1020))
	assert.False(t, RequiresSolver(TagForbidden))
	assert.False(t, RequiresSolver(TagSucuri))
	assert.False(t, RequiresSolver(""))
}

func TestIsChallenge(t *testing.T) {
	assert.True(t, IsChallenge(TagForbidden))
	assert.False(t, IsChallenge(""))
}
