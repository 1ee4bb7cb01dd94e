// internal/security/heuristics_test.go
package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"

func TestClassifyCleanRequest(t *testing.T) {
	c := NewClassifier(true, 5)

	cl := c.Classify(Request{IP: "93.184.216.34", UserAgent: browserUA})

	assert.False(t, cl.Suspicious)
	assert.False(t, cl.BotLike)
	assert.False(t, cl.ExcessiveDownloads)
	assert.Empty(t, cl.Reason)
}

func TestClassifyAutomationTools(t *testing.T) {
	c := NewClassifier(true, 5)

	for _, ua := range []string{
		"curl/8.4.0",
		"Wget/1.21",
		"python-requests/2.31",
		"Googlebot/2.1",
		"HeadlessChrome/120.0",
		"Mozilla/5.0 (compatible; selenium)",
	} {
		cl := c.Classify(Request{IP: "93.184.216.34", UserAgent: ua})
		assert.True(t, cl.BotLike, "user agent %q should read as automation", ua)
		assert.True(t, cl.Suspicious)
	}
}

func TestClassifyShortUserAgent(t *testing.T) {
	c := NewClassifier(true, 5)

	cl := c.Classify(Request{IP: "93.184.216.34", UserAgent: "Mozilla"})
	assert.True(t, cl.Suspicious)
	assert.Equal(t, "Missing or short user agent", cl.Reason)
}

func TestClassifyEmptyUserAgentIsBotLike(t *testing.T) {
	c := NewClassifier(true, 5)

	cl := c.Classify(Request{IP: "93.184.216.34", UserAgent: ""})
	assert.True(t, cl.Suspicious)
	assert.True(t, cl.BotLike)
}

func TestClassifyPrivateIPOnlyInProduction(t *testing.T) {
	prod := NewClassifier(true, 5)
	dev := NewClassifier(false, 5)

	for _, ip := range []string{"10.1.2.3", "172.16.0.9", "192.168.1.10", "127.0.0.1", "localhost"} {
		cl := prod.Classify(Request{IP: ip, UserAgent: browserUA})
		assert.True(t, cl.Suspicious, "private IP %s should be suspicious in production", ip)
		assert.True(t, cl.VPNLikely)

		cl = dev.Classify(Request{IP: ip, UserAgent: browserUA})
		assert.False(t, cl.Suspicious, "private IP %s is fine in development", ip)
	}
}

func TestClassifyExcessiveDownloads(t *testing.T) {
	c := NewClassifier(true, 5)

	cl := c.Classify(Request{IP: "93.184.216.34", UserAgent: browserUA, RecentDownloads: 5})
	assert.False(t, cl.ExcessiveDownloads, "at the ceiling is still allowed")

	cl = c.Classify(Request{IP: "93.184.216.34", UserAgent: browserUA, RecentDownloads: 6})
	assert.True(t, cl.ExcessiveDownloads)
	assert.False(t, cl.Suspicious, "excessive downloads alone does not poison the token")
}

func TestClassifyFirstSuspiciousRuleSuppliesReason(t *testing.T) {
	c := NewClassifier(true, 5)

	// "curl" is both short and an automation token; the short-UA rule runs
	// first and its reason sticks.
	cl := c.Classify(Request{IP: "93.184.216.34", UserAgent: "curl"})
	assert.True(t, cl.Suspicious)
	assert.True(t, cl.BotLike)
	assert.Equal(t, "Missing or short user agent", cl.Reason)
}

func TestDerivePlatform(t *testing.T) {
	assert.Equal(t, "Windows", DerivePlatform(browserUA))
	assert.Equal(t, "macOS", DerivePlatform("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"))
	assert.Equal(t, "Android", DerivePlatform("Mozilla/5.0 (Linux; Android 14; Pixel 8)"))
	assert.Equal(t, "iOS", DerivePlatform("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)"))
	assert.Equal(t, "Linux", DerivePlatform("Mozilla/5.0 (X11; Linux x86_64)"))
	assert.Equal(t, "Unknown", DerivePlatform("something else"))
}

func TestDeriveBrowser(t *testing.T) {
	assert.Equal(t, "Chrome", DeriveBrowser(browserUA))
	assert.Equal(t, "Firefox", DeriveBrowser("Mozilla/5.0 (X11; Linux) Gecko/20100101 Firefox/121.0"))
	assert.Equal(t, "Safari", DeriveBrowser("Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15"))
	assert.Equal(t, "Edge", DeriveBrowser("Mozilla/5.0 (Windows NT 10.0) Edge/120.0"))
	assert.Equal(t, "Unknown", DeriveBrowser("telnet"))
}
