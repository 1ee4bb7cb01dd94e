// internal/security/heuristics.go
package security

import (
	"net"
	"strings"
)

// Request is the metadata the classifier sees for one download attempt.
// RecentDownloads is the count of successful downloads from the same IP
// inside the rate-limit window, supplied by the caller from the audit ledger.
type Request struct {
	IP              string
	UserAgent       string
	RecentDownloads int64
}

// Classification is the outcome of running every rule over a request. Flags
// are independent: a request can be both suspicious and VPN-likely.
type Classification struct {
	Suspicious         bool
	Reason             string
	BotLike            bool
	VPNLikely          bool
	ExcessiveDownloads bool
}

var automationTokens = []string{
	"curl", "wget", "python", "bot", "crawler", "spider",
	"scraper", "headless", "phantom", "selenium",
}

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func isPrivateIP(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range privateNetworks {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func isBotLike(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, token := range automationTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

// rule is one independent predicate+flag pair. Rules are applied in order and
// never short-circuit each other; keeping them declarative keeps the
// classifier auditable.
type rule struct {
	name   string
	match  func(c *Classifier, r Request) bool
	apply  func(cl *Classification)
	reason string
}

// Classifier runs the anti-piracy rule table over request metadata. It holds
// no per-request state.
type Classifier struct {
	production     bool
	piracyMaxPerIP int64
	rules          []rule
}

// NewClassifier builds the rule table. production controls the private-IP
// rule; piracyMaxPerIP is the per-IP successful-download ceiling inside the
// rate-limit window.
func NewClassifier(production bool, piracyMaxPerIP int64) *Classifier {
	c := &Classifier{
		production:     production,
		piracyMaxPerIP: piracyMaxPerIP,
	}
	c.rules = []rule{
		{
			name:   "short-user-agent",
			match:  func(_ *Classifier, r Request) bool { return len(r.UserAgent) < 10 },
			apply:  func(cl *Classification) { cl.Suspicious = true },
			reason: "Missing or short user agent",
		},
		{
			name:   "automation-token",
			match:  func(_ *Classifier, r Request) bool { return isBotLike(r.UserAgent) },
			apply:  func(cl *Classification) { cl.Suspicious = true; cl.BotLike = true },
			reason: "Automated tool detected",
		},
		{
			name:   "private-ip-in-production",
			match:  func(c *Classifier, r Request) bool { return c.production && isPrivateIP(r.IP) },
			apply:  func(cl *Classification) { cl.Suspicious = true },
			reason: "Private IP in production",
		},
		{
			name:   "excessive-ip-downloads",
			match:  func(c *Classifier, r Request) bool { return r.RecentDownloads > c.piracyMaxPerIP },
			apply:  func(cl *Classification) { cl.ExcessiveDownloads = true },
			reason: "Excessive download activity from IP",
		},
		{
			// Private ranges double as a crude proxy/VPN signal. This flag
			// is informational only; legitimate VPN users are not blocked.
			name:   "vpn-indicator",
			match:  func(_ *Classifier, r Request) bool { return isPrivateIP(r.IP) },
			apply:  func(cl *Classification) { cl.VPNLikely = true },
			reason: "",
		},
	}
	return c
}

// Classify applies every rule independently; the first rule that marks the
// request suspicious supplies the recorded reason.
func (c *Classifier) Classify(r Request) Classification {
	var cl Classification
	for _, rule := range c.rules {
		if !rule.match(c, r) {
			continue
		}
		wasSuspicious := cl.Suspicious
		rule.apply(&cl)
		if cl.Suspicious && !wasSuspicious && rule.reason != "" {
			cl.Reason = rule.reason
		}
	}
	return cl
}
