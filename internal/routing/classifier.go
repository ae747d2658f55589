package routing

import (
	"net"
	"net/url"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// Classifier maps request hosts to origins using glob patterns such as
// "pro.superflow.in" or "*.pro.superflow.in". Unknown hosts are free.
type Classifier struct {
	free    []string
	premium []string
}

// NewClassifier creates a Classifier. Patterns are matched case-insensitively
// against the host without its port.
func NewClassifier(freeHosts, premiumHosts []string) *Classifier {
	return &Classifier{free: normalizePatterns(freeHosts), premium: normalizePatterns(premiumHosts)}
}

// Classify returns the origin a host belongs to.
func (c *Classifier) Classify(host string) Origin {
	host = stripPort(strings.ToLower(strings.TrimSpace(host)))
	for _, p := range c.premium {
		if wildcard.Match(p, host) {
			return OriginPremium
		}
	}
	for _, p := range c.free {
		if wildcard.Match(p, host) {
			return OriginFree
		}
	}
	return OriginFree
}

// HostOf returns the host of a base URL, or "" if it cannot be parsed.
func HostOf(baseURL string) string {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func normalizePatterns(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
