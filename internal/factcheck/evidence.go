// Package factcheck resolves claims to verdicts with graded evidence. It
// chains a search-augmented agent, a plain structured agent, and a
// deterministic fallback, reuses verdicts across quotes, and rescores all
// evidence quality from source domains.
package factcheck

import (
	"net/url"
	"strings"

	"github.com/veracity-social/veracity/internal/model"
)

// Evidence quality levels by domain trust. The agent's self-reported
// quality is always discarded in favor of these.
const (
	qualityTrusted = 0.95
	qualityGovEdu  = 0.85
	qualityOrg     = 0.7
	qualityUnknown = 0.45
	qualityNoURL   = 0.4
	qualityBlocked = 0
)

// defaultTrustedDomains are well-established primary sources.
var defaultTrustedDomains = []string{
	"who.int", "nih.gov", "cdc.gov", "nature.com", "science.org",
	"nejm.org", "thelancet.com", "reuters.com", "apnews.com",
	"bbc.com", "bbc.co.uk", "nasa.gov",
}

// defaultBlockedDomains are known misinformation mills.
var defaultBlockedDomains = []string{
	"naturalnews.com", "infowars.com", "beforeitsnews.com",
	"worldtruth.tv", "yournewswire.com",
}

// DomainTrust scores evidence quality from the source URL's domain.
type DomainTrust struct {
	trusted map[string]bool
	blocked map[string]bool
}

// NewDomainTrust builds a classifier from the configured allow/block lists
// merged with the built-in defaults.
func NewDomainTrust(trusted, blocked []string) *DomainTrust {
	d := &DomainTrust{
		trusted: make(map[string]bool),
		blocked: make(map[string]bool),
	}
	for _, domain := range defaultTrustedDomains {
		d.trusted[domain] = true
	}
	for _, domain := range trusted {
		d.trusted[strings.ToLower(domain)] = true
	}
	for _, domain := range defaultBlockedDomains {
		d.blocked[domain] = true
	}
	for _, domain := range blocked {
		d.blocked[strings.ToLower(domain)] = true
	}
	return d
}

// Quality returns the domain-trust quality score for an evidence URL.
func (d *DomainTrust) Quality(rawURL string) float64 {
	if rawURL == "" {
		return qualityNoURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return qualityNoURL
	}

	host := strings.ToLower(parsed.Host)
	if idx := strings.Index(host, ":"); idx > 0 {
		host = host[:idx]
	}
	host = strings.TrimPrefix(host, "www.")

	if matchesDomain(host, d.blocked) {
		return qualityBlocked
	}
	if matchesDomain(host, d.trusted) {
		return qualityTrusted
	}
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") ||
		strings.HasSuffix(host, ".ac.uk") || strings.HasSuffix(host, ".gov.uk") {
		return qualityGovEdu
	}
	if strings.HasSuffix(host, ".org") {
		return qualityOrg
	}
	return qualityUnknown
}

// Rescore overwrites the quality of every evidence item from its URL.
func (d *DomainTrust) Rescore(evidence []model.Evidence) []model.Evidence {
	for i := range evidence {
		evidence[i].Quality = d.Quality(evidence[i].URL)
	}
	return evidence
}

func matchesDomain(host string, set map[string]bool) bool {
	if set[host] {
		return true
	}
	for domain := range set {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
