// Package harvester renders county auction-calendar pages in a headless
// browser and extracts raw listings for normalization.
package harvester

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Hosts on these domains serve identical content with or without the
// www prefix; stripping it keeps stored source URLs canonical.
var canonicalDomains = []string{
	".realforeclose.com",
	".realtaxdeed.com",
}

// NormalizeBaseURL forces https and strips the www prefix for known
// auction-platform domains. Other hosts pass through untouched apart
// from the scheme upgrade.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty base url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", raw, err)
	}
	u.Scheme = "https"

	host := strings.ToLower(u.Host)
	for _, domain := range canonicalDomains {
		if strings.HasSuffix(host, domain) {
			host = strings.TrimPrefix(host, "www.")
			break
		}
	}
	u.Host = host
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// BuildCalendarURL returns the preview URL for one auction date.
func BuildCalendarURL(baseURL string, date time.Time) string {
	return fmt.Sprintf("%s/index.cfm?zaction=AUCTION&Zmethod=PREVIEW&AUCTIONDATE=%s",
		strings.TrimSuffix(baseURL, "/"), date.Format("01/02/2006"))
}
