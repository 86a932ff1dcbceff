// Package urlutil holds the small URL helpers shared by sitemap resolution
// and the prober.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// IsHTTPScheme returns true if the URL has an http or https scheme and a host.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Host != ""
}

// ResolveReference resolves a possibly-relative ref against base.
// Sitemaps are required to carry absolute <loc> values, but relative ones show
// up in the wild and are resolved against the sitemap's own URL.
func ResolveReference(base string, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL %q: %w", base, err)
	}

	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse ref URL %q: %w", ref, err)
	}

	return baseURL.ResolveReference(refURL).String(), nil
}

// SameHost reports whether both URLs point at the same host (port included),
// ignoring case. Unparseable input never matches.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}
