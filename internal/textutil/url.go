package textutil

import (
	"net/url"
	"strings"
)

// WebURL reports whether raw is an absolute http or https URL with a host.
func WebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}
