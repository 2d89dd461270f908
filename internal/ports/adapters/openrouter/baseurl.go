package openrouter

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

const DefaultBaseURL = "https://openrouter.ai"

var defaultAllowedHosts = []string{"openrouter.ai", "api.openrouter.ai"}

func normalizeBaseURL(baseURL string) string {
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// urlRule returns a non-empty reason when u must be rejected.
type urlRule func(u *url.URL) string

var baseURLRules = []urlRule{
	func(u *url.URL) string {
		if !u.IsAbs() || u.Hostname() == "" {
			return "absolute URL with host is required"
		}
		return ""
	},
	func(u *url.URL) string {
		if u.User != nil {
			return "userinfo is not allowed"
		}
		return ""
	},
	func(u *url.URL) string {
		if u.RawQuery != "" || u.Fragment != "" {
			return "query and fragment are not allowed"
		}
		return ""
	},
	func(u *url.URL) string {
		if !strings.EqualFold(u.Scheme, "https") {
			return "https is required"
		}
		return ""
	},
}

// ValidateBaseURL accepts only plain https URLs whose host is allowed.
// An empty allow-list means the public OpenRouter hosts.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid OPENROUTER_BASE_URL: %w", err)
	}
	for _, rule := range baseURLRules {
		if reason := rule(u); reason != "" {
			return fmt.Errorf("invalid OPENROUTER_BASE_URL %q: %s", baseURL, reason)
		}
	}
	host := strings.ToLower(u.Hostname())
	if !slices.Contains(allowedHostSet(allowedHosts), host) {
		return fmt.Errorf("invalid OPENROUTER_BASE_URL %q: host %q is not in OPENROUTER_ALLOWED_HOSTS", baseURL, host)
	}
	return nil
}

// allowedHostSet strips schemes, ports and slashes from the configured
// hosts.
func allowedHostSet(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, scheme := range []string{"https://", "http://"} {
			h = strings.TrimPrefix(h, scheme)
		}
		h, _, _ = strings.Cut(strings.Trim(h, "/"), ":")
		if h != "" && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return defaultAllowedHosts
	}
	return out
}

// ParseAllowedHosts splits a comma-separated OPENROUTER_ALLOWED_HOSTS value.
func ParseAllowedHosts(raw string) []string {
	var out []string
	for _, h := range strings.Split(raw, ",") {
		if strings.TrimSpace(h) != "" {
			out = append(out, h)
		}
	}
	return out
}
