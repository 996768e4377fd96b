package leads

import (
	"net/url"
	"strings"
)

// CleanURLs trims whitespace, drops empty entries, defaults a missing scheme
// to https, and removes duplicates while preserving submission order. The
// result is the canonical URL list captured into the job payload.
func CleanURLs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		u := strings.TrimSpace(entry)
		if u == "" {
			continue
		}
		if !strings.Contains(u, "://") {
			u = "https://" + u
		}
		if _, err := url.Parse(u); err != nil {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// SiteHost extracts the lowercase hostname of a URL, or "unknown" when the
// URL does not parse. Used for metric labels and per-site grouping.
func SiteHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
