package ingestion

import (
	"net/url"
	"strings"
)

// InferredMetadata holds the topic and doc type inferred from a documentation
// URL's structure. CLI flags take precedence over inferred values — this is
// the best-effort fallback when the user doesn't specify explicit metadata.
type InferredMetadata struct {
	// Topic is a subject label derived from the URL (host or repository name).
	Topic string
	// DocType classifies the documentation kind (reference, tutorial, guide, api, changelog).
	DocType string
}

// docTypeSegments maps well-known URL path segments to a doc type. The first
// matching segment wins, scanning the path left to right.
var docTypeSegments = map[string]string{
	"tutorial":      "tutorial",
	"tutorials":     "tutorial",
	"quickstart":    "tutorial",
	"quick-start":   "tutorial",
	"getting-started": "tutorial",
	"guide":         "guide",
	"guides":        "guide",
	"howto":         "guide",
	"how-to":        "guide",
	"cookbook":      "guide",
	"api":           "api",
	"apis":          "api",
	"openapi":       "api",
	"changelog":     "changelog",
	"releases":      "changelog",
	"release-notes": "changelog",
	"reference":     "reference",
	"docs":          "reference",
	"documentation": "reference",
	"manual":        "reference",
}

// InferMetadata inspects the documentation source URL and returns best-effort
// metadata. If the URL doesn't match any known pattern the returned fields
// contain sensible defaults (host-derived topic, "reference" doc type).
//
// Examples:
//
//	https://docs.example.com/guides/setup         → topic "example", doc type "guide"
//	https://github.com/acme/widget/blob/main/README.md → topic "widget", doc type "reference"
//	https://example.readthedocs.io/en/latest/api/ → topic "example", doc type "api"
func InferMetadata(rawURL string) InferredMetadata {
	m := InferredMetadata{
		Topic:   "generic",
		DocType: "reference",
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return m
	}

	host := strings.ToLower(parsed.Hostname())
	segments := trimSegments(strings.ToLower(parsed.Path))

	m.Topic = inferTopic(host, segments)

	for _, seg := range segments {
		if dt, ok := docTypeSegments[seg]; ok {
			m.DocType = dt
			break
		}
	}

	return m
}

// inferTopic derives a subject label from the host and path. GitHub URLs use
// the repository name; readthedocs subdomains use the project name; other
// hosts use the second-level domain stripped of "docs"/"www" prefixes.
func inferTopic(host string, segments []string) string {
	if host == "" {
		return "generic"
	}

	if host == "github.com" || host == "raw.githubusercontent.com" {
		// github.com/{org}/{repo}/...
		if len(segments) >= 2 {
			return segments[1]
		}
		return "generic"
	}

	parts := strings.Split(host, ".")
	if strings.HasSuffix(host, ".readthedocs.io") && len(parts) >= 3 {
		return parts[0]
	}

	// Strip common documentation subdomains, then take the registrable label.
	for len(parts) > 2 {
		switch parts[0] {
		case "docs", "doc", "www", "developer", "developers", "help", "wiki", "api":
			parts = parts[1:]
		default:
			return parts[0]
		}
	}
	if len(parts) >= 2 {
		return parts[0]
	}
	return host
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
