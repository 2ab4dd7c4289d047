package parser

import (
	"regexp"
	"strings"

	"github.com/starford/notegraph/internal/models"
)

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// extractLinks returns every wikilink occurrence in body, in order. Repeated
// links are kept: each occurrence becomes its own edge.
func extractLinks(body string) []models.Link {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	out := make([]models.Link, 0, len(matches))
	for _, m := range matches {
		if l, ok := ParseWikilink(m[1]); ok {
			out = append(out, l)
		}
	}
	return out
}

// ParseWikilink parses the inside of a [[...]] link of the form
// target#header#subheader^block|display. It reports false for links with
// neither a target nor an anchor.
func ParseWikilink(inner string) (models.Link, bool) {
	raw := inner
	var l models.Link

	if i := strings.Index(raw, "|"); i >= 0 {
		l.Display = strings.TrimSpace(raw[i+1:])
		raw = raw[:i]
	}
	if i := strings.Index(raw, "^"); i >= 0 {
		l.Block = strings.TrimSpace(raw[i+1:])
		raw = raw[:i]
	}

	parts := strings.Split(raw, "#")
	l.Target = normalizeTarget(parts[0])
	for _, h := range parts[1:] {
		if h = strings.TrimSpace(h); h != "" {
			l.Headers = append(l.Headers, h)
		}
	}

	if l.Target == "" && len(l.Headers) == 0 && l.Block == "" {
		return models.Link{}, false
	}

	switch {
	case l.Block != "":
		l.Format = models.FormatBlock
	case len(l.Headers) > 0:
		l.Format = models.FormatSection
	default:
		l.Format = models.FormatDirect
	}
	return l, true
}

func normalizeTarget(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\\", "/"))
	s = strings.TrimPrefix(s, "./")
	return strings.TrimLeft(s, "/")
}
