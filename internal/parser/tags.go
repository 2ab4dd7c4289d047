package parser

import (
	"regexp"
	"strings"
	"unicode"
)

// tagRe matches #tags at line start or after whitespace. Headings never
// match since "# " has a space after the hash.
var tagRe = regexp.MustCompile(`(?m)(?:^|\s)#([\p{L}\p{N}_/-]+)`)

// extractInlineTags collects #tags from body. A tag must contain at least one
// letter so that "#123" is ignored.
func extractInlineTags(body string) []string {
	var out []string
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		tag := normalizeTag(m[1])
		if !hasLetter(tag) {
			continue
		}
		out = append(out, expandHierarchy(tag)...)
	}
	return dedupe(out)
}

// expandHierarchy returns tag plus each of its ancestors: "a/b/c" yields
// "a/b/c", "a/b" and "a".
func expandHierarchy(tag string) []string {
	if tag == "" {
		return nil
	}
	out := []string{tag}
	for i := strings.LastIndex(tag, "/"); i > 0; i = strings.LastIndex(tag, "/") {
		tag = tag[:i]
		out = append(out, tag)
	}
	return out
}

func normalizeTag(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.Trim(s, "/")
	return strings.ToLower(s)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// mergeTags returns frontmatter tags followed by inline tags, without duplicates.
func mergeTags(fm, inline []string) []string {
	return dedupe(append(append([]string(nil), fm...), inline...))
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
