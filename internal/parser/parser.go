// Package parser extracts frontmatter, wikilinks, tags and chunks from Markdown content.
package parser

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/notegraph/internal/models"
)

// ErrInvalidEncoding is returned for content that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("parser: content is not valid UTF-8")

// Result holds the output of parsing a Markdown file.
type Result struct {
	// Frontmatter is the raw YAML mapping; Properties is the same mapping
	// after the known-property handlers ran.
	Frontmatter map[string]any
	Properties  map[string]any
	Body        string
	Links       []models.Link
	Tags        []string
	Aliases     []string
	Title       string
}

// Parse extracts frontmatter, body, wikilinks, and tags from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	fm, body := splitFrontmatter(data)
	props := normalizeProperties(fm)

	fmTags, _ := props[propTags].([]string)
	aliases, _ := props[propAliases].([]string)

	return &Result{
		Frontmatter: fm,
		Properties:  props,
		Body:        body,
		Links:       extractLinks(body),
		Tags:        mergeTags(fmTags, extractInlineTags(body)),
		Aliases:     aliases,
		Title:       deriveTitle(props, body),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, treat everything as body.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}

	return fm, body
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(props map[string]any, body string) string {
	if s, ok := props[propTitle].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
