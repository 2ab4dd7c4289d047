package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/starford/notegraph/internal/models"
)

// DefaultMaxChunkSize is the chunk size used when none is configured.
const DefaultMaxChunkSize = 800

const (
	maskOpen  = "\uE000"
	maskClose = "\uE001"

	chunkNameWords = 5
	chunkNameRunes = 32
)

var (
	// sentenceEndRe marks the end of a sentence or paragraph.
	sentenceEndRe = regexp.MustCompile(`[.!?]+\s+|\n{2,}`)
	maskTokenRe   = regexp.MustCompile(maskOpen + `(\d+)` + maskClose)
)

// Chunker splits a document body into ordered chunks: first at headings,
// then at sentence boundaries when a section exceeds the maximum size.
// Wikilinks are never split.
type Chunker struct {
	maxSize int
	md      goldmark.Markdown
}

// NewChunker returns a Chunker producing chunks of at most maxSize bytes
// where sentence boundaries allow.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	return &Chunker{maxSize: maxSize, md: goldmark.New()}
}

// Split returns the chunks of body in document order. Ordinals start at 0.
func (c *Chunker) Split(body string) []models.Chunk {
	var out []models.Chunk
	for _, section := range c.sections(body) {
		for _, piece := range c.pack(section) {
			ordinal := len(out)
			out = append(out, models.Chunk{
				Ordinal: ordinal,
				Name:    ChunkName(ordinal, piece),
				Content: piece,
			})
		}
	}
	return out
}

// sections cuts body at the start of every top-level heading.
func (c *Chunker) sections(body string) []string {
	src := []byte(body)
	doc := c.md.Parser().Parse(text.NewReader(src))

	var cuts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		start := h.Lines().At(0).Start
		lineStart := bytes.LastIndexByte(src[:start], '\n') + 1
		if lineStart > 0 {
			cuts = append(cuts, lineStart)
		}
	}

	var out []string
	prev := 0
	for _, cut := range cuts {
		if cut <= prev {
			continue
		}
		out = appendNonBlank(out, body[prev:cut])
		prev = cut
	}
	return appendNonBlank(out, body[prev:])
}

// pack splits an oversized section into sentence-aligned pieces.
func (c *Chunker) pack(section string) []string {
	if len(section) <= c.maxSize {
		return []string{strings.TrimSpace(section)}
	}

	masked, links := maskWikilinks(section)

	var pieces []string
	prev := 0
	for _, m := range sentenceEndRe.FindAllStringIndex(masked, -1) {
		pieces = append(pieces, masked[prev:m[1]])
		prev = m[1]
	}
	if prev < len(masked) {
		pieces = append(pieces, masked[prev:])
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		out = appendNonBlank(out, unmaskWikilinks(cur.String(), links))
		cur.Reset()
	}
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > c.maxSize {
			flush()
		}
		cur.WriteString(p)
	}
	flush()
	return out
}

// maskWikilinks swaps every [[...]] for a token free of sentence punctuation.
func maskWikilinks(s string) (string, []string) {
	var links []string
	masked := wikilinkRe.ReplaceAllStringFunc(s, func(m string) string {
		links = append(links, m)
		return maskOpen + strconv.Itoa(len(links)-1) + maskClose
	})
	return masked, links
}

func unmaskWikilinks(s string, links []string) string {
	if len(links) == 0 {
		return s
	}
	return maskTokenRe.ReplaceAllStringFunc(s, func(m string) string {
		i, err := strconv.Atoi(maskTokenRe.FindStringSubmatch(m)[1])
		if err != nil || i >= len(links) {
			return m
		}
		return links[i]
	})
}

// ChunkName builds a display name from the ordinal and the first words of the
// chunk's first line, e.g. "2_Project goals for Q3...".
func ChunkName(ordinal int, content string) string {
	first := strings.TrimSpace(content)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	first = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, first)

	words := strings.Fields(first)
	if len(words) > chunkNameWords {
		words = words[:chunkNameWords]
	}
	label := []rune(strings.Join(words, " "))
	if len(label) > chunkNameRunes {
		label = label[:chunkNameRunes]
	}
	return fmt.Sprintf("%d_%s...", ordinal, string(label))
}

func appendNonBlank(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}
