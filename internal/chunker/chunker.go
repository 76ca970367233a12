// Package chunker splits extracted document text into heading-tagged chunks
// whose sizes stay within configured bounds.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bull/studyflow/internal/study"
)

// Default size bounds, in characters.
const (
	DefaultMinSize = 300
	DefaultMaxSize = 800
)

// headingPattern matches markdown headings ("## Title"), short title lines
// ending in a colon ("Overview:") and numbered headings ("1. Title").
var headingPattern = regexp.MustCompile(`^(#{1,6}\s+.+|[A-Z][^.!?]*[:]\s*$|\d+\.\s+[A-Z].+$)`)

// Chunker splits text at heading boundaries, then normalizes each section to
// the [min, max] size window.
type Chunker struct {
	minSize int
	maxSize int
}

// Result is the outcome of chunking one text.
type Result struct {
	Chunks []*study.Chunk
	// DroppedSections counts non-empty sections shorter than the minimum size.
	DroppedSections int
}

type section struct {
	heading string
	body    string
}

// New creates a chunker with the given bounds.
func New(minSize, maxSize int) (*Chunker, error) {
	if minSize <= 0 || maxSize <= 0 {
		return nil, fmt.Errorf("%w: chunk sizes must be positive (min=%d, max=%d)", study.ErrInvalidInput, minSize, maxSize)
	}
	if minSize > maxSize {
		return nil, fmt.Errorf("%w: min chunk size %d exceeds max %d", study.ErrInvalidInput, minSize, maxSize)
	}
	return &Chunker{minSize: minSize, maxSize: maxSize}, nil
}

// Chunk returns the ordered chunks for text. Document IDs and chunk IDs are
// left for the caller to assign so that identical input yields identical output.
func (c *Chunker) Chunk(text string) []*study.Chunk {
	return c.Split(text).Chunks
}

// Split is Chunk with bookkeeping about dropped sections.
func (c *Chunker) Split(text string) Result {
	var res Result
	if strings.TrimSpace(text) == "" {
		return res
	}

	offset := 0
	emit := func(heading, content string) {
		n := utf8.RuneCountInString(content)
		res.Chunks = append(res.Chunks, &study.Chunk{
			Index:       len(res.Chunks),
			Content:     content,
			StartOffset: offset,
			EndOffset:   offset + n,
			Heading:     heading,
		})
		offset += n
	}

	for _, sec := range splitSections(text) {
		size := utf8.RuneCountInString(sec.body)
		switch {
		case size > c.maxSize:
			for _, piece := range c.pack(splitSentences(sec.body)) {
				emit(sec.heading, piece)
			}
		case size >= c.minSize:
			emit(sec.heading, sec.body)
		default:
			res.DroppedSections++
		}
	}
	return res
}

// splitSections groups lines under the most recent heading. Bodies are
// trimmed and sections with an empty body are skipped.
func splitSections(text string) []section {
	var (
		sections []section
		heading  string
		body     strings.Builder
	)

	flush := func() {
		if b := strings.TrimSpace(body.String()); b != "" {
			sections = append(sections, section{heading: heading, body: b})
		}
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && headingPattern.MatchString(trimmed) {
			flush()
			heading = trimmed
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return sections
}

// splitSentences cuts after '.', '!' or '?' when whitespace follows. The
// whitespace run itself is discarded.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentences = append(sentences, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// pack accumulates sentences into pieces. A piece is closed once adding the
// next sentence would pass max and the piece is already longer than min.
func (c *Chunker) pack(sentences []string) []string {
	var (
		pieces []string
		cur    strings.Builder
		curLen int
	)
	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if curLen+n > c.maxSize && curLen > c.minSize {
			pieces = appendTrimmed(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
		cur.WriteString(s)
		cur.WriteByte(' ')
		curLen += n + 1
	}
	if curLen > 0 {
		pieces = appendTrimmed(pieces, cur.String())
	}
	return pieces
}

func appendTrimmed(pieces []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}
