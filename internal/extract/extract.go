// Package extract turns uploaded document bytes into plain text for chunking.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"

	"github.com/bull/studyflow/internal/study"
)

var (
	// ErrUnsupportedFormat is returned for content types with no extractor.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported document format", study.ErrNotAvailable)
	// ErrNoText is returned when a document holds no extractable text.
	ErrNoText = fmt.Errorf("%w: no extractable text", study.ErrNotAvailable)
)

// Format is the document family an extractor handles.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatText     Format = "text"
)

// Content types recorded on documents.
const (
	ContentTypeMarkdown = "text/markdown"
	ContentTypePDF      = "application/pdf"
	ContentTypeText     = "text/plain"
)

// Result is the text of one document.
type Result struct {
	Text    string
	Format  Format
	Outline []string // Heading titles, document order
	Pages   int      // PDF only
}

// Extractor converts markdown, PDF and plain text documents to text.
type Extractor struct {
	md           goldmark.Markdown
	outlineDepth int
}

// New creates an extractor whose outline covers headings up to level 3.
func New() *Extractor {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Extractor{md: md, outlineDepth: 3}
}

// DetectContentType sniffs data, using the file extension to tell markdown
// apart from other text.
func DetectContentType(fileName string, data []byte) string {
	mime := mimetype.Detect(data)
	switch {
	case mime.Is(ContentTypePDF):
		return ContentTypePDF
	case isMarkdownName(fileName) && strings.HasPrefix(mime.String(), "text/"):
		return ContentTypeMarkdown
	case strings.HasPrefix(mime.String(), "text/plain"):
		return ContentTypeText
	}
	return mime.String()
}

func isMarkdownName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdown", ".mkd":
		return true
	}
	return false
}

// Extract returns the text of a document with the given content type.
func (e *Extractor) Extract(ctx context.Context, contentType string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch mediaType(contentType) {
	case ContentTypeMarkdown:
		res, err = e.markdown(data)
	case ContentTypePDF:
		res, err = extractPDF(data)
	case ContentTypeText:
		res = &Result{Text: normalizeText(data), Format: FormatText}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, ErrNoText
	}
	return res, nil
}

func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func normalizeText(data []byte) string {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(data)
}
