package extract

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// markdown renders the document as plain text. Headings keep their '#'
// markers so section boundaries survive; list items become "- " lines.
func (e *Extractor) markdown(source []byte) (*Result, error) {
	source = []byte(normalizeText(source))

	// Parse markdown to AST
	doc := e.md.Parser().Parse(text.NewReader(source))

	// Extract TOC with hierarchy
	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(e.outlineDepth),
		toc.Compact(true), // Remove empty items
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var blocks []string
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(inlineText(node, source))
			if title != "" {
				blocks = append(blocks, strings.Repeat("#", node.Level)+" "+title)
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.TextBlock:
			body := strings.TrimSpace(inlineText(node, source))
			if body == "" {
				return ast.WalkSkipChildren, nil
			}
			if isFirstInListItem(node) {
				body = "- " + body
			}
			blocks = append(blocks, body)
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			code := strings.TrimRight(string(node.Lines().Value(source)), "\n")
			if code != "" {
				blocks = append(blocks, code)
			}
			return ast.WalkSkipChildren, nil

		case *ast.HTMLBlock, *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	return &Result{
		Text:    strings.Join(blocks, "\n\n"),
		Format:  FormatMarkdown,
		Outline: flattenOutline(tree.Items, nil),
	}, nil
}

// inlineText concatenates the inline content below n. Soft line breaks
// become spaces so a paragraph stays on one line.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch v := c.(type) {
			case *ast.Text:
				b.Write(v.Segment.Value(source))
				switch {
				case v.HardLineBreak():
					b.WriteByte('\n')
				case v.SoftLineBreak():
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(v.Value)
			case *ast.AutoLink:
				b.Write(v.URL(source))
			case *ast.RawHTML:
				// dropped
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func isFirstInListItem(n ast.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Kind() == ast.KindListItem && parent.FirstChild() == n
}

func flattenOutline(items toc.Items, out []string) []string {
	for _, item := range items {
		if title := strings.TrimSpace(string(item.Title)); title != "" {
			out = append(out, title)
		}
		out = flattenOutline(item.Items, out)
	}
	return out
}
