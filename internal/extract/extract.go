// Package extract turns uploaded protocol documentation into the plain text
// handed to the synthesis worker. Extraction runs at most once per task;
// the result is cached on the task record.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// FailedSentinel marks a cached extraction that produced nothing usable.
// The decide stage treats it the same as empty text.
const FailedSentinel = "EXTRACTION_FAILED"

// TextExtractor derives protocol text from an uploaded document payload.
type TextExtractor interface {
	Extract(ctx context.Context, payload []byte) (string, error)
}

// MarkdownExtractor extracts plain text from Markdown datasheets. Register
// maps typically arrive as GFM tables, so the GFM extension is enabled.
type MarkdownExtractor struct {
	markdown goldmark.Markdown
}

// NewMarkdownExtractor creates a MarkdownExtractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Extract renders the Markdown payload to plain text: headings, paragraphs,
// table cells and code blocks in document order, one block per line.
func (e *MarkdownExtractor) Extract(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return "", fmt.Errorf("document payload is empty")
	}

	doc := e.markdown.Parser().Parse(text.NewReader(payload))

	var buf strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(payload))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			} else {
				buf.WriteByte(' ')
			}
		case *ast.FencedCodeBlock:
			writeCodeLines(&buf, node.BaseBlock, payload)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			writeCodeLines(&buf, node.BaseBlock, payload)
			return ast.WalkSkipChildren, nil
		case *ast.Heading, *ast.Paragraph, *ast.ListItem:
			ensureNewline(&buf)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}

	result := normalize(buf.String())
	if result == "" {
		return "", fmt.Errorf("document contains no extractable text")
	}
	return result, nil
}

func writeCodeLines(buf *strings.Builder, block ast.BaseBlock, source []byte) {
	ensureNewline(buf)
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}

func ensureNewline(buf *strings.Builder) {
	if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}
}

// normalize trims trailing spaces per line and collapses blank runs.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" && len(out) > 0 && out[len(out)-1] == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// IsUsable reports whether cached protocol text can be sent to the worker:
// non-empty and not the extraction-failure sentinel.
func IsUsable(protocolText string) bool {
	trimmed := strings.TrimSpace(protocolText)
	return trimmed != "" && trimmed != FailedSentinel
}
