// Package render converts the model's markdown output into readable
// terminal text with light ANSI styling.
package render

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// Terminal renders markdown source as styled terminal text. Rendering
// failures degrade to the raw source.
func Terminal(source string, color bool) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(source))
	doc := md.Parser().Parse(reader)

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Heading, *ast.Paragraph, *ast.ListItem:
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if color {
				b.WriteString(ansiBold)
			}
			b.WriteString(strings.Repeat("#", node.Level) + " " + string(nodeText(node, source)))
			if color {
				b.WriteString(ansiReset)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if color {
				b.WriteString(ansiDim)
			}
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.WriteString("    " + string(seg.Value([]byte(source))))
			}
			if color {
				b.WriteString(ansiReset)
			}
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			b.WriteString("  • ")
		case *ast.Text:
			b.WriteString(string(node.Segment.Value([]byte(source))))
		case *ast.CodeSpan:
			b.WriteString("`" + string(nodeText(node, source)) + "`")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return source
	}
	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return source
	}
	return out
}

// nodeText collects the literal text under a node.
func nodeText(n ast.Node, source string) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.WriteString(string(t.Segment.Value([]byte(source))))
		} else {
			b.WriteString(nodeText(c, source))
		}
	}
	return b.String()
}

// Usage formats a usage line for the status bar.
func Usage(prompt, completion int, cost float64) string {
	if cost > 0 {
		return fmt.Sprintf("tokens: %d in / %d out · $%.4f", prompt, completion, cost)
	}
	return fmt.Sprintf("tokens: %d in / %d out", prompt, completion)
}
