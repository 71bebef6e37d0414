package richtext

import (
	"html"
	"regexp"
	"strings"
)

// ExcerptLimit bounds the plain-text excerpt embedded in fallback documents.
const ExcerptLimit = 1000

var (
	tagPattern         = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	inlineSpacePattern = regexp.MustCompile(`[ \t]+`)
)

// PlainText flattens a node tree the way the editor reports its text: blocks are
// separated by a blank line and line breaks become newlines.
func PlainText(root *Node) string {
	var blocks []string
	collectBlocks(root, &blocks)
	return strings.Join(blocks, "\n\n")
}

func collectBlocks(node *Node, blocks *[]string) {
	var inline strings.Builder
	flush := func() {
		if text := tidyLines(inline.String()); text != "" {
			*blocks = append(*blocks, text)
		}
		inline.Reset()
	}
	for _, child := range node.Children {
		if !child.IsBlock() {
			writeInlineText(child, &inline)
			continue
		}
		flush()
		if hasBlockChild(child) {
			collectBlocks(child, blocks)
			continue
		}
		var text strings.Builder
		writeInlineText(child, &text)
		if child.Kind == KindPreformatted {
			if raw := strings.Trim(child.TextContent(), "\n"); strings.TrimSpace(raw) != "" {
				*blocks = append(*blocks, raw)
			}
			continue
		}
		if tidy := tidyLines(text.String()); tidy != "" {
			*blocks = append(*blocks, tidy)
		}
	}
	flush()
}

func hasBlockChild(node *Node) bool {
	for _, child := range node.Children {
		if child.IsBlock() {
			return true
		}
	}
	return false
}

func writeInlineText(node *Node, builder *strings.Builder) {
	switch node.Kind {
	case KindText:
		builder.WriteString(whitespacePattern.ReplaceAllString(node.Text, " "))
		return
	case KindLineBreak:
		builder.WriteByte('\n')
		return
	}
	for _, child := range node.Children {
		writeInlineText(child, builder)
	}
}

func tidyLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpacePattern.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// StripMarkup replaces every tag with a space, decodes entities and collapses whitespace.
func StripMarkup(markup string) string {
	stripped := tagPattern.ReplaceAllString(strings.ToValidUTF8(markup, ""), " ")
	stripped = strings.ReplaceAll(html.UnescapeString(stripped), "\x00", "")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(stripped, " "))
}

// Excerpt returns at most limit runes of the markup's visible text.
func Excerpt(markup string, limit int) string {
	text := StripMarkup(markup)
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
