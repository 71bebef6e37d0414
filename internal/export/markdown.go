package export

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
)

var excessNewlinesPattern = regexp.MustCompile(`\n{3,}`)

// Markdown converts editor markup into Markdown. It backs both the .md export
// and copy-as-Markdown.
func Markdown(content string) (string, error) {
	root, err := richtext.Parse(content)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	for _, child := range root.Children {
		builder.WriteString(markdownOf(child))
	}
	return excessNewlinesPattern.ReplaceAllString(builder.String(), "\n\n"), nil
}

func renderMarkdownBytes(_ context.Context, content string) ([]byte, error) {
	markdown, err := Markdown(content)
	if err != nil {
		return nil, err
	}
	return []byte(markdown), nil
}

func fallbackMarkdown(content string) ([]byte, error) {
	lines := fallbackLines(content)
	return []byte("**" + lines[0] + "**\n\n" + lines[1] + "\n\n" + lines[2] + "\n"), nil
}

func markdownOf(node *richtext.Node) string {
	switch node.Kind {
	case richtext.KindText:
		return node.Text
	case richtext.KindLineBreak:
		return "\n"
	case richtext.KindPreformatted:
		return "```\n" + strings.Trim(node.TextContent(), "\n") + "\n```\n\n"
	case richtext.KindOrderedList, richtext.KindBulletList:
		return markdownList(node)
	}

	children := markdownChildren(node)
	switch node.Kind {
	case richtext.KindHeading:
		return strings.Repeat("#", node.Level) + " " + children + "\n\n"
	case richtext.KindParagraph:
		return children + "\n\n"
	case richtext.KindBold:
		return "**" + children + "**"
	case richtext.KindItalic:
		return "*" + children + "*"
	case richtext.KindUnderline:
		return "<u>" + children + "</u>"
	case richtext.KindStrike:
		return "~~" + children + "~~"
	case richtext.KindCode:
		return "`" + children + "`"
	case richtext.KindDivision:
		return children + "\n"
	default:
		return children
	}
}

func markdownChildren(node *richtext.Node) string {
	var builder strings.Builder
	for _, child := range node.Children {
		builder.WriteString(markdownOf(child))
	}
	return builder.String()
}

func markdownList(list *richtext.Node) string {
	var lines []string
	ordinal := 0
	for _, item := range list.Children {
		if item.Kind == richtext.KindText {
			continue
		}
		ordinal++
		var content strings.Builder
		var nested []string
		for _, child := range item.Children {
			if child.IsList() {
				nested = append(nested, indentLines(strings.TrimRight(markdownList(child), "\n"), "   "))
				continue
			}
			content.WriteString(markdownOf(child))
		}
		line := markdownListMarker(list, ordinal, item.Checked) + strings.TrimSpace(content.String())
		lines = append(lines, line)
		lines = append(lines, nested...)
	}
	return strings.Join(lines, "\n") + "\n\n"
}

func markdownListMarker(list *richtext.Node, ordinal int, checked bool) string {
	if list.Kind == richtext.KindOrderedList {
		return strconv.Itoa(ordinal) + ". "
	}
	if list.ListStyle == richtext.ListStyleTask {
		if checked {
			return "- [x] "
		}
		return "- [ ] "
	}
	return "- "
}

func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
