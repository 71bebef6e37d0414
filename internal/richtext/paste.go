package richtext

import (
	"html"
	"regexp"
	"strings"
)

// RewriteRule is a single textual rewrite in an ordered transform chain.
type RewriteRule struct {
	Name  string
	Apply func(string) string
}

func patternRule(name, pattern, replacement string) RewriteRule {
	compiled := regexp.MustCompile(pattern)
	return RewriteRule{
		Name: name,
		Apply: func(input string) string {
			return compiled.ReplaceAllString(input, replacement)
		},
	}
}

var (
	blankLinePattern = regexp.MustCompile(`\n[ \t]*\n`)
	blockLinePattern = regexp.MustCompile(`^<(h[1-6]|ol|ul|p)>`)

	pasteRules = []RewriteRule{
		{Name: "normalize_newlines", Apply: normalizeNewlines},
		{Name: "escape_markup", Apply: html.EscapeString},
		patternRule("bold_italic", `\*\*\*(.+?)\*\*\*`, "<strong><em>$1</em></strong>"),
		patternRule("bold", `\*\*(.+?)\*\*`, "<strong>$1</strong>"),
		patternRule("italic", `\*(.+?)\*`, "<em>$1</em>"),
		patternRule("strike", `~~(.+?)~~`, "<s>$1</s>"),
		patternRule("code", "`(.+?)`", "<code>$1</code>"),
		patternRule("heading_6", `(?m)^######[ \t]+(.*)$`, "<h6>$1</h6>"),
		patternRule("heading_5", `(?m)^#####[ \t]+(.*)$`, "<h5>$1</h5>"),
		patternRule("heading_4", `(?m)^####[ \t]+(.*)$`, "<h4>$1</h4>"),
		patternRule("heading_3", `(?m)^###[ \t]+(.*)$`, "<h3>$1</h3>"),
		patternRule("heading_2", `(?m)^##[ \t]+(.*)$`, "<h2>$1</h2>"),
		patternRule("heading_1", `(?m)^#[ \t]+(.*)$`, "<h1>$1</h1>"),
		patternRule("ordered_item", `(?m)^\d+\.[ \t]+(.*)$`, "<ol><li>$1</li></ol>"),
		patternRule("bullet_item", `(?m)^-[ \t]+(.*)$`, "<ul><li>$1</li></ul>"),
		patternRule("merge_ordered", `</ol>\n<ol>`, ""),
		patternRule("merge_bullet", `</ul>\n<ul>`, ""),
		{Name: "paragraphs", Apply: wrapParagraphs},
	}
)

// PasteRules returns the ordered rules TransformPaste applies.
func PasteRules() []RewriteRule {
	rules := make([]RewriteRule, len(pasteRules))
	copy(rules, pasteRules)
	return rules
}

// TransformPaste rewrites lightweight-markup plain text into editor markup.
func TransformPaste(text string) string {
	return applyRules(pasteRules, text)
}

func applyRules(rules []RewriteRule, text string) string {
	for _, rule := range rules {
		text = rule.Apply(text)
	}
	return text
}

func normalizeNewlines(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
}

// wrapParagraphs turns blank-line separated blocks into paragraphs. Lines that
// already open a block element stand on their own.
func wrapParagraphs(text string) string {
	var builder strings.Builder
	for _, block := range blankLinePattern.Split(strings.TrimSpace(text), -1) {
		var pending []string
		flush := func() {
			if len(pending) == 0 {
				return
			}
			builder.WriteString("<p>")
			builder.WriteString(strings.Join(pending, "\n"))
			builder.WriteString("</p>")
			pending = nil
		}
		for _, line := range strings.Split(block, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if blockLinePattern.MatchString(trimmed) {
				flush()
				builder.WriteString(trimmed)
				continue
			}
			pending = append(pending, trimmed)
		}
		flush()
	}
	return builder.String()
}
