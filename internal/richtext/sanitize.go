package richtext

import (
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	draftPolicy = sync.OnceValue(newDraftPolicy)

	draftRules = []RewriteRule{
		{Name: "normalize_newlines", Apply: normalizeNewlines},
		patternRule("bold_italic", `\*\*\*(.+?)\*\*\*`, "<strong>$1</strong>"),
		patternRule("bold", `\*\*(.+?)\*\*`, "<strong>$1</strong>"),
		patternRule("point_lines", `(?m)^[ \t]*(\d+\.|-)[ \t]+`, "\n$1 "),
		{Name: "paragraphs", Apply: wrapParagraphs},
	}
)

func newDraftPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("u", "s", "strike", "del")
	policy.AllowAttrs("class").Globally()
	policy.AllowAttrs("data-font-size", "data-type", "data-checked").Globally()
	policy.AllowStyles("text-align").
		MatchingEnum("left", "center", "right", "justify", "start", "end").
		Globally()
	policy.AllowStyles("font-size").
		Matching(regexp.MustCompile(`^\d+(\.\d+)?\s*(pt|px)?$`)).
		Globally()
	policy.AllowStyles("list-style-type").
		MatchingEnum("disc", "square", "decimal", "lower-alpha", "lower-latin").
		OnElements("ul", "ol")
	return policy
}

// Sanitize strips markup the editor cannot represent while keeping alignment,
// font size and list styling hints.
func Sanitize(markup string) string {
	return draftPolicy().Sanitize(markup)
}

// DraftMarkup converts generated draft text into sanitized, well-formed editor markup.
func DraftMarkup(text string) string {
	return Normalize(Sanitize(applyRules(draftRules, text)))
}

// Normalize re-renders markup through the parser so that every element is closed
// and nested the way a browser would build it. Unparseable input is returned as is.
func Normalize(markup string) string {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return markup
	}
	var builder strings.Builder
	for _, node := range nodes {
		if err := html.Render(&builder, node); err != nil {
			return markup
		}
	}
	return builder.String()
}
