package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownConversion(t *testing.T) {
	testCases := []struct {
		name     string
		markup   string
		expected string
	}{
		{
			name:     "plain markdown passes through",
			markup:   "**bold** and *italic*",
			expected: "**bold** and *italic*",
		},
		{
			name:     "headings and paragraphs",
			markup:   "<h1>Notice</h1><h3>Terms</h3><p>Body</p>",
			expected: "# Notice\n\n### Terms\n\nBody\n\n",
		},
		{
			name:     "inline formatting",
			markup:   "<p><strong>a</strong> <em>b</em> <u>c</u> <s>d</s> <code>e</code></p>",
			expected: "**a** *b* <u>c</u> ~~d~~ `e`\n\n",
		},
		{
			name:     "ordered list",
			markup:   "<ol><li>one</li><li>two</li></ol><p>after</p>",
			expected: "1. one\n2. two\n\nafter\n\n",
		},
		{
			name:     "bullet and task lists",
			markup:   `<ul><li>x</li></ul><ul data-type="taskList"><li data-checked="true">done</li><li>open</li></ul>`,
			expected: "- x\n\n- [x] done\n- [ ] open\n\n",
		},
		{
			name:     "nested list",
			markup:   "<ul><li>outer<ul><li>inner</li></ul></li></ul>",
			expected: "- outer\n   - inner\n\n",
		},
		{
			name:     "line breaks and blank runs collapse",
			markup:   "<p>a<br>b</p><p></p><p></p><p>c</p>",
			expected: "a\nb\n\nc\n\n",
		},
		{
			name:     "preformatted",
			markup:   "<pre>x := 1\n</pre>",
			expected: "```\nx := 1\n```\n\n",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			markdown, err := Markdown(testCase.markup)
			require.NoError(t, err)
			require.Equal(t, testCase.expected, markdown)
		})
	}
}

func TestMarkdownRejectsInvalidMarkup(t *testing.T) {
	_, err := Markdown("\xff")
	require.Error(t, err)
}

func TestMarkdownFallbackCarriesNotice(t *testing.T) {
	data, err := fallbackMarkdown("<p>Lease text</p>")
	require.NoError(t, err)
	require.Equal(t, "**"+FallbackNotice+"**\n\n"+FallbackIntro+"\n\nLease text\n", string(data))
}
