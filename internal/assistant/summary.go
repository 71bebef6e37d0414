package assistant

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
)

// SummaryHeading opens every draft summary.
const SummaryHeading = "I have generated the draft you asked for. Here's a summary:"

const summaryInstructionLimit = 120

type summarizer struct {
	markdown *converter.Converter
}

func newSummarizer() *summarizer {
	return &summarizer{
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// prompt asks for a bullet summary of draft, comparing it with previous drafts
// when there are any. Drafts are rendered as CommonMark.
func (s *summarizer) prompt(instruction, draft string, previous []string) (string, error) {
	current, err := s.markdown.ConvertString(draft)
	if err != nil {
		return "", fmt.Errorf("render draft: %w", err)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "The user requested: %q\n\nRead the following draft:\n\n%s\n\n", instruction, current)
	if len(previous) > 0 {
		rendered := make([]string, 0, len(previous))
		for _, content := range previous {
			markdown, err := s.markdown.ConvertString(content)
			if err != nil {
				return "", fmt.Errorf("render previous draft: %w", err)
			}
			rendered = append(rendered, markdown)
		}
		prompt.WriteString("Compare this draft to the previous drafts and summarize the changes. ")
		prompt.WriteString("Previous drafts:\n")
		prompt.WriteString(strings.Join(rendered, "\n\n"))
		prompt.WriteString("\n\n")
	} else {
		prompt.WriteString("Summarize the content of this draft. ")
	}
	prompt.WriteString("Respond in this format: '" + SummaryHeading + "\n• [First point]\n• [Second point]\n• [Third point]\n...'")
	return prompt.String(), nil
}

// localSummary is used when the generative service gives no summary.
func localSummary(instruction, draft string, versionNumber int) string {
	request := []rune(strings.TrimSpace(instruction))
	if len(request) > summaryInstructionLimit {
		request = append(request[:summaryInstructionLimit], '…')
	}
	words := len(strings.Fields(richtext.StripMarkup(draft)))
	return fmt.Sprintf("%s\n• Version %d was created for your request: %q\n• The draft contains %d words.",
		SummaryHeading, versionNumber, string(request), words)
}
