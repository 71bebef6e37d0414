package export

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
)

// PlainText returns the editor text of content.
func PlainText(content string) (string, error) {
	root, err := richtext.Parse(content)
	if err != nil {
		return "", err
	}
	return richtext.PlainText(root), nil
}

func renderText(_ context.Context, content string) ([]byte, error) {
	text, err := PlainText(content)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func fallbackText(content string) ([]byte, error) {
	return []byte(strings.Join(fallbackLines(content), "\n\n") + "\n"), nil
}
