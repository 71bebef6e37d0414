package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	docx "github.com/fumiama/go-docx"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractDOCX returns the paragraph text of a word-processor document, one paragraph per line.
func extractDOCX(data []byte) (string, error) {
	document, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	var lines []string
	for _, item := range document.Document.Body.Items {
		paragraph, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		lines = append(lines, paragraph.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// textOperatorPattern matches, in stream order, shown strings (Tj, ' and "),
// shown arrays (TJ) and the operators that move to a new line or end a text object.
var textOperatorPattern = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*(?:Tj|'|")|\[((?:\\.|[^\\\]])*)\]\s*TJ|(?:^|\s)(T\*|Td|TD|ET)(?:\s|$)`)

var pdfStringPattern = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// extractPDF reads the text shown by each page's content stream.
func extractPDF(data []byte) (string, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		reader, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || reader == nil {
			continue
		}
		content, err := io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", pageNr, err)
		}
		if text := pageText(content); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", errors.New("no text content found in pdf")
	}
	return strings.Join(pages, "\n\n"), nil
}

func pageText(content []byte) string {
	var builder strings.Builder
	for _, match := range textOperatorPattern.FindAllSubmatch(content, -1) {
		switch {
		case match[1] != nil:
			builder.WriteString(decodePDFString(match[1]))
		case match[2] != nil:
			for _, part := range pdfStringPattern.FindAllSubmatch(match[2], -1) {
				builder.WriteString(decodePDFString(part[1]))
			}
		case string(match[3]) == "ET" || string(match[3]) == "T*":
			builder.WriteByte('\n')
		default:
			builder.WriteByte(' ')
		}
	}
	return tidyPDFText(builder.String())
}

// decodePDFString resolves the escape sequences of a PDF literal string.
func decodePDFString(raw []byte) string {
	var builder strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			builder.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			builder.WriteByte('\n')
		case 'r':
			builder.WriteByte('\r')
		case 't':
			builder.WriteByte('\t')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			value := 0
			for digits := 0; digits < 3 && i < len(raw) && raw[i] >= '0' && raw[i] <= '7'; digits++ {
				value = value*8 + int(raw[i]-'0')
				i++
			}
			i--
			builder.WriteByte(byte(value))
		default:
			builder.WriteByte(raw[i])
		}
	}
	return builder.String()
}

func tidyPDFText(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.Join(strings.Fields(line), " "); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}
