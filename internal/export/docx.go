package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
	docx "github.com/fumiama/go-docx"
)

const (
	paragraphSpacingTwips = 200
	listIndentTwips       = 720
	fallbackColor         = "FF0000"
	headingOneSize        = 32
	headingTwoSize        = 28
	headingMinorSize      = 24
	maxHeadingLevel       = 6
	docxTemplateName      = "default"
	docxStylesPath        = "word/styles.xml"
)

var runWhitespacePattern = regexp.MustCompile(`\s+`)

type docParagraph struct {
	Style  string
	Align  richtext.Alignment
	Indent int
	Runs   []docRun
}

type docRun struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Code      bool
	Size      int
	Color     string
}

type runStyle struct {
	bold      bool
	italic    bool
	underline bool
	strike    bool
	code      bool
	size      int
}

func (s runStyle) run(text string) docRun {
	return docRun{
		Text:      text,
		Bold:      s.bold,
		Italic:    s.italic,
		Underline: s.underline,
		Strike:    s.strike,
		Code:      s.code,
		Size:      s.size,
	}
}

func renderDOCX(_ context.Context, content string) ([]byte, error) {
	root, err := richtext.Parse(content)
	if err != nil {
		return nil, err
	}
	if root.IsBlank() {
		return nil, ErrEmptyDocument
	}
	return writeDOCX(layoutDocument(root))
}

func fallbackDOCX(content string) ([]byte, error) {
	lines := fallbackLines(content)
	return writeDOCX([]docParagraph{
		{Runs: []docRun{{Text: lines[0], Bold: true, Color: fallbackColor}}},
		{Runs: []docRun{{Text: lines[1]}}},
		{Runs: []docRun{{Text: lines[2]}}},
	})
}

// layoutDocument flattens the node tree into word-processor paragraphs.
func layoutDocument(root *richtext.Node) []docParagraph {
	builder := &docBuilder{}
	builder.blocks(root.Children, richtext.AlignLeft)
	return builder.paragraphs
}

type docBuilder struct {
	paragraphs []docParagraph
}

// blocks lays out sibling nodes; loose inline siblings are gathered into one
// default paragraph.
func (b *docBuilder) blocks(nodes []*richtext.Node, align richtext.Alignment) {
	var loose []*richtext.Node
	flush := func() {
		if len(loose) == 0 {
			return
		}
		paragraph := docParagraph{Align: align}
		for _, node := range loose {
			collectRuns(node, runStyle{}, &paragraph.Runs)
		}
		loose = nil
		paragraph.Runs = trimRuns(paragraph.Runs)
		if len(paragraph.Runs) > 0 {
			b.paragraphs = append(b.paragraphs, paragraph)
		}
	}
	for _, node := range nodes {
		if !node.IsBlock() {
			loose = append(loose, node)
			continue
		}
		flush()
		b.block(node)
	}
	flush()
}

func (b *docBuilder) block(node *richtext.Node) {
	switch node.Kind {
	case richtext.KindHeading:
		b.heading(node)
	case richtext.KindBulletList, richtext.KindOrderedList:
		b.list(node, 1)
	case richtext.KindPreformatted:
		paragraph := docParagraph{Align: node.Align}
		text := strings.Trim(node.TextContent(), "\n")
		paragraph.Runs = append(paragraph.Runs, runStyle{code: true, size: node.FontSize}.run(text))
		b.paragraphs = append(b.paragraphs, paragraph)
	case richtext.KindParagraph:
		b.paragraph(node, runStyle{size: node.FontSize})
	default:
		if hasBlockChild(node) {
			b.blocks(node.Children, node.Align)
			return
		}
		b.paragraph(node, runStyle{size: node.FontSize})
	}
}

func (b *docBuilder) paragraph(node *richtext.Node, style runStyle) {
	paragraph := docParagraph{Align: node.Align}
	for _, child := range node.Children {
		collectRuns(child, style, &paragraph.Runs)
	}
	paragraph.Runs = trimRuns(paragraph.Runs)
	b.paragraphs = append(b.paragraphs, paragraph)
}

func (b *docBuilder) heading(node *richtext.Node) {
	style := runStyle{bold: true, size: node.FontSize}
	paragraph := docParagraph{
		Style: fmt.Sprintf("Heading%d", node.Level),
		Align: node.Align,
	}
	switch node.Level {
	case 1:
		paragraph.Align = richtext.AlignCenter
		if style.size == 0 {
			style.size = headingOneSize
		}
	case 2:
		if style.size == 0 {
			style.size = headingTwoSize
		}
	default:
		if style.size == 0 {
			style.size = headingMinorSize
		}
	}
	for _, child := range node.Children {
		collectRuns(child, style, &paragraph.Runs)
	}
	paragraph.Runs = trimRuns(paragraph.Runs)
	b.paragraphs = append(b.paragraphs, paragraph)
}

// list emits one indented paragraph per item with a literal marker run, then
// nested lists one indent level deeper.
func (b *docBuilder) list(list *richtext.Node, level int) {
	ordinal := 0
	for _, item := range list.Children {
		if item.Kind == richtext.KindText {
			continue
		}
		ordinal++
		paragraph := docParagraph{Align: item.Align, Indent: listIndentTwips * level}
		paragraph.Runs = append(paragraph.Runs, docRun{
			Text: listMarker(list, ordinal, item.Checked),
			Size: item.FontSize,
		})

		var nested []*richtext.Node
		var content []docRun
		blockSeen := false
		for _, child := range item.Children {
			if child.IsList() {
				nested = append(nested, child)
				continue
			}
			if child.IsBlock() {
				if blockSeen {
					content = append(content, docRun{Text: "\n", Size: item.FontSize})
				}
				blockSeen = true
			}
			collectRuns(child, runStyle{size: item.FontSize}, &content)
		}
		paragraph.Runs = append(paragraph.Runs, trimRuns(content)...)
		b.paragraphs = append(b.paragraphs, paragraph)

		for _, child := range nested {
			b.list(child, level+1)
		}
	}
}

func listMarker(list *richtext.Node, ordinal int, checked bool) string {
	if list.Kind == richtext.KindOrderedList {
		if list.ListStyle == richtext.ListStyleLowerAlpha {
			return alphaOrdinal(ordinal) + ". "
		}
		return strconv.Itoa(ordinal) + ". "
	}
	switch list.ListStyle {
	case richtext.ListStyleTask:
		if checked {
			return "☑ "
		}
		return "☐ "
	case richtext.ListStyleSquare:
		return "▪ "
	default:
		return "• "
	}
}

// alphaOrdinal renders 1 as a, 26 as z, 27 as aa.
func alphaOrdinal(ordinal int) string {
	var letters []byte
	for ordinal > 0 {
		ordinal--
		letters = append([]byte{byte('a' + ordinal%26)}, letters...)
		ordinal /= 26
	}
	return string(letters)
}

// collectRuns appends formatted runs for node. Formatting accumulates through
// nesting and each run takes the nearest enclosing font size.
func collectRuns(node *richtext.Node, style runStyle, runs *[]docRun) {
	switch node.Kind {
	case richtext.KindText:
		if strings.TrimSpace(node.Text) == "" && strings.Contains(node.Text, "\n") {
			return
		}
		text := node.Text
		if !style.code {
			text = runWhitespacePattern.ReplaceAllString(text, " ")
		}
		if text != "" {
			*runs = append(*runs, style.run(text))
		}
		return
	case richtext.KindLineBreak:
		*runs = append(*runs, style.run("\n"))
		return
	}
	if node.IsList() {
		return
	}

	next := style
	if node.FontSize > 0 {
		next.size = node.FontSize
	}
	switch node.Kind {
	case richtext.KindBold:
		next.bold = true
	case richtext.KindItalic:
		next.italic = true
	case richtext.KindUnderline:
		next.underline = true
	case richtext.KindStrike:
		next.strike = true
	case richtext.KindCode:
		next.code = true
	}
	for _, child := range node.Children {
		collectRuns(child, next, runs)
	}
}

func trimRuns(runs []docRun) []docRun {
	for len(runs) > 0 && strings.TrimSpace(runs[0].Text) == "" && runs[0].Text != "\n" {
		runs = runs[1:]
	}
	for len(runs) > 0 && strings.TrimSpace(runs[len(runs)-1].Text) == "" && runs[len(runs)-1].Text != "\n" {
		runs = runs[:len(runs)-1]
	}
	if len(runs) == 0 {
		return nil
	}
	runs[0].Text = strings.TrimLeft(runs[0].Text, " ")
	runs[len(runs)-1].Text = strings.TrimRight(runs[len(runs)-1].Text, " ")
	return runs
}

func hasBlockChild(node *richtext.Node) bool {
	for _, child := range node.Children {
		if child.IsBlock() {
			return true
		}
	}
	return false
}

func justification(align richtext.Alignment) string {
	switch align {
	case richtext.AlignCenter:
		return "center"
	case richtext.AlignRight:
		return "right"
	case richtext.AlignJustify:
		return "both"
	default:
		return "left"
	}
}

// headingStyles declares Heading1..Heading6 on top of the template's Normal style.
func headingStyles() string {
	var styles strings.Builder
	for level := 1; level <= maxHeadingLevel; level++ {
		fmt.Fprintf(&styles,
			`<w:style w:type="paragraph" w:styleId="Heading%[1]d"><w:name w:val="heading %[1]d"/><w:basedOn w:val="a"/><w:next w:val="a"/><w:qFormat/><w:pPr><w:keepNext/><w:outlineLvl w:val="%[2]d"/></w:pPr><w:rPr><w:b/></w:rPr></w:style>`,
			level, level-1)
	}
	return styles.String()
}

// styledTemplate serves the embedded go-docx template with heading styles
// appended to its styles part.
type styledTemplate struct {
	base fs.FS
}

type styledFile struct {
	fs.File
	content *bytes.Reader
}

func (f styledFile) Read(p []byte) (int, error) {
	return f.content.Read(p)
}

func (t styledTemplate) Open(name string) (fs.File, error) {
	file, err := t.base.Open(name)
	if err != nil || name != "xml/"+docxTemplateName+"/"+docxStylesPath {
		return file, err
	}
	raw, err := io.ReadAll(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	closing := bytes.LastIndex(raw, []byte("</w:styles>"))
	if closing < 0 {
		_ = file.Close()
		return nil, fmt.Errorf("docx template styles part is malformed")
	}
	patched := make([]byte, 0, len(raw)+2048)
	patched = append(patched, raw[:closing]...)
	patched = append(patched, headingStyles()...)
	patched = append(patched, raw[closing:]...)
	return styledFile{File: file, content: bytes.NewReader(patched)}, nil
}

func writeDOCX(paragraphs []docParagraph) ([]byte, error) {
	document := docx.New().UseTemplate(docxTemplateName, docx.DefaultTemplateFilesList, styledTemplate{base: docx.TemplateXMLFS})
	for _, source := range paragraphs {
		paragraph := document.AddParagraph()
		if source.Style != "" {
			paragraph.Style(source.Style)
		}
		paragraph.Justification(justification(source.Align))
		paragraph.Properties.Spacing = &docx.Spacing{Before: paragraphSpacingTwips}
		if source.Indent > 0 {
			paragraph.Properties.Ind = &docx.Ind{Left: source.Indent}
		}
		for _, sourceRun := range source.Runs {
			run := paragraph.AddText(sourceRun.Text)
			if sourceRun.Bold {
				run.Bold()
			}
			if sourceRun.Italic {
				run.Italic()
			}
			if sourceRun.Underline {
				run.Underline("single")
			}
			if sourceRun.Strike {
				run.Strike(true)
			}
			if sourceRun.Code {
				run.Shade("clear", "auto", "EEEEEE")
			}
			if sourceRun.Size > 0 {
				run.Size(strconv.Itoa(sourceRun.Size))
			}
			if sourceRun.Color != "" {
				run.Color(sourceRun.Color)
			}
		}
	}
	document.WithA4Page()

	var buffer bytes.Buffer
	if _, err := document.WriteTo(&buffer); err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return buffer.Bytes(), nil
}
