package richtext

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxNestingDepth = 256

var (
	// ErrParseFailure indicates that editor markup could not be turned into a node tree.
	ErrParseFailure = errors.New("richtext: parse failure")

	skippedAtoms = map[atom.Atom]bool{
		atom.Script:   true,
		atom.Style:    true,
		atom.Template: true,
		atom.Noscript: true,
		atom.Head:     true,
		atom.Input:    true,
	}
)

// Parse reads an editor markup fragment into a node tree rooted at a KindDocument node.
func Parse(markup string) (*Node, error) {
	if !utf8.ValidString(markup) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrParseFailure)
	}
	if strings.ContainsRune(markup, 0) {
		return nil, fmt.Errorf("%w: nul byte in markup", ErrParseFailure)
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	sourceNodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	root := &Node{Kind: KindDocument}
	for _, sourceNode := range sourceNodes {
		converted, err := convertNode(sourceNode, 1)
		if err != nil {
			return nil, err
		}
		if converted != nil {
			root.Children = append(root.Children, converted)
		}
	}
	return root, nil
}

func convertNode(source *html.Node, depth int) (*Node, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("%w: nesting exceeds %d levels", ErrParseFailure, maxNestingDepth)
	}

	switch source.Type {
	case html.TextNode:
		return &Node{Kind: KindText, Text: source.Data}, nil
	case html.ElementNode:
	default:
		return nil, nil
	}
	if skippedAtoms[source.DataAtom] {
		return nil, nil
	}

	attrs := readAttributes(source)
	node := &Node{
		Kind:     kindForAtom(source.DataAtom),
		Tag:      strings.ToLower(source.Data),
		Align:    ResolveAlignment(attrs),
		FontSize: ResolveFontSize(attrs),
	}
	switch node.Kind {
	case KindHeading:
		node.Level = headingLevel(source.DataAtom)
	case KindBulletList, KindOrderedList:
		node.ListStyle = resolveListStyle(node.Kind, attrs)
	case KindListItem:
		node.Checked = strings.EqualFold(attrs.DataChecked, "true")
	}

	for child := source.FirstChild; child != nil; child = child.NextSibling {
		converted, err := convertNode(child, depth+1)
		if err != nil {
			return nil, err
		}
		if converted != nil {
			node.Children = append(node.Children, converted)
		}
	}
	return node, nil
}

func kindForAtom(tag atom.Atom) Kind {
	switch tag {
	case atom.P:
		return KindParagraph
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return KindHeading
	case atom.Strong, atom.B:
		return KindBold
	case atom.Em, atom.I:
		return KindItalic
	case atom.U:
		return KindUnderline
	case atom.S, atom.Strike, atom.Del:
		return KindStrike
	case atom.Code:
		return KindCode
	case atom.Pre:
		return KindPreformatted
	case atom.Br:
		return KindLineBreak
	case atom.Ul:
		return KindBulletList
	case atom.Ol:
		return KindOrderedList
	case atom.Li:
		return KindListItem
	case atom.Div:
		return KindDivision
	default:
		return KindGeneric
	}
}

func headingLevel(tag atom.Atom) int {
	switch tag {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	default:
		return 6
	}
}

func resolveListStyle(kind Kind, attrs Attributes) ListStyle {
	styleType := strings.ToLower(styleProperty(attrs.Style, "list-style-type"))
	if kind == KindOrderedList {
		if styleType == "lower-alpha" || styleType == "lower-latin" || attrs.Type == "a" {
			return ListStyleLowerAlpha
		}
		return ListStyleDecimal
	}
	if strings.EqualFold(attrs.DataType, "taskList") {
		return ListStyleTask
	}
	if styleType == "square" {
		return ListStyleSquare
	}
	return ListStyleDisc
}

// Attributes holds the element attributes that influence rendering.
type Attributes struct {
	Style        string
	Class        string
	Type         string
	DataFontSize string
	DataType     string
	DataChecked  string
}

func readAttributes(source *html.Node) Attributes {
	var attrs Attributes
	for _, attr := range source.Attr {
		switch strings.ToLower(attr.Key) {
		case "style":
			attrs.Style = attr.Val
		case "class":
			attrs.Class = attr.Val
		case "type":
			attrs.Type = attr.Val
		case "data-font-size":
			attrs.DataFontSize = attr.Val
		case "data-type":
			attrs.DataType = attr.Val
		case "data-checked":
			attrs.DataChecked = attr.Val
		}
	}
	return attrs
}
