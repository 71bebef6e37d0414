package richtext

import "strings"

// Kind enumerates the variants of a parsed editor document node.
type Kind int

const (
	// KindDocument is the root of a parsed fragment.
	KindDocument Kind = iota
	// KindText carries literal text.
	KindText
	// KindParagraph is a p element.
	KindParagraph
	// KindHeading is an h1..h6 element; Level holds the depth.
	KindHeading
	// KindBold is a strong or b run.
	KindBold
	// KindItalic is an em or i run.
	KindItalic
	// KindUnderline is a u run.
	KindUnderline
	// KindStrike is an s, strike or del run.
	KindStrike
	// KindCode is an inline code run.
	KindCode
	// KindPreformatted is a pre block.
	KindPreformatted
	// KindLineBreak is a br element.
	KindLineBreak
	// KindBulletList is an unordered list.
	KindBulletList
	// KindOrderedList is an ordered list.
	KindOrderedList
	// KindListItem is an li element.
	KindListItem
	// KindDivision is a div block container.
	KindDivision
	// KindGeneric covers span and every other element; it is unwrapped by renderers.
	KindGeneric
)

// Alignment is a paragraph alignment resolved from inline style or class hints.
type Alignment string

const (
	AlignLeft    Alignment = "left"
	AlignCenter  Alignment = "center"
	AlignRight   Alignment = "right"
	AlignJustify Alignment = "justify"
)

// ListStyle distinguishes list variants that share a list kind.
type ListStyle string

const (
	ListStyleDisc       ListStyle = "disc"
	ListStyleSquare     ListStyle = "square"
	ListStyleTask       ListStyle = "task"
	ListStyleDecimal    ListStyle = "decimal"
	ListStyleLowerAlpha ListStyle = "lower-alpha"
)

// Node is one element or text leaf of a parsed editor document.
type Node struct {
	Kind  Kind
	Tag   string
	Text  string
	Level int
	Align Alignment
	// FontSize is expressed in half-points; zero means the source did not set one.
	FontSize  int
	ListStyle ListStyle
	Checked   bool
	Children  []*Node
}

// IsBlock reports whether the node starts its own block in document flow.
func (n *Node) IsBlock() bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindParagraph, KindHeading, KindPreformatted, KindBulletList, KindOrderedList, KindListItem, KindDivision:
		return true
	case KindGeneric:
		return blockTags[n.Tag]
	default:
		return false
	}
}

// IsList reports whether the node is a bullet or ordered list.
func (n *Node) IsList() bool {
	return n != nil && (n.Kind == KindBulletList || n.Kind == KindOrderedList)
}

// TextContent concatenates every descendant text leaf, with line breaks as newlines.
func (n *Node) TextContent() string {
	var builder strings.Builder
	n.appendText(&builder)
	return builder.String()
}

func (n *Node) appendText(builder *strings.Builder) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KindText:
		builder.WriteString(n.Text)
		return
	case KindLineBreak:
		builder.WriteByte('\n')
		return
	}
	for _, child := range n.Children {
		child.appendText(builder)
	}
}

// IsBlank reports whether the node carries no visible text.
func (n *Node) IsBlank() bool {
	return strings.TrimSpace(n.TextContent()) == ""
}

var blockTags = map[string]bool{
	"address":    true,
	"article":    true,
	"aside":      true,
	"blockquote": true,
	"figure":     true,
	"footer":     true,
	"header":     true,
	"hr":         true,
	"main":       true,
	"nav":        true,
	"section":    true,
	"table":      true,
	"tbody":      true,
	"thead":      true,
	"tr":         true,
}
