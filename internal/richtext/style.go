package richtext

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingNumberPattern  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z%]*)$`)
	leadingIntegerPattern = regexp.MustCompile(`^\s*(\d+)`)
	fontSizeClassPattern  = regexp.MustCompile(`text-(\d+)|font-size-(\d+)|fs-(\d+)`)
)

// ResolveFontSize returns the element font size in half-points, or zero when none is set.
// Inline font-size wins over data-font-size, which wins over size classes.
func ResolveFontSize(attrs Attributes) int {
	if size, ok := inlineFontSize(styleProperty(attrs.Style, "font-size")); ok {
		return size
	}
	if match := leadingIntegerPattern.FindStringSubmatch(attrs.DataFontSize); match != nil {
		if value, err := strconv.Atoi(match[1]); err == nil && value > 0 {
			return value * 2
		}
	}
	if match := fontSizeClassPattern.FindStringSubmatch(attrs.Class); match != nil {
		for _, group := range match[1:] {
			if group == "" {
				continue
			}
			if value, err := strconv.Atoi(group); err == nil && value > 0 {
				return value * 2
			}
		}
	}
	return 0
}

func inlineFontSize(value string) (int, bool) {
	match := leadingNumberPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(value)))
	if match == nil {
		return 0, false
	}
	number, err := strconv.ParseFloat(match[1], 64)
	if err != nil || number <= 0 {
		return 0, false
	}
	switch match[2] {
	case "pt", "":
		return int(math.Round(number * 2)), true
	case "px":
		return int(math.Round(number * 0.75 * 2)), true
	default:
		return 0, false
	}
}

// ResolveAlignment reads text-align from inline style, then text-center/right/justify classes.
func ResolveAlignment(attrs Attributes) Alignment {
	switch strings.ToLower(styleProperty(attrs.Style, "text-align")) {
	case "center":
		return AlignCenter
	case "right", "end":
		return AlignRight
	case "justify":
		return AlignJustify
	case "left", "start":
		return AlignLeft
	}
	for _, class := range strings.Fields(attrs.Class) {
		switch class {
		case "text-center":
			return AlignCenter
		case "text-right":
			return AlignRight
		case "text-justify":
			return AlignJustify
		}
	}
	return AlignLeft
}

func styleProperty(style, name string) string {
	for _, declaration := range strings.Split(style, ";") {
		property, value, found := strings.Cut(declaration, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(property), name) {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
		}
	}
	return ""
}
