package textmeasure

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-text/typesetting/font"
)

// CSSFont represents a parsed CSS font shorthand string.
type CSSFont struct {
	Style  font.Style
	Weight font.Weight
	Size   float64 // in pixels
	Family []string
}

// cssFontRe matches CSS font shorthand: [style] [weight] size[px|em] family[, family...]
var cssFontRe = regexp.MustCompile(
	`(?i)` +
		`(?:(italic|oblique)\s+)?` + // optional style
		`(?:(bold|bolder|lighter|[1-9]00)\s+)?` + // optional weight
		`([\d.]+)(?:px|pt|em)?\s+` + // size (required)
		`(.+)`, // family (required)
)

// ParseCSSFont parses a CSS font shorthand string like
// "italic bold 13px Helvetica, Arial, sans-serif". Missing or malformed
// parts fall back to the widget default of 13px sans-serif.
func ParseCSSFont(s string) CSSFont {
	result := CSSFont{
		Style:  font.StyleNormal,
		Weight: font.WeightNormal,
		Size:   13, // widget framework default
		Family: []string{"sans-serif"},
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return result
	}

	matches := cssFontRe.FindStringSubmatch(s)
	if matches == nil {
		return result
	}

	if matches[1] != "" {
		switch strings.ToLower(matches[1]) {
		case "italic", "oblique":
			result.Style = font.StyleItalic
		}
	}

	if matches[2] != "" {
		result.Weight = parseWeight(matches[2])
	}

	if size, err := strconv.ParseFloat(matches[3], 64); err == nil && size > 0 {
		result.Size = size
	}

	if matches[4] != "" {
		result.Family = parseFamilies(matches[4])
	}

	return result
}

func parseWeight(s string) font.Weight {
	switch strings.ToLower(s) {
	case "bold", "bolder":
		return font.WeightBold
	case "lighter":
		return font.WeightLight
	default:
		if w, err := strconv.Atoi(s); err == nil {
			return font.Weight(w)
		}
		return font.WeightNormal
	}
}

func parseFamilies(s string) []string {
	parts := strings.Split(s, ",")
	families := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		// Remove surrounding quotes.
		p = strings.Trim(p, `"'`)
		p = strings.TrimSpace(p)
		if p != "" {
			families = append(families, p)
		}
	}
	if len(families) == 0 {
		return []string{"sans-serif"}
	}
	return families
}
