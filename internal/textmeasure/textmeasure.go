// Package textmeasure provides text width measurement using
// go-text/typesetting. Widget layout in a DOM-less runtime has no canvas to
// ask for text metrics, so the runtime bridges measureText calls here:
// CSS font shorthand strings (e.g. "bold 13px Helvetica") are parsed and
// HarfBuzz-based shaping produces the width.
package textmeasure

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/fontscan"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"

	"github.com/nbembed/nbembed/internal/textmeasure/fonts/dejavu"
)

// MeasurerOption configures a Measurer.
type MeasurerOption func(*measurerConfig)

type measurerConfig struct {
	systemFonts bool
	fonts       []customFont
}

type customFont struct {
	family string
	data   []byte
}

// WithSystemFonts enables scanning of system-installed fonts.
func WithSystemFonts() MeasurerOption {
	return func(c *measurerConfig) {
		c.systemFonts = true
	}
}

// WithFont registers a custom TTF font with the given family name.
// Fonts added later take priority over earlier ones.
func WithFont(family string, ttf []byte) MeasurerOption {
	return func(c *measurerConfig) {
		c.fonts = append(c.fonts, customFont{family: family, data: ttf})
	}
}

// Measurer computes text widths using HarfBuzz shaping.
type Measurer struct {
	mu      sync.Mutex
	fontMap *fontscan.FontMap
	shaper  shaping.HarfbuzzShaper
}

// New creates a Measurer with embedded DejaVu fonts for reproducible text
// metrics across all platforms.
func New(opts ...MeasurerOption) (*Measurer, error) {
	var cfg measurerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	fm := fontscan.NewFontMap(nil)

	// Register embedded DejaVu fonts first (always-present fallback).
	dejavuFonts := []struct {
		data   []byte
		id     string
		family string
	}{
		{dejavu.SansRegular, "dejavu-sans", "DejaVu Sans"},
		{dejavu.SansBold, "dejavu-sans-bold", "DejaVu Sans"},
		{dejavu.SansOblique, "dejavu-sans-oblique", "DejaVu Sans"},
		{dejavu.SansBoldOblique, "dejavu-sans-boldoblique", "DejaVu Sans"},
		{dejavu.MonoRegular, "dejavu-mono", "DejaVu Sans Mono"},
		{dejavu.MonoBold, "dejavu-mono-bold", "DejaVu Sans Mono"},
		{dejavu.MonoOblique, "dejavu-mono-oblique", "DejaVu Sans Mono"},
		{dejavu.MonoBoldOblique, "dejavu-mono-boldoblique", "DejaVu Sans Mono"},
	}

	for _, f := range dejavuFonts {
		if err := fm.AddFont(bytes.NewReader(f.data), f.id, f.family); err != nil {
			return nil, fmt.Errorf("textmeasure: loading %s: %w", f.id, err)
		}
	}

	if cfg.systemFonts {
		if err := fm.UseSystemFonts(""); err != nil {
			return nil, fmt.Errorf("textmeasure: scanning system fonts: %w", err)
		}
	}

	// Register custom fonts (added last = highest priority among user fonts).
	for i, f := range cfg.fonts {
		id := fmt.Sprintf("custom-%d-%s", i, f.family)
		if err := fm.AddFont(bytes.NewReader(f.data), id, f.family); err != nil {
			return nil, fmt.Errorf("textmeasure: loading custom font %q: %w", f.family, err)
		}
	}

	return &Measurer{fontMap: fm}, nil
}

// MeasureText returns the width in pixels of the given text rendered with
// the specified CSS font string.
func (m *Measurer) MeasureText(text, cssFont string) float64 {
	parsed := ParseCSSFont(cssFont)
	if len(text) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	families := make([]string, 0, len(parsed.Family)+2)
	families = append(families, parsed.Family...)
	// Always add DejaVu Sans as fallback.
	families = append(families, "DejaVu Sans", fontscan.SansSerif)

	m.fontMap.SetQuery(fontscan.Query{
		Families: families,
		Aspect: font.Aspect{
			Style:  parsed.Style,
			Weight: parsed.Weight,
		},
	})
	m.fontMap.SetScript(language.Latin)

	runes := []rune(text)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Size:      fixed.Int26_6(parsed.Size * 64),
		Script:    language.Latin,
		Language:  language.NewLanguage("en"),
	}

	// Split by font face for proper fallback handling.
	splits := shaping.SplitByFace(input, m.fontMap)

	var totalAdvance fixed.Int26_6
	for _, split := range splits {
		out := m.shaper.Shape(split)
		totalAdvance += out.Advance
	}

	return float64(totalAdvance) / 64.0
}
