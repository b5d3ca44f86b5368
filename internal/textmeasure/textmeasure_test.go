package textmeasure

import (
	"testing"

	"github.com/go-text/typesetting/font"
)

func TestParseCSSFont(t *testing.T) {
	tests := []struct {
		input  string
		style  font.Style
		weight font.Weight
		size   float64
		family string // first family
	}{
		{
			input:  "13px sans-serif",
			style:  font.StyleNormal,
			weight: font.WeightNormal,
			size:   13,
			family: "sans-serif",
		},
		{
			input:  "bold 14px Helvetica",
			style:  font.StyleNormal,
			weight: font.WeightBold,
			size:   14,
			family: "Helvetica",
		},
		{
			input:  "italic bold 14px Helvetica, Arial, sans-serif",
			style:  font.StyleItalic,
			weight: font.WeightBold,
			size:   14,
			family: "Helvetica",
		},
		{
			input:  "italic 700 12px 'Times New Roman'",
			style:  font.StyleItalic,
			weight: font.Weight(700),
			size:   12,
			family: "Times New Roman",
		},
		{
			input:  "16px monospace",
			style:  font.StyleNormal,
			weight: font.WeightNormal,
			size:   16,
			family: "monospace",
		},
		{
			// Widget framework default when no font is specified.
			input:  "",
			style:  font.StyleNormal,
			weight: font.WeightNormal,
			size:   13,
			family: "sans-serif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseCSSFont(tt.input)
			if got.Style != tt.style {
				t.Errorf("style: got %v, want %v", got.Style, tt.style)
			}
			if got.Weight != tt.weight {
				t.Errorf("weight: got %v, want %v", got.Weight, tt.weight)
			}
			if got.Size != tt.size {
				t.Errorf("size: got %v, want %v", got.Size, tt.size)
			}
			if len(got.Family) == 0 || got.Family[0] != tt.family {
				t.Errorf("family: got %v, want %v", got.Family, tt.family)
			}
		})
	}
}

func TestMeasureText(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Basic sanity checks.
	w := m.MeasureText("Slider:", "13px sans-serif")
	if w <= 0 {
		t.Errorf("expected positive width, got %v", w)
	}

	// Longer text should be wider.
	w2 := m.MeasureText("A much longer widget description", "13px sans-serif")
	if w2 <= w {
		t.Errorf("longer text should be wider: %v <= %v", w2, w)
	}

	// Larger font should be wider.
	w3 := m.MeasureText("Slider:", "24px sans-serif")
	if w3 <= w {
		t.Errorf("larger font should be wider: %v <= %v", w3, w)
	}

	// Empty text should be zero.
	w4 := m.MeasureText("", "13px sans-serif")
	if w4 != 0 {
		t.Errorf("empty text should be 0, got %v", w4)
	}
}
