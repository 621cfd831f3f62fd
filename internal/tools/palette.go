package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"agentforge/chat-api/internal/domain/tool"
)

const (
	defaultPaletteSize = 5
	maxPaletteSize     = 12
)

// PaletteArgs are the arguments of generate_color_palette.
type PaletteArgs struct {
	BaseColor string `json:"baseColor,omitempty" jsonschema:"description=Hex color to build around such as #3366ff"`
	Count     int    `json:"count,omitempty" jsonschema:"minimum=2,maximum=12" validate:"omitempty,min=2,max=12"`
	Scheme    string `json:"scheme" jsonschema:"enum=analogous,enum=complementary,enum=triadic,enum=monochromatic,enum=random"`
}

// PaletteResult is returned to the model.
type PaletteResult struct {
	BaseColor string   `json:"baseColor"`
	Scheme    string   `json:"scheme"`
	Colors    []string `json:"colors"`
}

// ColorPalette builds harmonious color palettes.
type ColorPalette struct{}

// Definition implements tool.Tool.
func (ColorPalette) Definition() tool.Definition {
	return tool.Definition{
		Name:        "generate_color_palette",
		Description: "Generate a harmonious color palette as a list of hex colors.",
		Parameters:  tool.SchemaFor(PaletteArgs{}),
	}
}

// Execute implements tool.Tool.
func (ColorPalette) Execute(_ context.Context, _ tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[PaletteArgs](raw)
	if err != nil {
		return nil, err
	}
	return BuildPalette(args)
}

// BuildPalette derives the palette from the base color and scheme.
func BuildPalette(args PaletteArgs) (PaletteResult, error) {
	count := args.Count
	if count == 0 {
		count = defaultPaletteSize
	}
	if count < 2 || count > maxPaletteSize {
		return PaletteResult{}, fmt.Errorf("count must be between 2 and %d", maxPaletteSize)
	}
	scheme := strings.ToLower(strings.TrimSpace(args.Scheme))
	if scheme == "" {
		scheme = "analogous"
	}

	var base colorful.Color
	if hex := strings.TrimSpace(args.BaseColor); hex != "" {
		if !strings.HasPrefix(hex, "#") {
			hex = "#" + hex
		}
		c, err := colorful.Hex(hex)
		if err != nil {
			return PaletteResult{}, fmt.Errorf("invalid base color %q", args.BaseColor)
		}
		base = c
	} else {
		base = colorful.HappyColor()
	}

	h, s, l := base.Hsl()
	colors := make([]colorful.Color, count)
	switch scheme {
	case "analogous":
		for i := range colors {
			colors[i] = colorful.Hsl(wrapHue(h+float64(i-(count-1)/2)*30), s, l)
		}
	case "complementary":
		for i := range colors {
			hue := h
			if i%2 == 1 {
				hue = h + 180
			}
			colors[i] = colorful.Hsl(wrapHue(hue), s, spread(l, i/2, (count+1)/2))
		}
	case "triadic":
		for i := range colors {
			colors[i] = colorful.Hsl(wrapHue(h+float64(i%3)*120), s, spread(l, i/3, (count+2)/3))
		}
	case "monochromatic":
		for i := range colors {
			colors[i] = colorful.Hsl(h, s, 0.2+0.65*float64(i)/float64(count-1))
		}
	case "random":
		rest, err := colorful.HappyPalette(count - 1)
		if err != nil {
			return PaletteResult{}, fmt.Errorf("generate palette: %w", err)
		}
		colors[0] = base
		copy(colors[1:], rest)
	default:
		return PaletteResult{}, fmt.Errorf("unsupported scheme %q", args.Scheme)
	}

	out := PaletteResult{BaseColor: base.Clamped().Hex(), Scheme: scheme, Colors: make([]string, count)}
	for i, c := range colors {
		out.Colors[i] = c.Clamped().Hex()
	}
	return out, nil
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// spread varies lightness around l for the step-th color of n.
func spread(l float64, step, n int) float64 {
	if n <= 1 {
		return l
	}
	offset := (float64(step)/float64(n-1) - 0.5) * 0.3
	return math.Min(0.9, math.Max(0.1, l+offset))
}
