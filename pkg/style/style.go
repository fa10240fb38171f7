// Package style holds the explicit color configuration handed to the
// renderers. Nothing in here is global: callers resolve a Palette once
// and pass it in.
package style

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Theme names a built-in palette
type Theme int

const (
	ThemeDark Theme = iota
	ThemeLight
	ThemeNord
	ThemeClassic
)

// ThemeNames maps theme enum to display name
var ThemeNames = map[Theme]string{
	ThemeDark:    "Dark",
	ThemeLight:   "Light",
	ThemeNord:    "Nord",
	ThemeClassic: "Classic",
}

// String returns the display name
func (t Theme) String() string {
	if name, ok := ThemeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Theme(%d)", int(t))
}

// ParseTheme looks a theme up by display name, case-insensitively
func ParseTheme(name string) (Theme, error) {
	for t, n := range ThemeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return ThemeDark, fmt.Errorf("unknown theme %q", name)
}

// Palette is the set of colors a renderer draws with
type Palette struct {
	Extrusion  color.NRGBA
	Travel     color.NRGBA
	Support    color.NRGBA
	Background color.NRGBA
	Highlight  color.NRGBA
	Excluded   color.NRGBA
}

var palettes = map[Theme]Palette{
	ThemeDark: {
		Extrusion:  color.NRGBA{R: 66, G: 165, B: 245, A: 255},  // info blue
		Travel:     color.NRGBA{R: 150, G: 150, B: 150, A: 255}, // secondary text grey
		Support:    color.NRGBA{R: 255, G: 167, B: 38, A: 255},  // warning orange
		Background: color.NRGBA{R: 30, G: 30, B: 30, A: 255},
		Highlight:  color.NRGBA{R: 255, G: 235, B: 59, A: 255},
		Excluded:   color.NRGBA{R: 229, G: 57, B: 53, A: 255},
	},
	ThemeLight: {
		Extrusion:  color.NRGBA{R: 25, G: 118, B: 210, A: 255},
		Travel:     color.NRGBA{R: 117, G: 117, B: 117, A: 255},
		Support:    color.NRGBA{R: 239, G: 108, B: 0, A: 255},
		Background: color.NRGBA{R: 245, G: 245, B: 245, A: 255},
		Highlight:  color.NRGBA{R: 251, G: 192, B: 45, A: 255},
		Excluded:   color.NRGBA{R: 198, G: 40, B: 40, A: 255},
	},
	ThemeNord: {
		Extrusion:  color.NRGBA{R: 136, G: 192, B: 208, A: 255}, // Nord8
		Travel:     color.NRGBA{R: 76, G: 86, B: 106, A: 255},   // Nord3
		Support:    color.NRGBA{R: 208, G: 135, B: 112, A: 255}, // Nord12
		Background: color.NRGBA{R: 46, G: 52, B: 64, A: 255},    // Nord0
		Highlight:  color.NRGBA{R: 235, G: 203, B: 139, A: 255}, // Nord13
		Excluded:   color.NRGBA{R: 191, G: 97, B: 106, A: 255},  // Nord11
	},
	ThemeClassic: {
		Extrusion:  color.NRGBA{R: 200, G: 52, B: 52, A: 255},
		Travel:     color.NRGBA{R: 175, G: 175, B: 175, A: 255},
		Support:    color.NRGBA{R: 227, G: 183, B: 46, A: 255},
		Background: color.NRGBA{R: 0, G: 16, B: 35, A: 255},
		Highlight:  color.NRGBA{R: 242, G: 237, B: 161, A: 255},
		Excluded:   color.NRGBA{R: 88, G: 93, B: 132, A: 255},
	},
}

// PaletteFor returns the palette of a theme, the dark palette for unknown
// values
func PaletteFor(t Theme) Palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[ThemeDark]
}

// DefaultPalette returns the dark palette
func DefaultPalette() Palette {
	return PaletteFor(ThemeDark)
}

// Scale multiplies the RGB channels by f, keeping alpha
func Scale(c color.NRGBA, f float64) color.NRGBA {
	ch := func(v uint8) uint8 {
		return uint8(math.Max(0, math.Min(255, float64(v)*f)))
	}
	return color.NRGBA{R: ch(c.R), G: ch(c.G), B: ch(c.B), A: c.A}
}

// ParseHex parses "#RGB", "#RRGGBB" or "#RRGGBBAA"; the '#' is optional
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	alpha := uint8(255)
	if len(s) == 8 {
		a, err := strconv.ParseUint(s[6:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
		alpha = uint8(a)
		s = s[:6]
	}
	if len(s) != 3 && len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	c, err := colorful.Hex("#" + s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// Hex formats c as "#RRGGBB"
func Hex(c color.NRGBA) string {
	return strings.ToUpper(toColorful(c).Hex())
}

// FromHSV converts hue (degrees), saturation and value (0..1) to a color
func FromHSV(h, s, v float64) color.NRGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	r, g, b := colorful.Hsv(h, s, v).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// toColorful drops alpha; colorful.MakeColor would reject transparent input
func toColorful(c color.NRGBA) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}
