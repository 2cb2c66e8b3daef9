package imaging

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"collage/internal/services"
)

var namedColors = map[string]color.NRGBA{
	"white":       {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	"black":       {A: 0xff},
	"transparent": {},
}

// ParseColor accepts #rgb, #rgba, #rrggbb, #rrggbbaa, or a small set of names.
// Missing alpha means opaque.
func ParseColor(value string) (color.NRGBA, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if named, ok := namedColors[trimmed]; ok {
		return named, nil
	}
	hex, ok := strings.CutPrefix(trimmed, "#")
	if !ok {
		return color.NRGBA{}, invalidColor(value)
	}
	if len(hex) == 3 || len(hex) == 4 {
		var expanded strings.Builder
		for _, r := range hex {
			expanded.WriteRune(r)
			expanded.WriteRune(r)
		}
		hex = expanded.String()
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, invalidColor(value)
	}
	raw, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, invalidColor(value)
	}
	return color.NRGBA{R: uint8(raw >> 24), G: uint8(raw >> 16), B: uint8(raw >> 8), A: uint8(raw)}, nil
}

// FormatColor renders c as #rrggbb, or #rrggbbaa when not opaque.
func FormatColor(c color.NRGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func invalidColor(value string) error {
	return services.Wrap(services.ErrValidation, "imaging", "parse color",
		fmt.Sprintf("invalid color %q", value), nil)
}
