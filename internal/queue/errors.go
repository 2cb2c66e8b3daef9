package queue

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ErrLeaseLost is returned when a worker reports on a job it no longer holds:
// the job was reclaimed, removed, or already reached a terminal state.
var ErrLeaseLost = errors.New("job lease lost")

// ErrJobActive is returned when an operator action targets a job a worker holds.
var ErrJobActive = errors.New("job is active")

// EncodeColor renders c as #rrggbbaa, the storage form shared by all backends.
func EncodeColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// DecodeColor parses the #rrggbbaa storage form.
func DecodeColor(value string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("decode color %q: expected #rrggbbaa", value)
	}
	raw, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("decode color %q: %w", value, err)
	}
	return color.NRGBA{
		R: uint8(raw >> 24),
		G: uint8(raw >> 16),
		B: uint8(raw >> 8),
		A: uint8(raw),
	}, nil
}
