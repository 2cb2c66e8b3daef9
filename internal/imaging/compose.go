package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Placement positions one input on the canvas.
type Placement struct {
	Index  int
	X, Y   int
	Width  int
	Height int
}

// Canvas is the computed output geometry.
type Canvas struct {
	Width      int
	Height     int
	Background color.NRGBA
	Placements []Placement
}

// Plan computes canvas size and placements for images of the given sizes.
// Sizes are expected to share the cross dimension already. Width and height
// are clamped to at least 1.
func Plan(sizes []image.Point, layout Layout, border int) Canvas {
	axis := layout.NormalizeAxis()
	common := 0
	for i, size := range sizes {
		along, _ := split(size, axis)
		if i == 0 || along < common {
			common = along
		}
	}

	placements := make([]Placement, 0, len(sizes))
	offset := border
	total := border
	for i, size := range sizes {
		p := Placement{Index: i, Width: size.X, Height: size.Y}
		if layout == Vertical {
			p.X, p.Y = border, offset
			offset += size.Y + border
			total += size.Y + border
		} else {
			p.X, p.Y = offset, border
			offset += size.X + border
			total += size.X + border
		}
		placements = append(placements, p)
	}

	canvas := Canvas{Placements: placements}
	if layout == Vertical {
		canvas.Width, canvas.Height = common+2*border, total
	} else {
		canvas.Width, canvas.Height = total, common+2*border
	}
	canvas.Width = max(1, canvas.Width)
	canvas.Height = max(1, canvas.Height)
	return canvas
}

// Compose renders images onto a canvas filled with background, in input order.
func Compose(images []image.Image, layout Layout, border int, background color.NRGBA) (*image.NRGBA, Canvas) {
	sizes := make([]image.Point, len(images))
	for i, img := range images {
		sizes[i] = img.Bounds().Size()
	}
	canvas := Plan(sizes, layout, border)
	canvas.Background = background

	dst := image.NewNRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	for _, p := range canvas.Placements {
		src := images[p.Index]
		rect := image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height)
		draw.Draw(dst, rect, src, src.Bounds().Min, draw.Over)
	}
	return dst, canvas
}
