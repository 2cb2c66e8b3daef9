package imaging

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"collage/internal/services"
)

// Normalize resizes every image so its axis dimension equals the smallest one
// in the set, preserving aspect ratio. Images already at the common size are
// returned unchanged, so normalizing twice is a no-op.
func Normalize(images []image.Image, axis Axis) ([]image.Image, error) {
	if len(images) == 0 {
		return nil, nil
	}
	common := CommonDimension(images, axis)
	if common <= 0 {
		return nil, services.Wrap(services.ErrDecode, "imaging", "normalize",
			fmt.Sprintf("common %s must be positive, got %d", axis, common), nil)
	}

	out := make([]image.Image, len(images))
	for i, img := range images {
		size := img.Bounds().Size()
		along, cross := split(size, axis)
		if along <= 0 {
			return nil, services.Wrap(services.ErrDecode, "imaging", "normalize",
				fmt.Sprintf("image %d has non-positive %s %d", i, axis, along), nil)
		}
		if along == common {
			out[i] = img
			continue
		}
		scaledCross := int(math.Round(float64(cross) * float64(common) / float64(along)))
		if scaledCross < 1 {
			scaledCross = 1
		}
		out[i] = resize(img, join(common, scaledCross, axis))
	}
	return out, nil
}

// CommonDimension is the minimum axis dimension across images.
func CommonDimension(images []image.Image, axis Axis) int {
	common := 0
	for i, img := range images {
		along, _ := split(img.Bounds().Size(), axis)
		if i == 0 || along < common {
			common = along
		}
	}
	return common
}

func resize(src image.Image, size image.Point) *image.NRGBA {
	dst := image.NewNRGBA(image.Rectangle{Max: size})
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// split returns (axis dimension, cross dimension).
func split(size image.Point, axis Axis) (int, int) {
	if axis == AxisWidth {
		return size.X, size.Y
	}
	return size.Y, size.X
}

func join(along, cross int, axis Axis) image.Point {
	if axis == AxisWidth {
		return image.Pt(along, cross)
	}
	return image.Pt(cross, along)
}
