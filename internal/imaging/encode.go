package imaging

import (
	"image"
	"image/png"
	"io"

	"collage/internal/services"
)

// Extension is the file extension of the output format.
const Extension = "png"

// EncodePNG writes img as a lossless RGBA PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(w, img); err != nil {
		return services.Wrap(services.ErrRender, "imaging", "encode png", "", err)
	}
	return nil
}
