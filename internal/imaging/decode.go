package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"

	"collage/internal/services"
)

// DefaultMaxPixels is the decoded area allowed when no limit is configured.
const DefaultMaxPixels = 50_000_000

// Decoder reads PNG and JPEG inputs, rejecting images whose declared area
// exceeds MaxPixels before any pixel data is allocated.
type Decoder struct {
	MaxPixels int64
}

func (d Decoder) limit() int64 {
	if d.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return d.MaxPixels
}

// Decode reads a PNG or JPEG image. Any other format is a decode error.
func (d Decoder) Decode(r io.Reader) (image.Image, string, error) {
	var header bytes.Buffer
	cfg, format, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, "", services.Wrap(services.ErrDecode, "imaging", "decode", "unreadable image", err)
	}
	if format != "png" && format != "jpeg" {
		return nil, format, services.Wrap(services.ErrDecode, "imaging", "decode",
			fmt.Sprintf("unsupported format %q (expected png or jpeg)", format), nil)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, services.Wrap(services.ErrDecode, "imaging", "decode",
			fmt.Sprintf("non-positive dimensions %dx%d", cfg.Width, cfg.Height), nil)
	}
	if area := int64(cfg.Width) * int64(cfg.Height); area > d.limit() {
		return nil, format, services.Wrap(services.ErrDecode, "imaging", "decode",
			fmt.Sprintf("%dx%d image exceeds the %d pixel limit", cfg.Width, cfg.Height, d.limit()), nil)
	}

	img, _, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, format, services.Wrap(services.ErrDecode, "imaging", "decode", "unreadable image", err)
	}
	return img, format, nil
}

// DecodeBytes decodes an in-memory image buffer.
func (d Decoder) DecodeBytes(data []byte) (image.Image, error) {
	img, _, err := d.Decode(bytes.NewReader(data))
	return img, err
}

// DecodeFile decodes the image stored at path. Callers label errors with the
// path themselves, so it is not repeated here.
func (d Decoder) DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		return nil, services.Wrap(services.ErrDecode, "imaging", "open", "", err)
	}
	defer f.Close()
	img, _, err := d.Decode(f)
	return img, err
}

// Decode reads r with the default pixel limit.
func Decode(r io.Reader) (image.Image, string, error) {
	return Decoder{}.Decode(r)
}

// DecodeBytes decodes data with the default pixel limit.
func DecodeBytes(data []byte) (image.Image, error) {
	return Decoder{}.DecodeBytes(data)
}

// DecodeFile decodes the file at path with the default pixel limit.
func DecodeFile(path string) (image.Image, error) {
	return Decoder{}.DecodeFile(path)
}
