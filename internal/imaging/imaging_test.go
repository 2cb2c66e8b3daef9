package imaging_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"collage/internal/imaging"
	"collage/internal/services"
	"collage/internal/testsupport"
)

var (
	white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	red   = color.NRGBA{R: 0xff, A: 0xff}
	blue  = color.NRGBA{B: 0xff, A: 0xff}
)

func solid(w, h int, c color.Color) image.Image {
	return testsupport.SolidImage(w, h, c)
}

func TestHorizontalScenario(t *testing.T) {
	images := []image.Image{solid(400, 300, red), solid(600, 300, blue)}

	normalized, err := imaging.Normalize(images, imaging.Horizontal.NormalizeAxis())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i, img := range normalized {
		if img.Bounds().Dy() != 300 {
			t.Fatalf("image %d height %d, want 300", i, img.Bounds().Dy())
		}
	}

	out, canvas := imaging.Compose(normalized, imaging.Horizontal, 10, white)
	if canvas.Width != 1030 || canvas.Height != 320 {
		t.Fatalf("canvas = %dx%d, want 1030x320", canvas.Width, canvas.Height)
	}
	if out.Bounds().Dx() != 1030 || out.Bounds().Dy() != 320 {
		t.Fatalf("rendered bounds %v", out.Bounds())
	}
	want := []imaging.Placement{
		{Index: 0, X: 10, Y: 10, Width: 400, Height: 300},
		{Index: 1, X: 420, Y: 10, Width: 600, Height: 300},
	}
	for i, p := range canvas.Placements {
		if p != want[i] {
			t.Fatalf("placement %d = %+v, want %+v", i, p, want[i])
		}
	}

	checks := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, white},
		{5, 160, white},
		{10, 10, red},
		{409, 309, red},
		{415, 100, white},
		{420, 10, blue},
		{1019, 309, blue},
		{1025, 160, white},
		{500, 315, white},
	}
	for _, c := range checks {
		if got := out.NRGBAAt(c.x, c.y); got != c.want {
			t.Fatalf("pixel (%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestVerticalSingleImageZeroBorder(t *testing.T) {
	src := solid(400, 300, red)
	normalized, err := imaging.Normalize([]image.Image{src}, imaging.Vertical.NormalizeAxis())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if normalized[0] != src {
		t.Fatal("expected single image to be returned untouched")
	}

	out, canvas := imaging.Compose(normalized, imaging.Vertical, 0, white)
	if canvas.Width != 400 || canvas.Height != 300 {
		t.Fatalf("canvas = %dx%d, want 400x300", canvas.Width, canvas.Height)
	}
	if p := canvas.Placements[0]; p.X != 0 || p.Y != 0 {
		t.Fatalf("expected placement at origin, got %+v", p)
	}
	if got := out.NRGBAAt(0, 0); got != red {
		t.Fatalf("origin pixel = %v, want red", got)
	}
}

func TestVerticalPlacementAccumulates(t *testing.T) {
	sizes := []image.Point{{X: 200, Y: 100}, {X: 200, Y: 50}, {X: 200, Y: 25}}
	canvas := imaging.Plan(sizes, imaging.Vertical, 4)
	if canvas.Width != 208 || canvas.Height != 100+50+25+4*4 {
		t.Fatalf("canvas = %dx%d", canvas.Width, canvas.Height)
	}
	wantY := []int{4, 108, 162}
	for i, p := range canvas.Placements {
		if p.X != 4 || p.Y != wantY[i] {
			t.Fatalf("placement %d = %+v, want x=4 y=%d", i, p, wantY[i])
		}
	}
}

func TestPlanPrimaryAndCrossAxisSizes(t *testing.T) {
	cases := []struct {
		name   string
		sizes  []image.Point
		layout imaging.Layout
		border int
	}{
		{"row of three", []image.Point{{X: 10, Y: 7}, {X: 3, Y: 7}, {X: 21, Y: 7}}, imaging.Horizontal, 2},
		{"column of two", []image.Point{{X: 9, Y: 4}, {X: 9, Y: 11}}, imaging.Vertical, 5},
		{"no border", []image.Point{{X: 1, Y: 1}, {X: 1, Y: 1}}, imaging.Horizontal, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			canvas := imaging.Plan(tc.sizes, tc.layout, tc.border)
			n := len(tc.sizes)
			sum := 0
			for _, s := range tc.sizes {
				if tc.layout == imaging.Horizontal {
					sum += s.X
				} else {
					sum += s.Y
				}
			}
			primary, cross := canvas.Width, canvas.Height
			common := tc.sizes[0].Y
			if tc.layout == imaging.Vertical {
				primary, cross = canvas.Height, canvas.Width
				common = tc.sizes[0].X
			}
			if primary != sum+tc.border*(n+1) {
				t.Fatalf("primary = %d, want %d", primary, sum+tc.border*(n+1))
			}
			if cross != common+2*tc.border {
				t.Fatalf("cross = %d, want %d", cross, common+2*tc.border)
			}
		})
	}
}

func TestPlanClampsToOnePixel(t *testing.T) {
	canvas := imaging.Plan([]image.Point{{}, {}}, imaging.Horizontal, 0)
	if canvas.Width != 1 || canvas.Height != 1 {
		t.Fatalf("canvas = %dx%d, want 1x1", canvas.Width, canvas.Height)
	}
	canvas = imaging.Plan(nil, imaging.Vertical, 0)
	if canvas.Width != 1 || canvas.Height != 1 {
		t.Fatalf("empty canvas = %dx%d, want 1x1", canvas.Width, canvas.Height)
	}
}

func TestNormalizeUsesMinimumAndIsIdempotent(t *testing.T) {
	images := []image.Image{solid(400, 300, red), solid(200, 150, blue), solid(90, 600, red)}

	normalized, err := imaging.Normalize(images, imaging.AxisHeight)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if got := imaging.CommonDimension(images, imaging.AxisHeight); got != 150 {
		t.Fatalf("common = %d, want 150", got)
	}
	wantWidths := []int{200, 200, 23}
	for i, img := range normalized {
		if img.Bounds().Dy() != 150 || img.Bounds().Dx() != wantWidths[i] {
			t.Fatalf("image %d = %v, want %dx150", i, img.Bounds().Size(), wantWidths[i])
		}
	}
	if normalized[1] != images[1] {
		t.Fatal("expected image already at the common height to be reused")
	}

	again, err := imaging.Normalize(normalized, imaging.AxisHeight)
	if err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}
	for i := range again {
		if again[i].Bounds().Size() != normalized[i].Bounds().Size() {
			t.Fatalf("image %d changed size on re-normalize: %v -> %v", i, normalized[i].Bounds().Size(), again[i].Bounds().Size())
		}
	}
}

func TestNormalizeByWidth(t *testing.T) {
	normalized, err := imaging.Normalize([]image.Image{solid(300, 100, red), solid(150, 150, blue)}, imaging.AxisWidth)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if s := normalized[0].Bounds().Size(); s.X != 150 || s.Y != 50 {
		t.Fatalf("unexpected size %v", s)
	}
}

func TestNormalizeRejectsZeroCommonDimension(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 10, 0))
	_, err := imaging.Normalize([]image.Image{solid(4, 4, red), empty}, imaging.AxisHeight)
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDecodeFormats(t *testing.T) {
	dir := t.TempDir()
	pngPath := testsupport.WritePNG(t, dir+"/a.png", 7, 5, red)
	jpgPath := testsupport.WriteJPEG(t, dir+"/b.jpg", 8, 6, blue)

	img, err := imaging.DecodeFile(pngPath)
	if err != nil || img.Bounds().Size() != image.Pt(7, 5) {
		t.Fatalf("decode png: %v %v", img, err)
	}
	img, err = imaging.DecodeFile(jpgPath)
	if err != nil || img.Bounds().Size() != image.Pt(8, 6) {
		t.Fatalf("decode jpeg: %v %v", img, err)
	}

	if _, err := imaging.DecodeBytes([]byte("not an image")); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := imaging.DecodeFile(dir + "/missing.png"); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error for missing file, got %v", err)
	}
}

func TestDecoderRejectsOversizedImagesBeforeDecoding(t *testing.T) {
	data := testsupport.PNGBytes(t, 10, 10, red)

	_, err := imaging.Decoder{MaxPixels: 99}.DecodeBytes(data)
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if !strings.Contains(err.Error(), "10x10") {
		t.Fatalf("expected dimensions in message, got %q", err)
	}

	img, err := imaging.Decoder{MaxPixels: 100}.DecodeBytes(data)
	if err != nil || img.Bounds().Size() != image.Pt(10, 10) {
		t.Fatalf("image at the limit should decode: %v %v", img, err)
	}
}

func TestDecodeFileOmitsPathFromMessage(t *testing.T) {
	missing := t.TempDir() + "/missing.png"
	_, err := imaging.DecodeFile(missing)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), missing) {
		t.Fatalf("path should be left to the caller, got %q", err)
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	out, _ := imaging.Compose([]image.Image{solid(3, 2, red)}, imaging.Horizontal, 1, blue)
	var buf bytes.Buffer
	if err := imaging.EncodePNG(&buf, out); err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	if decoded.Bounds().Size() != image.Pt(5, 4) {
		t.Fatalf("unexpected decoded size %v", decoded.Bounds().Size())
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"#ffffff":     white,
		"#FFF":        white,
		"white":       white,
		"#ff000080":   {R: 0xff, A: 0x80},
		"#f008":       {R: 0xff, A: 0x88},
		"transparent": {},
	}
	for input, want := range cases {
		got, err := imaging.ParseColor(input)
		if err != nil {
			t.Fatalf("ParseColor(%q) error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseColor(%q) = %v, want %v", input, got, want)
		}
	}
	for _, bad := range []string{"", "ffffff", "#12345", "#gggggg", "chartreuse"} {
		if _, err := imaging.ParseColor(bad); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ParseColor(%q) expected validation error, got %v", bad, err)
		}
	}
	if imaging.FormatColor(white) != "#ffffff" || imaging.FormatColor(color.NRGBA{R: 1, A: 2}) != "#01000002" {
		t.Fatal("unexpected FormatColor output")
	}
}
