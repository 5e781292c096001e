// Package imaging decodes uploaded images, converts them between formats and
// cuts identity-card regions and passport photos out of them.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultQuality = 80
	MinQuality     = 10
	MaxQuality     = 100

	// DefaultMaxPixels bounds the raster Decode is willing to allocate.
	DefaultMaxPixels = 40_000_000
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyImage        = errors.New("image has no pixels")
	ErrImageTooLarge     = errors.New("image dimensions exceed the pixel limit")
)

// Target selects the output of Convert. Quality applies to JPEG only and is
// clamped to [MinQuality, MaxQuality]; zero means DefaultQuality.
type Target struct {
	Format  string
	Quality int
}

// Output describes encoded image data.
type Output struct {
	Format string
	MIME   string
	Ext    string // with leading dot
}

var outputs = map[string]Output{
	"jpeg": {Format: "jpeg", MIME: "image/jpeg", Ext: ".jpg"},
	"png":  {Format: "png", MIME: "image/png", Ext: ".png"},
	"gif":  {Format: "gif", MIME: "image/gif", Ext: ".gif"},
	"bmp":  {Format: "bmp", MIME: "image/bmp", Ext: ".bmp"},
	"tiff": {Format: "tiff", MIME: "image/tiff", Ext: ".tiff"},
}

// NormalizeFormat maps user-facing names ("JPG", "tif") onto encoder names.
func NormalizeFormat(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "jpg", "jpeg":
		return "jpeg"
	case "tif", "tiff":
		return "tiff"
	default:
		return f
	}
}

// Formats lists the formats Convert can encode.
func Formats() []string {
	return []string{"jpeg", "png", "gif", "bmp", "tiff"}
}

// Decode reads an image in any registered format (png, jpeg, gif, bmp, tiff, webp)
// with the DefaultMaxPixels limit.
func Decode(r io.Reader) (image.Image, string, error) {
	return DecodeLimit(r, DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel limit; maxPixels <= 0 means
// DefaultMaxPixels. The header is checked before any pixel data is decoded,
// so an oversized image fails with ErrImageTooLarge without allocating its raster.
func DecodeLimit(r io.Reader, maxPixels int) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, "", fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", ErrEmptyImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}
	return img, format, nil
}

// Convert encodes img in the target format.
func Convert(img image.Image, t Target) ([]byte, Output, error) {
	out, ok := outputs[NormalizeFormat(t.Format)]
	if !ok {
		return nil, Output{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, t.Format)
	}

	var buf bytes.Buffer
	var err error
	switch out.Format {
	case "jpeg":
		err = jpeg.Encode(&buf, Flatten(img, color.White), &jpeg.Options{Quality: clampQuality(t.Quality)})
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	if err != nil {
		return nil, Output{}, fmt.Errorf("failed to encode %s: %w", out.Format, err)
	}
	return buf.Bytes(), out, nil
}

// Flatten composites img over a solid background, dropping transparency.
func Flatten(img image.Image, bg color.Color) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func clampQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < MinQuality:
		return MinQuality
	case q > MaxQuality:
		return MaxQuality
	default:
		return q
	}
}

// copyRect copies r of img into a new RGBA image whose bounds start at 0,0.
func copyRect(img image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
