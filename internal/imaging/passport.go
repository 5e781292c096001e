package imaging

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// PassportSpec is the output size of a passport photo in pixels.
type PassportSpec struct {
	WidthPx  int
	HeightPx int
}

// DefaultPassport is 35x45 mm at 300 DPI.
var DefaultPassport = PassportSpec{WidthPx: 413, HeightPx: 531}

// PassportPhoto center-crops img to the aspect ratio of spec and scales it
// to exactly spec's size.
func PassportPhoto(img image.Image, spec PassportSpec) (image.Image, error) {
	if spec.WidthPx <= 0 || spec.HeightPx <= 0 {
		spec = DefaultPassport
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}

	crop := centerCrop(b, spec.WidthPx, spec.HeightPx)
	dst := image.NewRGBA(image.Rect(0, 0, spec.WidthPx, spec.HeightPx))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, xdraw.Src, nil)
	return dst, nil
}

// centerCrop returns the largest rectangle centred in b with aspect w:h.
func centerCrop(b image.Rectangle, w, h int) image.Rectangle {
	bw, bh := b.Dx(), b.Dy()
	cw, ch := bw, bw*h/w
	if ch > bh {
		ch = bh
		cw = bh * w / h
	}
	cw, ch = max(cw, 1), max(ch, 1)
	x := b.Min.X + (bw-cw)/2
	y := b.Min.Y + (bh-ch)/2
	return image.Rect(x, y, x+cw, y+ch)
}
