package imaging

import (
	"image"
	"sort"
)

// cardLayout places a card on a rendered page. Left, Top and Width are
// fractions of the page size; the card height is Width / Ratio.
type cardLayout struct {
	Left, Top, Width, Ratio float64
}

// Hand-tuned for the official e-card PDFs rendered at 300 DPI.
var cardLayouts = map[string]cardLayout{
	"aadhaar":       {Left: 0.06, Top: 0.72, Width: 0.88, Ratio: 2.9},
	"jan-aadhaar":   {Left: 0.04, Top: 0.54, Width: 0.92, Ratio: 3.35},
	"pan":           {Left: 0.05, Top: 0.72, Width: 0.90, Ratio: 2.59},
	"voter":         {Left: 0.05, Top: 0.11, Width: 0.92, Ratio: 3.48},
	"ayushman":      {Left: 0.04, Top: 0.22, Width: 0.84, Ratio: 2.55},
	"ayushman-card": {Left: 0.12, Top: 0.31, Width: 0.77, Ratio: 4.08},
}

var defaultLayout = cardLayout{Left: 0.10, Top: 0.20, Width: 0.80, Ratio: 1.62}

// DefaultCardType is used when a request names no card type.
const DefaultCardType = "aadhaar"

// CardTypes returns the card types with a dedicated layout.
func CardTypes() []string {
	types := make([]string, 0, len(cardLayouts))
	for t := range cardLayouts {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// KnownCardType reports whether cardType has a dedicated layout. Unknown
// types fall back to a generic layout.
func KnownCardType(cardType string) bool {
	_, ok := cardLayouts[cardType]
	return ok
}

// CardRegion returns the card rectangle on a w x h page, clamped to the page.
func CardRegion(cardType string, w, h int) image.Rectangle {
	l, ok := cardLayouts[cardType]
	if !ok {
		l = defaultLayout
	}

	left := max(0, int(float64(w)*l.Left))
	top := max(0, int(float64(h)*l.Top))
	width := int(float64(w) * l.Width)
	height := int(float64(width) / l.Ratio)

	width = min(width, w-left)
	height = min(height, h-top)
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return image.Rect(left, top, left+width, top+height)
}

// CropCard cuts the card region out of a rendered page.
func CropCard(page image.Image, cardType string) (image.Image, error) {
	b := page.Bounds()
	r := CardRegion(cardType, b.Dx(), b.Dy())
	if r.Empty() {
		return nil, ErrEmptyImage
	}
	return copyRect(page, r.Add(b.Min)), nil
}
