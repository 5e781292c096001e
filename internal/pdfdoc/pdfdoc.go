// Package pdfdoc inspects uploaded PDF documents and builds PDFs from images.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrPassword means the document is encrypted and the password is missing or wrong.
	ErrPassword = errors.New("invalid PDF password")
	ErrNoPages  = errors.New("PDF has no pages")
	// ErrNoImage means the page draws no embedded image that can be extracted.
	ErrNoImage  = errors.New("page has no extractable image")
)

var disableConfigDir sync.Once

// Info is what Inspect learns about a document.
type Info struct {
	Pages int
	Size  int64
}

func newConfiguration(password string) *model.Configuration {
	// Keep pdfcpu from creating its config directory under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}
	return conf
}

// Inspect opens the PDF at path, authenticating with password when the file
// is encrypted, and counts its pages.
func Inspect(path, password string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}

	info, err := InspectReader(f, password)
	if err != nil {
		return Info{}, err
	}
	info.Size = st.Size()
	return info, nil
}

// InspectReader is Inspect for an in-memory or already open document.
func InspectReader(rs io.ReadSeeker, password string) (Info, error) {
	pages, err := api.PageCount(rs, newConfiguration(password))
	if err != nil {
		if isPasswordError(err) {
			return Info{}, ErrPassword
		}
		return Info{}, fmt.Errorf("failed to read PDF: %w", err)
	}
	if pages == 0 {
		return Info{}, ErrNoPages
	}
	return Info{Pages: pages}, nil
}

// PageImage is an image embedded in a page, still in its encoded form.
type PageImage struct {
	Data     []byte
	FileType string // "jpg", "png", "tif", ...
	Width    int
	Height   int
}

// LargestImage returns the largest image drawn on page (1-based). Scanned
// documents carry the whole page as one such image. Thumbnails, masks and
// images above maxPixels are skipped before their streams are decoded.
func LargestImage(rs io.ReadSeeker, page int, password string, maxPixels int) (PageImage, error) {
	conf := newConfiguration(password)
	conf.Cmd = model.EXTRACTIMAGES

	ctx, _, _, _, err := api.ReadValidateAndOptimize(rs, conf, time.Now())
	if err != nil {
		if isPasswordError(err) {
			return PageImage{}, ErrPassword
		}
		return PageImage{}, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return PageImage{}, fmt.Errorf("failed to count pages: %w", err)
	}
	if page < 1 || page > ctx.PageCount {
		return PageImage{}, fmt.Errorf("%w: page %d of %d", ErrNoPages, page, ctx.PageCount)
	}

	stubs, err := pdfcpu.ExtractPageImages(ctx, page, true)
	if err != nil {
		return PageImage{}, fmt.Errorf("failed to list page images: %w", err)
	}

	masks := make(map[int]bool)
	objNrs := make([]int, 0, len(stubs))
	for objNr := range stubs {
		objNrs = append(objNrs, objNr)
		if obj := ctx.Optimize.ImageObjects[objNr]; obj != nil {
			if ref := obj.ImageDict.IndirectRefEntry("SMask"); ref != nil {
				masks[ref.ObjectNumber.Value()] = true
			}
		}
	}
	sort.Ints(objNrs)

	best, bestPixels := 0, int64(0)
	for _, objNr := range objNrs {
		st := stubs[objNr]
		if st.Thumb || st.IsImgMask || masks[objNr] {
			continue
		}
		px := int64(st.Width) * int64(st.Height)
		if px <= bestPixels || (maxPixels > 0 && px > int64(maxPixels)) {
			continue
		}
		best, bestPixels = objNr, px
	}
	if best == 0 {
		return PageImage{}, ErrNoImage
	}

	obj := ctx.Optimize.ImageObjects[best]
	img, err := pdfcpu.ExtractImage(ctx, obj.ImageDict, false, obj.ResourceNames[0], best, false)
	if err != nil {
		return PageImage{}, fmt.Errorf("failed to extract image %d: %w", best, err)
	}
	if img == nil {
		return PageImage{}, ErrNoImage
	}
	data, err := io.ReadAll(img)
	if err != nil {
		return PageImage{}, fmt.Errorf("failed to read image %d: %w", best, err)
	}
	return PageImage{
		Data:     data,
		FileType: img.FileType,
		Width:    stubs[best].Width,
		Height:   stubs[best].Height,
	}, nil
}

// FromImages writes a PDF with one page per image. Images must be JPEG, PNG
// or TIFF encoded.
func FromImages(w io.Writer, images ...[]byte) error {
	if len(images) == 0 {
		return errors.New("no images to import")
	}
	readers := make([]io.Reader, 0, len(images))
	for _, img := range images {
		readers = append(readers, bytes.NewReader(img))
	}
	if err := api.ImportImages(nil, w, readers, pdfcpu.DefaultImportConfig(), newConfiguration("")); err != nil {
		return fmt.Errorf("failed to build PDF: %w", err)
	}
	return nil
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "not authenticated")
}
