package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/aatumaykin/ecardcut/internal/imaging"
	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/aatumaykin/ecardcut/internal/pdfdoc"
	"github.com/aatumaykin/ecardcut/internal/storage"
	"github.com/aatumaykin/ecardcut/internal/version"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	passportQuality = 95
	formatPDF       = "pdf"
)

var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/bmp", "image/tiff", "image/webp"}

// downloadDirs are searched in order by /download.
var downloadDirs = []string{constants.DirCropped, constants.DirConverted, constants.DirPassport}

var endpoints = []string{
	"GET  /health - Health check",
	"POST /upload - Upload a PDF e-card and crop its card (file, card_type, password)",
	"POST /crop - Crop a card from a page image (file, card_type)",
	"POST /convert-image - Convert an image (file, format, quality)",
	"POST /passport-photo - Build a 35x45mm passport photo (file)",
	"GET  /download/{name} - Download a generated file",
	"GET  /preview/{name} - Preview a cropped card",
	"POST /clear-files - Delete all stored files (admin token when set)",
	"GET  /admin/stats - Watched directory statistics",
	"POST /admin/sweep - Run a retention sweep (?force=true)",
	"GET  /metrics - Prometheus metrics",
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sweeper := envelope{
		"running":           s.sweeper.Running(),
		"retention_minutes": s.retentionMinutes(),
	}
	if res, at := s.sweeper.LastResult(); !at.IsZero() {
		sweeper["last_sweep"] = formatTime(at)
		sweeper["last_result"] = newSweepResult(res)
	}

	writeJSON(w, http.StatusOK, envelope{
		"status":     "healthy",
		"timestamp":  formatTime(s.now()),
		"version":    version.Version,
		"card_types": imaging.CardTypes(),
		"formats":    append(imaging.Formats(), formatPDF),
		"sweeper":    sweeper,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.parseUpload(w, r) {
		return
	}
	password := r.FormValue("password")
	cardType := formCardType(r)

	f, ok := s.saveUpload(w, r, ".pdf", []string{"application/pdf"}, constants.MsgPDFRequired)
	if !ok {
		return
	}

	info, err := s.inspectPDF(f, password)
	if err != nil {
		if rmErr := s.store.Remove(f.Dir, f.Name); rmErr != nil {
			s.logger.WarnCtx(r.Context(), "failed to remove rejected upload",
				logger.Field{Key: "name", Value: f.Name},
				logger.Field{Key: "error", Value: rmErr})
		}
		if errors.Is(err, pdfdoc.ErrPassword) {
			writeError(w, http.StatusBadRequest, constants.MsgInvalidPassword)
			return
		}
		s.logger.WarnCtx(r.Context(), "rejected unreadable PDF",
			logger.Field{Key: "request_id", Value: RequestID(r.Context())},
			logger.Field{Key: "error", Value: err})
		writeError(w, http.StatusBadRequest, constants.MsgInvalidPDF)
		return
	}

	resp := envelope{
		"success":  true,
		"message":  fmt.Sprintf(constants.MsgUploadReady, info.Pages, s.retentionMinutes()),
		"file_id":  f.ID,
		"filename": f.Name,
		"pages":    info.Pages,
		"size":     f.Size,
		"cropped":  false,
	}
	if card, ok := s.cropPDFCard(r, f, password, cardType); ok {
		maps.Copy(resp, card)
		resp["message"] = fmt.Sprintf(constants.MsgCardCropped, cardLabel(cardType), s.retentionMinutes())
		resp["cropped"] = true
	}

	s.logger.InfoCtx(r.Context(), "pdf uploaded",
		logger.Field{Key: "file_id", Value: f.ID},
		logger.Field{Key: "pages", Value: info.Pages},
		logger.Field{Key: "size", Value: f.Size},
		logger.Field{Key: "cropped", Value: resp["cropped"]})

	writeJSON(w, http.StatusOK, resp)
}

// cropPDFCard cuts the card out of the image a scanned PDF draws on its first
// page and stores it in the cropped directory. It reports false when the page
// has no usable image; the upload itself is still valid then.
func (s *Server) cropPDFCard(r *http.Request, f storage.File, password, cardType string) (envelope, bool) {
	h, err := s.store.Open(f.Dir, f.Name)
	if err != nil {
		s.logger.WarnCtx(r.Context(), "failed to reopen PDF upload",
			logger.Field{Key: "name", Value: f.Name},
			logger.Field{Key: "error", Value: err})
		return nil, false
	}
	defer h.Close()

	page, err := pdfdoc.LargestImage(h, 1, password, s.cfg.MaxImagePixels)
	if err != nil {
		s.logger.DebugCtx(r.Context(), "no page image to crop",
			logger.Field{Key: "file_id", Value: f.ID},
			logger.Field{Key: "error", Value: err})
		return nil, false
	}
	img, _, err := imaging.DecodeLimit(bytes.NewReader(page.Data), s.cfg.MaxImagePixels)
	if err != nil {
		s.logger.DebugCtx(r.Context(), "page image cannot be decoded",
			logger.Field{Key: "file_id", Value: f.ID},
			logger.Field{Key: "file_type", Value: page.FileType},
			logger.Field{Key: "error", Value: err})
		return nil, false
	}

	card, err := imaging.CropCard(img, cardType)
	if err != nil {
		return nil, false
	}
	data, out, err := imaging.Convert(card, imaging.Target{Format: "png"})
	if err != nil {
		s.logger.ErrorCtx(r.Context(), "failed to encode cropped card", err)
		return nil, false
	}
	saved, err := s.store.WriteFile(r.Context(), constants.DirCropped, f.ID+"_cropped"+out.Ext, data)
	if err != nil {
		s.logger.ErrorCtx(r.Context(), "failed to store cropped card", err)
		return nil, false
	}

	b := card.Bounds()
	return envelope{
		"card_type":        cardType,
		"cropped_filename": saved.Name,
		"download_url":     "/download/" + saved.Name,
		"preview_url":      "/preview/" + saved.Name,
		"width":            b.Dx(),
		"height":           b.Dy(),
	}, true
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	if !s.parseUpload(w, r) {
		return
	}
	cardType := formCardType(r)

	f, ok := s.saveUpload(w, r, "", imageTypes, constants.MsgImageRequired)
	if !ok {
		return
	}
	img, ok := s.decodeUpload(w, r, f)
	if !ok {
		return
	}

	card, err := imaging.CropCard(img, cardType)
	if err != nil {
		writeError(w, http.StatusBadRequest, constants.MsgImageRequired)
		return
	}
	data, out, err := imaging.Convert(card, imaging.Target{Format: "png"})
	if err != nil {
		s.internalError(w, r, "failed to encode cropped card", err)
		return
	}
	saved, err := s.store.WriteFile(r.Context(), constants.DirCropped, f.ID+"_cropped"+out.Ext, data)
	if err != nil {
		s.internalError(w, r, "failed to store cropped card", err)
		return
	}

	b := card.Bounds()
	writeJSON(w, http.StatusOK, envelope{
		"success":      true,
		"message":      fmt.Sprintf(constants.MsgCardCropped, cardLabel(cardType), s.retentionMinutes()),
		"file_id":      f.ID,
		"card_type":    cardType,
		"filename":     saved.Name,
		"download_url": "/download/" + saved.Name,
		"preview_url":  "/preview/" + saved.Name,
		"width":        b.Dx(),
		"height":       b.Dy(),
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if !s.parseUpload(w, r) {
		return
	}

	format := imaging.NormalizeFormat(r.FormValue("format"))
	if format == "" {
		format = "jpeg"
	}
	if format != formatPDF && !slices.Contains(imaging.Formats(), format) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %s (supported: %s, %s)",
			constants.MsgUnsupportedFormat, format, strings.Join(imaging.Formats(), ", "), formatPDF))
		return
	}
	quality := imaging.DefaultQuality
	if q := strings.TrimSpace(r.FormValue("quality")); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, constants.MsgInvalidQuality)
			return
		}
		quality = n
	}

	f, ok := s.saveUpload(w, r, "", imageTypes, constants.MsgImageRequired)
	if !ok {
		return
	}
	img, ok := s.decodeUpload(w, r, f)
	if !ok {
		return
	}

	data, out, err := convert(img, format, quality)
	if err != nil {
		s.internalError(w, r, "image conversion failed", err)
		return
	}
	saved, err := s.store.WriteFile(r.Context(), constants.DirConverted, f.ID+out.Ext, data)
	if err != nil {
		s.internalError(w, r, "failed to store converted image", err)
		return
	}
	// The original is no longer needed once the converted copy exists.
	if err := s.store.Remove(f.Dir, f.Name); err != nil {
		s.logger.WarnCtx(r.Context(), "failed to remove converted upload",
			logger.Field{Key: "name", Value: f.Name},
			logger.Field{Key: "error", Value: err})
	}

	s.logger.InfoCtx(r.Context(), "image converted",
		logger.Field{Key: "file_id", Value: f.ID},
		logger.Field{Key: "format", Value: out.Format},
		logger.Field{Key: "size", Value: len(data)})

	attachment(w, storage.SanitizeName(storage.ReplaceExt(f.OriginalName, out.Ext)))
	w.Header().Set("Content-Type", out.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-File-Name", saved.Name)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePassport(w http.ResponseWriter, r *http.Request) {
	if !s.parseUpload(w, r) {
		return
	}
	f, ok := s.saveUpload(w, r, "", imageTypes, constants.MsgImageRequired)
	if !ok {
		return
	}
	img, ok := s.decodeUpload(w, r, f)
	if !ok {
		return
	}

	photo, err := imaging.PassportPhoto(img, imaging.DefaultPassport)
	if err != nil {
		writeError(w, http.StatusBadRequest, constants.MsgImageRequired)
		return
	}
	data, out, err := imaging.Convert(photo, imaging.Target{Format: "jpeg", Quality: passportQuality})
	if err != nil {
		s.internalError(w, r, "failed to encode passport photo", err)
		return
	}
	saved, err := s.store.WriteFile(r.Context(), constants.DirPassport, f.ID+"_passport"+out.Ext, data)
	if err != nil {
		s.internalError(w, r, "failed to store passport photo", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		"success":      true,
		"message":      fmt.Sprintf(constants.MsgPassportReady, s.retentionMinutes()),
		"file_id":      f.ID,
		"filename":     saved.Name,
		"download_url": "/download/" + saved.Name,
		"width":        imaging.DefaultPassport.WidthPx,
		"height":       imaging.DefaultPassport.HeightPx,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h, err := s.store.Find(name, downloadDirs...)
	if err != nil {
		s.openError(w, r, err, constants.MsgFileNotFound)
		return
	}
	defer h.Close()

	attachment(w, name)
	http.ServeContent(w, r, name, h.Info.ModTime(), h)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h, err := s.store.Open(constants.DirCropped, name)
	if err != nil {
		s.openError(w, r, err, constants.MsgPreviewNotFound)
		return
	}
	defer h.Close()

	http.ServeContent(w, r, name, h.Info.ModTime(), h)
}

func (s *Server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	res := s.sweeper.ForceSweep(r.Context())
	if res.Errors > 0 {
		writeJSON(w, http.StatusOK, envelope{
			"success": false,
			"error":   fmt.Sprintf(constants.MsgFilesNotCleared, res.Errors),
			"result":  newSweepResult(res),
		})
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": constants.MsgFilesCleared,
		"result":  newSweepResult(res),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{
		"success":             false,
		"error":               constants.MsgEndpointNotFound,
		"available_endpoints": endpoints,
	})
}

// parseUpload bounds the request body and parses the multipart form.
// On failure it has already written the response.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.store.MaxBytes()+formOverhead)
	if err := r.ParseMultipartForm(s.store.MaxBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, constants.MsgFileTooLarge)
			return false
		}
		writeError(w, http.StatusBadRequest, constants.MsgNoFileSelected)
		return false
	}
	return true
}

// saveUpload stores the "file" form field in the uploads directory.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, ext string, accept []string, wrongType string) (storage.File, bool) {
	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		if file != nil {
			file.Close()
		}
		writeError(w, http.StatusBadRequest, constants.MsgNoFileSelected)
		return storage.File{}, false
	}
	defer file.Close()

	f, err := s.store.Save(r.Context(), constants.DirUploads, header.Filename, file, ext, accept...)
	switch {
	case err == nil:
		return f, true
	case errors.Is(err, storage.ErrEmpty):
		writeError(w, http.StatusBadRequest, constants.MsgNoFileSelected)
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, constants.MsgFileTooLarge)
	case errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, wrongType)
	default:
		s.internalError(w, r, "failed to store upload", err)
	}
	return storage.File{}, false
}

func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request, f storage.File) (image.Image, bool) {
	h, err := s.store.Open(f.Dir, f.Name)
	if err != nil {
		s.internalError(w, r, "failed to open upload", err)
		return nil, false
	}
	defer h.Close()

	img, _, err := imaging.DecodeLimit(h, s.cfg.MaxImagePixels)
	switch {
	case err == nil:
		return img, true
	case errors.Is(err, imaging.ErrImageTooLarge):
		s.logger.WarnCtx(r.Context(), "rejected oversized image",
			logger.Field{Key: "name", Value: f.Name},
			logger.Field{Key: "error", Value: err})
		writeError(w, http.StatusRequestEntityTooLarge, constants.MsgImageTooLarge)
	default:
		writeError(w, http.StatusBadRequest, constants.MsgImageRequired)
	}
	return nil, false
}

func (s *Server) inspectPDF(f storage.File, password string) (pdfdoc.Info, error) {
	h, err := s.store.Open(f.Dir, f.Name)
	if err != nil {
		return pdfdoc.Info{}, err
	}
	defer h.Close()
	return pdfdoc.InspectReader(h, password)
}

func (s *Server) openError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.internalError(w, r, "failed to open stored file", err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.ErrorCtx(r.Context(), msg, err,
		logger.Field{Key: "request_id", Value: RequestID(r.Context())},
		logger.Field{Key: "path", Value: r.URL.Path})
	writeError(w, http.StatusInternalServerError, constants.MsgInternalError)
}

// convert encodes img as format. PDF output wraps a JPEG page.
func convert(img image.Image, format string, quality int) ([]byte, imaging.Output, error) {
	if format != formatPDF {
		return imaging.Convert(img, imaging.Target{Format: format, Quality: quality})
	}

	page, _, err := imaging.Convert(img, imaging.Target{Format: "jpeg", Quality: quality})
	if err != nil {
		return nil, imaging.Output{}, err
	}
	var buf bytes.Buffer
	if err := pdfdoc.FromImages(&buf, page); err != nil {
		return nil, imaging.Output{}, err
	}
	return buf.Bytes(), imaging.Output{Format: formatPDF, MIME: "application/pdf", Ext: ".pdf"}, nil
}

func formCardType(r *http.Request) string {
	cardType := strings.ToLower(strings.TrimSpace(r.FormValue("card_type")))
	if cardType == "" {
		return imaging.DefaultCardType
	}
	return cardType
}

// cardLabel is the human name of a card type, "Jan Aadhaar" for "jan-aadhaar".
func cardLabel(cardType string) string {
	if !imaging.KnownCardType(cardType) {
		return "Document"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(cardType, "-", " "))
}
