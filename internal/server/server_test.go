package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/aatumaykin/ecardcut/internal/imaging"
	"github.com/aatumaykin/ecardcut/internal/metrics"
	"github.com/aatumaykin/ecardcut/internal/pdfdoc"
	"github.com/aatumaykin/ecardcut/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "admin-token-0123456789"

type testEnv struct {
	srv     *Server
	store   *storage.Store
	sweeper *cleanup.Sweeper
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	leases := cleanup.NewLeases()
	store, err := storage.New(t.TempDir(), constants.DefaultDirectories(), leases, storage.WithMaxBytes(1<<20))
	require.NoError(t, err)

	sw, err := cleanup.New(cleanup.Config{Dirs: store.WatchedDirs(), Retention: 5 * time.Minute},
		cleanup.WithLeases(leases))
	require.NoError(t, err)

	srv, err := New(cfg, store, sw, opts...)
	require.NoError(t, err)
	return &testEnv{srv: srv, store: store, sweeper: sw}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) dirFiles(t *testing.T, dir string) []string {
	t.Helper()
	p, err := e.store.DirPath(dir)
	require.NoError(t, err)
	entries, err := os.ReadDir(p)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func uploadRequest(t *testing.T, path string, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// hugeHeaderPNG is a 1x1 PNG whose IHDR claims w x h pixels.
func hugeHeaderPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	b := pngBytes(t, 1, 1)
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, err := New(Config{}, nil, env.sweeper)
	assert.Error(t, err)

	_, err = New(Config{}, env.store, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, Config{}, WithClock(func() time.Time { return fixed }))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2026-03-01T12:00:00Z", body["timestamp"])

	sweeper := body["sweeper"].(map[string]any)
	assert.Equal(t, false, sweeper["running"])
	assert.Equal(t, float64(5), sweeper["retention_minutes"])
	assert.NotContains(t, sweeper, "last_sweep")

	env.sweeper.RunSweep(context.Background())
	body = decodeBody(t, env.do(httptest.NewRequest(http.MethodGet, "/health", nil)))
	assert.Contains(t, body["sweeper"].(map[string]any), "last_result")
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, constants.MsgEndpointNotFound, body["error"])
	assert.NotEmpty(t, body["available_endpoints"])
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = env.do(req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCrop_PreviewAndDownload(t *testing.T) {
	env := newTestEnv(t, Config{})

	req := uploadRequest(t, "/crop", map[string]string{"card_type": "jan-aadhaar"}, "page.png", pngBytes(t, 400, 600))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "jan-aadhaar", body["card_type"])
	assert.Contains(t, body["message"], "Jan Aadhaar card cropped successfully")
	assert.Contains(t, body["message"], "5 minutes")

	name := body["filename"].(string)
	assert.True(t, strings.HasSuffix(name, "_cropped.png"))
	assert.Equal(t, []string{name}, env.dirFiles(t, constants.DirCropped))
	assert.Len(t, env.dirFiles(t, constants.DirUploads), 1)

	preview := env.do(httptest.NewRequest(http.MethodGet, "/preview/"+name, nil))
	require.Equal(t, http.StatusOK, preview.Code)
	assert.Equal(t, "image/png", preview.Header().Get("Content-Type"))
	cfg, err := png.DecodeConfig(preview.Body)
	require.NoError(t, err)
	assert.Equal(t, int(body["width"].(float64)), cfg.Width)

	download := env.do(httptest.NewRequest(http.MethodGet, "/download/"+name, nil))
	require.Equal(t, http.StatusOK, download.Code)
	assert.Contains(t, download.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, download.Header().Get("Content-Disposition"), name)
}

func TestCrop_UnknownCardTypeUsesGenericLayout(t *testing.T) {
	env := newTestEnv(t, Config{})

	req := uploadRequest(t, "/crop", map[string]string{"card_type": "library-card"}, "page.png", pngBytes(t, 200, 300))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody(t, rec)["message"], "Document card cropped")
}

func TestCrop_Rejects(t *testing.T) {
	env := newTestEnv(t, Config{})

	tests := []struct {
		name   string
		req    *http.Request
		status int
		msg    string
	}{
		{
			name:   "no file",
			req:    uploadRequest(t, "/crop", map[string]string{"card_type": "pan"}, "", nil),
			status: http.StatusBadRequest,
			msg:    constants.MsgNoFileSelected,
		},
		{
			name:   "empty file",
			req:    uploadRequest(t, "/crop", nil, "page.png", nil),
			status: http.StatusBadRequest,
			msg:    constants.MsgNoFileSelected,
		},
		{
			name:   "not an image",
			req:    uploadRequest(t, "/crop", nil, "notes.txt", []byte("just some text")),
			status: http.StatusUnsupportedMediaType,
			msg:    constants.MsgImageRequired,
		},
		{
			name:   "not multipart",
			req:    httptest.NewRequest(http.MethodPost, "/crop", strings.NewReader("x")),
			status: http.StatusBadRequest,
			msg:    constants.MsgNoFileSelected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.req)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestConvert_ToJPEG(t *testing.T) {
	env := newTestEnv(t, Config{})

	req := uploadRequest(t, "/convert-image", map[string]string{"format": "JPG", "quality": "5"}, "my photo.png", pngBytes(t, 64, 48))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=my_photo.jpg`)

	img, err := jpeg.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	stored := rec.Header().Get("X-File-Name")
	assert.Equal(t, []string{stored}, env.dirFiles(t, constants.DirConverted))
	assert.Empty(t, env.dirFiles(t, constants.DirUploads), "original upload is removed after conversion")

	download := env.do(httptest.NewRequest(http.MethodGet, "/download/"+stored, nil))
	assert.Equal(t, http.StatusOK, download.Code)
}

func TestConvert_ToPDF(t *testing.T) {
	env := newTestEnv(t, Config{})

	req := uploadRequest(t, "/convert-image", map[string]string{"format": "pdf"}, "scan.png", pngBytes(t, 50, 70))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	info, err := pdfdoc.InspectReader(bytes.NewReader(rec.Body.Bytes()), "")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
}

func TestConvert_Rejects(t *testing.T) {
	env := newTestEnv(t, Config{})
	img := pngBytes(t, 10, 10)

	rec := env.do(uploadRequest(t, "/convert-image", map[string]string{"format": "webp"}, "a.png", img))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], constants.MsgUnsupportedFormat)

	rec = env.do(uploadRequest(t, "/convert-image", map[string]string{"quality": "high"}, "a.png", img))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, constants.MsgInvalidQuality, decodeBody(t, rec)["error"])

	assert.Empty(t, env.dirFiles(t, constants.DirUploads), "rejected requests store nothing")
}

func TestPassportPhoto(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(uploadRequest(t, "/passport-photo", nil, "me.png", pngBytes(t, 300, 300)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	name := decodeBody(t, rec)["filename"].(string)
	assert.Equal(t, []string{name}, env.dirFiles(t, constants.DirPassport))

	download := env.do(httptest.NewRequest(http.MethodGet, "/download/"+name, nil))
	require.Equal(t, http.StatusOK, download.Code)
	cfg, err := jpeg.DecodeConfig(download.Body)
	require.NoError(t, err)
	assert.Equal(t, 413, cfg.Width)
	assert.Equal(t, 531, cfg.Height)
}

func TestUploadPDF(t *testing.T) {
	env := newTestEnv(t, Config{})

	var doc bytes.Buffer
	require.NoError(t, pdfdoc.FromImages(&doc, pngBytes(t, 200, 300), pngBytes(t, 20, 20)))

	rec := env.do(uploadRequest(t, "/upload", map[string]string{"card_type": "pan"}, "pan.pdf", doc.Bytes()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	id := body["file_id"].(string)
	assert.Equal(t, float64(2), body["pages"])
	assert.Equal(t, id+".pdf", body["filename"])
	assert.Equal(t, []string{id + ".pdf"}, env.dirFiles(t, constants.DirUploads))

	assert.Equal(t, true, body["cropped"])
	assert.Equal(t, "pan", body["card_type"])
	assert.Contains(t, body["message"], "Pan card cropped successfully")
	assert.Equal(t, id+"_cropped.png", body["cropped_filename"])
	assert.Equal(t, []string{id + "_cropped.png"}, env.dirFiles(t, constants.DirCropped))

	want := imaging.CardRegion("pan", 200, 300)
	assert.Equal(t, float64(want.Dx()), body["width"])
	assert.Equal(t, float64(want.Dy()), body["height"])

	preview := env.do(httptest.NewRequest(http.MethodGet, body["preview_url"].(string), nil))
	require.Equal(t, http.StatusOK, preview.Code)
	cfg, err := png.DecodeConfig(preview.Body)
	require.NoError(t, err)
	assert.Equal(t, want.Dx(), cfg.Width)
	assert.Equal(t, want.Dy(), cfg.Height)
}

func TestUploadPDF_DefaultsToAadhaar(t *testing.T) {
	env := newTestEnv(t, Config{})

	var doc bytes.Buffer
	require.NoError(t, pdfdoc.FromImages(&doc, pngBytes(t, 200, 300)))

	rec := env.do(uploadRequest(t, "/upload", nil, "card.pdf", doc.Bytes()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, imaging.DefaultCardType, body["card_type"])
	assert.Equal(t, float64(imaging.CardRegion(imaging.DefaultCardType, 200, 300).Dx()), body["width"])
}

func TestUploadPDF_WithoutUsablePageImage(t *testing.T) {
	// The only page image is over the pixel limit, so nothing is cropped.
	env := newTestEnv(t, Config{MaxImagePixels: 100})

	var doc bytes.Buffer
	require.NoError(t, pdfdoc.FromImages(&doc, pngBytes(t, 200, 300)))

	rec := env.do(uploadRequest(t, "/upload", map[string]string{"card_type": "pan"}, "scan.pdf", doc.Bytes()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["cropped"])
	assert.Equal(t, float64(1), body["pages"])
	assert.Contains(t, body["message"], "PDF uploaded (1 page(s))")
	assert.NotContains(t, body, "cropped_filename")
	assert.Empty(t, env.dirFiles(t, constants.DirCropped))
	assert.Len(t, env.dirFiles(t, constants.DirUploads), 1)
}

func TestImageEndpoints_RejectOversizedDimensions(t *testing.T) {
	env := newTestEnv(t, Config{})
	bomb := hugeHeaderPNG(t, 20000, 20000)
	require.Less(t, len(bomb), 100)

	for _, path := range []string{"/crop", "/convert-image", "/passport-photo"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(uploadRequest(t, path, nil, "page.png", bomb))
			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, constants.MsgImageTooLarge, body["error"])
		})
	}
	assert.Empty(t, env.dirFiles(t, constants.DirCropped))
	assert.Empty(t, env.dirFiles(t, constants.DirConverted))
	assert.Empty(t, env.dirFiles(t, constants.DirPassport))
}

func TestImageEndpoints_ConfiguredPixelLimit(t *testing.T) {
	env := newTestEnv(t, Config{MaxImagePixels: 50 * 50})

	rec := env.do(uploadRequest(t, "/crop", nil, "page.png", pngBytes(t, 51, 50)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = env.do(uploadRequest(t, "/crop", nil, "page.png", pngBytes(t, 50, 50)))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUploadPDF_Rejects(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(uploadRequest(t, "/upload", nil, "card.png", pngBytes(t, 10, 10)))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, constants.MsgPDFRequired, decodeBody(t, rec)["error"])

	rec = env.do(uploadRequest(t, "/upload", nil, "broken.pdf", []byte("%PDF-1.7\nnot really a pdf")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.dirFiles(t, constants.DirUploads), "unreadable PDFs are removed")

	big := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte{'x'}, 1<<20)...)
	rec = env.do(uploadRequest(t, "/upload", nil, "big.pdf", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDownload_NotFound(t *testing.T) {
	env := newTestEnv(t, Config{})

	for _, path := range []string{"/download/missing.png", "/download/..%2Fsecret", "/preview/missing.png"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, false, decodeBody(t, rec)["success"])
	}
}

func TestPreview_OnlyServesCroppedFiles(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, err := env.store.WriteFile(context.Background(), constants.DirConverted, "x.png", pngBytes(t, 4, 4))
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/preview/x.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, constants.MsgPreviewNotFound, decodeBody(t, rec)["error"])
}

func TestClearFiles(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	for _, dir := range []string{constants.DirUploads, constants.DirCropped, constants.DirPassport} {
		_, err := env.store.WriteFile(ctx, dir, "fresh.bin", []byte("data"))
		require.NoError(t, err)
	}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/clear-files", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, constants.MsgFilesCleared, body["message"])
	assert.Equal(t, float64(3), body["result"].(map[string]any)["deleted"])

	for _, dir := range constants.DefaultDirectories() {
		assert.Empty(t, env.dirFiles(t, dir), dir)
	}
}

func TestAdmin_TokenRequired(t *testing.T) {
	env := newTestEnv(t, Config{AdminToken: testToken})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testToken, http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := env.do(req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestClearFiles_RequiresTokenWhenSet(t *testing.T) {
	env := newTestEnv(t, Config{AdminToken: testToken})
	_, err := env.store.WriteFile(context.Background(), constants.DirCropped, "card.png", []byte("data"))
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/clear-files", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"card.png"}, env.dirFiles(t, constants.DirCropped))

	req := httptest.NewRequest(http.MethodPost, "/clear-files", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.Empty(t, env.dirFiles(t, constants.DirCropped))
}

func TestAdmin_OpenWithoutToken(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	dirs := decodeBody(t, rec)["directories"].(map[string]any)
	assert.Len(t, dirs, len(constants.DefaultDirectories()))
	assert.Equal(t, false, dirs[constants.DirUploads].(map[string]any)["exists"])
}

func TestAdmin_Sweep(t *testing.T) {
	env := newTestEnv(t, Config{AdminToken: testToken})
	ctx := context.Background()

	fresh, err := env.store.WriteFile(ctx, constants.DirCropped, "fresh.png", []byte("fresh"))
	require.NoError(t, err)
	old, err := env.store.WriteFile(ctx, constants.DirCropped, "old.png", []byte("old"))
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old.Path, past, past))

	sweep := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/sweep"+query, nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		return env.do(req)
	}

	rec := sweep("")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, cleanup.KindManual, body["kind"])
	assert.Equal(t, float64(1), body["result"].(map[string]any)["deleted"])
	assert.FileExists(t, fresh.Path)
	assert.NoFileExists(t, old.Path)

	rec = sweep("?force=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = sweep("?force=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cleanup.KindForce, decodeBody(t, rec)["kind"])
	assert.NoFileExists(t, fresh.Path)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.InitPrometheusMetrics("test", reg)
	env := newTestEnv(t, Config{}, WithMetrics(m, reg))

	env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	out := rec.Body.String()
	assert.Contains(t, out, `test_http_requests_total{code="200",method="GET",route="GET /health"} 1`)
	assert.Contains(t, out, `test_http_requests_total{code="404",method="GET",route="/"} 1`)
	assert.Contains(t, out, `test_watched_dir_files{dir="uploads"} 0`)
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, Config{ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestDownload_HoldsLeaseWhileServing(t *testing.T) {
	env := newTestEnv(t, Config{})
	f, err := env.store.WriteFile(context.Background(), constants.DirCropped, "card.png", pngBytes(t, 4, 4))
	require.NoError(t, err)

	h, err := env.store.Find(filepath.Base(f.Path), downloadDirs...)
	require.NoError(t, err)
	assert.True(t, env.store.Leases().Held(f.Path))
	require.NoError(t, h.Close())
	assert.False(t, env.store.Leases().Held(f.Path))
}
