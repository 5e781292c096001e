package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": false, "error": msg})
}

func attachment(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}

type sweepResult struct {
	Deleted    int   `json:"deleted"`
	Errors     int   `json:"errors"`
	Skipped    int   `json:"skipped"`
	BytesFreed int64 `json:"bytes_freed"`
	DurationMS int64 `json:"duration_ms"`
}

func newSweepResult(res cleanup.Result) sweepResult {
	return sweepResult{
		Deleted:    res.Deleted,
		Errors:     res.Errors,
		Skipped:    res.Skipped,
		BytesFreed: res.BytesFreed,
		DurationMS: res.Duration.Milliseconds(),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
