package cleanup

import "time"

// WatchedDir is a directory the sweeper keeps bounded. Name is the logical
// name used in logs and stats; Path may not exist yet.
type WatchedDir struct {
	Name string
	Path string
}

// Config holds configuration for the retention sweeper.
type Config struct {
	Dirs      []WatchedDir
	Retention time.Duration // Files older than this are deleted (must be > 0)
	Ignore    []string      // RE2 patterns matched against base names; matches are never touched
}

// Result summarises one sweep.
type Result struct {
	Deleted    int           // Files removed
	Errors     int           // Files that could not be removed after retries
	Skipped    int           // Eligible files left alone because they were leased
	BytesFreed int64         // Sum of sizes of removed files
	Duration   time.Duration // Wall time of the sweep
}

// DirStats describes the current contents of one watched directory.
type DirStats struct {
	Exists           bool    `json:"exists"`
	FileCount        int     `json:"file_count"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	TotalSizeMB      float64 `json:"total_size_mb"`
	OldestAgeMinutes float64 `json:"oldest_file_age_minutes"`
	NewestAgeMinutes float64 `json:"newest_file_age_minutes"`
	EligibleCount    int     `json:"eligible_for_deletion"`
}

// Sweep kinds reported to the Recorder.
const (
	KindScheduled = "scheduled"
	KindManual    = "manual"
	KindForce     = "force"
)

// Recorder receives sweep outcomes, typically for metrics.
type Recorder interface {
	ObserveSweep(kind string, res Result)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSweep(string, Result) {}
