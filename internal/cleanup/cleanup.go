// Package cleanup keeps watched directories bounded by deleting files whose
// age exceeds a retention window. A Sweeper can be driven manually
// (RunSweep, ForceSweep) or by its own background loop (Start, Stop).
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/aatumaykin/ecardcut/internal/retry"
	"github.com/wasilibs/go-re2"
)

const (
	// DefaultStopTimeout bounds how long Stop waits for the loop to exit.
	DefaultStopTimeout = 5 * time.Second
	// DefaultDeleteAttempts and DefaultDeleteBackoff make up the default delete policy.
	DefaultDeleteAttempts = 3
	DefaultDeleteBackoff  = 200 * time.Millisecond
)

// Sweeper deletes files older than the retention window from a fixed set of
// directories. All sweeps are serialized.
type Sweeper struct {
	dirs        []WatchedDir
	retention   time.Duration
	ignore      []*re2.Regexp
	now         func() time.Time
	fs          FileSystem
	policy      retry.Policy
	logger      *logger.Logger
	recorder    Recorder
	leases      *Leases
	stopTimeout time.Duration

	sweepMu sync.Mutex

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	lastResult Result
	lastSweep  time.Time
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithClock replaces time.Now as the source of "now" for age computation.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithFileSystem replaces the OS filesystem.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Sweeper) { s.fs = fsys }
}

// WithRetry sets the delete retry policy.
func WithRetry(p retry.Policy) Option {
	return func(s *Sweeper) { s.policy = p }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Sweeper) { s.logger = log }
}

func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// WithLeases makes age-based sweeps skip files held in l.
func WithLeases(l *Leases) Option {
	return func(s *Sweeper) { s.leases = l }
}

func WithStopTimeout(d time.Duration) Option {
	return func(s *Sweeper) { s.stopTimeout = d }
}

// New validates cfg and returns a stopped Sweeper.
func New(cfg Config, opts ...Option) (*Sweeper, error) {
	if cfg.Retention <= 0 {
		return nil, &ConfigError{Field: "retention", Message: "must be greater than zero"}
	}

	seen := make(map[string]bool, len(cfg.Dirs))
	for _, d := range cfg.Dirs {
		if d.Name == "" {
			return nil, &ConfigError{Field: "dirs", Message: "directory name is required"}
		}
		if d.Path == "" {
			return nil, &ConfigError{Field: "dirs", Message: "path is required for " + d.Name}
		}
		if seen[d.Name] {
			return nil, &ConfigError{Field: "dirs", Message: "duplicate directory name " + d.Name}
		}
		seen[d.Name] = true
	}

	ignore := make([]*re2.Regexp, 0, len(cfg.Ignore))
	for _, p := range cfg.Ignore {
		re, err := re2.Compile(p)
		if err != nil {
			return nil, &ConfigError{Field: "ignore", Message: "invalid pattern " + p + ": " + err.Error()}
		}
		ignore = append(ignore, re)
	}

	s := &Sweeper{
		dirs:        append([]WatchedDir(nil), cfg.Dirs...),
		retention:   cfg.Retention,
		ignore:      ignore,
		now:         time.Now,
		fs:          OSFileSystem{},
		policy:      retry.Fixed(DefaultDeleteAttempts, DefaultDeleteBackoff),
		logger:      logger.Nop(),
		recorder:    nopRecorder{},
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = DefaultStopTimeout
	}
	return s, nil
}

// Dirs returns the watched directories.
func (s *Sweeper) Dirs() []WatchedDir {
	return append([]WatchedDir(nil), s.dirs...)
}

// Retention returns the configured retention window.
func (s *Sweeper) Retention() time.Duration {
	return s.retention
}

// RunSweep deletes every regular file older than the retention window.
// Per-file failures are logged and counted, never returned.
func (s *Sweeper) RunSweep(ctx context.Context) Result {
	return s.sweep(ctx, KindManual)
}

// ForceSweep deletes every regular file regardless of age or leases.
func (s *Sweeper) ForceSweep(ctx context.Context) Result {
	return s.sweep(ctx, KindForce)
}

// LastResult returns the outcome of the most recent sweep and when it finished.
// The time is zero if no sweep has run.
func (s *Sweeper) LastResult() (Result, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult, s.lastSweep
}

func (s *Sweeper) sweep(ctx context.Context, kind string) Result {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := time.Now()
	now := s.now()
	force := kind == KindForce
	var res Result

	for _, dir := range s.dirs {
		if ctx.Err() != nil {
			s.logger.Warn("sweep interrupted",
				logger.Field{Key: "kind", Value: kind},
				logger.Field{Key: "dir", Value: dir.Name})
			break
		}
		s.sweepDir(ctx, dir, now, force, &res)
	}

	res.Duration = time.Since(started)

	s.mu.Lock()
	s.lastResult = res
	s.lastSweep = s.now()
	s.mu.Unlock()

	s.recorder.ObserveSweep(kind, res)

	if res.Deleted > 0 || res.Errors > 0 {
		s.logger.Info("sweep completed",
			logger.Field{Key: "kind", Value: kind},
			logger.Field{Key: "deleted", Value: res.Deleted},
			logger.Field{Key: "errors", Value: res.Errors},
			logger.Field{Key: "skipped", Value: res.Skipped},
			logger.Field{Key: "bytes_freed", Value: res.BytesFreed},
			logger.Field{Key: "duration_ms", Value: res.Duration.Milliseconds()})
	} else {
		s.logger.Debug("sweep completed: nothing to delete",
			logger.Field{Key: "kind", Value: kind},
			logger.Field{Key: "skipped", Value: res.Skipped})
	}
	return res
}

func (s *Sweeper) sweepDir(ctx context.Context, dir WatchedDir, now time.Time, force bool, res *Result) {
	entries, err := s.fs.ReadDir(dir.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("watched directory does not exist, skipping",
				logger.Field{Key: "dir", Value: dir.Name})
			return
		}
		s.logger.Warn("failed to list watched directory",
			logger.Field{Key: "dir", Value: dir.Name},
			logger.Field{Key: "error", Value: err})
		res.Errors++
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.Type().IsRegular() || s.ignored(entry.Name()) {
			continue
		}

		path := filepath.Join(dir.Path, entry.Name())
		info, err := s.fs.Lstat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("failed to stat file",
					logger.Field{Key: "path", Value: path},
					logger.Field{Key: "error", Value: err})
				res.Errors++
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		if !force {
			if now.Sub(info.ModTime()) <= s.retention {
				continue
			}
			if s.leases.Held(path) {
				s.logger.Debug("file is leased, skipping",
					logger.Field{Key: "path", Value: path})
				res.Skipped++
				continue
			}
		}

		switch deleted, err := s.remove(ctx, path); {
		case err != nil && ctx.Err() != nil:
			s.logger.Debug("delete interrupted, file left for the next sweep",
				logger.Field{Key: "dir", Value: dir.Name},
				logger.Field{Key: "path", Value: path})
			return
		case err != nil:
			s.logger.Warn("failed to delete file",
				logger.Field{Key: "dir", Value: dir.Name},
				logger.Field{Key: "path", Value: path},
				logger.Field{Key: "error", Value: err})
			res.Errors++
		case deleted:
			res.Deleted++
			res.BytesFreed += info.Size()
			s.logger.Debug("deleted file",
				logger.Field{Key: "dir", Value: dir.Name},
				logger.Field{Key: "name", Value: entry.Name()},
				logger.Field{Key: "age_minutes", Value: ageMinutes(now, info.ModTime())})
		}
	}
}

// remove deletes path under the retry policy. A file that is already gone
// reports (false, nil).
func (s *Sweeper) remove(ctx context.Context, path string) (bool, error) {
	attempts, err := retry.Do(ctx, s.policy, retry.IsTransientFS, func(int) error {
		return s.fs.Remove(path)
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if attempts > 1 {
		s.logger.Debug("file deleted after retry",
			logger.Field{Key: "path", Value: path},
			logger.Field{Key: "attempts", Value: attempts})
	}
	return true, nil
}

func (s *Sweeper) ignored(name string) bool {
	for _, re := range s.ignore {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func ageMinutes(now, modTime time.Time) float64 {
	return now.Sub(modTime).Minutes()
}
