// Package storage manages the named working directories that uploads and
// generated files live in. Every directory is also a directory the retention
// sweeper watches, so files written here do not outlive the retention window.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes is the upload size limit used when none is configured.
const DefaultMaxBytes int64 = 16 << 20

var (
	ErrUnknownDir      = errors.New("unknown storage directory")
	ErrInvalidName     = errors.New("invalid file name")
	ErrNotFound        = errors.New("file not found")
	ErrTooLarge        = errors.New("file exceeds size limit")
	ErrEmpty           = errors.New("file is empty")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// File describes a stored file.
type File struct {
	ID           string
	Name         string // base name inside Dir
	Dir          string // logical directory name
	Path         string
	OriginalName string
	MIME         string
	Size         int64
	ModTime      time.Time
}

// Store maps logical directory names to paths under a root.
type Store struct {
	root     string
	names    []string
	paths    map[string]string
	leases   *cleanup.Leases
	maxBytes int64
}

type Option func(*Store)

// WithMaxBytes sets the upload size limit. Non-positive values keep the default.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// New creates a store rooted at root. Directories are not created until
// something is written to them. A nil leases disables lease tracking.
func New(root string, names []string, leases *cleanup.Leases, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if len(names) == 0 {
		return nil, errors.New("at least one storage directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if leases == nil {
		leases = cleanup.NewLeases()
	}

	s := &Store{
		root:     abs,
		paths:    make(map[string]string, len(names)),
		leases:   leases,
		maxBytes: DefaultMaxBytes,
	}
	for _, name := range names {
		if err := validateName(name); err != nil {
			return nil, fmt.Errorf("directory %q: %w", name, err)
		}
		if _, dup := s.paths[name]; dup {
			return nil, fmt.Errorf("duplicate storage directory %q", name)
		}
		s.names = append(s.names, name)
		s.paths[name] = filepath.Join(abs, name)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Root() string { return s.root }

// MaxBytes returns the upload size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Leases returns the lease table shared with the sweeper.
func (s *Store) Leases() *cleanup.Leases { return s.leases }

// Dirs returns the logical directory names in configuration order.
func (s *Store) Dirs() []string {
	return append([]string(nil), s.names...)
}

// WatchedDirs returns every directory in the form the sweeper expects.
func (s *Store) WatchedDirs() []cleanup.WatchedDir {
	out := make([]cleanup.WatchedDir, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, cleanup.WatchedDir{Name: name, Path: s.paths[name]})
	}
	return out
}

// DirPath returns the absolute path of dir without creating it.
func (s *Store) DirPath(dir string) (string, error) {
	p, ok := s.paths[dir]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDir, dir)
	}
	return p, nil
}

// EnsureDir creates dir if it does not exist yet and returns its path.
func (s *Store) EnsureDir(dir string) (string, error) {
	p, err := s.DirPath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", dir, err)
	}
	return p, nil
}

// Resolve returns the path of name inside dir. Names containing path
// separators or parent references are rejected.
func (s *Store) Resolve(dir, name string) (string, error) {
	p, err := s.DirPath(dir)
	if err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(p, name), nil
}

// Save stores the content of r in dir under a new random name with the
// given extension. An empty ext uses the extension of the detected type.
// When accept is not empty the detected MIME type must match one of it.
func (s *Store) Save(ctx context.Context, dir, originalName string, r io.Reader, ext string, accept ...string) (File, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return File{}, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return File{}, fmt.Errorf("%w (%d bytes)", ErrTooLarge, s.maxBytes)
	}

	mtype := mimetype.Detect(data)
	if len(accept) > 0 && !matchesAny(mtype, accept) {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}
	if ext == "" {
		ext = mtype.Extension()
	}

	id := NewID()
	f, err := s.write(ctx, dir, id+ext, data)
	if err != nil {
		return File{}, err
	}
	f.ID = id
	f.OriginalName = originalName
	f.MIME = mtype.String()
	return f, nil
}

// WriteFile stores data in dir under name, replacing nothing: an existing
// file with the same name is an error.
func (s *Store) WriteFile(ctx context.Context, dir, name string, data []byte) (File, error) {
	f, err := s.write(ctx, dir, name, data)
	if err != nil {
		return File{}, err
	}
	f.MIME = mimetype.Detect(data).String()
	return f, nil
}

func (s *Store) write(ctx context.Context, dir, name string, data []byte) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	if _, err := s.EnsureDir(dir); err != nil {
		return File{}, err
	}
	path, err := s.Resolve(dir, name)
	if err != nil {
		return File{}, err
	}

	release := s.leases.Acquire(path)
	defer release()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return File{}, fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(out, bytes.NewReader(data)); err != nil {
		out.Close()
		os.Remove(path)
		return File{}, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return File{}, fmt.Errorf("failed to close %s: %w", name, err)
	}

	return File{
		Name:    name,
		Dir:     dir,
		Path:    path,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}, nil
}

// Handle is an open stored file. The file stays leased until Close.
type Handle struct {
	*os.File
	Info    fs.FileInfo
	Dir     string
	release func()
}

func (h *Handle) Close() error {
	defer h.release()
	return h.File.Close()
}

// Open opens name in dir for reading and leases it until the handle is closed.
func (s *Store) Open(dir, name string) (*Handle, error) {
	path, err := s.Resolve(dir, name)
	if err != nil {
		return nil, err
	}

	release := s.leases.Acquire(path)
	f, err := os.Open(path)
	if err != nil {
		release()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		release()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		release()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &Handle{File: f, Info: info, Dir: dir, release: release}, nil
}

// Find opens the first regular file called name in dirs, searched in order.
func (s *Store) Find(name string, dirs ...string) (*Handle, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		h, err := s.Open(dir, name)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Remove deletes name from dir. A missing file is not an error.
func (s *Store) Remove(dir, name string) error {
	path, err := s.Resolve(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// NewID returns a random 16-character hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) ||
		name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func matchesAny(m *mimetype.MIME, accept []string) bool {
	for _, a := range accept {
		for cur := m; cur != nil; cur = cur.Parent() {
			if cur.Is(a) {
				return true
			}
		}
	}
	return false
}
