package cleanup

import (
	"io/fs"
	"os"
)

// FileSystem is the subset of filesystem operations the sweeper needs.
type FileSystem interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Lstat(name string) (fs.FileInfo, error)
	Remove(name string) error
}

// OSFileSystem implements FileSystem on top of the os package.
type OSFileSystem struct{}

func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSFileSystem) Lstat(name string) (fs.FileInfo, error)     { return os.Lstat(name) }
func (OSFileSystem) Remove(name string) error                   { return os.Remove(name) }
