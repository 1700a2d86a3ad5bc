// Package fs provides the filesystem seam used by scribe's storage code.
//
// The main types are:
//   - [FS]: interface for the filesystem operations scribe performs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os]
//   - [Locker]: advisory flock(2) locks used to serialize whole-document writes
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths of the standard library io/fs package.
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// Implementations must behave like [os.File]; in particular [File.Fd] must
// return a descriptor usable with flock until the file is closed.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations used by documents, lock records and
// the write lock. All methods mirror their [os] equivalents.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// ReadDir reads a directory and returns its entries sorted by name. See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// RemoveAll deletes a path and any children. See [os.RemoveAll].
	RemoveAll(path string) error

	// Link creates newpath as a hard link to oldpath. See [os.Link].
	//
	// Fails with an error satisfying [os.IsExist] when newpath already exists,
	// which makes it usable as an atomic create-if-absent for fully written
	// files.
	Link(oldpath, newpath string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
