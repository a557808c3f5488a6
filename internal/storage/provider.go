// Package storage confines nbhugo's file operations to the Hugo site root.
package storage

// Provider is the interface for site file operations. All paths are relative
// to the site root and use forward or OS separators interchangeably.
type Provider interface {
	// Root returns the absolute site root.
	Root() string
	// Abs resolves path against the site root.
	Abs(path string) (string, error)
	// Rel converts an absolute path under the root into a root-relative one.
	Rel(abs string) (string, error)
	// List returns the root-relative paths of files directly inside dir whose
	// names end with ext.
	List(dir, ext string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Exists reports whether path exists.
	Exists(path string) bool
	// Delete removes the file at path.
	Delete(path string) error
	// RemoveAll removes path and everything below it.
	RemoveAll(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
