package notebook

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/nbhugo/internal/apperr"
)

// Ext is the notebook file extension.
const Ext = ".ipynb"

// IsNotebook reports whether p names a notebook file.
func IsNotebook(p string) bool {
	return strings.HasSuffix(p, Ext)
}

// Ignored reports whether nbhugo should leave the notebook at p alone: hidden
// files, editor temporaries and scratch notebooks Jupyter names "Untitled".
func Ignored(p string) bool {
	name := path.Base(toSlash(p))
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") || strings.Contains(name, ".~") {
		return true
	}
	return strings.Contains(strings.ToLower(name), "untitled")
}

// CheckSlug rejects slugs that cannot name a single file: "." and "..", and
// anything containing a path separator.
func CheckSlug(slug string) error {
	if slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) {
		return fmt.Errorf("%q: %w", slug, apperr.ErrInvalidSlug)
	}
	return nil
}

// Stem returns the file name of p without directory and extension.
func Stem(p string) string {
	name := path.Base(toSlash(p))
	return strings.TrimSuffix(name, path.Ext(name))
}

// WithStem returns p with its file name replaced by stem + ".ipynb".
func WithStem(p, stem string) string {
	return path.Join(path.Dir(toSlash(p)), stem+Ext)
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
