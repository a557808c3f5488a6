// Package apperr holds the sentinel errors shared across nbhugo packages.
package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrMissingFrontMatter = errors.New("notebook metadata has no front-matter")
	ErrMalformedNotebook  = errors.New("malformed notebook")
	ErrNoSiteConfig       = errors.New("hugo site config not found")
	ErrDirtyWorktree      = errors.New("working tree is dirty")
	ErrInvalidSlug        = errors.New("slug must be a single path element")
)
