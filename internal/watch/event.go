// Package watch turns filesystem activity in the notebooks directory into
// metadata stamps, renames, renders and output deletions.
package watch

import "fmt"

// Kind is a normalized filesystem event kind.
type Kind int

const (
	Created Kind = iota + 1
	Modified
	Deleted
	// Renamed carries both paths. Platforms that report a rename as a
	// delete and a create never produce it.
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a notebook event. Path is always the notebook's current
// site-relative path; OldPath is only set for Renamed.
type Event struct {
	Kind    Kind
	Path    string
	OldPath string
}

func (e Event) String() string {
	if e.Kind == Renamed {
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.OldPath, e.Path)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}
