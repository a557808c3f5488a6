package models

import "time"

// Artifact records where a notebook was rendered to.
type Artifact struct {
	Notebook    string    `json:"notebook"`
	Slug        string    `json:"slug"`
	Markdown    string    `json:"markdown"`
	ResourceDir string    `json:"resource_dir,omitempty"`
	Resources   int       `json:"resources"`
	Checksum    string    `json:"checksum,omitempty"`
	RenderedAt  time.Time `json:"rendered_at"`
}
