package api

import (
	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/models"
)

// NotebookInfo is a notebook listing entry (aliased from the domain layer).
type NotebookInfo = blog.NotebookInfo

// NotebookDetail is the full notebook response type (aliased from the domain layer).
type NotebookDetail = blog.NotebookDetail

// NotebookListResponse wraps notebook listings.
type NotebookListResponse struct {
	Notebooks []NotebookInfo `json:"notebooks" validate:"required"`
	Total     int            `json:"total" example:"3" validate:"required"`
}

// RenderResponse is returned by a synchronous render.
type RenderResponse struct {
	Notebook string          `json:"notebook" example:"notebooks/hello.ipynb" validate:"required"`
	Artifact models.Artifact `json:"artifact" validate:"required"`
}

// QueuedResponse is returned when a render was handed to the watcher.
type QueuedResponse struct {
	Notebook string `json:"notebook" example:"notebooks/hello.ipynb" validate:"required"`
	Status   string `json:"status" example:"queued" validate:"required"`
}

// MetadataRequest carries explicit front matter overrides. Empty fields keep
// the stored value.
type MetadataRequest struct {
	Title    string `json:"title,omitempty" example:"Hello"`
	Subtitle string `json:"subtitle,omitempty" example:"A first post"`
	Date     string `json:"date,omitempty" example:"2024-06-01"`
	Slug     string `json:"slug,omitempty" example:"hello"`
	TOC      string `json:"toc,omitempty" example:"true"`
	RenderTo string `json:"render_to,omitempty" example:"content/post/"`
}

// MetadataResponse reports whether the notebook was rewritten.
type MetadataResponse struct {
	Notebook string `json:"notebook" example:"notebooks/hello.ipynb" validate:"required"`
	Changed  bool   `json:"changed" validate:"required"`
}

// UploadResponse is returned after a successful notebook upload.
type UploadResponse struct {
	Notebook string `json:"notebook" example:"notebooks/hello.ipynb" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
}

// StatesResponse maps notebook paths to their watch state.
type StatesResponse struct {
	States map[string]string `json:"states" validate:"required"`
}
