package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/watch"
)

const maxUploadBytes = 32 << 20

// RenderTrigger hands an event to the watch loop.
type RenderTrigger interface {
	Enqueue(ctx context.Context, ev watch.Event) error
}

// StateSource reports the watch state of every tracked notebook.
type StateSource interface {
	States() map[string]watch.State
}

// Handler holds API route handlers.
type Handler struct {
	svc     *blog.Service
	trigger RenderTrigger
	states  StateSource
}

// NewHandler creates a new Handler. trigger and states may be nil.
func NewHandler(svc *blog.Service, trigger RenderTrigger, states StateSource) *Handler {
	return &Handler{svc: svc, trigger: trigger, states: states}
}

// ListNotebooks handles GET /notebooks.
//
//	@Summary		List notebooks with their metadata and rendered artifacts
//	@Tags			notebooks
//	@Produce		json
//	@Success		200	{object}	NotebookListResponse
//	@Security		BearerAuth
//	@Router			/notebooks [get]
func (h *Handler) ListNotebooks(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListNotebooks(r.Context())
	if err != nil {
		slog.Error("list notebooks failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NotebookListResponse{Notebooks: items, Total: len(items)})
}

// GetNotebook handles GET /notebooks/{name}.
//
//	@Summary		Get a single notebook by name
//	@Tags			notebooks
//	@Produce		json
//	@Param			name	path		string	true	"Notebook name"
//	@Success		200		{object}	NotebookDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{name} [get]
func (h *Handler) GetNotebook(w http.ResponseWriter, r *http.Request) {
	p := h.svc.NotebookPath(chi.URLParam(r, "name"))
	detail, err := h.svc.GetNotebook(r.Context(), p)
	if err != nil {
		writeError(w, "get notebook", p, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// RenderNotebook handles POST /notebooks/{name}/render.
//
//	@Summary		Render a notebook into the site
//	@Description	Queues the render on the watcher when one runs, otherwise renders synchronously.
//	@Tags			notebooks
//	@Produce		json
//	@Param			name	path		string	true	"Notebook name"
//	@Param			dest	query		string	false	"Destination override for a synchronous render"
//	@Success		200		{object}	RenderResponse
//	@Success		202		{object}	QueuedResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{name}/render [post]
func (h *Handler) RenderNotebook(w http.ResponseWriter, r *http.Request) {
	p := h.svc.NotebookPath(chi.URLParam(r, "name"))
	if notebook.Ignored(p) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("ignored notebook name"))
		return
	}

	if h.trigger != nil {
		if _, err := h.svc.Inspect(p); err != nil {
			writeError(w, "render notebook", p, err)
			return
		}
		if err := h.trigger.Enqueue(r.Context(), watch.Event{Kind: watch.Modified, Path: p}); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
			return
		}
		writeJSON(w, http.StatusAccepted, QueuedResponse{Notebook: p, Status: "queued"})
		return
	}

	a, err := h.svc.Render(r.Context(), p, r.URL.Query().Get("dest"))
	if err != nil {
		writeError(w, "render notebook", p, err)
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{Notebook: p, Artifact: a})
}

// UpdateMetadata handles PATCH /notebooks/{name}/metadata.
//
//	@Summary		Override front matter values of a notebook
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Notebook name"
//	@Param			body	body		MetadataRequest	true	"Overrides"
//	@Success		200		{object}	MetadataResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{name}/metadata [patch]
func (h *Handler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	p := h.svc.NotebookPath(chi.URLParam(r, "name"))
	var req MetadataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	changed, err := h.svc.UpdateMetadata(r.Context(), p, notebook.Overrides{
		Title:    req.Title,
		Subtitle: req.Subtitle,
		Date:     req.Date,
		Slug:     req.Slug,
		TOC:      req.TOC,
		RenderTo: req.RenderTo,
	})
	if err != nil {
		writeError(w, "update metadata", p, err)
		return
	}
	writeJSON(w, http.StatusOK, MetadataResponse{Notebook: p, Changed: changed})
}

// States handles GET /states.
//
//	@Summary		Watch state of every tracked notebook
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatesResponse
//	@Security		BearerAuth
//	@Router			/states [get]
func (h *Handler) States(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]string)
	for p, s := range h.states.States() {
		out[p] = string(s)
	}
	writeJSON(w, http.StatusOK, StatesResponse{States: out})
}
