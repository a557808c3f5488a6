package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbhugo/internal/blog"
)

// Routes holds the optional collaborators mounted next to the notebook
// handlers. Nil fields disable the matching endpoints.
type Routes struct {
	// Trigger queues renders through the watcher. Without one, render
	// requests run synchronously on the service.
	Trigger RenderTrigger
	States  StateSource
	SSE     http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(svc *blog.Service, authEnabled bool, token string, routes Routes) chi.Router {
	h := NewHandler(svc, routes.Trigger, routes.States)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notebooks", h.ListNotebooks)
	r.Post("/notebooks", h.UploadNotebook)
	r.Get("/notebooks/{name}", h.GetNotebook)
	r.Post("/notebooks/{name}/render", h.RenderNotebook)
	r.Patch("/notebooks/{name}/metadata", h.UpdateMetadata)

	if routes.States != nil {
		r.Get("/states", h.States)
	}

	// SSE endpoint (protected by same auth middleware).
	if routes.SSE != nil {
		r.Get("/events", routes.SSE.ServeHTTP)
	}

	return r
}
