package api

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/starford/nbhugo/internal/notebook"
)

// UploadNotebook handles POST /notebooks (multipart/form-data, field "file").
//
//	@Summary		Upload a notebook into the notebooks directory
//	@Tags			notebooks
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Notebook file"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks [post]
func (h *Handler) UploadNotebook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, ok := safeName(header.Filename)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid notebook filename"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to read file"))
		return
	}

	p, err := h.svc.AddNotebook(name, data)
	if err != nil {
		writeError(w, "upload notebook", name, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Notebook: p, Size: int64(len(data))})
}

// safeName accepts a bare, visible .ipynb file name.
func safeName(name string) (string, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != path.Base(name) {
		return "", false
	}
	if !notebook.IsNotebook(name) || notebook.Ignored(name) {
		return "", false
	}
	return name, true
}
