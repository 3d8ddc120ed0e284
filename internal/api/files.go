package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/storage"
)

// FilesHandler serves stored photos.
type FilesHandler struct {
	Files *storage.DBStorage
	Log   *zap.Logger
}

// Get handles GET /files/{bucket}/*.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.Files.Open(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, r, h.Log, db.Classify("files.Get", err))
		return
	}
	if f == nil {
		jsonError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	w.Header().Set("Content-Type", f.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.Header().Set("Cache-Control", "max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}
