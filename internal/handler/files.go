// Package handler contains the HTTP handlers for the PixelProof API.
//
// This file serves stored artifacts in development, where the local storage
// backend has no CDN or presigning in front of it.
//
// Routes:
//   - GET /files/{key...} -> Serve
package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/storage"
)

// FilesHandler serves stored objects through the storage backend, so key
// validation and content-type resolution stay in one place.
type FilesHandler struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(store storage.Storage, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers the file-serving route on the provided mux.
func (h *FilesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /files/{key...}", http.HandlerFunc(h.Serve))
}

// Serve streams one stored object. Keys are unguessable (UUID-namespaced),
// which is the same access model the R2 backend's presigned URLs rely on.
func (h *FilesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	const op = "handler.serve_file"

	key := r.PathValue("key")
	body, info, err := h.store.Get(r.Context(), key)
	if err != nil {
		if storage.IsNotFound(err) {
			ErrorResponse(w, r, h.logger, domain.NotFound(op, "File", key))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to read object"))
		return
	}
	defer body.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("failed streaming object", "key", key, "error", err)
	}
}
