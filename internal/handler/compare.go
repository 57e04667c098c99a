// Package handler contains the HTTP handlers for the PixelProof API.
//
// This file implements the comparison endpoint.
//
// Routes:
//   - POST   /api/compare                             -> Compare (multipart: image1, image2)
//   - GET    /api/comparisons                         -> History
//   - GET    /api/comparisons/{id}/report             -> Report (markdown)
//   - GET    /api/comparisons/{id}/screenshots/{slot} -> Screenshot (redirect)
//   - DELETE /api/comparisons/{id}                    -> Delete
package handler

import (
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pixelproof/pixelproof/internal/ai"
	"github.com/pixelproof/pixelproof/internal/auth"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/service"
	"github.com/pixelproof/pixelproof/internal/storage"
)

// maxUploadBytes bounds the whole multipart body (two screenshots plus
// overhead).
const maxUploadBytes = 2*ai.MaxImageSize + 1<<20

// CompareHandler handles screenshot comparison requests.
type CompareHandler struct {
	comparisons service.ComparisonService
	logger      *slog.Logger
}

// NewCompareHandler creates a new CompareHandler.
func NewCompareHandler(comparisons service.ComparisonService, logger *slog.Logger) *CompareHandler {
	return &CompareHandler{
		comparisons: comparisons,
		logger:      logger,
	}
}

// RegisterRoutes registers comparison routes on the provided mux. All routes
// require a verified identity.
func (h *CompareHandler) RegisterRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	mux.Handle("POST /api/compare", requireIdentity(http.HandlerFunc(h.Compare)))
	mux.Handle("GET /api/comparisons", requireIdentity(http.HandlerFunc(h.History)))
	mux.Handle("GET /api/comparisons/{id}/report", requireIdentity(http.HandlerFunc(h.Report)))
	mux.Handle("GET /api/comparisons/{id}/screenshots/{slot}", requireIdentity(http.HandlerFunc(h.Screenshot)))
	mux.Handle("DELETE /api/comparisons/{id}", requireIdentity(http.HandlerFunc(h.Delete)))
}

// Compare runs one screenshot comparison. The quota unit is consumed before
// any model work, and is not refunded if the comparison later fails.
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	const op = "handler.compare"
	identity := auth.GetIdentityFromRequest(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "Upload too large or malformed"))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	image1, err := h.readImage(r, "image1")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	image2, err := h.readImage(r, "image2")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	report, err := h.comparisons.Compare(r.Context(), string(identity), image1, image2)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// History lists the identity's recent comparisons.
func (h *CompareHandler) History(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromRequest(r)

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	list, err := h.comparisons.History(r.Context(), string(identity), limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	type item struct {
		ID        string        `json:"id"`
		Plan      domain.PlanID `json:"plan"`
		Model     string        `json:"model"`
		ReportKey string        `json:"report_key"`
		CreatedAt time.Time     `json:"created_at"`
	}
	items := make([]item, 0, len(list))
	for _, c := range list {
		items = append(items, item{
			ID:        c.ID.String(),
			Plan:      c.Plan,
			Model:     c.Model,
			ReportKey: c.ReportKey,
			CreatedAt: c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"comparisons": items})
}

// Report streams the stored markdown report for one comparison.
func (h *CompareHandler) Report(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromRequest(r)

	id, err := comparisonID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	body, err := h.comparisons.Report(r.Context(), string(identity), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("failed streaming report", "comparison_id", id, "error", err)
	}
}

// Screenshot redirects to a (possibly presigned) URL for a stored upload.
func (h *CompareHandler) Screenshot(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromRequest(r)

	id, err := comparisonID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	url, err := h.comparisons.ScreenshotURL(r.Context(), string(identity), id, r.PathValue("slot"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Delete removes a comparison and its stored artifacts.
func (h *CompareHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromRequest(r)

	id, err := comparisonID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.comparisons.Delete(r.Context(), string(identity), id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// comparisonID parses the {id} path segment.
func comparisonID(r *http.Request) (uuid.UUID, error) {
	const op = "handler.comparison_id"

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Invalid(op, "Invalid comparison id")
	}
	return id, nil
}

// readImage pulls one named upload out of the multipart form.
func (h *CompareHandler) readImage(r *http.Request, field string) (ai.Image, error) {
	const op = "handler.read_image"

	file, header, err := r.FormFile(field)
	if err != nil {
		return ai.Image{}, domain.Invalid(op, "Both images are required")
	}
	defer file.Close()

	contentType := detectUploadType(file, header)
	if !storage.IsAllowedImageType(contentType) {
		return ai.Image{}, domain.Invalid(op, "Only JPG, PNG, and WEBP formats are supported")
	}

	data, err := io.ReadAll(io.LimitReader(file, ai.MaxImageSize+1))
	if err != nil {
		return ai.Image{}, domain.Internal(err, op, "failed to read upload")
	}
	if len(data) > ai.MaxImageSize {
		return ai.Image{}, domain.Errorf(domain.ETOOLARGE, op, "Image exceeds the %dMB limit", ai.MaxImageSize/(1<<20))
	}

	return ai.Image{Data: data, ContentType: contentType}, nil
}

// detectUploadType resolves the upload's MIME type from the part header,
// filename, and content sniffing, then rewinds the file.
func detectUploadType(file multipart.File, header *multipart.FileHeader) string {
	contentType := storage.DetectContentType(header.Header.Get("Content-Type"), header.Filename, file)
	if seeker, ok := file.(io.Seeker); ok {
		_, _ = seeker.Seek(0, io.SeekStart)
	}
	// image/jpg is a common but non-canonical spelling
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	return contentType
}
