package orders

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/httpx"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// maxUploadBytes caps vendor order uploads.
const maxUploadBytes = 32 << 20

// Handler exposes vendor order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/import", h.importFile)
	r.Post("/upload", h.upload)
	r.Get("/summary", h.summary)
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("file", "multipart field required"))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("file", err.Error()))
		return
	}
	if h.service.store != nil {
		if _, err := h.service.Upload(r.Context(), header.Filename, bytes.NewReader(body), int64(len(body))); err != nil {
			h.logger.Warn("keep uploaded file", slog.String("file", header.Filename), slog.Any("error", err))
		}
	}
	res, err := h.service.ImportFile(r.Context(), bytes.NewReader(body))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Partial(w, res, res.Errors)
}

// upload only stores the file; the returned storage_path feeds the orders:import job.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("file", "multipart field required"))
		return
	}
	defer file.Close()

	path, err := h.service.Upload(r.Context(), header.Filename, file, header.Size)
	if err != nil {
		h.logger.Error("store upload", slog.String("file", header.Filename), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{OK: true, Data: map[string]string{"storage_path": path}})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	day, err := shared.ParseDay("date", r.URL.Query().Get("date"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.Summary(r.Context(), r.URL.Query().Get("centro"), day)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, s)
}
