package picking

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/httpx"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Handler exposes pick list endpoints.
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
	r.Get("/", h.list)
	r.Post("/generate", h.generate)
	r.Post("/resync", h.resync)
	r.Patch("/bulk", h.bulkUpdate)
	r.Patch("/{id}", h.update)
}

type dateRequest struct {
	Date string `json:"date"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	day, err := shared.ParseDay("date", r.URL.Query().Get("date"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.List(r.Context(), ListFilter{Date: day, State: State(r.URL.Query().Get("state"))})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, rows)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := shared.ParseDay("date", req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Generate(r.Context(), day)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Partial(w, report, report.Errors)
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := shared.ParseDay("date", req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Resync(r.Context(), day)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Partial(w, report, httpx.FailureMessages(report.Failures))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.NewValidationError("id", "must be a positive integer"))
		return
	}
	var patch Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Partial(w, res, httpx.FailureMessages(res.Sync.Failures))
}

func (h *Handler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	var patch BulkPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkUpdate(r.Context(), patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Partial(w, res, append(httpx.FailureMessages(res.Failures), httpx.FailureMessages(res.Sync.Failures)...))
}
