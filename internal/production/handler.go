package production

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/httpx"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Handler exposes production endpoints.
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
	r.Delete("/", h.delete)
	r.Get("/{id}/movements", h.movements)
	r.Patch("/{id}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.service.List(r.Context(), Filter{SKU: q.Get("sku"), EAN: q.Get("ean"), State: q.Get("state")})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, rows)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Movements(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, entries)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var edit Edit
	if err := httpx.DecodeJSON(r, &edit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	row, err := h.service.Update(r.Context(), id, edit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, row)
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.Delete(r.Context(), req.IDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]int{"deleted": n})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}
