package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/httpx"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.balances)
	r.Get("/movements", h.entries)
	r.Post("/movements", h.post)
}

type movementRequest struct {
	Direction Direction `json:"direction"`
	Movement
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.service.Balances(r.Context(), q.Get("sku"), q.Get("ean"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("source_row_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("source_row_id", "must be an integer"))
		return
	}
	out, err := h.service.Entries(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

// post records a manual stock movement, e.g. loading channel stock.
func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var (
		res Result
		err error
	)
	switch req.Direction {
	case DirectionDebit:
		res, err = h.service.Debit(r.Context(), req.Movement)
	case DirectionCredit:
		res, err = h.service.Credit(r.Context(), req.Movement)
	default:
		err = shared.NewValidationError("direction", "must be debit or credit")
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, res)
}
