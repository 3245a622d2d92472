package shipments

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/httpx"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Handler exposes partial shipment endpoints.
type Handler struct {
	logger  *slog.Logger
	tracker *Tracker
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, tracker *Tracker) *Handler {
	return &Handler{logger: logger, tracker: tracker}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Put("/draft", h.saveDraft)
	r.Post("/confirm", h.confirm)
	r.Post("/close", h.close)
	r.Post("/reset", h.reset)
	r.Post("/{id}/handled", h.handled)
	r.Post("/{id}/packages/{collo}", h.confirmPackage)
}

type orderRef struct {
	Center string `json:"centro"`
	Date   string `json:"date"`
}

func (o orderRef) day() (time.Time, error) {
	return shared.ParseDay("date", o.Date)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ref := orderRef{Center: r.URL.Query().Get("centro"), Date: r.URL.Query().Get("date")}
	day, err := ref.day()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.tracker.List(r.Context(), ref.Center, day)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

type draftBody struct {
	orderRef
	Items    []Item          `json:"items"`
	Packages map[string]bool `json:"colli_confermati"`
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	var body draftBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := body.day()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	saved, err := h.tracker.SaveDraft(r.Context(), DraftRequest{Center: body.Center, Date: day, Items: body.Items, Packages: body.Packages})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, saved)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var ref orderRef
	if err := httpx.DecodeJSON(r, &ref); err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := ref.day()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	confirmed, err := h.tracker.ConfirmDraft(r.Context(), ref.Center, day)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, confirmed)
}

type closeBody struct {
	orderRef
	POList []string `json:"po_list"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var body closeBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := body.day()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.tracker.CloseOrder(r.Context(), CloseRequest{Center: body.Center, Date: day, POList: body.POList})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, report)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var ref orderRef
	if err := httpx.DecodeJSON(r, &ref); err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := ref.day()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	deleted, err := h.tracker.ResetDraft(r.Context(), ref.Center, day)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]bool{"deleted": deleted})
}

type handledBody struct {
	Handled bool `json:"gestito"`
}

func (h *Handler) handled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body handledBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.tracker.MarkHandled(r.Context(), id, body.Handled); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"id": id, "gestito": body.Handled})
}

type packageBody struct {
	Confirmed bool `json:"confirmed"`
}

func (h *Handler) confirmPackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body packageBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.tracker.ConfirmPackage(r.Context(), id, chi.URLParam(r, "collo"), body.Confirmed)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, s)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}
