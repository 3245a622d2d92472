package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/inventory"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/observability"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/picking"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/httpx"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/production"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shipments"
	"github.com/CiaoMoro1/gestionale-backend-sub000/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	OrdersHandler     *orders.Handler
	PickingHandler    *picking.Handler
	ProductionHandler *production.Handler
	ShipmentsHandler  *shipments.Handler
	InventoryHandler  *inventory.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mount := func(prefix string, h interface{ MountRoutes(chi.Router) }, present bool) {
		if present {
			r.Route(prefix, h.MountRoutes)
		}
	}
	mount("/orders", params.OrdersHandler, params.OrdersHandler != nil)
	mount("/prelievi", params.PickingHandler, params.PickingHandler != nil)
	mount("/produzione", params.ProductionHandler, params.ProductionHandler != nil)
	mount("/parziali", params.ShipmentsHandler, params.ShipmentsHandler != nil)
	mount("/inventory", params.InventoryHandler, params.InventoryHandler != nil)
	mount("/jobs", params.JobHandler, params.JobHandler != nil)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
