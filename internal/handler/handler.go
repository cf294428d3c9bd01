// Package handler exposes the bundle orchestration over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

// Bundles is the orchestration surface the handlers delegate to.
type Bundles interface {
	Purchase(ctx context.Context, ac auth.Context, req bundle.Request) (*bundle.Result, error)
	Preview(ctx context.Context, ac auth.Context, orderIDs []string) (*bundle.Preview, error)
	Repair(ctx context.Context, ac auth.Context, req bundle.RepairRequest) (*bundle.Result, error)
	Candidates(ctx context.Context, ac auth.Context, orderID string) ([]order.Order, error)
	Latest(ctx context.Context, id bundle.ID) (*bundle.Entry, error)
}

var _ Bundles = (*bundle.Coordinator)(nil)

// Handler serves the bundle API.
type Handler struct {
	bundles Bundles
}

// NewHandler constructs a Handler.
func NewHandler(bundles Bundles) *Handler {
	return &Handler{bundles: bundles}
}

// Routes registers the API under /api on r.
func (h *Handler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/bundles/labels", h.PurchaseBundleLabel).Methods(http.MethodPost)
	api.HandleFunc("/bundles/preview", h.PreviewBundle).Methods(http.MethodPost)
	api.HandleFunc("/bundles/repair", h.RepairBundle).Methods(http.MethodPost)
	api.HandleFunc("/bundles/{bundleId}", h.GetBundle).Methods(http.MethodGet)
	api.HandleFunc("/orders/{orderId}/bundle-candidates", h.ListBundleCandidates).Methods(http.MethodGet)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errorBody{Message: "route not found"})
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errorBody{Message: "method not allowed"})
	})
}
