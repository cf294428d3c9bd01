package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/pkg/httpmiddleware"
)

// PurchaseBundleLabel buys one label for a set of orders and applies it to
// each of them. The status code reflects how many order updates landed.
func (h *Handler) PurchaseBundleLabel(w http.ResponseWriter, r *http.Request) {
	ac, ok := authenticate(w, r)
	if !ok {
		return
	}
	req, err := decodePurchaseRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.bundles.Purchase(r.Context(), ac, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, resultStatus(result), encodeResult(result))
}

// PreviewBundle validates a bundle and returns its parcel without buying.
func (h *Handler) PreviewBundle(w http.ResponseWriter, r *http.Request) {
	ac, ok := authenticate(w, r)
	if !ok {
		return
	}
	ids, err := decodePreviewRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.bundles.Preview(r.Context(), ac, ids)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodePreview(p))
}

// RepairBundle re-applies an existing label to the member orders.
func (h *Handler) RepairBundle(w http.ResponseWriter, r *http.Request) {
	ac, ok := authenticate(w, r)
	if !ok {
		return
	}
	req, err := decodeRepairRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.bundles.Repair(r.Context(), ac, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, resultStatus(result), encodeResult(result))
}

// GetBundle returns the latest recorded label of a bundle.
func (h *Handler) GetBundle(w http.ResponseWriter, r *http.Request) {
	if _, ok := authenticate(w, r); !ok {
		return
	}
	id := bundle.ID(mux.Vars(r)["bundleId"])

	e, err := h.bundles.Latest(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeEntry(e))
}

// ListBundleCandidates lists orders that could ship together with the given one.
func (h *Handler) ListBundleCandidates(w http.ResponseWriter, r *http.Request) {
	ac, ok := authenticate(w, r)
	if !ok {
		return
	}
	orderID := mux.Vars(r)["orderId"]

	orders, err := h.bundles.Candidates(r.Context(), ac, orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeCandidates(orderID, orders))
}

func authenticate(w http.ResponseWriter, r *http.Request) (auth.Context, bool) {
	ac, err := auth.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errorBody{Message: err.Error()})
		return auth.Context{}, false
	}
	ac.RequestID = httpmiddleware.RequestIDFromContext(r.Context())
	return ac, true
}

func resultStatus(r *bundle.Result) int {
	switch r.Outcome {
	case bundle.OutcomeAllSucceeded:
		return http.StatusOK
	case bundle.OutcomePartiallySucceeded:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}
