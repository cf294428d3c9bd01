package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

// fail maps a domain error to its HTTP response. Unknown errors are logged
// and reported as 500 without their details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeError(w, status, body)
}

func mapError(err error) (int, errorBody) {
	var (
		vErr  *bundle.ValidationError
		rej   bundle.Rejection
		nfErr *order.NotFoundError
		dErr  *bundle.DuplicateBundleError
		lpErr *bundle.LabelPurchaseError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, errorBody{Message: vErr.Error(), Reason: "invalid_request"}
	case errors.As(err, &rej):
		return http.StatusBadRequest, errorBody{
			Message: rej.Error(),
			OrderID: rej.RejectedOrder(),
			Reason:  rej.Reason(),
		}
	case errors.As(err, &nfErr):
		return http.StatusNotFound, errorBody{Message: nfErr.Error(), OrderID: nfErr.OrderID, Reason: "not_found"}
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, errorBody{Message: "order not found", Reason: "not_found"}
	case errors.Is(err, bundle.ErrEntryNotFound):
		return http.StatusNotFound, errorBody{Message: "no label recorded for bundle", Reason: "not_found"}
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Message: "marketplace rejected credentials", Reason: "unauthorized"}
	case errors.As(err, &dErr):
		return http.StatusConflict, errorBody{
			Message:        dErr.Error(),
			Reason:         "duplicate",
			TrackingNumber: dErr.TrackingNumber,
		}
	case errors.As(err, &lpErr):
		return http.StatusInternalServerError, errorBody{
			Message:  lpErr.Error(),
			Reason:   "label_purchase_failed",
			Upstream: lpErr.StatusCode,
		}
	case errors.Is(err, bundle.ErrMissingTrackingNumber):
		return http.StatusInternalServerError, errorBody{Message: err.Error(), Reason: "missing_tracking_number"}
	default:
		return http.StatusInternalServerError, errorBody{Message: "internal error"}
	}
}
