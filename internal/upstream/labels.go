package upstream

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
	"github.com/xenking/marketplace-bff/internal/domain/bundle"
)

var _ bundle.LabelProvider = (*Client)(nil)

const labelsPath = "/shipping/labels"

// PurchaseLabel buys a shipping label. The parcel is not part of the
// upstream request; the rate already fixes it.
func (c *Client) PurchaseLabel(ctx context.Context, ac auth.Context, req bundle.LabelRequest) (*bundle.LabelReceipt, error) {
	r, err := c.do(ctx, ac, http.MethodPost, labelsPath, nil, encodeLabelRequest(req))
	if err != nil {
		return nil, &bundle.LabelPurchaseError{Err: err}
	}
	if !r.ok() {
		se := statusError(http.MethodPost, labelsPath, r)
		return nil, &bundle.LabelPurchaseError{StatusCode: r.status, Body: se.Body, Err: se}
	}

	receipt, err := decodeLabelReceipt(r.body)
	if err != nil {
		return nil, &bundle.LabelPurchaseError{
			StatusCode: r.status,
			Err:        errors.Wrap(err, "decode label"),
		}
	}
	return receipt, nil
}
