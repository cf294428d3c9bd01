package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

var _ order.Store = (*Client)(nil)

// Get fetches a single order.
func (c *Client) Get(ctx context.Context, ac auth.Context, id string) (*order.Order, error) {
	path := "/orders/" + url.PathEscape(id)
	r, err := c.do(ctx, ac, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := orderStatusError(http.MethodGet, path, id, r); err != nil {
		return nil, err
	}

	o, err := decodeOrder(r.body)
	if err != nil {
		return nil, errors.Wrapf(err, "decode order %s", id)
	}
	return o, nil
}

// ListByUser lists every order of a customer.
func (c *Client) ListByUser(ctx context.Context, ac auth.Context, userID string) ([]order.Order, error) {
	const path = "/orders"
	r, err := c.do(ctx, ac, http.MethodGet, path, url.Values{"userId": {userID}}, nil)
	if err != nil {
		return nil, err
	}
	if err := orderStatusError(http.MethodGet, path, "", r); err != nil {
		return nil, err
	}

	orders, err := decodeOrderList(r.body)
	if err != nil {
		return nil, errors.Wrapf(err, "decode orders of %s", userID)
	}
	return orders, nil
}

// Update patches the shipping fields of an order.
func (c *Client) Update(ctx context.Context, ac auth.Context, id string, patch order.Patch) (*order.Order, error) {
	path := "/orders/" + url.PathEscape(id)
	r, err := c.do(ctx, ac, http.MethodPatch, path, nil, encodePatch(patch))
	if err != nil {
		return nil, err
	}
	if err := orderStatusError(http.MethodPatch, path, id, r); err != nil {
		return nil, err
	}
	if len(r.body) == 0 {
		return nil, nil
	}

	o, err := decodeOrder(r.body)
	if err != nil {
		return nil, errors.Wrapf(err, "decode order %s", id)
	}
	return o, nil
}

func orderStatusError(method, path, id string, r response) error {
	switch {
	case r.ok():
		return nil
	case r.status == http.StatusNotFound && id != "":
		return &order.NotFoundError{OrderID: id}
	case r.status == http.StatusUnauthorized || r.status == http.StatusForbidden:
		return errors.Wrap(order.ErrUnauthorized, statusError(method, path, r).Error())
	default:
		return statusError(method, path, r)
	}
}
