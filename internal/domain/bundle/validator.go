package bundle

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

// Validator checks that a set of orders can legally share one shipment.
type Validator struct {
	orders      order.Store
	concurrency int
}

// NewValidator creates a Validator that fetches at most concurrency orders at once.
func NewValidator(orders order.Store, concurrency int) *Validator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Validator{orders: orders, concurrency: concurrency}
}

// Validate fetches every order and checks them with CheckCompatible. The
// returned orders are in request order.
func (v *Validator) Validate(ctx context.Context, ac auth.Context, ids []string) ([]order.Order, error) {
	orders, err := v.fetch(ctx, ac, ids)
	if err != nil {
		return nil, err
	}
	if err := CheckCompatible(orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (v *Validator) fetch(ctx context.Context, ac auth.Context, ids []string) ([]order.Order, error) {
	orders := make([]order.Order, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			o, err := v.orders.Get(ctx, ac, id)
			if err != nil {
				if errors.Is(err, order.ErrNotFound) {
					var nf *order.NotFoundError
					if !errors.As(err, &nf) {
						return &order.NotFoundError{OrderID: id}
					}
					return err
				}
				return errors.Wrapf(err, "fetch order %s", id)
			}
			orders[i] = *o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return orders, nil
}

// CheckCompatible verifies that all orders share the first order's customer
// and address and are in a shippable status. It stops at the first violation.
func CheckCompatible(orders []order.Order) error {
	if len(orders) == 0 {
		return &ValidationError{Field: "orderIds", Reason: "at least one order is required"}
	}

	first := orders[0]
	if first.Customer.Address == nil {
		return &MissingAddressError{OrderID: first.ID}
	}

	for _, o := range orders {
		if o.Customer.ID != first.Customer.ID {
			return &CustomerMismatchError{
				OrderID:    o.ID,
				CustomerID: o.Customer.ID,
				Expected:   first.Customer.ID,
			}
		}
		if !first.Customer.Address.SameDestination(o.Customer.Address) {
			return &AddressMismatchError{OrderID: o.ID}
		}
		if !Shippable(o.Status) {
			return &IncompatibleStatusError{OrderID: o.ID, Status: o.Status}
		}
	}
	return nil
}

// Shippable reports whether an order in the given status may receive a label.
// Orders without a status are accepted.
func Shippable(s order.Status) bool {
	switch s {
	case "", order.StatusPending, order.StatusProcessing, order.StatusUnfulfilled, order.StatusReadyToShip:
		return true
	default:
		return false
	}
}
