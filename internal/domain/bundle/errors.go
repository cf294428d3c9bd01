package bundle

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-bff/internal/domain/order"
)

// ErrMissingTrackingNumber is returned when the label provider reports success
// without a tracking number.
var ErrMissingTrackingNumber = errors.New("label purchased without tracking number")

// ValidationError reports a malformed request. Nothing upstream was called.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Rejection is a bundling precondition violated by one member order.
type Rejection interface {
	error
	RejectedOrder() string
	Reason() string
}

// CustomerMismatchError is returned when an order belongs to another customer.
type CustomerMismatchError struct {
	OrderID    string
	CustomerID string
	Expected   string
}

func (e *CustomerMismatchError) Error() string {
	return fmt.Sprintf("order %s belongs to customer %s, expected %s", e.OrderID, e.CustomerID, e.Expected)
}

func (e *CustomerMismatchError) RejectedOrder() string { return e.OrderID }
func (e *CustomerMismatchError) Reason() string        { return "customer_mismatch" }

// AddressMismatchError is returned when an order ships to another address.
type AddressMismatchError struct {
	OrderID string
}

func (e *AddressMismatchError) Error() string {
	return fmt.Sprintf("order %s ships to a different address", e.OrderID)
}

func (e *AddressMismatchError) RejectedOrder() string { return e.OrderID }
func (e *AddressMismatchError) Reason() string        { return "address_mismatch" }

// MissingAddressError is returned when the first order has no shipping address.
type MissingAddressError struct {
	OrderID string
}

func (e *MissingAddressError) Error() string {
	return fmt.Sprintf("order %s has no shipping address", e.OrderID)
}

func (e *MissingAddressError) RejectedOrder() string { return e.OrderID }
func (e *MissingAddressError) Reason() string        { return "missing_address" }

// IncompatibleStatusError is returned when an order cannot be shipped in its status.
type IncompatibleStatusError struct {
	OrderID string
	Status  order.Status
}

func (e *IncompatibleStatusError) Error() string {
	return fmt.Sprintf("order %s has status %q and cannot be shipped", e.OrderID, e.Status)
}

func (e *IncompatibleStatusError) RejectedOrder() string { return e.OrderID }
func (e *IncompatibleStatusError) Reason() string        { return "incompatible_status" }

// LabelPurchaseError is returned when the label provider refuses or fails the
// purchase. StatusCode and Body are set when the provider answered.
type LabelPurchaseError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *LabelPurchaseError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("label purchase failed: upstream status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("label purchase failed: %v", e.Err)
	default:
		return "label purchase failed"
	}
}

func (e *LabelPurchaseError) Unwrap() error { return e.Err }

// OrderUpdateError records a failed member order update. It is collected into
// the result, never returned.
type OrderUpdateError struct {
	OrderID string
	Err     error
}

func (e *OrderUpdateError) Error() string {
	return fmt.Sprintf("update order %s: %v", e.OrderID, e.Err)
}

func (e *OrderUpdateError) Unwrap() error { return e.Err }

// DuplicateBundleError is returned when a label was already bought for the bundle.
type DuplicateBundleError struct {
	BundleID       ID
	TrackingNumber string
}

func (e *DuplicateBundleError) Error() string {
	return fmt.Sprintf("bundle %s already has label %s", e.BundleID, e.TrackingNumber)
}
