package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
)

var (
	// ErrNotFound is returned when the marketplace has no order with the given id.
	ErrNotFound = errors.New("order not found")
	// ErrUnauthorized is returned when the marketplace rejects the forwarded token.
	ErrUnauthorized = errors.New("unauthorized")
)

// NotFoundError names the order that could not be resolved.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// Is reports NotFoundError as ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Status is the marketplace order lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusUnfulfilled Status = "unfulfilled"
	StatusReadyToShip Status = "ready_to_ship"
	StatusShipped     Status = "shipped"
	StatusDelivered   Status = "delivered"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
)

// Order is a marketplace purchase record as seen by the BFF.
type Order struct {
	ID       string
	Customer Customer
	SellerID string
	Status   Status
	Items    []LineItem
	// BundleID is empty for standalone orders.
	BundleID string
	// Listing is set when the order references a single listing or giveaway
	// whose shipping profile supersedes the line items.
	Listing        *Listing
	TrackingNumber string
	LabelURL       string
	CreatedAt      time.Time
}

// Customer is the buyer of an order.
type Customer struct {
	ID      string
	Name    string
	Address *Address
}

// Address is a shipping address.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// SameDestination reports whether two addresses are equal for bundling:
// line 1, city, state and postal code must match exactly.
func (a *Address) SameDestination(b *Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Line1 == b.Line1 &&
		a.City == b.City &&
		a.State == b.State &&
		a.PostalCode == b.PostalCode
}

// Listing is the catalog entry an order was placed against.
type Listing struct {
	ID         string
	Title      string
	Weight     Weight
	Dimensions Dimensions
}

// LineItem is a single purchased item.
type LineItem struct {
	ID         string
	ListingID  string
	Title      string
	Quantity   int
	Weight     Weight
	Dimensions Dimensions
}

// Weight is a physical weight in the unit the marketplace reported.
type Weight struct {
	Value float64
	Scale string
}

// Ounces normalizes the weight to ounces. Unknown scales are taken as ounces.
func (w Weight) Ounces() float64 {
	switch strings.ToLower(strings.TrimSpace(w.Scale)) {
	case "lb", "lbs", "pound", "pounds":
		return w.Value * 16
	case "kg", "kgs", "kilogram", "kilograms":
		return w.Value * 35.27396195
	case "g", "gram", "grams":
		return w.Value / 28.349523125
	default:
		return w.Value
	}
}

// Dimensions are parcel dimensions in inches.
type Dimensions struct {
	Length float64
	Width  float64
	Height float64
}

// IsZero reports whether no axis is set.
func (d Dimensions) IsZero() bool {
	return d.Length == 0 && d.Width == 0 && d.Height == 0
}

// Patch is a partial order update. Empty fields are left untouched.
type Patch struct {
	TrackingNumber string
	LabelURL       string
	Status         Status
	BundleID       string
}

// Store is the marketplace order API.
type Store interface {
	Get(ctx context.Context, ac auth.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, ac auth.Context, userID string) ([]Order, error)
	Update(ctx context.Context, ac auth.Context, id string, patch Patch) (*Order, error)
}
