// Package bundle ships several orders of one customer under a single label.
//
// A bundle purchase runs Validating, Aggregating, PurchasingLabel and
// UpdatingOrders in that order. The first three exit with an error and leave
// no side effects; once the label is bought every member order is updated
// and the per-order outcome is reported instead of rolled back.
package bundle

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
)

// ID identifies a bundle. It is derived from the member order ids, so the
// same set of orders always yields the same ID regardless of request order.
type ID string

// NewID builds the bundle ID for a set of order ids.
func NewID(orderIDs []string) ID {
	sorted := slices.Clone(orderIDs)
	slices.Sort(sorted)
	return ID("bundle_" + strings.Join(sorted, "_"))
}

// Request is the input of a bundle label purchase.
type Request struct {
	OrderIDs []string
	RateID   string
	Service  string
}

// RepairRequest re-applies a purchased label to orders without buying a new one.
// When TrackingNumber is empty it is resolved from the ledger.
type RepairRequest struct {
	OrderIDs       []string
	TrackingNumber string
	LabelURL       string
}

// Parcel is the combined physical description of a bundle.
type Parcel struct {
	WeightOz float64
	Length   float64
	Width    float64
	Height   float64
	// Weight and Dimensions are the display forms, e.g. "16 oz" and "10x6x5".
	Weight     string
	Dimensions string
}

// LabelRequest is sent to the label provider.
type LabelRequest struct {
	RateID  string
	Service string
	// OrderRef is the bundle ID, used upstream as the shipment reference.
	OrderRef string
	// Parcel is the aggregate the rate was quoted for. The purchase endpoint
	// takes only the rate id, so providers do not transmit it.
	Parcel Parcel
}

// LabelReceipt is a purchased label.
type LabelReceipt struct {
	TrackingNumber string
	LabelURL       string
	Carrier        string
	Service        string
	Cost           decimal.Decimal
}

// LabelProvider buys shipping labels.
type LabelProvider interface {
	PurchaseLabel(ctx context.Context, ac auth.Context, req LabelRequest) (*LabelReceipt, error)
}

// Outcome classifies the order update fan-out that follows a label purchase.
type Outcome string

const (
	OutcomeAllSucceeded       Outcome = "all_succeeded"
	OutcomePartiallySucceeded Outcome = "partially_succeeded"
	OutcomeAllFailed          Outcome = "all_failed"
)

// Classify derives the outcome from per-order update results.
func Classify(updates []UpdateResult) Outcome {
	ok := 0
	for _, u := range updates {
		if u.Success {
			ok++
		}
	}
	switch {
	case ok == len(updates):
		return OutcomeAllSucceeded
	case ok == 0:
		return OutcomeAllFailed
	default:
		return OutcomePartiallySucceeded
	}
}

// UpdateResult is the outcome of updating one member order.
type UpdateResult struct {
	OrderID string
	Success bool
	Error   string
}

// Result is returned to the HTTP layer after the label has been purchased.
type Result struct {
	Success        bool
	Message        string
	Outcome        Outcome
	BundleID       ID
	TrackingNumber string
	LabelURL       string
	Cost           decimal.Decimal
	Carrier        string
	Service        string
	AffectedOrders []string
	Updates        []UpdateResult
	Parcel         Parcel
}

// FailedOrders returns the ids of orders whose update failed.
func (r *Result) FailedOrders() []string {
	var failed []string
	for _, u := range r.Updates {
		if !u.Success {
			failed = append(failed, u.OrderID)
		}
	}
	return failed
}

// Preview is a validated, aggregated bundle that has not been purchased.
type Preview struct {
	BundleID   ID
	CustomerID string
	OrderIDs   []string
	Parcel     Parcel
}

// ErrEntryNotFound is returned by a Ledger when no label is recorded for a bundle.
var ErrEntryNotFound = errors.New("ledger entry not found")

// Entry is a purchased label as recorded in the ledger.
type Entry struct {
	ID             string
	BundleID       ID
	TrackingNumber string
	LabelURL       string
	Carrier        string
	Service        string
	Cost           decimal.Decimal
	OrderIDs       []string
	Outcome        Outcome
	FailedOrders   []string
	Weight         string
	Dimensions     string
	CreatedAt      time.Time
}

// Ledger records purchased labels so orphaned labels can be recovered.
type Ledger interface {
	// Record inserts the entry, or refreshes outcome and failed orders when
	// the bundle already has an entry with the same tracking number.
	Record(ctx context.Context, e Entry) error
	Latest(ctx context.Context, id ID) (*Entry, error)
}

// EventKind distinguishes published outcome events.
type EventKind string

const (
	EventPurchased EventKind = "label_purchased"
	EventRepaired  EventKind = "label_repaired"
)

// Event is published after every purchase or repair.
type Event struct {
	Kind       EventKind
	Result     *Result
	OccurredAt time.Time
}

// Publisher delivers outcome events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
