package bundle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

const instrumentationName = "github.com/xenking/marketplace-bff/internal/domain/bundle"

// Options holds the optional collaborators and limits of a Coordinator.
type Options struct {
	// Ledger records purchased labels. Nil disables recording and
	// ledger-based repair.
	Ledger Ledger
	// Guard rejects repeated purchases for the same bundle. Nil disables it.
	Guard *Guard
	// Events receives outcome events. Nil disables publishing.
	Events Publisher
	// MaxOrders caps the bundle size. Zero means 50.
	MaxOrders int
	// Concurrency caps parallel upstream calls per fan-out. Zero means 8.
	Concurrency int

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Coordinator runs bundle label purchases.
type Coordinator struct {
	orders    order.Store
	labels    LabelProvider
	validator *Validator
	ledger    Ledger
	guard     *Guard
	events    Publisher

	maxOrders   int
	concurrency int
	now         func() time.Time

	tracer    trace.Tracer
	purchased metric.Int64Counter
	updates   metric.Int64Counter
	rejected  metric.Int64Counter
}

// NewCoordinator creates a Coordinator over the order store and label provider.
func NewCoordinator(orders order.Store, labels LabelProvider, opts Options) (*Coordinator, error) {
	if opts.MaxOrders <= 0 {
		opts.MaxOrders = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}

	c := &Coordinator{
		orders:      orders,
		labels:      labels,
		validator:   NewValidator(orders, opts.Concurrency),
		ledger:      opts.Ledger,
		guard:       opts.Guard,
		events:      opts.Events,
		maxOrders:   opts.MaxOrders,
		concurrency: opts.Concurrency,
		now:         time.Now,
		tracer:      opts.TracerProvider.Tracer(instrumentationName),
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	var err error
	if c.purchased, err = meter.Int64Counter("bundle.labels.purchased",
		metric.WithDescription("Labels purchased for order bundles"),
	); err != nil {
		return nil, errors.Wrap(err, "purchased counter")
	}
	if c.updates, err = meter.Int64Counter("bundle.order_updates",
		metric.WithDescription("Member order updates after a label purchase"),
	); err != nil {
		return nil, errors.Wrap(err, "updates counter")
	}
	if c.rejected, err = meter.Int64Counter("bundle.rejected",
		metric.WithDescription("Bundle requests rejected before any label was bought"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}

	return c, nil
}

// Purchase validates the orders, aggregates the parcel, buys one label and
// applies it to every order. An error means no label was bought. Once the
// label is bought the result is always returned, even when every order
// update failed.
func (c *Coordinator) Purchase(ctx context.Context, ac auth.Context, req Request) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "bundle.Purchase")
	defer span.End()

	result, err := c.purchase(ctx, ac, req)
	if err != nil {
		c.reject(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("bundle.id", string(result.BundleID)),
		attribute.String("bundle.outcome", string(result.Outcome)),
	)
	return result, nil
}

func (c *Coordinator) purchase(ctx context.Context, ac auth.Context, req Request) (*Result, error) {
	if err := c.checkOrderIDs(req.OrderIDs); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.RateID) == "" {
		return nil, &ValidationError{Field: "rateId", Reason: "required"}
	}

	lg := zctx.From(ctx)
	id := NewID(req.OrderIDs)

	orders, err := c.validate(ctx, ac, req.OrderIDs)
	if err != nil {
		return nil, err
	}
	parcel := c.aggregate(ctx, orders)

	if c.guard != nil {
		existing, err := c.guard.Existing(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "check duplicate bundle")
		}
		if existing != nil {
			return nil, &DuplicateBundleError{BundleID: id, TrackingNumber: existing.TrackingNumber}
		}
	}

	receipt, err := c.purchaseLabel(ctx, ac, LabelRequest{
		RateID:   req.RateID,
		Service:  req.Service,
		OrderRef: string(id),
		Parcel:   parcel,
	})
	if err != nil {
		return nil, err
	}
	c.purchased.Add(ctx, 1)
	if c.guard != nil {
		c.guard.Add(id)
	}
	lg.Info("Bundle label purchased",
		zap.String("bundle_id", string(id)),
		zap.String("tracking_number", receipt.TrackingNumber),
		zap.Strings("orders", req.OrderIDs),
		zap.String("weight", parcel.Weight),
		zap.String("dimensions", parcel.Dimensions),
	)

	// The label cost is already incurred, so the fan-out must finish even if
	// the caller goes away.
	updateCtx := context.WithoutCancel(ctx)
	updates := c.applyLabel(updateCtx, ac, req.OrderIDs, order.Patch{
		TrackingNumber: receipt.TrackingNumber,
		LabelURL:       receipt.LabelURL,
		Status:         order.StatusReadyToShip,
		BundleID:       string(id),
	})

	service := receipt.Service
	if service == "" {
		service = req.Service
	}
	result := newResult(id, req.OrderIDs, updates, parcel)
	result.TrackingNumber = receipt.TrackingNumber
	result.LabelURL = receipt.LabelURL
	result.Cost = receipt.Cost
	result.Carrier = receipt.Carrier
	result.Service = service

	c.record(updateCtx, result)
	c.publish(updateCtx, EventPurchased, result)
	return result, nil
}

// Preview validates and aggregates a bundle without buying anything.
func (c *Coordinator) Preview(ctx context.Context, ac auth.Context, orderIDs []string) (*Preview, error) {
	ctx, span := c.tracer.Start(ctx, "bundle.Preview")
	defer span.End()

	if err := c.checkOrderIDs(orderIDs); err != nil {
		return nil, err
	}
	orders, err := c.validate(ctx, ac, orderIDs)
	if err != nil {
		return nil, err
	}
	return &Preview{
		BundleID:   NewID(orderIDs),
		CustomerID: orders[0].Customer.ID,
		OrderIDs:   orderIDs,
		Parcel:     c.aggregate(ctx, orders),
	}, nil
}

// Repair applies an already purchased label to the given orders. It is the
// recovery path after a partially or wholly failed update fan-out and never
// buys a label.
func (c *Coordinator) Repair(ctx context.Context, ac auth.Context, req RepairRequest) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "bundle.Repair")
	defer span.End()

	if err := c.checkOrderIDs(req.OrderIDs); err != nil {
		return nil, err
	}
	id := NewID(req.OrderIDs)

	receipt := LabelReceipt{TrackingNumber: req.TrackingNumber, LabelURL: req.LabelURL}
	var parcel Parcel
	if receipt.TrackingNumber == "" {
		if c.ledger == nil {
			return nil, &ValidationError{Field: "trackingNumber", Reason: "required when no ledger is configured"}
		}
		e, err := c.ledger.Latest(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve label for %s", id)
		}
		receipt = LabelReceipt{
			TrackingNumber: e.TrackingNumber,
			LabelURL:       e.LabelURL,
			Carrier:        e.Carrier,
			Service:        e.Service,
			Cost:           e.Cost,
		}
		parcel = Parcel{Weight: e.Weight, Dimensions: e.Dimensions}
	}

	updateCtx := context.WithoutCancel(ctx)
	updates := c.applyLabel(updateCtx, ac, req.OrderIDs, order.Patch{
		TrackingNumber: receipt.TrackingNumber,
		LabelURL:       receipt.LabelURL,
		Status:         order.StatusReadyToShip,
		BundleID:       string(id),
	})

	result := newResult(id, req.OrderIDs, updates, parcel)
	result.TrackingNumber = receipt.TrackingNumber
	result.LabelURL = receipt.LabelURL
	result.Cost = receipt.Cost
	result.Carrier = receipt.Carrier
	result.Service = receipt.Service

	zctx.From(ctx).Info("Bundle label re-applied",
		zap.String("bundle_id", string(id)),
		zap.String("tracking_number", receipt.TrackingNumber),
		zap.String("outcome", string(result.Outcome)),
	)

	c.record(updateCtx, result)
	c.publish(updateCtx, EventRepaired, result)
	return result, nil
}

// Candidates lists the customer's other orders that could join a bundle with
// the given order.
func (c *Coordinator) Candidates(ctx context.Context, ac auth.Context, orderID string) ([]order.Order, error) {
	ctx, span := c.tracer.Start(ctx, "bundle.Candidates")
	defer span.End()

	seed, err := c.orders.Get(ctx, ac, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch order %s", orderID)
	}
	if seed.Customer.Address == nil {
		return nil, &MissingAddressError{OrderID: seed.ID}
	}

	all, err := c.orders.ListByUser(ctx, ac, seed.Customer.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of %s", seed.Customer.ID)
	}

	var candidates []order.Order
	for _, o := range all {
		if o.ID == seed.ID || o.TrackingNumber != "" {
			continue
		}
		if CheckCompatible([]order.Order{*seed, o}) != nil {
			continue
		}
		candidates = append(candidates, o)
	}
	return candidates, nil
}

// Latest returns the recorded label of a bundle.
func (c *Coordinator) Latest(ctx context.Context, id ID) (*Entry, error) {
	if c.ledger == nil {
		return nil, ErrEntryNotFound
	}
	return c.ledger.Latest(ctx, id)
}

func (c *Coordinator) checkOrderIDs(ids []string) error {
	if len(ids) == 0 {
		return &ValidationError{Field: "orderIds", Reason: "at least one order is required"}
	}
	if len(ids) > c.maxOrders {
		return &ValidationError{Field: "orderIds", Reason: fmt.Sprintf("at most %d orders per bundle", c.maxOrders)}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return &ValidationError{Field: "orderIds", Reason: "blank order id"}
		}
		if _, ok := seen[id]; ok {
			return &ValidationError{Field: "orderIds", Reason: fmt.Sprintf("duplicate order id %s", id)}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (c *Coordinator) validate(ctx context.Context, ac auth.Context, ids []string) ([]order.Order, error) {
	ctx, span := c.tracer.Start(ctx, "bundle.Validate")
	defer span.End()

	orders, err := c.validator.Validate(ctx, ac, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return orders, nil
}

func (c *Coordinator) aggregate(ctx context.Context, orders []order.Order) Parcel {
	_, span := c.tracer.Start(ctx, "bundle.Aggregate")
	defer span.End()

	p := Aggregate(orders)
	span.SetAttributes(
		attribute.Float64("parcel.weight_oz", p.WeightOz),
		attribute.String("parcel.dimensions", p.Dimensions),
	)
	return p
}

func (c *Coordinator) purchaseLabel(ctx context.Context, ac auth.Context, req LabelRequest) (*LabelReceipt, error) {
	ctx, span := c.tracer.Start(ctx, "bundle.PurchaseLabel")
	defer span.End()

	receipt, err := c.labels.PurchaseLabel(ctx, ac, req)
	if err != nil {
		var lpErr *LabelPurchaseError
		if !errors.As(err, &lpErr) {
			err = &LabelPurchaseError{Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if receipt == nil || strings.TrimSpace(receipt.TrackingNumber) == "" {
		span.SetStatus(codes.Error, ErrMissingTrackingNumber.Error())
		return nil, ErrMissingTrackingNumber
	}
	return receipt, nil
}

// applyLabel updates every order independently. It never stops early: each
// failure is captured in its own UpdateResult.
func (c *Coordinator) applyLabel(ctx context.Context, ac auth.Context, ids []string, patch order.Patch) []UpdateResult {
	ctx, span := c.tracer.Start(ctx, "bundle.UpdateOrders")
	defer span.End()

	lg := zctx.From(ctx)
	results := make([]UpdateResult, len(ids))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if _, err := c.orders.Update(ctx, ac, id, patch); err != nil {
				uErr := &OrderUpdateError{OrderID: id, Err: err}
				lg.Warn("Order update failed",
					zap.String("order_id", id),
					zap.String("tracking_number", patch.TrackingNumber),
					zap.Error(err),
				)
				results[i] = UpdateResult{OrderID: id, Error: uErr.Error()}
				c.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
				return nil
			}
			results[i] = UpdateResult{OrderID: id, Success: true}
			c.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func newResult(id ID, orderIDs []string, updates []UpdateResult, parcel Parcel) *Result {
	r := &Result{
		Outcome:        Classify(updates),
		BundleID:       id,
		AffectedOrders: orderIDs,
		Updates:        updates,
		Parcel:         parcel,
	}
	failed := len(r.FailedOrders())
	switch r.Outcome {
	case OutcomeAllSucceeded:
		r.Success = true
		r.Message = fmt.Sprintf("Label purchased and applied to %d orders", len(updates))
	case OutcomePartiallySucceeded:
		r.Message = fmt.Sprintf("Label purchased but %d of %d order updates failed", failed, len(updates))
	case OutcomeAllFailed:
		r.Message = fmt.Sprintf("Label purchased but all %d order updates failed", len(updates))
	}
	return r
}

func (c *Coordinator) record(ctx context.Context, r *Result) {
	if c.ledger == nil {
		return
	}
	err := c.ledger.Record(ctx, Entry{
		ID:             uuid.NewString(),
		BundleID:       r.BundleID,
		TrackingNumber: r.TrackingNumber,
		LabelURL:       r.LabelURL,
		Carrier:        r.Carrier,
		Service:        r.Service,
		Cost:           r.Cost,
		OrderIDs:       r.AffectedOrders,
		Outcome:        r.Outcome,
		FailedOrders:   r.FailedOrders(),
		Weight:         r.Parcel.Weight,
		Dimensions:     r.Parcel.Dimensions,
		CreatedAt:      c.now(),
	})
	if err != nil {
		zctx.From(ctx).Error("Record bundle label",
			zap.String("bundle_id", string(r.BundleID)),
			zap.String("tracking_number", r.TrackingNumber),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) publish(ctx context.Context, kind EventKind, r *Result) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, Event{Kind: kind, Result: r, OccurredAt: c.now()}); err != nil {
		zctx.From(ctx).Warn("Publish bundle event",
			zap.String("bundle_id", string(r.BundleID)),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) reject(ctx context.Context, err error) {
	reason := "error"
	var (
		rej   Rejection
		vErr  *ValidationError
		lpErr *LabelPurchaseError
		dErr  *DuplicateBundleError
	)
	switch {
	case errors.As(err, &rej):
		reason = rej.Reason()
	case errors.As(err, &vErr):
		reason = "invalid_request"
	case errors.Is(err, order.ErrNotFound):
		reason = "not_found"
	case errors.As(err, &lpErr):
		reason = "label_purchase_failed"
	case errors.Is(err, ErrMissingTrackingNumber):
		reason = "missing_tracking_number"
	case errors.As(err, &dErr):
		reason = "duplicate"
	}
	c.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
