package upstream

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

// The marketplace API speaks snake_case JSON and is loose about numbers:
// weights, quantities and costs arrive as numbers, numeric strings or null.
// The dto types mirror the wire and are mapped to domain types in one place.

type orderDTO struct {
	ID             string
	CustomerID     string
	CustomerName   string
	Address        *addressDTO
	SellerID       string
	Status         string
	Items          []itemDTO
	BundleID       string
	Listing        *listingDTO
	TrackingNumber string
	LabelURL       string
	CreatedAt      time.Time
}

type addressDTO struct {
	Line1, Line2, City, State, PostalCode, Country string
}

type itemDTO struct {
	ID         string
	ListingID  string
	Title      string
	Quantity   float64
	Weight     weightDTO
	Dimensions dimensionsDTO
}

type listingDTO struct {
	ID         string
	Title      string
	Weight     weightDTO
	Dimensions dimensionsDTO
}

type weightDTO struct {
	Value float64
	Scale string
}

type dimensionsDTO struct {
	Length, Width, Height float64
}

func decodeOrder(data []byte) (*order.Order, error) {
	var dto orderDTO
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		// Some deployments wrap the order: {"order": {...}}.
		if key == "order" {
			return dto.decode(d)
		}
		return dto.decodeField(d, key)
	}); err != nil {
		return nil, err
	}
	o := dto.toDomain()
	return &o, nil
}

func decodeOrderList(data []byte) ([]order.Order, error) {
	var dtos []orderDTO
	each := func(d *jx.Decoder) error {
		var dto orderDTO
		if err := dto.decode(d); err != nil {
			return err
		}
		dtos = append(dtos, dto)
		return nil
	}

	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.Array:
		if err := d.Arr(each); err != nil {
			return nil, err
		}
	case jx.Object:
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if key == "orders" || key == "data" {
				if d.Next() == jx.Null {
					return d.Null()
				}
				return d.Arr(each)
			}
			return d.Skip()
		}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unexpected %s", d.Next())
	}

	orders := make([]order.Order, len(dtos))
	for i := range dtos {
		orders[i] = dtos[i].toDomain()
	}
	return orders, nil
}

func (o *orderDTO) decode(d *jx.Decoder) error {
	return d.Obj(o.decodeField)
}

func (o *orderDTO) decodeField(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "id":
		o.ID, err = decodeString(d)
	case "customer":
		err = o.decodeCustomer(d)
	case "user_id", "customer_id":
		if o.CustomerID == "" {
			o.CustomerID, err = decodeString(d)
		} else {
			err = d.Skip()
		}
	case "seller_id":
		o.SellerID, err = decodeString(d)
	case "status":
		o.Status, err = decodeString(d)
	case "items", "line_items":
		err = decodeNullable(d, func(d *jx.Decoder) error {
			return d.Arr(func(d *jx.Decoder) error {
				var it itemDTO
				if err := it.decode(d); err != nil {
					return err
				}
				o.Items = append(o.Items, it)
				return nil
			})
		})
	case "bundle_id":
		o.BundleID, err = decodeString(d)
	case "listing", "giveaway":
		err = decodeNullable(d, func(d *jx.Decoder) error {
			o.Listing = &listingDTO{}
			return o.Listing.decode(d)
		})
	case "tracking_number":
		o.TrackingNumber, err = decodeString(d)
	case "label_url":
		o.LabelURL, err = decodeString(d)
	case "created_at":
		var s string
		if s, err = decodeString(d); err == nil && s != "" {
			o.CreatedAt, err = time.Parse(time.RFC3339, s)
		}
	default:
		err = d.Skip()
	}
	return errors.Wrap(err, key)
}

func (o *orderDTO) decodeCustomer(d *jx.Decoder) error {
	return decodeNullable(d, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				o.CustomerID, err = decodeString(d)
			case "name":
				o.CustomerName, err = decodeString(d)
			case "shipping_address", "address":
				err = decodeNullable(d, func(d *jx.Decoder) error {
					o.Address = &addressDTO{}
					return o.Address.decode(d)
				})
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		})
	})
}

func (a *addressDTO) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "line1", "address1", "street":
			a.Line1, err = decodeString(d)
		case "line2", "address2":
			a.Line2, err = decodeString(d)
		case "city":
			a.City, err = decodeString(d)
		case "state", "region":
			a.State, err = decodeString(d)
		case "postal_code", "zip":
			a.PostalCode, err = decodeString(d)
		case "country":
			a.Country, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
}

func (it *itemDTO) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = decodeString(d)
		case "listing_id":
			it.ListingID, err = decodeString(d)
		case "title", "name":
			it.Title, err = decodeString(d)
		case "quantity":
			it.Quantity, err = decodeNumber(d)
		case "weight":
			err = it.Weight.decode(d)
		case "dimensions":
			err = it.Dimensions.decode(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
}

func (l *listingDTO) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			l.ID, err = decodeString(d)
		case "title", "name":
			l.Title, err = decodeString(d)
		case "shipping_profile":
			err = decodeNullable(d, func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "weight":
						return errors.Wrap(l.Weight.decode(d), key)
					case "dimensions":
						return errors.Wrap(l.Dimensions.decode(d), key)
					default:
						return d.Skip()
					}
				})
			})
		case "weight":
			err = l.Weight.decode(d)
		case "dimensions":
			err = l.Dimensions.decode(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
}

// decode accepts {"value": 2, "scale": "lb"} or a bare number of ounces.
func (w *weightDTO) decode(d *jx.Decoder) error {
	switch d.Next() {
	case jx.Object:
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "value":
				w.Value, err = decodeNumber(d)
			case "scale", "unit":
				w.Scale, err = decodeString(d)
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		})
	default:
		v, err := decodeNumber(d)
		if err != nil {
			return err
		}
		*w = weightDTO{Value: v, Scale: "oz"}
		return nil
	}
}

func (m *dimensionsDTO) decode(d *jx.Decoder) error {
	return decodeNullable(d, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "length":
				m.Length, err = decodeNumber(d)
			case "width":
				m.Width, err = decodeNumber(d)
			case "height":
				m.Height, err = decodeNumber(d)
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		})
	})
}

func (o orderDTO) toDomain() order.Order {
	out := order.Order{
		ID: o.ID,
		Customer: order.Customer{
			ID:   o.CustomerID,
			Name: o.CustomerName,
		},
		SellerID:       o.SellerID,
		Status:         order.Status(o.Status),
		BundleID:       o.BundleID,
		TrackingNumber: o.TrackingNumber,
		LabelURL:       o.LabelURL,
		CreatedAt:      o.CreatedAt,
	}
	if a := o.Address; a != nil {
		out.Customer.Address = &order.Address{
			Line1:      a.Line1,
			Line2:      a.Line2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
	}
	if l := o.Listing; l != nil {
		out.Listing = &order.Listing{
			ID:         l.ID,
			Title:      l.Title,
			Weight:     order.Weight{Value: l.Weight.Value, Scale: l.Weight.Scale},
			Dimensions: order.Dimensions{Length: l.Dimensions.Length, Width: l.Dimensions.Width, Height: l.Dimensions.Height},
		}
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, order.LineItem{
			ID:         it.ID,
			ListingID:  it.ListingID,
			Title:      it.Title,
			Quantity:   int(it.Quantity),
			Weight:     order.Weight{Value: it.Weight.Value, Scale: it.Weight.Scale},
			Dimensions: order.Dimensions{Length: it.Dimensions.Length, Width: it.Dimensions.Width, Height: it.Dimensions.Height},
		})
	}
	return out
}

func decodeLabelReceipt(data []byte) (*bundle.LabelReceipt, error) {
	var r bundle.LabelReceipt
	var field func(d *jx.Decoder, key string) error
	field = func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "label", "data":
			err = decodeNullable(d, func(d *jx.Decoder) error { return d.Obj(field) })
		case "tracking_number", "tracking_code":
			r.TrackingNumber, err = decodeString(d)
		case "label_url":
			r.LabelURL, err = decodeString(d)
		case "carrier":
			r.Carrier, err = decodeString(d)
		case "service":
			r.Service, err = decodeString(d)
		case "cost", "rate", "amount":
			r.Cost, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return nil, err
	}
	r.TrackingNumber = strings.TrimSpace(r.TrackingNumber)
	return &r, nil
}

func encodePatch(p order.Patch) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if p.TrackingNumber != "" {
			e.Field("tracking_number", func(e *jx.Encoder) { e.Str(p.TrackingNumber) })
		}
		if p.LabelURL != "" {
			e.Field("label_url", func(e *jx.Encoder) { e.Str(p.LabelURL) })
		}
		if p.Status != "" {
			e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
		}
		if p.BundleID != "" {
			e.Field("bundle_id", func(e *jx.Encoder) { e.Str(p.BundleID) })
		}
	})
	return e.Bytes()
}

func encodeLabelRequest(req bundle.LabelRequest) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("rate_id", func(e *jx.Encoder) { e.Str(req.RateID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(req.OrderRef) })
		if req.Service != "" {
			e.Field("service", func(e *jx.Encoder) { e.Str(req.Service) })
		}
	})
	return e.Bytes()
}

func decodeNullable(d *jx.Decoder, f func(d *jx.Decoder) error) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return f(d)
}

// decodeString reads a string, tolerating null and bare numbers.
func decodeString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Null:
		return "", d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

// decodeNumber reads a number, tolerating null and numeric strings.
func decodeNumber(d *jx.Decoder) (float64, error) {
	switch d.Next() {
	case jx.Number:
		return d.Float64()
	case jx.Null:
		return 0, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %q", s)
		}
		return v, nil
	default:
		return 0, errors.Errorf("unexpected %s", d.Next())
	}
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var s string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		s = n.String()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		s = strings.TrimSpace(v)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", d.Next())
	}
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %q", s)
	}
	return v, nil
}
