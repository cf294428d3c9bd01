package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

const maxRequestBody = 1 << 20

func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return nil, &bundle.ValidationError{Field: "body", Reason: "empty request body"}
	}
	return jx.DecodeBytes(data), nil
}

func decodePurchaseRequest(r *http.Request) (bundle.Request, error) {
	var req bundle.Request
	d, err := readBody(r)
	if err != nil {
		return req, err
	}
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "orderIds":
			ids, err := decodeStrings(d)
			req.OrderIDs = ids
			return err
		case "rateId":
			v, err := decodeOptString(d)
			req.RateID = v
			return err
		case "service":
			v, err := decodeOptString(d)
			req.Service = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, malformed(err)
	}
	return req, nil
}

func decodePreviewRequest(r *http.Request) ([]string, error) {
	var ids []string
	d, err := readBody(r)
	if err != nil {
		return nil, err
	}
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "orderIds" {
			return d.Skip()
		}
		v, err := decodeStrings(d)
		ids = v
		return err
	})
	if err != nil {
		return nil, malformed(err)
	}
	return ids, nil
}

func decodeRepairRequest(r *http.Request) (bundle.RepairRequest, error) {
	var req bundle.RepairRequest
	d, err := readBody(r)
	if err != nil {
		return req, err
	}
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderIds":
			req.OrderIDs, err = decodeStrings(d)
		case "trackingNumber":
			req.TrackingNumber, err = decodeOptString(d)
		case "labelUrl":
			req.LabelURL, err = decodeOptString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, malformed(err)
	}
	return req, nil
}

func malformed(err error) error {
	var vErr *bundle.ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	return &bundle.ValidationError{Field: "body", Reason: err.Error()}
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		v, err := d.Str()
		out = append(out, v)
		return err
	})
	return out, err
}

func decodeOptString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// encodeResult renders the BundleResult: success and message at the top
// level, label and update details under data.
func encodeResult(r *bundle.Result) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(r.Success) })
		e.Field("message", func(e *jx.Encoder) { e.Str(r.Message) })
		e.Field("outcome", func(e *jx.Encoder) { e.Str(string(r.Outcome)) })
		e.Field("bundleId", func(e *jx.Encoder) { e.Str(string(r.BundleID)) })
		e.Field("failedOrders", func(e *jx.Encoder) { encodeStrings(e, r.FailedOrders()) })
		e.Field("data", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("trackingNumber", func(e *jx.Encoder) { e.Str(r.TrackingNumber) })
				e.Field("labelUrl", func(e *jx.Encoder) { e.Str(r.LabelURL) })
				e.Field("cost", func(e *jx.Encoder) { e.Str(r.Cost.StringFixed(2)) })
				e.Field("carrier", func(e *jx.Encoder) { e.Str(r.Carrier) })
				e.Field("service", func(e *jx.Encoder) { e.Str(r.Service) })
				e.Field("affectedOrders", func(e *jx.Encoder) { encodeStrings(e, r.AffectedOrders) })
				e.Field("perOrderUpdateResults", func(e *jx.Encoder) { encodeUpdates(e, r.Updates) })
				e.Field("aggregatedWeight", func(e *jx.Encoder) { e.Str(r.Parcel.Weight) })
				e.Field("aggregatedDimensions", func(e *jx.Encoder) { e.Str(r.Parcel.Dimensions) })
			})
		})
	})
	return e.Bytes()
}

func encodeUpdates(e *jx.Encoder, updates []bundle.UpdateResult) {
	e.Arr(func(e *jx.Encoder) {
		for _, u := range updates {
			e.Obj(func(e *jx.Encoder) {
				e.Field("orderId", func(e *jx.Encoder) { e.Str(u.OrderID) })
				e.Field("success", func(e *jx.Encoder) { e.Bool(u.Success) })
				if u.Error != "" {
					e.Field("error", func(e *jx.Encoder) { e.Str(u.Error) })
				}
			})
		}
	})
}

func encodePreview(p *bundle.Preview) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("bundleId", func(e *jx.Encoder) { e.Str(string(p.BundleID)) })
		e.Field("customerId", func(e *jx.Encoder) { e.Str(p.CustomerID) })
		e.Field("orderIds", func(e *jx.Encoder) { encodeStrings(e, p.OrderIDs) })
		e.Field("weight", func(e *jx.Encoder) { e.Str(p.Parcel.Weight) })
		e.Field("dimensions", func(e *jx.Encoder) { e.Str(p.Parcel.Dimensions) })
		e.Field("parcel", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("weightOz", func(e *jx.Encoder) { e.Float64(p.Parcel.WeightOz) })
				e.Field("length", func(e *jx.Encoder) { e.Float64(p.Parcel.Length) })
				e.Field("width", func(e *jx.Encoder) { e.Float64(p.Parcel.Width) })
				e.Field("height", func(e *jx.Encoder) { e.Float64(p.Parcel.Height) })
			})
		})
	})
	return e.Bytes()
}

func encodeEntry(en *bundle.Entry) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(en.ID) })
		e.Field("bundleId", func(e *jx.Encoder) { e.Str(string(en.BundleID)) })
		e.Field("trackingNumber", func(e *jx.Encoder) { e.Str(en.TrackingNumber) })
		e.Field("labelUrl", func(e *jx.Encoder) { e.Str(en.LabelURL) })
		e.Field("carrier", func(e *jx.Encoder) { e.Str(en.Carrier) })
		e.Field("service", func(e *jx.Encoder) { e.Str(en.Service) })
		e.Field("cost", func(e *jx.Encoder) { e.Str(en.Cost.StringFixed(2)) })
		e.Field("orderIds", func(e *jx.Encoder) { encodeStrings(e, en.OrderIDs) })
		e.Field("outcome", func(e *jx.Encoder) { e.Str(string(en.Outcome)) })
		e.Field("failedOrders", func(e *jx.Encoder) { encodeStrings(e, en.FailedOrders) })
		e.Field("weight", func(e *jx.Encoder) { e.Str(en.Weight) })
		e.Field("dimensions", func(e *jx.Encoder) { e.Str(en.Dimensions) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(en.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}

func encodeCandidates(orderID string, orders []order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(orderID) })
		e.Field("candidates", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, o := range orders {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
						e.Field("customerId", func(e *jx.Encoder) { e.Str(o.Customer.ID) })
						e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
						e.Field("itemCount", func(e *jx.Encoder) { e.Int(len(o.Items)) })
						if o.BundleID != "" {
							e.Field("bundleId", func(e *jx.Encoder) { e.Str(o.BundleID) })
						}
						if !o.CreatedAt.IsZero() {
							e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
						}
					})
				}
			})
		})
	})
	return e.Bytes()
}

func encodeStrings(e *jx.Encoder, v []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range v {
			e.Str(s)
		}
	})
}

type errorBody struct {
	Message        string
	OrderID        string
	Reason         string
	TrackingNumber string
	Upstream       int
}

func writeError(w http.ResponseWriter, status int, b errorBody) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(b.Message) })
		if b.OrderID != "" {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(b.OrderID) })
		}
		if b.Reason != "" {
			e.Field("reason", func(e *jx.Encoder) { e.Str(b.Reason) })
		}
		if b.TrackingNumber != "" {
			e.Field("trackingNumber", func(e *jx.Encoder) { e.Str(b.TrackingNumber) })
		}
		if b.Upstream != 0 {
			e.Field("upstreamStatus", func(e *jx.Encoder) { e.Int(b.Upstream) })
		}
	})
	writeJSON(w, status, e.Bytes())
}
