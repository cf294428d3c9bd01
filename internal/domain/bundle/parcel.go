package bundle

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xenking/marketplace-bff/internal/domain/order"
)

// Floor values used when an aggregate is zero. The rate and label APIs
// reject zero weights and dimensions.
const (
	DefaultWeightOz = 8
	DefaultLength   = 12
	DefaultWidth    = 12
	DefaultHeight   = 4
)

// Aggregate combines validated orders into one parcel: weights are summed in
// ounces, length and width take the maximum, heights stack.
func Aggregate(orders []order.Order) Parcel {
	var p Parcel
	for _, o := range orders {
		p.WeightOz += orderWeight(o)

		d := orderDimensions(o)
		p.Length = math.Max(p.Length, nonNegative(d.Length))
		p.Width = math.Max(p.Width, nonNegative(d.Width))
		p.Height += nonNegative(d.Height)
	}

	p.WeightOz = roundOrDefault(p.WeightOz, DefaultWeightOz)
	p.Length = roundOrDefault(p.Length, DefaultLength)
	p.Width = roundOrDefault(p.Width, DefaultWidth)
	p.Height = roundOrDefault(p.Height, DefaultHeight)

	p.Weight = formatNumber(p.WeightOz) + " oz"
	p.Dimensions = fmt.Sprintf("%sx%sx%s", formatNumber(p.Length), formatNumber(p.Width), formatNumber(p.Height))
	return p
}

// orderWeight prefers the listing's shipping profile and falls back to the
// line items. Quantities below one count as one.
func orderWeight(o order.Order) float64 {
	if o.Listing != nil && o.Listing.Weight.Value > 0 {
		return o.Listing.Weight.Ounces()
	}

	var total float64
	for _, item := range o.Items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		total += nonNegative(item.Weight.Ounces()) * float64(qty)
	}
	return total
}

func orderDimensions(o order.Order) order.Dimensions {
	if o.Listing != nil && !o.Listing.Dimensions.IsZero() {
		return o.Listing.Dimensions
	}
	if len(o.Items) > 0 {
		return o.Items[0].Dimensions
	}
	return order.Dimensions{}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// roundOrDefault rounds to two decimals. Positive values never round to
// zero; only a true zero takes the default.
func roundOrDefault(v, def float64) float64 {
	switch r := round2(v); {
	case v == 0:
		return def
	case r == 0:
		return 0.01
	default:
		return r
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
