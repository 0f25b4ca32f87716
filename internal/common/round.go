package common

import (
	"math"

	"github.com/shopspring/decimal"
)

// MetricPlaces is the number of decimal places every derived metric is
// rounded to.
const MetricPlaces = 4

// Round rounds v half away from zero to MetricPlaces. Non-finite values
// are returned unchanged.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return RoundDecimal(decimal.NewFromFloat(v))
}

// RoundDecimal rounds d to MetricPlaces and converts it to a float64.
func RoundDecimal(d decimal.Decimal) float64 {
	f, _ := d.Round(MetricPlaces).Float64()
	return f
}
