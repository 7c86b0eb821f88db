// Package money rounds engine figures at the reporting boundary. Engine
// arithmetic stays in float64; only values handed to callers are rounded.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v to whole currency units, halves away from zero.
func Round(v float64) float64 {
	return RoundTo(v, 0)
}

// RoundTo rounds v to the given number of decimal places. Non-finite values
// are returned unchanged.
func RoundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Sum adds values exactly and returns the float64 nearest the total.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}
