package usecase

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/vitos/ha_trader/internal/domain"
)

// RoundPrice rounds a price to the instrument's pip precision.
func RoundPrice(price float64, inst domain.InstrumentMeta) float64 {
	return RoundTo(price, inst.PriceDecimals())
}

// RoundTo rounds half away from zero at the given number of decimals.
func RoundTo(v float64, decimals int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(decimals).Float64()
	return f
}

// FloorUnits truncates a signed quantity toward zero at the trade-unit precision.
func FloorUnits(units float64, precision int) float64 {
	if math.IsNaN(units) || math.IsInf(units, 0) {
		return 0
	}
	d := decimal.NewFromFloat(units)
	if precision >= 0 {
		d = d.Truncate(int32(precision))
	} else {
		shift := int32(precision)
		d = d.Shift(shift).Truncate(0).Shift(-shift)
	}
	f, _ := d.Float64()
	return f
}
