package domain

import "math"

// InstrumentMeta holds the broker's static facts about a tradable instrument.
type InstrumentMeta struct {
	Name                        string  `json:"name"`
	Type                        string  `json:"type"`
	DisplayName                 string  `json:"display_name"`
	PipLocationPrecision        int     `json:"pip_location_precision"`
	DisplayPrecision            int     `json:"display_precision"`
	TradeUnitsPrecision         int     `json:"trade_units_precision"`
	MarginRate                  float64 `json:"margin_rate"`
	MinimumTrailingStopDistance float64 `json:"minimum_trailing_stop_distance"`
	MaximumTrailingStopDistance float64 `json:"maximum_trailing_stop_distance"`
}

// PipLocation is 10^PipLocationPrecision, e.g. 0.0001 for EUR_USD.
func (i InstrumentMeta) PipLocation() float64 {
	return math.Pow(10, float64(i.PipLocationPrecision))
}

// PriceDecimals is the number of decimals prices are rounded to.
func (i InstrumentMeta) PriceDecimals() int32 {
	if i.PipLocationPrecision < 0 {
		return int32(-i.PipLocationPrecision)
	}
	return int32(i.PipLocationPrecision)
}
