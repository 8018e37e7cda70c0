package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means candles, prices or positions could not be fetched; the pair's tick is abandoned.
	ErrNoData = errors.New("no data")
	// ErrUnknownPair means a pair was requested that is not configured.
	ErrUnknownPair = errors.New("unknown pair")
	// ErrInstrumentMissing means the broker did not describe a configured pair.
	ErrInstrumentMissing = errors.New("instrument metadata missing")
	// ErrMalformedInstrument means an instrument description lacked required fields.
	ErrMalformedInstrument = errors.New("malformed instrument")
	// ErrOrderRejected wraps every broker-side order refusal.
	ErrOrderRejected = errors.New("order rejected")
)

// OrderRejectedError carries the broker's reason for refusing an order.
type OrderRejectedError struct {
	Code   string
	Reason string
}

func (e *OrderRejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("order rejected: %s", e.Reason)
	}
	return fmt.Sprintf("order rejected (%s): %s", e.Code, e.Reason)
}

func (e *OrderRejectedError) Is(target error) bool {
	return target == ErrOrderRejected
}
