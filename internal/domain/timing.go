package domain

import (
	"fmt"
	"time"
)

// CandleTiming tracks the last completed candle seen for a pair.
type CandleTiming struct {
	Pair          string    `json:"pair"`
	Granularity   string    `json:"granularity"`
	LastTime      time.Time `json:"last_time"`
	CompletedOnly bool      `json:"completed_only"`
	IsReady       bool      `json:"is_ready"`
}

func (t CandleTiming) String() string {
	return fmt.Sprintf("last_candle:%s is_ready:%t", t.LastTime.Format("06-01-02 15:04"), t.IsReady)
}
