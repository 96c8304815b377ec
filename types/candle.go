package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Timestamp is the bar open time.
type Candle struct {
	AssetId   int             `json:"id"`
	Ticker    string          `json:"ticker"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	High      decimal.Decimal `json:"high" `
	Low       decimal.Decimal `json:"low"`
	Volume    decimal.Decimal `json:"volume"`
	Interval  Interval        `json:"interval"`
	Timestamp time.Time       `json:"timestamp"`
}

// CloseTime is the time the bar is complete and may be handed to an algorithm.
func (c Candle) CloseTime() time.Time {
	return c.Timestamp.Add(c.Interval.Duration())
}
