package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PortfolioView struct {
	Cash      decimal.Decimal
	Positions map[string]PositionSnapshot
	Time      time.Time
}

type PositionSnapshot struct {
	Ticker        string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	LastPrice     decimal.Decimal
}

// TotalValue is cash plus every position marked at its last price.
func (v PortfolioView) TotalValue() decimal.Decimal {
	value := v.Cash
	for _, pos := range v.Positions {
		value = value.Add(pos.Quantity.Mul(pos.LastPrice))
	}
	return value
}

// Invested reports whether any position is non-zero.
func (v PortfolioView) Invested() bool {
	for _, pos := range v.Positions {
		if !pos.Quantity.IsZero() {
			return true
		}
	}
	return false
}

// Quantity returns the held quantity for ticker, zero when there is no position.
func (v PortfolioView) Quantity(ticker string) decimal.Decimal {
	return v.Positions[ticker].Quantity
}
