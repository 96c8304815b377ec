package types

import (
	"time"
)

// ExecutionContext is what the broker sees when filling orders: the bar each
// ticker is trading on right now and a snapshot of the portfolio.
type ExecutionContext struct {
	Bars      map[string]Candle
	Portfolio PortfolioView
	CurTime   time.Time
}
