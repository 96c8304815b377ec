package engine

import (
	"context"
	"time"

	"smacross/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type dataStore interface {
	GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error)
	GetCandles(ctx context.Context, assetId int, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

// executor fills orders against the bars of one replay step.
type executor interface {
	Execute(orders []types.Order, ctx types.ExecutionContext) []types.ExecutionReport
}

// Algorithm is implemented by a strategy and driven by the engine. Initialize
// runs once, OnData once per replay step, OnOrderEvent for every order status
// change and OnEndOfAlgorithm once after the last step.
type Algorithm interface {
	Initialize(api AlgorithmAPI) error
	OnData(slice types.Slice)
	OnOrderEvent(event types.OrderEvent)
	OnEndOfAlgorithm()
}

// Indicator is the read-only view an algorithm gets of a host maintained indicator.
type Indicator interface {
	Name() string
	IsReady() bool
	Current() decimal.Decimal
}

// AlgorithmAPI is the set of host services available to an algorithm.
// The setup calls are only accepted during Initialize.
type AlgorithmAPI interface {
	SetStartDate(t time.Time) error
	SetEndDate(t time.Time) error
	SetCash(cash decimal.Decimal) error
	AddEquity(ticker string, interval types.Interval) (string, error)
	SMA(symbol string, period int) (Indicator, error)

	Time() time.Time
	StartDate() time.Time
	EndDate() time.Time
	Price(symbol string) decimal.Decimal
	Holdings(symbol string) decimal.Decimal
	Portfolio() types.PortfolioView
	GetOrderByID(id string) (types.Order, bool)
	Logger() *zap.Logger

	SetHoldings(symbol string, fraction decimal.Decimal) (string, error)
	Liquidate(symbol string) (string, error)
}
