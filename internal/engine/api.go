package engine

import (
	"fmt"
	"time"

	"smacross/internal/indicator"
	"smacross/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ AlgorithmAPI = (*backtester)(nil)

func newOrderID() string {
	return uuid.NewString()
}

func (b *backtester) SetStartDate(t time.Time) error {
	if b.setupLocked {
		return ErrSetupLocked
	}
	b.start = t
	b.curTime = t
	return nil
}

func (b *backtester) SetEndDate(t time.Time) error {
	if b.setupLocked {
		return ErrSetupLocked
	}
	b.end = t
	return nil
}

func (b *backtester) SetCash(cash decimal.Decimal) error {
	if b.setupLocked {
		return ErrSetupLocked
	}
	b.initialCash = cash
	b.portfolio.cash = cash
	return nil
}

// AddEquity subscribes ticker at the given bar interval and returns the symbol
// used for every other call.
func (b *backtester) AddEquity(ticker string, interval types.Interval) (string, error) {
	if b.setupLocked {
		return "", ErrSetupLocked
	}
	if interval.Duration() <= 0 {
		return "", fmt.Errorf("%s interval %q: %w", ticker, interval, ErrUnsupported)
	}
	if _, ok := b.subscriptions[ticker]; !ok {
		b.subscriptions[ticker] = &subscription{ticker: ticker, interval: interval}
		b.tickers = append(b.tickers, ticker)
		b.feedIndex[ticker] = 0
	}
	return ticker, nil
}

// SMA registers a simple moving average of closes for symbol. The host feeds it
// every bar of the subscription.
func (b *backtester) SMA(symbol string, period int) (Indicator, error) {
	if b.setupLocked {
		return nil, ErrSetupLocked
	}
	sub, ok := b.subscriptions[symbol]
	if !ok {
		return nil, fmt.Errorf("sma on %s: %w", symbol, ErrUnknownSymbol)
	}
	sma, err := indicator.NewSMA(fmt.Sprintf("SMA(%s,%d)", symbol, period), period)
	if err != nil {
		return nil, err
	}
	sub.indicators = append(sub.indicators, sma)
	b.logger.Debug("indicator registered",
		zap.String("name", sma.Name()),
		zap.Int("period", sma.Period()),
	)
	return sma, nil
}

func (b *backtester) Time() time.Time {
	return b.curTime
}

func (b *backtester) StartDate() time.Time {
	return b.start
}

func (b *backtester) EndDate() time.Time {
	return b.end
}

func (b *backtester) Price(symbol string) decimal.Decimal {
	return b.lastPrices[symbol]
}

func (b *backtester) Holdings(symbol string) decimal.Decimal {
	if pos, ok := b.portfolio.positions[symbol]; ok {
		return pos.Quantity
	}
	return decimal.Zero
}

func (b *backtester) Portfolio() types.PortfolioView {
	return b.portfolio.GetPortfolioSnapshot(b.curTime)
}

func (b *backtester) GetOrderByID(id string) (types.Order, bool) {
	order, ok := b.orders[id]
	if !ok {
		return types.Order{}, false
	}
	return *order, true
}

func (b *backtester) Logger() *zap.Logger {
	return b.logger.Named("algorithm")
}

// SetHoldings places a market order that moves symbol to fraction of the total
// portfolio value, net of the free cash buffer. Quantities already on order
// count towards the target.
func (b *backtester) SetHoldings(symbol string, fraction decimal.Decimal) (string, error) {
	if _, ok := b.subscriptions[symbol]; !ok {
		return "", fmt.Errorf("set holdings %s: %w", symbol, ErrUnknownSymbol)
	}
	price := b.lastPrices[symbol]
	if !price.IsPositive() {
		return "", fmt.Errorf("set holdings %s: %w", symbol, ErrNoPrice)
	}
	view := b.portfolio.GetPortfolioSnapshot(b.curTime)
	usable := decimal.NewFromInt(1).Sub(b.portfolioConfig.freePortfolioValuePercent)
	target := getQuantityForPrice(price, view.TotalValue().Mul(fraction).Mul(usable))
	delta := target.Sub(view.Quantity(symbol)).Sub(b.pendingQuantity(symbol))
	return b.submitOrder(symbol, delta, "SetHoldings"), nil
}

// Liquidate cancels open orders for symbol and sells (or covers) the whole position.
func (b *backtester) Liquidate(symbol string) (string, error) {
	if _, ok := b.subscriptions[symbol]; !ok {
		return "", fmt.Errorf("liquidate %s: %w", symbol, ErrUnknownSymbol)
	}
	b.cancelOrders(symbol)
	return b.submitOrder(symbol, b.Holdings(symbol).Neg(), "Liquidate"), nil
}

// getQuantityForPrice is the whole number of shares capital buys at price,
// truncated towards zero so negative capital sizes a short.
func getQuantityForPrice(price, capital decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return capital.Div(price).Truncate(0)
}
