package broker

import (
	"smacross/types"

	"github.com/shopspring/decimal"
)

const (
	reasonNoMarketData   = "No market data for ticker"
	reasonBadQuantity    = "Non-positive order quantity"
	reasonNoCash         = "Not enough cash available for buy"
	reasonShortSell      = "Short selling not allowed"
	reasonUnsupportedTyp = "Only market orders are supported"
)

// FeeModel returns the commission for trading qty shares at price.
type FeeModel func(price, qty decimal.Decimal) decimal.Decimal

// Simulated fills market orders at the open of the bar it is handed.
type Simulated struct {
	fee               FeeModel
	allowShortSelling bool
}

func NewSimulated(fee FeeModel, allowShortSelling bool) *Simulated {
	if fee == nil {
		fee = NoFee
	}
	return &Simulated{fee: fee, allowShortSelling: allowShortSelling}
}

// NoFee charges nothing.
func NoFee(_, _ decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// USEquityFixedFee is the IBKR US equities "Fixed" schedule:
//   - 0.005 USD per share
//   - Minimum per order: USD 1.00
//   - Maximum per order: 1% of trade value
func USEquityFixedFee(price, qty decimal.Decimal) decimal.Decimal {
	tradeValue := price.Mul(qty)
	if !tradeValue.IsPositive() {
		return decimal.Zero
	}

	fee := qty.Mul(decimal.RequireFromString("0.005"))
	minFee := decimal.NewFromInt(1)
	maxFee := tradeValue.Mul(decimal.RequireFromString("0.01"))

	if fee.LessThan(minFee) {
		fee = minFee
	}
	if fee.GreaterThan(maxFee) {
		fee = maxFee
	}
	return fee
}

// Execute fills every order at the OPEN of ctx.Bars[ticker].
//
// - No slippage
// - Buys: check remaining cash, reject if insufficient (price * qty + fee)
// - Sells: reject when they would open a short and shorting is disabled
// - Does NOT mutate the portfolio directly; the engine applies reports.
func (b *Simulated) Execute(orders []types.Order, ctx types.ExecutionContext) []types.ExecutionReport {
	execReports := make([]types.ExecutionReport, 0, len(orders))
	remainingCash := ctx.Portfolio.Cash
	holdings := make(map[string]decimal.Decimal, len(ctx.Portfolio.Positions))
	for ticker, pos := range ctx.Portfolio.Positions {
		holdings[ticker] = pos.Quantity
	}

	for _, order := range orders {
		bar, ok := ctx.Bars[order.Ticker]
		if !ok {
			execReports = append(execReports, reject(order, reasonNoMarketData, ctx))
			continue
		}
		if order.OrderType != types.TypeMarket {
			execReports = append(execReports, reject(order, reasonUnsupportedTyp, ctx))
			continue
		}
		if !order.Quantity.IsPositive() {
			execReports = append(execReports, reject(order, reasonBadQuantity, ctx))
			continue
		}

		fillPrice := bar.Open
		fee := b.fee(fillPrice, order.Quantity)
		tradeValue := fillPrice.Mul(order.Quantity)

		switch order.Side {
		case types.SideTypeBuy:
			totalCost := tradeValue.Add(fee)
			if totalCost.GreaterThan(remainingCash) {
				execReports = append(execReports, reject(order, reasonNoCash, ctx))
				continue
			}
			remainingCash = remainingCash.Sub(totalCost)
			holdings[order.Ticker] = holdings[order.Ticker].Add(order.Quantity)

		case types.SideTypeSell:
			after := holdings[order.Ticker].Sub(order.Quantity)
			if after.IsNegative() && !b.allowShortSelling {
				execReports = append(execReports, reject(order, reasonShortSell, ctx))
				continue
			}
			remainingCash = remainingCash.Add(tradeValue).Sub(fee)
			holdings[order.Ticker] = after
		}

		fill := types.NewFill(ctx.CurTime, fillPrice, order.Quantity, fee)
		execReports = append(execReports, types.NewExecutionReport(
			order.Id,
			order.Ticker,
			order.Side,
			types.OrderFilled,
			[]types.Fill{fill},
			order.Quantity,
			fillPrice,
			fee,
			"",
			ctx.CurTime,
		))
	}

	return execReports
}

func reject(order types.Order, reason string, ctx types.ExecutionContext) types.ExecutionReport {
	return types.NewExecutionReport(
		order.Id,
		order.Ticker,
		order.Side,
		types.OrderRejected,
		nil,
		decimal.Zero,
		decimal.Zero,
		decimal.Zero,
		reason,
		ctx.CurTime,
	)
}
