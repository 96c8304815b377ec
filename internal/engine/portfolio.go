package engine

import (
	"errors"
	"sort"
	"time"

	"smacross/types"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSide         = errors.New("unknown fill side")
	ErrInsufficientBalance = errors.New("insufficient balance when applying order fill")
	ErrShortSellNotAllowed = errors.New("short sell not allowed, broker sold more stock than in portfolio")
)

type portfolio struct {
	cash              decimal.Decimal
	positions         map[string]*Position
	executions        []types.ExecutionReport
	realizedPnL       decimal.Decimal
	snapshots         []types.PortfolioView
	allowShortSelling bool
}

type Position struct {
	Ticker    string
	Quantity  decimal.Decimal
	AvgCost   decimal.Decimal
	LastPrice decimal.Decimal
}

func newPortfolio(initialCash decimal.Decimal, allowShortSelling bool) *portfolio {
	return &portfolio{
		cash:              initialCash,
		positions:         make(map[string]*Position),
		allowShortSelling: allowShortSelling,
	}
}

func (p *portfolio) GetPortfolioSnapshot(curTime time.Time) types.PortfolioView {
	view := types.PortfolioView{
		Cash:      p.cash,
		Positions: make(map[string]types.PositionSnapshot, len(p.positions)),
		Time:      curTime,
	}

	for sym, pos := range p.positions {
		view.Positions[sym] = types.PositionSnapshot{
			Ticker:        pos.Ticker,
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgCost,
			LastPrice:     pos.LastPrice,
		}
	}
	return view
}

func (p *portfolio) takeSnapshot(curTime time.Time) {
	p.snapshots = append(p.snapshots, p.GetPortfolioSnapshot(curTime))
}

func (p *portfolio) markPrice(ticker string, price decimal.Decimal) {
	if pos, ok := p.positions[ticker]; ok {
		pos.LastPrice = price
	}
}

// processExecutions applies filled reports in report time order. Reports
// without fills (rejections) are recorded but move no cash.
func (p *portfolio) processExecutions(execs []types.ExecutionReport) error {
	if len(execs) == 0 {
		return nil
	}
	sort.SliceStable(execs, func(i, j int) bool { return execs[i].ReportTime.Before(execs[j].ReportTime) })
	for _, er := range execs {
		if len(er.Fills) == 0 {
			continue
		}
		if er.Side != types.SideTypeBuy && er.Side != types.SideTypeSell {
			return ErrUnknownSide
		}
		fills := append([]types.Fill(nil), er.Fills...)
		sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })

		pos := p.positions[er.Ticker]
		if pos == nil {
			pos = &Position{Ticker: er.Ticker}
			p.positions[er.Ticker] = pos
		}

		for _, fill := range fills {
			quantity := fill.Quantity
			if er.Side == types.SideTypeSell {
				quantity = quantity.Neg()
			}

			newCash := p.cash.Sub(fill.Price.Mul(quantity)).Sub(fill.Fee)
			if newCash.IsNegative() {
				return ErrInsufficientBalance
			}

			oldQty := pos.Quantity
			newQty := oldQty.Add(quantity)
			if !p.allowShortSelling && newQty.IsNegative() {
				return ErrShortSellNotAllowed
			}
			p.cash = newCash

			switch {
			case oldQty.IsZero():
				pos.Quantity = newQty
				pos.AvgCost = fill.Price

			case sameSide(oldQty, quantity):
				pos.AvgCost = weightedAvg(pos.AvgCost, oldQty.Abs(), fill.Price, quantity.Abs())
				pos.Quantity = newQty

			default:
				// Reducing, closing or flipping: realize PnL on the closed part.
				closed := decimal.Min(oldQty.Abs(), quantity.Abs())
				pnl := fill.Price.Sub(pos.AvgCost).Mul(closed)
				if oldQty.IsNegative() {
					pnl = pnl.Neg()
				}
				p.realizedPnL = p.realizedPnL.Add(pnl)

				pos.Quantity = newQty
				switch {
				case newQty.IsZero():
					pos.AvgCost = decimal.Zero
				case !sameSide(oldQty, newQty):
					pos.AvgCost = fill.Price
				}
			}

			pos.LastPrice = fill.Price
		}
		p.executions = append(p.executions, er)
	}
	return nil
}

func sameSide(a, b decimal.Decimal) bool {
	return (a.IsPositive() && b.IsPositive()) || (a.IsNegative() && b.IsNegative())
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
