// Package smacrossover trades a single equity on a fast/slow simple moving
// average crossover, sizing every entry to the whole portfolio.
package smacrossover

import (
	"fmt"
	"strings"
	"time"

	"smacross/internal/engine"
	"smacross/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ engine.Algorithm = (*Strategy)(nil)

var fullAllocation = decimal.NewFromInt(1)

type Strategy struct {
	params Params
	api    engine.AlgorithmAPI
	log    *zap.Logger

	symbol string
	fast   engine.Indicator
	slow   engine.Indicator

	// previousDate is the calendar date of the last evaluated bar; it is never reset.
	previousDate time.Time
}

func New(params Params) *Strategy {
	return &Strategy{params: params}
}

func (s *Strategy) Initialize(api engine.AlgorithmAPI) error {
	if err := s.params.Validate(); err != nil {
		return err
	}
	s.api = api
	s.log = api.Logger()

	if err := api.SetStartDate(s.params.Start); err != nil {
		return err
	}
	if err := api.SetEndDate(s.params.End); err != nil {
		return err
	}
	if err := api.SetCash(s.params.Cash); err != nil {
		return err
	}

	symbol, err := api.AddEquity(s.params.Ticker, s.params.Interval)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.params.Ticker, err)
	}
	s.symbol = symbol

	if s.fast, err = api.SMA(symbol, s.params.FastPeriod); err != nil {
		return err
	}
	if s.slow, err = api.SMA(symbol, s.params.SlowPeriod); err != nil {
		return err
	}

	banner := strings.Repeat("=", 60)
	s.log.Info(banner)
	s.log.Info("SMA crossover initialized",
		zap.String("symbol", s.symbol),
		zap.String("start", api.StartDate().Format(time.DateOnly)),
		zap.String("end", api.EndDate().Format(time.DateOnly)),
		zap.String("capital", api.Portfolio().Cash.StringFixed(2)),
		zap.Int("fast_period", s.params.FastPeriod),
		zap.Int("slow_period", s.params.SlowPeriod),
		zap.String("tolerance", s.params.Tolerance.String()),
	)
	s.log.Info(banner)
	return nil
}

func (s *Strategy) OnData(_ types.Slice) {
	if !s.slow.IsReady() {
		return
	}

	// Evaluate at most once per calendar day.
	today := truncateToDate(s.api.Time())
	if !s.previousDate.IsZero() && s.previousDate.Equal(today) {
		return
	}
	s.previousDate = today

	fast := s.fast.Current()
	slow := s.slow.Current()
	price := s.api.Price(s.symbol)
	holdings := s.api.Holdings(s.symbol)

	if !holdings.IsPositive() && fast.GreaterThan(slow.Mul(decimal.NewFromInt(1).Add(s.params.Tolerance))) {
		id, err := s.api.SetHoldings(s.symbol, fullAllocation)
		switch {
		case err != nil:
			s.log.Error("long entry failed", zap.String("symbol", s.symbol), zap.Error(err))
		case id != "":
			s.log.Info("long entry",
				zap.String("order_id", id),
				zap.String("price", price.StringFixed(2)),
				zap.String("fast", fast.StringFixed(2)),
				zap.String("slow", slow.StringFixed(2)),
			)
		}
	}

	if holdings.IsPositive() && fast.LessThan(slow) {
		id, err := s.api.Liquidate(s.symbol)
		switch {
		case err != nil:
			s.log.Error("exit failed", zap.String("symbol", s.symbol), zap.Error(err))
		case id != "":
			s.log.Info("exit",
				zap.String("order_id", id),
				zap.String("price", price.StringFixed(2)),
				zap.String("fast", fast.StringFixed(2)),
				zap.String("slow", slow.StringFixed(2)),
			)
		}
	}
}

func (s *Strategy) OnOrderEvent(event types.OrderEvent) {
	if event.Status != types.OrderFilled {
		return
	}
	quantity := event.FillQuantity
	if order, ok := s.api.GetOrderByID(event.OrderId); ok {
		quantity = order.SignedQuantity()
	}
	s.log.Info("order filled",
		zap.String("order_id", event.OrderId),
		zap.String("quantity", quantity.String()),
		zap.String("fill_price", event.FillPrice.StringFixed(2)),
		zap.String("portfolio_value", s.api.Portfolio().TotalValue().StringFixed(2)),
	)
}

func (s *Strategy) OnEndOfAlgorithm() {
	view := s.api.Portfolio()
	final := view.TotalValue()
	totalReturn := decimal.Zero
	if s.params.Cash.IsPositive() {
		totalReturn = final.Div(s.params.Cash).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	}

	banner := strings.Repeat("=", 60)
	s.log.Info(banner)
	s.log.Info("SMA crossover results",
		zap.String("final_portfolio_value", final.StringFixed(2)),
		zap.String("total_return_pct", totalReturn.StringFixed(2)),
		zap.Bool("invested", view.Invested()),
	)
	s.log.Info(banner)
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
