package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"smacross/internal/indicator"
	"smacross/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type subscription struct {
	ticker     string
	interval   types.Interval
	indicators []*indicator.SMA
	candles    []types.Candle
}

type backtester struct {
	algo            Algorithm
	broker          executor
	portfolio       *portfolio
	portfolioConfig *PortfolioConfig
	runConfig       *RunConfig
	logger          *zap.Logger

	setupLocked   bool
	start         time.Time
	end           time.Time
	curTime       time.Time
	initialCash   decimal.Decimal
	subscriptions map[string]*subscription
	tickers       []string
	feedIndex     map[string]int
	lastPrices    map[string]decimal.Decimal

	orders  map[string]*types.Order
	pending []string
	events  []types.OrderEvent
}

func newBacktester(algo Algorithm, broker executor, portfolioConfig *PortfolioConfig, runConfig *RunConfig, logger *zap.Logger) *backtester {
	if runConfig == nil {
		runConfig = NewRunConfig(false)
	}
	return &backtester{
		algo:            algo,
		broker:          broker,
		portfolio:       newPortfolio(portfolioConfig.initialCash, portfolioConfig.allowShortSelling),
		portfolioConfig: portfolioConfig,
		runConfig:       runConfig,
		logger:          logger,
		initialCash:     portfolioConfig.initialCash,
		subscriptions:   make(map[string]*subscription),
		feedIndex:       make(map[string]int),
		lastPrices:      make(map[string]decimal.Decimal),
		orders:          make(map[string]*types.Order),
	}
}

func (b *backtester) initialize() error {
	if err := b.algo.Initialize(b); err != nil {
		return fmt.Errorf("initialize algorithm: %w", err)
	}
	b.setupLocked = true
	if len(b.subscriptions) == 0 {
		return ErrNoSubscriptions
	}
	if b.end.Before(b.start) {
		return fmt.Errorf("%s before %s: %w", b.end.Format(time.DateOnly), b.start.Format(time.DateOnly), ErrInvalidRange)
	}
	sort.Strings(b.tickers)
	b.curTime = b.start
	return nil
}

func (b *backtester) run(ctx context.Context) error {
	steps := b.replaySteps()
	bar := initProgressBar(len(steps), b.runConfig.showProgress)
	for _, stepTime := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		slice := b.nextSlice(stepTime)

		if err := b.fillPendingOrders(slice); err != nil {
			return err
		}
		b.updateMarket(slice)
		b.curTime = stepTime
		b.dispatchEvents()

		b.algo.OnData(slice)
		b.dispatchEvents()

		b.portfolio.takeSnapshot(b.curTime)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	b.cancelOrders("")
	b.dispatchEvents()
	return nil
}

// replaySteps returns every distinct bar close time across all feeds, ascending.
func (b *backtester) replaySteps() []time.Time {
	seen := make(map[time.Time]struct{})
	var steps []time.Time
	for _, ticker := range b.tickers {
		for _, c := range b.subscriptions[ticker].candles {
			ct := c.CloseTime()
			if _, ok := seen[ct]; ok {
				continue
			}
			seen[ct] = struct{}{}
			steps = append(steps, ct)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Before(steps[j]) })
	return steps
}

// nextSlice collects the bars closing at stepTime. Feed indexes only move forward.
func (b *backtester) nextSlice(stepTime time.Time) types.Slice {
	slice := types.Slice{Time: stepTime, Bars: make(map[string]types.Candle)}
	for _, ticker := range b.tickers {
		sub := b.subscriptions[ticker]
		i := b.feedIndex[ticker]
		for i < len(sub.candles) && sub.candles[i].CloseTime().Before(stepTime) {
			i++
		}
		if i < len(sub.candles) && sub.candles[i].CloseTime().Equal(stepTime) {
			slice.Bars[ticker] = sub.candles[i]
			i++
		}
		b.feedIndex[ticker] = i
	}
	return slice
}

func (b *backtester) updateMarket(slice types.Slice) {
	for ticker, candle := range slice.Bars {
		b.lastPrices[ticker] = candle.Close
		b.portfolio.markPrice(ticker, candle.Close)
		for _, ind := range b.subscriptions[ticker].indicators {
			ind.Update(candle.Close)
		}
	}
}

// fillPendingOrders hands every pending order whose symbol has a bar in this
// slice to the broker and applies the resulting executions.
func (b *backtester) fillPendingOrders(slice types.Slice) error {
	if len(b.pending) == 0 {
		return nil
	}
	var executable []types.Order
	var stillPending []string
	for _, id := range b.pending {
		order := b.orders[id]
		if _, ok := slice.Bars[order.Ticker]; ok {
			executable = append(executable, *order)
			continue
		}
		stillPending = append(stillPending, id)
	}
	if len(executable) == 0 {
		return nil
	}

	execCtx := types.ExecutionContext{
		Bars:      slice.Bars,
		Portfolio: b.portfolio.GetPortfolioSnapshot(slice.Time),
		CurTime:   slice.Time,
	}
	reports := b.broker.Execute(executable, execCtx)
	reported := make(map[string]bool, len(reports))
	for _, er := range reports {
		reported[er.OrderId] = true
		if order, ok := b.orders[er.OrderId]; ok {
			order.Status = er.Status
		}
		b.events = append(b.events, types.OrderEventFromReport(er))
		if er.Status == types.OrderRejected {
			b.logger.Warn("order rejected",
				zap.String("order_id", er.OrderId),
				zap.String("ticker", er.Ticker),
				zap.String("reason", er.RejectReason),
			)
		}
	}
	for _, order := range executable {
		if !reported[order.Id] {
			stillPending = append(stillPending, order.Id)
		}
	}
	b.pending = stillPending

	if err := b.portfolio.processExecutions(reports); err != nil {
		return fmt.Errorf("apply executions at %s: %w", slice.Time.Format(time.RFC3339), err)
	}
	return nil
}

func (b *backtester) submitOrder(ticker string, quantity decimal.Decimal, tag string) string {
	if quantity.IsZero() {
		return ""
	}
	side := types.SideTypeBuy
	if quantity.IsNegative() {
		side = types.SideTypeSell
	}
	order := types.NewOrder(newOrderID(), ticker, quantity.Abs(), types.TypeMarket, side, tag, b.curTime)
	b.orders[order.Id] = &order
	b.pending = append(b.pending, order.Id)
	b.events = append(b.events, types.OrderEvent{
		OrderId: order.Id,
		Ticker:  ticker,
		Side:    side,
		Status:  types.OrderSubmitted,
		Time:    b.curTime,
	})
	b.logger.Debug("order submitted",
		zap.String("order_id", order.Id),
		zap.String("ticker", ticker),
		zap.String("side", string(side)),
		zap.String("quantity", order.Quantity.String()),
		zap.String("tag", tag),
	)
	return order.Id
}

// cancelOrders cancels pending orders for ticker, or all of them when ticker is empty.
func (b *backtester) cancelOrders(ticker string) {
	var kept []string
	for _, id := range b.pending {
		order := b.orders[id]
		if ticker != "" && order.Ticker != ticker {
			kept = append(kept, id)
			continue
		}
		order.Status = types.OrderCanceled
		b.events = append(b.events, types.OrderEvent{
			OrderId: order.Id,
			Ticker:  order.Ticker,
			Side:    order.Side,
			Status:  types.OrderCanceled,
			Time:    b.curTime,
		})
	}
	b.pending = kept
}

func (b *backtester) pendingQuantity(ticker string) decimal.Decimal {
	qty := decimal.Zero
	for _, id := range b.pending {
		if order := b.orders[id]; order.Ticker == ticker {
			qty = qty.Add(order.SignedQuantity())
		}
	}
	return qty
}

// dispatchEvents delivers queued order events. Events raised by the algorithm
// while handling one are delivered in the same pass.
func (b *backtester) dispatchEvents() {
	for len(b.events) > 0 {
		event := b.events[0]
		b.events = b.events[1:]
		b.algo.OnOrderEvent(event)
	}
}

func initProgressBar(maxTicks int, visible bool) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
