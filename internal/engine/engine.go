package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrNoSubscriptions = errors.New("algorithm subscribed to no symbols")
	ErrInvalidRange    = errors.New("end date is before start date")
	ErrSetupLocked     = errors.New("setup calls are only allowed during Initialize")
	ErrUnknownSymbol   = errors.New("symbol is not subscribed")
	ErrNoPrice         = errors.New("no price available for symbol yet")
	ErrUnsupported     = errors.New("interval not supported for replay")
)

type Engine struct {
	db              dataStore
	backtester      *backtester
	reportingConfig *ReportingConfig
	logger          *zap.Logger
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(
	algo Algorithm,
	db dataStore,
	broker executor,
	portfolioConfig *PortfolioConfig,
	reportingConfig *ReportingConfig,
	runConfig *RunConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		db:              db,
		reportingConfig: reportingConfig,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.backtester = newBacktester(algo, broker, portfolioConfig, runConfig, e.logger)
	return e
}

// Run initializes the algorithm, loads its data, replays it and returns the
// performance report.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	b := e.backtester
	if err := b.initialize(); err != nil {
		return nil, err
	}
	if err := e.loadData(ctx); err != nil {
		return nil, err
	}
	e.logger.Info("backtest starting",
		zap.Time("start", b.start),
		zap.Time("end", b.end),
		zap.String("cash", b.initialCash.String()),
		zap.Int("subscriptions", len(b.subscriptions)),
	)

	if err := b.run(ctx); err != nil {
		return nil, err
	}
	b.algo.OnEndOfAlgorithm()

	report := e.generateReport(b.start, b.end, b.initialCash, b.portfolio)
	if e.reportingConfig.printReport {
		e.printReport(report)
	}
	if e.reportingConfig.tradesCSVPath != "" {
		if err := e.writeTradesCSVFile(e.reportingConfig.tradesCSVPath, executionsToTrades(b.portfolio)); err != nil {
			return report, err
		}
	}
	e.logger.Info("backtest finished",
		zap.String("final_value", report.FinalValue.String()),
		zap.String("total_return", report.TotalReturn.String()),
		zap.Int("trades", report.TotalTrades),
	)
	return report, nil
}

func (e *Engine) loadData(ctx context.Context) error {
	for _, ticker := range e.backtester.tickers {
		sub := e.backtester.subscriptions[ticker]
		asset, err := e.db.GetAssetByTicker(ctx, sub.ticker)
		if err != nil {
			return fmt.Errorf("load %s: %w", sub.ticker, err)
		}
		cs, err := e.db.GetCandles(ctx, asset.Id, sub.ticker, sub.interval, e.backtester.start, e.backtester.end)
		if err != nil {
			return fmt.Errorf("load %s candles: %w", sub.ticker, err)
		}
		sub.candles = cs
		e.logger.Debug("loaded candles", zap.String("ticker", sub.ticker), zap.Int("count", len(cs)))
	}
	return nil
}
