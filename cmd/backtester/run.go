package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smacross/internal/broker"
	"smacross/internal/config"
	"smacross/internal/engine"
	"smacross/internal/logging"
	"smacross/internal/repository"
	"smacross/strategies/smacrossover"
	"smacross/types"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run the crossover backtest",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "ticker", Usage: "symbol to trade"},
		&cli.StringFlag{Name: "start", Usage: "first date, YYYY-MM-DD"},
		&cli.StringFlag{Name: "end", Usage: "last date, YYYY-MM-DD"},
		&cli.Float64Flag{Name: "cash", Usage: "starting cash"},
		&cli.IntFlag{Name: "fast", Usage: "fast SMA period"},
		&cli.IntFlag{Name: "slow", Usage: "slow SMA period"},
		&cli.StringFlag{Name: "trades-csv", Usage: "write executed trades to this file", TakesFile: true},
		&cli.BoolFlag{Name: "no-progress", Usage: "hide the progress bar"},
	},
	Action: runBacktest,
}

// marketData is what the engine reads candles from. Both stores satisfy it.
type marketData interface {
	GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error)
	GetCandles(ctx context.Context, assetId int, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

func runBacktest(c *cli.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	params, err := cfg.StrategyParams()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(c.Context, cfg.Data)
	if err != nil {
		return err
	}
	defer closeStore()

	eng := engine.NewEngine(
		smacrossover.New(params),
		store,
		broker.NewSimulated(feeModel(cfg.Engine.Commission), cfg.Engine.AllowShortSelling),
		engine.NewPortfolioConfig(
			params.Cash,
			cfg.Engine.AllowShortSelling,
			decimal.NewFromFloat(cfg.Engine.FreePortfolioValuePercent),
		),
		engine.NewReportingConfig(
			decimal.NewFromFloat(cfg.Reporting.RiskFreeRate),
			cfg.Reporting.Print,
			cfg.Reporting.TradesCSV,
		),
		engine.NewRunConfig(cfg.Engine.ProgressBar),
		engine.WithLogger(logger),
	)
	if _, err := eng.Run(c.Context); err != nil {
		logger.Error("backtest failed", zap.Error(err))
		return err
	}
	return nil
}

func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("ticker") {
		cfg.Strategy.Ticker = c.String("ticker")
	}
	if c.IsSet("start") {
		cfg.Strategy.Start = c.String("start")
	}
	if c.IsSet("end") {
		cfg.Strategy.End = c.String("end")
	}
	if c.IsSet("cash") {
		cfg.Strategy.Cash = c.Float64("cash")
	}
	if c.IsSet("fast") {
		cfg.Strategy.FastPeriod = c.Int("fast")
	}
	if c.IsSet("slow") {
		cfg.Strategy.SlowPeriod = c.Int("slow")
	}
	if c.IsSet("trades-csv") {
		cfg.Reporting.TradesCSV = c.String("trades-csv")
	}
	if c.Bool("no-progress") {
		cfg.Engine.ProgressBar = false
	}
}

func openStore(ctx context.Context, data config.Data) (marketData, func(), error) {
	switch data.Driver {
	case config.DriverPostgres:
		db, err := repository.NewDatabase(ctx, data.URL)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case config.DriverSQLite:
		s, err := repository.NewSQLiteStore(ctx, data.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown data.driver %q", config.ErrInvalidConfig, data.Driver)
}

func feeModel(name string) broker.FeeModel {
	if strings.EqualFold(name, "none") {
		return broker.NoFee
	}
	return broker.USEquityFixedFee
}
