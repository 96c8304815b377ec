package main

import (
	"fmt"
	"os"
	"strings"

	"smacross/internal/config"
	"smacross/internal/logging"
	"smacross/internal/repository"
	"smacross/types"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "load candles from a CSV file into the SQLite store",
	ArgsUsage: "<file.csv>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "ticker", Usage: "symbol the candles belong to", Required: true},
		&cli.StringFlag{Name: "interval", Usage: "bar interval of the file", Value: string(types.Day)},
		&cli.StringFlag{Name: "name", Usage: "asset display name"},
		&cli.StringFlag{Name: "type", Usage: "asset type (STOCK, ETF, CRYPTO)", Value: string(types.AssetTypeEtf)},
	},
	Action: importCandles,
}

func importCandles(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	interval, ok := types.ConvertInterval[c.String("interval")]
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrIntervalNotSupported, c.String("interval"))
	}
	ticker := strings.ToUpper(c.String("ticker"))

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()
	candles, err := repository.LoadCandlesCSV(f, ticker, interval)
	if err != nil {
		return err
	}

	store, err := repository.NewSQLiteStore(c.Context, cfg.Data.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	asset, err := store.UpsertAsset(c.Context, ticker, c.String("name"), types.AssetType(strings.ToUpper(c.String("type"))))
	if err != nil {
		return err
	}
	if err := store.InsertCandles(c.Context, asset.Id, candles); err != nil {
		return err
	}
	logger.Info("candles imported",
		zap.String("ticker", ticker),
		zap.String("interval", string(interval)),
		zap.Int("count", len(candles)),
		zap.String("store", cfg.Data.SQLitePath),
	)
	return nil
}
