package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var configPath string

func main() {
	app := cli.NewApp()
	app.Name = "backtester"
	app.Usage = "replay a dual SMA crossover strategy over stored candles"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the YAML config file",
			EnvVars:     []string{"BACKTEST_CONFIG"},
			TakesFile:   true,
			Destination: &configPath,
		},
	}
	app.Commands = []*cli.Command{
		runCommand,
		importCommand,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
