package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"smacross/strategies/smacrossover"
	"smacross/types"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

type Config struct {
	Data      Data      `yaml:"data"`
	Strategy  Strategy  `yaml:"strategy"`
	Engine    Engine    `yaml:"engine"`
	Reporting Reporting `yaml:"reporting"`
	Logging   Logging   `yaml:"logging"`
}

type Data struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Strategy mirrors smacrossover.Params in YAML friendly types. Dates are YYYY-MM-DD.
type Strategy struct {
	Ticker     string  `yaml:"ticker"`
	Interval   string  `yaml:"interval"`
	Start      string  `yaml:"start"`
	End        string  `yaml:"end"`
	Cash       float64 `yaml:"cash"`
	FastPeriod int     `yaml:"fast_period"`
	SlowPeriod int     `yaml:"slow_period"`
	Tolerance  float64 `yaml:"tolerance"`
}

type Engine struct {
	AllowShortSelling         bool    `yaml:"allow_short_selling"`
	FreePortfolioValuePercent float64 `yaml:"free_portfolio_value_percent"`
	Commission                string  `yaml:"commission"`
	ProgressBar               bool    `yaml:"progress_bar"`
}

type Reporting struct {
	RiskFreeRate float64 `yaml:"risk_free_rate"`
	Print        bool    `yaml:"print"`
	TradesCSV    string  `yaml:"trades_csv"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration of the reference SPY 10/30 run.
func Default() *Config {
	p := smacrossover.DefaultParams()
	return &Config{
		Data: Data{
			Driver:     DriverSQLite,
			SQLitePath: "candles.db",
		},
		Strategy: Strategy{
			Ticker:     p.Ticker,
			Interval:   string(p.Interval),
			Start:      p.Start.Format(time.DateOnly),
			End:        p.End.Format(time.DateOnly),
			Cash:       p.Cash.InexactFloat64(),
			FastPeriod: p.FastPeriod,
			SlowPeriod: p.SlowPeriod,
			Tolerance:  p.Tolerance.InexactFloat64(),
		},
		Engine: Engine{
			FreePortfolioValuePercent: 0.0025,
			Commission:                "ibkr",
			ProgressBar:               true,
		},
		Reporting: Reporting{
			Print: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML file at path on top of Default and applies environment
// overrides. An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTEST_DATABASE_URL"); v != "" {
		cfg.Data.URL = v
		cfg.Data.Driver = DriverPostgres
	}
	if v := os.Getenv("BACKTEST_SQLITE_PATH"); v != "" {
		cfg.Data.SQLitePath = v
	}
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	switch c.Data.Driver {
	case DriverPostgres:
		if c.Data.URL == "" {
			return fmt.Errorf("%w: data.url is required for postgres", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.Data.SQLitePath == "" {
			return fmt.Errorf("%w: data.sqlite_path is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown data.driver %q", ErrInvalidConfig, c.Data.Driver)
	}
	if c.Engine.FreePortfolioValuePercent < 0 || c.Engine.FreePortfolioValuePercent >= 1 {
		return fmt.Errorf("%w: engine.free_portfolio_value_percent must be in [0,1)", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Engine.Commission) {
	case "", "none", "ibkr":
	default:
		return fmt.Errorf("%w: unknown engine.commission %q", ErrInvalidConfig, c.Engine.Commission)
	}
	_, err := c.StrategyParams()
	return err
}

// StrategyParams converts the strategy section into validated crossover parameters.
func (c *Config) StrategyParams() (smacrossover.Params, error) {
	s := c.Strategy
	interval, ok := types.ConvertInterval[s.Interval]
	if !ok {
		return smacrossover.Params{}, fmt.Errorf("%w: unknown strategy.interval %q", ErrInvalidConfig, s.Interval)
	}
	start, err := time.Parse(time.DateOnly, s.Start)
	if err != nil {
		return smacrossover.Params{}, fmt.Errorf("%w: strategy.start: %v", ErrInvalidConfig, err)
	}
	end, err := time.Parse(time.DateOnly, s.End)
	if err != nil {
		return smacrossover.Params{}, fmt.Errorf("%w: strategy.end: %v", ErrInvalidConfig, err)
	}
	p := smacrossover.Params{
		Ticker:     strings.ToUpper(s.Ticker),
		Interval:   interval,
		Start:      start,
		End:        end,
		Cash:       decimal.NewFromFloat(s.Cash),
		FastPeriod: s.FastPeriod,
		SlowPeriod: s.SlowPeriod,
		Tolerance:  decimal.NewFromFloat(s.Tolerance),
	}
	if err := p.Validate(); err != nil {
		return smacrossover.Params{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return p, nil
}
