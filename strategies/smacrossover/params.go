package smacrossover

import (
	"errors"
	"fmt"
	"time"

	"smacross/types"

	"github.com/shopspring/decimal"
)

var ErrInvalidParams = errors.New("invalid strategy parameters")

// Params configures the crossover. Tolerance is the relative band the fast
// average has to clear above the slow one before entering; exits use no band.
type Params struct {
	Ticker     string
	Interval   types.Interval
	Start      time.Time
	End        time.Time
	Cash       decimal.Decimal
	FastPeriod int
	SlowPeriod int
	Tolerance  decimal.Decimal
}

func DefaultParams() Params {
	return Params{
		Ticker:     "SPY",
		Interval:   types.Day,
		Start:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
		Cash:       decimal.NewFromInt(100000),
		FastPeriod: 10,
		SlowPeriod: 30,
		Tolerance:  decimal.RequireFromString("0.00015"),
	}
}

func (p Params) Validate() error {
	switch {
	case p.Ticker == "":
		return fmt.Errorf("%w: ticker is empty", ErrInvalidParams)
	case p.FastPeriod <= 0 || p.SlowPeriod <= 0:
		return fmt.Errorf("%w: periods must be positive, got fast %d slow %d", ErrInvalidParams, p.FastPeriod, p.SlowPeriod)
	case p.FastPeriod >= p.SlowPeriod:
		return fmt.Errorf("%w: fast period %d must be shorter than slow period %d", ErrInvalidParams, p.FastPeriod, p.SlowPeriod)
	case p.Tolerance.IsNegative():
		return fmt.Errorf("%w: tolerance %s is negative", ErrInvalidParams, p.Tolerance)
	case !p.Cash.IsPositive():
		return fmt.Errorf("%w: cash %s must be positive", ErrInvalidParams, p.Cash)
	case p.End.Before(p.Start):
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidParams, p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	}
	return nil
}
