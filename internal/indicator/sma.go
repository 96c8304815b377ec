// Package indicator holds the incremental indicators the host maintains for
// subscribed symbols.
package indicator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/gct-ta/indicators"
)

var ErrInvalidPeriod = errors.New("indicator period must be positive")

// SMA is a simple moving average over the last period closes.
type SMA struct {
	name    string
	period  int
	window  []float64
	samples int
	current decimal.Decimal
}

func NewSMA(name string, period int) (*SMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma %s period %d: %w", name, period, ErrInvalidPeriod)
	}
	return &SMA{
		name:   name,
		period: period,
		window: make([]float64, 0, period),
	}, nil
}

func (s *SMA) Name() string {
	return s.name
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) IsReady() bool {
	return s.samples >= s.period
}

// Current is the latest average, zero until the indicator is ready.
func (s *SMA) Current() decimal.Decimal {
	return s.current
}

// Update pushes one close into the window and recomputes the average.
func (s *SMA) Update(value decimal.Decimal) {
	if len(s.window) == s.period {
		copy(s.window, s.window[1:])
		s.window = s.window[:s.period-1]
	}
	s.window = append(s.window, value.InexactFloat64())
	s.samples++
	if !s.IsReady() {
		return
	}
	out := indicators.SMA(s.window, s.period)
	s.current = decimal.NewFromFloat(out[len(out)-1])
}
