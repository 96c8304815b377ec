package types

import "time"

// Slice is everything that closed at one replay step.
type Slice struct {
	Time time.Time
	Bars map[string]Candle
}

// Bar returns the candle for ticker if it closed in this slice.
func (s Slice) Bar(ticker string) (Candle, bool) {
	c, ok := s.Bars[ticker]
	return c, ok
}
