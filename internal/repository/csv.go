package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"smacross/types"

	"github.com/shopspring/decimal"
)

// LoadCandlesCSV parses rows of timestamp,open,high,low,close,volume. The
// timestamp is RFC3339 or a plain YYYY-MM-DD date (UTC). A leading header row
// is skipped.
func LoadCandlesCSV(r io.Reader, ticker string, interval types.Interval) ([]types.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.TrimLeadingSpace = true

	var candles []types.Candle
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, line, err)
		}
		if line == 1 && isHeader(record[0]) {
			continue
		}
		c, err := parseCandleRecord(record, ticker, interval)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, line, err)
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return candles, nil
}

func isHeader(first string) bool {
	switch strings.ToLower(strings.TrimSpace(first)) {
	case "timestamp", "date", "time":
		return true
	}
	return false
}

func parseCandleRecord(record []string, ticker string, interval types.Interval) (types.Candle, error) {
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return types.Candle{}, err
	}
	values := make([]decimal.Decimal, 5)
	for i, field := range record[1:] {
		v, err := decimal.NewFromString(strings.TrimSpace(field))
		if err != nil {
			return types.Candle{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		values[i] = v
	}
	return types.Candle{
		Ticker:    ticker,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Interval:  interval,
		Timestamp: ts,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
