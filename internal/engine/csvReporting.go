package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"smacross/types"
)

var tradesCSVHeader = []string{
	"trade_id",
	"leg",
	"order_id",
	"ticker",
	"side",
	"status",
	"filled_qty",
	"avg_fill_price",
	"fees",
	"num_fills",
	"report_time",
}

// writeTradesCSVFile writes trades to a CSV file at the given path.
func (e *Engine) writeTradesCSVFile(path string, trades []trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	return writeTradesCSV(f, trades)
}

// writeTradesCSV writes one row per trade leg.
func writeTradesCSV(w io.Writer, trades []trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradesCSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, t := range trades {
		tradeID := strconv.Itoa(i)
		if t.buy != nil {
			if err := cw.Write(executionRow(tradeID, "buy", t.buy)); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
		if t.sell != nil {
			if err := cw.Write(executionRow(tradeID, "sell", t.sell)); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func executionRow(tradeID, leg string, er *types.ExecutionReport) []string {
	return []string{
		tradeID,
		leg,
		er.OrderId,
		er.Ticker,
		string(er.Side),
		string(er.Status),
		er.TotalFilledQty.String(),
		er.AvgFillPrice.String(),
		er.TotalFees.String(),
		strconv.Itoa(len(er.Fills)),
		er.ReportTime.Format(time.RFC3339),
	}
}
