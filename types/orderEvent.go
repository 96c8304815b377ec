package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is delivered to the algorithm whenever an order changes status.
type OrderEvent struct {
	OrderId      string
	Ticker       string
	Side         Side
	Status       OrderStatus
	FillPrice    decimal.Decimal
	FillQuantity decimal.Decimal
	Fee          decimal.Decimal
	Message      string
	Time         time.Time
}

// OrderEventFromReport converts a broker report into the event the algorithm sees.
func OrderEventFromReport(er ExecutionReport) OrderEvent {
	return OrderEvent{
		OrderId:      er.OrderId,
		Ticker:       er.Ticker,
		Side:         er.Side,
		Status:       er.Status,
		FillPrice:    er.AvgFillPrice,
		FillQuantity: er.TotalFilledQty,
		Fee:          er.TotalFees,
		Message:      er.RejectReason,
		Time:         er.ReportTime,
	}
}
