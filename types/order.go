package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a market order as tracked by the host. Quantity is always positive;
// the direction lives in Side.
type Order struct {
	Id        string
	Ticker    string
	Quantity  decimal.Decimal
	OrderType OrderType
	Side      Side
	Status    OrderStatus
	Tag       string
	CreatedAt time.Time
}

func NewOrder(
	id string,
	ticker string,
	quantity decimal.Decimal,
	orderType OrderType,
	side Side,
	tag string,
	createdAt time.Time,
) Order {
	return Order{
		Id:        id,
		Ticker:    ticker,
		Quantity:  quantity,
		OrderType: orderType,
		Side:      side,
		Status:    OrderSubmitted,
		Tag:       tag,
		CreatedAt: createdAt,
	}
}

// SignedQuantity is positive for buys and negative for sells.
func (o Order) SignedQuantity() decimal.Decimal {
	if o.Side == SideTypeSell {
		return o.Quantity.Neg()
	}
	return o.Quantity
}
