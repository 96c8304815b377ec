package types

type Side string

type OrderType string

type OrderStatus string

const (
	OrderSubmitted OrderStatus = "ORDER_SUBMITTED"
	OrderFilled    OrderStatus = "ORDER_FILLED"
	OrderRejected  OrderStatus = "ORDER_REJECTED"
	OrderCanceled  OrderStatus = "ORDER_CANCELED"

	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"

	TypeMarket OrderType = "MARKET"
)
