package broker

import (
	"testing"
	"time"

	"smacross/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func execCtx(cash string, held map[string]string) types.ExecutionContext {
	positions := make(map[string]types.PositionSnapshot)
	for ticker, qty := range held {
		positions[ticker] = types.PositionSnapshot{Ticker: ticker, Quantity: dec(qty)}
	}
	return types.ExecutionContext{
		Bars: map[string]types.Candle{
			"SPY": {Ticker: "SPY", Open: dec("100"), Close: dec("102"), Interval: types.Day},
		},
		Portfolio: types.PortfolioView{Cash: dec(cash), Positions: positions},
		CurTime:   time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func order(id string, side types.Side, qty string) types.Order {
	return types.NewOrder(id, "SPY", dec(qty), types.TypeMarket, side, "test", time.Time{})
}

func TestUSEquityFixedFee(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		price string
		qty   string
		want  string
	}{
		{"minimum applies", "100", "10", "1"},
		{"per share", "100", "1000", "5"},
		{"capped at one percent", "0.2", "1000", "2"},
		{"cap below minimum", "0.01", "10", "0.001"},
		{"zero value", "0", "10", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := USEquityFixedFee(dec(tt.price), dec(tt.qty))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestSimulated_FillsAtOpen(t *testing.T) {
	t.Parallel()
	b := NewSimulated(USEquityFixedFee, false)
	ctx := execCtx("10000", nil)

	reports := b.Execute([]types.Order{order("a", types.SideTypeBuy, "50")}, ctx)
	require.Len(t, reports, 1)
	er := reports[0]
	assert.Equal(t, types.OrderFilled, er.Status)
	assert.Equal(t, "a", er.OrderId)
	assert.True(t, er.AvgFillPrice.Equal(dec("100")))
	assert.True(t, er.TotalFees.Equal(dec("1")))
	require.Len(t, er.Fills, 1)
	assert.Equal(t, ctx.CurTime, er.Fills[0].Time)
}

func TestSimulated_Rejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		cash       string
		held       map[string]string
		allowShort bool
		order      types.Order
		wantStatus types.OrderStatus
		wantReason string
	}{
		{"insufficient cash", "1000", nil, false, order("a", types.SideTypeBuy, "10"), types.OrderRejected, reasonNoCash},
		{"exact cash incl fee", "1001", nil, false, order("a", types.SideTypeBuy, "10"), types.OrderFilled, ""},
		{"short blocked", "0", map[string]string{"SPY": "5"}, false, order("a", types.SideTypeSell, "6"), types.OrderRejected, reasonShortSell},
		{"short allowed", "0", nil, true, order("a", types.SideTypeSell, "6"), types.OrderFilled, ""},
		{"non positive quantity", "1000", nil, false, order("a", types.SideTypeBuy, "0"), types.OrderRejected, reasonBadQuantity},
		{"no bar", "1000", nil, false, func() types.Order {
			o := order("a", types.SideTypeBuy, "1")
			o.Ticker = "QQQ"
			return o
		}(), types.OrderRejected, reasonNoMarketData},
		{"limit order", "1000", nil, false, func() types.Order {
			o := order("a", types.SideTypeBuy, "1")
			o.OrderType = "LIMIT"
			return o
		}(), types.OrderRejected, reasonUnsupportedTyp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSimulated(USEquityFixedFee, tt.allowShort)
			reports := b.Execute([]types.Order{tt.order}, execCtx(tt.cash, tt.held))
			require.Len(t, reports, 1)
			assert.Equal(t, tt.wantStatus, reports[0].Status)
			assert.Equal(t, tt.wantReason, reports[0].RejectReason)
		})
	}
}

func TestSimulated_CashIsSharedAcrossOrders(t *testing.T) {
	t.Parallel()
	b := NewSimulated(nil, false)
	reports := b.Execute([]types.Order{
		order("a", types.SideTypeBuy, "6"),
		order("b", types.SideTypeBuy, "6"),
	}, execCtx("1000", nil))
	require.Len(t, reports, 2)
	assert.Equal(t, types.OrderFilled, reports[0].Status)
	assert.Equal(t, types.OrderRejected, reports[1].Status)
}
