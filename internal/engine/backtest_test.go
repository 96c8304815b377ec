package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"smacross/internal/broker"
	"smacross/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

type mockStore struct {
	candles  map[string][]types.Candle
	assetErr error
}

func (m *mockStore) GetAssetByTicker(_ context.Context, ticker string) (*types.Asset, error) {
	if m.assetErr != nil {
		return nil, m.assetErr
	}
	return &types.Asset{Id: 1, Ticker: ticker, Type: types.AssetTypeEtf}, nil
}

func (m *mockStore) GetCandles(_ context.Context, _ int, ticker string, _ types.Interval, start, end time.Time) ([]types.Candle, error) {
	var out []types.Candle
	for _, c := range m.candles[ticker] {
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// dailyCandles builds consecutive daily bars starting at from. Each bar opens at
// the previous close.
func dailyCandles(ticker string, from time.Time, closes ...float64) []types.Candle {
	candles := make([]types.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		candles[i] = types.Candle{
			AssetId:   1,
			Ticker:    ticker,
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(max(open, c)),
			Low:       decimal.NewFromFloat(min(open, c)),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromInt(1000),
			Interval:  types.Day,
			Timestamp: from.AddDate(0, 0, i),
		}
	}
	return candles
}

// scriptedAlgo subscribes to its tickers and runs onData on every step with
// the bar index. It records the callback order.
type scriptedAlgo struct {
	tickers []string
	cash    int64
	days    int
	initErr error
	onData  func(api AlgorithmAPI, step int, slice types.Slice)

	api    AlgorithmAPI
	step   int
	calls  []string
	events []types.OrderEvent
	times  []time.Time
	ended  bool
}

func (a *scriptedAlgo) Initialize(api AlgorithmAPI) error {
	if a.initErr != nil {
		return a.initErr
	}
	a.api = api
	if err := api.SetStartDate(testStart); err != nil {
		return err
	}
	if err := api.SetEndDate(testStart.AddDate(0, 0, a.days)); err != nil {
		return err
	}
	if err := api.SetCash(decimal.NewFromInt(a.cash)); err != nil {
		return err
	}
	for _, ticker := range a.tickers {
		if _, err := api.AddEquity(ticker, types.Day); err != nil {
			return err
		}
	}
	return nil
}

func (a *scriptedAlgo) OnData(slice types.Slice) {
	a.calls = append(a.calls, "data")
	a.times = append(a.times, a.api.Time())
	if a.onData != nil {
		a.onData(a.api, a.step, slice)
	}
	a.step++
}

func (a *scriptedAlgo) OnOrderEvent(event types.OrderEvent) {
	a.calls = append(a.calls, string(event.Status))
	a.events = append(a.events, event)
}

func (a *scriptedAlgo) OnEndOfAlgorithm() {
	a.ended = true
}

func newTestEngine(algo Algorithm, store dataStore) *Engine {
	return NewEngine(
		algo,
		store,
		broker.NewSimulated(broker.NoFee, false),
		NewPortfolioConfig(decimal.NewFromInt(1000), false, DefaultFreePortfolioValuePercent),
		NewReportingConfig(decimal.Zero, false, ""),
		NewRunConfig(false),
		WithLogger(zap.NewNop()),
	)
}

func TestEngine_FillsAtNextOpen(t *testing.T) {
	algo := &scriptedAlgo{
		tickers: []string{"SPY"},
		cash:    1000,
		days:    10,
		onData: func(api AlgorithmAPI, step int, _ types.Slice) {
			if step != 0 {
				return
			}
			id, err := api.SetHoldings("SPY", decimal.NewFromInt(1))
			require.NoError(t, err)
			order, ok := api.GetOrderByID(id)
			require.True(t, ok)
			// 1000 * 0.9975 / 10
			assert.Equal(t, "99", order.Quantity.String())
			assert.Equal(t, types.SideTypeBuy, order.Side)
			assert.True(t, api.Holdings("SPY").IsZero(), "nothing is held before the next bar")
		},
	}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10, 11, 12, 13),
	}}

	report, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"data", "ORDER_SUBMITTED", "ORDER_FILLED", "data", "data", "data"}, algo.calls)
	require.Len(t, algo.events, 2)
	fill := algo.events[1]
	assert.Equal(t, "10", fill.FillPrice.String(), "filled at the open of the following bar")
	assert.Equal(t, "99", fill.FillQuantity.String())
	assert.Equal(t, testStart.AddDate(0, 0, 2), fill.Time)

	assert.True(t, algo.ended)
	assert.Equal(t, 1, report.TotalTrades)
	assert.True(t, report.Invested)
	// 10 cash left + 99 * 13
	assert.Equal(t, "1297", report.FinalValue.String())
}

func TestEngine_TimeIsBarClose(t *testing.T) {
	algo := &scriptedAlgo{tickers: []string{"SPY"}, cash: 1000, days: 10}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10, 11, 12),
	}}

	_, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, algo.times, 3)
	for i, ts := range algo.times {
		assert.Equal(t, testStart.AddDate(0, 0, i+1), ts)
	}
}

func TestEngine_Liquidate(t *testing.T) {
	algo := &scriptedAlgo{
		tickers: []string{"SPY"},
		cash:    1000,
		days:    10,
		onData: func(api AlgorithmAPI, step int, _ types.Slice) {
			switch step {
			case 0:
				_, err := api.SetHoldings("SPY", decimal.NewFromInt(1))
				require.NoError(t, err)
			case 2:
				assert.Equal(t, "99", api.Holdings("SPY").String())
				id, err := api.Liquidate("SPY")
				require.NoError(t, err)
				order, _ := api.GetOrderByID(id)
				assert.Equal(t, types.SideTypeSell, order.Side)
				assert.Equal(t, "99", order.Quantity.String())
			}
		},
	}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10, 11, 12, 13),
	}}

	report, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"data", "ORDER_SUBMITTED", "ORDER_FILLED", "data", "data", "ORDER_SUBMITTED", "ORDER_FILLED", "data"}, algo.calls)
	assert.False(t, report.Invested)
	assert.Equal(t, 1, report.TotalTrades)
	// bought 99 @ 10, sold 99 @ 12
	assert.Equal(t, "198", report.NetProfit.String())
	assert.Equal(t, "198", report.RealizedPnL.String())
	assert.Equal(t, "1198", report.FinalValue.String())
	assert.Equal(t, "0.198", report.TotalReturn.String())
}

func TestEngine_RejectedOrder(t *testing.T) {
	algo := &scriptedAlgo{
		tickers: []string{"SPY"},
		cash:    1000,
		days:    10,
		onData: func(api AlgorithmAPI, step int, _ types.Slice) {
			if step == 0 {
				_, err := api.SetHoldings("SPY", decimal.NewFromInt(1))
				require.NoError(t, err)
			}
		},
	}
	// gaps from 10 to 20 overnight, 99 shares no longer fit
	candles := dailyCandles("SPY", testStart, 10, 20)
	candles[1].Open = decimal.NewFromInt(20)
	store := &mockStore{candles: map[string][]types.Candle{"SPY": candles}}

	report, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, algo.events, 2)
	rejected := algo.events[1]
	assert.Equal(t, types.OrderRejected, rejected.Status)
	assert.NotEmpty(t, rejected.Message)
	assert.False(t, report.Invested)
	assert.Equal(t, "1000", report.FinalValue.String())
}

func TestEngine_CancelsPendingAtEnd(t *testing.T) {
	var orderID string
	algo := &scriptedAlgo{
		tickers: []string{"SPY"},
		cash:    1000,
		days:    10,
		onData: func(api AlgorithmAPI, step int, _ types.Slice) {
			if step == 1 {
				var err error
				orderID, err = api.SetHoldings("SPY", decimal.NewFromInt(1))
				require.NoError(t, err)
			}
		},
	}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10, 11),
	}}

	_, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"data", "data", "ORDER_SUBMITTED", "ORDER_CANCELED"}, algo.calls)
	order, ok := algo.api.GetOrderByID(orderID)
	require.True(t, ok)
	assert.Equal(t, types.OrderCanceled, order.Status)
}

func TestEngine_SetupLockedAfterInitialize(t *testing.T) {
	algo := &scriptedAlgo{
		tickers: []string{"SPY"},
		cash:    1000,
		days:    10,
		onData: func(api AlgorithmAPI, step int, _ types.Slice) {
			if step != 0 {
				return
			}
			assert.ErrorIs(t, api.SetCash(decimal.NewFromInt(5)), ErrSetupLocked)
			assert.ErrorIs(t, api.SetStartDate(testStart), ErrSetupLocked)
			assert.ErrorIs(t, api.SetEndDate(testStart), ErrSetupLocked)
			_, err := api.AddEquity("QQQ", types.Day)
			assert.ErrorIs(t, err, ErrSetupLocked)
			_, err = api.SMA("SPY", 3)
			assert.ErrorIs(t, err, ErrSetupLocked)
		},
	}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10),
	}}

	_, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, algo.step)
}

func TestEngine_IndicatorsFollowCloses(t *testing.T) {
	var sma Indicator
	var ready []bool
	var values []string
	algo := &smaAlgo{
		scriptedAlgo: scriptedAlgo{
			tickers: []string{"SPY"},
			cash:    1000,
			days:    10,
			onData: func(api AlgorithmAPI, _ int, _ types.Slice) {
				ready = append(ready, sma.IsReady())
				values = append(values, sma.Current().String())
			},
		},
		register: func(ind Indicator) { sma = ind },
	}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10, 11, 12, 13),
	}}

	_, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true, true, true}, ready)
	assert.Equal(t, []string{"0", "10.5", "11.5", "12.5"}, values)
}

type smaAlgo struct {
	scriptedAlgo
	register func(Indicator)
}

func (a *smaAlgo) Initialize(api AlgorithmAPI) error {
	if err := a.scriptedAlgo.Initialize(api); err != nil {
		return err
	}
	ind, err := api.SMA("SPY", 2)
	if err != nil {
		return err
	}
	a.register(ind)
	return nil
}

func TestEngine_MergesFeedsByCloseTime(t *testing.T) {
	var slices []types.Slice
	algo := &scriptedAlgo{
		tickers: []string{"SPY", "QQQ"},
		cash:    1000,
		days:    10,
		onData: func(_ AlgorithmAPI, _ int, slice types.Slice) {
			slices = append(slices, slice)
		},
	}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10, 11, 12),
		"QQQ": dailyCandles("QQQ", testStart.AddDate(0, 0, 1), 20, 21, 22),
	}}

	_, err := newTestEngine(algo, store).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, slices, 4)
	wantBars := []int{1, 2, 2, 1}
	for i, s := range slices {
		assert.Equal(t, testStart.AddDate(0, 0, i+1), s.Time)
		assert.Len(t, s.Bars, wantBars[i], "step %d", i)
	}
	_, ok := slices[0].Bar("QQQ")
	assert.False(t, ok)
	qqq, ok := slices[3].Bar("QQQ")
	require.True(t, ok)
	assert.Equal(t, "22", qqq.Close.String())
}

func TestEngine_StopsBetweenStepsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const stopAt = 2
	algo := &scriptedAlgo{
		tickers: []string{"SPY"},
		cash:    1000,
		days:    10,
		onData: func(_ AlgorithmAPI, step int, _ types.Slice) {
			if step == stopAt {
				cancel()
			}
		},
	}
	store := &mockStore{candles: map[string][]types.Candle{
		"SPY": dailyCandles("SPY", testStart, 10, 11, 12, 13, 14, 15),
	}}

	report, err := newTestEngine(algo, store).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Nil(t, report)
	assert.Equal(t, stopAt+1, algo.step, "the step that canceled completes, no further step starts")
	assert.False(t, algo.ended)
}

func TestEngine_RunErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	initErr := errors.New("boom")
	spy := map[string][]types.Candle{"SPY": dailyCandles("SPY", testStart, 10)}

	tests := []struct {
		name    string
		algo    *scriptedAlgo
		store   *mockStore
		ctx     func() context.Context
		wantErr error
	}{
		{
			name:    "no subscriptions",
			algo:    &scriptedAlgo{cash: 1000, days: 10},
			store:   &mockStore{candles: spy},
			wantErr: ErrNoSubscriptions,
		},
		{
			name:    "end before start",
			algo:    &scriptedAlgo{tickers: []string{"SPY"}, cash: 1000, days: -1},
			store:   &mockStore{candles: spy},
			wantErr: ErrInvalidRange,
		},
		{
			name:    "initialize fails",
			algo:    &scriptedAlgo{initErr: initErr},
			store:   &mockStore{candles: spy},
			wantErr: initErr,
		},
		{
			name:    "store fails",
			algo:    &scriptedAlgo{tickers: []string{"SPY"}, cash: 1000, days: 10},
			store:   &mockStore{candles: spy, assetErr: storeErr},
			wantErr: storeErr,
		},
		{
			name:  "context canceled",
			algo:  &scriptedAlgo{tickers: []string{"SPY"}, cash: 1000, days: 10},
			store: &mockStore{candles: spy},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.ctx != nil {
				ctx = tc.ctx()
			}
			_, err := newTestEngine(tc.algo, tc.store).Run(ctx)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.False(t, tc.algo.ended)
		})
	}
}
