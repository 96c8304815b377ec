package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"smacross/types"

	"github.com/shopspring/decimal"
)

type Report struct {
	// Meta / period info
	StartDate   time.Time
	EndDate     time.Time
	TotalPeriod time.Duration
	TotalTrades int

	// Absolute performance
	InitialCash          decimal.Decimal
	FinalValue           decimal.Decimal
	TotalReturn          decimal.Decimal
	NetProfit            decimal.Decimal
	RealizedPnL          decimal.Decimal // closed quantity only, before fees
	NetAvgProfitPerTrade decimal.Decimal
	CAGR                 decimal.Decimal

	// Trade-level distribution metrics
	AvgWin  decimal.Decimal
	AvgLoss decimal.Decimal

	// Drawdown & loss streak metrics
	MaxDrawdown          decimal.Decimal
	MaxDrawdownPercent   decimal.Decimal
	MaxDrawdownDuration  time.Duration
	MaxConsecutiveLosses int

	// Risk-adjusted metrics
	SharpeRatio  decimal.Decimal
	ProfitFactor decimal.Decimal

	TotalFees decimal.Decimal
	Invested  bool
}

type trade struct {
	buy  *types.ExecutionReport
	sell *types.ExecutionReport
}

// tradeResult is a realized (both legs filled) trade.
type tradeResult struct {
	closeTime time.Time
	netPnL    decimal.Decimal
}

func (e *Engine) printReport(report *Report) {
	fmt.Println("===== Trading Report =====")
	fmt.Printf("Start Date:            %s\n", report.StartDate.Format(time.DateOnly))
	fmt.Printf("End Date:              %s\n", report.EndDate.Format(time.DateOnly))
	fmt.Printf("Total Period:          %d days\n", report.TotalPeriod/(24*time.Hour))
	fmt.Printf("Total Trades:          %d\n", report.TotalTrades)

	fmt.Println("\n-- Absolute Performance --")
	fmt.Printf("Initial Cash:          %s\n", report.InitialCash.StringFixed(2))
	fmt.Printf("Final Value:           %s\n", report.FinalValue.StringFixed(2))
	fmt.Printf("Total Return %%:        %s\n", report.TotalReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Printf("Net Profit:            %s\n", report.NetProfit.StringFixed(2))
	fmt.Printf("Realized PnL:          %s\n", report.RealizedPnL.StringFixed(2))
	fmt.Printf("Avg Profit/Trade:      %s\n", report.NetAvgProfitPerTrade.StringFixed(2))
	fmt.Printf("CAGR:                  %s\n", report.CAGR.StringFixed(4))

	fmt.Println("\n-- Trade-Level Metrics --")
	fmt.Printf("Avg Win:               %s\n", report.AvgWin.StringFixed(2))
	fmt.Printf("Avg Loss:              %s\n", report.AvgLoss.StringFixed(2))
	fmt.Printf("Profit Factor:         %s\n", report.ProfitFactor.StringFixed(2))

	fmt.Println("\n-- Drawdown Metrics --")
	fmt.Printf("Max Drawdown:          %s\n", report.MaxDrawdown.StringFixed(2))
	fmt.Printf("Max Drawdown %%:        %s\n", report.MaxDrawdownPercent.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Printf("Max Drawdown Duration: %v\n", report.MaxDrawdownDuration)
	fmt.Printf("Max Consecutive Losses:%d\n", report.MaxConsecutiveLosses)

	fmt.Println("\n-- Risk-Adjusted Metrics --")
	fmt.Printf("Sharpe Ratio:          %s\n", report.SharpeRatio.StringFixed(4))

	fmt.Println("\n-- Costs --")
	fmt.Printf("Total Fees:            %s\n", report.TotalFees.StringFixed(2))
	fmt.Printf("Invested At End:       %t\n", report.Invested)
	fmt.Println("==========================")
}

func (e *Engine) generateReport(start, end time.Time, initialCash decimal.Decimal, results *portfolio) *Report {
	trades := executionsToTrades(results)
	realized := realizedResults(trades)
	final := results.GetPortfolioSnapshot(end)

	report := &Report{
		StartDate:   start,
		EndDate:     end,
		TotalPeriod: end.Sub(start).Truncate(24 * time.Hour),
		TotalTrades: len(trades),
		InitialCash: initialCash,
		FinalValue:  final.TotalValue(),
		RealizedPnL: results.realizedPnL,
		TotalFees:   totalFees(results.executions),
		Invested:    final.Invested(),
	}
	if initialCash.IsPositive() {
		report.TotalReturn = report.FinalValue.Div(initialCash).Sub(decimal.NewFromInt(1))
	}

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		report.NetProfit, report.NetAvgProfitPerTrade = calcNetProfit(trades, len(realized))
	}()
	go func() {
		defer wg.Done()
		report.AvgWin, report.AvgLoss, report.ProfitFactor = calcWinLoss(realized)
	}()
	go func() {
		defer wg.Done()
		report.CAGR = calcCAGR(results.snapshots)
	}()
	go func() {
		defer wg.Done()
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDuration = calcDrawdownMetrics(results.snapshots)
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(realized)
	}()
	go func() {
		defer wg.Done()
		report.SharpeRatio = calcSharpeRatio(results.snapshots, e.reportingConfig.sharpeRiskFreeRate)
	}()
	wg.Wait()

	return report
}

// legPnL sums the signed cash flow and the fees of one execution leg.
func legPnL(report *types.ExecutionReport) (gross, fees decimal.Decimal) {
	if report == nil {
		return decimal.Zero, decimal.Zero
	}
	for _, fill := range report.Fills {
		fees = fees.Add(fill.Fee)
		value := fill.Quantity.Mul(fill.Price)
		switch report.Side {
		case types.SideTypeBuy:
			gross = gross.Sub(value)
		case types.SideTypeSell:
			gross = gross.Add(value)
		}
	}
	return gross, fees
}

func realizedResults(trades []trade) []tradeResult {
	var results []tradeResult
	for _, tr := range trades {
		if tr.buy == nil || tr.sell == nil {
			continue
		}
		buyGross, buyFees := legPnL(tr.buy)
		sellGross, sellFees := legPnL(tr.sell)
		closeTime := tr.buy.ReportTime
		if tr.sell.ReportTime.After(closeTime) {
			closeTime = tr.sell.ReportTime
		}
		results = append(results, tradeResult{
			closeTime: closeTime,
			netPnL:    buyGross.Add(sellGross).Sub(buyFees).Sub(sellFees),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].closeTime.Before(results[j].closeTime) })
	return results
}

// calcNetProfit realizes PnL only on closed trades but charges fees of open legs too.
func calcNetProfit(trades []trade, realizedCount int) (decimal.Decimal, decimal.Decimal) {
	net := decimal.Zero
	for _, tr := range trades {
		buyGross, buyFees := legPnL(tr.buy)
		sellGross, sellFees := legPnL(tr.sell)
		if tr.buy != nil && tr.sell != nil {
			net = net.Add(buyGross).Add(sellGross)
		}
		net = net.Sub(buyFees).Sub(sellFees)
	}
	if realizedCount == 0 {
		return net, decimal.Zero
	}
	return net, net.Div(decimal.NewFromInt(int64(realizedCount)))
}

func calcWinLoss(results []tradeResult) (avgWin, avgLoss, profitFactor decimal.Decimal) {
	sumWins, sumLosses := decimal.Zero, decimal.Zero
	wins, losses := 0, 0
	for _, r := range results {
		switch {
		case r.netPnL.IsPositive():
			sumWins = sumWins.Add(r.netPnL)
			wins++
		case r.netPnL.IsNegative():
			sumLosses = sumLosses.Add(r.netPnL.Abs())
			losses++
		}
	}
	if wins > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(losses)))
	}
	if sumLosses.IsPositive() {
		profitFactor = sumWins.Div(sumLosses)
	}
	return avgWin, avgLoss, profitFactor
}

func calcCAGR(snapshots []types.PortfolioView) decimal.Decimal {
	if len(snapshots) < 2 {
		return decimal.Zero
	}
	startSnap := snapshots[0]
	endSnap := snapshots[len(snapshots)-1]
	startVal := startSnap.TotalValue()
	if !startVal.IsPositive() {
		return decimal.Zero
	}
	years := endSnap.Time.Sub(startSnap.Time).Hours() / (24.0 * 365.25)
	if years <= 0 {
		return decimal.Zero
	}
	ratio := endSnap.TotalValue().Div(startVal)
	if !ratio.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0)
}

// calcDrawdownMetrics expects snapshots in chronological order.
func calcDrawdownMetrics(snapshots []types.PortfolioView) (decimal.Decimal, decimal.Decimal, time.Duration) {
	peak := decimal.Zero
	var peakTime time.Time
	maxDD, maxDDPct := decimal.Zero, decimal.Zero
	var maxDDDuration time.Duration

	for i, snap := range snapshots {
		equity := snap.TotalValue()
		if i == 0 || equity.GreaterThan(peak) {
			peak = equity
			peakTime = snap.Time
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = snap.Time.Sub(peakTime)
		}
	}
	return maxDD, maxDDPct, maxDDDuration
}

func calcMaxConsecutiveLosses(results []tradeResult) int {
	maxStreak, streak := 0, 0
	for _, r := range results {
		if !r.netPnL.IsNegative() {
			streak = 0
			continue
		}
		streak++
		if streak > maxStreak {
			maxStreak = streak
		}
	}
	return maxStreak
}

// calcSharpeRatio annualizes the monthly Sharpe ratio of month-end equity.
func calcSharpeRatio(snapshots []types.PortfolioView, annualRiskFree decimal.Decimal) decimal.Decimal {
	monthly := getMonthlyReturns(snapshots)
	if len(monthly) < 2 {
		return decimal.Zero
	}
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0

	var sum float64
	excess := make([]float64, len(monthly))
	for i, r := range monthly {
		excess[i] = r - rfMonthly
		sum += excess[i]
	}
	mean := sum / float64(len(excess))

	var varianceSum float64
	for _, x := range excess {
		varianceSum += (x - mean) * (x - mean)
	}
	std := math.Sqrt(varianceSum / float64(len(excess)-1))
	if std == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(mean / std * math.Sqrt(12.0))
}

// getMonthlyReturns returns the returns between consecutive month-end values.
func getMonthlyReturns(snapshots []types.PortfolioView) []float64 {
	var monthEnds []decimal.Decimal
	var lastKey int
	for i, snap := range snapshots {
		key := snap.Time.Year()*12 + int(snap.Time.Month())
		if i > 0 && key == lastKey {
			monthEnds[len(monthEnds)-1] = snap.TotalValue()
			continue
		}
		monthEnds = append(monthEnds, snap.TotalValue())
		lastKey = key
	}

	var returns []float64
	for i := 1; i < len(monthEnds); i++ {
		prev := monthEnds[i-1]
		if !prev.IsPositive() {
			continue
		}
		returns = append(returns, monthEnds[i].Div(prev).Sub(decimal.NewFromInt(1)).InexactFloat64())
	}
	return returns
}

func totalFees(execs []types.ExecutionReport) decimal.Decimal {
	fees := decimal.Zero
	for _, er := range execs {
		fees = fees.Add(er.TotalFees)
	}
	return fees
}

// executionsToTrades pairs filled executions per ticker in time order. Each
// leg closes the oldest unmatched leg of the opposite side, otherwise it waits
// for one. Legs left unmatched become open trades.
func executionsToTrades(p *portfolio) []trade {
	execsByTicker := make(map[string][]*types.ExecutionReport)
	for i := range p.executions {
		er := &p.executions[i]
		execsByTicker[er.Ticker] = append(execsByTicker[er.Ticker], er)
	}

	var trades []trade
	for _, execs := range execsByTicker {
		sort.SliceStable(execs, func(i, j int) bool { return execs[i].ReportTime.Before(execs[j].ReportTime) })
		var unmatched []*types.ExecutionReport
		for _, leg := range execs {
			if len(unmatched) > 0 && unmatched[0].Side != leg.Side {
				trades = append(trades, newTrade(unmatched[0], leg))
				unmatched = unmatched[1:]
				continue
			}
			unmatched = append(unmatched, leg)
		}
		for _, leg := range unmatched {
			trades = append(trades, newTrade(leg))
		}
	}

	sort.Slice(trades, func(i, j int) bool {
		return tradeTime(trades[i]).Before(tradeTime(trades[j]))
	})
	return trades
}

func newTrade(legs ...*types.ExecutionReport) trade {
	var tr trade
	for _, leg := range legs {
		if leg.Side == types.SideTypeBuy {
			tr.buy = leg
		} else {
			tr.sell = leg
		}
	}
	return tr
}

// tradeTime returns the earliest non-nil leg time for a trade.
func tradeTime(t trade) time.Time {
	switch {
	case t.buy != nil && t.sell != nil:
		if t.buy.ReportTime.Before(t.sell.ReportTime) {
			return t.buy.ReportTime
		}
		return t.sell.ReportTime
	case t.buy != nil:
		return t.buy.ReportTime
	case t.sell != nil:
		return t.sell.ReportTime
	}
	return time.Time{}
}
