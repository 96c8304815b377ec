package engine

import (
	"github.com/shopspring/decimal"
)

// DefaultFreePortfolioValuePercent is the share of portfolio value SetHoldings
// leaves in cash so the fill price and commission still fit.
var DefaultFreePortfolioValuePercent = decimal.RequireFromString("0.0025")

type PortfolioConfig struct {
	initialCash               decimal.Decimal
	allowShortSelling         bool
	freePortfolioValuePercent decimal.Decimal
}

// NewPortfolioConfig sets the cash used when the algorithm does not call SetCash.
func NewPortfolioConfig(initialCash decimal.Decimal, allowShortSelling bool, freePortfolioValuePercent decimal.Decimal) *PortfolioConfig {
	if freePortfolioValuePercent.IsNegative() {
		freePortfolioValuePercent = decimal.Zero
	}
	return &PortfolioConfig{
		initialCash:               initialCash,
		allowShortSelling:         allowShortSelling,
		freePortfolioValuePercent: freePortfolioValuePercent,
	}
}

type ReportingConfig struct {
	sharpeRiskFreeRate decimal.Decimal
	printReport        bool
	tradesCSVPath      string
}

func NewReportingConfig(sharpeRiskFreeRate decimal.Decimal, printReport bool, tradesCSVPath string) *ReportingConfig {
	return &ReportingConfig{
		sharpeRiskFreeRate: sharpeRiskFreeRate,
		printReport:        printReport,
		tradesCSVPath:      tradesCSVPath,
	}
}

type RunConfig struct {
	showProgress bool
}

func NewRunConfig(showProgress bool) *RunConfig {
	return &RunConfig{showProgress: showProgress}
}
