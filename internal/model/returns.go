package model

import "time"

// ReturnPeriod is one TWRR sub-period. Sub-period boundaries fall at
// every external cash flow so the linked return measures manager skill
// independent of flow timing.
type ReturnPeriod struct {
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	TWRR        float64   `json:"twrr"`
}

// ReturnSeries is the computed return profile of an account over a
// range: the linked time-weighted return, the money-weighted return,
// and the sub-periods that produced them.
type ReturnSeries struct {
	AccountID          string         `json:"accountId"`
	Periods            []ReturnPeriod `json:"periods"`
	TWRR               float64        `json:"twrr"`
	MWRR               float64        `json:"mwrr"`
	CalculationVersion string         `json:"calculationVersion,omitempty"`
}

// RiskSnapshot is the set of risk metrics for an account as of a date.
// All ratio metrics are 0, never NaN, when their denominator is zero.
type RiskSnapshot struct {
	AccountID          string    `json:"accountId"`
	AsOf               time.Time `json:"asOf"`
	Volatility         float64   `json:"volatility"`
	VaR95              float64   `json:"var95"`
	VaR99              float64   `json:"var99"`
	CVaR95             float64   `json:"cvar95"`
	CVaR99             float64   `json:"cvar99"`
	MaxDrawdown        float64   `json:"maxDrawdown"`
	Sharpe             float64   `json:"sharpe"`
	Sortino            float64   `json:"sortino"`
	Calmar             float64   `json:"calmar"`
	CalculationVersion string    `json:"calculationVersion,omitempty"`
}

// AttributionSegment is a Brinson decomposition for one asset class,
// optionally nested one level deeper by sector.
type AttributionSegment struct {
	Key               string               `json:"key"`
	AllocationEffect  float64              `json:"allocationEffect"`
	SelectionEffect   float64              `json:"selectionEffect"`
	TotalContribution float64              `json:"totalContribution"`
	Sectors           []AttributionSegment `json:"sectors,omitempty"`
}

// AttributionResult is the full decomposition of portfolio excess
// return over a benchmark for a period.
type AttributionResult struct {
	AccountID          string               `json:"accountId"`
	BenchmarkID        string               `json:"benchmarkId"`
	PeriodStart        time.Time            `json:"periodStart"`
	PeriodEnd          time.Time            `json:"periodEnd"`
	Segments           []AttributionSegment `json:"segments"`
	ExcessReturn       float64              `json:"excessReturn"`
	CalculationVersion string               `json:"calculationVersion,omitempty"`
}
