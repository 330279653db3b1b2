package service

import (
	"math"
	"sort"
	"time"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/model"
)

// RiskEngine computes risk metrics over a daily return series. Every
// ratio metric degrades to 0 when its denominator is zero; the engine
// never emits NaN or Inf.
type RiskEngine struct {
	cfg config.CalculationConfig
}

// NewRiskEngine creates a RiskEngine with the given calculation knobs.
func NewRiskEngine(cfg config.CalculationConfig) *RiskEngine {
	return &RiskEngine{cfg: cfg}
}

// Compute derives the full risk snapshot from a daily return series.
// The VaR window bounds how much history the tail metrics consider; at
// least two observations are required.
func (e *RiskEngine) Compute(accountID string, asOf time.Time, returns []float64) (model.RiskSnapshot, error) {
	if len(returns) < 2 {
		return model.RiskSnapshot{}, apperrors.ErrInsufficientData
	}

	window := returns
	if e.cfg.VaRWindow > 0 && len(window) > e.cfg.VaRWindow {
		window = window[len(window)-e.cfg.VaRWindow:]
	}

	snapshot := model.RiskSnapshot{
		AccountID:          accountID,
		AsOf:               asOf,
		Volatility:         e.AnnualizedVolatility(returns),
		VaR95:              HistoricalVaR(window, 0.95),
		VaR99:              HistoricalVaR(window, 0.99),
		MaxDrawdown:        MaxDrawdown(returns),
		CalculationVersion: e.cfg.Version,
	}
	snapshot.CVaR95 = ConditionalVaR(window, snapshot.VaR95)
	snapshot.CVaR99 = ConditionalVaR(window, snapshot.VaR99)
	snapshot.Sharpe = e.Sharpe(returns)
	snapshot.Sortino = e.Sortino(returns)
	snapshot.Calmar = e.Calmar(returns, snapshot.MaxDrawdown)

	return snapshot, nil
}

// AnnualizedVolatility is the sample standard deviation of daily
// returns scaled by the square root of the configured periods per
// year.
func (e *RiskEngine) AnnualizedVolatility(returns []float64) float64 {
	sd := sampleStdDev(returns)
	return sd * math.Sqrt(e.cfg.PeriodsPerYear)
}

// HistoricalVaR is the empirical return quantile at the given
// confidence, reported as a (typically negative) return. A higher
// confidence digs deeper into the loss tail, so VaR99 <= VaR95.
func HistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ConditionalVaR is the mean of the returns at or below the VaR
// threshold: the expected loss given that the loss exceeds VaR.
func ConditionalVaR(returns []float64, threshold float64) float64 {
	sum := 0.0
	n := 0
	for _, r := range returns {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return threshold
	}
	return sum / float64(n)
}

// MaxDrawdown is the largest peak-to-trough decline of the cumulative
// wealth curve Π(1+r), reported as a positive fraction.
func MaxDrawdown(returns []float64) float64 {
	wealth := 1.0
	peak := 1.0
	maxDD := 0.0

	for _, r := range returns {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		if peak > 0 {
			dd := (peak - wealth) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Sharpe is the annualized excess return over the risk-free rate per
// unit of annualized volatility. Zero volatility yields 0.
func (e *RiskEngine) Sharpe(returns []float64) float64 {
	vol := e.AnnualizedVolatility(returns)
	if vol == 0 {
		return 0
	}
	return (e.annualizedReturn(returns) - e.cfg.RiskFreeRate) / vol
}

// Sortino replaces total volatility with downside deviation, so only
// below-target returns count as risk. Zero downside deviation yields
// 0.
func (e *RiskEngine) Sortino(returns []float64) float64 {
	target := e.cfg.RiskFreeRate / e.cfg.PeriodsPerYear
	sumSq := 0.0
	for _, r := range returns {
		if r < target {
			d := r - target
			sumSq += d * d
		}
	}
	downside := math.Sqrt(sumSq/float64(len(returns))) * math.Sqrt(e.cfg.PeriodsPerYear)
	if downside == 0 {
		return 0
	}
	return (e.annualizedReturn(returns) - e.cfg.RiskFreeRate) / downside
}

// Calmar is the annualized return per unit of maximum drawdown. Zero
// drawdown yields 0.
func (e *RiskEngine) Calmar(returns []float64, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return e.annualizedReturn(returns) / maxDrawdown
}

// annualizedReturn geometrically compounds the daily series to an
// annual rate. A wealth-destroying series floors at -100%.
func (e *RiskEngine) annualizedReturn(returns []float64) float64 {
	wealth := 1.0
	for _, r := range returns {
		wealth *= 1 + r
	}
	if wealth <= 0 {
		return -1
	}
	years := float64(len(returns)) / e.cfg.PeriodsPerYear
	if years == 0 {
		return 0
	}
	return math.Pow(wealth, 1/years) - 1
}

// DailyReturns converts a valuation series into day-over-day simple
// returns, skipping zero-valued starting points.
func DailyReturns(points []model.ValuationPoint) []float64 {
	var returns []float64
	for i := 1; i < len(points); i++ {
		prev := points[i-1].TotalValue
		if prev == 0 {
			continue
		}
		returns = append(returns, (points[i].TotalValue-prev)/prev)
	}
	return returns
}

func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
