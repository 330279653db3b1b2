package service

import (
	"log"
	"math"
	"sort"
	"time"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
)

// ReturnsCalculator computes time-weighted and money-weighted returns
// from a valuation series and the account's cash-flow events.
type ReturnsCalculator struct{}

// NewReturnsCalculator creates a new ReturnsCalculator.
func NewReturnsCalculator() *ReturnsCalculator {
	return &ReturnsCalculator{}
}

// TWRR computes the time-weighted rate of return over a valuation
// series. A new sub-period begins at every external cash flow
// (deposit/withdrawal) so the linked return measures manager skill
// independent of flow timing:
//
//	r_i = (V_end_i - CF_i - V_start_i) / V_start_i
//	R   = Π(1 + r_i) - 1
//
// Same-day deposits use the beginning-of-day valuation convention;
// same-day withdrawals use the actual time of the flow. A sub-period
// whose value drops to zero returns exactly -100% and linking restarts
// from zero for subsequent periods.
func (c *ReturnsCalculator) TWRR(series []model.ValuationPoint, flows []model.CashFlow) (model.ReturnSeries, error) {
	if len(series) < 2 {
		return model.ReturnSeries{}, apperrors.ErrInsufficientData
	}

	points := make([]model.ValuationPoint, len(series))
	copy(points, series)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	external := make([]model.CashFlow, 0, len(flows))
	for _, f := range flows {
		if f.External() {
			external = append(external, f)
		}
	}
	sort.SliceStable(external, func(i, j int) bool { return external[i].Timestamp.Before(external[j].Timestamp) })

	result := model.ReturnSeries{AccountID: points[0].AccountID}
	chained := 1.0

	startValue := points[0].TotalValue
	periodStart := points[0].Timestamp
	flowIdx := 0

	// Deposits dated at the very start of the series are part of the
	// opening value, not a mid-period flow.
	for flowIdx < len(external) && !external[flowIdx].Timestamp.After(periodStart) {
		if external[flowIdx].Type == model.FlowDeposit && external[flowIdx].Timestamp.Equal(periodStart) {
			// Beginning-of-day convention: already reflected in the
			// opening valuation when the series starts at the flow.
		}
		flowIdx++
	}

	closePeriod := func(end time.Time, endValue, flowAmount float64) {
		var r float64
		switch {
		case endValue == 0 && startValue > 0:
			// Degenerate case: total loss within the sub-period.
			r = -1
		case startValue > 0:
			r = (endValue - flowAmount - startValue) / startValue
		default:
			r = 0
		}

		result.Periods = append(result.Periods, model.ReturnPeriod{
			PeriodStart: periodStart,
			PeriodEnd:   end,
			TWRR:        r,
		})

		chained *= 1 + r
	}

	for _, flow := range external[flowIdx:] {
		if flow.Timestamp.After(points[len(points)-1].Timestamp) {
			break
		}

		var boundaryValue float64
		if flow.Type == model.FlowDeposit {
			// Beginning-of-day: value before any same-day movement.
			boundaryValue = valueAsOf(points, flow.Timestamp.AddDate(0, 0, -1))
		} else {
			boundaryValue = valueAsOf(points, flow.Timestamp)
		}

		closePeriod(flow.Timestamp, boundaryValue, 0)

		// The flow lands at the start of the next sub-period. A total
		// loss zeroes the chain; fresh capital restarts linking from
		// zero rather than leaving the return pinned at -100%.
		startValue = boundaryValue + flow.Amount
		if startValue < 0 {
			startValue = 0
		}
		if chained == 0 && startValue > 0 {
			chained = 1.0
		}
		periodStart = flow.Timestamp
	}

	finalValue := points[len(points)-1].TotalValue
	closePeriod(points[len(points)-1].Timestamp, finalValue, 0)

	result.TWRR = chained - 1
	return result, nil
}

// MWRR computes the money-weighted rate of return (internal rate of
// return) of the series: the opening value and every deposit are money
// in, withdrawals and the closing value money out. Solved by
// Newton-Raphson (100 iterations, tolerance 1e-6) with a bisection
// fallback over [-0.99, 10.0] when the iteration fails to converge or
// diverges. Fallback engagement is logged, not fatal.
func (c *ReturnsCalculator) MWRR(series []model.ValuationPoint, flows []model.CashFlow) (float64, error) {
	if len(series) < 2 {
		return 0, apperrors.ErrInsufficientData
	}

	points := make([]model.ValuationPoint, len(series))
	copy(points, series)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	start := points[0]
	end := points[len(points)-1]

	type cashFlow struct {
		date   time.Time
		amount float64
	}

	var cfs []cashFlow
	if start.TotalValue != 0 {
		cfs = append(cfs, cashFlow{date: start.Timestamp, amount: -start.TotalValue})
	}
	for _, f := range flows {
		if !f.External() {
			continue
		}
		if f.Timestamp.Before(start.Timestamp) || f.Timestamp.After(end.Timestamp) {
			continue
		}
		// A deposit is money invested (negative), a withdrawal money
		// returned (positive). Amounts are signed into the account, so
		// negate.
		if f.Timestamp.Equal(start.Timestamp) && f.Type == model.FlowDeposit && start.TotalValue != 0 {
			// Already counted inside the opening value.
			continue
		}
		cfs = append(cfs, cashFlow{date: f.Timestamp, amount: -f.Amount})
	}
	if end.TotalValue > 0 {
		cfs = append(cfs, cashFlow{date: end.Timestamp, amount: end.TotalValue})
	}

	sort.SliceStable(cfs, func(i, j int) bool { return cfs[i].date.Before(cfs[j].date) })

	hasNeg, hasPos := false, false
	for _, f := range cfs {
		if f.amount < 0 {
			hasNeg = true
		}
		if f.amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return 0, apperrors.ErrInsufficientData
	}

	baseDate := cfs[0].date
	years := make([]float64, len(cfs))
	amounts := make([]float64, len(cfs))
	for i, f := range cfs {
		years[i] = f.date.Sub(baseDate).Hours() / 24 / 365
		amounts[i] = f.amount
	}

	rate, ok := solveNewton(amounts, years)
	if !ok {
		log.Printf("mwrr: %v, falling back to bisection", apperrors.ErrConvergenceFailure)
		rate, ok = solveBisection(amounts, years)
		if !ok {
			return 0, apperrors.ErrConvergenceFailure
		}
	}

	return rate, nil
}

const (
	mwrrMaxIterations = 100
	mwrrTolerance     = 1e-6
	mwrrMinRate       = -0.99
	mwrrMaxRate       = 10.0
)

// solveNewton runs Newton-Raphson on NPV(r) = Σ amount_i / (1+r)^years_i.
func solveNewton(amounts, years []float64) (float64, bool) {
	rate := 0.1

	for iter := 0; iter < mwrrMaxIterations; iter++ {
		npv := 0.0
		dnpv := 0.0

		for i := range amounts {
			base := 1 + rate
			if base <= 0 {
				rate = mwrrMinRate
				base = 1 + rate
			}
			discount := math.Pow(base, years[i])
			if discount == 0 {
				continue
			}
			npv += amounts[i] / discount
			if years[i] != 0 {
				dnpv -= years[i] * amounts[i] / (discount * base)
			}
		}

		if math.Abs(npv) < mwrrTolerance {
			return rate, true
		}
		if dnpv == 0 || math.IsNaN(dnpv) || math.IsInf(dnpv, 0) {
			return 0, false
		}

		next := rate - npv/dnpv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if next < mwrrMinRate {
			next = mwrrMinRate
		}
		if next > mwrrMaxRate {
			next = mwrrMaxRate
		}
		rate = next
	}

	return 0, false
}

// solveBisection brackets the root over [-0.99, 10.0].
func solveBisection(amounts, years []float64) (float64, bool) {
	npvAt := func(rate float64) float64 {
		sum := 0.0
		for i := range amounts {
			base := 1 + rate
			if base <= 0 {
				return math.NaN()
			}
			sum += amounts[i] / math.Pow(base, years[i])
		}
		return sum
	}

	lo, hi := mwrrMinRate, mwrrMaxRate
	npvLo := npvAt(lo)
	npvHi := npvAt(hi)
	if math.IsNaN(npvLo) || math.IsNaN(npvHi) || npvLo*npvHi > 0 {
		return 0, false
	}

	for iter := 0; iter < 2*mwrrMaxIterations; iter++ {
		mid := (lo + hi) / 2
		npvMid := npvAt(mid)
		if math.IsNaN(npvMid) {
			return 0, false
		}
		if math.Abs(npvMid) < mwrrTolerance {
			return mid, true
		}
		if npvMid*npvLo < 0 {
			hi = mid
		} else {
			lo = mid
			npvLo = npvMid
		}
	}

	return (lo + hi) / 2, true
}

// valueAsOf returns the latest valuation at or before ts, never a
// future one.
func valueAsOf(points []model.ValuationPoint, ts time.Time) float64 {
	value := 0.0
	for _, p := range points {
		if p.Timestamp.After(ts) {
			break
		}
		value = p.TotalValue
	}
	return value
}
