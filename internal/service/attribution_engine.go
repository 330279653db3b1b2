package service

import (
	"context"
	"sort"
	"time"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
)

// SegmentInput is one slice of the Brinson decomposition: the
// portfolio's and the benchmark's weight and return for the same key.
// A key held by only one side carries zero weight on the other.
type SegmentInput struct {
	Key             string
	PortfolioWeight float64
	PortfolioReturn float64
	BenchmarkWeight float64
	BenchmarkReturn float64
	Sectors         []SegmentInput
}

// Brinson decomposes excess return over a benchmark:
//
//	allocation_i = (wp_i - wb_i) * rb_i
//	selection_i  = wp_i * (rp_i - rb_i)
//
// The per-segment totals sum exactly to Σ wp·rp - Σ wb·rb, so the
// decomposition accounts for the full excess return.
func Brinson(segments []SegmentInput) ([]model.AttributionSegment, float64) {
	out := make([]model.AttributionSegment, 0, len(segments))
	excess := 0.0

	for _, seg := range segments {
		allocation := (seg.PortfolioWeight - seg.BenchmarkWeight) * seg.BenchmarkReturn
		selection := seg.PortfolioWeight * (seg.PortfolioReturn - seg.BenchmarkReturn)

		result := model.AttributionSegment{
			Key:               seg.Key,
			AllocationEffect:  allocation,
			SelectionEffect:   selection,
			TotalContribution: allocation + selection,
		}
		if len(seg.Sectors) > 0 {
			result.Sectors, _ = Brinson(seg.Sectors)
		}

		out = append(out, result)
		excess += result.TotalContribution
	}

	return out, excess
}

// AttributionService assembles segment inputs from the account's
// valuations and a stored benchmark, then runs the Brinson
// decomposition by asset class with a sector level nested inside each
// class.
type AttributionService struct {
	instrumentRepo *repository.InstrumentRepository
	benchmarkRepo  *repository.BenchmarkRepository
	valuation      *ValuationService
	cfg            config.CalculationConfig
}

// NewAttributionService creates an AttributionService.
func NewAttributionService(
	instrumentRepo *repository.InstrumentRepository,
	benchmarkRepo *repository.BenchmarkRepository,
	valuation *ValuationService,
	cfg config.CalculationConfig,
) *AttributionService {
	return &AttributionService{
		instrumentRepo: instrumentRepo,
		benchmarkRepo:  benchmarkRepo,
		valuation:      valuation,
		cfg:            cfg,
	}
}

type segmentAccumulator struct {
	startValue float64
	endValue   float64
	sectors    map[string]*segmentAccumulator
}

// Attribute decomposes the account's excess return over the benchmark
// for [from, to]. Portfolio weights use start-of-period values;
// segment returns are start-to-end value changes.
func (s *AttributionService) Attribute(ctx context.Context, accountID, benchmarkID string, from, to time.Time) (model.AttributionResult, error) {
	if to.Before(from) {
		return model.AttributionResult{}, apperrors.ErrInvalidDateRange
	}

	benchmark, err := s.benchmarkRepo.Get(ctx, benchmarkID)
	if err != nil {
		return model.AttributionResult{}, err
	}

	startPoint, err := s.valuation.ValueAt(ctx, accountID, from)
	if err != nil {
		return model.AttributionResult{}, err
	}
	endPoint, err := s.valuation.ValueAt(ctx, accountID, to)
	if err != nil {
		return model.AttributionResult{}, err
	}
	if startPoint.TotalValue == 0 {
		return model.AttributionResult{}, apperrors.ErrInsufficientData
	}

	classes := map[string]*segmentAccumulator{}
	accumulate := func(lines []model.ValuationLine, end bool) error {
		for _, line := range lines {
			instrument, err := s.instrumentRepo.Get(ctx, line.InstrumentID)
			if err != nil {
				return err
			}
			class := classes[instrument.AssetClass]
			if class == nil {
				class = &segmentAccumulator{sectors: map[string]*segmentAccumulator{}}
				classes[instrument.AssetClass] = class
			}
			sector := class.sectors[instrument.Sector]
			if sector == nil {
				sector = &segmentAccumulator{}
				class.sectors[instrument.Sector] = sector
			}
			if end {
				class.endValue += line.Value
				sector.endValue += line.Value
			} else {
				class.startValue += line.Value
				sector.startValue += line.Value
			}
		}
		return nil
	}
	if err := accumulate(startPoint.Lines, false); err != nil {
		return model.AttributionResult{}, err
	}
	if err := accumulate(endPoint.Lines, true); err != nil {
		return model.AttributionResult{}, err
	}

	benchClasses := map[string]model.BenchmarkSegment{}
	benchSectors := map[string]map[string]model.BenchmarkSegment{}
	for _, seg := range benchmark.Segments {
		agg := benchClasses[seg.AssetClass]
		agg.AssetClass = seg.AssetClass
		agg.Return = agg.Return*agg.Weight + seg.Return*seg.Weight
		agg.Weight += seg.Weight
		if agg.Weight > 0 {
			agg.Return /= agg.Weight
		}
		benchClasses[seg.AssetClass] = agg

		if benchSectors[seg.AssetClass] == nil {
			benchSectors[seg.AssetClass] = map[string]model.BenchmarkSegment{}
		}
		benchSectors[seg.AssetClass][seg.Sector] = seg
	}

	inputs := buildSegmentInputs(classes, benchClasses, benchSectors, startPoint.TotalValue)
	segments, excess := Brinson(inputs)

	return model.AttributionResult{
		AccountID:          accountID,
		BenchmarkID:        benchmarkID,
		PeriodStart:        from,
		PeriodEnd:          to,
		Segments:           segments,
		ExcessReturn:       excess,
		CalculationVersion: s.cfg.Version,
	}, nil
}

func buildSegmentInputs(
	classes map[string]*segmentAccumulator,
	benchClasses map[string]model.BenchmarkSegment,
	benchSectors map[string]map[string]model.BenchmarkSegment,
	totalStart float64,
) []SegmentInput {
	keys := map[string]bool{}
	for k := range classes {
		keys[k] = true
	}
	for k := range benchClasses {
		keys[k] = true
	}

	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	inputs := make([]SegmentInput, 0, len(ordered))
	for _, key := range ordered {
		input := SegmentInput{Key: key}

		if acc, ok := classes[key]; ok && totalStart > 0 {
			input.PortfolioWeight = acc.startValue / totalStart
			if acc.startValue > 0 {
				input.PortfolioReturn = (acc.endValue - acc.startValue) / acc.startValue
			}
		}
		if seg, ok := benchClasses[key]; ok {
			input.BenchmarkWeight = seg.Weight
			input.BenchmarkReturn = seg.Return
		}

		sectorKeys := map[string]bool{}
		if acc, ok := classes[key]; ok {
			for sk := range acc.sectors {
				sectorKeys[sk] = true
			}
		}
		for sk := range benchSectors[key] {
			sectorKeys[sk] = true
		}
		orderedSectors := make([]string, 0, len(sectorKeys))
		for sk := range sectorKeys {
			orderedSectors = append(orderedSectors, sk)
		}
		sort.Strings(orderedSectors)

		for _, sk := range orderedSectors {
			if sk == "" && len(orderedSectors) == 1 {
				// Unclassified-only class: skip the empty sector level.
				continue
			}
			sector := SegmentInput{Key: sk}
			if acc, ok := classes[key]; ok && totalStart > 0 {
				if sacc, ok := acc.sectors[sk]; ok {
					sector.PortfolioWeight = sacc.startValue / totalStart
					if sacc.startValue > 0 {
						sector.PortfolioReturn = (sacc.endValue - sacc.startValue) / sacc.startValue
					}
				}
			}
			if seg, ok := benchSectors[key][sk]; ok {
				sector.BenchmarkWeight = seg.Weight
				sector.BenchmarkReturn = seg.Return
			}
			input.Sectors = append(input.Sectors, sector)
		}

		inputs = append(inputs, input)
	}

	return inputs
}
