package service

import (
	"context"
	"time"

	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
)

// AnalyticsService orchestrates the derived-data stages over the lot
// state: valuation, returns, risk and attribution. Every computed
// result is persisted as a versioned artifact keyed by
// (account, kind, as-of, calculation version) so recomputation under a
// new version supersedes, never overwrites.
type AnalyticsService struct {
	accountRepo  *repository.AccountRepository
	ledgerRepo   *repository.LedgerRepository
	lotRepo      *repository.LotRepository
	artifactRepo *repository.ArtifactRepository
	valuation    *ValuationService
	returns      *ReturnsCalculator
	risk         *RiskEngine
	attribution  *AttributionService
	publisher    *Publisher
	cfg          config.CalculationConfig
	pubCfg       config.PublisherConfig
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(
	accountRepo *repository.AccountRepository,
	ledgerRepo *repository.LedgerRepository,
	lotRepo *repository.LotRepository,
	artifactRepo *repository.ArtifactRepository,
	valuation *ValuationService,
	returns *ReturnsCalculator,
	risk *RiskEngine,
	attribution *AttributionService,
	publisher *Publisher,
	cfg config.CalculationConfig,
	pubCfg config.PublisherConfig,
) *AnalyticsService {
	return &AnalyticsService{
		accountRepo:  accountRepo,
		ledgerRepo:   ledgerRepo,
		lotRepo:      lotRepo,
		artifactRepo: artifactRepo,
		valuation:    valuation,
		returns:      returns,
		risk:         risk,
		attribution:  attribution,
		publisher:    publisher,
		cfg:          cfg,
		pubCfg:       pubCfg,
	}
}

// Flows derives the account's cash-flow events over [from, to]. The
// engine carries no cash balance, so a buy is external capital entering
// (a deposit of cost plus fee) and a sell is capital leaving (a
// withdrawal of net proceeds). Cash dividends become internal dividend
// flows sized by the shares held at the effective date.
func (s *AnalyticsService) Flows(ctx context.Context, accountID string, from, to time.Time) ([]model.CashFlow, error) {
	transactions, err := s.ledgerRepo.GetTransactions(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	var flows []model.CashFlow
	for _, t := range transactions {
		switch t.Side {
		case model.SideBuy:
			flows = append(flows, model.CashFlow{
				AccountID: accountID,
				Timestamp: t.SettlementDate,
				Amount:    t.Quantity*t.Price + t.Fee,
				Type:      model.FlowDeposit,
			})
		case model.SideSell:
			flows = append(flows, model.CashFlow{
				AccountID: accountID,
				Timestamp: t.SettlementDate,
				Amount:    -(t.Quantity*t.Price - t.Fee),
				Type:      model.FlowWithdrawal,
			})
		}
	}

	actions, err := s.ledgerRepo.GetAllActions(ctx)
	if err != nil {
		return nil, err
	}
	// Dividend sizing needs the full history, not just the window:
	// shares held at an ex-date depend on every earlier trade and
	// split, and later sells must not shrink an already-paid dividend.
	history, err := s.ledgerRepo.GetTransactionsAfter(ctx, accountID, 0)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		if a.Type != model.ActionCashDividend {
			continue
		}
		if a.EffectiveDate.Before(from) || a.EffectiveDate.After(to) {
			continue
		}
		shares := sharesHeldAt(history, actions, a.InstrumentID, a.EffectiveDate)
		if shares <= quantityEpsilon {
			continue
		}
		flows = append(flows, DividendFlow(accountID, a, shares))
	}

	return flows, nil
}

// Valuation computes the account value as of ts, persists it as an
// artifact and publishes ValuationUpdated.
func (s *AnalyticsService) Valuation(ctx context.Context, accountID string, ts time.Time) (model.ValuationPoint, error) {
	point, err := s.valuation.ValueAt(ctx, accountID, ts)
	if err != nil {
		return model.ValuationPoint{}, err
	}

	if err := s.artifactRepo.Save(ctx, accountID, repository.ArtifactValuation, ts, s.cfg.Version, point); err != nil {
		return model.ValuationPoint{}, err
	}

	if s.publisher != nil {
		s.publisher.Publish(model.Event{
			Type:               model.EventValuationUpdated,
			AccountID:          accountID,
			Timestamp:          ts,
			CalculationVersion: s.cfg.Version,
			Payload:            point,
		})
	}

	return point, nil
}

// Returns computes TWRR and MWRR over [from, to] and persists the
// result as an artifact dated at the period end.
func (s *AnalyticsService) Returns(ctx context.Context, accountID string, from, to time.Time) (model.ReturnSeries, error) {
	series, err := s.valuation.Series(ctx, accountID, from, to)
	if err != nil {
		return model.ReturnSeries{}, err
	}
	flows, err := s.Flows(ctx, accountID, from, to)
	if err != nil {
		return model.ReturnSeries{}, err
	}

	result, err := s.returns.TWRR(series, flows)
	if err != nil {
		return model.ReturnSeries{}, err
	}
	result.AccountID = accountID
	result.CalculationVersion = s.cfg.Version

	mwrr, err := s.returns.MWRR(series, flows)
	if err == nil {
		result.MWRR = mwrr
	}

	if err := s.artifactRepo.Save(ctx, accountID, repository.ArtifactReturns, to, s.cfg.Version, result); err != nil {
		return model.ReturnSeries{}, err
	}
	return result, nil
}

// Risk computes the risk snapshot as of asOf over the trailing VaR
// window, persists it and raises a drawdown alert when the configured
// threshold is crossed.
func (s *AnalyticsService) Risk(ctx context.Context, accountID string, asOf time.Time) (model.RiskSnapshot, error) {
	from := asOf.AddDate(0, 0, -s.cfg.VaRWindow)
	series, err := s.valuation.Series(ctx, accountID, from, asOf)
	if err != nil {
		return model.RiskSnapshot{}, err
	}

	snapshot, err := s.risk.Compute(accountID, asOf, DailyReturns(series))
	if err != nil {
		return model.RiskSnapshot{}, err
	}

	if err := s.artifactRepo.Save(ctx, accountID, repository.ArtifactRisk, asOf, s.cfg.Version, snapshot); err != nil {
		return model.RiskSnapshot{}, err
	}

	if s.publisher != nil && s.pubCfg.DrawdownAlertPct > 0 && snapshot.MaxDrawdown >= s.pubCfg.DrawdownAlertPct {
		s.publisher.Publish(model.Event{
			Type:               model.EventRiskAlertRaised,
			AccountID:          accountID,
			Timestamp:          asOf,
			CalculationVersion: s.cfg.Version,
			Payload: model.RiskAlert{
				Metric:    "max_drawdown",
				Value:     snapshot.MaxDrawdown,
				Threshold: s.pubCfg.DrawdownAlertPct,
			},
		})
	}

	return snapshot, nil
}

// Attribution runs the Brinson decomposition for [from, to] against
// the named benchmark and persists the result dated at the period end.
func (s *AnalyticsService) Attribution(ctx context.Context, accountID, benchmarkID string, from, to time.Time) (model.AttributionResult, error) {
	result, err := s.attribution.Attribute(ctx, accountID, benchmarkID, from, to)
	if err != nil {
		return model.AttributionResult{}, err
	}
	if err := s.artifactRepo.Save(ctx, accountID, repository.ArtifactAttribution, to, s.cfg.Version, result); err != nil {
		return model.AttributionResult{}, err
	}
	return result, nil
}

// Snapshot runs the nightly pipeline for one account: end-of-day
// valuation, trailing-year returns and the risk snapshot.
func (s *AnalyticsService) Snapshot(ctx context.Context, accountID string, asOf time.Time) error {
	if _, err := s.Valuation(ctx, accountID, asOf); err != nil {
		return err
	}
	if _, err := s.Returns(ctx, accountID, asOf.AddDate(-1, 0, 0), asOf); err != nil {
		return err
	}
	_, err := s.Risk(ctx, accountID, asOf)
	return err
}

// sharesHeldAt reconstructs the share count at a historic date from
// the ledger: signed trade quantities settled on or before the date,
// scaled by the splits effective in between. Transactions are in
// settlement order and actions in effective-date order. An action at
// date d scales only history settled strictly before d, matching the
// lot engine's replay ordering.
func sharesHeldAt(transactions []model.Transaction, actions []model.CorporateAction, instrumentID string, date time.Time) float64 {
	shares := 0.0
	ti := 0
	consume := func(before time.Time, inclusive bool) {
		for ti < len(transactions) {
			settled := transactions[ti].SettlementDate
			if settled.After(before) || (!inclusive && settled.Equal(before)) {
				return
			}
			shares += signedShares(transactions[ti], instrumentID)
			ti++
		}
	}

	for _, a := range actions {
		if a.InstrumentID != instrumentID || a.EffectiveDate.After(date) {
			continue
		}
		switch a.Type {
		case model.ActionSplit, model.ActionStockDividend:
			consume(a.EffectiveDate, false)
			if a.Ratio > 0 {
				shares *= a.Ratio
			}
		case model.ActionDelist:
			consume(a.EffectiveDate, false)
			shares = 0
		}
	}
	consume(date, true)
	return shares
}

func signedShares(t model.Transaction, instrumentID string) float64 {
	if t.InstrumentID != instrumentID {
		return 0
	}
	switch t.Side {
	case model.SideBuy:
		return t.Quantity
	case model.SideSell:
		return -t.Quantity
	}
	return 0
}
