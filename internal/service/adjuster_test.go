package service

import (
	"math"
	"testing"

	"github.com/openfolio/engine/internal/model"
)

func TestAdjustPricesSplitRoundTrip(t *testing.T) {
	base := day(t, "2025-01-02")
	series := []model.PricePoint{
		{InstrumentID: "inst-1", Date: base, Price: 100},
		{InstrumentID: "inst-1", Date: base.AddDate(0, 0, 1), Price: 102},
		{InstrumentID: "inst-1", Date: base.AddDate(0, 0, 2), Price: 98},
		{InstrumentID: "inst-1", Date: base.AddDate(0, 0, 5), Price: 51},
	}

	split := model.CorporateAction{
		ID:            "a1",
		InstrumentID:  "inst-1",
		Type:          model.ActionSplit,
		EffectiveDate: base.AddDate(0, 0, 5),
		Ratio:         2,
	}
	adjusted := AdjustPrices(series, []model.CorporateAction{split})

	// Prices strictly before the effective date halve; the rest stay.
	for i, want := range []float64{50, 51, 49, 51} {
		if math.Abs(adjusted[i].Price-want) > 1e-9 {
			t.Errorf("adjusted[%d].Price = %v, want %v", i, adjusted[i].Price, want)
		}
	}

	inverse := split
	inverse.ID = "a2"
	inverse.Ratio = 0.5
	restored := AdjustPrices(adjusted, []model.CorporateAction{inverse})

	for i := range series {
		if math.Abs(restored[i].Price-series[i].Price) > 1e-9 {
			t.Errorf("restored[%d].Price = %v, want %v", i, restored[i].Price, series[i].Price)
		}
	}
}

func TestAdjustPricesIgnoresNonSplitActions(t *testing.T) {
	base := day(t, "2025-01-02")
	series := []model.PricePoint{{InstrumentID: "inst-1", Date: base, Price: 100}}

	actions := []model.CorporateAction{
		{ID: "a1", InstrumentID: "inst-1", Type: model.ActionCashDividend, EffectiveDate: base.AddDate(0, 0, 1), Amount: 2},
		{ID: "a2", InstrumentID: "inst-1", Type: model.ActionDelist, EffectiveDate: base.AddDate(0, 0, 2)},
	}

	adjusted := AdjustPrices(series, actions)
	if adjusted[0].Price != 100 {
		t.Errorf("price = %v, want 100 unchanged", adjusted[0].Price)
	}
}

func TestAdjustLotStockDividend(t *testing.T) {
	base := day(t, "2025-01-02")
	lot := model.Lot{
		ID:               "l1",
		InstrumentID:     "inst-1",
		OriginalQuantity: 100,
		QuantityOpen:     100,
		CostBasisPerUnit: 10,
		OpenDate:         base,
	}

	// A 5% stock dividend is a 1.05 split.
	action := model.CorporateAction{
		ID:            "a1",
		InstrumentID:  "inst-1",
		Type:          model.ActionStockDividend,
		EffectiveDate: base.AddDate(0, 0, 30),
		Ratio:         1.05,
	}
	adjusted := AdjustLot(lot, []model.CorporateAction{action})

	if math.Abs(adjusted.QuantityOpen-105) > 1e-9 {
		t.Errorf("quantity = %v, want 105", adjusted.QuantityOpen)
	}

	// Total cost is preserved.
	before := lot.QuantityOpen * lot.CostBasisPerUnit
	after := adjusted.QuantityOpen * adjusted.CostBasisPerUnit
	if math.Abs(before-after) > 1e-9 {
		t.Errorf("total cost changed: %v -> %v", before, after)
	}
}

func TestDividendFlow(t *testing.T) {
	action := model.CorporateAction{
		ID:            "a1",
		InstrumentID:  "inst-1",
		Type:          model.ActionCashDividend,
		EffectiveDate: day(t, "2025-03-14"),
		Amount:        0.25,
	}

	flow := DividendFlow("acct-1", action, 400)
	if flow.Amount != 100 {
		t.Errorf("flow amount = %v, want 100", flow.Amount)
	}
	if flow.Type != model.FlowDividend {
		t.Errorf("flow type = %s, want dividend", flow.Type)
	}
	if flow.External() {
		t.Error("dividend flow must not be external")
	}
}
