package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func testAccount(method model.CostBasisMethod) model.Account {
	return model.Account{
		ID:              "acct-1",
		BaseCurrency:    "USD",
		CostBasisMethod: method,
	}
}

func tx(id string, side model.Side, qty, price float64, date time.Time) model.Transaction {
	return model.Transaction{
		ID:             id,
		AccountID:      "acct-1",
		InstrumentID:   "inst-1",
		Side:           side,
		Quantity:       qty,
		Price:          price,
		TradeDate:      date,
		SettlementDate: date,
		IdempotencyKey: "key-" + id,
	}
}

func TestLotBookFIFO(t *testing.T) {
	account := testAccount(model.MethodFIFO)
	book := NewLotBook(account.ID, nil)
	d := day(t, "2025-01-02")

	if _, err := book.Apply(account, tx("t1", model.SideBuy, 100, 10, d)); err != nil {
		t.Fatalf("buy 100@10: %v", err)
	}
	if _, err := book.Apply(account, tx("t2", model.SideBuy, 50, 12, d.AddDate(0, 0, 1))); err != nil {
		t.Fatalf("buy 50@12: %v", err)
	}

	result, err := book.Apply(account, tx("t3", model.SideSell, 75, 15, d.AddDate(0, 0, 2)))
	if err != nil {
		t.Fatalf("sell 75@15: %v", err)
	}

	if math.Abs(result.RealizedGain-375.00) > 1e-9 {
		t.Errorf("realized gain = %v, want 375.00", result.RealizedGain)
	}

	var first, second *model.Lot
	for _, lot := range book.Lots {
		switch lot.ID {
		case "t1":
			first = lot
		case "t2":
			second = lot
		}
	}
	if first == nil || second == nil {
		t.Fatalf("expected both lots present, got %d lots", len(book.Lots))
	}

	if first.QuantityOpen != 25 || first.CostBasisPerUnit != 10 {
		t.Errorf("first lot = {%v, %v}, want {25, 10.00}", first.QuantityOpen, first.CostBasisPerUnit)
	}
	if first.State != model.LotPartiallyClosed {
		t.Errorf("first lot state = %s, want partially_closed", first.State)
	}
	if second.QuantityOpen != 50 || second.CostBasisPerUnit != 12 {
		t.Errorf("second lot = {%v, %v}, want {50, 12.00}", second.QuantityOpen, second.CostBasisPerUnit)
	}

	if err := book.CheckInvariants(); err != nil {
		t.Errorf("invariants violated: %v", err)
	}
}

func TestLotBookLIFO(t *testing.T) {
	account := testAccount(model.MethodLIFO)
	book := NewLotBook(account.ID, nil)
	d := day(t, "2025-01-02")

	if _, err := book.Apply(account, tx("t1", model.SideBuy, 100, 10, d)); err != nil {
		t.Fatal(err)
	}
	if _, err := book.Apply(account, tx("t2", model.SideBuy, 50, 12, d.AddDate(0, 0, 1))); err != nil {
		t.Fatal(err)
	}

	result, err := book.Apply(account, tx("t3", model.SideSell, 75, 15, d.AddDate(0, 0, 2)))
	if err != nil {
		t.Fatal(err)
	}

	// LIFO closes the 50@12 lot fully, then 25 of the 100@10 lot.
	want := 50*(15.0-12.0) + 25*(15.0-10.0)
	if math.Abs(result.RealizedGain-want) > 1e-9 {
		t.Errorf("realized gain = %v, want %v", result.RealizedGain, want)
	}
	if err := book.CheckInvariants(); err != nil {
		t.Errorf("invariants violated: %v", err)
	}
}

func TestLotBookSpecificID(t *testing.T) {
	account := testAccount(model.MethodSpecificID)
	d := day(t, "2025-01-02")

	t.Run("closes only the referenced lots", func(t *testing.T) {
		book := NewLotBook(account.ID, nil)
		if _, err := book.Apply(account, tx("t1", model.SideBuy, 100, 10, d)); err != nil {
			t.Fatal(err)
		}
		if _, err := book.Apply(account, tx("t2", model.SideBuy, 50, 12, d.AddDate(0, 0, 1))); err != nil {
			t.Fatal(err)
		}

		sell := tx("t3", model.SideSell, 40, 15, d.AddDate(0, 0, 2))
		sell.SpecificLots = []string{"t2"}
		result, err := book.Apply(account, sell)
		if err != nil {
			t.Fatal(err)
		}

		if math.Abs(result.RealizedGain-40*(15.0-12.0)) > 1e-9 {
			t.Errorf("realized gain = %v, want 120", result.RealizedGain)
		}
	})

	t.Run("unknown lot fails", func(t *testing.T) {
		book := NewLotBook(account.ID, nil)
		if _, err := book.Apply(account, tx("t1", model.SideBuy, 100, 10, d)); err != nil {
			t.Fatal(err)
		}

		sell := tx("t2", model.SideSell, 10, 15, d.AddDate(0, 0, 1))
		sell.SpecificLots = []string{"missing"}
		if _, err := book.Apply(account, sell); !errors.Is(err, apperrors.ErrLotNotFound) {
			t.Errorf("err = %v, want ErrLotNotFound", err)
		}
	})

	t.Run("insufficient open quantity in referenced lot fails", func(t *testing.T) {
		book := NewLotBook(account.ID, nil)
		if _, err := book.Apply(account, tx("t1", model.SideBuy, 10, 10, d)); err != nil {
			t.Fatal(err)
		}

		sell := tx("t2", model.SideSell, 20, 15, d.AddDate(0, 0, 1))
		sell.SpecificLots = []string{"t1"}
		if _, err := book.Apply(account, sell); !errors.Is(err, apperrors.ErrLotNotFound) {
			t.Errorf("err = %v, want ErrLotNotFound", err)
		}
	})
}

func TestLotBookOversell(t *testing.T) {
	d := day(t, "2025-01-02")

	t.Run("rejected when short selling disabled", func(t *testing.T) {
		account := testAccount(model.MethodFIFO)
		book := NewLotBook(account.ID, nil)
		if _, err := book.Apply(account, tx("t1", model.SideBuy, 10, 10, d)); err != nil {
			t.Fatal(err)
		}

		_, err := book.Apply(account, tx("t2", model.SideSell, 20, 15, d.AddDate(0, 0, 1)))
		if !errors.Is(err, apperrors.ErrInsufficientShares) {
			t.Errorf("err = %v, want ErrInsufficientShares", err)
		}
	})

	t.Run("opens a short lot when enabled", func(t *testing.T) {
		account := testAccount(model.MethodFIFO)
		account.ShortSellingEnabled = true
		book := NewLotBook(account.ID, nil)
		if _, err := book.Apply(account, tx("t1", model.SideBuy, 10, 10, d)); err != nil {
			t.Fatal(err)
		}
		if _, err := book.Apply(account, tx("t2", model.SideSell, 25, 15, d.AddDate(0, 0, 1))); err != nil {
			t.Fatal(err)
		}

		if got := book.SharesHeld("inst-1"); math.Abs(got-(-15)) > quantityEpsilon {
			t.Errorf("shares held = %v, want -15", got)
		}

		// Covering buy closes the short at a gain when prices fell.
		result, err := book.Apply(account, tx("t3", model.SideBuy, 15, 12, d.AddDate(0, 0, 2)))
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(result.RealizedGain-15*(15.0-12.0)) > 1e-9 {
			t.Errorf("cover gain = %v, want 45", result.RealizedGain)
		}
		if err := book.CheckInvariants(); err != nil {
			t.Errorf("invariants violated: %v", err)
		}
	})
}

// Conservation: the open lot quantities always sum to the net shares
// implied by the transactions, after every single apply.
func TestLotBookConservation(t *testing.T) {
	account := testAccount(model.MethodFIFO)
	account.ShortSellingEnabled = true
	book := NewLotBook(account.ID, nil)
	d := day(t, "2025-01-02")

	steps := []struct {
		side model.Side
		qty  float64
	}{
		{model.SideBuy, 100},
		{model.SideBuy, 37.5},
		{model.SideSell, 60},
		{model.SideSell, 90},
		{model.SideBuy, 20},
		{model.SideSell, 7.5},
	}

	net := 0.0
	for i, step := range steps {
		transaction := tx(string(rune('a'+i)), step.side, step.qty, 10+float64(i), d.AddDate(0, 0, i))
		if _, err := book.Apply(account, transaction); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if step.side == model.SideBuy {
			net += step.qty
		} else {
			net -= step.qty
		}

		if got := book.SharesHeld("inst-1"); math.Abs(got-net) > quantityEpsilon {
			t.Fatalf("step %d: shares held = %v, want %v", i, got, net)
		}
		if err := book.CheckInvariants(); err != nil {
			t.Fatalf("step %d: invariants violated: %v", i, err)
		}
	}
}

func TestLotBookFee(t *testing.T) {
	account := testAccount(model.MethodFIFO)
	book := NewLotBook(account.ID, nil)
	d := day(t, "2025-01-02")

	buy := tx("t1", model.SideBuy, 100, 10, d)
	buy.Fee = 50
	if _, err := book.Apply(account, buy); err != nil {
		t.Fatal(err)
	}

	// Fee is amortized into the cost basis: 10 + 50/100.
	if got := book.Lots[0].CostBasisPerUnit; math.Abs(got-10.5) > 1e-9 {
		t.Errorf("cost basis = %v, want 10.5", got)
	}

	sell := tx("t2", model.SideSell, 100, 12, d.AddDate(0, 0, 1))
	sell.Fee = 20
	result, err := book.Apply(account, sell)
	if err != nil {
		t.Fatal(err)
	}

	// Net proceeds per unit: 12 - 20/100.
	want := 100 * (11.8 - 10.5)
	if math.Abs(result.RealizedGain-want) > 1e-9 {
		t.Errorf("realized gain = %v, want %v", result.RealizedGain, want)
	}
}

func TestLotBookSplit(t *testing.T) {
	account := testAccount(model.MethodFIFO)
	book := NewLotBook(account.ID, nil)
	d := day(t, "2025-01-02")

	if _, err := book.Apply(account, tx("t1", model.SideBuy, 100, 10, d)); err != nil {
		t.Fatal(err)
	}

	split := model.CorporateAction{
		ID:            "a1",
		InstrumentID:  "inst-1",
		Type:          model.ActionSplit,
		EffectiveDate: d.AddDate(0, 0, 5),
		Ratio:         2,
	}
	book.ApplySplit(split)

	lot := book.Lots[0]
	if lot.QuantityOpen != 200 || lot.CostBasisPerUnit != 5 {
		t.Errorf("after split lot = {%v, %v}, want {200, 5}", lot.QuantityOpen, lot.CostBasisPerUnit)
	}
	if err := book.CheckInvariants(); err != nil {
		t.Errorf("invariants violated: %v", err)
	}

	// Inverse split restores the original lot within tolerance.
	inverse := split
	inverse.ID = "a2"
	inverse.Ratio = 0.5
	inverse.EffectiveDate = d.AddDate(0, 0, 6)
	book.ApplySplit(inverse)

	if math.Abs(lot.QuantityOpen-100) > 1e-9 || math.Abs(lot.CostBasisPerUnit-10) > 1e-9 {
		t.Errorf("after inverse split lot = {%v, %v}, want {100, 10}", lot.QuantityOpen, lot.CostBasisPerUnit)
	}

	// A split dated before the lot opened must not touch it.
	early := split
	early.ID = "a3"
	early.EffectiveDate = d.AddDate(0, 0, -1)
	result := book.ApplySplit(early)
	if len(result.LotsAffected) != 0 {
		t.Errorf("split before open date affected %d lots, want 0", len(result.LotsAffected))
	}
}

func TestLotBookDelist(t *testing.T) {
	account := testAccount(model.MethodFIFO)
	book := NewLotBook(account.ID, nil)
	d := day(t, "2025-01-02")

	if _, err := book.Apply(account, tx("t1", model.SideBuy, 100, 10, d)); err != nil {
		t.Fatal(err)
	}

	action := model.CorporateAction{
		ID:            "a1",
		InstrumentID:  "inst-1",
		Type:          model.ActionDelist,
		EffectiveDate: d.AddDate(0, 0, 10),
	}
	result := book.ApplyDelist(action, 4)

	if math.Abs(result.RealizedGain-100*(4.0-10.0)) > 1e-9 {
		t.Errorf("delist gain = %v, want -600", result.RealizedGain)
	}

	lot := book.Lots[0]
	if lot.State != model.LotClosed || lot.CloseReason != model.CloseReasonDelisted {
		t.Errorf("lot state = %s/%s, want closed/delisted", lot.State, lot.CloseReason)
	}
	if got := book.SharesHeld("inst-1"); got != 0 {
		t.Errorf("shares held = %v, want 0", got)
	}
	if err := book.CheckInvariants(); err != nil {
		t.Errorf("invariants violated: %v", err)
	}
}
