package service_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/testutil"
)

func TestLotEngineApplyAndPersist(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)

	ledgerRepo := repository.NewLedgerRepository(db)
	lotRepo := repository.NewLotRepository(db)
	engine := testutil.NewTestLotEngine(t, db)

	buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
	if _, err := ledgerRepo.AppendTransaction(ctx, &buy); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.ApplyTransaction(ctx, buy); err != nil {
		t.Fatal(err)
	}

	lots, err := lotRepo.GetLots(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 1 || lots[0].QuantityOpen != 100 {
		t.Fatalf("lots = %+v, want one open lot of 100", lots)
	}

	positions, err := lotRepo.GetPositions(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Quantity != 100 {
		t.Fatalf("positions = %+v, want one position of 100", positions)
	}
}

// Replaying the full ledger from empty state any number of times must
// produce identical lot and position state.
func TestLotEngineRebuildIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)
	testutil.InsertPrice(t, db, instrument.ID, "2025-03-01", 20)

	ledgerRepo := repository.NewLedgerRepository(db)
	lotRepo := repository.NewLotRepository(db)
	engine := testutil.NewTestLotEngine(t, db)

	transactions := []model.Transaction{
		testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02")),
		testutil.Buy(account.ID, instrument.ID, 50, 12, testutil.Date(t, "2025-01-10")),
		testutil.Sell(account.ID, instrument.ID, 75, 15, testutil.Date(t, "2025-02-01")),
		testutil.Buy(account.ID, instrument.ID, 25, 14, testutil.Date(t, "2025-02-20")),
	}
	for i := range transactions {
		if _, err := ledgerRepo.AppendTransaction(ctx, &transactions[i]); err != nil {
			t.Fatal(err)
		}
	}

	split := model.CorporateAction{
		ID:             testutil.MakeID(),
		InstrumentID:   instrument.ID,
		Type:           model.ActionSplit,
		EffectiveDate:  testutil.Date(t, "2025-02-10"),
		Ratio:          2,
		IdempotencyKey: "split-1",
	}
	if _, err := ledgerRepo.AppendAction(ctx, &split); err != nil {
		t.Fatal(err)
	}

	rebuild := func() ([]model.Lot, []model.Position, []model.RealizedGain) {
		t.Helper()
		if err := engine.Reset(ctx, account.ID); err != nil {
			t.Fatal(err)
		}
		if err := engine.Rebuild(ctx, account.ID); err != nil {
			t.Fatal(err)
		}
		lots, err := lotRepo.GetLots(ctx, account.ID)
		if err != nil {
			t.Fatal(err)
		}
		positions, err := lotRepo.GetPositions(ctx, account.ID)
		if err != nil {
			t.Fatal(err)
		}
		gains, err := lotRepo.GetRealizedGains(ctx, account.ID, testutil.Date(t, "2025-01-01"), testutil.Date(t, "2025-12-31"))
		if err != nil {
			t.Fatal(err)
		}
		return lots, positions, gains
	}

	lots1, positions1, gains1 := rebuild()
	lots2, positions2, gains2 := rebuild()

	if !reflect.DeepEqual(lots1, lots2) {
		t.Errorf("lot state differs between rebuilds:\n%+v\n%+v", lots1, lots2)
	}
	if len(positions1) != len(positions2) {
		t.Fatalf("position count differs: %d vs %d", len(positions1), len(positions2))
	}
	for i := range positions1 {
		p1, p2 := positions1[i], positions2[i]
		p1.LastUpdated, p2.LastUpdated = p2.LastUpdated, p1.LastUpdated
		if !reflect.DeepEqual(p1, p2) {
			t.Errorf("position %d differs:\n%+v\n%+v", i, positions1[i], positions2[i])
		}
	}
	if !reflect.DeepEqual(gains1, gains2) {
		t.Errorf("realized gains differ between rebuilds:\n%+v\n%+v", gains1, gains2)
	}

	// The split doubled the post-split position: 75 open shares
	// before the 2:1 split become 150, plus the later 25-share buy.
	var total float64
	for _, p := range positions1 {
		total += p.Quantity
	}
	if total != 175 {
		t.Errorf("net position = %v, want 175", total)
	}
}

// A rebuild without a reset must not re-apply corporate actions the
// live path already applied to the book.
func TestLotEngineRebuildAfterLiveSplit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)

	ingest := testutil.NewTestIngestService(t, db)
	engine := testutil.NewTestLotEngine(t, db)
	lotRepo := repository.NewLotRepository(db)

	buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
	if _, err := ingest.IngestTransaction(ctx, buy); err != nil {
		t.Fatal(err)
	}
	split := model.CorporateAction{
		InstrumentID:   instrument.ID,
		Type:           model.ActionSplit,
		EffectiveDate:  testutil.Date(t, "2025-02-01"),
		Ratio:          2,
		IdempotencyKey: "split-live",
	}
	if _, err := ingest.IngestAction(ctx, split); err != nil {
		t.Fatal(err)
	}

	lots, err := lotRepo.GetLots(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 1 || lots[0].QuantityOpen != 200 {
		t.Fatalf("after live split lots = %+v, want one lot of 200", lots)
	}

	if err := engine.Rebuild(ctx, account.ID); err != nil {
		t.Fatal(err)
	}

	lots, err = lotRepo.GetLots(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 1 || lots[0].QuantityOpen != 200 {
		t.Fatalf("after rebuild lots = %+v, want 200 shares (split applied twice)", lots)
	}
}

// A rebuild resumes from the checkpoint, replaying only the ledger
// entries appended after the last live apply, and lands on the same
// state as a clean replay from empty.
func TestLotEngineRebuildResumesFromCheckpoint(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)

	ledgerRepo := repository.NewLedgerRepository(db)
	lotRepo := repository.NewLotRepository(db)
	ingest := testutil.NewTestIngestService(t, db)
	engine := testutil.NewTestLotEngine(t, db)

	// Applied live; advances the checkpoint.
	buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
	if _, err := ingest.IngestTransaction(ctx, buy); err != nil {
		t.Fatal(err)
	}

	// Appended but never applied, as if the process died between the
	// durable append and the lot recompute.
	split := model.CorporateAction{
		ID:             testutil.MakeID(),
		InstrumentID:   instrument.ID,
		Type:           model.ActionSplit,
		EffectiveDate:  testutil.Date(t, "2025-01-15"),
		Ratio:          2,
		IdempotencyKey: "split-pending",
	}
	if _, err := ledgerRepo.AppendAction(ctx, &split); err != nil {
		t.Fatal(err)
	}
	sell := testutil.Sell(account.ID, instrument.ID, 60, 12, testutil.Date(t, "2025-02-02"))
	if _, err := ledgerRepo.AppendTransaction(ctx, &sell); err != nil {
		t.Fatal(err)
	}

	if err := engine.Rebuild(ctx, account.ID); err != nil {
		t.Fatal(err)
	}

	fetch := func() ([]model.Lot, []model.Position, []model.RealizedGain) {
		t.Helper()
		lots, err := lotRepo.GetLots(ctx, account.ID)
		if err != nil {
			t.Fatal(err)
		}
		positions, err := lotRepo.GetPositions(ctx, account.ID)
		if err != nil {
			t.Fatal(err)
		}
		gains, err := lotRepo.GetRealizedGains(ctx, account.ID, testutil.Date(t, "2025-01-01"), testutil.Date(t, "2025-12-31"))
		if err != nil {
			t.Fatal(err)
		}
		return lots, positions, gains
	}

	lots1, positions1, gains1 := fetch()

	// 100 shares split 2:1 to 200 at cost 5, then 60 sold at 12.
	if len(positions1) != 1 || positions1[0].Quantity != 140 {
		t.Fatalf("resumed positions = %+v, want 140 shares", positions1)
	}
	if len(gains1) != 1 || gains1[0].Gain != 420 {
		t.Fatalf("resumed gains = %+v, want one gain of 420", gains1)
	}

	// A clean replay from empty must agree with the resumed one.
	if err := engine.Reset(ctx, account.ID); err != nil {
		t.Fatal(err)
	}
	if err := engine.Rebuild(ctx, account.ID); err != nil {
		t.Fatal(err)
	}
	lots2, positions2, gains2 := fetch()

	if !reflect.DeepEqual(lots1, lots2) {
		t.Errorf("lot state differs from a clean replay:\n%+v\n%+v", lots1, lots2)
	}
	for i := range positions1 {
		p1, p2 := positions1[i], positions2[i]
		p1.LastUpdated, p2.LastUpdated = p2.LastUpdated, p1.LastUpdated
		if !reflect.DeepEqual(p1, p2) {
			t.Errorf("position %d differs from a clean replay:\n%+v\n%+v", i, positions1[i], positions2[i])
		}
	}
	if !reflect.DeepEqual(gains1, gains2) {
		t.Errorf("realized gains differ from a clean replay:\n%+v\n%+v", gains1, gains2)
	}
}

// Cancellation stops a rebuild without touching the persisted state;
// a later rebuild picks up where the ledger left off.
func TestLotEngineRebuildCancelled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)

	ledgerRepo := repository.NewLedgerRepository(db)
	lotRepo := repository.NewLotRepository(db)
	ingest := testutil.NewTestIngestService(t, db)
	engine := testutil.NewTestLotEngine(t, db)

	buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
	if _, err := ingest.IngestTransaction(ctx, buy); err != nil {
		t.Fatal(err)
	}
	pending := testutil.Buy(account.ID, instrument.ID, 50, 12, testutil.Date(t, "2025-02-02"))
	if _, err := ledgerRepo.AppendTransaction(ctx, &pending); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := engine.Rebuild(cancelled, account.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	positions, err := lotRepo.GetPositions(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Quantity != 100 {
		t.Fatalf("positions after cancelled rebuild = %+v, want untouched 100", positions)
	}

	if err := engine.Rebuild(ctx, account.ID); err != nil {
		t.Fatal(err)
	}
	positions, err = lotRepo.GetPositions(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Quantity != 150 {
		t.Fatalf("positions after resumed rebuild = %+v, want 150", positions)
	}
}

func TestLotEngineActionUnknownInstrument(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := testutil.NewTestLotEngine(t, db)

	err := engine.ApplyAction(context.Background(), model.CorporateAction{
		ID:            testutil.MakeID(),
		InstrumentID:  testutil.MakeID(),
		Type:          model.ActionSplit,
		EffectiveDate: testutil.Date(t, "2025-02-10"),
		Ratio:         2,
	})
	if !errors.Is(err, apperrors.ErrInstrumentUnknown) {
		t.Errorf("err = %v, want ErrInstrumentUnknown", err)
	}
}

func TestLotEngineDelistClosesPositions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)
	testutil.InsertPrice(t, db, instrument.ID, "2025-01-15", 8)

	ledgerRepo := repository.NewLedgerRepository(db)
	lotRepo := repository.NewLotRepository(db)
	instrumentRepo := repository.NewInstrumentRepository(db)
	engine := testutil.NewTestLotEngine(t, db)

	buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
	if _, err := ledgerRepo.AppendTransaction(ctx, &buy); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.ApplyTransaction(ctx, buy); err != nil {
		t.Fatal(err)
	}

	err := engine.ApplyAction(ctx, model.CorporateAction{
		ID:            testutil.MakeID(),
		InstrumentID:  instrument.ID,
		Type:          model.ActionDelist,
		EffectiveDate: testutil.Date(t, "2025-01-20"),
	})
	if err != nil {
		t.Fatal(err)
	}

	lots, err := lotRepo.GetLots(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 1 || lots[0].State != model.LotClosed || lots[0].CloseReason != model.CloseReasonDelisted {
		t.Fatalf("lots = %+v, want one closed/delisted lot", lots)
	}

	updated, err := instrumentRepo.Get(ctx, instrument.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Delisted {
		t.Error("instrument not marked delisted")
	}
}
