package repository_test

import (
	"context"
	"testing"

	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/testutil"
)

func TestAppendTransactionIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)
	repo := repository.NewLedgerRepository(db)

	tx := testutil.Buy(account.ID, instrument.ID, 10, 100, testutil.Date(t, "2025-01-02"))

	first, err := repo.AppendTransaction(ctx, &tx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Duplicate {
		t.Error("first append flagged as duplicate")
	}

	// Same idempotency key, different transaction ID: the retry must be
	// absorbed and acknowledge the original.
	retry := tx
	retry.ID = testutil.MakeID()
	second, err := repo.AppendTransaction(ctx, &retry)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate {
		t.Error("retry not flagged as duplicate")
	}
	if second.ID != tx.ID {
		t.Errorf("retry ack ID = %s, want original %s", second.ID, tx.ID)
	}

	stored, err := repo.GetTransactions(ctx, account.ID, testutil.Date(t, "2025-01-01"), testutil.Date(t, "2025-12-31"))
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("ledger holds %d transactions, want 1", len(stored))
	}
}

func TestAppendActionIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	instrument := testutil.NewInstrument().Build(t, db)
	repo := repository.NewLedgerRepository(db)

	action := model.CorporateAction{
		ID:             testutil.MakeID(),
		InstrumentID:   instrument.ID,
		Type:           model.ActionSplit,
		EffectiveDate:  testutil.Date(t, "2025-03-01"),
		Ratio:          2,
		IdempotencyKey: "split-2025-03-01",
	}

	if _, err := repo.AppendAction(ctx, &action); err != nil {
		t.Fatal(err)
	}

	retry := action
	retry.ID = testutil.MakeID()
	ack, err := repo.AppendAction(ctx, &retry)
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Duplicate || ack.ID != action.ID {
		t.Errorf("ack = %+v, want duplicate of %s", ack, action.ID)
	}
}

func TestGetTransactionsOrdering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)
	repo := repository.NewLedgerRepository(db)

	// Inserted out of settlement order; reads must come back sorted by
	// settlement date with insertion order breaking ties.
	late := testutil.Buy(account.ID, instrument.ID, 1, 10, testutil.Date(t, "2025-02-01"))
	early := testutil.Buy(account.ID, instrument.ID, 2, 10, testutil.Date(t, "2025-01-05"))
	sameDayFirst := testutil.Buy(account.ID, instrument.ID, 3, 10, testutil.Date(t, "2025-01-10"))
	sameDaySecond := testutil.Sell(account.ID, instrument.ID, 1, 12, testutil.Date(t, "2025-01-10"))

	for _, tx := range []*model.Transaction{&late, &early, &sameDayFirst, &sameDaySecond} {
		if _, err := repo.AppendTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.GetTransactions(ctx, account.ID, testutil.Date(t, "2025-01-01"), testutil.Date(t, "2025-12-31"))
	if err != nil {
		t.Fatal(err)
	}

	wantIDs := []string{early.ID, sameDayFirst.ID, sameDaySecond.ID, late.ID}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d transactions, want %d", len(got), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestReadEventsActionsSortBeforeSameDateTransactions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)
	repo := repository.NewLedgerRepository(db)

	buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
	sameDay := testutil.Buy(account.ID, instrument.ID, 10, 6, testutil.Date(t, "2025-02-01"))
	for _, tx := range []*model.Transaction{&buy, &sameDay} {
		if _, err := repo.AppendTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	split := model.CorporateAction{
		ID:             testutil.MakeID(),
		InstrumentID:   instrument.ID,
		Type:           model.ActionSplit,
		EffectiveDate:  testutil.Date(t, "2025-02-01"),
		Ratio:          2,
		IdempotencyKey: "split-1",
	}
	if _, err := repo.AppendAction(ctx, &split); err != nil {
		t.Fatal(err)
	}

	events, err := repo.ReadEvents(ctx, account.ID, testutil.Date(t, "2025-01-01"), testutil.Date(t, "2025-12-31"))
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Transaction == nil || events[0].Transaction.ID != buy.ID {
		t.Errorf("event 0 = %+v, want the first buy", events[0])
	}
	if events[1].Action == nil || events[1].Action.ID != split.ID {
		t.Errorf("event 1 = %+v, want the split ahead of the same-date buy", events[1])
	}
	if events[2].Transaction == nil || events[2].Transaction.ID != sameDay.ID {
		t.Errorf("event 2 = %+v, want the same-date buy", events[2])
	}
}

func TestReadEventsSkipsUnheldInstruments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	held := testutil.NewInstrument().Build(t, db)
	other := testutil.NewInstrument().WithSymbol("OTHER").Build(t, db)
	repo := repository.NewLedgerRepository(db)

	buy := testutil.Buy(account.ID, held.ID, 100, 10, testutil.Date(t, "2025-01-02"))
	if _, err := repo.AppendTransaction(ctx, &buy); err != nil {
		t.Fatal(err)
	}

	split := model.CorporateAction{
		ID:             testutil.MakeID(),
		InstrumentID:   other.ID,
		Type:           model.ActionSplit,
		EffectiveDate:  testutil.Date(t, "2025-02-01"),
		Ratio:          3,
		IdempotencyKey: "other-split",
	}
	if _, err := repo.AppendAction(ctx, &split); err != nil {
		t.Fatal(err)
	}

	events, err := repo.ReadEvents(ctx, account.ID, testutil.Date(t, "2025-01-01"), testutil.Date(t, "2025-12-31"))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Transaction == nil {
		t.Fatalf("events = %+v, want only the account's own transaction", events)
	}
}

func TestGetTransactionsAfterSeq(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.NewAccount().Build(t, db)
	instrument := testutil.NewInstrument().Build(t, db)
	repo := repository.NewLedgerRepository(db)

	first := testutil.Buy(account.ID, instrument.ID, 1, 10, testutil.Date(t, "2025-01-02"))
	second := testutil.Buy(account.ID, instrument.ID, 2, 10, testutil.Date(t, "2025-01-03"))
	for _, tx := range []*model.Transaction{&first, &second} {
		if _, err := repo.AppendTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	seq, err := repo.TransactionSeq(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}

	remaining, err := repo.GetTransactionsAfter(ctx, account.ID, seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != second.ID {
		t.Fatalf("remaining = %+v, want only the second transaction", remaining)
	}
}
