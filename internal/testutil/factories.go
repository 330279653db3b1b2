package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
)

// MakeID returns a fresh UUID string.
func MakeID() string {
	return uuid.New().String()
}

// Date parses a YYYY-MM-DD string, failing the test on error.
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

// AccountBuilder provides a fluent interface for creating test
// accounts.
//
// Example usage:
//
//	account := testutil.NewAccount().Build(t, db)
//	lifo := testutil.NewAccount().WithMethod(model.MethodLIFO).Build(t, db)
type AccountBuilder struct {
	ID                  string
	Name                string
	BaseCurrency        string
	CostBasisMethod     model.CostBasisMethod
	ShortSellingEnabled bool
	AutoReinvest        bool
}

// NewAccount creates an AccountBuilder with sensible defaults.
func NewAccount() *AccountBuilder {
	return &AccountBuilder{
		ID:              MakeID(),
		Name:            "Test Account",
		BaseCurrency:    "USD",
		CostBasisMethod: model.MethodFIFO,
	}
}

// WithID sets a custom ID.
func (b *AccountBuilder) WithID(id string) *AccountBuilder {
	b.ID = id
	return b
}

// WithMethod sets the cost basis method.
func (b *AccountBuilder) WithMethod(method model.CostBasisMethod) *AccountBuilder {
	b.CostBasisMethod = method
	return b
}

// WithCurrency sets the base currency.
func (b *AccountBuilder) WithCurrency(currency string) *AccountBuilder {
	b.BaseCurrency = currency
	return b
}

// ShortSelling enables the short selling flag.
func (b *AccountBuilder) ShortSelling() *AccountBuilder {
	b.ShortSellingEnabled = true
	return b
}

// Reinvesting enables the auto-reinvest flag.
func (b *AccountBuilder) Reinvesting() *AccountBuilder {
	b.AutoReinvest = true
	return b
}

// Build inserts the account and returns it.
func (b *AccountBuilder) Build(t *testing.T, db *sql.DB) model.Account {
	t.Helper()

	account := model.Account{
		ID:                  b.ID,
		Name:                b.Name,
		BaseCurrency:        b.BaseCurrency,
		CostBasisMethod:     b.CostBasisMethod,
		ShortSellingEnabled: b.ShortSellingEnabled,
		AutoReinvest:        b.AutoReinvest,
		CreatedAt:           time.Now().UTC(),
	}
	if err := repository.NewAccountRepository(db).Insert(context.Background(), &account); err != nil {
		t.Fatalf("Failed to insert test account: %v", err)
	}
	return account
}

// InstrumentBuilder provides a fluent interface for creating test
// instruments.
type InstrumentBuilder struct {
	ID         string
	Symbol     string
	Name       string
	Currency   string
	AssetClass string
	Sector     string
}

// NewInstrument creates an InstrumentBuilder with sensible defaults.
func NewInstrument() *InstrumentBuilder {
	return &InstrumentBuilder{
		ID:         MakeID(),
		Symbol:     "TEST",
		Name:       "Test Instrument",
		Currency:   "USD",
		AssetClass: "equity",
	}
}

// WithID sets a custom ID.
func (b *InstrumentBuilder) WithID(id string) *InstrumentBuilder {
	b.ID = id
	return b
}

// WithSymbol sets the ticker symbol.
func (b *InstrumentBuilder) WithSymbol(symbol string) *InstrumentBuilder {
	b.Symbol = symbol
	return b
}

// WithCurrency sets the trading currency.
func (b *InstrumentBuilder) WithCurrency(currency string) *InstrumentBuilder {
	b.Currency = currency
	return b
}

// WithAssetClass sets the asset class.
func (b *InstrumentBuilder) WithAssetClass(class string) *InstrumentBuilder {
	b.AssetClass = class
	return b
}

// WithSector sets the sector.
func (b *InstrumentBuilder) WithSector(sector string) *InstrumentBuilder {
	b.Sector = sector
	return b
}

// Build inserts the instrument and returns it.
func (b *InstrumentBuilder) Build(t *testing.T, db *sql.DB) model.Instrument {
	t.Helper()

	instrument := model.Instrument{
		ID:         b.ID,
		Symbol:     b.Symbol,
		Name:       b.Name,
		Currency:   b.Currency,
		AssetClass: b.AssetClass,
		Sector:     b.Sector,
	}
	if err := repository.NewInstrumentRepository(db).Insert(context.Background(), &instrument); err != nil {
		t.Fatalf("Failed to insert test instrument: %v", err)
	}
	return instrument
}

// MarkDelisted flags an instrument as delisted, failing the test on
// error.
func MarkDelisted(t *testing.T, db *sql.DB, instrumentID string) {
	t.Helper()

	if err := repository.NewInstrumentRepository(db).MarkDelisted(context.Background(), instrumentID); err != nil {
		t.Fatalf("Failed to mark test instrument delisted: %v", err)
	}
}

// InsertPrice appends a price observation, failing the test on error.
func InsertPrice(t *testing.T, db *sql.DB, instrumentID, date string, price float64) {
	t.Helper()

	err := repository.NewPriceRepository(db).AppendPrice(context.Background(), model.PricePoint{
		InstrumentID: instrumentID,
		Date:         Date(t, date),
		Price:        price,
	})
	if err != nil {
		t.Fatalf("Failed to insert test price: %v", err)
	}
}

// InsertFxRate appends an FX observation, failing the test on error.
func InsertFxRate(t *testing.T, db *sql.DB, from, to, date string, rate float64) {
	t.Helper()

	err := repository.NewPriceRepository(db).AppendFxRate(context.Background(), model.FxRate{
		From: from,
		To:   to,
		Date: Date(t, date),
		Rate: rate,
	})
	if err != nil {
		t.Fatalf("Failed to insert test FX rate: %v", err)
	}
}

// Buy builds a buy transaction with a fresh ID and idempotency key.
func Buy(accountID, instrumentID string, qty, price float64, date time.Time) model.Transaction {
	id := MakeID()
	return model.Transaction{
		ID:             id,
		AccountID:      accountID,
		InstrumentID:   instrumentID,
		Side:           model.SideBuy,
		Quantity:       qty,
		Price:          price,
		TradeDate:      date,
		SettlementDate: date,
		IdempotencyKey: "key-" + id,
	}
}

// Sell builds a sell transaction with a fresh ID and idempotency key.
func Sell(accountID, instrumentID string, qty, price float64, date time.Time) model.Transaction {
	id := MakeID()
	return model.Transaction{
		ID:             id,
		AccountID:      accountID,
		InstrumentID:   instrumentID,
		Side:           model.SideSell,
		Quantity:       qty,
		Price:          price,
		TradeDate:      date,
		SettlementDate: date,
		IdempotencyKey: "key-" + id,
	}
}
