package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openfolio/engine/internal/model"
)

// LedgerRepository provides data access for the append-only ledger:
// transactions and corporate actions. Records are never updated or
// deleted; corrections are modeled as new offsetting transactions.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository with the provided database connection.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendTransaction inserts a transaction into the ledger. Appending a
// transaction whose idempotency key has been seen before is a no-op
// that returns the original ack with Duplicate set, guaranteeing safe
// retries from upstream ingestion jobs.
func (s *LedgerRepository) AppendTransaction(ctx context.Context, t *model.Transaction) (model.Ack, error) {
	if ack, found, err := s.findByKey(ctx, "ledger_transaction", t.IdempotencyKey); err != nil {
		return model.Ack{}, err
	} else if found {
		return ack, nil
	}

	query := `
		INSERT INTO ledger_transaction
			(id, account_id, instrument_id, side, quantity, price, fee,
			 trade_date, settlement_date, idempotency_key, specific_lots)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var specificLots sql.NullString
	if len(t.SpecificLots) > 0 {
		specificLots = sql.NullString{String: strings.Join(t.SpecificLots, ","), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.AccountID,
		t.InstrumentID,
		string(t.Side),
		t.Quantity,
		t.Price,
		t.Fee,
		t.TradeDate.Format("2006-01-02"),
		t.SettlementDate.Format("2006-01-02"),
		t.IdempotencyKey,
		specificLots,
	)
	if err != nil {
		// A concurrent append with the same key can win the race between
		// our lookup and insert. Re-read and return the original ack.
		if isUniqueViolation(err) {
			ack, found, lookupErr := s.findByKey(ctx, "ledger_transaction", t.IdempotencyKey)
			if lookupErr == nil && found {
				return ack, nil
			}
		}
		return model.Ack{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	return model.Ack{ID: t.ID}, nil
}

// AppendAction inserts a corporate action into the ledger with the same
// idempotency semantics as AppendTransaction.
func (s *LedgerRepository) AppendAction(ctx context.Context, a *model.CorporateAction) (model.Ack, error) {
	if ack, found, err := s.findByKey(ctx, "corporate_action", a.IdempotencyKey); err != nil {
		return model.Ack{}, err
	} else if found {
		return ack, nil
	}

	query := `
		INSERT INTO corporate_action
			(id, instrument_id, type, effective_date, ratio, amount, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.InstrumentID,
		string(a.Type),
		a.EffectiveDate.Format("2006-01-02"),
		a.Ratio,
		a.Amount,
		a.IdempotencyKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			ack, found, lookupErr := s.findByKey(ctx, "corporate_action", a.IdempotencyKey)
			if lookupErr == nil && found {
				return ack, nil
			}
		}
		return model.Ack{}, fmt.Errorf("failed to append corporate action: %w", err)
	}

	return model.Ack{ID: a.ID}, nil
}

// findByKey looks up a previously appended record by idempotency key.
func (s *LedgerRepository) findByKey(ctx context.Context, table, key string) (model.Ack, bool, error) {
	//nolint:gosec // G202: table name is one of two hardcoded values
	query := "SELECT id FROM " + table + " WHERE idempotency_key = ?"

	var id string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&id)
	if err == sql.ErrNoRows {
		return model.Ack{}, false, nil
	}
	if err != nil {
		return model.Ack{}, false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	return model.Ack{ID: id, Duplicate: true}, true, nil
}

// GetTransactions retrieves an account's transactions with settlement
// date inside [from, to], ordered by (settlement_date, trade_date, seq).
// Settlement date governs economic effect; trade date and insertion
// order break ties deterministically.
func (s *LedgerRepository) GetTransactions(ctx context.Context, accountID string, from, to time.Time) ([]model.Transaction, error) {
	query := `
		SELECT seq, id, account_id, instrument_id, side, quantity, price, fee,
		       trade_date, settlement_date, idempotency_key, specific_lots, created_at
		FROM ledger_transaction
		WHERE account_id = ?
		AND settlement_date >= ?
		AND settlement_date <= ?
		ORDER BY settlement_date ASC, trade_date ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger_transaction table: %w", err)
	}
	defer rows.Close()

	transactions, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

// GetTransactionsAfter retrieves an account's transactions with an
// insertion sequence greater than afterSeq, in ledger order. Used by
// the checkpointed lot rebuild to skip already-processed events.
func (s *LedgerRepository) GetTransactionsAfter(ctx context.Context, accountID string, afterSeq int64) ([]model.Transaction, error) {
	query := `
		SELECT seq, id, account_id, instrument_id, side, quantity, price, fee,
		       trade_date, settlement_date, idempotency_key, specific_lots, created_at
		FROM ledger_transaction
		WHERE account_id = ?
		AND seq > ?
		ORDER BY settlement_date ASC, trade_date ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger_transaction table: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// TransactionSeq returns the insertion sequence of a transaction by ID.
func (s *LedgerRepository) TransactionSeq(ctx context.Context, transactionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, "SELECT seq FROM ledger_transaction WHERE id = ?", transactionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to look up transaction seq: %w", err)
	}
	return seq, nil
}

// ActionSeq returns the insertion sequence of a corporate action by
// ID, or 0 when the action has not been appended to the ledger.
func (s *LedgerRepository) ActionSeq(ctx context.Context, actionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, "SELECT seq FROM corporate_action WHERE id = ?", actionID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up corporate action seq: %w", err)
	}
	return seq, nil
}

// GetActions retrieves corporate actions for an instrument with
// effective date inside [from, to], in effective-date order.
func (s *LedgerRepository) GetActions(ctx context.Context, instrumentID string, from, to time.Time) ([]model.CorporateAction, error) {
	query := `
		SELECT seq, id, instrument_id, type, effective_date, ratio, amount, idempotency_key, created_at
		FROM corporate_action
		WHERE instrument_id = ?
		AND effective_date >= ?
		AND effective_date <= ?
		ORDER BY effective_date ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, instrumentID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query corporate_action table: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// GetAllActions retrieves every corporate action in effective-date
// order. Used when replaying an account whose instrument set is not
// known up front.
func (s *LedgerRepository) GetAllActions(ctx context.Context) ([]model.CorporateAction, error) {
	query := `
		SELECT seq, id, instrument_id, type, effective_date, ratio, amount, idempotency_key, created_at
		FROM corporate_action
		ORDER BY effective_date ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query corporate_action table: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// ReadEvents returns the merged, ordered economic event stream for an
// account over a time range: transactions interleaved with the
// corporate actions effective in the range. On an equal date, actions
// sort before transactions because an action at date d adjusts only
// history strictly before d.
func (s *LedgerRepository) ReadEvents(ctx context.Context, accountID string, from, to time.Time) ([]model.LedgerEvent, error) {
	transactions, err := s.GetTransactions(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	instruments := make(map[string]bool)
	for _, t := range transactions {
		instruments[t.InstrumentID] = true
	}

	events := make([]model.LedgerEvent, 0, len(transactions))
	for i := range transactions {
		events = append(events, model.LedgerEvent{Transaction: &transactions[i]})
	}

	actions, err := s.GetAllActions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range actions {
		a := actions[i]
		if !instruments[a.InstrumentID] {
			continue
		}
		if a.EffectiveDate.Before(from) || a.EffectiveDate.After(to) {
			continue
		}
		events = append(events, model.LedgerEvent{Action: &actions[i]})
	}

	sort.SliceStable(events, func(i, j int) bool {
		di, dj := events[i].EffectiveDate(), events[j].EffectiveDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		// Actions first on equal dates.
		if (events[i].Action != nil) != (events[j].Action != nil) {
			return events[i].Action != nil
		}
		return false
	})

	return events, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var transactions []model.Transaction

	for rows.Next() {
		var t model.Transaction
		var seq int64
		var side, tradeDateStr, settlementDateStr, createdAtStr string
		var specificLots sql.NullString

		err := rows.Scan(
			&seq,
			&t.ID,
			&t.AccountID,
			&t.InstrumentID,
			&side,
			&t.Quantity,
			&t.Price,
			&t.Fee,
			&tradeDateStr,
			&settlementDateStr,
			&t.IdempotencyKey,
			&specificLots,
			&createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger_transaction results: %w", err)
		}

		t.Side = model.Side(side)
		t.TradeDate, err = ParseTime(tradeDateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trade date: %w", err)
		}
		t.SettlementDate, err = ParseTime(settlementDateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse settlement date: %w", err)
		}
		t.CreatedAt, err = ParseTime(createdAtStr)
		if err != nil {
			t.CreatedAt = time.Time{}
		}
		if specificLots.Valid && specificLots.String != "" {
			t.SpecificLots = strings.Split(specificLots.String, ",")
		}

		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger_transaction table: %w", err)
	}

	return transactions, nil
}

func scanActions(rows *sql.Rows) ([]model.CorporateAction, error) {
	var actions []model.CorporateAction

	for rows.Next() {
		var a model.CorporateAction
		var actionType, effectiveDateStr, createdAtStr string
		var ratio, amount sql.NullFloat64

		err := rows.Scan(
			&a.Seq,
			&a.ID,
			&a.InstrumentID,
			&actionType,
			&effectiveDateStr,
			&ratio,
			&amount,
			&a.IdempotencyKey,
			&createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan corporate_action results: %w", err)
		}

		a.Type = model.ActionType(actionType)
		a.EffectiveDate, err = ParseTime(effectiveDateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse effective date: %w", err)
		}
		a.CreatedAt, err = ParseTime(createdAtStr)
		if err != nil {
			a.CreatedAt = time.Time{}
		}
		if ratio.Valid {
			a.Ratio = ratio.Float64
		}
		if amount.Valid {
			a.Amount = amount.Float64
		}

		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corporate_action table: %w", err)
	}

	return actions, nil
}
