package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openfolio/engine/internal/model"
)

// LotRepository persists the derived lot state of an account: lots,
// the position cache, realized gains and the rebuild checkpoint.
// Everything here is reconstructable from the ledger.
type LotRepository struct {
	db *sql.DB
}

// NewLotRepository creates a new LotRepository with the provided database connection.
func NewLotRepository(db *sql.DB) *LotRepository {
	return &LotRepository{db: db}
}

// GetLots retrieves all lots for an account, oldest open date first.
func (s *LotRepository) GetLots(ctx context.Context, accountID string) ([]model.Lot, error) {
	query := `
		SELECT id, account_id, instrument_id, origin_transaction_id,
		       original_quantity, quantity_open, quantity_closed,
		       cost_basis_per_unit, open_date, close_date, close_reason, state
		FROM lot
		WHERE account_id = ?
		ORDER BY open_date ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lot table: %w", err)
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		var l model.Lot
		var state, openDateStr string
		var closeDateStr, closeReason sql.NullString

		err := rows.Scan(
			&l.ID,
			&l.AccountID,
			&l.InstrumentID,
			&l.OriginTransactionID,
			&l.OriginalQuantity,
			&l.QuantityOpen,
			&l.QuantityClosed,
			&l.CostBasisPerUnit,
			&openDateStr,
			&closeDateStr,
			&closeReason,
			&state,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot results: %w", err)
		}

		l.State = model.LotState(state)
		l.OpenDate, err = ParseTime(openDateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse open date: %w", err)
		}
		if closeDateStr.Valid {
			closeDate, err := ParseTime(closeDateStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse close date: %w", err)
			}
			l.CloseDate = &closeDate
		}
		if closeReason.Valid {
			l.CloseReason = closeReason.String
		}

		lots = append(lots, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lot table: %w", err)
	}

	return lots, nil
}

// Checkpoint marks how far the derived lot state has consumed the
// ledger: the last applied transaction sequence and the last applied
// corporate action sequence. Both advance monotonically; a rebuild
// replays only what lies beyond them.
type Checkpoint struct {
	LastSeq       int64
	LastActionSeq int64
}

// SaveState atomically replaces the derived state of an account: lots,
// positions, newly realized gains and the rebuild checkpoint. Done in
// one database transaction so a cancelled rebuild resumes from a
// consistent snapshot.
func (s *LotRepository) SaveState(
	ctx context.Context,
	accountID string,
	lots []model.Lot,
	positions []model.Position,
	gains []model.RealizedGain,
	checkpoint Checkpoint,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin lot state transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, "DELETE FROM lot WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("failed to clear lots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM position WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	lotInsert := `
		INSERT INTO lot
			(id, account_id, instrument_id, origin_transaction_id,
			 original_quantity, quantity_open, quantity_closed,
			 cost_basis_per_unit, open_date, close_date, close_reason, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, l := range lots {
		var closeDate, closeReason sql.NullString
		if l.CloseDate != nil {
			closeDate = sql.NullString{String: l.CloseDate.Format("2006-01-02"), Valid: true}
		}
		if l.CloseReason != "" {
			closeReason = sql.NullString{String: l.CloseReason, Valid: true}
		}

		_, err := tx.ExecContext(ctx, lotInsert,
			l.ID, l.AccountID, l.InstrumentID, l.OriginTransactionID,
			l.OriginalQuantity, l.QuantityOpen, l.QuantityClosed,
			l.CostBasisPerUnit, l.OpenDate.Format("2006-01-02"),
			closeDate, closeReason, string(l.State),
		)
		if err != nil {
			return fmt.Errorf("failed to insert lot: %w", err)
		}
	}

	positionInsert := `
		INSERT INTO position (account_id, instrument_id, quantity, average_cost, last_updated)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, p := range positions {
		_, err := tx.ExecContext(ctx, positionInsert,
			p.AccountID, p.InstrumentID, p.Quantity, p.AverageCost,
			p.LastUpdated.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert position: %w", err)
		}
	}

	gainInsert := `
		INSERT OR IGNORE INTO realized_gain
			(id, account_id, instrument_id, lot_id, transaction_id,
			 date, quantity_sold, cost_basis, proceeds, gain)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, g := range gains {
		_, err := tx.ExecContext(ctx, gainInsert,
			g.ID, g.AccountID, g.InstrumentID, g.LotID, g.TransactionID,
			g.Date.Format("2006-01-02"), g.QuantitySold, g.CostBasis, g.Proceeds, g.Gain,
		)
		if err != nil {
			return fmt.Errorf("failed to insert realized gain: %w", err)
		}
	}

	checkpointUpsert := `
		INSERT INTO rebuild_checkpoint (account_id, last_seq, last_action_seq, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			last_seq = excluded.last_seq,
			last_action_seq = excluded.last_action_seq,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, checkpointUpsert,
		accountID, checkpoint.LastSeq, checkpoint.LastActionSeq, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lot state: %w", err)
	}

	return nil
}

// ClearState removes all derived state for an account, resetting the
// rebuild checkpoint to zero. Realized gains are cleared too; a full
// replay reproduces them deterministically.
func (s *LotRepository) ClearState(ctx context.Context, accountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin clear transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, query := range []string{
		"DELETE FROM lot WHERE account_id = ?",
		"DELETE FROM position WHERE account_id = ?",
		"DELETE FROM realized_gain WHERE account_id = ?",
		"DELETE FROM rebuild_checkpoint WHERE account_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, query, accountID); err != nil {
			return fmt.Errorf("failed to clear account state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	return nil
}

// GetCheckpoint returns the ledger progress applied for an account, or
// the zero checkpoint when none exists.
func (s *LotRepository) GetCheckpoint(ctx context.Context, accountID string) (Checkpoint, error) {
	var cp Checkpoint
	err := s.db.QueryRowContext(ctx,
		"SELECT last_seq, last_action_seq FROM rebuild_checkpoint WHERE account_id = ?", accountID,
	).Scan(&cp.LastSeq, &cp.LastActionSeq)
	if err == sql.ErrNoRows {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to query rebuild_checkpoint: %w", err)
	}
	return cp, nil
}

// GetPositions retrieves the cached positions for an account.
func (s *LotRepository) GetPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	query := `
		SELECT account_id, instrument_id, quantity, average_cost, last_updated
		FROM position
		WHERE account_id = ?
		ORDER BY instrument_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position table: %w", err)
	}
	defer rows.Close()

	positions := []model.Position{}
	for rows.Next() {
		var p model.Position
		var lastUpdatedStr string

		if err := rows.Scan(&p.AccountID, &p.InstrumentID, &p.Quantity, &p.AverageCost, &lastUpdatedStr); err != nil {
			return nil, fmt.Errorf("failed to scan position results: %w", err)
		}
		p.LastUpdated, err = ParseTime(lastUpdatedStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last updated: %w", err)
		}

		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position table: %w", err)
	}

	return positions, nil
}

// GetRealizedGains retrieves realized gains for an account within a
// date range, oldest first.
func (s *LotRepository) GetRealizedGains(ctx context.Context, accountID string, from, to time.Time) ([]model.RealizedGain, error) {
	query := `
		SELECT id, account_id, instrument_id, lot_id, transaction_id,
		       date, quantity_sold, cost_basis, proceeds, gain
		FROM realized_gain
		WHERE account_id = ?
		AND date >= ?
		AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query realized_gain table: %w", err)
	}
	defer rows.Close()

	var gains []model.RealizedGain
	for rows.Next() {
		var g model.RealizedGain
		var dateStr string

		err := rows.Scan(
			&g.ID, &g.AccountID, &g.InstrumentID, &g.LotID, &g.TransactionID,
			&dateStr, &g.QuantitySold, &g.CostBasis, &g.Proceeds, &g.Gain,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan realized_gain results: %w", err)
		}
		g.Date, err = ParseTime(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse gain date: %w", err)
		}

		gains = append(gains, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating realized_gain table: %w", err)
	}

	return gains, nil
}
