package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
)

// AccountRepository provides data access methods for the account table.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository with the provided database connection.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Insert creates a new account.
func (s *AccountRepository) Insert(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO account (id, name, base_currency, cost_basis_method, short_selling_enabled, auto_reinvest)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, a.BaseCurrency, string(a.CostBasisMethod), a.ShortSellingEnabled, a.AutoReinvest,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID. Returns apperrors.ErrAccountNotFound
// when no such account exists.
func (s *AccountRepository) Get(ctx context.Context, id string) (model.Account, error) {
	query := `
		SELECT id, name, base_currency, cost_basis_method, short_selling_enabled, auto_reinvest, created_at
		FROM account
		WHERE id = ?
	`

	var a model.Account
	var method, createdAtStr string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.BaseCurrency, &method, &a.ShortSellingEnabled, &a.AutoReinvest, &createdAtStr,
	)
	if err == sql.ErrNoRows {
		return model.Account{}, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}

	a.CostBasisMethod = model.CostBasisMethod(method)
	a.CreatedAt, err = ParseTime(createdAtStr)
	if err != nil {
		a.CreatedAt = a.CreatedAt.UTC()
	}

	return a, nil
}

// List retrieves all accounts.
func (s *AccountRepository) List(ctx context.Context) ([]model.Account, error) {
	query := `
		SELECT id, name, base_currency, cost_basis_method, short_selling_enabled, auto_reinvest, created_at
		FROM account
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query account table: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		var method, createdAtStr string

		if err := rows.Scan(&a.ID, &a.Name, &a.BaseCurrency, &method, &a.ShortSellingEnabled, &a.AutoReinvest, &createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan account results: %w", err)
		}
		a.CostBasisMethod = model.CostBasisMethod(method)
		if t, err := ParseTime(createdAtStr); err == nil {
			a.CreatedAt = t
		}

		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account table: %w", err)
	}

	return accounts, nil
}
