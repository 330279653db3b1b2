package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openfolio/engine/internal/apperrors"
)

// Artifact kinds stored by the engine.
const (
	ArtifactValuation   = "valuation"
	ArtifactReturns     = "returns"
	ArtifactRisk        = "risk"
	ArtifactAttribution = "attribution"
)

// ArtifactRepository stores derived calculation results keyed by
// (account, kind, as-of date, calculation version). Artifacts are
// never mutated in place: recomputing under a new version inserts a
// new row and historical results under old versions stay readable for
// audit and reproducibility.
type ArtifactRepository struct {
	db *sql.DB
}

// NewArtifactRepository creates a new ArtifactRepository with the provided database connection.
func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Save stores a derived artifact. Saving the same key twice is a
// no-op: the first result under a (kind, as-of, version) key wins,
// which keeps replayed snapshot jobs idempotent.
func (s *ArtifactRepository) Save(ctx context.Context, accountID, kind string, asOf time.Time, version string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact payload: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO artifact (id, account_id, kind, as_of, calculation_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(), accountID, kind, asOf.Format("2006-01-02"), version, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	return nil
}

// Get loads the artifact stored for the exact (account, kind, as-of,
// version) key into out. Returns apperrors.ErrArtifactNotFound when no
// such artifact exists.
func (s *ArtifactRepository) Get(ctx context.Context, accountID, kind string, asOf time.Time, version string, out interface{}) error {
	query := `
		SELECT payload
		FROM artifact
		WHERE account_id = ? AND kind = ? AND as_of = ? AND calculation_version = ?
	`

	var payload string
	err := s.db.QueryRowContext(ctx, query, accountID, kind, asOf.Format("2006-01-02"), version).Scan(&payload)
	if err == sql.ErrNoRows {
		return apperrors.ErrArtifactNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query artifact: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to unmarshal artifact payload: %w", err)
	}

	return nil
}

// GetLatest loads the most recent artifact of a kind at or before asOf
// for a calculation version. Returns apperrors.ErrArtifactNotFound when
// none exists.
func (s *ArtifactRepository) GetLatest(ctx context.Context, accountID, kind string, asOf time.Time, version string, out interface{}) error {
	query := `
		SELECT payload
		FROM artifact
		WHERE account_id = ? AND kind = ? AND as_of <= ? AND calculation_version = ?
		ORDER BY as_of DESC
		LIMIT 1
	`

	var payload string
	err := s.db.QueryRowContext(ctx, query, accountID, kind, asOf.Format("2006-01-02"), version).Scan(&payload)
	if err == sql.ErrNoRows {
		return apperrors.ErrArtifactNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query artifact: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to unmarshal artifact payload: %w", err)
	}

	return nil
}
