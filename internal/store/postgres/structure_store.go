package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// StructureStore implements domain.StructureStore using PostgreSQL.
type StructureStore struct {
	pool *pgxpool.Pool
}

// NewStructureStore creates a new StructureStore backed by the given pool.
func NewStructureStore(pool *pgxpool.Pool) *StructureStore {
	return &StructureStore{pool: pool}
}

const structureCols = `id, portfolio_id, senior_pct, mezzanine_pct, equity_pct,
	over_collateralisation_pct, senior_coupon, mezzanine_coupon,
	finalised, finalised_at, created_at, updated_at`

func scanStructure(row pgx.Row) (domain.SecuritisationStructure, error) {
	var s domain.SecuritisationStructure
	err := row.Scan(
		&s.ID, &s.PortfolioID, &s.SeniorPct, &s.MezzaninePct, &s.EquityPct,
		&s.OverCollateralisationPct, &s.SeniorCoupon, &s.MezzanineCoupon,
		&s.Finalised, &s.FinalisedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// Create inserts a new structure. A duplicate id yields ErrAlreadyExists.
func (s *StructureStore) Create(ctx context.Context, st domain.SecuritisationStructure) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO structures (`+structureCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, NULL, $9, $9)`,
		st.ID, st.PortfolioID, st.SeniorPct, st.MezzaninePct, st.EquityPct,
		st.OverCollateralisationPct, st.SeniorCoupon, st.MezzanineCoupon,
		st.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: create structure %s: %w", st.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create structure %s: %w", st.ID, err)
	}
	return nil
}

// Update rewrites the tranche parameters of a draft structure. Finalised
// structures are immutable.
func (s *StructureStore) Update(ctx context.Context, st domain.SecuritisationStructure) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE structures SET
			senior_pct                 = $2,
			mezzanine_pct              = $3,
			equity_pct                 = $4,
			over_collateralisation_pct = $5,
			senior_coupon              = $6,
			mezzanine_coupon           = $7,
			updated_at                 = NOW()
		WHERE id = $1 AND NOT finalised`,
		st.ID, st.SeniorPct, st.MezzaninePct, st.EquityPct,
		st.OverCollateralisationPct, st.SeniorCoupon, st.MezzanineCoupon,
	)
	if err != nil {
		return fmt.Errorf("postgres: update structure %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrFinalised(ctx, st.ID)
	}
	return nil
}

// Finalise freezes a structure.
func (s *StructureStore) Finalise(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE structures SET finalised = TRUE, finalised_at = $2, updated_at = $2
		WHERE id = $1 AND NOT finalised`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: finalise structure %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrFinalised(ctx, id)
	}
	return nil
}

// missOrFinalised explains why a guarded update touched no rows.
func (s *StructureStore) missOrFinalised(ctx context.Context, id string) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("postgres: structure %s: %w", id, domain.ErrStructureFinalised)
}

// GetByID retrieves a structure by its primary key.
func (s *StructureStore) GetByID(ctx context.Context, id string) (domain.SecuritisationStructure, error) {
	st, err := scanStructure(s.pool.QueryRow(ctx,
		`SELECT `+structureCols+` FROM structures WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SecuritisationStructure{}, domain.ErrNotFound
		}
		return domain.SecuritisationStructure{}, fmt.Errorf("postgres: get structure %s: %w", id, err)
	}
	return st, nil
}

// ListByPortfolio returns a portfolio's structures, newest first.
func (s *StructureStore) ListByPortfolio(ctx context.Context, portfolioID string) ([]domain.SecuritisationStructure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+structureCols+` FROM structures WHERE portfolio_id = $1 ORDER BY created_at DESC`,
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list structures %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var out []domain.SecuritisationStructure
	for rows.Next() {
		st, err := scanStructure(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan structure: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
