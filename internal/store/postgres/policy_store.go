package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// PolicyStore implements domain.PolicyStore using PostgreSQL. Rule sets are
// stored as JSONB.
type PolicyStore struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a new PolicyStore backed by the given pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

// Get returns the stored policy for portfolioID or ErrNotFound.
func (s *PolicyStore) Get(ctx context.Context, portfolioID string) (domain.ProvisioningPolicy, error) {
	var (
		p                domain.ProvisioningPolicy
		nbfiRaw, lendRaw []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT portfolio_id, nbfi_rules, lender_rules, updated_at
		FROM provisioning_policies WHERE portfolio_id = $1`, portfolioID,
	).Scan(&p.PortfolioID, &nbfiRaw, &lendRaw, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProvisioningPolicy{}, domain.ErrNotFound
		}
		return domain.ProvisioningPolicy{}, fmt.Errorf("postgres: get policy %s: %w", portfolioID, err)
	}
	if err := json.Unmarshal(nbfiRaw, &p.NBFI); err != nil {
		return domain.ProvisioningPolicy{}, fmt.Errorf("postgres: unmarshal nbfi rules: %w", err)
	}
	if err := json.Unmarshal(lendRaw, &p.Lender); err != nil {
		return domain.ProvisioningPolicy{}, fmt.Errorf("postgres: unmarshal lender rules: %w", err)
	}
	return p, nil
}

// Upsert stores both rule sets for a portfolio.
func (s *PolicyStore) Upsert(ctx context.Context, p domain.ProvisioningPolicy) error {
	nbfi, err := json.Marshal(p.NBFI)
	if err != nil {
		return fmt.Errorf("postgres: marshal nbfi rules: %w", err)
	}
	lender, err := json.Marshal(p.Lender)
	if err != nil {
		return fmt.Errorf("postgres: marshal lender rules: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO provisioning_policies (portfolio_id, nbfi_rules, lender_rules, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (portfolio_id) DO UPDATE SET
			nbfi_rules   = EXCLUDED.nbfi_rules,
			lender_rules = EXCLUDED.lender_rules,
			updated_at   = EXCLUDED.updated_at`,
		p.PortfolioID, nbfi, lender, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert policy %s: %w", p.PortfolioID, err)
	}
	return nil
}
