package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// LoanStore implements domain.LoanStore using PostgreSQL.
type LoanStore struct {
	pool *pgxpool.Pool
}

// NewLoanStore creates a new LoanStore backed by the given connection pool.
func NewLoanStore(pool *pgxpool.Pool) *LoanStore {
	return &LoanStore{pool: pool}
}

var loanColumns = []string{
	"portfolio_id", "loan_id", "application_id",
	"current_balance", "disbursed_amount", "dpd", "total_overdue",
	"disbursed_date", "interest_rate",
	"written_off", "repossessed", "recovery_after_write_off",
	"geography", "product", "segment", "borrower_name",
	"residual_tenure_months", "imported_at",
}

func loanValues(portfolioID string, l domain.LoanRecord, at time.Time) []any {
	return []any{
		portfolioID, l.ID, l.ApplicationID,
		l.CurrentBalance, l.DisbursedAmount, l.DPD, l.TotalOverdue,
		l.DisbursedDate, l.InterestRate,
		l.WrittenOff, l.Repossessed, l.RecoveryAfterWriteOff,
		l.Geography, l.Product, l.Segment, l.BorrowerName,
		l.ResidualTenureMonths, at,
	}
}

// InsertBatch upserts loans into an existing tape using a pgx Batch. Loans
// already present under the same id are overwritten.
func (s *LoanStore) InsertBatch(ctx context.Context, portfolioID string, loans []domain.LoanRecord) error {
	if len(loans) == 0 {
		return nil
	}

	const query = `
		INSERT INTO loans (
			portfolio_id, loan_id, application_id,
			current_balance, disbursed_amount, dpd, total_overdue,
			disbursed_date, interest_rate,
			written_off, repossessed, recovery_after_write_off,
			geography, product, segment, borrower_name,
			residual_tenure_months, imported_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17, $18
		)
		ON CONFLICT (portfolio_id, loan_id) DO UPDATE SET
			application_id           = EXCLUDED.application_id,
			current_balance          = EXCLUDED.current_balance,
			disbursed_amount         = EXCLUDED.disbursed_amount,
			dpd                      = EXCLUDED.dpd,
			total_overdue            = EXCLUDED.total_overdue,
			disbursed_date           = EXCLUDED.disbursed_date,
			interest_rate            = EXCLUDED.interest_rate,
			written_off              = EXCLUDED.written_off,
			repossessed              = EXCLUDED.repossessed,
			recovery_after_write_off = EXCLUDED.recovery_after_write_off,
			geography                = EXCLUDED.geography,
			product                  = EXCLUDED.product,
			segment                  = EXCLUDED.segment,
			borrower_name            = EXCLUDED.borrower_name,
			residual_tenure_months   = EXCLUDED.residual_tenure_months,
			imported_at              = EXCLUDED.imported_at`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, l := range loans {
		batch.Queue(query, loanValues(portfolioID, l, now)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range loans {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert loan batch item %d: %w", i, err)
		}
	}
	return nil
}

// ReplacePortfolio deletes the existing tape and bulk-loads loans with
// COPY inside one transaction, so readers never see a partial tape.
func (s *LoanStore) ReplacePortfolio(ctx context.Context, portfolioID string, loans []domain.LoanRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM loans WHERE portfolio_id = $1`, portfolioID); err != nil {
		return fmt.Errorf("postgres: clear portfolio %s: %w", portfolioID, err)
	}

	now := time.Now().UTC()
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"loans"},
		loanColumns,
		pgx.CopyFromSlice(len(loans), func(i int) ([]any, error) {
			return loanValues(portfolioID, loans[i], now), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy loans for %s: %w", portfolioID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit portfolio %s: %w", portfolioID, err)
	}
	return nil
}

// ListByPortfolio returns every loan in the tape ordered by loan id.
func (s *LoanStore) ListByPortfolio(ctx context.Context, portfolioID string) ([]domain.LoanRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT loan_id, application_id,
			current_balance, disbursed_amount, dpd, total_overdue,
			disbursed_date, interest_rate,
			written_off, repossessed, recovery_after_write_off,
			geography, product, segment, borrower_name,
			residual_tenure_months
		FROM loans WHERE portfolio_id = $1
		ORDER BY loan_id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list loans %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var loans []domain.LoanRecord
	for rows.Next() {
		var l domain.LoanRecord
		if err := rows.Scan(
			&l.ID, &l.ApplicationID,
			&l.CurrentBalance, &l.DisbursedAmount, &l.DPD, &l.TotalOverdue,
			&l.DisbursedDate, &l.InterestRate,
			&l.WrittenOff, &l.Repossessed, &l.RecoveryAfterWriteOff,
			&l.Geography, &l.Product, &l.Segment, &l.BorrowerName,
			&l.ResidualTenureMonths,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list loans rows: %w", err)
	}
	return loans, nil
}

// CountByPortfolio returns the number of loans in the tape.
func (s *LoanStore) CountByPortfolio(ctx context.Context, portfolioID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE portfolio_id = $1`, portfolioID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count loans %s: %w", portfolioID, err)
	}
	return n, nil
}
