package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runCols = `id, portfolio_id, structure_id, kind, summary, params, result, created_at`

func scanRun(row pgx.Row) (domain.RunRecord, error) {
	var (
		r             domain.RunRecord
		kind          string
		params, result []byte
	)
	if err := row.Scan(&r.ID, &r.PortfolioID, &r.StructureID, &kind, &r.Summary, &params, &result, &r.CreatedAt); err != nil {
		return domain.RunRecord{}, err
	}
	r.Kind = domain.RunKind(kind)
	r.Params = params
	r.Result = result
	return r, nil
}

func scanRuns(rows pgx.Rows) ([]domain.RunRecord, error) {
	defer rows.Close()
	var out []domain.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// jsonOrEmpty keeps the NOT NULL JSONB columns satisfied.
func jsonOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

// Insert persists a run record.
func (s *RunStore) Insert(ctx context.Context, r domain.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (`+runCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.PortfolioID, r.StructureID, string(r.Kind), r.Summary,
		jsonOrEmpty(r.Params), jsonOrEmpty(r.Result), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", r.ID, err)
	}
	return nil
}

// GetByID retrieves a run by id.
func (s *RunStore) GetByID(ctx context.Context, id string) (domain.RunRecord, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runCols+` FROM runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RunRecord{}, domain.ErrNotFound
		}
		return domain.RunRecord{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	return r, nil
}

// ListRecent returns the newest runs first.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runCols+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent runs: %w", err)
	}
	return scanRuns(rows)
}

// ListBefore returns runs older than before, oldest first, for archiving.
func (s *RunStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.RunRecord, error) {
	query := `SELECT ` + runCols + ` FROM runs WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs before %s: %w", before.Format(time.RFC3339), err)
	}
	return scanRuns(rows)
}

// DeleteBefore removes runs older than before and reports how many went.
func (s *RunStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete runs before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
