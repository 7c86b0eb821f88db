package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Event narrows audit queries to one event name.
	Event  string
}

// LoanStore persists loan tapes keyed by portfolio.
type LoanStore interface {
	InsertBatch(ctx context.Context, portfolioID string, loans []LoanRecord) error
	// ReplacePortfolio supersedes the whole tape for portfolioID atomically.
	ReplacePortfolio(ctx context.Context, portfolioID string, loans []LoanRecord) error
	ListByPortfolio(ctx context.Context, portfolioID string) ([]LoanRecord, error)
	CountByPortfolio(ctx context.Context, portfolioID string) (int64, error)
}

// StructureStore persists securitisation structures.
type StructureStore interface {
	Create(ctx context.Context, s SecuritisationStructure) error
	Update(ctx context.Context, s SecuritisationStructure) error
	Finalise(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (SecuritisationStructure, error)
	ListByPortfolio(ctx context.Context, portfolioID string) ([]SecuritisationStructure, error)
}

// PolicyStore persists per-portfolio provisioning policies.
type PolicyStore interface {
	Get(ctx context.Context, portfolioID string) (ProvisioningPolicy, error)
	Upsert(ctx context.Context, p ProvisioningPolicy) error
}

// RunStore persists engine runs.
type RunStore interface {
	Insert(ctx context.Context, r RunRecord) error
	GetByID(ctx context.Context, id string) (RunRecord, error)
	ListRecent(ctx context.Context, limit int) ([]RunRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]RunRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Audit event names.
const (
	AuditPortfolioImported  = "portfolio.imported"
	AuditPolicyUpdated      = "policy.updated"
	AuditStructureFinalised = "structure.finalised"
	AuditRunsArchived       = "runs.archived"
)
