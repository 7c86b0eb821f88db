package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/risk"
)

// PortfolioDefaults are applied when a request leaves a setting unset or a
// portfolio has no stored policy.
type PortfolioDefaults struct {
	NBFI           domain.RuleSet
	Lender         domain.RuleSet
	Scenario       string
	Periods        int
	FacilityAmount float64
}

// PortfolioService owns loan tapes, provisioning policies and the portfolio
// analytics report.
type PortfolioService struct {
	loans    domain.LoanStore
	policies domain.PolicyStore
	audit    domain.AuditStore
	engine   *risk.Engine
	defaults PortfolioDefaults
	logger   *slog.Logger
}

// NewPortfolioService creates a PortfolioService with all required
// dependencies. audit may be nil.
func NewPortfolioService(
	loans domain.LoanStore,
	policies domain.PolicyStore,
	audit domain.AuditStore,
	engine *risk.Engine,
	defaults PortfolioDefaults,
	logger *slog.Logger,
) *PortfolioService {
	if defaults.Periods <= 0 {
		defaults.Periods = domain.DefaultPeriods
	}
	if len(defaults.NBFI) == 0 {
		defaults.NBFI = risk.DefaultNBFIRules()
	}
	if len(defaults.Lender) == 0 {
		defaults.Lender = risk.DefaultLenderRules()
	}
	return &PortfolioService{
		loans:    loans,
		policies: policies,
		audit:    audit,
		engine:   engine,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "portfolio_service")),
	}
}

// ValidateLoans checks the fields the engine relies on. Every problem is
// reported.
func ValidateLoans(loans []domain.LoanRecord) error {
	var errs []error
	seen := make(map[string]bool, len(loans))
	for i, l := range loans {
		switch {
		case l.ID == "":
			errs = append(errs, fmt.Errorf("loan %d: missing loan_id: %w", i, domain.ErrInvalidInput))
		case seen[l.ID]:
			errs = append(errs, fmt.Errorf("loan %d: duplicate loan_id %q: %w", i, l.ID, domain.ErrInvalidInput))
		}
		seen[l.ID] = true
		if l.CurrentBalance < 0 {
			errs = append(errs, fmt.Errorf("loan %q: negative current_balance: %w", l.ID, domain.ErrInvalidInput))
		}
		if l.DPD < 0 {
			errs = append(errs, fmt.Errorf("loan %q: negative dpd: %w", l.ID, domain.ErrInvalidInput))
		}
		if l.InterestRate < 0 || l.InterestRate > 100 {
			errs = append(errs, fmt.Errorf("loan %q: interest_rate %v outside [0,100]: %w", l.ID, l.InterestRate, domain.ErrInvalidInput))
		}
	}
	return errors.Join(errs...)
}

// ImportLoans replaces the portfolio's tape with loans.
func (s *PortfolioService) ImportLoans(ctx context.Context, portfolioID string, loans []domain.LoanRecord) (domain.Portfolio, error) {
	if portfolioID == "" {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: import: empty portfolio id: %w", domain.ErrInvalidInput)
	}
	if len(loans) == 0 {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: import %s: no loans: %w", portfolioID, domain.ErrInvalidInput)
	}
	if err := ValidateLoans(loans); err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: import %s: %w", portfolioID, err)
	}
	if err := s.loans.ReplacePortfolio(ctx, portfolioID, loans); err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: import %s: %w", portfolioID, err)
	}

	p := domain.Portfolio{ID: portfolioID, LoanCount: len(loans), ImportedAt: time.Now().UTC()}
	s.logAudit(ctx, domain.AuditPortfolioImported, map[string]any{
		"portfolio_id": portfolioID,
		"loan_count":   len(loans),
	})
	s.logger.InfoContext(ctx, "portfolio imported",
		slog.String("portfolio_id", portfolioID),
		slog.Int("loans", len(loans)),
	)
	return p, nil
}

// MergeLoans upserts loans into the portfolio's existing tape by loan id and
// returns the resulting tape size.
func (s *PortfolioService) MergeLoans(ctx context.Context, portfolioID string, loans []domain.LoanRecord) (domain.Portfolio, error) {
	if portfolioID == "" {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: merge: empty portfolio id: %w", domain.ErrInvalidInput)
	}
	if len(loans) == 0 {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: merge %s: no loans: %w", portfolioID, domain.ErrInvalidInput)
	}
	if err := ValidateLoans(loans); err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: merge %s: %w", portfolioID, err)
	}
	if err := s.loans.InsertBatch(ctx, portfolioID, loans); err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: merge %s: %w", portfolioID, err)
	}
	n, err := s.loans.CountByPortfolio(ctx, portfolioID)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio_service: count %s: %w", portfolioID, err)
	}

	p := domain.Portfolio{ID: portfolioID, LoanCount: int(n), ImportedAt: time.Now().UTC()}
	s.logAudit(ctx, domain.AuditPortfolioImported, map[string]any{
		"portfolio_id": portfolioID,
		"loan_count":   p.LoanCount,
		"merged":       len(loans),
	})
	s.logger.InfoContext(ctx, "loans merged",
		slog.String("portfolio_id", portfolioID),
		slog.Int("merged", len(loans)),
		slog.Int("total", p.LoanCount),
	)
	return p, nil
}

// Loans returns the tape for portfolioID, or ErrNotFound when it is empty.
func (s *PortfolioService) Loans(ctx context.Context, portfolioID string) ([]domain.LoanRecord, error) {
	loans, err := s.loans.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list loans %s: %w", portfolioID, err)
	}
	if len(loans) == 0 {
		return nil, fmt.Errorf("portfolio_service: portfolio %s: %w", portfolioID, domain.ErrNotFound)
	}
	return loans, nil
}

// PoolMetrics returns the waterfall pool aggregates of the selected loans.
func (s *PortfolioService) PoolMetrics(ctx context.Context, portfolioID string, filter *domain.PoolFilter) (domain.PoolMetrics, error) {
	loans, err := s.Loans(ctx, portfolioID)
	if err != nil {
		return domain.PoolMetrics{}, err
	}
	return risk.ComputePoolMetrics(risk.ApplyPoolFilter(loans, filter)), nil
}

// Policy returns the stored policy, or the configured defaults when none
// is stored.
func (s *PortfolioService) Policy(ctx context.Context, portfolioID string) (domain.ProvisioningPolicy, error) {
	p, err := s.policies.Get(ctx, portfolioID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ProvisioningPolicy{
			PortfolioID: portfolioID,
			NBFI:        s.defaults.NBFI,
			Lender:      s.defaults.Lender,
		}, nil
	}
	if err != nil {
		return domain.ProvisioningPolicy{}, fmt.Errorf("portfolio_service: get policy %s: %w", portfolioID, err)
	}
	return p, nil
}

// UpdatePolicy validates and stores both rule sets.
func (s *PortfolioService) UpdatePolicy(ctx context.Context, p domain.ProvisioningPolicy) (domain.ProvisioningPolicy, error) {
	if p.PortfolioID == "" {
		return domain.ProvisioningPolicy{}, fmt.Errorf("portfolio_service: update policy: empty portfolio id: %w", domain.ErrInvalidInput)
	}
	var errs []error
	if err := risk.ValidateRules(p.NBFI); err != nil {
		errs = append(errs, fmt.Errorf("nbfi: %w", err))
	}
	if err := risk.ValidateRules(p.Lender); err != nil {
		errs = append(errs, fmt.Errorf("lender: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return domain.ProvisioningPolicy{}, fmt.Errorf("portfolio_service: update policy %s: %w", p.PortfolioID, err)
	}

	p.UpdatedAt = time.Now().UTC()
	if err := s.policies.Upsert(ctx, p); err != nil {
		return domain.ProvisioningPolicy{}, fmt.Errorf("portfolio_service: update policy %s: %w", p.PortfolioID, err)
	}
	s.logAudit(ctx, domain.AuditPolicyUpdated, map[string]any{"portfolio_id": p.PortfolioID})
	return p, nil
}

// resolve fills unset report options from the defaults.
func (s *PortfolioService) resolve(opts domain.ReportOptions) domain.ReportOptions {
	if opts.Scenario == "" {
		opts.Scenario = s.defaults.Scenario
	}
	if opts.Scenario == "" {
		opts.Scenario = risk.ScenarioBase
	}
	if opts.Periods == 0 {
		opts.Periods = s.defaults.Periods
	}
	if opts.FacilityAmount == 0 {
		opts.FacilityAmount = s.defaults.FacilityAmount
	}
	return opts
}

// Report computes every analytics section for the portfolio. The pool
// filter, when given, is applied before anything else.
func (s *PortfolioService) Report(ctx context.Context, portfolioID string, opts domain.ReportOptions) (domain.PortfolioReport, error) {
	opts = s.resolve(opts)
	matrix, err := risk.ScenarioMatrix(opts.Scenario)
	if err != nil {
		return domain.PortfolioReport{}, fmt.Errorf("portfolio_service: report %s: %w", portfolioID, err)
	}
	if opts.Periods < 1 || opts.Periods > domain.MaxPeriods {
		return domain.PortfolioReport{}, fmt.Errorf("portfolio_service: report %s: periods %d: %w",
			portfolioID, opts.Periods, domain.ErrInvalidInput)
	}

	all, err := s.Loans(ctx, portfolioID)
	if err != nil {
		return domain.PortfolioReport{}, err
	}
	policy, err := s.Policy(ctx, portfolioID)
	if err != nil {
		return domain.PortfolioReport{}, err
	}
	loans := risk.ApplyPoolFilter(all, opts.Filter)

	rep := domain.PortfolioReport{
		PortfolioID:   portfolioID,
		GeneratedAt:   time.Now().UTC(),
		LoanCount:     len(loans),
		Scenario:      opts.Scenario,
		Pool:          risk.ComputePoolMetrics(loans),
		VintageCurves: risk.VintageCurves(loans),
		CNL:           risk.ComputeCNL(loans),
		Eligibility:   risk.EligibilityWaterfall(loans),
		Concentration: map[string]domain.Concentration{
			"geography": risk.ComputeHHI(loans, risk.ByGeography),
			"product":   risk.ComputeHHI(loans, risk.ByProduct),
			"segment":   risk.ComputeHHI(loans, risk.BySegment),
		},
	}

	// Each section writes only its own field of rep.
	g, _ := errgroup.WithContext(ctx)
	section := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	section("loss", func() (err error) { rep.Loss, err = s.engine.EstimateLoss(loans); return })
	section("ecl", func() (err error) { rep.ECL, err = s.engine.ComputeECL(loans); return })
	section("provisioning", func() (err error) {
		rep.Provisioning, err = risk.CompareProvisioning(loans, policy.NBFI, policy.Lender)
		return
	})
	section("projection", func() (err error) {
		rep.Projection, err = risk.ProjectLoans(loans, matrix, opts.Periods)
		return
	})
	section("summary", func() (err error) { rep.Summary, err = risk.FinancialSummary(loans); return })
	section("cure_rate", func() (err error) { rep.CureRate, err = risk.ComputeCureRate(loans); return })
	section("vintages", func() (err error) { rep.Vintages, err = s.engine.Vintages(loans); return })
	section("stress", func() (err error) { rep.Stress, err = s.engine.StressIndicators(loans); return })
	section("cdr", func() (err error) { rep.CDR, err = risk.ComputeCDR(loans); return })
	section("velocity", func() (err error) { rep.Velocity, err = risk.ComputeRepaymentVelocity(loans); return })
	section("borrowing_base", func() (err error) {
		rep.BorrowingBase, err = risk.ComputeBorrowingBase(loans, opts.FacilityAmount)
		return
	})
	if err := g.Wait(); err != nil {
		return domain.PortfolioReport{}, fmt.Errorf("portfolio_service: report %s: %w", portfolioID, err)
	}

	s.logger.InfoContext(ctx, "report computed",
		slog.String("portfolio_id", portfolioID),
		slog.Int("loans", len(loans)),
		slog.String("scenario", opts.Scenario),
	)
	return rep, nil
}

func (s *PortfolioService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
