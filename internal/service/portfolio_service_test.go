package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/risk"
)

func tape() []domain.LoanRecord {
	at := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	return []domain.LoanRecord{
		{ID: "l1", CurrentBalance: 60_000, DisbursedAmount: 80_000, DPD: 0, InterestRate: 12,
			DisbursedDate: at, Geography: "Nairobi", Product: "Auto", Segment: "Retail"},
		{ID: "l2", CurrentBalance: 30_000, DisbursedAmount: 40_000, DPD: 45, InterestRate: 18,
			DisbursedDate: at, Geography: "Mombasa", Product: "Auto", Segment: "SME"},
		{ID: "l3", CurrentBalance: 10_000, DisbursedAmount: 20_000, DPD: 120, InterestRate: 24,
			DisbursedDate: at.AddDate(0, 2, 0), Geography: "Nairobi", Product: "Logbook"},
	}
}

func newPortfolioService(t *testing.T) (*PortfolioService, *memLoans, *memPolicies, *memAudit) {
	t.Helper()
	engine, err := risk.NewEngine(risk.DefaultLossRates())
	require.NoError(t, err)
	loans, policies, audit := newMemLoans(), newMemPolicies(), &memAudit{}
	svc := NewPortfolioService(loans, policies, audit, engine, PortfolioDefaults{}, discardLogger())
	return svc, loans, policies, audit
}

func TestValidateLoansReportsEveryProblem(t *testing.T) {
	err := ValidateLoans([]domain.LoanRecord{
		{ID: ""},
		{ID: "a", CurrentBalance: -1},
		{ID: "a", DPD: -3, InterestRate: 140},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	for _, want := range []string{"missing loan_id", "negative current_balance", "duplicate loan_id", "negative dpd", "outside [0,100]"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NoError(t, ValidateLoans(tape()))
}

func TestImportLoansReplacesTape(t *testing.T) {
	svc, loans, _, audit := newPortfolioService(t)
	ctx := context.Background()

	p, err := svc.ImportLoans(ctx, "pf", tape())
	require.NoError(t, err)
	assert.Equal(t, 3, p.LoanCount)

	_, err = svc.ImportLoans(ctx, "pf", tape()[:1])
	require.NoError(t, err)
	n, _ := loans.CountByPortfolio(ctx, "pf")
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{domain.AuditPortfolioImported, domain.AuditPortfolioImported}, audit.events)
}

func TestMergeLoansUpsertsByID(t *testing.T) {
	svc, loans, _, _ := newPortfolioService(t)
	ctx := context.Background()

	_, err := svc.ImportLoans(ctx, "pf", tape())
	require.NoError(t, err)

	upd := tape()[0]
	upd.CurrentBalance = 55_000
	p, err := svc.MergeLoans(ctx, "pf", []domain.LoanRecord{upd, {ID: "l4", CurrentBalance: 5_000, InterestRate: 20}})
	require.NoError(t, err)
	assert.Equal(t, 4, p.LoanCount)

	got, err := loans.ListByPortfolio(ctx, "pf")
	require.NoError(t, err)
	assert.Equal(t, 55_000.0, got[0].CurrentBalance)

	_, err = svc.MergeLoans(ctx, "pf", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestImportLoansRejectsBadInput(t *testing.T) {
	svc, loans, _, _ := newPortfolioService(t)
	ctx := context.Background()

	_, err := svc.ImportLoans(ctx, "", tape())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.ImportLoans(ctx, "pf", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.ImportLoans(ctx, "pf", []domain.LoanRecord{{ID: "x", DPD: -1}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, loans.tapes)
}

func TestLoansEmptyPortfolioIsNotFound(t *testing.T) {
	svc, _, _, _ := newPortfolioService(t)
	_, err := svc.Loans(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPoolMetricsAppliesFilter(t *testing.T) {
	svc, _, _, _ := newPortfolioService(t)
	ctx := context.Background()
	_, err := svc.ImportLoans(ctx, "pf", tape())
	require.NoError(t, err)

	all, err := svc.PoolMetrics(ctx, "pf", nil)
	require.NoError(t, err)
	assert.Equal(t, 100_000.0, all.TotalBalance)
	assert.Equal(t, 18.0, all.AvgRate)

	nairobi, err := svc.PoolMetrics(ctx, "pf", &domain.PoolFilter{Geographies: []string{"Nairobi"}})
	require.NoError(t, err)
	assert.Equal(t, 70_000.0, nairobi.TotalBalance)
}

func TestPolicyFallsBackToDefaults(t *testing.T) {
	svc, _, _, _ := newPortfolioService(t)
	p, err := svc.Policy(context.Background(), "pf")
	require.NoError(t, err)
	assert.Equal(t, "pf", p.PortfolioID)
	assert.Equal(t, risk.DefaultNBFIRules(), p.NBFI)
	assert.Equal(t, risk.DefaultLenderRules(), p.Lender)
}

func TestUpdatePolicy(t *testing.T) {
	svc, _, policies, audit := newPortfolioService(t)
	ctx := context.Background()

	strict := risk.DefaultLenderRules()
	_, err := svc.UpdatePolicy(ctx, domain.ProvisioningPolicy{PortfolioID: "pf", NBFI: strict, Lender: strict})
	require.NoError(t, err)
	assert.Equal(t, strict, policies.policies["pf"].NBFI)
	assert.Equal(t, []string{domain.AuditPolicyUpdated}, audit.events)

	gap := domain.RuleSet{{Class: domain.ClassNormal, DPDMin: 5, DPDMax: domain.DPDSentinel, ProvisionPercent: 1}}
	_, err = svc.UpdatePolicy(ctx, domain.ProvisioningPolicy{PortfolioID: "pf", NBFI: gap, Lender: nil})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "nbfi")
	assert.Contains(t, err.Error(), "lender")
}

func TestReportComputesEverySection(t *testing.T) {
	svc, _, _, _ := newPortfolioService(t)
	ctx := context.Background()
	_, err := svc.ImportLoans(ctx, "pf", tape())
	require.NoError(t, err)

	rep, err := svc.Report(ctx, "pf", domain.ReportOptions{Periods: 6})
	require.NoError(t, err)
	assert.Equal(t, "pf", rep.PortfolioID)
	assert.Equal(t, 3, rep.LoanCount)
	assert.Equal(t, risk.ScenarioBase, rep.Scenario)
	assert.Equal(t, 100_000.0, rep.Pool.TotalBalance)
	assert.Len(t, rep.Projection, 7, "start plus one row per period")
	assert.Contains(t, rep.Concentration, "geography")
	assert.Contains(t, rep.Concentration, "product")
	assert.Contains(t, rep.Concentration, "segment")
	assert.NotEmpty(t, rep.Vintages)
	assert.NotEmpty(t, rep.Eligibility)
	assert.Greater(t, rep.Loss.Amount, 0.0)
}

func TestReportRejectsBadOptions(t *testing.T) {
	svc, _, _, _ := newPortfolioService(t)
	ctx := context.Background()
	_, err := svc.ImportLoans(ctx, "pf", tape())
	require.NoError(t, err)

	_, err = svc.Report(ctx, "pf", domain.ReportOptions{Scenario: "apocalypse"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Report(ctx, "pf", domain.ReportOptions{Periods: -2})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Report(ctx, "pf", domain.ReportOptions{Periods: domain.MaxPeriods + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Report(ctx, "pf", domain.ReportOptions{Periods: math.MaxInt})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Report(ctx, "other", domain.ReportOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
