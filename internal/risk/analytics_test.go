package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

func TestFinancialSummary(t *testing.T) {
	s, err := FinancialSummary(sampleBook())
	require.NoError(t, err)

	assert.InDelta(t, 250_000, s.TotalBalance, 1e-9)
	assert.InDelta(t, 30_000, s.GrossLoss, 1e-9)
	assert.InDelta(t, 5_000, s.Recovery, 1e-9)
	assert.InDelta(t, 25_000, s.NetLoss, 1e-9)
	assert.InDelta(t, 53_000, s.Provisions, 1e-6)
	assert.InDelta(t, 51_000, s.TotalOverdue, 1e-9)
	assert.InDelta(t, 16.96, s.AvgInterest, 1e-9)
	assert.Equal(t, 1, s.WriteOffCount)
	assert.InDelta(t, 100.0/6, s.WriteOffRate, 1e-9)
	assert.InDelta(t, 100.0/6, s.RecoveryRate, 1e-9)
	assert.InDelta(t, 20.4, s.OverdueRatio, 1e-9)
}

func TestFinancialSummaryEmpty(t *testing.T) {
	s, err := FinancialSummary(nil)
	require.NoError(t, err)
	assert.Equal(t, domain.FinancialSummary{}, s)
}

func TestComputeCureRate(t *testing.T) {
	c, err := ComputeCureRate(sampleBook())
	require.NoError(t, err)
	assert.InDelta(t, 150_000, c.DelinquentBalance, 1e-9)
	assert.InDelta(t, 50_000, c.CuredBalance, 1e-9)
	assert.InDelta(t, 100.0/3, c.Rate, 1e-9)

	c, err = ComputeCureRate([]domain.LoanRecord{{ID: "1", CurrentBalance: 10}})
	require.NoError(t, err)
	assert.Equal(t, domain.CureRate{}, c)
}

func TestComputeCNL(t *testing.T) {
	c := ComputeCNL(sampleBook())
	assert.InDelta(t, 410_000, c.OriginationVolume, 1e-9)
	assert.InDelta(t, 30_000, c.ChargeOffs, 1e-9)
	assert.InDelta(t, 5_000, c.Recoveries, 1e-9)
	assert.InDelta(t, 25_000.0/410_000*100, c.CNL, 1e-9)

	assert.Equal(t, domain.CNLSummary{}, ComputeCNL(nil))
}

func TestComputeCDR(t *testing.T) {
	c, err := ComputeCDR(sampleBook())
	require.NoError(t, err)
	// Only loan e is past 90 days and not yet written off.
	assert.InDelta(t, 10_000, c.NewDefaults, 1e-9)
	assert.InDelta(t, 4, c.MonthlyDefault, 1e-9)
	assert.InDelta(t, 38.729024, c.CDR, 1e-5)

	c, err = ComputeCDR(nil)
	require.NoError(t, err)
	assert.Zero(t, c.CDR)
}

func TestComputeHHI(t *testing.T) {
	c := ComputeHHI(sampleBook(), ByGeography)
	require.Len(t, c.Segments, 4)
	assert.Equal(t, "Nairobi", c.Segments[0].Name)
	assert.InDelta(t, 0.68, c.Segments[0].Share, 1e-9)
	assert.InDelta(t, 0.5104, c.HHI, 1e-9)
	assert.InDelta(t, 0.3472, c.Normalized, 1e-9)
	assert.Equal(t, LabelHighConcentration, c.Label)

	var names []string
	for _, s := range c.Segments {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, domain.UnknownTag)
}

func TestComputeHHIDegenerate(t *testing.T) {
	single := ComputeHHI([]domain.LoanRecord{{ID: "1", CurrentBalance: 5}}, ByGeography)
	assert.Equal(t, 1.0, single.HHI)
	assert.Equal(t, 1.0, single.Normalized)

	empty := ComputeHHI(nil, ByProduct)
	assert.Zero(t, empty.HHI)
	assert.Empty(t, empty.Segments)
}

func TestHHILabel(t *testing.T) {
	assert.Equal(t, LabelWellDiversified, HHILabel(0.05))
	assert.Equal(t, LabelModerateConcentration, HHILabel(0.10))
	assert.Equal(t, LabelModerateConcentration, HHILabel(0.179))
	assert.Equal(t, LabelHighConcentration, HHILabel(0.18))
}

func TestComputeRepaymentVelocity(t *testing.T) {
	v, err := ComputeRepaymentVelocity(sampleBook())
	require.NoError(t, err)
	assert.Equal(t, 0.745, v.VP)
	assert.Equal(t, 33_705.0, v.ScheduledTotal)
	assert.Equal(t, 25_121.0, v.ActualTotal)
	assert.Equal(t, LabelLiquidityStress, v.Label)

	v, err = ComputeRepaymentVelocity([]domain.LoanRecord{{ID: "1", CurrentBalance: 12_000, InterestRate: 12}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.VP)
	assert.Equal(t, LabelPrepaying, v.Label)

	v, err = ComputeRepaymentVelocity(nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.VP)
}

func TestVelocityLabel(t *testing.T) {
	cases := map[float64]string{
		1.02: LabelPrepaying,
		0.99: LabelHealthy,
		0.96: LabelMarginal,
		0.50: LabelLiquidityStress,
	}
	for vp, want := range cases {
		got, _ := VelocityLabel(vp)
		assert.Equal(t, want, got, "vp %v", vp)
	}
}

func TestEMI(t *testing.T) {
	assert.InDelta(t, 1_000, EMI(12_000, 0, 12), 1e-9)
	assert.Zero(t, EMI(0, 15, 12))
	// 100,000 at 12% over 12 months.
	assert.InDelta(t, 8_884.88, EMI(100_000, 12, 12), 0.01)
}

func TestComputeBorrowingBase(t *testing.T) {
	bb, err := ComputeBorrowingBase(sampleBook(), 5_000)
	require.NoError(t, err)
	// Cap is 1% of 250,000; loans a-c hit it, d contributes 2,000.
	assert.Equal(t, 9_500.0, bb.Eligible)
	assert.Equal(t, 475.0, bb.Reserves)
	assert.Equal(t, 9_025.0, bb.BorrowingBase)
	assert.Equal(t, 4_025.0, bb.Headroom)
	assert.Equal(t, 55.4, bb.UtilizationPct)
	assert.Equal(t, 40_000.0, bb.Ineligible)
	assert.Equal(t, 4, bb.EligibleCount)
	assert.Equal(t, 2, bb.IneligibleCount)
	assert.Equal(t, 250_000.0, bb.TotalBalance)
}

func TestComputeBorrowingBaseEmpty(t *testing.T) {
	bb, err := ComputeBorrowingBase(nil, 1_000)
	require.NoError(t, err)
	assert.Zero(t, bb.BorrowingBase)
	assert.Equal(t, 100.0, bb.UtilizationPct)
	assert.Equal(t, -1_000.0, bb.Headroom)
}

func TestEligibilityWaterfall(t *testing.T) {
	var book []domain.LoanRecord
	for i := 0; i < 100; i++ {
		book = append(book, domain.LoanRecord{ID: "ok", CurrentBalance: 1_000, ResidualTenureMonths: intPtr(12)})
	}
	book = append(book,
		domain.LoanRecord{ID: "late", CurrentBalance: 1_000, DPD: 90, ResidualTenureMonths: intPtr(12)},
		domain.LoanRecord{ID: "wo", CurrentBalance: 1_000, WrittenOff: true, ResidualTenureMonths: intPtr(12)},
		domain.LoanRecord{ID: "big", CurrentBalance: 5_000, ResidualTenureMonths: intPtr(12)},
		domain.LoanRecord{ID: "repo", CurrentBalance: 1_000, Repossessed: true, ResidualTenureMonths: intPtr(12)},
		domain.LoanRecord{ID: "matured", CurrentBalance: 1_000},
	)

	steps := EligibilityWaterfall(book)
	require.Len(t, steps, 5)

	wantPass := []int{104, 103, 102, 101, 100}
	wantBal := []float64{108_000, 107_000, 102_000, 101_000, 100_000}
	wantFailBal := []float64{1_000, 1_000, 5_000, 1_000, 1_000}
	for i, s := range steps {
		assert.Equal(t, wantPass[i], s.PassCount, s.Criteria)
		assert.Equal(t, 1, s.FailCount, s.Criteria)
		assert.Equal(t, wantBal[i], s.PassBalance, s.Criteria)
		assert.Equal(t, wantFailBal[i], s.FailBalance, s.Criteria)
		assert.Equal(t, s.PassBalance, s.CumEligibleBalance)
	}
}

func TestVintages(t *testing.T) {
	rows, err := newTestEngine().Vintages(sampleBook())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2023-Q4", "2024-Q1", "2024-Q2"},
		[]string{rows[0].Vintage, rows[1].Vintage, rows[2].Vintage})

	q4 := rows[0]
	assert.Equal(t, 2, q4.Count)
	assert.InDelta(t, 90_000, q4.Disbursed, 1e-9)
	assert.InDelta(t, 100, q4.DPD30Pct, 1e-9)
	assert.InDelta(t, 60, q4.DPD90Pct, 1e-9)
	assert.InDelta(t, 25_000.0/90_000*100, q4.CNL, 1e-9)
	assert.InDelta(t, 70, q4.EstLossRate, 1e-9)
}

func TestVintageOf(t *testing.T) {
	assert.Equal(t, "2024-Q1", VintageOf(date(2024, 1, 1)))
	assert.Equal(t, "2024-Q1", VintageOf(date(2024, 3, 31)))
	assert.Equal(t, "2024-Q2", VintageOf(date(2024, 4, 1)))
	assert.Equal(t, "2024-Q4", VintageOf(date(2024, 12, 31)))
}

func TestVintageCurves(t *testing.T) {
	c := VintageCurves(sampleBook())
	assert.Equal(t, []string{"2023-Q4", "2024-Q1", "2024-Q2"}, c.Vintages)
	require.Len(t, c.Points, 18)
	assert.Equal(t, 1, c.Points[0].MonthOnBook)
	assert.Equal(t, 27.78, c.Points[17].CNL["2023-Q4"])
	assert.Equal(t, 13.89, c.Points[8].CNL["2023-Q4"])
	assert.Zero(t, c.Points[17].CNL["2024-Q1"])
}

func TestStressIndicators(t *testing.T) {
	si, err := newTestEngine().StressIndicators(sampleBook())
	require.NoError(t, err)

	require.NotEmpty(t, si.Product)
	// Loan e carries no product tag.
	var unknown *domain.DimensionRow
	for i := range si.Product {
		if si.Product[i].Name == domain.UnknownTag {
			unknown = &si.Product[i]
		}
	}
	require.NotNil(t, unknown)
	assert.Equal(t, 1, unknown.Count)
	assert.InDelta(t, 50, unknown.EstLoss, 1e-9)

	for i := 1; i < len(si.Geography); i++ {
		assert.GreaterOrEqual(t, si.Geography[i-1].EstLoss, si.Geography[i].EstLoss)
	}

	var tickets []string
	for _, r := range si.TicketSize {
		tickets = append(tickets, r.Name)
	}
	assert.ElementsMatch(t, []string{"<50K", "50-100K", "100-200K"}, tickets)
}

func TestTicketBucket(t *testing.T) {
	assert.Equal(t, "<50K", TicketBucket(49_999))
	assert.Equal(t, "50-100K", TicketBucket(50_000))
	assert.Equal(t, "100-200K", TicketBucket(199_999))
	assert.Equal(t, "200K+", TicketBucket(200_000))
}

func TestApplyPoolFilter(t *testing.T) {
	book := sampleBook()
	assert.Len(t, ApplyPoolFilter(book, nil), len(book))

	minAmt := 50_000.0
	got := ApplyPoolFilter(book, &domain.PoolFilter{
		LoanAmountMin: &minAmt,
		Geographies:   []string{"Nairobi"},
	})
	assert.Equal(t, []string{"a", "c", "f"}, ids(got))

	got = ApplyPoolFilter(book, &domain.PoolFilter{
		DPDBuckets: []domain.Bucket{domain.BucketCurrent, domain.Bucket180Plus},
	})
	assert.Equal(t, []string{"a", "f"}, ids(got))

	// Exclusion matches segment first, then product.
	got = ApplyPoolFilter(book, &domain.PoolFilter{ExcludedSegments: []string{"Retail", "Logbook"}})
	assert.Equal(t, []string{"b", "e", "f"}, ids(got))

	// Loans without a tenure are not dropped by tenure bounds.
	minTenure := 6
	got = ApplyPoolFilter(book, &domain.PoolFilter{TenureMin: &minTenure})
	assert.Equal(t, []string{"a", "b", "c", "e"}, ids(got))

	got = ApplyPoolFilter(book, &domain.PoolFilter{Products: []string{domain.UnknownTag}})
	assert.Equal(t, []string{"e"}, ids(got))
}

func TestComputePoolMetrics(t *testing.T) {
	m := ComputePoolMetrics(sampleBook())
	assert.InDelta(t, 250_000, m.TotalBalance, 1e-9)
	assert.InDelta(t, 119.0/6, m.AvgRate, 1e-9)
	assert.InDelta(t, 6.2, m.AvgTenure, 1e-9)

	empty := ComputePoolMetrics(nil)
	assert.Equal(t, 15.0, empty.AvgRate)
	assert.Equal(t, 12.0, empty.AvgTenure)
}

func ids(loans []domain.LoanRecord) []string {
	out := make([]string, len(loans))
	for i, l := range loans {
		out[i] = l.ID
	}
	return out
}
