package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

func TestDefaultRuleSetsAreValid(t *testing.T) {
	assert.NoError(t, ValidateRules(DefaultNBFIRules()))
	assert.NoError(t, ValidateRules(DefaultLenderRules()))
}

func TestValidateRules(t *testing.T) {
	cases := map[string]domain.RuleSet{
		"empty": {},
		"gap": {
			{Class: domain.ClassNormal, DPDMin: 0, DPDMax: 30, ProvisionPercent: 1},
			{Class: domain.ClassLoss, DPDMin: 32, DPDMax: domain.DPDSentinel, ProvisionPercent: 100},
		},
		"overlap": {
			{Class: domain.ClassNormal, DPDMin: 0, DPDMax: 30, ProvisionPercent: 1},
			{Class: domain.ClassLoss, DPDMin: 30, DPDMax: domain.DPDSentinel, ProvisionPercent: 100},
		},
		"late start": {
			{Class: domain.ClassLoss, DPDMin: 1, DPDMax: domain.DPDSentinel, ProvisionPercent: 100},
		},
		"bounded tail": {
			{Class: domain.ClassNormal, DPDMin: 0, DPDMax: 30, ProvisionPercent: 1},
			{Class: domain.ClassLoss, DPDMin: 31, DPDMax: 365, ProvisionPercent: 100},
		},
		"percent out of range": {
			{Class: domain.ClassLoss, DPDMin: 0, DPDMax: domain.DPDSentinel, ProvisionPercent: 120},
		},
	}
	for name, rules := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateRules(rules), domain.ErrInvalidInput)
		})
	}
}

func TestMatchRuleFirstMatchAndTail(t *testing.T) {
	rules := DefaultLenderRules()

	idx, err := MatchRule(rules, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = MatchRule(rules, 121)
	require.NoError(t, err)
	assert.Equal(t, domain.ClassLoss, rules[idx].Class)

	idx, err = MatchRule(rules, domain.DPDSentinel+5_000)
	require.NoError(t, err)
	assert.Equal(t, len(rules)-1, idx)

	_, err = MatchRule(rules, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComputeProvisions(t *testing.T) {
	nbfi, err := ComputeProvisions(sampleBook(), DefaultNBFIRules())
	require.NoError(t, err)
	assert.InDelta(t, 43_500, nbfi, 1e-6)

	lender, err := ComputeProvisions(sampleBook(), DefaultLenderRules())
	require.NoError(t, err)
	assert.InDelta(t, 53_000, lender, 1e-6)

	empty, err := ComputeProvisions(nil, DefaultNBFIRules())
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestProvisionTotalsAddExactly(t *testing.T) {
	loans := []domain.LoanRecord{
		{ID: "a", DPD: 0, CurrentBalance: 10},
		{ID: "b", DPD: 35, CurrentBalance: 4},
	}
	total, err := ComputeProvisions(loans, DefaultNBFIRules())
	require.NoError(t, err)
	assert.Equal(t, 0.3, total)

	cmp, err := CompareProvisioning(loans, DefaultNBFIRules(), DefaultNBFIRules())
	require.NoError(t, err)
	assert.Equal(t, 0.3, cmp.NBFITotal)
	assert.Zero(t, cmp.Delta)
}

func TestComputeProvisionsRejectsInvalidRules(t *testing.T) {
	rules := DefaultNBFIRules()
	rules[2].DPDMin = 70
	_, err := ComputeProvisions(sampleBook(), rules)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProvisionTable(t *testing.T) {
	rows, err := ProvisionTable(sampleBook(), DefaultNBFIRules())
	require.NoError(t, err)
	require.Len(t, rows, 5)

	wantCounts := []int{2, 1, 1, 1, 1}
	wantBalances := []float64{150_000, 40_000, 20_000, 10_000, 30_000}
	for i, r := range rows {
		assert.Equal(t, DefaultNBFIRules()[i].Class, r.Class)
		assert.Equal(t, wantCounts[i], r.LoanCount, r.Class)
		assert.InDelta(t, wantBalances[i], r.TotalBalance, 1e-9, r.Class)
	}
	assert.InDelta(t, 2_000, rows[1].ProvisionAmount, 1e-9)
}

func TestProvisionTableKeepsEmptyRules(t *testing.T) {
	rows, err := ProvisionTable([]domain.LoanRecord{{ID: "1", CurrentBalance: 10}}, DefaultLenderRules())
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, 1, rows[0].LoanCount)
	for _, r := range rows[1:] {
		assert.Zero(t, r.LoanCount)
		assert.Zero(t, r.TotalBalance)
	}
}

func TestCompareProvisioning(t *testing.T) {
	cmp, err := CompareProvisioning(sampleBook(), DefaultNBFIRules(), DefaultLenderRules())
	require.NoError(t, err)
	assert.InDelta(t, 43_500, cmp.NBFITotal, 1e-6)
	assert.InDelta(t, 53_000, cmp.LenderTotal, 1e-6)
	assert.InDelta(t, 9_500, cmp.Delta, 1e-6)
	assert.Len(t, cmp.NBFI, 5)
	assert.Len(t, cmp.Lender, 5)
	// Lender's 91-120 doubtful bucket captures the 120 DPD loan.
	assert.Equal(t, 1, cmp.Lender[3].LoanCount)
	assert.InDelta(t, 7_500, cmp.Lender[3].ProvisionAmount, 1e-9)
}
