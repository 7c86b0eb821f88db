package risk

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/money"
)

const (
	// SingleLoanCapPct caps any one loan's contribution as a share of pool.
	SingleLoanCapPct = 0.01
	// ReservePct is held back from the eligible advance.
	ReservePct = 0.05

	defaultVelocityRate   = 15.0
	defaultVelocityTenure = 12
)

// ComputeBorrowingBase sizes the advance a lender can extend against the
// pool: Σ min(balance × advance rate, cap) less reserves. Written-off loans
// and buckets with a zero advance rate are ineligible.
func ComputeBorrowingBase(loans []domain.LoanRecord, facilityAmount float64) (domain.BorrowingBase, error) {
	buckets, err := classifyLoans(loans)
	if err != nil {
		return domain.BorrowingBase{}, fmt.Errorf("risk: borrowing base: %w", err)
	}
	var total float64
	for _, l := range loans {
		total += l.CurrentBalance
	}
	loanCap := total * SingleLoanCapPct
	advance := AdvanceRates()

	var bb domain.BorrowingBase
	var eligible, ineligible float64
	for i, l := range loans {
		ar := advance.Rate(buckets[i])
		if ar == 0 || l.WrittenOff {
			ineligible += l.CurrentBalance
			bb.IneligibleCount++
			continue
		}
		eligible += math.Min(l.CurrentBalance*ar, loanCap)
		bb.EligibleCount++
	}
	reserves := eligible * ReservePct
	base := eligible - reserves
	util := 100.0
	if base > 0 {
		util = facilityAmount / base * 100
	}

	bb.BorrowingBase = money.Round(base)
	bb.Eligible = money.Round(eligible)
	bb.Ineligible = money.Round(ineligible)
	bb.Reserves = money.Round(reserves)
	bb.Headroom = money.Round(base - facilityAmount)
	bb.UtilizationPct = money.RoundTo(util, 1)
	bb.TotalBalance = money.Round(total)
	bb.FacilityAmount = facilityAmount
	return bb, nil
}

type eligibilityCriterion struct {
	name string
	pass func(domain.LoanRecord) bool
}

// EligibilityWaterfall applies the eligibility criteria in sequence; each
// step only sees loans that passed every earlier step.
func EligibilityWaterfall(loans []domain.LoanRecord) []domain.EligibilityStep {
	var total float64
	for _, l := range loans {
		total += l.CurrentBalance
	}
	loanCap := total * SingleLoanCapPct

	criteria := []eligibilityCriterion{
		{"DPD ≤ 60 days", func(l domain.LoanRecord) bool { return l.DPD <= 60 }},
		{"Not written off", func(l domain.LoanRecord) bool { return !l.WrittenOff }},
		{"Balance within 1% pool cap", func(l domain.LoanRecord) bool { return l.CurrentBalance <= loanCap }},
		{"No repossession flag", func(l domain.LoanRecord) bool { return !l.Repossessed }},
		{"Residual tenure > 0", func(l domain.LoanRecord) bool {
			return l.ResidualTenureMonths != nil && *l.ResidualTenureMonths > 0
		}},
	}

	remaining := loans
	steps := make([]domain.EligibilityStep, 0, len(criteria))
	for _, c := range criteria {
		var pass []domain.LoanRecord
		step := domain.EligibilityStep{Criteria: c.name}
		var passBal, failBal float64
		for _, l := range remaining {
			if c.pass(l) {
				pass = append(pass, l)
				passBal += l.CurrentBalance
			} else {
				step.FailCount++
				failBal += l.CurrentBalance
			}
		}
		step.PassCount = len(pass)
		step.PassBalance = money.Round(passBal)
		step.FailBalance = money.Round(failBal)
		step.CumEligibleBalance = step.PassBalance
		steps = append(steps, step)
		remaining = pass
	}
	return steps
}

// Repayment velocity labels.
const (
	LabelPrepaying       = "Prepaying"
	LabelHealthy         = "Healthy"
	LabelMarginal        = "Marginal"
	LabelLiquidityStress = "Liquidity Stress"
)

// VelocityLabel interprets a velocity ratio.
func VelocityLabel(vp float64) (label, detail string) {
	switch {
	case vp >= 1.0:
		return LabelPrepaying, "Borrowers repaying ahead of schedule"
	case vp >= 0.98:
		return LabelHealthy, "Collections in line with schedule"
	case vp >= 0.95:
		return LabelMarginal, "Slight shortfall in collections"
	default:
		return LabelLiquidityStress, "Significant collection shortfall, possible hidden forbearance"
	}
}

// paymentRatio is the modelled share of scheduled EMI actually collected.
func paymentRatio(l domain.LoanRecord) float64 {
	switch {
	case l.DPD == 0:
		if l.RecoveryAfterWriteOff > 0 {
			return 1.05
		}
		return 1.0
	case l.DPD <= 30:
		return 0.92
	case l.DPD <= 60:
		return 0.75
	case l.DPD <= 90:
		return 0.50
	case l.DPD <= 180:
		return 0.20
	default:
		return 0.05
	}
}

// EMI is the level monthly instalment on balance at an annual percent rate
// over tenure months. A zero rate amortises straight-line.
func EMI(balance, annualRatePct float64, tenure int) float64 {
	if balance <= 0 || tenure <= 0 {
		return 0
	}
	r := annualRatePct / 100 / 12
	if r == 0 {
		return balance / float64(tenure)
	}
	f := math.Pow(1+r, float64(tenure))
	return balance * r * f / (f - 1)
}

// ComputeRepaymentVelocity is Σ modelled collections / Σ scheduled EMI. Loans
// without a rate or tenure use 15% and 12 months.
func ComputeRepaymentVelocity(loans []domain.LoanRecord) (domain.RepaymentVelocity, error) {
	var scheduled, actual float64
	for _, l := range loans {
		if l.DPD < 0 {
			return domain.RepaymentVelocity{}, fmt.Errorf("risk: repayment velocity: loan %q dpd %d: %w",
				l.ID, l.DPD, domain.ErrInvalidInput)
		}
		rate := l.InterestRate
		if rate == 0 {
			rate = defaultVelocityRate
		}
		tenure := defaultVelocityTenure
		if l.ResidualTenureMonths != nil && *l.ResidualTenureMonths > 0 {
			tenure = *l.ResidualTenureMonths
		}
		emi := EMI(l.CurrentBalance, rate, tenure)
		scheduled += emi
		actual += emi * paymentRatio(l)
	}
	vp := 1.0
	if scheduled > 0 {
		vp = actual / scheduled
	}
	vp = money.RoundTo(vp, 3)
	label, detail := VelocityLabel(vp)
	return domain.RepaymentVelocity{
		VP:             vp,
		ScheduledTotal: money.Round(scheduled),
		ActualTotal:    money.Round(actual),
		Label:          label,
		Detail:         detail,
	}, nil
}
