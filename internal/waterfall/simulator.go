// Package waterfall simulates the monthly cash waterfall of a securitised
// loan pool and sweeps it across stress scenarios.
package waterfall

import (
	"errors"
	"fmt"
	"math"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/money"
)

const (
	pctTolerance = 1e-6

	// EquityCoverageSentinel is reported as Equity's coverage when it
	// received any residual cash. Equity has no contractual due.
	EquityCoverageSentinel = 999

	partialThreshold = 0.05
)

// ValidateStructure checks tranche percentages, OC and coupons.
func ValidateStructure(s domain.SecuritisationStructure) error {
	var errs []error
	pcts := []struct {
		name domain.TrancheName
		pct  float64
	}{
		{domain.TrancheSenior, s.SeniorPct},
		{domain.TrancheMezzanine, s.MezzaninePct},
		{domain.TrancheEquity, s.EquityPct},
	}
	for _, p := range pcts {
		if p.pct < 0 {
			errs = append(errs, fmt.Errorf("waterfall: %s pct %v is negative: %w", p.name, p.pct, domain.ErrInvalidInput))
		}
	}
	if sum := s.SeniorPct + s.MezzaninePct + s.EquityPct; math.Abs(sum-100) > pctTolerance {
		errs = append(errs, fmt.Errorf("waterfall: tranche pcts sum to %v, want 100: %w", sum, domain.ErrInvalidInput))
	}
	if s.OverCollateralisationPct < 0 {
		errs = append(errs, fmt.Errorf("waterfall: over-collateralisation %v is negative: %w",
			s.OverCollateralisationPct, domain.ErrInvalidInput))
	}
	if s.SeniorCoupon < 0 || s.MezzanineCoupon < 0 {
		errs = append(errs, fmt.Errorf("waterfall: coupons must be non-negative: %w", domain.ErrInvalidInput))
	}
	return errors.Join(errs...)
}

// ValidateScenario checks the stress rates and horizon.
func ValidateScenario(sc domain.WaterfallScenario) error {
	var errs []error
	if sc.LossRatePct < 0 || sc.LossRatePct > 100 || math.IsNaN(sc.LossRatePct) {
		errs = append(errs, fmt.Errorf("waterfall: loss rate %v outside [0,100]: %w", sc.LossRatePct, domain.ErrInvalidInput))
	}
	if sc.PrepayRatePct < 0 || sc.PrepayRatePct > 100 || math.IsNaN(sc.PrepayRatePct) {
		errs = append(errs, fmt.Errorf("waterfall: prepay rate %v outside [0,100]: %w", sc.PrepayRatePct, domain.ErrInvalidInput))
	}
	if sc.Periods <= 0 || sc.Periods > domain.MaxPeriods {
		errs = append(errs, fmt.Errorf("waterfall: periods %d outside [1,%d]: %w", sc.Periods, domain.MaxPeriods, domain.ErrInvalidInput))
	}
	return errors.Join(errs...)
}

// Validate checks a full simulation input.
func Validate(in domain.WaterfallInput) error {
	var errs []error
	if in.PoolBalance < 0 || math.IsNaN(in.PoolBalance) || math.IsInf(in.PoolBalance, 0) {
		errs = append(errs, fmt.Errorf("waterfall: pool balance %v: %w", in.PoolBalance, domain.ErrInvalidInput))
	}
	if in.AvgRate < 0 || math.IsNaN(in.AvgRate) {
		errs = append(errs, fmt.Errorf("waterfall: avg rate %v: %w", in.AvgRate, domain.ErrInvalidInput))
	}
	errs = append(errs, ValidateStructure(in.Structure), ValidateScenario(in.Scenario))
	return errors.Join(errs...)
}

// tranche accumulates one note layer across the horizon.
type tranche struct {
	pct       float64
	initial   float64
	balance   float64
	interest  float64
	principal float64
	shortfall float64
}

// pay settles due out of cash, recording any unpaid part as shortfall.
// It returns the cash left.
func (t *tranche) pay(cash, due float64, principal bool) float64 {
	paid := math.Min(cash, due)
	if principal {
		t.balance -= paid
		t.principal += paid
	} else {
		t.interest += paid
	}
	if paid < due {
		t.shortfall += due - paid
	}
	return cash - paid
}

// Simulate runs the monthly waterfall. Losses are netted from collections
// before distribution; Equity's notional is separately written down by its
// pro-rata share of each period's loss. Unpaid dues are not carried into
// the next period.
func Simulate(in domain.WaterfallInput) (domain.WaterfallResult, error) {
	if err := Validate(in); err != nil {
		return domain.WaterfallResult{}, err
	}
	s := in.Structure
	periods := in.Scenario.Periods

	notes := in.PoolBalance / (1 + s.OverCollateralisationPct/100)
	newTranche := func(pct float64) *tranche {
		b := notes * pct / 100
		return &tranche{pct: pct, initial: b, balance: b}
	}
	senior := newTranche(s.SeniorPct)
	mezz := newTranche(s.MezzaninePct)
	equity := newTranche(s.EquityPct)

	seniorCoupon := s.SeniorCoupon / 100 / 12
	mezzCoupon := s.MezzanineCoupon / 100 / 12
	monthlyLoss := 1 - math.Pow(1-in.Scenario.LossRatePct/100, 1.0/12)
	monthlyPrepay := in.Scenario.PrepayRatePct / 100 / 12
	monthlyYield := in.AvgRate / 100 / 12

	pool := in.PoolBalance
	var collections, losses, residual float64

	for m := 0; m < periods; m++ {
		loss := pool * monthlyLoss
		prepay := pool * monthlyPrepay
		scheduled := pool / float64(max(periods-m, 1))
		interest := pool * monthlyYield
		principal := scheduled + prepay

		pool = math.Max(pool-(principal+loss), 0)

		collections += interest + principal
		losses += loss
		cash := math.Max(interest+principal-loss, 0)

		cash = senior.pay(cash, senior.balance*seniorCoupon, false)
		cash = mezz.pay(cash, mezz.balance*mezzCoupon, false)
		cash = senior.pay(cash, math.Min(senior.balance, scheduled*senior.pct/100), true)
		cash = mezz.pay(cash, math.Min(mezz.balance, scheduled*mezz.pct/100), true)

		residual += cash
		equity.balance = math.Max(equity.balance-loss*equity.pct/100, 0)
	}

	return domain.WaterfallResult{
		PoolBalance:      money.Round(in.PoolBalance),
		TotalCollections: money.Round(collections),
		TotalLosses:      money.Round(losses),
		LossRate:         in.Scenario.LossRatePct,
		PrepayRate:       in.Scenario.PrepayRatePct,
		Tranches: []domain.TrancheResult{
			noteResult(domain.TrancheSenior, senior, s.SeniorCoupon, periods),
			noteResult(domain.TrancheMezzanine, mezz, s.MezzanineCoupon, periods),
			equityResult(equity, residual),
		},
		EquityResidual: money.Round(residual),
	}, nil
}

// noteResult reports a coupon-bearing tranche. Coverage is cash received
// over the annual coupon plus notional annualised across the horizon.
func noteResult(name domain.TrancheName, t *tranche, couponPct float64, periods int) domain.TrancheResult {
	annualDue := t.initial * couponPct / 100
	coverage := float64(EquityCoverageSentinel)
	if annualDue > 0 {
		coverage = (t.interest + t.principal) / (annualDue + t.initial/(float64(periods)/12))
	}
	return domain.TrancheResult{
		Tranche:        name,
		InitialBalance: money.Round(t.initial),
		InterestPaid:   money.Round(t.interest),
		PrincipalPaid:  money.Round(t.principal),
		EndBalance:     money.Round(t.balance),
		Shortfall:      money.Round(t.shortfall),
		CoverageRatio:  money.RoundTo(coverage, 2),
		Status:         status(t.shortfall, t.initial),
	}
}

func equityResult(t *tranche, residual float64) domain.TrancheResult {
	var coverage float64
	if residual > 0 {
		coverage = EquityCoverageSentinel
	}
	return domain.TrancheResult{
		Tranche:        domain.TrancheEquity,
		InitialBalance: money.Round(t.initial),
		InterestPaid:   money.Round(residual),
		EndBalance:     money.Round(t.balance),
		CoverageRatio:  coverage,
		Status:         domain.TrancheOK,
	}
}

// status grades the unrounded shortfall against the initial notional.
func status(shortfall, initial float64) domain.TrancheStatus {
	switch {
	case shortfall <= 0:
		return domain.TrancheOK
	case shortfall < initial*partialThreshold:
		return domain.TranchePartial
	default:
		return domain.TrancheImpaired
	}
}
