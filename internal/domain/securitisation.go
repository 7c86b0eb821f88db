package domain

import "time"

// SecuritisationStructure describes how a pool is tranched. Percentages are
// whole-number percents; coupons are annual percents.
type SecuritisationStructure struct {
	ID                       string     `json:"id"`
	PortfolioID              string     `json:"portfolio_id"`
	SeniorPct                float64    `json:"senior_pct"`
	MezzaninePct             float64    `json:"mezzanine_pct"`
	EquityPct                float64    `json:"equity_pct"`
	OverCollateralisationPct float64    `json:"over_collateralisation_pct"`
	SeniorCoupon             float64    `json:"senior_coupon"`
	MezzanineCoupon          float64    `json:"mezzanine_coupon"`
	Finalised                bool       `json:"finalised"`
	FinalisedAt              *time.Time `json:"finalised_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// TrancheName identifies a layer of notes.
type TrancheName string

const (
	TrancheSenior    TrancheName = "Senior"
	TrancheMezzanine TrancheName = "Mezzanine"
	TrancheEquity    TrancheName = "Equity"
)

// TrancheStatus summarises how well a tranche was serviced.
type TrancheStatus string

const (
	TrancheOK       TrancheStatus = "ok"
	TranchePartial  TrancheStatus = "partial"
	TrancheImpaired TrancheStatus = "impaired"
)

// DefaultPeriods is the simulation horizon in months when none is given.
const DefaultPeriods = 12

// MaxPeriods caps every projection and simulation horizon (50 years).
const MaxPeriods = 600

// MaxGridCells caps the number of (loss, prepay) pairs in one sweep.
const MaxGridCells = 400

// WaterfallScenario is the stress applied to one simulation.
type WaterfallScenario struct {
	LossRatePct   float64 `json:"loss_rate"`
	PrepayRatePct float64 `json:"prepay_rate"`
	Periods       int     `json:"periods"`
}

// WaterfallInput bundles everything one simulation needs.
type WaterfallInput struct {
	PoolBalance float64                 `json:"pool_balance"`
	AvgRate     float64                 `json:"avg_rate"`
	Structure   SecuritisationStructure `json:"structure"`
	Scenario    WaterfallScenario       `json:"scenario"`
}

// TrancheResult is the per-tranche outcome of a simulation.
type TrancheResult struct {
	Tranche        TrancheName   `json:"tranche"`
	InitialBalance float64       `json:"initial_balance"`
	InterestPaid   float64       `json:"interest_paid"`
	PrincipalPaid  float64       `json:"principal_paid"`
	EndBalance     float64       `json:"end_balance"`
	Shortfall      float64       `json:"shortfall"`
	CoverageRatio  float64       `json:"coverage_ratio"`
	Status         TrancheStatus `json:"status"`
}

// WaterfallResult is the full outcome of one simulation. Tranches are always
// ordered Senior, Mezzanine, Equity.
type WaterfallResult struct {
	PoolBalance      float64         `json:"pool_balance"`
	TotalCollections float64         `json:"total_collections"`
	TotalLosses      float64         `json:"total_losses"`
	LossRate         float64         `json:"loss_rate"`
	PrepayRate       float64         `json:"prepay_rate"`
	Tranches         []TrancheResult `json:"tranches"`
	EquityResidual   float64         `json:"equity_residual"`
}

// Tranche returns the result for the named tranche.
func (r WaterfallResult) Tranche(name TrancheName) (TrancheResult, bool) {
	for _, t := range r.Tranches {
		if t.Tranche == name {
			return t, true
		}
	}
	return TrancheResult{}, false
}

// TotalShortfall sums shortfall across all tranches.
func (r WaterfallResult) TotalShortfall() float64 {
	var s float64
	for _, t := range r.Tranches {
		s += t.Shortfall
	}
	return s
}

// GridCell is one (loss, prepay) point of a stress sweep.
type GridCell struct {
	LossRate   float64         `json:"loss_rate"`
	PrepayRate float64         `json:"prepay_rate"`
	Result     WaterfallResult `json:"result"`
}
