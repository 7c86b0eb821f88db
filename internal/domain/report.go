package domain

import "time"

// LossEstimate is the fixed-table loss estimate for a loan collection.
type LossEstimate struct {
	Amount float64 `json:"amount"`
	Rate   float64 `json:"rate"`
}

// ECL holds the expected-credit-loss figures for a loan collection.
type ECL struct {
	ECL12m       float64 `json:"ecl12m"`
	ECLLifetime  float64 `json:"ecl_lifetime"`
	TotalBalance float64 `json:"total_balance"`
}

// ProjectionRow is one reported period of a roll-rate projection.
type ProjectionRow struct {
	Period   string       `json:"period"`
	Balances Distribution `json:"balances"`
}

// FinancialSummary aggregates write-off, recovery and overdue figures.
// Rates are percents.
type FinancialSummary struct {
	TotalBalance  float64 `json:"total_balance"`
	GrossLoss     float64 `json:"gross_loss"`
	NetLoss       float64 `json:"net_loss"`
	Recovery      float64 `json:"recovery"`
	Provisions    float64 `json:"provisions"`
	TotalOverdue  float64 `json:"total_overdue"`
	AvgInterest   float64 `json:"avg_interest"`
	WriteOffCount int     `json:"write_off_count"`
	WriteOffRate  float64 `json:"write_off_rate"`
	RecoveryRate  float64 `json:"recovery_rate"`
	OverdueRatio  float64 `json:"overdue_ratio"`
}

// CureRate is the share of delinquent balance sitting in the shallowest
// delinquency bucket.
type CureRate struct {
	Rate              float64 `json:"rate"`
	CuredBalance      float64 `json:"cured_balance"`
	DelinquentBalance float64 `json:"delinquent_balance"`
}

// VintageRow summarises one quarterly disbursement cohort.
type VintageRow struct {
	Vintage      string  `json:"vintage"`
	Count        int     `json:"count"`
	Disbursed    float64 `json:"disbursed"`
	Balance      float64 `json:"balance"`
	DPD30Balance float64 `json:"dpd30_balance"`
	DPD90Balance float64 `json:"dpd90_balance"`
	ChargeOffs   float64 `json:"charge_offs"`
	Recoveries   float64 `json:"recoveries"`
	DPD30Pct     float64 `json:"dpd30_pct"`
	DPD90Pct     float64 `json:"dpd90_pct"`
	CNL          float64 `json:"cnl"`
	EstLossRate  float64 `json:"est_loss_rate"`
}

// VintageCurvePoint is the CNL of each vintage at one month-on-book.
type VintageCurvePoint struct {
	MonthOnBook int                `json:"mob"`
	CNL         map[string]float64 `json:"cnl"`
}

// VintageCurves is the CNL ramp of the most recent vintages.
type VintageCurves struct {
	Vintages []string            `json:"vintages"`
	Points   []VintageCurvePoint `json:"points"`
}

// DimensionRow is the delinquency profile of one group of loans.
type DimensionRow struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	Balance      float64 `json:"balance"`
	DPD30Balance float64 `json:"dpd30_balance"`
	DPD90Balance float64 `json:"dpd90_balance"`
	Overdue      float64 `json:"overdue"`
	PAR30        float64 `json:"par30"`
	PAR90        float64 `json:"par90"`
	EstLoss      float64 `json:"est_loss"`
}

// StressIndicators groups dimension rows by tag.
type StressIndicators struct {
	Geography  []DimensionRow `json:"geography"`
	Product    []DimensionRow `json:"product"`
	Segment    []DimensionRow `json:"segment"`
	TicketSize []DimensionRow `json:"ticket_size"`
}

// CNLSummary is cumulative net loss over origination volume.
type CNLSummary struct {
	CNL               float64 `json:"cnl"`
	ChargeOffs        float64 `json:"charge_offs"`
	Recoveries        float64 `json:"recoveries"`
	OriginationVolume float64 `json:"origination_volume"`
}

// CDRSummary is the annualised conditional default rate.
type CDRSummary struct {
	CDR            float64 `json:"cdr"`
	MonthlyDefault float64 `json:"monthly_default"`
	NewDefaults    float64 `json:"new_defaults"`
	PoolBalance    float64 `json:"pool_balance"`
}

// ConcentrationSegment is one group's share of pool balance.
type ConcentrationSegment struct {
	Name    string  `json:"name"`
	Share   float64 `json:"share"`
	Balance float64 `json:"balance"`
}

// Concentration is the Herfindahl-Hirschman view of one dimension.
type Concentration struct {
	HHI        float64                `json:"hhi"`
	Normalized float64                `json:"normalized"`
	Label      string                 `json:"label"`
	Segments   []ConcentrationSegment `json:"segments"`
}

// RepaymentVelocity compares modelled collections with scheduled EMIs.
type RepaymentVelocity struct {
	VP             float64 `json:"vp"`
	ScheduledTotal float64 `json:"scheduled_total"`
	ActualTotal    float64 `json:"actual_total"`
	Label          string  `json:"label"`
	Detail         string  `json:"detail"`
}

// BorrowingBase is the advance a lender can extend against the pool.
type BorrowingBase struct {
	BorrowingBase   float64 `json:"borrowing_base"`
	Eligible        float64 `json:"eligible"`
	Ineligible      float64 `json:"ineligible"`
	Reserves        float64 `json:"reserves"`
	Headroom        float64 `json:"headroom"`
	UtilizationPct  float64 `json:"utilization_pct"`
	TotalBalance    float64 `json:"total_balance"`
	EligibleCount   int     `json:"eligible_count"`
	IneligibleCount int     `json:"ineligible_count"`
	FacilityAmount  float64 `json:"facility_amount"`
}

// EligibilityStep is one criterion of the sequential eligibility filter.
type EligibilityStep struct {
	Criteria           string  `json:"criteria"`
	PassCount          int     `json:"pass_count"`
	FailCount          int     `json:"fail_count"`
	PassBalance        float64 `json:"pass_balance"`
	FailBalance        float64 `json:"fail_balance"`
	CumEligibleBalance float64 `json:"cum_eligible_balance"`
}

// PoolMetrics are the pool aggregates fed to the waterfall.
type PoolMetrics struct {
	TotalBalance float64 `json:"total_balance"`
	AvgRate      float64 `json:"avg_rate"`
	AvgTenure    float64 `json:"avg_tenure"`
}

// PoolFilter narrows a loan tape to the loans selected for a pool. Nil
// bounds and empty lists do not filter.
type PoolFilter struct {
	ExcludedSegments []string `json:"excluded_segments,omitempty"`
	LoanAmountMin    *float64 `json:"loan_amount_min,omitempty"`
	LoanAmountMax    *float64 `json:"loan_amount_max,omitempty"`
	TenureMin        *int     `json:"tenure_min,omitempty"`
	TenureMax        *int     `json:"tenure_max,omitempty"`
	RateMin          *float64 `json:"rate_min,omitempty"`
	RateMax          *float64 `json:"rate_max,omitempty"`
	Geographies      []string `json:"geographies,omitempty"`
	Products         []string `json:"products,omitempty"`
	DPDBuckets       []Bucket `json:"dpd_buckets,omitempty"`
}

// ReportOptions controls what a portfolio report projects.
type ReportOptions struct {
	Scenario       string      `json:"scenario"`
	Periods        int         `json:"periods"`
	FacilityAmount float64     `json:"facility_amount"`
	Filter         *PoolFilter `json:"filter,omitempty"`
}

// PortfolioReport is the full analytics bundle for one portfolio.
type PortfolioReport struct {
	PortfolioID   string                   `json:"portfolio_id"`
	GeneratedAt   time.Time                `json:"generated_at"`
	LoanCount     int                      `json:"loan_count"`
	Scenario      string                   `json:"scenario"`
	Pool          PoolMetrics              `json:"pool"`
	Loss          LossEstimate             `json:"loss"`
	ECL           ECL                      `json:"ecl"`
	Provisioning  ProvisionComparison      `json:"provisioning"`
	Projection    []ProjectionRow          `json:"projection"`
	Summary       FinancialSummary         `json:"summary"`
	CureRate      CureRate                 `json:"cure_rate"`
	Vintages      []VintageRow             `json:"vintages"`
	VintageCurves VintageCurves            `json:"vintage_curves"`
	Stress        StressIndicators         `json:"stress"`
	CNL           CNLSummary               `json:"cnl"`
	CDR           CDRSummary               `json:"cdr"`
	Concentration map[string]Concentration `json:"concentration"`
	Velocity      RepaymentVelocity        `json:"velocity"`
	BorrowingBase BorrowingBase            `json:"borrowing_base"`
	Eligibility   []EligibilityStep        `json:"eligibility"`
}
