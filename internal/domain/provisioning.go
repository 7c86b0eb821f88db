package domain

import "time"

// ProvisionClass is the regulatory classification a provisioning rule
// assigns to matching loans.
type ProvisionClass string

const (
	ClassNormal      ProvisionClass = "normal"
	ClassWatch       ProvisionClass = "watch"
	ClassSubstandard ProvisionClass = "substandard"
	ClassDoubtful    ProvisionClass = "doubtful"
	ClassLoss        ProvisionClass = "loss"
)

// DPDSentinel is the conventional upper bound of the last rule in a set; it
// stands in for "no upper limit".
const DPDSentinel = 9999

// ProvisioningRule assigns ProvisionPercent to loans whose DPD falls inside
// [DPDMin, DPDMax].
type ProvisioningRule struct {
	Class            ProvisionClass `json:"bucket" toml:"bucket"`
	DPDMin           int            `json:"dpd_min" toml:"dpd_min"`
	DPDMax           int            `json:"dpd_max" toml:"dpd_max"`
	ProvisionPercent float64        `json:"provision_percent" toml:"provision_percent"`
}

// RuleSet is an ordered list of rules; the first rule containing a DPD wins.
type RuleSet []ProvisioningRule

// ProvisioningPolicy pairs the originator's own rule set with the lender's
// (usually stricter) one for the same portfolio.
type ProvisioningPolicy struct {
	PortfolioID string    `json:"portfolio_id"`
	NBFI        RuleSet   `json:"nbfi"`
	Lender      RuleSet   `json:"lender"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProvisionBucketRow is one line of a provisioning table.
type ProvisionBucketRow struct {
	Class            ProvisionClass `json:"bucket"`
	DPDMin           int            `json:"dpd_min"`
	DPDMax           int            `json:"dpd_max"`
	LoanCount        int            `json:"loan_count"`
	TotalBalance     float64        `json:"total_balance"`
	ProvisionPercent float64        `json:"provision_percent"`
	ProvisionAmount  float64        `json:"provision_amount"`
}

// ProvisionComparison is the dual-policy view of one pool.
type ProvisionComparison struct {
	NBFI        []ProvisionBucketRow `json:"nbfi"`
	Lender      []ProvisionBucketRow `json:"lender"`
	NBFITotal   float64              `json:"nbfi_total"`
	LenderTotal float64              `json:"lender_total"`
	Delta       float64              `json:"delta"`
}
