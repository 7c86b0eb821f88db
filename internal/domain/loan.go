package domain

import "time"

// UnknownTag is substituted wherever an optional grouping tag (geography,
// product, segment) is absent.
const UnknownTag = "Unknown"

// LoanRecord is one borrower account as of a reporting date. Records are
// treated as immutable for the duration of an analysis run and are replaced
// wholesale when a new loan tape is imported.
type LoanRecord struct {
	ID                    string    `json:"loan_id"`
	ApplicationID         string    `json:"application_id,omitempty"`
	CurrentBalance        float64   `json:"current_balance"`
	DisbursedAmount       float64   `json:"disbursed_amount"`
	DPD                   int       `json:"dpd"`
	TotalOverdue          float64   `json:"total_overdue"`
	DisbursedDate         time.Time `json:"disbursed_date"`
	InterestRate          float64   `json:"interest_rate"`
	WrittenOff            bool      `json:"written_off"`
	Repossessed           bool      `json:"repossessed"`
	RecoveryAfterWriteOff float64   `json:"recovery_after_write_off"`
	Geography             string    `json:"geography,omitempty"`
	Product               string    `json:"product,omitempty"`
	Segment               string    `json:"segment,omitempty"`
	BorrowerName          string    `json:"borrower_name,omitempty"`
	ResidualTenureMonths  *int      `json:"residual_tenure_months,omitempty"`
}

// GeographyOrUnknown returns the geography tag or UnknownTag.
func (l LoanRecord) GeographyOrUnknown() string { return orUnknown(l.Geography) }

// ProductOrUnknown returns the product tag or UnknownTag.
func (l LoanRecord) ProductOrUnknown() string { return orUnknown(l.Product) }

// SegmentOrUnknown returns the segment tag or UnknownTag.
func (l LoanRecord) SegmentOrUnknown() string { return orUnknown(l.Segment) }

func orUnknown(s string) string {
	if s == "" {
		return UnknownTag
	}
	return s
}

// Portfolio identifies the loan tape currently held for one originator.
type Portfolio struct {
	ID         string    `json:"id"`
	LoanCount  int       `json:"loan_count"`
	ImportedAt time.Time `json:"imported_at"`
}
