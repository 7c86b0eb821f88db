package risk

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// BucketRates maps each delinquency bucket to a fraction in [0,1].
type BucketRates [domain.NumBuckets]float64

// LossRateTable maps each bucket to a loss severity.
type LossRateTable = BucketRates

// DefaultLossRates returns the standard severity table.
func DefaultLossRates() LossRateTable {
	return LossRateTable{0, 0.01, 0.10, 0.25, 0.50, 1.00}
}

// LenderProvisionRates are the flat per-bucket rates a lender applies when
// summarising provisions without a rule set.
func LenderProvisionRates() BucketRates {
	return BucketRates{0.01, 0.01, 0.10, 0.50, 0.75, 1.00}
}

// AdvanceRates are the per-bucket advance rates for the borrowing base.
func AdvanceRates() BucketRates {
	return BucketRates{0.80, 0.60, 0.40, 0.10, 0, 0}
}

// LossRateTableFromMap builds a table from bucket labels. Buckets missing
// from m keep their default severity.
func LossRateTableFromMap(m map[string]float64) (LossRateTable, error) {
	t := DefaultLossRates()
	for label, rate := range m {
		b, err := domain.ParseBucket(label)
		if err != nil {
			return LossRateTable{}, fmt.Errorf("risk: loss rate table: %w", err)
		}
		t[b] = rate
	}
	if err := t.Validate(); err != nil {
		return LossRateTable{}, err
	}
	return t, nil
}

// Rate returns the fraction for bucket b.
func (t BucketRates) Rate(b domain.Bucket) float64 {
	return t[b]
}

// Validate checks every fraction lies in [0,1].
func (t BucketRates) Validate() error {
	var errs []error
	for i, r := range t {
		if r < 0 || r > 1 {
			errs = append(errs, fmt.Errorf("risk: rate for %s is %v, want [0,1]: %w",
				domain.Bucket(i), r, domain.ErrInvalidInput))
		}
	}
	return errors.Join(errs...)
}
