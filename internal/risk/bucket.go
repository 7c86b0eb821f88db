// Package risk holds the credit-risk engine: delinquency classification,
// loss estimation, provisioning, roll-rate projection and the pool
// analytics built on top of them. Everything here is a pure function of its
// inputs and safe for concurrent use.
package risk

import (
	"fmt"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// Classify maps days-past-due to its delinquency bucket.
func Classify(dpd int) (domain.Bucket, error) {
	switch {
	case dpd < 0:
		return 0, fmt.Errorf("risk: classify dpd %d: %w", dpd, domain.ErrInvalidInput)
	case dpd == 0:
		return domain.BucketCurrent, nil
	case dpd <= 30:
		return domain.Bucket1To30, nil
	case dpd <= 60:
		return domain.Bucket31To60, nil
	case dpd <= 90:
		return domain.Bucket61To90, nil
	case dpd <= 180:
		return domain.Bucket91To180, nil
	default:
		return domain.Bucket180Plus, nil
	}
}

// classifyLoans buckets every loan, failing on the first negative DPD so no
// aggregate is ever computed over a partially valid collection.
func classifyLoans(loans []domain.LoanRecord) ([]domain.Bucket, error) {
	out := make([]domain.Bucket, len(loans))
	for i, l := range loans {
		b, err := Classify(l.DPD)
		if err != nil {
			return nil, fmt.Errorf("risk: loan %q: %w", l.ID, err)
		}
		out[i] = b
	}
	return out, nil
}
