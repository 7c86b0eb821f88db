package risk

import (
	"slices"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

const (
	defaultPoolRate   = 15.0
	defaultPoolTenure = 12.0
)

// ApplyPoolFilter returns the loans selected by f, preserving order. A nil
// filter selects everything. Loans with a negative DPD never match a bucket
// filter.
func ApplyPoolFilter(loans []domain.LoanRecord, f *domain.PoolFilter) []domain.LoanRecord {
	if f == nil {
		return loans
	}
	out := make([]domain.LoanRecord, 0, len(loans))
	for _, l := range loans {
		if selected(l, f) {
			out = append(out, l)
		}
	}
	return out
}

func selected(l domain.LoanRecord, f *domain.PoolFilter) bool {
	if len(f.ExcludedSegments) > 0 && slices.Contains(f.ExcludedSegments, segmentKey(l)) {
		return false
	}
	if f.LoanAmountMin != nil && l.DisbursedAmount < *f.LoanAmountMin {
		return false
	}
	if f.LoanAmountMax != nil && l.DisbursedAmount > *f.LoanAmountMax {
		return false
	}
	if t := l.ResidualTenureMonths; t != nil {
		if f.TenureMin != nil && *t < *f.TenureMin {
			return false
		}
		if f.TenureMax != nil && *t > *f.TenureMax {
			return false
		}
	}
	if f.RateMin != nil && l.InterestRate < *f.RateMin {
		return false
	}
	if f.RateMax != nil && l.InterestRate > *f.RateMax {
		return false
	}
	if len(f.Geographies) > 0 && !slices.Contains(f.Geographies, l.GeographyOrUnknown()) {
		return false
	}
	if len(f.Products) > 0 && !slices.Contains(f.Products, l.ProductOrUnknown()) {
		return false
	}
	if len(f.DPDBuckets) > 0 {
		b, err := Classify(l.DPD)
		if err != nil || !slices.Contains(f.DPDBuckets, b) {
			return false
		}
	}
	return true
}

// segmentKey is the tag exclusions are matched against: segment, falling
// back to product, then "Other".
func segmentKey(l domain.LoanRecord) string {
	switch {
	case l.Segment != "":
		return l.Segment
	case l.Product != "":
		return l.Product
	default:
		return "Other"
	}
}

// ComputePoolMetrics returns total balance, the simple mean interest rate
// and the mean residual tenure of loans that report one. Empty inputs fall
// back to 15% and 12 months.
func ComputePoolMetrics(loans []domain.LoanRecord) domain.PoolMetrics {
	m := domain.PoolMetrics{AvgRate: defaultPoolRate, AvgTenure: defaultPoolTenure}
	var rateSum, tenureSum float64
	var tenureN int
	for _, l := range loans {
		m.TotalBalance += l.CurrentBalance
		rateSum += l.InterestRate
		if l.ResidualTenureMonths != nil {
			tenureSum += float64(*l.ResidualTenureMonths)
			tenureN++
		}
	}
	if len(loans) > 0 {
		m.AvgRate = rateSum / float64(len(loans))
	}
	if tenureN > 0 {
		m.AvgTenure = tenureSum / float64(tenureN)
	}
	return m
}
