package risk

import (
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

func intPtr(v int) *int { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sampleBook is a six-loan tape with one loan in every bucket. Total balance
// is 250,000 and total disbursed is 410,000.
func sampleBook() []domain.LoanRecord {
	return []domain.LoanRecord{
		{ID: "a", CurrentBalance: 100_000, DisbursedAmount: 150_000, DPD: 0, InterestRate: 12,
			DisbursedDate: date(2024, time.February, 10), Geography: "Nairobi", Product: "Auto",
			Segment: "Retail", ResidualTenureMonths: intPtr(10)},
		{ID: "b", CurrentBalance: 50_000, DisbursedAmount: 60_000, DPD: 15, InterestRate: 18, TotalOverdue: 2_000,
			DisbursedDate: date(2024, time.May, 3), Geography: "Mombasa", Product: "Auto",
			Segment: "SME", ResidualTenureMonths: intPtr(6)},
		{ID: "c", CurrentBalance: 40_000, DisbursedAmount: 80_000, DPD: 45, InterestRate: 15, TotalOverdue: 5_000,
			DisbursedDate: date(2024, time.March, 28), Geography: "Nairobi", Product: "Logbook",
			ResidualTenureMonths: intPtr(12)},
		{ID: "d", CurrentBalance: 20_000, DisbursedAmount: 40_000, DPD: 75, InterestRate: 20, TotalOverdue: 8_000,
			DisbursedDate: date(2023, time.November, 1), Product: "Logbook",
			ResidualTenureMonths: intPtr(3)},
		{ID: "e", CurrentBalance: 10_000, DisbursedAmount: 30_000, DPD: 120, InterestRate: 24, TotalOverdue: 6_000,
			DisbursedDate: date(2024, time.May, 20), Geography: "Kisumu"},
		{ID: "f", CurrentBalance: 30_000, DisbursedAmount: 50_000, DPD: 200, InterestRate: 30, TotalOverdue: 30_000,
			DisbursedDate: date(2023, time.December, 15), Geography: "Nairobi", Product: "Auto",
			WrittenOff: true, RecoveryAfterWriteOff: 5_000, ResidualTenureMonths: intPtr(0)},
	}
}

func newTestEngine() *Engine {
	e, err := NewEngine(DefaultLossRates())
	if err != nil {
		panic(err)
	}
	return e
}
