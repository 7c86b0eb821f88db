package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/money"
)

const (
	curveVintages = 6
	curveMaxMOB   = 18
)

// VintageOf returns the quarterly cohort label, e.g. "2024-Q3".
func VintageOf(t time.Time) string {
	q := (int(t.Month()) + 2) / 3
	return fmt.Sprintf("%04d-Q%d", t.Year(), q)
}

func groupByVintage(loans []domain.LoanRecord) (map[string][]domain.LoanRecord, []string) {
	groups := make(map[string][]domain.LoanRecord)
	for _, l := range loans {
		v := VintageOf(l.DisbursedDate)
		groups[v] = append(groups[v], l)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys
}

// Vintages summarises each quarterly cohort in chronological order.
// Delinquency ratios are balance weighted.
func (e *Engine) Vintages(loans []domain.LoanRecord) ([]domain.VintageRow, error) {
	groups, keys := groupByVintage(loans)
	rows := make([]domain.VintageRow, 0, len(keys))
	for _, k := range keys {
		grp := groups[k]
		row := domain.VintageRow{Vintage: k, Count: len(grp)}
		for _, l := range grp {
			row.Disbursed += l.DisbursedAmount
			row.Balance += l.CurrentBalance
			row.Recoveries += l.RecoveryAfterWriteOff
			if l.DPD > 30 {
				row.DPD30Balance += l.CurrentBalance
			}
			if l.DPD > 90 {
				row.DPD90Balance += l.CurrentBalance
			}
			if l.WrittenOff {
				row.ChargeOffs += l.CurrentBalance
			}
		}
		if row.Balance > 0 {
			row.DPD30Pct = row.DPD30Balance / row.Balance * 100
			row.DPD90Pct = row.DPD90Balance / row.Balance * 100
			est, err := e.EstimateLoss(grp)
			if err != nil {
				return nil, fmt.Errorf("risk: vintage %s: %w", k, err)
			}
			row.EstLossRate = est.Rate * 100
		}
		if row.Disbursed > 0 {
			row.CNL = (row.ChargeOffs - row.Recoveries) / row.Disbursed * 100
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// VintageCurves ramps each of the latest cohorts' CNL linearly to its full
// value at month-on-book 18, one point per month.
func VintageCurves(loans []domain.LoanRecord) domain.VintageCurves {
	groups, keys := groupByVintage(loans)
	if len(keys) > curveVintages {
		keys = keys[len(keys)-curveVintages:]
	}
	full := make(map[string]float64, len(keys))
	for _, k := range keys {
		full[k] = ComputeCNL(groups[k]).CNL
	}

	out := domain.VintageCurves{
		Vintages: keys,
		Points:   make([]domain.VintageCurvePoint, 0, curveMaxMOB),
	}
	for mob := 1; mob <= curveMaxMOB; mob++ {
		ramp := float64(mob) / curveMaxMOB
		pt := domain.VintageCurvePoint{MonthOnBook: mob, CNL: make(map[string]float64, len(keys))}
		for _, k := range keys {
			pt.CNL[k] = money.RoundTo(max(0, full[k]*ramp), 2)
		}
		out.Points = append(out.Points, pt)
	}
	return out
}
