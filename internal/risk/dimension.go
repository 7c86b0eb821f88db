package risk

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/money"
)

// KeyFunc extracts a grouping tag from a loan.
type KeyFunc func(domain.LoanRecord) string

// Grouping keys. Absent tags are reported as domain.UnknownTag.
var (
	ByGeography KeyFunc = domain.LoanRecord.GeographyOrUnknown
	ByProduct   KeyFunc = domain.LoanRecord.ProductOrUnknown
	BySegment   KeyFunc = domain.LoanRecord.SegmentOrUnknown
	ByTicket    KeyFunc = func(l domain.LoanRecord) string { return TicketBucket(l.DisbursedAmount) }
)

// TicketBucket classifies a disbursed amount into a ticket-size band.
func TicketBucket(amount float64) string {
	switch {
	case amount < 50_000:
		return "<50K"
	case amount < 100_000:
		return "50-100K"
	case amount < 200_000:
		return "100-200K"
	default:
		return "200K+"
	}
}

func groupBy(loans []domain.LoanRecord, key KeyFunc) (map[string][]domain.LoanRecord, []string) {
	groups := make(map[string][]domain.LoanRecord)
	var order []string
	for _, l := range loans {
		k := key(l)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], l)
	}
	return groups, order
}

// Dimension profiles each group, sorted by estimated loss rate descending
// and then by name.
func (e *Engine) Dimension(loans []domain.LoanRecord, key KeyFunc) ([]domain.DimensionRow, error) {
	groups, order := groupBy(loans, key)
	rows := make([]domain.DimensionRow, 0, len(order))
	for _, name := range order {
		grp := groups[name]
		row := domain.DimensionRow{Name: name, Count: len(grp)}
		for _, l := range grp {
			row.Balance += l.CurrentBalance
			row.Overdue += l.TotalOverdue
			if l.DPD > 30 {
				row.DPD30Balance += l.CurrentBalance
			}
			if l.DPD > 90 {
				row.DPD90Balance += l.CurrentBalance
			}
		}
		if row.Balance > 0 {
			row.PAR30 = row.DPD30Balance / row.Balance * 100
			row.PAR90 = row.DPD90Balance / row.Balance * 100
		}
		est, err := e.EstimateLoss(grp)
		if err != nil {
			return nil, fmt.Errorf("risk: dimension %q: %w", name, err)
		}
		row.EstLoss = est.Rate * 100
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].EstLoss != rows[j].EstLoss {
			return rows[i].EstLoss > rows[j].EstLoss
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

// StressIndicators profiles the pool by geography, product, segment and
// ticket size.
func (e *Engine) StressIndicators(loans []domain.LoanRecord) (domain.StressIndicators, error) {
	var (
		out domain.StressIndicators
		err error
	)
	if out.Geography, err = e.Dimension(loans, ByGeography); err != nil {
		return domain.StressIndicators{}, err
	}
	if out.Product, err = e.Dimension(loans, ByProduct); err != nil {
		return domain.StressIndicators{}, err
	}
	if out.Segment, err = e.Dimension(loans, BySegment); err != nil {
		return domain.StressIndicators{}, err
	}
	if out.TicketSize, err = e.Dimension(loans, ByTicket); err != nil {
		return domain.StressIndicators{}, err
	}
	return out, nil
}

// Concentration labels.
const (
	LabelWellDiversified       = "Well Diversified"
	LabelModerateConcentration = "Moderate Concentration"
	LabelHighConcentration     = "High Concentration"
)

// HHILabel interprets a Herfindahl-Hirschman index.
func HHILabel(hhi float64) string {
	switch {
	case hhi < 0.10:
		return LabelWellDiversified
	case hhi < 0.18:
		return LabelModerateConcentration
	default:
		return LabelHighConcentration
	}
}

// ComputeHHI returns the balance-share concentration of the pool along key.
// A single group normalises to 1; an empty pool returns a zero value.
func ComputeHHI(loans []domain.LoanRecord, key KeyFunc) domain.Concentration {
	var total float64
	for _, l := range loans {
		total += l.CurrentBalance
	}
	if total == 0 {
		return domain.Concentration{Label: HHILabel(0), Segments: []domain.ConcentrationSegment{}}
	}

	groups, order := groupBy(loans, key)
	segs := make([]domain.ConcentrationSegment, 0, len(order))
	for _, name := range order {
		var bal float64
		for _, l := range groups[name] {
			bal += l.CurrentBalance
		}
		segs = append(segs, domain.ConcentrationSegment{Name: name, Share: bal / total, Balance: bal})
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Share > segs[j].Share })

	var hhi float64
	for _, s := range segs {
		hhi += s.Share * s.Share
	}
	normalized := 1.0
	if n := float64(len(segs)); n > 1 {
		normalized = (hhi - 1/n) / (1 - 1/n)
	}
	hhi = money.RoundTo(hhi, 4)
	return domain.Concentration{
		HHI:        hhi,
		Normalized: money.RoundTo(normalized, 4),
		Label:      HHILabel(hhi),
		Segments:   segs,
	}
}
